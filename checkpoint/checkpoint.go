// Package checkpoint persists trial histories so a run can be resumed.
//
// Two sinks are provided: a JSON file rewritten atomically on every save, and
// a SQLite database that appends new trials under a run ID. Both implement
// horunner.Checkpointer and both schemas are exactly the TrialRecord model.
package checkpoint

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/thalesfsp/horunner"
)

// ErrEmptyPath is returned when no checkpoint path is given.
var ErrEmptyPath = errors.New("checkpoint: empty path")

// Sink is a Checkpointer that owns resources.
type Sink interface {
	horunner.Checkpointer
	Close() error
}

// IsSQLite reports whether path names a SQLite checkpoint, judged by its
// extension.
func IsSQLite(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}

	return false
}

// Open returns the sink for path: SQLite for .db/.sqlite/.sqlite3, JSON
// otherwise.
func Open(ctx context.Context, path string, logger logrus.FieldLogger) (Sink, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	if IsSQLite(path) {
		st, err := NewSQLiteSink(ctx, path, "", logger)
		if err != nil {
			return nil, err
		}

		return st, nil
	}

	return NewFileSink(path), nil
}

// Load reads the history stored at path. For SQLite the latest run is
// loaded.
func Load(ctx context.Context, path string, logger logrus.FieldLogger) ([]horunner.TrialRecord, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	if !IsSQLite(path) {
		return LoadFile(path)
	}

	st, err := NewSQLiteSink(ctx, path, "", logger)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	return st.LoadLatest(ctx)
}
