package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/thalesfsp/horunner"
)

// fileVersion is the schema version written into JSON checkpoints.
const fileVersion = 1

type fileDocument struct {
	Version int                    `json:"version"`
	Trials  []horunner.TrialRecord `json:"trials"`
}

// FileSink writes the whole history as JSON to a single file. Every save
// goes to a temp file in the same directory which is then renamed over the
// target, so a reader never sees a torn checkpoint.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates a sink writing to path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Path returns the checkpoint path.
func (f *FileSink) Path() string {
	return f.path
}

// Save implements horunner.Checkpointer.
func (f *FileSink) Save(_ context.Context, history []horunner.TrialRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(fileDocument{Version: fileVersion, Trials: history}, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	dir := filepath.Dir(f.path)

	tmp, err := os.CreateTemp(dir, ".checkpoint-*")
	if err != nil {
		return fmt.Errorf("checkpoint: create temp: %w", err)
	}

	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()

		return fmt.Errorf("checkpoint: write: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("checkpoint: close: %w", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("checkpoint: rename: %w", err)
	}

	return nil
}

// Close implements Sink. It is a no-op.
func (f *FileSink) Close() error {
	return nil
}

// LoadFile reads a JSON checkpoint.
func LoadFile(path string) ([]horunner.TrialRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: read %s: %w", path, err)
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("checkpoint: parse %s: %w", path, err)
	}

	if doc.Version != fileVersion {
		return nil, fmt.Errorf("checkpoint: %s: unsupported version %d", path, doc.Version)
	}

	return doc.Trials, nil
}
