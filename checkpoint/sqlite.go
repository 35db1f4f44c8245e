package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/thalesfsp/horunner"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed width so timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// schema contains the DDL of the checkpoint tables. Each statement uses IF
// NOT EXISTS so migrating is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		created_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS trials (
		run_id        TEXT NOT NULL,
		idx           INTEGER NOT NULL,
		id            TEXT NOT NULL,
		slot          INTEGER NOT NULL,
		params        TEXT NOT NULL,
		status        TEXT NOT NULL,
		loss          REAL,
		loss_variance REAL,
		started_at    TEXT NOT NULL,
		finished_at   TEXT NOT NULL,
		PRIMARY KEY (run_id, idx)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_trials_status ON trials(run_id, status)`,
}

// SQLiteSink stores histories in SQLite, one run per sink. Trials are
// append-only: a save only inserts the records past the highest stored
// index of the run.
type SQLiteSink struct {
	db     *sql.DB
	runID  string
	logger logrus.FieldLogger
}

// NewSQLiteSink opens (or creates) the database at path and migrates it.
// Use ":memory:" for an in-memory database (useful in tests). An empty runID
// gets a fresh UUID.
func NewSQLiteSink(ctx context.Context, path, runID string, logger logrus.FieldLogger) (*SQLiteSink, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	// A single connection keeps ":memory:" databases alive and serializes
	// writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()

		return nil, fmt.Errorf("pragma wal: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()

			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	if runID == "" {
		runID = uuid.NewString()
	}

	return &SQLiteSink{
		db:     db,
		runID:  runID,
		logger: logger.WithField("component", "checkpoint"),
	}, nil
}

// RunID returns the run the sink writes to.
func (s *SQLiteSink) RunID() string {
	return s.runID
}

// Close closes the underlying database connection.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}

// Save implements horunner.Checkpointer.
func (s *SQLiteSink) Save(ctx context.Context, history []horunner.TrialRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO runs (id, created_at) VALUES (?, ?)`,
		s.runID, time.Now().UTC().Format(timeLayout),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	var maxIdx sql.NullInt64
	if err := tx.QueryRowContext(ctx,
		`SELECT MAX(idx) FROM trials WHERE run_id = ?`, s.runID,
	).Scan(&maxIdx); err != nil {
		return fmt.Errorf("max idx: %w", err)
	}

	next := 0
	if maxIdx.Valid {
		next = int(maxIdx.Int64) + 1
	}

	inserted := 0

	for _, t := range history {
		if t.Index < next {
			continue
		}

		params, err := json.Marshal(t.Params)
		if err != nil {
			return fmt.Errorf("marshal params of trial %d: %w", t.Index, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO trials (run_id, idx, id, slot, params, status, loss, loss_variance, started_at, finished_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			s.runID, t.Index, t.ID, t.Slot, string(params), string(t.Result.Status),
			nullFloat(t.Result.Loss), nullFloat(t.Result.LossVariance),
			t.StartedAt.Format(timeLayout), t.FinishedAt.Format(timeLayout),
		); err != nil {
			return fmt.Errorf("insert trial %d: %w", t.Index, err)
		}

		inserted++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"run_id": s.runID, "inserted": inserted}).Debug("checkpoint saved")

	return nil
}

// Load returns the trials of runID in index order.
func (s *SQLiteSink) Load(ctx context.Context, runID string) ([]horunner.TrialRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, id, slot, params, status, loss, loss_variance, started_at, finished_at
		 FROM trials WHERE run_id = ? ORDER BY idx`, runID)
	if err != nil {
		return nil, fmt.Errorf("select trials: %w", err)
	}
	defer rows.Close()

	var out []horunner.TrialRecord

	for rows.Next() {
		var (
			t                   horunner.TrialRecord
			params, status      string
			loss, lossVariance  sql.NullFloat64
			startedAt, finished string
		)

		if err := rows.Scan(&t.Index, &t.ID, &t.Slot, &params, &status, &loss, &lossVariance, &startedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan trial: %w", err)
		}

		if err := json.Unmarshal([]byte(params), &t.Params); err != nil {
			return nil, fmt.Errorf("unmarshal params of trial %d: %w", t.Index, err)
		}

		t.Result.Status = horunner.Status(status)
		t.Result.Loss = floatPtr(loss)
		t.Result.LossVariance = floatPtr(lossVariance)
		if t.StartedAt, err = time.Parse(timeLayout, startedAt); err != nil {
			return nil, fmt.Errorf("parse started_at of trial %d: %w", t.Index, err)
		}

		if t.FinishedAt, err = time.Parse(timeLayout, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at of trial %d: %w", t.Index, err)
		}

		out = append(out, t)
	}

	return out, rows.Err()
}

// LoadLatest returns the trials of the most recently created run, or nil if
// the database holds no run.
func (s *SQLiteSink) LoadLatest(ctx context.Context) ([]horunner.TrialRecord, error) {
	var runID string

	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM runs ORDER BY created_at DESC, rowid DESC LIMIT 1`,
	).Scan(&runID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("latest run: %w", err)
	}

	return s.Load(ctx, runID)
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}

	return sql.NullFloat64{Float64: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}

	f := v.Float64

	return &f
}
