// Package runstore persists pipeline runs and their event streams to SQLite.
// Live streaming happens in-process; the store exists so finished runs can be
// listed and replayed after the server restarts.
package runstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/joelkehle/research-agency/internal/events"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

type Run struct {
	RunID       string          `json:"run_id" db:"run_id"`
	Pipeline    string          `json:"pipeline" db:"pipeline"`
	Question    string          `json:"question" db:"question"`
	Status      string          `json:"status" db:"status"`
	Decision    string          `json:"decision,omitempty" db:"decision"`
	Result      json.RawMessage `json:"result,omitempty" db:"result"`
	Error       string          `json:"error,omitempty" db:"error"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id       TEXT PRIMARY KEY,
	pipeline     TEXT NOT NULL,
	question     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	decision     TEXT NOT NULL DEFAULT '',
	result       TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	created_at   TEXT NOT NULL,
	completed_at TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS run_events (
	run_id     TEXT NOT NULL,
	position   INTEGER NOT NULL,
	type       TEXT NOT NULL,
	payload    TEXT NOT NULL,
	created_at TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS counters (
	key   TEXT PRIMARY KEY,
	value INTEGER NOT NULL DEFAULT 0
);
`

type Store struct {
	db        *sqlx.DB
	mu        sync.Mutex
	nextRunID int64
}

func NewStore(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &Store{db: db, nextRunID: 1}
	var value int64
	err = db.Get(&value, "SELECT value FROM counters WHERE key = 'next_run_id'")
	if err == nil {
		s.nextRunID = value
	} else if !errors.Is(err, sql.ErrNoRows) {
		db.Close()
		return nil, fmt.Errorf("load counters: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) CreateRun(pipeline, question string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := Run{
		RunID:     fmt.Sprintf("run-%d", s.nextRunID),
		Pipeline:  pipeline,
		Question:  question,
		Status:    StatusRunning,
		CreatedAt: time.Now().UTC(),
	}
	_, err := s.db.Exec(`INSERT INTO runs (run_id, pipeline, question, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		run.RunID, run.Pipeline, run.Question, run.Status, timeToString(run.CreatedAt))
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	s.nextRunID++
	if _, err := s.db.Exec(`INSERT OR REPLACE INTO counters (key, value) VALUES ('next_run_id', ?)`, s.nextRunID); err != nil {
		return Run{}, fmt.Errorf("save counters: %w", err)
	}
	return run, nil
}

func (s *Store) AppendEvent(runID string, e events.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var position int64
	if err := s.db.Get(&position, `SELECT COALESCE(MAX(position)+1, 0) FROM run_events WHERE run_id = ?`, runID); err != nil {
		return fmt.Errorf("next position: %w", err)
	}
	_, err = s.db.Exec(`INSERT INTO run_events (run_id, position, type, payload, created_at) VALUES (?, ?, ?, ?, ?)`,
		runID, position, string(e.Type), string(payload), timeToString(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// Sink adapts a run to an events.Sink that records every event. Persistence
// failures are logged, never propagated into the pipeline.
func (s *Store) Sink(runID string) events.Sink {
	return func(e events.Event) {
		if err := s.AppendEvent(runID, e); err != nil {
			log.Printf("runstore append_failed run=%s type=%s err=%q", runID, e.Type, err.Error())
		}
	}
}

func (s *Store) CompleteRun(runID, decision string, result json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE runs SET status = ?, decision = ?, result = ?, completed_at = ? WHERE run_id = ?`,
		StatusCompleted, decision, string(result), timeToString(time.Now().UTC()), runID)
	if err != nil {
		return fmt.Errorf("complete run: %w", err)
	}
	return nil
}

func (s *Store) FailRun(runID, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE runs SET status = ?, error = ?, completed_at = ? WHERE run_id = ?`,
		StatusFailed, errMsg, timeToString(time.Now().UTC()), runID)
	if err != nil {
		return fmt.Errorf("fail run: %w", err)
	}
	return nil
}

func (s *Store) GetRun(runID string) (Run, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row runRow
	err := s.db.Get(&row, `SELECT run_id, pipeline, question, status, decision, result, error, created_at, completed_at FROM runs WHERE run_id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, false, nil
	}
	if err != nil {
		return Run{}, false, fmt.Errorf("get run: %w", err)
	}
	return row.toRun(), true, nil
}

func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []runRow
	err := s.db.Select(&rows, `SELECT run_id, pipeline, question, status, decision, result, error, created_at, completed_at FROM runs ORDER BY created_at DESC, run_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	runs := make([]Run, 0, len(rows))
	for _, row := range rows {
		runs = append(runs, row.toRun())
	}
	return runs, nil
}

func (s *Store) ListEvents(runID string) ([]events.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payloads []string
	err := s.db.Select(&payloads, `SELECT payload FROM run_events WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	out := make([]events.Event, 0, len(payloads))
	for _, p := range payloads {
		var e events.Event
		if err := json.Unmarshal([]byte(p), &e); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// runRow handles the TEXT timestamps and empty-string sentinels of the runs
// table before exposing a typed Run.
type runRow struct {
	RunID       string `db:"run_id"`
	Pipeline    string `db:"pipeline"`
	Question    string `db:"question"`
	Status      string `db:"status"`
	Decision    string `db:"decision"`
	Result      string `db:"result"`
	Error       string `db:"error"`
	CreatedAt   string `db:"created_at"`
	CompletedAt string `db:"completed_at"`
}

func (r runRow) toRun() Run {
	run := Run{
		RunID:    r.RunID,
		Pipeline: r.Pipeline,
		Question: r.Question,
		Status:   r.Status,
		Decision: r.Decision,
		Error:    r.Error,
	}
	if r.Result != "" {
		run.Result = json.RawMessage(r.Result)
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, r.CreatedAt)
	if r.CompletedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, r.CompletedAt)
		if err == nil {
			run.CompletedAt = &t
		}
	}
	return run
}

func timeToString(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
