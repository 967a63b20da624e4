package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrRunNotFound is returned when no run matches the requested id.
var ErrRunNotFound = errors.New("run not found")

// RunStore keeps finished runs in a SQLite database.
type RunStore struct {
	db *sqlx.DB
}

// RunSummary is one row of ListRuns.
type RunSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Question  string    `json:"question"`
	Locale    string    `json:"locale"`
	Status    string    `json:"status"`
	StepCount int       `json:"step_count"`
}

type runRow struct {
	ID        string `db:"id"`
	CreatedAt string `db:"created_at"`
	Question  string `db:"question"`
	Locale    string `db:"locale"`
	Status    string `db:"status"`
	StepCount int    `db:"step_count"`
	Record    string `db:"record"`
}

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

func NewRunStore(dbPath string) (*RunStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	queries := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			question TEXT NOT NULL,
			locale TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT '',
			step_count INTEGER NOT NULL DEFAULT 0,
			record TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs (created_at);`,
	}
	for _, q := range queries {
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("init run store: %w", err)
		}
	}

	return &RunStore{db: db}, nil
}

// SaveRun validates rec and stores it under a fresh id. status is the final
// researcher status of the run.
func (s *RunStore) SaveRun(ctx context.Context, rec RunRecord, status string) (string, error) {
	if err := rec.Validate(); err != nil {
		return "", fmt.Errorf("refusing to persist invalid record: %w", err)
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode record: %w", err)
	}

	row := runRow{
		ID:        uuid.NewString(),
		CreatedAt: rec.Timestamp.UTC().Format(time.RFC3339Nano),
		Question:  rec.Question,
		Locale:    rec.Locale,
		Status:    status,
		StepCount: len(rec.Plan.Steps),
		Record:    string(payload),
	}
	_, err = s.db.NamedExecContext(ctx, `
		INSERT INTO runs (id, created_at, question, locale, status, step_count, record)
		VALUES (:id, :created_at, :question, :locale, :status, :step_count, :record)
	`, row)
	if err != nil {
		return "", err
	}
	return row.ID, nil
}

// ListRuns returns the most recent runs first. limit <= 0 lists everything.
func (s *RunStore) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	var rows []runRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, created_at, question, locale, status, step_count
		FROM runs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	runs := make([]RunSummary, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, RunSummary{
			ID:        r.ID,
			CreatedAt: parseTime(r.CreatedAt),
			Question:  r.Question,
			Locale:    r.Locale,
			Status:    r.Status,
			StepCount: r.StepCount,
		})
	}
	return runs, nil
}

// GetRun loads the record stored under id.
func (s *RunStore) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	var payload string
	err := s.db.GetContext(ctx, &payload, `SELECT record FROM runs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return ParseRecord([]byte(payload))
}

func (s *RunStore) Close() error {
	return s.db.Close()
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
