// Package store persists interview sessions to PostgreSQL.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" driver
	"github.com/pressly/goose/v3"

	"github.com/mbio-ai/interviewkit/pkg/interview/session"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// ErrNotFound is returned when a session id has no row.
var ErrNotFound = errors.New("session not found")

// Record is one persisted session.
type Record struct {
	ID             string              `json:"id"`
	Participant    string              `json:"participant"`
	State          string              `json:"state"`
	Phase          string              `json:"phase,omitempty"`
	AnsweredCount  int                 `json:"answered_count"`
	TotalQuestions int                 `json:"total_questions"`
	Answers        string              `json:"answers,omitempty"`
	Transcript     []session.Utterance `json:"transcript,omitempty"`
	Notes          []session.Note      `json:"notes,omitempty"`
	Error          string              `json:"error,omitempty"`
	StartedAt      time.Time           `json:"started_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
}

// Store wraps the sessions table.
type Store struct {
	db *sql.DB
}

// Open connects, verifies the connection, and applies pending migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store ping: %w", err)
	}

	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("postgres"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store migrate: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping reports connection health for readiness checks.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// CreateSession inserts a fresh session row.
func (s *Store) CreateSession(ctx context.Context, id, participant string, totalQuestions int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO interview_sessions (id, participant, state, total_questions, started_at)
		 VALUES ($1, $2, 'connecting', $3, $4)`,
		id, participant, totalQuestions, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// UpdateProgress refreshes the live fields of an active session.
func (s *Store) UpdateProgress(ctx context.Context, id, state, phase string, answered int) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE interview_sessions SET state = $1, phase = $2, answered_count = $3 WHERE id = $4`,
		state, phase, answered, id,
	)
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// SaveResult writes the completion payload and marks the session terminated.
func (s *Store) SaveResult(ctx context.Context, r session.Result) error {
	transcript, err := json.Marshal(r.Transcript)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}
	notes, err := json.Marshal(r.Notes)
	if err != nil {
		return fmt.Errorf("encode notes: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE interview_sessions
		 SET state = 'terminated', phase = $1, answered_count = $2, answers = $3,
		     transcript = $4, notes = $5, completed_at = $6
		 WHERE id = $7`,
		r.Phase, r.AnsweredCount, r.Answers, transcript, notes, time.Now().UTC(), r.SessionID,
	)
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	return nil
}

// MarkError records a session failure cause.
func (s *Store) MarkError(ctx context.Context, id, cause string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE interview_sessions SET state = 'error', error = $1 WHERE id = $2`,
		cause, id,
	)
	if err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	return nil
}

const recordColumns = `id, participant, state, COALESCE(phase, ''), answered_count, total_questions,
	COALESCE(answers, ''), transcript, notes, COALESCE(error, ''), started_at, completed_at`

// GetSession loads one session by id.
func (s *Store) GetSession(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM interview_sessions WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return rec, nil
}

// ListSessions returns the most recent sessions, newest first.
func (s *Store) ListSessions(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM interview_sessions ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list sessions: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*Record, error) {
	var (
		rec         Record
		transcript  []byte
		notes       []byte
		completedAt sql.NullTime
	)
	err := row.Scan(&rec.ID, &rec.Participant, &rec.State, &rec.Phase, &rec.AnsweredCount,
		&rec.TotalQuestions, &rec.Answers, &transcript, &notes, &rec.Error,
		&rec.StartedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	if len(transcript) > 0 {
		if err := json.Unmarshal(transcript, &rec.Transcript); err != nil {
			return nil, fmt.Errorf("decode transcript: %w", err)
		}
	}
	if len(notes) > 0 {
		if err := json.Unmarshal(notes, &rec.Notes); err != nil {
			return nil, fmt.Errorf("decode notes: %w", err)
		}
	}
	if completedAt.Valid {
		t := completedAt.Time
		rec.CompletedAt = &t
	}
	return &rec, nil
}
