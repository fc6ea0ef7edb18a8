package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Store wraps the Postgres connection used by all persistence in the system.
type Store struct {
	DB *sql.DB
}

// Run statuses.
const (
	RunStatusScheduled = "scheduled"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// ContextMap is a session's context mapping. Key order is the order the keys
// were first written, which is what keeps the Q/A history ordered across
// snapshot round-trips (a plain map would shuffle it).
type ContextMap = orderedmap.OrderedMap[string, string]

// NewContextMap returns an empty context mapping.
func NewContextMap() *ContextMap {
	return orderedmap.New[string, string]()
}

type Run struct {
	ID         string     `json:"id"`
	JobType    string     `json:"job_type"`
	Status     string     `json:"status"`
	Error      *string    `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Task is one unit of requested work tied to a Run, e.g. an on-demand ingest.
type Task struct {
	ID      string  `json:"id"`
	RunID   string  `json:"run_id"`
	Kind    string  `json:"kind"`
	Payload string  `json:"payload,omitempty"`
	Status  string  `json:"status,omitempty"`
	Detail  *string `json:"detail,omitempty"`
}

type Report struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Document struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type Insight struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	Summary    string    `json:"summary"`
	CreatedAt  time.Time `json:"created_at"`
}

// ContextSnapshot is one immutable copy of a session's full context mapping.
type ContextSnapshot struct {
	ID          string          `json:"id"`
	SessionID   string          `json:"session_id"`
	Context     json.RawMessage `json:"context"`
	LastUpdated time.Time       `json:"last_updated"`
}

// New constructs the Store from a Postgres DSN.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// User operations

func (s *Store) CreateUser(ctx context.Context, email, hash, role string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO users (email, password_hash, role) VALUES ($1,$2,$3) RETURNING id`, email, hash, role).Scan(&id)
	return id, err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id, hash, role string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash, role FROM users WHERE email=$1`, email).Scan(&id, &hash, &role)
	return
}

func (s *Store) UpdateUserPassword(ctx context.Context, email, hash string) error {
	res, err := s.DB.ExecContext(ctx, `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE email=$1`, email, hash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Run operations

func (s *Store) CreateRun(ctx context.Context, jobType, status string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO runs (job_type, status) VALUES ($1,$2) RETURNING id`, jobType, status).Scan(&id)
	return id, err
}

func (s *Store) SetRunStatus(ctx context.Context, runID, status string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE runs SET status=$2 WHERE id=$1`, runID, status)
	return err
}

func (s *Store) FinishRun(ctx context.Context, runID, status string, errMsg *string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE runs SET status=$2, error=$3, finished_at=NOW() WHERE id=$1`, runID, status, errMsg)
	return err
}

func (s *Store) LatestRunTime(ctx context.Context, jobType string) (*time.Time, error) {
	var t time.Time
	err := s.DB.QueryRowContext(ctx, `SELECT started_at FROM runs WHERE job_type=$1 ORDER BY started_at DESC LIMIT 1`, jobType).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]Run, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, job_type, status, error, started_at, finished_at FROM runs ORDER BY started_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.JobType, &r.Status, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Task operations

func (s *Store) CreateTask(ctx context.Context, runID, kind, payload string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO tasks (run_id, kind, payload, status) VALUES ($1,$2,$3,'pending') RETURNING id`, runID, kind, payload).Scan(&id)
	return id, err
}

func (s *Store) SetTaskStatus(ctx context.Context, taskID, status string, detail *string) error {
	_, err := s.DB.ExecContext(ctx, `UPDATE tasks SET status=$2, detail=$3 WHERE id=$1`, taskID, status, detail)
	return err
}

func (s *Store) GetTask(ctx context.Context, taskID string) (Task, error) {
	var t Task
	err := s.DB.QueryRowContext(ctx, `SELECT id, run_id, kind, payload, status, detail FROM tasks WHERE id=$1`, taskID).
		Scan(&t.ID, &t.RunID, &t.Kind, &t.Payload, &t.Status, &t.Detail)
	return t, err
}

// Report operations

func (s *Store) CreateReport(ctx context.Context, kind, content string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO reports (kind, content) VALUES ($1,$2) RETURNING id`, kind, content).Scan(&id)
	return id, err
}

// ListReports returns reports newest first, optionally filtered by kind and
// by a case-insensitive substring over content.
func (s *Store) ListReports(ctx context.Context, kind, search string) ([]Report, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, kind, content, created_at FROM reports ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.ID, &r.Kind, &r.Content, &r.CreatedAt); err != nil {
			return nil, err
		}
		if kind != "" && r.Kind != kind {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(r.Content), strings.ToLower(search)) {
			continue
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListReportDates returns every report's (kind, created_at) oldest first,
// for the per-day insight series.
func (s *Store) ListReportDates(ctx context.Context) ([]Report, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT kind, created_at FROM reports ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Report
	for rows.Next() {
		var r Report
		if err := rows.Scan(&r.Kind, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Document and insight operations

func (s *Store) CreateDocument(ctx context.Context, source, title, url, content string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO documents (source, title, url, content) VALUES ($1,$2,$3,$4) RETURNING id`, source, title, url, content).Scan(&id)
	return id, err
}

func (s *Store) CreateInsight(ctx context.Context, documentID, summary string) (string, error) {
	var id string
	err := s.DB.QueryRowContext(ctx, `INSERT INTO insights (document_id, summary) VALUES ($1,$2) RETURNING id`, documentID, summary).Scan(&id)
	return id, err
}

func (s *Store) ListInsights(ctx context.Context, limit, offset int) ([]Insight, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, document_id, summary, created_at FROM insights ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Insight
	for rows.Next() {
		var i Insight
		if err := rows.Scan(&i.ID, &i.DocumentID, &i.Summary, &i.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, rows.Err()
}

// Context memory operations. Snapshots are append-only: every save inserts a
// new row and the current context is the newest row's full mapping.

func (s *Store) LatestContext(ctx context.Context, sessionID string) (*ContextMap, error) {
	var raw []byte
	err := s.DB.QueryRowContext(ctx, `SELECT context_data FROM context_memory WHERE session_id=$1 ORDER BY last_updated DESC, id DESC LIMIT 1`, sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return NewContextMap(), nil
	}
	if err != nil {
		return nil, err
	}
	cm := NewContextMap()
	if err := json.Unmarshal(raw, cm); err != nil {
		return nil, fmt.Errorf("decode context snapshot: %w", err)
	}
	return cm, nil
}

// SaveContext appends a new snapshot. Unlike the pipeline's best-effort save
// this propagates write failures to the caller.
func (s *Store) SaveContext(ctx context.Context, sessionID string, data *ContextMap) error {
	if data == nil {
		data = NewContextMap()
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode context snapshot: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `INSERT INTO context_memory (session_id, context_data) VALUES ($1,$2)`, sessionID, raw)
	return err
}

func (s *Store) ContextHistory(ctx context.Context, sessionID string) ([]ContextSnapshot, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, session_id, context_data, last_updated FROM context_memory WHERE session_id=$1 ORDER BY last_updated ASC, id ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

// SearchContext is a naive case-insensitive substring scan over every
// serialized snapshot across all sessions. O(snapshots x snapshot size);
// acceptable only because volumes are small.
func (s *Store) SearchContext(ctx context.Context, query string, topK int) ([]ContextSnapshot, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, session_id, context_data, last_updated FROM context_memory ORDER BY last_updated ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	all, err := scanSnapshots(rows)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	var out []ContextSnapshot
	for _, snap := range all {
		if len(out) >= topK {
			break
		}
		if strings.Contains(strings.ToLower(string(snap.Context)), needle) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func scanSnapshots(rows *sql.Rows) ([]ContextSnapshot, error) {
	var out []ContextSnapshot
	for rows.Next() {
		var snap ContextSnapshot
		var raw []byte
		if err := rows.Scan(&snap.ID, &snap.SessionID, &raw, &snap.LastUpdated); err != nil {
			return nil, err
		}
		snap.Context = json.RawMessage(raw)
		out = append(out, snap)
	}
	return out, rows.Err()
}
