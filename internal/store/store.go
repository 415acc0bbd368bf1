// Package store persists the relationship ledger, the task inventory and
// the memory store behind the assistant's executor bridge.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const (
	driver = "sqlite"
	dsnOpt = "?_pragma=busy_timeout(3000)&_pragma=journal_mode(WAL)"
)

// Relationship is one ledger entry.
type Relationship struct {
	PersonName  string `json:"person_name"`
	Category    string `json:"category,omitempty"`
	Relation    string `json:"relation,omitempty"`
	StatusLevel string `json:"status_level"`
	Notes       string `json:"notes"`
	UpdatedAt   time.Time
}

// Task is one inventory entry.
type Task struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	TaskType        string `json:"task_type"`
	DurationMinutes int    `json:"duration_minutes"`
	Priority        string `json:"priority"`
	Category        string `json:"category"`
	Time            string `json:"time,omitempty"`
	Date            string `json:"date,omitempty"`
	Recurrence      string `json:"recurrence,omitempty"`
	CreatedAt       time.Time
}

// Memory is one saved memory entry.
type Memory struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	Kind      string `json:"kind"`
	CreatedAt time.Time
}

// Proposal is one accepted orchestration proposal.
type Proposal struct {
	ID        string
	Timeline  string
	Reasoning string
	Schedule  string // JSON-encoded schedule entries
	CreatedAt time.Time
}

// Store is a sqlite-backed data layer for all three collaborators.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("store: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create dir: %w", err)
	}
	db, err := sql.Open(driver, path+dsnOpt)
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	st := &Store{db: db}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS relationships (
	person_name  TEXT PRIMARY KEY,
	category     TEXT NOT NULL DEFAULT '',
	relation     TEXT NOT NULL DEFAULT '',
	status_level TEXT NOT NULL DEFAULT '',
	notes        TEXT NOT NULL DEFAULT '',
	updated_at   INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	task_type        TEXT NOT NULL,
	duration_minutes INTEGER NOT NULL DEFAULT 0,
	priority         TEXT NOT NULL DEFAULT 'medium',
	category         TEXT NOT NULL DEFAULT 'personal',
	time             TEXT NOT NULL DEFAULT '',
	date             TEXT NOT NULL DEFAULT '',
	recurrence       TEXT NOT NULL DEFAULT '',
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tasks_date ON tasks(date);
CREATE INDEX IF NOT EXISTS idx_tasks_title ON tasks(title);
CREATE TABLE IF NOT EXISTS memories (
	id         TEXT PRIMARY KEY,
	content    TEXT NOT NULL,
	kind       TEXT NOT NULL DEFAULT 'fact',
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS proposals (
	id         TEXT PRIMARY KEY,
	timeline   TEXT NOT NULL,
	reasoning  TEXT NOT NULL,
	schedule   TEXT NOT NULL,
	created_at INTEGER NOT NULL
);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Relationships returns the full ledger ordered by person name.
func (s *Store) Relationships(ctx context.Context) ([]Relationship, error) {
	const q = `SELECT person_name, category, relation, status_level, notes, updated_at
FROM relationships ORDER BY person_name`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list relationships: %w", err)
	}
	defer rows.Close()
	out := []Relationship{}
	for rows.Next() {
		var r Relationship
		var updated int64
		if err := rows.Scan(&r.PersonName, &r.Category, &r.Relation, &r.StatusLevel, &r.Notes, &updated); err != nil {
			return nil, fmt.Errorf("store: scan relationship: %w", err)
		}
		r.UpdatedAt = time.UnixMilli(updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpsertRelationship creates or updates one ledger entry. New notes are
// appended to existing ones; empty update fields keep the stored values.
func (s *Store) UpsertRelationship(ctx context.Context, r Relationship) error {
	if strings.TrimSpace(r.PersonName) == "" {
		return fmt.Errorf("store: person name is required")
	}
	const q = `
INSERT INTO relationships (person_name, category, relation, status_level, notes, updated_at)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(person_name) DO UPDATE SET
	category = CASE WHEN excluded.category != '' THEN excluded.category ELSE relationships.category END,
	relation = CASE WHEN excluded.relation != '' THEN excluded.relation ELSE relationships.relation END,
	status_level = CASE WHEN excluded.status_level != '' THEN excluded.status_level ELSE relationships.status_level END,
	notes = CASE
		WHEN excluded.notes = '' THEN relationships.notes
		WHEN relationships.notes = '' THEN excluded.notes
		ELSE relationships.notes || char(10) || excluded.notes
	END,
	updated_at = excluded.updated_at`
	_, err := s.db.ExecContext(ctx, q,
		r.PersonName, r.Category, r.Relation, r.StatusLevel, r.Notes, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: upsert relationship: %w", err)
	}
	return nil
}

// DeleteRelationship removes one ledger entry, reporting whether it existed.
func (s *Store) DeleteRelationship(ctx context.Context, personName string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM relationships WHERE person_name = ?`, personName)
	if err != nil {
		return false, fmt.Errorf("store: delete relationship: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Tasks returns the inventory, optionally filtered to one date.
func (s *Store) Tasks(ctx context.Context, date string) ([]Task, error) {
	q := `SELECT id, title, task_type, duration_minutes, priority, category, time, date, recurrence, created_at
FROM tasks`
	args := []any{}
	if strings.TrimSpace(date) != "" {
		q += ` WHERE date = ?`
		args = append(args, date)
	}
	q += ` ORDER BY date, time, created_at`
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()
	out := []Task{}
	for rows.Next() {
		var t Task
		var created int64
		if err := rows.Scan(&t.ID, &t.Title, &t.TaskType, &t.DurationMinutes,
			&t.Priority, &t.Category, &t.Time, &t.Date, &t.Recurrence, &created); err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		t.CreatedAt = time.UnixMilli(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

// AddTask inserts one task and returns it with its generated identifier.
func (s *Store) AddTask(ctx context.Context, t Task) (Task, error) {
	if strings.TrimSpace(t.Title) == "" {
		return Task{}, fmt.Errorf("store: task title is required")
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	const q = `INSERT INTO tasks (id, title, task_type, duration_minutes, priority, category, time, date, recurrence, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, t.ID, t.Title, t.TaskType, t.DurationMinutes,
		t.Priority, t.Category, t.Time, t.Date, t.Recurrence, t.CreatedAt.UnixMilli())
	if err != nil {
		return Task{}, fmt.Errorf("store: add task: %w", err)
	}
	return t, nil
}

// DeleteTaskByTitle removes tasks matching the title, reporting how many
// were removed.
func (s *Store) DeleteTaskByTitle(ctx context.Context, title string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE title = ?`, title)
	if err != nil {
		return 0, fmt.Errorf("store: delete task: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// MoveTasks reschedules every task whose title matches onto targetDate,
// reporting how many moved.
func (s *Store) MoveTasks(ctx context.Context, titles []string, targetDate string) (int64, error) {
	if len(titles) == 0 {
		return 0, nil
	}
	if strings.TrimSpace(targetDate) == "" {
		return 0, fmt.Errorf("store: target date is required")
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(titles)), ",")
	q := `UPDATE tasks SET date = ? WHERE title IN (` + placeholders + `)`
	args := make([]any, 0, len(titles)+1)
	args = append(args, targetDate)
	for _, title := range titles {
		args = append(args, title)
	}
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("store: move tasks: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SaveMemory inserts one memory entry.
func (s *Store) SaveMemory(ctx context.Context, m Memory) (Memory, error) {
	if strings.TrimSpace(m.Content) == "" {
		return Memory{}, fmt.Errorf("store: memory content is required")
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.Kind == "" {
		m.Kind = "fact"
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	const q = `INSERT INTO memories (id, content, kind, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, m.ID, m.Content, m.Kind, m.CreatedAt.UnixMilli()); err != nil {
		return Memory{}, fmt.Errorf("store: save memory: %w", err)
	}
	return m, nil
}

// Memories returns up to limit entries, newest first. Zero means all.
func (s *Store) Memories(ctx context.Context, limit int) ([]Memory, error) {
	q := `SELECT id, content, kind, created_at FROM memories ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list memories: %w", err)
	}
	defer rows.Close()
	out := []Memory{}
	for rows.Next() {
		var m Memory
		var created int64
		if err := rows.Scan(&m.ID, &m.Content, &m.Kind, &created); err != nil {
			return nil, fmt.Errorf("store: scan memory: %w", err)
		}
		m.CreatedAt = time.UnixMilli(created)
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveProposal persists one accepted orchestration proposal.
func (s *Store) SaveProposal(ctx context.Context, timeline, reasoning string, schedule any) (Proposal, error) {
	raw, err := json.Marshal(schedule)
	if err != nil {
		return Proposal{}, fmt.Errorf("store: encode schedule: %w", err)
	}
	p := Proposal{
		ID:        uuid.NewString(),
		Timeline:  timeline,
		Reasoning: reasoning,
		Schedule:  string(raw),
		CreatedAt: time.Now(),
	}
	const q = `INSERT INTO proposals (id, timeline, reasoning, schedule, created_at) VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, p.ID, p.Timeline, p.Reasoning, p.Schedule, p.CreatedAt.UnixMilli()); err != nil {
		return Proposal{}, fmt.Errorf("store: save proposal: %w", err)
	}
	return p, nil
}
