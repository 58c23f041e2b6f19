package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("consultation not found")

// ErrFinished is returned when updating a consultation that already reached
// a final status.
var ErrFinished = errors.New("consultation already finished")

type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Final reports whether no further transition is allowed.
func (s Status) Final() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

type Consultation struct {
	ID             string       `json:"id"`
	Crew           string       `json:"crew"`
	Mode           string       `json:"mode"`
	Gender         string       `json:"gender"`
	Age            int          `json:"age"`
	Symptoms       string       `json:"symptoms"`
	MedicalHistory string       `json:"medical_history"`
	Status         Status       `json:"status"`
	Output         string       `json:"output,omitempty"`
	Error          string       `json:"error,omitempty"`
	Tasks          []TaskOutput `json:"tasks,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// TaskOutput is one task's contribution to a completed consultation.
type TaskOutput struct {
	Task     string        `json:"task"`
	Agent    string        `json:"agent"`
	Output   string        `json:"output"`
	Duration time.Duration `json:"duration"`
}

// Create inserts c as pending. An empty ID gets a fresh uuid.
func (db *DB) Create(c *Consultation) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Mode == "" {
		c.Mode = "api"
	}
	now := time.Now().UTC()
	c.Status = StatusPending
	c.CreatedAt, c.UpdatedAt = now, now

	db.mu.Lock()
	defer db.mu.Unlock()
	_, err := db.conn.Exec(`
		INSERT INTO consultations (id, crew, mode, gender, age, symptoms, medical_history, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, c.ID, c.Crew, c.Mode, c.Gender, c.Age, c.Symptoms, c.MedicalHistory, string(c.Status), formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("insert consultation: %w", err)
	}
	return nil
}

func (db *DB) MarkRunning(id string) error {
	return db.transition(id, StatusRunning, "", "")
}

// Complete stores the final output and the per-task outputs.
func (db *DB) Complete(id, output string, tasks []TaskOutput) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := transitionTx(tx, id, StatusCompleted, output, ""); err != nil {
		tx.Rollback()
		return err
	}
	for i, t := range tasks {
		if _, err := tx.Exec(`
			INSERT INTO task_outputs (consultation_id, seq, task, agent, output, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, i, t.Task, t.Agent, t.Output, t.Duration.Milliseconds()); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert task output: %w", err)
		}
	}
	return tx.Commit()
}

func (db *DB) Fail(id, msg string) error {
	return db.transition(id, StatusFailed, "", msg)
}

func (db *DB) Cancel(id, reason string) error {
	return db.transition(id, StatusCanceled, "", reason)
}

func (db *DB) transition(id string, to Status, output, msg string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := transitionTx(tx, id, to, output, msg); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func transitionTx(tx *sql.Tx, id string, to Status, output, msg string) error {
	var cur string
	err := tx.QueryRow("SELECT status FROM consultations WHERE id = ?", id).Scan(&cur)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if Status(cur).Final() {
		return fmt.Errorf("%w: %s is %s", ErrFinished, id, cur)
	}
	if _, err := tx.Exec(`
		UPDATE consultations SET status = ?, output = ?, error = ?, updated_at = ? WHERE id = ?
	`, string(to), output, msg, formatTime(time.Now()), id); err != nil {
		return fmt.Errorf("update consultation: %w", err)
	}
	return nil
}

const selectConsultation = `
	SELECT id, crew, mode, gender, age, symptoms, medical_history, status, output, error, created_at, updated_at
	FROM consultations`

type scanner interface {
	Scan(dest ...any) error
}

func scanConsultation(s scanner) (*Consultation, error) {
	var c Consultation
	var status, created, updated string
	if err := s.Scan(&c.ID, &c.Crew, &c.Mode, &c.Gender, &c.Age, &c.Symptoms, &c.MedicalHistory,
		&status, &c.Output, &c.Error, &created, &updated); err != nil {
		return nil, err
	}
	c.Status = Status(status)
	var err error
	if c.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if c.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &c, nil
}

// Get returns the consultation with its task outputs.
func (db *DB) Get(id string) (*Consultation, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	c, err := scanConsultation(db.conn.QueryRow(selectConsultation+" WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get consultation: %w", err)
	}

	rows, err := db.conn.Query(`
		SELECT task, agent, output, duration_ms FROM task_outputs
		WHERE consultation_id = ? ORDER BY seq
	`, id)
	if err != nil {
		return nil, fmt.Errorf("get task outputs: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var t TaskOutput
		var ms int64
		if err := rows.Scan(&t.Task, &t.Agent, &t.Output, &ms); err != nil {
			return nil, fmt.Errorf("scan task output: %w", err)
		}
		t.Duration = time.Duration(ms) * time.Millisecond
		c.Tasks = append(c.Tasks, t)
	}
	return c, rows.Err()
}

// List returns the most recent consultations first, without task outputs.
func (db *DB) List(limit int) ([]*Consultation, error) {
	if limit <= 0 {
		limit = 50
	}
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(selectConsultation+" ORDER BY created_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("list consultations: %w", err)
	}
	defer rows.Close()

	var out []*Consultation
	for rows.Next() {
		c, err := scanConsultation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consultation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes finished consultations older than d.
func (db *DB) PurgeOlderThan(d time.Duration) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	cutoff := formatTime(time.Now().Add(-d))
	if _, err := db.conn.Exec(`
		DELETE FROM task_outputs WHERE consultation_id IN (
			SELECT id FROM consultations WHERE created_at < ? AND status IN ('completed', 'failed', 'canceled')
		)`, cutoff); err != nil {
		return 0, fmt.Errorf("purge task outputs: %w", err)
	}
	res, err := db.conn.Exec(`
		DELETE FROM consultations WHERE created_at < ? AND status IN ('completed', 'failed', 'canceled')
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge consultations: %w", err)
	}
	return res.RowsAffected()
}
