package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// TaskSource identifies what ingress created a Task.
type TaskSource string

const (
	SourceLocal     TaskSource = "Local"
	SourceRemote    TaskSource = "Remote"
	SourceScheduled TaskSource = "Scheduled"
)

// TaskStatus is a Task's lifecycle state (spec.md §3). A task never
// mutates after reaching a terminal status.
type TaskStatus string

const (
	StatusPending   TaskStatus = "Pending"
	StatusRunning   TaskStatus = "Running"
	StatusCompleted TaskStatus = "Completed"
	StatusFailed    TaskStatus = "Failed"
	StatusCancelled TaskStatus = "Cancelled"
)

// Terminal reports whether status is one the loop will never leave.
func (s TaskStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// Task is the persisted record of one natural-language task.
type Task struct {
	ID          string
	Input       string
	Source      TaskSource
	Status      TaskStatus
	CreatedAt   int64
	CompletedAt *int64
}

var ErrTaskNotFound = errors.New("store: task not found")

// CreateTask inserts a new task in Pending status.
func (s *Store) CreateTask(ctx context.Context, t Task) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, input, source, status, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Input, string(t.Source), string(t.Status), t.CreatedAt, t.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("store: create task: %w", err)
	}
	return nil
}

// UpdateTaskStatus transitions a task's status, setting completedAt when
// the new status is terminal.
func (s *Store) UpdateTaskStatus(ctx context.Context, id string, status TaskStatus, completedAt *int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, completed_at = ? WHERE id = ?`,
		string(status), completedAt, id,
	)
	if err != nil {
		return fmt.Errorf("store: update task status: %w", err)
	}
	return nil
}

// GetTask returns a task by id.
func (s *Store) GetTask(ctx context.Context, id string) (Task, error) {
	var t Task
	var source, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, input, source, status, created_at, completed_at FROM tasks WHERE id = ?`, id,
	).Scan(&t.ID, &t.Input, &source, &status, &t.CreatedAt, &t.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrTaskNotFound
	}
	if err != nil {
		return Task{}, fmt.Errorf("store: get task: %w", err)
	}
	t.Source = TaskSource(source)
	t.Status = TaskStatus(status)
	return t, nil
}

// ListTasks returns the most recently created tasks, optionally filtered
// by status. A zero-value status means no filter.
func (s *Store) ListTasks(ctx context.Context, status TaskStatus, limit int) ([]Task, error) {
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, input, source, status, created_at, completed_at
			 FROM tasks WHERE status = ? ORDER BY created_at DESC LIMIT ?`,
			string(status), limit,
		)
	} else {
		rows, err = s.db.QueryContext(ctx,
			`SELECT id, input, source, status, created_at, completed_at
			 FROM tasks ORDER BY created_at DESC LIMIT ?`, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("store: list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		var t Task
		var source, st string
		if err := rows.Scan(&t.ID, &t.Input, &source, &st, &t.CreatedAt, &t.CompletedAt); err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		t.Source = TaskSource(source)
		t.Status = TaskStatus(st)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
