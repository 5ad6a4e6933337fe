package store

import (
	"context"
	"fmt"
)

// StepType is the kind of one TaskStep (spec.md §3).
type StepType string

const (
	StepThought     StepType = "Thought"
	StepToolCall    StepType = "ToolCall"
	StepObservation StepType = "Observation"
	StepFinalAnswer StepType = "FinalAnswer"
)

// TaskStep is one append-only entry in a task's loop trace.
type TaskStep struct {
	TaskID    string
	Index     int
	StepType  StepType
	Content   string
	CreatedAt int64
}

// AppendStep inserts a step and indexes it into task_steps_fts in the
// same transaction, keeping the FTS table in sync with the base table
// (original_source/engine/src/db/mod.rs asserts this invariant).
func (s *Store) AppendStep(ctx context.Context, step TaskStep) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: append step: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO task_steps (task_id, idx, step_type, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		step.TaskID, step.Index, string(step.StepType), step.Content, step.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("store: insert step: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO task_steps_fts (task_id, idx, content) VALUES (?, ?, ?)`,
		step.TaskID, step.Index, step.Content,
	)
	if err != nil {
		return fmt.Errorf("store: index step: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: append step: commit: %w", err)
	}
	return nil
}

// ListSteps returns all steps for a task in order.
func (s *Store) ListSteps(ctx context.Context, taskID string) ([]TaskStep, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, idx, step_type, content, created_at
		 FROM task_steps WHERE task_id = ? ORDER BY idx ASC`, taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list steps: %w", err)
	}
	defer rows.Close()

	var steps []TaskStep
	for rows.Next() {
		var st TaskStep
		var stepType string
		if err := rows.Scan(&st.TaskID, &st.Index, &stepType, &st.Content, &st.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan step: %w", err)
		}
		st.StepType = StepType(stepType)
		steps = append(steps, st)
	}
	return steps, rows.Err()
}

// EpisodicHit is one ranked result from a full-text episodic search.
type EpisodicHit struct {
	TaskID  string
	Index   int
	Content string
	Rank    float64
}

// SearchEpisodes performs a BM25-ranked full-text search over all task
// steps ever recorded, scoped to a single task's own history. Episodic
// memory recalls within one task, never across tasks (spec.md §6).
func (s *Store) SearchEpisodes(ctx context.Context, taskID, query string, topK int) ([]EpisodicHit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT task_id, idx, content, bm25(task_steps_fts) AS rank
		 FROM task_steps_fts
		 WHERE task_steps_fts MATCH ? AND task_id = ?
		 ORDER BY rank LIMIT ?`,
		query, taskID, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("store: search episodes: %w", err)
	}
	defer rows.Close()

	var hits []EpisodicHit
	for rows.Next() {
		var h EpisodicHit
		if err := rows.Scan(&h.TaskID, &h.Index, &h.Content, &h.Rank); err != nil {
			return nil, fmt.Errorf("store: scan episode: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
