package taskqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the durable Task-store adapter, grounded on the
// teacher's repository.RunRepository: raw SQL over a pgxpool, every query
// wrapped with fmt.Errorf("...: %w", err).
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool. The task table must already
// exist; this adapter issues no DDL.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Create(ctx context.Context, task *HumanTask) error {
	if task.Status == "" {
		task.Status = StatusPending
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	task.UpdatedAt = task.CreatedAt

	inputs, err := json.Marshal(task.Inputs)
	if err != nil {
		return fmt.Errorf("marshal task inputs: %w", err)
	}
	formSchema, err := json.Marshal(task.FormSchema)
	if err != nil {
		return fmt.Errorf("marshal task form schema: %w", err)
	}

	query := `
		INSERT INTO human_task (
			id, activity_id, activity_name, token_id, workflow_id, status,
			priority, role_id, assignee_id, created_by, assigned_by,
			inputs, form_schema, tags, created_at, updated_at, due_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
	`
	_, err = s.pool.Exec(ctx, query,
		task.ID, task.ActivityID, task.ActivityName, task.TokenID, task.WorkflowID,
		task.Status, task.Priority, task.RoleID, task.AssigneeID, task.CreatedBy, task.AssignedBy,
		inputs, formSchema, task.Tags, task.CreatedAt, task.UpdatedAt, task.DueAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create human task: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*HumanTask, error) {
	query := `
		SELECT id, activity_id, activity_name, token_id, workflow_id, status,
		       priority, role_id, assignee_id, created_by, assigned_by,
		       inputs, outputs, form_schema, tags, created_at, updated_at, due_at
		FROM human_task WHERE id = $1
	`
	row := s.pool.QueryRow(ctx, query, id)
	t, err := scanTask(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, &NotFoundError{TaskID: id}
		}
		return nil, fmt.Errorf("failed to get human task: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) List(ctx context.Context, filters Filters) ([]*HumanTask, error) {
	query := `
		SELECT id, activity_id, activity_name, token_id, workflow_id, status,
		       priority, role_id, assignee_id, created_by, assigned_by,
		       inputs, outputs, form_schema, tags, created_at, updated_at, due_at
		FROM human_task
		WHERE ($1 = '' OR workflow_id = $1)
		  AND ($2 = '' OR role_id = $2)
		  AND ($3 = '' OR assignee_id = $3)
		  AND ($4 = '' OR status = $4)
		ORDER BY
			CASE priority WHEN 'critical' THEN 3 WHEN 'high' THEN 2 WHEN 'normal' THEN 1 ELSE 0 END DESC,
			created_at ASC
	`
	rows, err := s.pool.Query(ctx, query, filters.WorkflowID, filters.RoleID, filters.AssigneeID, string(filters.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to list human tasks: %w", err)
	}
	defer rows.Close()

	var out []*HumanTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan human task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating human tasks: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) PendingByRole(ctx context.Context, roleID string) ([]*HumanTask, error) {
	return s.List(ctx, Filters{RoleID: roleID, Status: StatusPending})
}

func (s *PostgresStore) transition(ctx context.Context, id string, to Status, extra string, args ...interface{}) error {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Status == to {
		return nil
	}
	if !validTransition(existing.Status, to) {
		return &TaskTransitionError{TaskID: id, From: existing.Status, To: to}
	}

	query := fmt.Sprintf(`UPDATE human_task SET status = $1, updated_at = $2 %s WHERE id = $3`, extra)
	allArgs := append([]interface{}{to, time.Now()}, args...)
	allArgs = append(allArgs, id)

	_, err = s.pool.Exec(ctx, query, allArgs...)
	if err != nil {
		return fmt.Errorf("failed to transition human task %q to %s: %w", id, to, err)
	}
	return nil
}

func (s *PostgresStore) Assign(ctx context.Context, id, userID, assignedBy string) error {
	return s.transition(ctx, id, StatusAssigned, ", assignee_id = $4, assigned_by = $5", userID, assignedBy)
}

func (s *PostgresStore) Start(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusInProgress, "")
}

func (s *PostgresStore) Complete(ctx context.Context, id string, outputs map[string]interface{}) error {
	raw, err := json.Marshal(outputs)
	if err != nil {
		return fmt.Errorf("marshal task outputs: %w", err)
	}
	return s.transition(ctx, id, StatusCompleted, ", outputs = $4", raw)
}

func (s *PostgresStore) Reject(ctx context.Context, id string, reason string) error {
	raw, err := json.Marshal(map[string]interface{}{"rejection_reason": reason})
	if err != nil {
		return fmt.Errorf("marshal rejection outputs: %w", err)
	}
	return s.transition(ctx, id, StatusRejected, ", outputs = $4", raw)
}

func (s *PostgresStore) Expire(ctx context.Context, id string) error {
	return s.transition(ctx, id, StatusExpired, "")
}

func (s *PostgresStore) ExpireOverdue(ctx context.Context, now time.Time) ([]*HumanTask, error) {
	query := `
		UPDATE human_task
		SET status = 'expired', updated_at = $1
		WHERE status IN ('pending', 'assigned', 'in_progress') AND due_at IS NOT NULL AND due_at < $1
		RETURNING id, activity_id, activity_name, token_id, workflow_id, status,
		          priority, role_id, assignee_id, created_by, assigned_by,
		          inputs, outputs, form_schema, tags, created_at, updated_at, due_at
	`
	rows, err := s.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to expire overdue human tasks: %w", err)
	}
	defer rows.Close()

	var out []*HumanTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expired human task: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row rowScanner) (*HumanTask, error) {
	t := &HumanTask{}
	var inputsRaw, outputsRaw, formSchemaRaw []byte
	err := row.Scan(
		&t.ID, &t.ActivityID, &t.ActivityName, &t.TokenID, &t.WorkflowID, &t.Status,
		&t.Priority, &t.RoleID, &t.AssigneeID, &t.CreatedBy, &t.AssignedBy,
		&inputsRaw, &outputsRaw, &formSchemaRaw, &t.Tags, &t.CreatedAt, &t.UpdatedAt, &t.DueAt,
	)
	if err != nil {
		return nil, err
	}
	if len(inputsRaw) > 0 {
		if err := json.Unmarshal(inputsRaw, &t.Inputs); err != nil {
			return nil, fmt.Errorf("unmarshal task inputs: %w", err)
		}
	}
	if len(outputsRaw) > 0 {
		if err := json.Unmarshal(outputsRaw, &t.Outputs); err != nil {
			return nil, fmt.Errorf("unmarshal task outputs: %w", err)
		}
	}
	if len(formSchemaRaw) > 0 {
		if err := json.Unmarshal(formSchemaRaw, &t.FormSchema); err != nil {
			return nil, fmt.Errorf("unmarshal task form schema: %w", err)
		}
	}
	return t, nil
}
