package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/axiom/ucws/internal/database"
	"github.com/axiom/ucws/internal/models"
)

// PostgresStore keeps tasks in the code_tasks table
type PostgresStore struct {
	db *database.Postgres
}

// NewPostgresStore creates a store on an open pool
func NewPostgresStore(db *database.Postgres) *PostgresStore {
	return &PostgresStore{db: db}
}

const taskColumns = `id, type, context, description, status, status_reason, result_status, code_hash, created_at, updated_at`

func (s *PostgresStore) Save(ctx context.Context, t models.Task) error {
	query := `
		INSERT INTO code_tasks (` + taskColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			status_reason = EXCLUDED.status_reason,
			result_status = EXCLUDED.result_status,
			code_hash = EXCLUDED.code_hash,
			updated_at = EXCLUDED.updated_at
	`
	_, err := s.db.Pool().Exec(ctx, query,
		t.ID, t.Type, t.Context, t.Description, t.Status, t.StatusReason,
		t.ResultStatus, t.CodeHash, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM code_tasks WHERE id = $1`
	t, err := scanTask(s.db.Pool().QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return t, nil
}

func (s *PostgresStore) List(ctx context.Context, limit int) ([]models.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + taskColumns + ` FROM code_tasks ORDER BY created_at DESC, id LIMIT $1`
	rows, err := s.db.Pool().Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var out []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func scanTask(row pgx.Row) (*models.Task, error) {
	var t models.Task
	err := row.Scan(&t.ID, &t.Type, &t.Context, &t.Description, &t.Status, &t.StatusReason,
		&t.ResultStatus, &t.CodeHash, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
