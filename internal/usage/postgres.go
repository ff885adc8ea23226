package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/axiom/ucws/internal/database"
	"github.com/axiom/ucws/internal/llm"
)

// PostgresRepository stores usage in the llm_usage table
type PostgresRepository struct {
	db *database.Postgres
}

func NewPostgresRepository(db *database.Postgres) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, rec llm.UsageRecord, at time.Time) error {
	query := `
		INSERT INTO llm_usage (gateway, model, prompt_chars, output_chars, latency_ms, outcome, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Pool().Exec(ctx, query,
		rec.Gateway, rec.Model, rec.PromptChars, rec.OutputChars,
		rec.Latency.Milliseconds(), rec.Outcome, at,
	)
	if err != nil {
		return fmt.Errorf("failed to record llm usage: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Summarize(ctx context.Context, since time.Time) ([]ModelUsage, error) {
	query := `
		SELECT gateway, model, COUNT(*),
			COUNT(*) FILTER (WHERE outcome <> 'success'),
			COALESCE(SUM(prompt_chars), 0), COALESCE(SUM(output_chars), 0),
			COALESCE(SUM(latency_ms), 0)
		FROM llm_usage
		WHERE created_at >= $1
		GROUP BY gateway, model
		ORDER BY gateway, model
	`
	rows, err := r.db.Pool().Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize llm usage: %w", err)
	}
	defer rows.Close()

	var out []ModelUsage
	for rows.Next() {
		var u ModelUsage
		var latencyMS int64
		if err := rows.Scan(&u.Gateway, &u.Model, &u.Calls, &u.Failures, &u.PromptChars, &u.OutputChars, &latencyMS); err != nil {
			return nil, err
		}
		u.TotalLatency = time.Duration(latencyMS) * time.Millisecond
		out = append(out, u)
	}
	return out, rows.Err()
}
