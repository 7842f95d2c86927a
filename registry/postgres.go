package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"docparser/models"
)

// PostgresRegistry persists tasks in a tasks table so they survive
// process restarts. Schema:
//
//	CREATE TABLE tasks (
//	    id         TEXT PRIMARY KEY,
//	    status     TEXT NOT NULL,
//	    progress   DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    result     JSONB,
//	    error      TEXT NOT NULL DEFAULT '',
//	    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
//	    expires_at TIMESTAMPTZ NOT NULL
//	)
type PostgresRegistry struct {
	pool *pgxpool.Pool
}

func NewPostgresRegistry(ctx context.Context, databaseURL string) (*PostgresRegistry, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresRegistry{pool: pool}, nil
}

func (r *PostgresRegistry) Close() {
	r.pool.Close()
}

func (r *PostgresRegistry) Create(ctx context.Context, task *models.ParseTask) error {
	query := `
		INSERT INTO tasks (id, status, progress, error, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		task.ID,
		task.Status,
		task.Progress,
		task.Error,
		task.CreatedAt,
		task.UpdatedAt,
		task.ExpiresAt,
	)
	return err
}

func (r *PostgresRegistry) Get(ctx context.Context, id string) (*models.ParseTask, error) {
	query := `
		SELECT id, status, progress, result, error, created_at, updated_at, expires_at
		FROM tasks
		WHERE id = $1 AND expires_at > NOW()
	`

	row := r.pool.QueryRow(ctx, query, id)

	var task models.ParseTask
	var status string
	var resultJSON []byte
	err := row.Scan(
		&task.ID,
		&status,
		&task.Progress,
		&resultJSON,
		&task.Error,
		&task.CreatedAt,
		&task.UpdatedAt,
		&task.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}

	task.Status = models.TaskStatus(status)
	if len(resultJSON) > 0 {
		var result models.ParseResult
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return nil, fmt.Errorf("decode task result: %w", err)
		}
		task.Result = &result
	}

	return &task, nil
}

func (r *PostgresRegistry) Update(ctx context.Context, id string, upd Update) error {
	if err := upd.validate(); err != nil {
		return err
	}

	query := `UPDATE tasks SET updated_at = GREATEST(updated_at, NOW())`
	args := []any{id}
	arg := 2

	if upd.Status != nil {
		query += fmt.Sprintf(`, status = $%d`, arg)
		args = append(args, string(*upd.Status))
		arg++
	}
	// The result clause pins progress to 1.0, so only one of the two
	// may assign the column.
	if upd.Progress != nil && upd.Result == nil {
		p := *upd.Progress
		if p < 0 {
			p = 0
		}
		if p > 1 {
			p = 1
		}
		query += fmt.Sprintf(`, progress = GREATEST(progress, $%d)`, arg)
		args = append(args, p)
		arg++
	}
	if upd.Result != nil {
		data, err := json.Marshal(upd.Result)
		if err != nil {
			return fmt.Errorf("encode task result: %w", err)
		}
		query += fmt.Sprintf(`, result = $%d, progress = 1.0`, arg)
		args = append(args, data)
		arg++
	}
	if upd.Error != nil {
		query += fmt.Sprintf(`, error = $%d`, arg)
		args = append(args, *upd.Error)
		arg++
	}

	// Terminal tasks are immutable; the guards live in the WHERE clause
	// so concurrent updates serialize in the database. The extra status
	// predicates enforce the lifecycle graph: pending either starts
	// processing or fails, processing only finishes.
	query += ` WHERE id = $1 AND expires_at > NOW() AND status NOT IN ('completed', 'failed')`
	if upd.Status != nil {
		switch *upd.Status {
		case models.StatusPending:
			return fmt.Errorf("%w: no transition enters pending", ErrInvalidTransition)
		case models.StatusProcessing:
			query += ` AND status = 'pending'`
		case models.StatusCompleted:
			query += ` AND status = 'processing'`
		}
	}

	result, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return ErrTaskNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

func (r *PostgresRegistry) Delete(ctx context.Context, id string) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *PostgresRegistry) EvictExpired(ctx context.Context) (int, error) {
	result, err := r.pool.Exec(ctx, `DELETE FROM tasks WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, err
	}
	return int(result.RowsAffected()), nil
}

func (r *PostgresRegistry) FailStalled(ctx context.Context, cutoff time.Time, errMsg string) (int, error) {
	query := `
		UPDATE tasks
		SET status = 'failed', error = $1, updated_at = NOW()
		WHERE status = 'processing' AND updated_at < $2
	`
	result, err := r.pool.Exec(ctx, query, errMsg, cutoff)
	if err != nil {
		return 0, err
	}
	return int(result.RowsAffected()), nil
}

func (r *PostgresRegistry) Len(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n)
	return n, err
}
