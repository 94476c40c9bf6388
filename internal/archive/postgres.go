package archive

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roby2358/oblique/internal/task"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, strings.TrimSpace(databaseURL))
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := initArchiveSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

func initArchiveSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS finished_jobs (
			task_id TEXT PRIMARY KEY,
			version INTEGER NOT NULL,
			status TEXT NOT NULL,
			description TEXT NOT NULL,
			work TEXT NOT NULL DEFAULT '',
			retry_count INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL,
			done_at TIMESTAMPTZ NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_finished_jobs_done ON finished_jobs (done_at DESC);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init archive schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap task.Snapshot) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO finished_jobs (
			task_id, version, status, description, work, retry_count, created_at, done_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8
		)
		ON CONFLICT (task_id) DO UPDATE SET
			version=EXCLUDED.version,
			status=EXCLUDED.status,
			description=EXCLUDED.description,
			work=EXCLUDED.work,
			retry_count=EXCLUDED.retry_count,
			created_at=EXCLUDED.created_at,
			done_at=EXCLUDED.done_at`,
		snap.TaskID,
		snap.Version,
		string(snap.Status),
		snap.Description,
		snap.Work,
		snap.RetryCount,
		snap.CreatedAt,
		snap.DoneAt,
	)
	if err != nil {
		return fmt.Errorf("upsert finished job: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, taskID string) (task.Snapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT task_id, version, status, description, work, retry_count, created_at, done_at
		   FROM finished_jobs WHERE task_id=$1`,
		taskID,
	)
	snap, err := scanSnapshot(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return task.Snapshot{}, ErrNotFound
		}
		return task.Snapshot{}, fmt.Errorf("get finished job: %w", err)
	}
	return snap, nil
}

func (s *PostgresStore) Recent(ctx context.Context, limit int) ([]task.Snapshot, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx,
		`SELECT task_id, version, status, description, work, retry_count, created_at, done_at
		   FROM finished_jobs ORDER BY done_at DESC NULLS LAST LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list finished jobs: %w", err)
	}
	defer rows.Close()

	out := make([]task.Snapshot, 0, limit)
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("scan finished job: %w", err)
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate finished jobs: %w", err)
	}
	return out, nil
}

func scanSnapshot(row pgx.Row) (task.Snapshot, error) {
	var (
		snap         task.Snapshot
		status       string
		doneNullable *time.Time
	)
	if err := row.Scan(
		&snap.TaskID,
		&snap.Version,
		&status,
		&snap.Description,
		&snap.Work,
		&snap.RetryCount,
		&snap.CreatedAt,
		&doneNullable,
	); err != nil {
		return task.Snapshot{}, err
	}
	snap.Status = task.Status(status)
	snap.DoneAt = doneNullable
	return snap, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
