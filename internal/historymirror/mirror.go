// Package historymirror forwards completed-job History rows to a remote
// Postgres database, for installs that want history queryable outside the
// local SQLite file (a shared dashboard, a reporting job, a second
// instance reading the same archive). It is entirely optional: nothing in
// the download or post-process path depends on it, and a Mirror that
// fails to connect at startup just means history stays SQLite-only.
package historymirror

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

// Mirror owns a connection pool to a remote Postgres database and
// appends History rows to it, best-effort, alongside the authoritative
// write the Persistence Store already made.
type Mirror struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against dsn and ensures the mirror table exists.
// Call Close when done.
func Connect(ctx context.Context, dsn string) (*Mirror, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	if err := ensureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &Mirror{pool: pool}, nil
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS history_mirror (
			job_id             BIGINT PRIMARY KEY,
			name               TEXT NOT NULL,
			category           TEXT NOT NULL,
			destination        TEXT NOT NULL,
			status             TEXT NOT NULL,
			size_bytes         BIGINT NOT NULL,
			download_time_ms   BIGINT NOT NULL,
			completed_at       BIGINT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("creating history_mirror table: %w", err)
	}
	return nil
}

// Append upserts one History row into the mirror table. JobID is the
// conflict key so a job whose post-process retried and re-appended
// history doesn't produce duplicate rows remotely.
func (m *Mirror) Append(ctx context.Context, h domain.HistoryEntry) error {
	_, err := m.pool.Exec(ctx, `
		INSERT INTO history_mirror
			(job_id, name, category, destination, status, size_bytes, download_time_ms, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			destination = EXCLUDED.destination,
			download_time_ms = EXCLUDED.download_time_ms,
			completed_at = EXCLUDED.completed_at
	`, h.JobID, h.Name, h.Category, h.Destination, string(h.Status), h.SizeBytes, h.DownloadTimeMS, h.CompletedAt)
	if err != nil {
		return fmt.Errorf("mirroring history for job %d: %w", h.JobID, err)
	}
	return nil
}

// Close releases the pool. Safe to call on a nil Mirror.
func (m *Mirror) Close() {
	if m == nil {
		return
	}
	m.pool.Close()
}
