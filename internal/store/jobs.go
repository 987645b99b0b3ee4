package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

// InsertJob persists a new Job and backfills its assigned id. The
// schema's NOT NULL DEFAULT '' columns mean there are no nullable fields
// to round-trip here.
func (s *Store) InsertJob(j *domain.Job) error {
	res, err := s.db.Exec(`
		INSERT INTO jobs (name, category, destination, priority, post_process, password,
			last_successful_password, nzb_content_hash, nzb_meta_name, total_size, status,
			direct_unpack_state, direct_unpack_extracted, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.Name, j.Category, j.Destination, int(j.Priority), int(j.PostProcess), j.Password,
		j.LastSuccessfulPassword, j.NZBContentHash, j.NZBMetaName, j.TotalSize, string(j.Status),
		int(j.DirectUnpackState), j.DirectUnpackExtracted, j.LastError, j.CreatedAt.Unix())
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	j.ID = id
	return nil
}

func (s *Store) UpdateJobStatus(id int64, status domain.JobStatus, lastError string) error {
	_, err := s.db.Exec(`UPDATE jobs SET status = ?, last_error = ? WHERE id = ?`, string(status), lastError, id)
	return err
}

func (s *Store) UpdateJobStarted(id int64, startedAt time.Time) error {
	_, err := s.db.Exec(`UPDATE jobs SET started_at = ? WHERE id = ?`, startedAt.Unix(), id)
	return err
}

func (s *Store) UpdateJobPriority(id int64, p domain.Priority) error {
	_, err := s.db.Exec(`UPDATE jobs SET priority = ? WHERE id = ?`, int(p), id)
	return err
}

func (s *Store) UpdateDirectUnpackState(id int64, state domain.DirectUnpackState, extracted int) error {
	_, err := s.db.Exec(`UPDATE jobs SET direct_unpack_state = ?, direct_unpack_extracted = ? WHERE id = ?`,
		int(state), extracted, id)
	return err
}

// UpdateLastSuccessfulPassword records the password that unlocked an
// archive, so later extraction attempts (a retry, DirectUnpack on the
// next volume set) try it first.
func (s *Store) UpdateLastSuccessfulPassword(id int64, password string) error {
	_, err := s.db.Exec(`UPDATE jobs SET last_successful_password = ? WHERE id = ?`, password, id)
	return err
}

func (s *Store) DeleteJob(id int64) error {
	_, err := s.db.Exec(`DELETE FROM jobs WHERE id = ?`, id)
	return err
}

func (s *Store) GetJob(id int64) (*domain.Job, error) {
	row := s.db.QueryRow(`
		SELECT id, name, category, destination, priority, post_process, password,
			last_successful_password, nzb_content_hash, nzb_meta_name, total_size, status,
			direct_unpack_state, direct_unpack_extracted, last_error, created_at, started_at
		FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// ListByStatus returns jobs in a given status, ordered by priority then
// creation time — the same ordering the Queue re-derives at startup when
// restoring queued work.
func (s *Store) ListByStatus(statuses ...domain.JobStatus) ([]*domain.Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	q := `SELECT id, name, category, destination, priority, post_process, password,
			last_successful_password, nzb_content_hash, nzb_meta_name, total_size, status,
			direct_unpack_state, direct_unpack_extracted, last_error, created_at, started_at
		FROM jobs WHERE status IN (` + placeholders(len(statuses)) + `)
		ORDER BY priority DESC, created_at ASC`
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func (s *Store) FindByContentHash(hash string) (*domain.Job, error) {
	if hash == "" {
		return nil, sql.ErrNoRows
	}
	row := s.db.QueryRow(`
		SELECT id, name, category, destination, priority, post_process, password,
			last_successful_password, nzb_content_hash, nzb_meta_name, total_size, status,
			direct_unpack_state, direct_unpack_extracted, last_error, created_at, started_at
		FROM jobs WHERE nzb_content_hash = ?`, hash)
	return scanJob(row)
}

func (s *Store) FindByName(name string) (*domain.Job, error) {
	row := s.db.QueryRow(`
		SELECT id, name, category, destination, priority, post_process, password,
			last_successful_password, nzb_content_hash, nzb_meta_name, total_size, status,
			direct_unpack_state, direct_unpack_extracted, last_error, created_at, started_at
		FROM jobs WHERE name = ? ORDER BY created_at DESC LIMIT 1`, name)
	return scanJob(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*domain.Job, error) {
	var j domain.Job
	var priority, postProcess, dus int
	var status string
	var createdAt int64
	var startedAt sql.NullInt64

	if err := row.Scan(&j.ID, &j.Name, &j.Category, &j.Destination, &priority, &postProcess,
		&j.Password, &j.LastSuccessfulPassword, &j.NZBContentHash, &j.NZBMetaName, &j.TotalSize,
		&status, &dus, &j.DirectUnpackExtracted, &j.LastError, &createdAt, &startedAt); err != nil {
		return nil, err
	}

	j.Priority = domain.Priority(priority)
	j.PostProcess = domain.PostProcessMode(postProcess)
	j.DirectUnpackState = domain.DirectUnpackState(dus)
	j.Status = domain.JobStatus(status)
	j.CreatedAt = time.Unix(createdAt, 0)
	if startedAt.Valid {
		j.StartedAt = time.Unix(startedAt.Int64, 0)
	}

	return &j, nil
}

func placeholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		if i > 0 {
			s += ","
		}
		s += "?"
	}
	return s
}
