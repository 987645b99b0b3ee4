package store

import (
	"database/sql"
	"errors"
	"time"
)

// GetRuntimeState reads a single key from the runtime_state table (e.g.
// clean_shutdown), returning "" if absent.
func (s *Store) GetRuntimeState(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM runtime_state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *Store) SetRuntimeState(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO runtime_state (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix())
	return err
}

func (s *Store) SetPasswordCandidates(jobID int64, passwords []string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM job_password_candidates WHERE job_id = ?`, jobID); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO job_password_candidates (job_id, position, password) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, p := range passwords {
		if _, err := stmt.Exec(jobID, i, p); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) GetPasswordCandidates(jobID int64) ([]string, error) {
	rows, err := s.db.Query(`SELECT password FROM job_password_candidates WHERE job_id = ? ORDER BY position ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
