package store

import (
	"encoding/json"
	"fmt"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

func (s *Store) InsertFiles(jobID int64, files []domain.File) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO files (job_id, file_index, name, original_name, size, bytes_written,
			completed, total_segments, subject, groups_json, password)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, f := range files {
		groupsJSON, err := json.Marshal(f.Groups)
		if err != nil {
			return err
		}
		if _, err := stmt.Exec(jobID, f.Index, f.Name, f.OriginalName, f.Size, f.BytesWritten,
			boolToInt(f.Completed), f.TotalSegments, f.Subject, string(groupsJSON), f.Password); err != nil {
			return fmt.Errorf("insert file %d: %w", f.Index, err)
		}
	}

	return tx.Commit()
}

func (s *Store) ListFiles(jobID int64) ([]domain.File, error) {
	rows, err := s.db.Query(`
		SELECT job_id, file_index, name, original_name, size, bytes_written, completed,
			total_segments, subject, groups_json, password
		FROM files WHERE job_id = ? ORDER BY file_index ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []domain.File
	for rows.Next() {
		var f domain.File
		var completed int
		var groupsJSON string
		if err := rows.Scan(&f.JobID, &f.Index, &f.Name, &f.OriginalName, &f.Size, &f.BytesWritten,
			&completed, &f.TotalSegments, &f.Subject, &groupsJSON, &f.Password); err != nil {
			return nil, err
		}
		f.Completed = completed != 0
		if err := json.Unmarshal([]byte(groupsJSON), &f.Groups); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *Store) UpdateFileProgress(jobID int64, index int, bytesWritten int64, completed bool) error {
	_, err := s.db.Exec(`UPDATE files SET bytes_written = ?, completed = ? WHERE job_id = ? AND file_index = ?`,
		bytesWritten, boolToInt(completed), jobID, index)
	return err
}

func (s *Store) RenameFile(jobID int64, index int, newName string, keepOriginal bool) error {
	if keepOriginal {
		_, err := s.db.Exec(`UPDATE files SET name = ?, original_name = name WHERE job_id = ? AND file_index = ?`,
			newName, jobID, index)
		return err
	}
	_, err := s.db.Exec(`UPDATE files SET name = ? WHERE job_id = ? AND file_index = ?`, newName, jobID, index)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
