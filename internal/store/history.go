package store

import "github.com/jvz-devx/usenet-dl/internal/domain"

// AppendHistory writes an immutable terminal-job snapshot. History rows
// are never updated after insertion.
func (s *Store) AppendHistory(h domain.HistoryEntry) error {
	_, err := s.db.Exec(`
		INSERT INTO history (job_id, name, category, destination, status, size_bytes, download_time_ms, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		h.JobID, h.Name, h.Category, h.Destination, string(h.Status), h.SizeBytes, h.DownloadTimeMS, h.CompletedAt)
	return err
}

func (s *Store) ListHistory(limit int) ([]domain.HistoryEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, job_id, name, category, destination, status, size_bytes, download_time_ms, completed_at
		FROM history ORDER BY completed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.HistoryEntry
	for rows.Next() {
		var h domain.HistoryEntry
		var status string
		if err := rows.Scan(&h.ID, &h.JobID, &h.Name, &h.Category, &h.Destination, &status,
			&h.SizeBytes, &h.DownloadTimeMS, &h.CompletedAt); err != nil {
			return nil, err
		}
		h.Status = domain.JobStatus(status)
		out = append(out, h)
	}
	return out, rows.Err()
}
