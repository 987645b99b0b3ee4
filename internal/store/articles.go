package store

import (
	"fmt"

	"github.com/jvz-devx/usenet-dl/internal/domain"
)

func (s *Store) InsertArticles(jobID int64, articles []domain.Article) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO articles (job_id, file_index, message_id, segment_number, offset, length, status, attempts, server_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, a := range articles {
		if _, err := stmt.Exec(jobID, a.FileIndex, a.MessageID, a.Number, a.Offset, a.Length,
			string(domain.ArticlePending), 0, ""); err != nil {
			return fmt.Errorf("insert article %s: %w", a.MessageID, err)
		}
	}

	return tx.Commit()
}

// ListResumable returns the Pending and InFlight articles for a job — the
// unit of resume after a crash or restart, per the Article invariant
// that a completed job has every article Done or permanently failed.
func (s *Store) ListResumable(jobID int64) ([]domain.Article, error) {
	return s.listByStatus(jobID, domain.ArticlePending, domain.ArticleInFlight)
}

// ResetInFlightArticles demotes every InFlight article back to Pending,
// across all jobs. Called once at startup recovery: an article that was
// InFlight when the process last stopped was never actually confirmed
// Done, so it must be re-fetched rather than assumed complete.
func (s *Store) ResetInFlightArticles() (int64, error) {
	res, err := s.db.Exec(`UPDATE articles SET status = ? WHERE status = ?`,
		string(domain.ArticlePending), string(domain.ArticleInFlight))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) listByStatus(jobID int64, statuses ...domain.ArticleStatus) ([]domain.Article, error) {
	q := `SELECT id, job_id, file_index, message_id, segment_number, offset, length, status, attempts, server_id
		FROM articles WHERE job_id = ? AND status IN (` + placeholders(len(statuses)) + `) ORDER BY file_index ASC, segment_number ASC`
	args := []any{jobID}
	for _, st := range statuses {
		args = append(args, string(st))
	}

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Article
	for rows.Next() {
		var a domain.Article
		var status string
		if err := rows.Scan(&a.ID, &a.JobID, &a.FileIndex, &a.MessageID, &a.Number, &a.Offset, &a.Length,
			&status, &a.Attempts, &a.ServerID); err != nil {
			return nil, err
		}
		a.Status = domain.ArticleStatus(status)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) UpdateArticleStatus(id int64, status domain.ArticleStatus, attempts int, serverID string) error {
	_, err := s.db.Exec(`UPDATE articles SET status = ?, attempts = ?, server_id = ? WHERE id = ?`,
		string(status), attempts, serverID, id)
	return err
}

func (s *Store) CountArticlesByStatus(jobID int64) (done, failed, total int64, err error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM articles WHERE job_id = ? GROUP BY status`, jobID)
	if err != nil {
		return 0, 0, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return 0, 0, 0, err
		}
		total += n
		switch domain.ArticleStatus(status) {
		case domain.ArticleDone:
			done = n
		case domain.ArticleFailed:
			failed = n
		}
	}
	return done, failed, total, rows.Err()
}
