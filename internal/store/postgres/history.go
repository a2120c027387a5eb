package postgres

import (
	"context"
	"time"

	"github.com/datallboy/tubefetch/internal/domain"
)

func (s *Store) CountDownloads(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM download_history WHERE user_id = $1 AND download_at >= $2 AND download_at < $3`,
		userID, from, to,
	).Scan(&n)
	return n, err
}

// RecordOutcomes writes metadata and history for a job exactly once.
func (s *Store) RecordOutcomes(ctx context.Context, jobID, userID, url string, outcomes []domain.DownloadOutcome, at time.Time) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `UPDATE jobs SET recorded = TRUE, updated_at = $1 WHERE id = $2 AND recorded = FALSE`, at, jobID)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for _, o := range outcomes {
		m := o.Metadata
		if _, err := tx.Exec(ctx,
			`INSERT INTO video_metadata (id, user_id, title, duration, views, likes, channel, thumbnail_url, published_date, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			m.ID, userID, m.Title, m.Duration, m.Views, m.Likes, m.Channel, m.ThumbnailURL, m.PublishedDate, at,
		); err != nil {
			return false, err
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO download_history (job_id, url, download_url, status, video_id, user_id, download_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			jobID, url, o.ArtifactReference, domain.HistoryStatusSuccess, m.ID, userID, at,
		); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) ListHistory(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(ctx, `
		SELECT h.job_id, h.url, h.download_url, h.status, h.video_id, COALESCE(m.title, ''), h.download_at
		FROM download_history h
		LEFT JOIN video_metadata m ON m.id = h.video_id
		WHERE h.user_id = $1
		ORDER BY h.download_at DESC, h.id DESC
		LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.JobID, &e.URL, &e.DownloadURL, &e.Status, &e.VideoID, &e.Title, &e.DownloadAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
