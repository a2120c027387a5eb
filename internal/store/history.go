package store

import (
	"context"
	"time"

	"github.com/datallboy/tubefetch/internal/domain"
)

// CountDownloads counts history rows for userID with download_at in [from, to).
func (s *PersistentStore) CountDownloads(ctx context.Context, userID string, from, to time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM download_history WHERE user_id = ? AND download_at >= ? AND download_at < ?`,
		userID, from.Unix(), to.Unix(),
	).Scan(&n)
	return n, err
}

// RecordOutcomes writes metadata and history rows for a finished job.
// It runs at most once per job: the first caller flips jobs.recorded and
// gets true, later callers get false and write nothing.
func (s *PersistentStore) RecordOutcomes(ctx context.Context, jobID, userID, url string, outcomes []domain.DownloadOutcome, at time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE jobs SET recorded = 1, updated_at = ? WHERE id = ? AND recorded = 0`, at.Unix(), jobID)
	if err != nil {
		return false, err
	}
	if n, err := res.RowsAffected(); err != nil || n == 0 {
		return false, err
	}

	for _, o := range outcomes {
		m := o.Metadata
		_, err := tx.ExecContext(ctx,
			`INSERT INTO video_metadata (id, user_id, title, duration, views, likes, channel, thumbnail_url, published_date, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID, userID, m.Title, m.Duration, m.Views, m.Likes, m.Channel, m.ThumbnailURL, m.PublishedDate, at.Unix(),
		)
		if err != nil {
			return false, err
		}

		_, err = tx.ExecContext(ctx,
			`INSERT INTO download_history (job_id, url, download_url, status, video_id, user_id, download_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			jobID, url, o.ArtifactReference, domain.HistoryStatusSuccess, m.ID, userID, at.Unix(),
		)
		if err != nil {
			return false, err
		}
	}

	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// ListHistory returns the newest history entries for userID.
func (s *PersistentStore) ListHistory(ctx context.Context, userID string, limit int) ([]domain.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT h.job_id, h.url, h.download_url, h.status, h.video_id, COALESCE(m.title, ''), h.download_at
		FROM download_history h
		LEFT JOIN video_metadata m ON m.id = h.video_id
		WHERE h.user_id = ?
		ORDER BY h.download_at DESC, h.id DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var (
			e  domain.HistoryEntry
			at int64
		)
		if err := rows.Scan(&e.JobID, &e.URL, &e.DownloadURL, &e.Status, &e.VideoID, &e.Title, &at); err != nil {
			return nil, err
		}
		e.DownloadAt = time.Unix(at, 0).UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
