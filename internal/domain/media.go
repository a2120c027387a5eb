package domain

import (
	"fmt"
	"time"
)

// EntryInfo is what the extractor reports about one media item.
type EntryInfo struct {
	SourceID        string `json:"source_id"`
	Title           string `json:"title"`
	DurationSeconds int64  `json:"duration_seconds"`
	ViewCount       int64  `json:"view_count"`
	LikeCount       int64  `json:"like_count"`
	Channel         string `json:"channel"`
	ThumbnailURL    string `json:"thumbnail_url"`
	UploadDate      string `json:"upload_date"`
}

const fallbackPublishedDate = "1970-01-01"

// PublishedDate converts the YYYYMMDD upload date to YYYY-MM-DD.
func (e EntryInfo) PublishedDate() string {
	t, err := time.Parse("20060102", e.UploadDate)
	if err != nil {
		return fallbackPublishedDate
	}
	return t.Format("2006-01-02")
}

// ProbeResult is metadata gathered without downloading media.
// Zero duration or size means the source did not report it.
type ProbeResult struct {
	DurationSeconds int64
	SizeBytes       int64
	EntryCount      int
	Entries         []EntryInfo
}

func (p ProbeResult) IsPlaylist() bool { return p.EntryCount > 1 }

// FetchSpec tells a fetcher what to download and where.
type FetchSpec struct {
	URL     string
	Format  Format
	Quality Quality
	WorkDir string
}

// FetchedArtifact is a raw file produced by the fetcher inside a work dir.
type FetchedArtifact struct {
	SourceID string
	RawPath  string
	Info     EntryInfo
}

type VideoMetadata struct {
	ID            string `json:"id"`
	Title         string `json:"title"`
	Duration      string `json:"duration"`
	Views         int64  `json:"views"`
	Likes         int64  `json:"likes"`
	Channel       string `json:"channel"`
	ThumbnailURL  string `json:"thumbnail_url"`
	PublishedDate string `json:"published_date"`
}

func NewVideoMetadata(id string, info EntryInfo, durationSeconds int64) VideoMetadata {
	return VideoMetadata{
		ID:            id,
		Title:         info.Title,
		Duration:      FormatDuration(durationSeconds),
		Views:         info.ViewCount,
		Likes:         info.LikeCount,
		Channel:       info.Channel,
		ThumbnailURL:  info.ThumbnailURL,
		PublishedDate: info.PublishedDate(),
	}
}

// DownloadOutcome is one finished artifact and its metadata.
type DownloadOutcome struct {
	ArtifactReference string        `json:"artifact_reference"`
	Metadata          VideoMetadata `json:"metadata"`
}

// FormatDuration renders seconds as "XmYs".
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%dm%ds", seconds/60, seconds%60)
}
