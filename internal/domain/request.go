package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	videoURLPattern    = regexp.MustCompile(`^(https?://)?(www\.)?(youtube\.com|youtu\.be)/(watch\?v=)?[\w\-]{11}(&[a-zA-Z0-9_]+=[a-zA-Z0-9_&\-]*)*$`)
	playlistURLPattern = regexp.MustCompile(`^(https?://)?(www\.)?youtube\.com/playlist\?list=[\w\-]+`)
)

type Format string

const (
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
	FormatMP3  Format = "mp3"
)

// ParseFormat accepts a container name case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatMP4, FormatWebM, FormatMP3:
		return f, nil
	}
	return "", &InvalidRequestError{Field: "format", Reason: fmt.Sprintf("invalid format %q, must be mp4, webm or mp3", s)}
}

func (f Format) IsAudio() bool { return f == FormatMP3 }

// Extension is the file extension of the final artifact.
func (f Format) Extension() string { return string(f) }

type Quality string

const (
	Quality360p  Quality = "360p"
	Quality480p  Quality = "480p"
	Quality720p  Quality = "720p"
	Quality1080p Quality = "1080p"
	Quality4K    Quality = "4k"
)

var qualityHeights = map[Quality]int{
	Quality360p:  360,
	Quality480p:  480,
	Quality720p:  720,
	Quality1080p: 1080,
	Quality4K:    2160,
}

// Height returns the pixel height cap for the quality label.
func (q Quality) Height() (int, bool) {
	h, ok := qualityHeights[Quality(strings.ToLower(strings.TrimSpace(string(q))))]
	return h, ok
}

// ValidateQuality is a no-op for audio formats, which ignore quality.
func ValidateQuality(f Format, q Quality) error {
	if f.IsAudio() {
		return nil
	}
	if _, ok := q.Height(); !ok {
		return &InvalidQualityError{Quality: q}
	}
	return nil
}

// Window is a trim range relative to the start of the media.
type Window struct {
	Start time.Duration
	End   time.Duration
}

func (w Window) Length() time.Duration { return w.End - w.Start }

func (w Window) StartClock() string { return FormatClock(w.Start) }

func (w Window) EndClock() string { return FormatClock(w.End) }

// ParseClock parses an HH:MM:SS timestamp.
func ParseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04:05", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q, expected HH:MM:SS", s)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

func FormatClock(d time.Duration) string {
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// DownloadRequest is what a caller submits for a single URL.
type DownloadRequest struct {
	URL       string  `json:"url"`
	Format    Format  `json:"format"`
	Quality   Quality `json:"quality"`
	StartTime string  `json:"start_time,omitempty"`
	EndTime   string  `json:"end_time,omitempty"`
}

// Normalize lowercases the enumerated fields and trims whitespace.
func (r *DownloadRequest) Normalize() {
	r.URL = strings.TrimSpace(r.URL)
	r.Format = Format(strings.ToLower(strings.TrimSpace(string(r.Format))))
	r.Quality = Quality(strings.ToLower(strings.TrimSpace(string(r.Quality))))
	r.StartTime = strings.TrimSpace(r.StartTime)
	r.EndTime = strings.TrimSpace(r.EndTime)
}

func (r DownloadRequest) HasWindow() bool {
	return r.StartTime != "" || r.EndTime != ""
}

// Window parses the trim range. ok is false when no range was requested.
func (r DownloadRequest) Window() (w Window, ok bool, err error) {
	if !r.HasWindow() {
		return Window{}, false, nil
	}
	if r.StartTime == "" || r.EndTime == "" {
		return Window{}, false, &InvalidRequestError{Field: "start_time", Reason: "start_time and end_time must be given together"}
	}
	if w.Start, err = ParseClock(r.StartTime); err != nil {
		return Window{}, false, &InvalidRequestError{Field: "start_time", Reason: err.Error()}
	}
	if w.End, err = ParseClock(r.EndTime); err != nil {
		return Window{}, false, &InvalidRequestError{Field: "end_time", Reason: err.Error()}
	}
	if w.End <= w.Start {
		return Window{}, false, &InvalidRequestError{Field: "end_time", Reason: "end_time must be after start_time"}
	}
	return w, true, nil
}

// Validate checks the request shape. Quality is checked by the fetcher.
func (r DownloadRequest) Validate() error {
	if r.URL == "" {
		return &InvalidRequestError{Field: "url", Reason: "url is required"}
	}
	if playlistURLPattern.MatchString(r.URL) {
		return &InvalidRequestError{Field: "url", Reason: "playlist urls are not supported"}
	}
	if !videoURLPattern.MatchString(r.URL) {
		return &InvalidRequestError{Field: "url", Reason: "invalid video url"}
	}
	if _, err := ParseFormat(string(r.Format)); err != nil {
		return err
	}
	_, _, err := r.Window()
	return err
}
