package media

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/datallboy/tubefetch/internal/domain"
	"github.com/datallboy/tubefetch/internal/infra/logger"
)

// transientMarkers are stderr fragments yt-dlp prints for failures that
// usually go away on retry.
var transientMarkers = []string{
	"HTTP Error 429",
	"HTTP Error 500",
	"HTTP Error 502",
	"HTTP Error 503",
	"HTTP Error 504",
	"timed out",
	"Connection reset",
	"Temporary failure in name resolution",
	"Unable to download webpage",
	"IncompleteRead",
}

func isTransient(stderr []byte) bool {
	s := string(stderr)
	for _, m := range transientMarkers {
		if strings.Contains(s, m) {
			return true
		}
	}
	return false
}

type YtDlpOptions struct {
	Path          string
	PlaylistLimit int
	AudioQuality  string
}

// YtDlp implements both probing and fetching on top of the yt-dlp binary.
type YtDlp struct {
	opts   YtDlpOptions
	runner Runner
	log    *logger.Logger
}

func NewYtDlp(opts YtDlpOptions, runner Runner, log *logger.Logger) *YtDlp {
	if opts.Path == "" {
		opts.Path = "yt-dlp"
	}
	if opts.PlaylistLimit <= 0 {
		opts.PlaylistLimit = 10
	}
	if opts.AudioQuality == "" {
		opts.AudioQuality = "192K"
	}
	if runner == nil {
		runner = NewExecRunner()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &YtDlp{opts: opts, runner: runner, log: log}
}

// ytdlpInfo is the subset of the yt-dlp info dict we read.
type ytdlpInfo struct {
	Type           string      `json:"_type"`
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Duration       float64     `json:"duration"`
	Filesize       float64     `json:"filesize"`
	FilesizeApprox float64     `json:"filesize_approx"`
	ViewCount      int64       `json:"view_count"`
	LikeCount      int64       `json:"like_count"`
	Uploader       string      `json:"uploader"`
	Channel        string      `json:"channel"`
	Thumbnail      string      `json:"thumbnail"`
	UploadDate     string      `json:"upload_date"`
	Entries        []ytdlpInfo `json:"entries"`
}

func (i ytdlpInfo) entry() domain.EntryInfo {
	channel := i.Uploader
	if channel == "" {
		channel = i.Channel
	}
	return domain.EntryInfo{
		SourceID:        i.ID,
		Title:           i.Title,
		DurationSeconds: int64(i.Duration),
		ViewCount:       i.ViewCount,
		LikeCount:       i.LikeCount,
		Channel:         channel,
		ThumbnailURL:    i.Thumbnail,
		UploadDate:      i.UploadDate,
	}
}

func (i ytdlpInfo) size() int64 {
	if i.Filesize > 0 {
		return int64(i.Filesize)
	}
	return int64(i.FilesizeApprox)
}

// Probe reads metadata without downloading. Duration and size come from
// the top-level info only; playlists usually report neither and pass the
// limit check as unknown.
func (y *YtDlp) Probe(ctx context.Context, url string) (*domain.ProbeResult, error) {
	args := []string{
		"--dump-single-json",
		"--skip-download",
		"--flat-playlist",
		"--no-warnings",
		url,
	}

	res, err := y.runner.Run(ctx, Command{Path: y.opts.Path, Args: args})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.ExtractionError{Reason: reason(res, err), Transient: isTransient(res.Stderr), Err: err}
	}

	var info ytdlpInfo
	if err := json.Unmarshal(bytes.TrimSpace(res.Stdout), &info); err != nil {
		return nil, &domain.ExtractionError{Reason: "unreadable metadata", Err: err}
	}

	result := &domain.ProbeResult{
		DurationSeconds: int64(info.Duration),
		SizeBytes:       info.size(),
	}

	if info.Type == "playlist" || len(info.Entries) > 0 {
		for _, e := range info.Entries {
			result.Entries = append(result.Entries, e.entry())
		}
	} else if info.ID != "" {
		result.Entries = []domain.EntryInfo{info.entry()}
	}

	if len(result.Entries) == 0 {
		return nil, &domain.ExtractionError{Reason: "no entries found"}
	}
	result.EntryCount = len(result.Entries)

	y.log.Debug("[yt-dlp] probed %s: %d entries, duration=%ds size=%d", url, result.EntryCount, result.DurationSeconds, result.SizeBytes)
	return result, nil
}

// FormatSelector builds the yt-dlp format ladder. Audio ignores quality.
func FormatSelector(format domain.Format, quality domain.Quality) (string, error) {
	if format.IsAudio() {
		return "bestaudio/best", nil
	}
	height, ok := quality.Height()
	if !ok {
		return "", &domain.InvalidQualityError{Quality: quality}
	}
	audioExt := "m4a"
	if format == domain.FormatWebM {
		audioExt = "webm"
	}
	return fmt.Sprintf("bestvideo[height<=%d][ext=%s]+bestaudio[ext=%s]/best[ext=%s]/best",
		height, format, audioExt, format), nil
}

// Fetch downloads up to PlaylistLimit entries into spec.WorkDir and
// returns them in source order.
func (y *YtDlp) Fetch(ctx context.Context, spec domain.FetchSpec) ([]domain.FetchedArtifact, error) {
	selector, err := FormatSelector(spec.Format, spec.Quality)
	if err != nil {
		return nil, err
	}

	args := []string{
		"--format", selector,
		"--output", filepath.Join(spec.WorkDir, "%(id)s.%(ext)s"),
		"--yes-playlist",
		"--playlist-end", strconv.Itoa(y.opts.PlaylistLimit),
		"--dump-json",
		"--no-simulate",
		"--no-progress",
		"--no-warnings",
	}
	if spec.Format.IsAudio() {
		args = append(args, "--extract-audio", "--audio-format", "mp3", "--audio-quality", y.opts.AudioQuality)
	} else {
		args = append(args, "--merge-output-format", string(spec.Format))
	}
	args = append(args, spec.URL)

	res, err := y.runner.Run(ctx, Command{Path: y.opts.Path, Args: args, Dir: spec.WorkDir})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &domain.FetchError{Reason: reason(res, err), Transient: isTransient(res.Stderr), Err: err}
	}

	infos, err := parseInfoLines(res.Stdout)
	if err != nil {
		return nil, &domain.FetchError{Reason: "unreadable download metadata", Err: err}
	}
	if len(infos) == 0 {
		return nil, &domain.FetchError{Reason: "no media downloaded"}
	}
	if len(infos) > y.opts.PlaylistLimit {
		infos = infos[:y.opts.PlaylistLimit]
	}

	artifacts := make([]domain.FetchedArtifact, 0, len(infos))
	for _, info := range infos {
		path, err := SelectArtifact(spec.WorkDir, info.ID, spec.Format.Extension())
		if err != nil {
			return nil, &domain.FetchError{Reason: fmt.Sprintf("output for %s not found", info.ID), Err: err}
		}
		artifacts = append(artifacts, domain.FetchedArtifact{
			SourceID: info.ID,
			RawPath:  path,
			Info:     info.entry(),
		})
	}

	y.log.Debug("[yt-dlp] fetched %d artifacts into %s", len(artifacts), spec.WorkDir)
	return artifacts, nil
}

// parseInfoLines reads one JSON object per line, keeping order and
// dropping duplicate ids.
func parseInfoLines(stdout []byte) ([]ytdlpInfo, error) {
	var (
		infos []ytdlpInfo
		seen  = make(map[string]bool)
	)
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var info ytdlpInfo
		if err := json.Unmarshal(line, &info); err != nil {
			return nil, err
		}
		if info.ID == "" || seen[info.ID] {
			continue
		}
		seen[info.ID] = true
		infos = append(infos, info)
	}
	return infos, sc.Err()
}

var partialSuffixes = []string{".part", ".ytdl", ".temp", ".tmp"}

// SelectArtifact finds the file yt-dlp wrote for id, preferring the
// requested extension over intermediate streams.
func SelectArtifact(dir, id, ext string) (string, error) {
	candidates, err := filepath.Glob(filepath.Join(dir, globEscape(id)+".*"))
	if err != nil {
		return "", err
	}

	files := candidates[:0]
	for _, c := range candidates {
		if isPartial(c) {
			continue
		}
		if st, err := os.Stat(c); err != nil || st.IsDir() {
			continue
		}
		files = append(files, c)
	}
	if len(files) == 0 {
		return "", errors.New("no output file")
	}

	want := "." + strings.ToLower(ext)
	sort.SliceStable(files, func(i, j int) bool {
		pi, pj := extPriority(files[i], want), extPriority(files[j], want)
		if pi == pj {
			return files[i] < files[j]
		}
		return pi < pj
	})
	return files[0], nil
}

func isPartial(path string) bool {
	for _, s := range partialSuffixes {
		if strings.HasSuffix(path, s) {
			return true
		}
	}
	return false
}

func extPriority(path, want string) int {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == want {
		return 0
	}
	switch ext {
	case ".mp4", ".mp3":
		return 1
	case ".webm", ".m4a":
		return 2
	case ".mkv":
		return 3
	default:
		return 9
	}
}

func globEscape(s string) string {
	r := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`, `\`, `\\`)
	return r.Replace(s)
}
