package platform

import (
	"fmt"
	"os/exec"

	"github.com/datallboy/tubefetch/internal/infra/config"
)

// Dependency is an external system binary the app shells out to.
type Dependency struct {
	Name    string
	Path    string
	Purpose string
}

// RequiredBinaries lists the binaries for the configured media paths.
func RequiredBinaries(cfg *config.Config) []Dependency {
	return []Dependency{
		{Name: "yt-dlp", Path: cfg.Media.YtDlpPath, Purpose: "metadata probe and download"},
		{Name: "ffmpeg", Path: cfg.Media.FFmpegPath, Purpose: "merging, audio extraction and trimming"},
	}
}

// ValidateDependencies resolves each binary on PATH and returns the
// absolute paths keyed by name.
func ValidateDependencies(deps []Dependency) (map[string]string, error) {
	resolved := make(map[string]string, len(deps))
	for _, d := range deps {
		path := d.Path
		if path == "" {
			path = d.Name
		}
		full, err := exec.LookPath(path)
		if err != nil {
			return resolved, fmt.Errorf("required dependency: '%s' not found (%s)", d.Name, path)
		}
		resolved[d.Name] = full
	}
	return resolved, nil
}
