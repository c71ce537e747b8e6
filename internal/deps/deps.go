// Package deps reports the availability of the external binaries the
// alignment pipeline shells out to.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"palign/internal/config"
)

// Requirement defines an external dependency palign relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a dependency.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Detail      string
}

// Requirements derives the external binary requirements from the
// configuration. Julius is only required when it is the selected
// engine; ffmpeg and ffprobe only matter for video segmentation.
func Requirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "Julius",
			Command:     cfg.Align.JuliusBinary,
			Description: "External recognizer for the julius engine",
			Optional:    cfg.Align.Aligner != "julius",
		},
		{
			Name:        "FFmpeg",
			Command:     cfg.Track.FFmpegBinary,
			Description: "Video slicing during track segmentation",
			Optional:    true,
		},
		{
			Name:        "FFprobe",
			Command:     cfg.Track.FFprobeBinary,
			Description: "Media inspection during track segmentation",
			Optional:    true,
		},
	}
}

// CheckBinaries evaluates the provided requirements and reports availability.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		cmd := strings.TrimSpace(req.Command)
		status := Status{
			Name:        req.Name,
			Command:     cmd,
			Description: strings.TrimSpace(req.Description),
			Optional:    req.Optional,
		}
		if cmd == "" {
			status.Available = false
			status.Detail = "command not configured"
			results = append(results, status)
			continue
		}
		if _, err := exec.LookPath(cmd); err != nil {
			status.Available = false
			status.Detail = fmt.Sprintf("binary %q not found", cmd)
			results = append(results, status)
			continue
		}
		status.Available = true
		results = append(results, status)
	}
	return results
}
