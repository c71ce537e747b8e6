// Package track splits an aligned recording into per-track media
// files. Intervals whose label matches the configured pattern open a
// new track; following non-matching intervals are merged into it.
package track

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"palign/internal/anndata"
	"palign/internal/media/audio"
	"palign/internal/media/ffprobe"
)

// ErrMediaMismatch reports a companion video whose duration disagrees
// with the audio beyond the configured tolerance.
var ErrMediaMismatch = errors.New("media duration mismatch")

// ErrNoTracks reports a tier that yields no tracks.
var ErrNoTracks = errors.New("no tracks to segment")

// Track is one written slice of the source media.
type Track struct {
	Index     int
	Label     string
	Start     float64
	End       float64
	AudioPath string
	VideoPath string
}

// Duration returns the track length in seconds.
func (t Track) Duration() float64 {
	return t.End - t.Start
}

// Options configures a Segmenter.
type Options struct {
	Pattern           *regexp.Regexp
	OutDir            string
	VideoPath         string
	DurationTolerance float64
	FFmpegBinary      string
	FFprobeBinary     string
}

// Segmenter slices audio (and optionally video) at aligned boundaries.
type Segmenter struct {
	opts  Options
	probe func(ctx context.Context, binary, path string) (ffprobe.Result, error)
	slice func(ctx context.Context, binary string, args []string) error
}

// New constructs a Segmenter.
func New(opts Options) *Segmenter {
	if opts.DurationTolerance <= 0 {
		opts.DurationTolerance = 0.5
	}
	return &Segmenter{
		opts:  opts,
		probe: ffprobe.Inspect,
		slice: runFFmpeg,
	}
}

// Segment cuts the audio at the track boundaries derived from the tier
// and writes one file per track into OutDir. When a video path is set
// the boundaries are first adjusted onto the video frame grid and a
// video slice is written alongside each audio file.
func (s *Segmenter) Segment(ctx context.Context, audioPath string, tier *anndata.Tier) ([]Track, error) {
	clip, err := audio.ReadFile(audioPath)
	if err != nil {
		return nil, err
	}

	tracks := s.cut(tier)
	if len(tracks) == 0 {
		return nil, ErrNoTracks
	}

	fps := 0.0
	if s.opts.VideoPath != "" {
		fps, err = s.checkVideo(ctx, clip.Duration())
		if err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(s.opts.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	for i := range tracks {
		tr := &tracks[i]
		if fps > 0 {
			tr.Start, tr.End = adjustOnVideo(tr.Start, tr.End, fps, clip.Duration())
		}
		name := trackName(base, tr.Index, tr.Label)
		tr.AudioPath = filepath.Join(s.opts.OutDir, name+".wav")
		if err := audio.WriteFile(tr.AudioPath, clip.Slice(tr.Start, tr.End)); err != nil {
			return nil, err
		}
		if s.opts.VideoPath != "" {
			if err := s.sliceVideo(ctx, tr, name); err != nil {
				return nil, err
			}
		}
	}
	return tracks, nil
}

// cut groups the tier intervals into tracks. A matching label opens a
// new track; everything else extends the current one.
func (s *Segmenter) cut(tier *anndata.Tier) []Track {
	if tier == nil || len(tier.Intervals) == 0 {
		return nil
	}
	var tracks []Track
	for _, iv := range tier.Intervals {
		matches := s.opts.Pattern != nil && s.opts.Pattern.MatchString(iv.Label)
		if matches || len(tracks) == 0 {
			label := ""
			if matches {
				label = iv.Label
			}
			tracks = append(tracks, Track{
				Index: len(tracks) + 1,
				Label: label,
				Start: iv.Start,
				End:   iv.End,
			})
			continue
		}
		tracks[len(tracks)-1].End = iv.End
	}
	return tracks
}

func (s *Segmenter) checkVideo(ctx context.Context, audioDuration float64) (float64, error) {
	result, err := s.probe(ctx, s.opts.FFprobeBinary, s.opts.VideoPath)
	if err != nil {
		return 0, err
	}
	videoDuration := result.DurationSeconds()
	if math.IsNaN(videoDuration) || videoDuration <= 0 {
		return 0, fmt.Errorf("%w: video has no readable duration", ErrMediaMismatch)
	}
	if math.Abs(videoDuration-audioDuration) > s.opts.DurationTolerance {
		return 0, fmt.Errorf("%w: video %.3fs vs audio %.3fs", ErrMediaMismatch, videoDuration, audioDuration)
	}
	return result.VideoFrameRate(), nil
}

func (s *Segmenter) sliceVideo(ctx context.Context, tr *Track, name string) error {
	tr.VideoPath = filepath.Join(s.opts.OutDir, name+filepath.Ext(s.opts.VideoPath))
	binary := s.opts.FFmpegBinary
	if binary == "" {
		binary = "ffmpeg"
	}
	args := []string{
		"-v", "error",
		"-y",
		"-ss", fmt.Sprintf("%.3f", tr.Start),
		"-to", fmt.Sprintf("%.3f", tr.End),
		"-i", s.opts.VideoPath,
		"-c", "copy",
		tr.VideoPath,
	}
	if err := s.slice(ctx, binary, args); err != nil {
		return fmt.Errorf("slice video: %w", err)
	}
	return nil
}

// adjustOnVideo moves boundaries onto the video frame grid, widening
// outward so no aligned content is cut off.
func adjustOnVideo(start, end, fps, duration float64) (float64, float64) {
	frame := 1.0 / fps
	start = math.Floor(start/frame) * frame
	end = math.Ceil(end/frame) * frame
	if start < 0 {
		start = 0
	}
	if end > duration {
		end = duration
	}
	return start, end
}

func trackName(base string, index int, label string) string {
	name := fmt.Sprintf("%s_%03d", base, index)
	if cleaned := sanitizeLabel(label); cleaned != "" {
		name += "_" + cleaned
	}
	return name
}

// sanitizeLabel keeps letters, digits, dash and underscore.
func sanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	return b.String()
}

func runFFmpeg(ctx context.Context, binary string, args []string) error {
	cmd := exec.CommandContext(ctx, binary, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
