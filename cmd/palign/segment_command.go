package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"palign/internal/anndata"
	"palign/internal/refine"
	"palign/internal/track"
)

func newSegmentCommand(ctx *commandContext) *cobra.Command {
	var audioPath string
	var alignmentPath string
	var videoPath string
	var outDir string
	var pattern string
	var tierName string

	cmd := &cobra.Command{
		Use:   "segment",
		Short: "Cut a recording into tracks at aligned boundaries",
		Long: "Segment reads an aligned TextGrid and slices the recording into one\n" +
			"file per track. Track boundaries open at intervals whose label matches\n" +
			"the split pattern; when a video file is given, boundaries are widened\n" +
			"onto the video frame grid and matching video slices are written.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(audioPath) == "" {
				return fmt.Errorf("--audio is required")
			}
			if strings.TrimSpace(alignmentPath) == "" {
				return fmt.Errorf("--alignment is required")
			}

			rawPattern := strings.TrimSpace(pattern)
			if rawPattern == "" {
				rawPattern = cfg.Track.Pattern
			}
			var splitPattern *regexp.Regexp
			if rawPattern != "" {
				splitPattern, err = regexp.Compile(rawPattern)
				if err != nil {
					return fmt.Errorf("compile split pattern: %w", err)
				}
			}

			tr, err := anndata.ReadTextGridFile(alignmentPath)
			if err != nil {
				return err
			}
			name := strings.TrimSpace(tierName)
			if name == "" {
				name = refine.TokensTierName
			}
			tier, err := tr.Tier(name)
			if err != nil {
				return fmt.Errorf("tier %q: %w", name, err)
			}

			target := strings.TrimSpace(outDir)
			if target == "" {
				target = filepath.Dir(audioPath)
			}
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}

			segmenter := track.New(track.Options{
				Pattern:           splitPattern,
				OutDir:            target,
				VideoPath:         videoPath,
				DurationTolerance: cfg.Track.DurationToleranceSeconds,
				FFmpegBinary:      cfg.Track.FFmpegBinary,
				FFprobeBinary:     cfg.Track.FFprobeBinary,
			})
			tracks, err := segmenter.Segment(cmd.Context(), audioPath, tier)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTrackTable(tracks))
			fmt.Fprintf(out, "Wrote %d tracks to %s\n", len(tracks), target)
			return nil
		},
	}

	cmd.Flags().StringVar(&audioPath, "audio", "", "Recording to segment (WAV)")
	cmd.Flags().StringVar(&alignmentPath, "alignment", "", "Aligned TextGrid with the track tier")
	cmd.Flags().StringVar(&videoPath, "video", "", "Companion video to slice alongside the audio")
	cmd.Flags().StringVar(&outDir, "out", "", "Output directory (defaults next to the recording)")
	cmd.Flags().StringVar(&pattern, "pattern", "", "Regexp opening a new track on matching labels (overrides config)")
	cmd.Flags().StringVar(&tierName, "tier", "", "Tier to segment on (defaults to "+refine.TokensTierName+")")
	return cmd
}

func renderTrackTable(tracks []track.Track) string {
	rows := make([][]string, 0, len(tracks))
	for _, tr := range tracks {
		video := tr.VideoPath
		if video == "" {
			video = "-"
		}
		rows = append(rows, []string{
			strconv.Itoa(tr.Index),
			fmt.Sprintf("%.3f", tr.Start),
			fmt.Sprintf("%.3f", tr.End),
			filepath.Base(tr.AudioPath),
			video,
		})
	}
	return renderTable([]string{"#", "Start", "End", "Audio", "Video"}, rows, 0, 1, 2)
}
