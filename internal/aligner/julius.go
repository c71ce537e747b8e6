package aligner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"palign/internal/dict"
	"palign/internal/grammar"
	"palign/internal/media/audio"
	"palign/internal/services/julius"
)

func init() {
	Register("julius", func(opts Options) Aligner {
		return &juliusAligner{opts: opts}
	})
}

// juliusAligner delegates the search to an external Julius process and
// maps its phoneme output back onto the grammar for token attribution.
type juliusAligner struct {
	opts Options
}

func (a *juliusAligner) Name() string { return "julius" }

func (a *juliusAligner) Align(ctx context.Context, task Task) (*RawAlignment, error) {
	clip, err := audio.ReadFile(task.AudioPath)
	if err != nil {
		return nil, err
	}

	client, err := julius.New(a.opts.JuliusBinary, a.opts.Timeout)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "palign-julius-")
	if err != nil {
		return nil, fmt.Errorf("julius workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	base := filepath.Join(workDir, "gram")
	if err := julius.WriteGrammarFiles(base, task.Grammar); err != nil {
		return nil, err
	}

	segs, err := client.Align(ctx, julius.Request{
		AudioPath:   task.AudioPath,
		GrammarBase: base,
		ModelDir:    task.ModelDir,
	})
	if err != nil {
		switch {
		case errors.Is(err, julius.ErrTimeout):
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		case errors.Is(err, julius.ErrNoAlignment):
			return nil, fmt.Errorf("%w: %v", ErrNoPath, err)
		case errors.Is(err, julius.ErrCrash):
			return nil, fmt.Errorf("%w: %v", ErrCrash, err)
		}
		return nil, err
	}

	return a.convert(task.Grammar, segs, clip.Duration()), nil
}

// convert turns engine frames into seconds and attributes tokens by
// replaying the phone sequence through the grammar.
func (a *juliusAligner) convert(g *grammar.Grammar, segs []julius.Segment, duration float64) *RawAlignment {
	shift := a.opts.frameShiftSeconds()
	phones := make([]string, len(segs))
	for i, seg := range segs {
		phones[i] = seg.Phone
	}
	path, matched := matchPath(g, phones)

	raw := &RawAlignment{Duration: duration}
	for i, seg := range segs {
		out := RawSegment{
			Start:      float64(seg.StartFrame) * shift,
			End:        float64(seg.EndFrame+1) * shift,
			Phone:      seg.Phone,
			TokenIndex: -1,
			Score:      seg.Score,
		}
		if matched {
			arc := path[i]
			out.Phone = arc.Phone
			out.Token = arc.Token
			out.TokenIndex = arc.TokenIndex
			out.Tag = arc.Tag
		} else if isSilenceLabel(seg.Phone) {
			out.Phone = dict.SilencePhone
			out.Tag = grammar.TagSilence
		}
		raw.Segments = append(raw.Segments, out)
		raw.Score += seg.Score
	}
	if n := len(raw.Segments); n > 0 {
		raw.Segments[0].Start = 0
		raw.Segments[n-1].End = duration
	}
	return raw
}

// matchPath finds a start-to-end arc sequence whose phone labels equal
// the recognized sequence. Silence-family labels match silence arcs.
func matchPath(g *grammar.Grammar, phones []string) ([]grammar.Arc, bool) {
	outgoing := make(map[int][]grammar.Arc)
	for _, arc := range g.Arcs() {
		outgoing[arc.From] = append(outgoing[arc.From], arc)
	}

	var walk func(node, i int, path []grammar.Arc) ([]grammar.Arc, bool)
	walk = func(node, i int, path []grammar.Arc) ([]grammar.Arc, bool) {
		if i == len(phones) {
			if node == g.End() {
				return append([]grammar.Arc(nil), path...), true
			}
			return nil, false
		}
		for _, arc := range outgoing[node] {
			if !phoneMatches(phones[i], arc.Phone) {
				continue
			}
			if found, ok := walk(arc.To, i+1, append(path, arc)); ok {
				return found, true
			}
		}
		return nil, false
	}
	return walk(g.Start(), 0, nil)
}

func phoneMatches(recognized, arcPhone string) bool {
	if recognized == arcPhone {
		return true
	}
	return dict.IsSilence(arcPhone) && isSilenceLabel(recognized)
}

// isSilenceLabel also accepts the engine's boundary names silB/silE.
func isSilenceLabel(phone string) bool {
	if dict.IsSilence(phone) {
		return true
	}
	return strings.HasPrefix(strings.ToLower(phone), "sil")
}
