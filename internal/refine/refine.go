// Package refine validates and repairs raw engine output into the
// final alignment: boundaries snapped to the frame grid, degenerate
// intervals merged away, contiguity and coverage enforced, fallback
// spans tagged. Alignments that cannot be repaired fail loudly rather
// than ship guessed boundaries.
package refine

import (
	"errors"
	"fmt"
	"math"
	"time"

	"palign/internal/aligner"
	"palign/internal/anndata"
	"palign/internal/dict"
	"palign/internal/grammar"
)

// ErrIncompleteAlignment reports coverage gaps that survived repair.
var ErrIncompleteAlignment = errors.New("incomplete alignment")

// PhonTierName and TokensTierName are the output tier names.
const (
	PhonTierName   = "PhonAlign"
	TokensTierName = "TokensAlign"
)

const timeEps = 1e-9

// Interval is one refined alignment unit.
type Interval struct {
	Start      float64
	End        float64
	Label      string
	Token      string
	TokenIndex int
	Tag        grammar.Tag
}

// Alignment is the refined result for one utterance: phone-level and
// token-level interval sequences covering [0, Duration].
type Alignment struct {
	Phones   []Interval
	Tokens   []Interval
	Duration float64
}

// Options carries the frame grid parameters.
type Options struct {
	FrameShift    time.Duration
	SnapTolerance time.Duration
}

func (o Options) frameShift() float64 {
	if o.FrameShift <= 0 {
		return 0.01
	}
	return o.FrameShift.Seconds()
}

func (o Options) snapTolerance() float64 {
	if o.SnapTolerance < 0 {
		return 0
	}
	if o.SnapTolerance == 0 {
		return o.frameShift() / 2
	}
	return o.SnapTolerance.Seconds()
}

// Refine validates and normalizes raw engine output.
func Refine(raw *aligner.RawAlignment, opts Options) (*Alignment, error) {
	if raw == nil || len(raw.Segments) == 0 {
		return nil, fmt.Errorf("%w: empty raw alignment", ErrIncompleteAlignment)
	}

	phones := make([]Interval, 0, len(raw.Segments))
	for _, seg := range raw.Segments {
		phones = append(phones, Interval{
			Start:      seg.Start,
			End:        seg.End,
			Label:      seg.Phone,
			Token:      seg.Token,
			TokenIndex: seg.TokenIndex,
			Tag:        seg.Tag,
		})
	}

	snapBoundaries(phones, raw.Duration, opts)
	phones = mergeDegenerate(phones)
	if err := checkCoverage(phones, raw.Duration); err != nil {
		return nil, err
	}

	return &Alignment{
		Phones:   phones,
		Tokens:   deriveTokens(phones),
		Duration: raw.Duration,
	}, nil
}

// snapBoundaries moves interior boundaries onto the frame grid when
// they fall within tolerance. The outer edges stay pinned to 0 and the
// clip duration. Only boundaries that are already shared (within
// tolerance) move as a pair; a genuine gap in the raw alignment is
// left in place for checkCoverage to reject.
func snapBoundaries(phones []Interval, duration float64, opts Options) {
	shift := opts.frameShift()
	tol := opts.snapTolerance()
	if len(phones) == 0 {
		return
	}
	phones[0].Start = 0
	phones[len(phones)-1].End = duration
	for i := 0; i < len(phones)-1; i++ {
		b := phones[i].End
		snapped := math.Round(b/shift) * shift
		if math.Abs(snapped-b) <= tol+timeEps {
			b = snapped
		}
		if b > duration {
			b = duration
		}
		if b < 0 {
			b = 0
		}
		contiguous := math.Abs(phones[i+1].Start-phones[i].End) <= tol+timeEps
		phones[i].End = b
		if contiguous {
			phones[i+1].Start = b
		}
	}
}

// mergeDegenerate drops zero-duration intervals, preferring to give
// their position to a silence neighbor.
func mergeDegenerate(phones []Interval) []Interval {
	out := phones[:0]
	for i := 0; i < len(phones); i++ {
		iv := phones[i]
		if iv.End-iv.Start > timeEps {
			out = append(out, iv)
			continue
		}
		// Zero-duration. Stretch the silence neighbor over it, or the
		// previous interval when neither neighbor is silence.
		switch {
		case len(out) > 0 && dict.IsSilence(out[len(out)-1].Label):
			out[len(out)-1].End = iv.End
		case i+1 < len(phones) && dict.IsSilence(phones[i+1].Label):
			phones[i+1].Start = iv.Start
		case len(out) > 0:
			out[len(out)-1].End = iv.End
		case i+1 < len(phones):
			phones[i+1].Start = iv.Start
		}
	}
	return out
}

func checkCoverage(phones []Interval, duration float64) error {
	if len(phones) == 0 {
		return fmt.Errorf("%w: no intervals", ErrIncompleteAlignment)
	}
	if math.Abs(phones[0].Start) > timeEps {
		return fmt.Errorf("%w: starts at %g", ErrIncompleteAlignment, phones[0].Start)
	}
	last := phones[len(phones)-1]
	if math.Abs(last.End-duration) > timeEps {
		return fmt.Errorf("%w: ends at %g, clip is %g", ErrIncompleteAlignment, last.End, duration)
	}
	for i, iv := range phones {
		if iv.End-iv.Start <= timeEps {
			return fmt.Errorf("%w: empty interval %q at %g", ErrIncompleteAlignment, iv.Label, iv.Start)
		}
		if i > 0 && math.Abs(iv.Start-phones[i-1].End) > timeEps {
			return fmt.Errorf("%w: gap between %g and %g", ErrIncompleteAlignment, phones[i-1].End, iv.Start)
		}
	}
	return nil
}

// deriveTokens folds consecutive phones of one token into a token
// interval, keeping silences as their own intervals so the token tier
// covers the clip too.
func deriveTokens(phones []Interval) []Interval {
	var tokens []Interval
	for _, p := range phones {
		label := p.Token
		if p.TokenIndex < 0 {
			label = dict.SilencePhone
		}
		if n := len(tokens); n > 0 && tokens[n-1].TokenIndex == p.TokenIndex && (p.TokenIndex >= 0 || dict.IsSilence(p.Label)) {
			tokens[n-1].End = p.End
			if p.Tag > tokens[n-1].Tag {
				tokens[n-1].Tag = p.Tag
			}
			continue
		}
		tokens = append(tokens, Interval{
			Start:      p.Start,
			End:        p.End,
			Label:      label,
			Token:      p.Token,
			TokenIndex: p.TokenIndex,
			Tag:        p.Tag,
		})
	}
	return tokens
}

// Transcription renders the alignment as PhonAlign and TokensAlign
// tiers. Fallback spans keep their token text with a trailing marker
// so they stay visible in the output file.
func (a *Alignment) Transcription() *anndata.Transcription {
	tr := &anndata.Transcription{}
	phonTier := &anndata.Tier{Name: PhonTierName}
	for _, p := range a.Phones {
		phonTier.Append(anndata.Interval{Start: p.Start, End: p.End, Label: p.Label})
	}
	tokenTier := &anndata.Tier{Name: TokensTierName}
	for _, tk := range a.Tokens {
		label := tk.Label
		if tk.Tag == grammar.TagOOV {
			label += "*"
		}
		tokenTier.Append(anndata.Interval{Start: tk.Start, End: tk.End, Label: label})
	}
	tr.Add(phonTier)
	tr.Add(tokenTier)
	return tr
}

// Raw converts the refined phones back to engine form, used by the
// idempotence checks and by callers that re-refine after edits.
func (a *Alignment) Raw() *aligner.RawAlignment {
	raw := &aligner.RawAlignment{Duration: a.Duration}
	for _, p := range a.Phones {
		raw.Segments = append(raw.Segments, aligner.RawSegment{
			Start:      p.Start,
			End:        p.End,
			Phone:      p.Label,
			Token:      p.Token,
			TokenIndex: p.TokenIndex,
			Tag:        p.Tag,
		})
	}
	return raw
}
