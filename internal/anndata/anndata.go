// Package anndata holds the annotation data model shared by the
// alignment pipeline: tiers of labelled time intervals, read from and
// written to Praat TextGrid files, plus HTK-style label output.
package anndata

import (
	"errors"
	"strings"
)

// ErrTierNotFound reports a tier lookup that matched nothing.
var ErrTierNotFound = errors.New("tier not found")

// Interval is a labelled time span within a tier. Times are seconds
// from the start of the media file.
type Interval struct {
	Start float64
	End   float64
	Label string
}

// Duration returns the interval length in seconds.
func (iv Interval) Duration() float64 {
	return iv.End - iv.Start
}

// Tier is a named, time-ordered sequence of intervals.
type Tier struct {
	Name      string
	Intervals []Interval
}

// Append adds an interval at the end of the tier.
func (t *Tier) Append(iv Interval) {
	t.Intervals = append(t.Intervals, iv)
}

// Min returns the start time of the tier, or 0 when empty.
func (t *Tier) Min() float64 {
	if len(t.Intervals) == 0 {
		return 0
	}
	return t.Intervals[0].Start
}

// Max returns the end time of the tier, or 0 when empty.
func (t *Tier) Max() float64 {
	if len(t.Intervals) == 0 {
		return 0
	}
	return t.Intervals[len(t.Intervals)-1].End
}

// Transcription is an ordered collection of tiers over a common time
// span.
type Transcription struct {
	Tiers []*Tier
}

// Tier returns the named tier, case-insensitively.
func (tr *Transcription) Tier(name string) (*Tier, error) {
	for _, t := range tr.Tiers {
		if strings.EqualFold(t.Name, name) {
			return t, nil
		}
	}
	return nil, ErrTierNotFound
}

// Add appends a tier to the transcription.
func (tr *Transcription) Add(t *Tier) {
	tr.Tiers = append(tr.Tiers, t)
}

// Min returns the earliest tier start across all tiers.
func (tr *Transcription) Min() float64 {
	min := 0.0
	for i, t := range tr.Tiers {
		if i == 0 || t.Min() < min {
			min = t.Min()
		}
	}
	return min
}

// Max returns the latest tier end across all tiers.
func (tr *Transcription) Max() float64 {
	max := 0.0
	for _, t := range tr.Tiers {
		if t.Max() > max {
			max = t.Max()
		}
	}
	return max
}

// Utterance is a transcribed speech span extracted from an input tier.
type Utterance struct {
	Start  float64
	End    float64
	Text   string
	Tokens []string
}

// Utterances extracts the non-empty intervals of a tier as utterances,
// splitting each label into whitespace-delimited tokens.
func Utterances(t *Tier) []Utterance {
	var out []Utterance
	for _, iv := range t.Intervals {
		text := strings.TrimSpace(iv.Label)
		if text == "" {
			continue
		}
		out = append(out, Utterance{
			Start:  iv.Start,
			End:    iv.End,
			Text:   text,
			Tokens: strings.Fields(text),
		})
	}
	return out
}
