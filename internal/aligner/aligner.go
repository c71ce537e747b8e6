// Package aligner provides the time-alignment engines. Each engine
// takes an audio clip, a phone grammar, and an acoustic model and
// returns a raw time-aligned phone sequence for later refinement.
package aligner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"palign/internal/acm"
	"palign/internal/grammar"
)

// Default is the engine used when the configuration names none.
const Default = "viterbi"

var (
	// ErrNoPath reports that no grammar-legal path achieved a finite
	// score. The caller may retry once with a relaxed grammar.
	ErrNoPath = errors.New("no grammar-legal path")
	// ErrTimeout reports that the external recognizer did not return
	// within the configured bound.
	ErrTimeout = errors.New("recognizer timed out")
	// ErrCrash reports that the external recognizer exited non-zero.
	ErrCrash = errors.New("recognizer crashed")
)

// Task is one alignment request: a clip on disk plus the static inputs
// shared across the run.
type Task struct {
	AudioPath string
	Grammar   *grammar.Grammar
	Model     *acm.Model
	ModelDir  string
}

// RawSegment is one time-aligned unit from an engine. Times are
// seconds relative to the clip start.
type RawSegment struct {
	Start      float64
	End        float64
	Phone      string
	Token      string
	TokenIndex int // -1 for silence
	Tag        grammar.Tag
	Score      float64
}

// Duration returns the segment length in seconds.
func (s RawSegment) Duration() float64 {
	return s.End - s.Start
}

// RawAlignment is the ordered engine output for one clip.
type RawAlignment struct {
	Segments []RawSegment
	Duration float64
	Score    float64
}

// Aligner is a time-alignment engine.
type Aligner interface {
	Name() string
	Align(ctx context.Context, task Task) (*RawAlignment, error)
}

// Options carries the engine tunables from the configuration.
type Options struct {
	FrameShift   time.Duration
	FrameLength  time.Duration
	JuliusBinary string
	Timeout      time.Duration
	Logger       *slog.Logger
}

func (o Options) frameShiftSeconds() float64 {
	if o.FrameShift <= 0 {
		return 0.01
	}
	return o.FrameShift.Seconds()
}

func (o Options) frameLengthSeconds() float64 {
	if o.FrameLength <= 0 {
		return 0.025
	}
	return o.FrameLength.Seconds()
}

func (o Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

// Factory builds an engine from options.
type Factory func(opts Options) Aligner

var registry = map[string]Factory{}

// Register adds an engine factory under name. Later registrations
// replace earlier ones.
func Register(name string, factory Factory) {
	registry[name] = factory
}

// New builds the named engine, or an error listing the known names.
func New(name string, opts Options) (Aligner, error) {
	if name == "" {
		name = Default
	}
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown aligner %q (known: %v)", name, Names())
	}
	return factory(opts), nil
}

// Names returns the registered engine names, sorted.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
