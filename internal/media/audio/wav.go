package audio

import (
	"errors"
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrNotWAV reports a file that is not a decodable PCM WAV.
var ErrNotWAV = errors.New("not a valid wav file")

// Clip is an in-memory PCM audio segment.
type Clip struct {
	SampleRate  int
	NumChannels int
	BitDepth    int
	data        []int
}

// NewClip builds a clip from interleaved integer samples.
func NewClip(sampleRate, numChannels, bitDepth int, data []int) *Clip {
	return &Clip{
		SampleRate:  sampleRate,
		NumChannels: numChannels,
		BitDepth:    bitDepth,
		data:        data,
	}
}

// ReadFile decodes a WAV file into a Clip.
func ReadFile(path string) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotWAV, path, err)
	}
	if buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: %s: missing format", ErrNotWAV, path)
	}
	return &Clip{
		SampleRate:  buf.Format.SampleRate,
		NumChannels: buf.Format.NumChannels,
		BitDepth:    int(dec.BitDepth),
		data:        buf.Data,
	}, nil
}

// WriteFile encodes the clip as PCM WAV at path.
func WriteFile(path string, clip *Clip) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create audio: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, clip.SampleRate, clip.BitDepth, clip.NumChannels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: clip.NumChannels, SampleRate: clip.SampleRate},
		Data:           clip.data,
		SourceBitDepth: clip.BitDepth,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write audio: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finalize audio: %w", err)
	}
	return nil
}

// NumFrames returns the per-channel sample count.
func (c *Clip) NumFrames() int {
	if c.NumChannels == 0 {
		return 0
	}
	return len(c.data) / c.NumChannels
}

// Duration returns the clip length in seconds.
func (c *Clip) Duration() float64 {
	if c.SampleRate == 0 {
		return 0
	}
	return float64(c.NumFrames()) / float64(c.SampleRate)
}

// Slice returns the sub-clip covering [start, end] seconds, clamped to
// the clip bounds.
func (c *Clip) Slice(start, end float64) *Clip {
	from := int(math.Round(start*float64(c.SampleRate))) * c.NumChannels
	to := int(math.Round(end*float64(c.SampleRate))) * c.NumChannels
	if from < 0 {
		from = 0
	}
	if to > len(c.data) {
		to = len(c.data)
	}
	if from > to {
		from = to
	}
	return &Clip{
		SampleRate:  c.SampleRate,
		NumChannels: c.NumChannels,
		BitDepth:    c.BitDepth,
		data:        c.data[from:to],
	}
}

// Samples returns normalized mono samples in [-1, 1], averaging
// channels when the clip is multichannel.
func (c *Clip) Samples() []float64 {
	frames := c.NumFrames()
	out := make([]float64, frames)
	scale := 1.0
	if c.BitDepth > 1 {
		scale = 1.0 / float64(int(1)<<uint(c.BitDepth-1))
	}
	for i := 0; i < frames; i++ {
		sum := 0
		for ch := 0; ch < c.NumChannels; ch++ {
			sum += c.data[i*c.NumChannels+ch]
		}
		out[i] = float64(sum) / float64(c.NumChannels) * scale
	}
	return out
}
