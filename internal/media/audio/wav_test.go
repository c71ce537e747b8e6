package audio

import (
	"math"
	"path/filepath"
	"testing"
)

func sineClip(t *testing.T, sampleRate int, seconds float64) *Clip {
	t.Helper()
	n := int(seconds * float64(sampleRate))
	data := make([]int, n)
	for i := range data {
		data[i] = int(10000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}
	return &Clip{SampleRate: sampleRate, NumChannels: 1, BitDepth: 16, data: data}
}

func TestWriteReadRoundTrip(t *testing.T) {
	clip := sineClip(t, 16000, 0.5)
	path := filepath.Join(t.TempDir(), "tone.wav")
	if err := WriteFile(path, clip); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if got.SampleRate != 16000 || got.NumChannels != 1 {
		t.Fatalf("format mismatch: rate=%d channels=%d", got.SampleRate, got.NumChannels)
	}
	if got.NumFrames() != clip.NumFrames() {
		t.Fatalf("frames = %d, want %d", got.NumFrames(), clip.NumFrames())
	}
	for i := range clip.data {
		if got.data[i] != clip.data[i] {
			t.Fatalf("sample %d = %d, want %d", i, got.data[i], clip.data[i])
		}
	}
}

func TestDuration(t *testing.T) {
	clip := sineClip(t, 16000, 2.0)
	if d := clip.Duration(); math.Abs(d-2.0) > 1e-9 {
		t.Fatalf("Duration = %v, want 2.0", d)
	}
}

func TestSlice(t *testing.T) {
	clip := sineClip(t, 16000, 2.0)
	sub := clip.Slice(0.5, 1.5)
	if d := sub.Duration(); math.Abs(d-1.0) > 1e-6 {
		t.Fatalf("slice duration = %v, want 1.0", d)
	}
	if sub.data[0] != clip.data[8000] {
		t.Fatalf("slice does not start at expected frame")
	}

	clamped := clip.Slice(1.5, 10.0)
	if d := clamped.Duration(); math.Abs(d-0.5) > 1e-6 {
		t.Fatalf("clamped duration = %v, want 0.5", d)
	}

	empty := clip.Slice(3.0, 4.0)
	if empty.NumFrames() != 0 {
		t.Fatalf("out-of-range slice has %d frames", empty.NumFrames())
	}
}

func TestSamplesNormalized(t *testing.T) {
	clip := &Clip{
		SampleRate:  16000,
		NumChannels: 2,
		BitDepth:    16,
		data:        []int{16384, 16384, -32768, -32768},
	}
	got := clip.Samples()
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if math.Abs(got[0]-0.5) > 1e-9 {
		t.Fatalf("got[0] = %v, want 0.5", got[0])
	}
	if math.Abs(got[1]+1.0) > 1e-9 {
		t.Fatalf("got[1] = %v, want -1.0", got[1])
	}
}

func TestReadFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "noise.wav")
	if err := WriteFile(path, sineClip(t, 16000, 0.1)); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := ReadFile(filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
