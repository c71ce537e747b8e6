package feature_test

import (
	"math"
	"testing"

	"palign/internal/feature"
)

func sine(freq float64, seconds float64, rate int) []float64 {
	samples := make([]float64, int(seconds*float64(rate)))
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return samples
}

func TestExtractShape(t *testing.T) {
	cfg := feature.DefaultConfig()
	samples := sine(440, 1.0, cfg.SampleRate)

	features, err := feature.Extract(samples, cfg)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	// 1s at 10ms shift with 25ms frames: 1 + (16000-400)/160 frames.
	if want := 98; len(features) != want {
		t.Fatalf("expected %d frames, got %d", want, len(features))
	}
	for i, row := range features {
		if len(row) != cfg.Dim() {
			t.Fatalf("frame %d has dim %d, want %d", i, len(row), cfg.Dim())
		}
	}
}

func TestExtractCMNZeroMean(t *testing.T) {
	cfg := feature.DefaultConfig()
	cfg.UseDelta = false
	cfg.UseDeltaDelta = false
	features, err := feature.Extract(sine(200, 0.5, cfg.SampleRate), cfg)
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	for d := 0; d < cfg.NumCepstra; d++ {
		sum := 0.0
		for _, row := range features {
			sum += row[d]
		}
		if mean := sum / float64(len(features)); math.Abs(mean) > 1e-9 {
			t.Fatalf("dimension %d mean = %g after CMN", d, mean)
		}
	}
}

func TestExtractTooShort(t *testing.T) {
	cfg := feature.DefaultConfig()
	if _, err := feature.Extract(make([]float64, 10), cfg); err == nil {
		t.Fatal("expected error for audio shorter than one frame")
	}
}

func TestForModelDim(t *testing.T) {
	cfg := feature.DefaultConfig()
	cases := []struct {
		vecSize int
		wantDim int
	}{
		{13, 13},
		{26, 26},
		{39, 39},
		{25, 25},
	}
	for _, tc := range cases {
		got, err := cfg.ForModelDim(tc.vecSize)
		if err != nil {
			t.Fatalf("ForModelDim(%d) error: %v", tc.vecSize, err)
		}
		if got.Dim() != tc.wantDim {
			t.Fatalf("ForModelDim(%d).Dim() = %d", tc.vecSize, got.Dim())
		}
	}
}
