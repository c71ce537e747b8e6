package testsupport

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"palign/internal/anndata"
	"palign/internal/media/audio"
)

// WriteWAV writes a mono 16kHz sine tone of the given length and
// returns its path.
func WriteWAV(t testing.TB, dir, name string, seconds float64) string {
	t.Helper()

	n := int(seconds * 16000)
	data := make([]int, n)
	for i := range data {
		data[i] = int(5000 * math.Sin(2*math.Pi*200*float64(i)/16000))
	}
	path := filepath.Join(dir, name)
	if err := audio.WriteFile(path, audio.NewClip(16000, 1, 16, data)); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteTranscription writes a TextGrid with one transcription tier
// containing the given labelled spans.
func WriteTranscription(t testing.TB, dir, name string, intervals []anndata.Interval) string {
	t.Helper()

	tr := &anndata.Transcription{}
	tr.Add(&anndata.Tier{Name: "transcription", Intervals: intervals})
	path := filepath.Join(dir, name)
	if err := anndata.WriteTextGridFile(path, tr); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// WriteDict writes a pronunciation dictionary with the given lines.
func WriteDict(t testing.TB, dir, name string, entries ...string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(strings.Join(entries, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
