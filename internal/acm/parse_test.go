package acm_test

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"palign/internal/acm"
)

func phoneDef(name string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "~h \"%s\"\n<BEGINHMM>\n<NUMSTATES> 5\n", name)
	for state := 2; state <= 4; state++ {
		fmt.Fprintf(&b, "<STATE> %d\n<MEAN> 2\n 0.%d 0.%d\n<VARIANCE> 2\n 1.0 1.0\n", state, state, state+1)
	}
	b.WriteString("<TRANSP> 5\n")
	b.WriteString(" 0.0 1.0 0.0 0.0 0.0\n")
	b.WriteString(" 0.0 0.6 0.4 0.0 0.0\n")
	b.WriteString(" 0.0 0.0 0.6 0.4 0.0\n")
	b.WriteString(" 0.0 0.0 0.0 0.6 0.4\n")
	b.WriteString(" 0.0 0.0 0.0 0.0 0.0\n")
	b.WriteString("<ENDHMM>\n")
	return b.String()
}

func sampleHMMDefs() string {
	header := "~o\n<STREAMINFO> 1 2\n<VECSIZE> 2 <NULLD><MFCC><DIAGC>\n"
	return header + phoneDef("a") + phoneDef("t") + phoneDef("#")
}

func TestParseWellFormedModel(t *testing.T) {
	model, err := acm.Parse(strings.NewReader(sampleHMMDefs()))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if model.VecSize != 2 {
		t.Fatalf("unexpected vector size %d", model.VecSize)
	}
	if got := model.Phones(); len(got) != 3 {
		t.Fatalf("expected 3 phones, got %v", got)
	}
	hmm := model.HMM("a")
	if hmm == nil {
		t.Fatal("missing hmm for phone a")
	}
	if hmm.NumEmitting() != 3 {
		t.Fatalf("expected 3 emitting states, got %d", hmm.NumEmitting())
	}
	if hmm.EntryLog(0) != 0 {
		t.Fatalf("expected certain entry into first state, got %g", hmm.EntryLog(0))
	}
	if hmm.ExitLog(0) > acm.LogZero {
		t.Fatalf("expected no exit from first state, got %g", hmm.ExitLog(0))
	}
}

func TestParseToleratesCommentsAndWhitespace(t *testing.T) {
	defs := "# leading comment\n\n" + strings.ReplaceAll(sampleHMMDefs(), "<STATE> 2", "\n  <STATE>   2")
	if _, err := acm.Parse(strings.NewReader(defs)); err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
}

func TestParseRejectsVectorSizeMismatch(t *testing.T) {
	defs := strings.Replace(sampleHMMDefs(), "<MEAN> 2\n 0.2 0.3", "<MEAN> 3\n 0.2 0.3 0.4", 1)
	_, err := acm.Parse(strings.NewReader(defs))
	if !errors.Is(err, acm.ErrModelFormat) {
		t.Fatalf("expected ErrModelFormat, got %v", err)
	}
}

func TestParseRejectsMissingTransitions(t *testing.T) {
	defs := strings.Replace(sampleHMMDefs(), "<TRANSP> 5", "<TRANSP> 4", 1)
	_, err := acm.Parse(strings.NewReader(defs))
	if !errors.Is(err, acm.ErrModelFormat) {
		t.Fatalf("expected ErrModelFormat, got %v", err)
	}
}

func TestParseRejectsExitStateTransition(t *testing.T) {
	defs := strings.Replace(sampleHMMDefs(),
		" 0.0 0.0 0.0 0.0 0.0\n<ENDHMM>",
		" 0.0 1.0 0.0 0.0 0.0\n<ENDHMM>", 1)
	_, err := acm.Parse(strings.NewReader(defs))
	if !errors.Is(err, acm.ErrModelFormat) {
		t.Fatalf("expected ErrModelFormat, got %v", err)
	}
}

func TestParseRejectsStateIndexOutOfRange(t *testing.T) {
	defs := strings.Replace(sampleHMMDefs(), "<STATE> 4", "<STATE> 7", 1)
	_, err := acm.Parse(strings.NewReader(defs))
	if !errors.Is(err, acm.ErrModelFormat) {
		t.Fatalf("expected ErrModelFormat, got %v", err)
	}
}

func TestLoadChecksMonophonesListing(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hmmdefs"), sampleHMMDefs())
	writeFile(t, filepath.Join(dir, "monophones"), "a\nt\nzz\n")

	_, err := acm.Load(dir)
	if !errors.Is(err, acm.ErrPhonemeMissing) {
		t.Fatalf("expected ErrPhonemeMissing, got %v", err)
	}
}

func TestLoadAppliesTiedlistAliases(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "hmmdefs"), sampleHMMDefs())
	writeFile(t, filepath.Join(dir, "tiedlist"), "a\nsil #\n")

	model, err := acm.Load(dir)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !model.HasPhone("sil") {
		t.Fatal("expected tied alias sil to resolve")
	}
	if model.HMM("sil") != model.HMM("#") {
		t.Fatal("expected alias to share the base HMM")
	}
}

func TestLoadMissingHMMDefs(t *testing.T) {
	_, err := acm.Load(t.TempDir())
	if !errors.Is(err, acm.ErrModelFormat) {
		t.Fatalf("expected ErrModelFormat, got %v", err)
	}
}

func TestStateLogProbPeaksAtMean(t *testing.T) {
	model, err := acm.Parse(strings.NewReader(sampleHMMDefs()))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	state := model.HMM("a").Emitting[0]
	atMean := state.LogProb([]float64{0.2, 0.3})
	offMean := state.LogProb([]float64{5.0, -4.0})
	if atMean <= offMean {
		t.Fatalf("expected higher likelihood at mean: %g vs %g", atMean, offMean)
	}
}

func TestStateLogProbSumsAllMixtures(t *testing.T) {
	defs := "~o\n<STREAMINFO> 1 1\n<VECSIZE> 1 <NULLD><MFCC><DIAGC>\n" +
		"~h \"m\"\n<BEGINHMM>\n<NUMSTATES> 3\n" +
		"<STATE> 2\n<NUMMIXES> 3\n" +
		"<MIXTURE> 1 0.2\n<MEAN> 1\n 0.0\n<VARIANCE> 1\n 1.0\n" +
		"<MIXTURE> 2 0.3\n<MEAN> 1\n 1.0\n<VARIANCE> 1\n 1.0\n" +
		"<MIXTURE> 3 0.5\n<MEAN> 1\n 2.0\n<VARIANCE> 1\n 1.0\n" +
		"<TRANSP> 3\n 0.0 1.0 0.0\n 0.0 0.5 0.5\n 0.0 0.0 0.0\n<ENDHMM>\n"
	model, err := acm.Parse(strings.NewReader(defs))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	state := model.HMM("m").Emitting[0]

	// The best-scoring mixture is the last one, so every earlier term
	// must survive the running rebase of the log-sum-exp.
	x := 2.0
	density := 0.0
	for _, mix := range []struct{ weight, mean float64 }{
		{0.2, 0.0}, {0.3, 1.0}, {0.5, 2.0},
	} {
		diff := x - mix.mean
		density += mix.weight * math.Exp(-0.5*diff*diff) / math.Sqrt(2*math.Pi)
	}
	want := math.Log(density)

	got := state.LogProb([]float64{x})
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("LogProb = %.12f, want %.12f", got, want)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
