package batch

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"palign/internal/aligner"
	"palign/internal/anndata"
	"palign/internal/config"
	"palign/internal/logging"
	"palign/internal/media/audio"
	"palign/internal/refine"
	"palign/internal/services"
)

func writeRecording(t *testing.T, dir string, seconds float64) string {
	t.Helper()
	n := int(seconds * 16000)
	data := make([]int, n)
	for i := range data {
		data[i] = int(5000 * math.Sin(2*math.Pi*180*float64(i)/16000))
	}
	path := filepath.Join(dir, "rec.wav")
	if err := audio.WriteFile(path, audio.NewClip(16000, 1, 16, data)); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return path
}

func writeTranscription(t *testing.T, dir, text string) string {
	t.Helper()
	tr := &anndata.Transcription{}
	tr.Add(&anndata.Tier{Name: "transcription", Intervals: []anndata.Interval{
		{Start: 0, End: 0.5, Label: ""},
		{Start: 0.5, End: 1.7, Label: text},
		{Start: 1.7, End: 3.0, Label: ""},
	}})
	path := filepath.Join(dir, "rec.TextGrid")
	if err := anndata.WriteTextGridFile(path, tr); err != nil {
		t.Fatalf("write textgrid: %v", err)
	}
	return path
}

func writeDictFile(t *testing.T, dir string) string {
	t.Helper()
	content := strings.Join([]string{
		"the DH AH",
		"the(2) DH IY",
		"cat K AE T",
		"sat S AE T",
	}, "\n")
	path := filepath.Join(dir, "dict.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write dict: %v", err)
	}
	return path
}

func testConfig(t *testing.T, dir string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(dir, "work")
	cfg.Paths.LogDir = filepath.Join(dir, "logs")
	cfg.Align.Aligner = "basic"
	cfg.Align.Workers = 2
	cfg.Model.SnapToleranceMs = 5
	if err := os.MkdirAll(cfg.Paths.WorkDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	return &cfg
}

func testRequest(t *testing.T, dir, text string) Request {
	t.Helper()
	return Request{
		AudioPath: writeRecording(t, dir, 3.0),
		TransPath: writeTranscription(t, dir, text),
		DictPath:  writeDictFile(t, dir),
		OutDir:    filepath.Join(dir, "out"),
	}
}

func TestRunnerAlignsRecording(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	store := newTestStore(t)
	runner := NewRunner(cfg, store, logging.NewNop())

	result, err := runner.Run(context.Background(), testRequest(t, dir, "the cat"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FirstErr != nil {
		t.Fatalf("unexpected utterance failure: %v", result.FirstErr)
	}
	if !result.Summary.Succeeded() {
		t.Fatalf("run did not succeed: %+v", result.Summary)
	}

	tr, err := anndata.ReadTextGridFile(result.OutPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	phones, err := tr.Tier(refine.PhonTierName)
	if err != nil {
		t.Fatalf("phone tier: %v", err)
	}
	if phones.Min() != 0 || math.Abs(phones.Max()-3.0) > 1e-6 {
		t.Fatalf("phone tier spans %v..%v", phones.Min(), phones.Max())
	}
	allowed := map[string]bool{"#": true, "DH": true, "AH": true, "IY": true, "K": true, "AE": true, "T": true}
	for _, iv := range phones.Intervals {
		if !allowed[iv.Label] {
			t.Fatalf("unexpected phone %q", iv.Label)
		}
	}
	tokens, err := tr.Tier(refine.TokensTierName)
	if err != nil {
		t.Fatalf("token tier: %v", err)
	}
	var labels []string
	for _, iv := range tokens.Intervals {
		if iv.Label != "#" {
			labels = append(labels, iv.Label)
		}
	}
	if len(labels) != 2 || labels[0] != "the" || labels[1] != "cat" {
		t.Fatalf("unexpected token labels %v", labels)
	}

	if _, err := os.Stat(strings.TrimSuffix(result.OutPath, ".TextGrid") + ".lab"); err != nil {
		t.Fatalf("missing lab output: %v", err)
	}
}

func TestRunnerUnknownWordFailPolicy(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	store := newTestStore(t)
	runner := NewRunner(cfg, store, logging.NewNop())

	result, err := runner.Run(context.Background(), testRequest(t, dir, "xyzzy"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FirstErr == nil {
		t.Fatal("expected an utterance failure")
	}
	if !errors.Is(result.FirstErr, services.ErrVocabulary) {
		t.Fatalf("expected vocabulary error, got %v", result.FirstErr)
	}
	if result.Summary.Failed() != 1 {
		t.Fatalf("expected 1 failed utterance: %+v", result.Summary)
	}
	if got := services.ExitCode(result.FirstErr); got != services.ExitVocabulary {
		t.Fatalf("exit code %d", got)
	}
}

func TestRunnerUnknownWordSkipPolicy(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	store := newTestStore(t)
	runner := NewRunner(cfg, store, logging.NewNop())

	req := testRequest(t, dir, "the xyzzy")
	req.Policy = "skip"
	result, err := runner.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FirstErr != nil {
		t.Fatalf("unexpected failure: %v", result.FirstErr)
	}
	if !result.Summary.Succeeded() {
		t.Fatalf("run did not succeed: %+v", result.Summary)
	}

	tr, err := anndata.ReadTextGridFile(result.OutPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	tokens, err := tr.Tier(refine.TokensTierName)
	if err != nil {
		t.Fatalf("token tier: %v", err)
	}
	found := false
	for _, iv := range tokens.Intervals {
		if iv.Label == "xyzzy*" {
			found = true
		}
	}
	if !found {
		t.Fatal("skipped token not marked in output")
	}
}

func TestRunnerFailureIsolation(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig(t, dir)
	store := newTestStore(t)
	runner := NewRunner(cfg, store, logging.NewNop())

	tr := &anndata.Transcription{}
	tr.Add(&anndata.Tier{Name: "transcription", Intervals: []anndata.Interval{
		{Start: 0.2, End: 1.0, Label: "the cat"},
		{Start: 1.2, End: 2.0, Label: "xyzzy"},
		{Start: 2.2, End: 2.9, Label: "sat"},
	}})
	transPath := filepath.Join(dir, "rec.TextGrid")
	if err := anndata.WriteTextGridFile(transPath, tr); err != nil {
		t.Fatalf("write textgrid: %v", err)
	}

	req := Request{
		AudioPath: writeRecording(t, dir, 3.0),
		TransPath: transPath,
		DictPath:  writeDictFile(t, dir),
		OutDir:    filepath.Join(dir, "out"),
	}
	result, err := runner.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Summary.Failed() != 1 || result.Summary.Counts[StatusDone] != 2 {
		t.Fatalf("siblings not isolated: %+v", result.Summary)
	}
	if result.OutPath == "" {
		t.Fatal("expected output for the surviving utterances")
	}
}

type timeoutEngine struct{}

func (timeoutEngine) Name() string { return "stall" }

func (timeoutEngine) Align(ctx context.Context, task aligner.Task) (*aligner.RawAlignment, error) {
	return nil, aligner.ErrTimeout
}

func writeModelDir(t *testing.T, dir string) string {
	t.Helper()
	modelDir := filepath.Join(dir, "model")
	if err := os.MkdirAll(modelDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	defs := "~o\n<STREAMINFO> 1 2\n<VECSIZE> 2 <NULLD><MFCC><DIAGC>\n" +
		"~h \"#\"\n<BEGINHMM>\n<NUMSTATES> 3\n" +
		"<STATE> 2\n<MEAN> 2\n 0.0 0.0\n<VARIANCE> 2\n 1.0 1.0\n" +
		"<TRANSP> 3\n 0.0 1.0 0.0\n 0.0 0.5 0.5\n 0.0 0.0 0.0\n<ENDHMM>\n"
	if err := os.WriteFile(filepath.Join(modelDir, "hmmdefs"), []byte(defs), 0o644); err != nil {
		t.Fatalf("write hmmdefs: %v", err)
	}
	return modelDir
}

func TestRunnerRecognizerTimeoutNoOutput(t *testing.T) {
	aligner.Register("stall", func(opts aligner.Options) aligner.Aligner { return timeoutEngine{} })

	dir := t.TempDir()
	cfg := testConfig(t, dir)
	cfg.Align.Aligner = "stall"
	store := newTestStore(t)
	runner := NewRunner(cfg, store, logging.NewNop())

	req := testRequest(t, dir, "the cat")
	req.ModelDir = writeModelDir(t, dir)
	result, err := runner.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !errors.Is(result.FirstErr, services.ErrRecognizer) {
		t.Fatalf("expected recognizer error, got %v", result.FirstErr)
	}
	if !errors.Is(result.FirstErr, aligner.ErrTimeout) {
		t.Fatalf("expected timeout in chain, got %v", result.FirstErr)
	}
	if result.OutPath != "" {
		t.Fatalf("expected no output file, got %s", result.OutPath)
	}
	if _, err := os.Stat(filepath.Join(req.OutDir, "rec-palign.TextGrid")); !os.IsNotExist(err) {
		t.Fatal("partial output written despite timeout")
	}
	if result.Summary.Failed() != 1 {
		t.Fatalf("expected one failed utterance: %+v", result.Summary)
	}
}
