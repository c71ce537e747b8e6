package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/pelletier/go-toml/v2"

	"palign/internal/anndata"
	"palign/internal/batch"
	"palign/internal/config"
	"palign/internal/refine"
	"palign/internal/services"
	"palign/internal/testsupport"
)

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func newTestConfigFile(t *testing.T) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	path := filepath.Join(filepath.Dir(cfg.Paths.WorkDir), "config.toml")
	writeTestConfig(t, path, cfg)
	return cfg, path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCLIConfigInit(t *testing.T) {
	base := t.TempDir()
	target := filepath.Join(base, "config.toml")

	stdout, _, err := runCLI(t, "", "config", "init", "--path", target)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(stdout, target) {
		t.Fatalf("expected target path in output, got %q", stdout)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}

	if _, _, err := runCLI(t, "", "config", "init", "--path", target); err == nil {
		t.Fatal("expected error for existing config without --overwrite")
	}
	if _, _, err := runCLI(t, "", "config", "init", "--path", target, "--overwrite"); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestCLIConfigValidate(t *testing.T) {
	_, configPath := newTestConfigFile(t)

	stdout, _, err := runCLI(t, configPath, "config", "validate")
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	if !strings.Contains(stdout, "Configuration valid") {
		t.Fatalf("unexpected output: %q", stdout)
	}
	if !strings.Contains(stdout, configPath) {
		t.Fatalf("expected resolved path in output: %q", stdout)
	}
}

func TestCLIConfigShow(t *testing.T) {
	cfg, configPath := newTestConfigFile(t)

	stdout, _, err := runCLI(t, configPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(stdout, cfg.Paths.WorkDir) {
		t.Fatalf("expected work dir in output, got %q", stdout)
	}
	if !strings.Contains(stdout, "aligner = 'basic'") && !strings.Contains(stdout, `aligner = "basic"`) {
		t.Fatalf("expected aligner in output, got %q", stdout)
	}
}

func TestCLIDeps(t *testing.T) {
	_, configPath := newTestConfigFile(t)

	stdout, _, err := runCLI(t, configPath, "deps")
	if err != nil {
		t.Fatalf("deps: %v", err)
	}
	for _, name := range []string{"Julius", "FFmpeg", "FFprobe"} {
		if !strings.Contains(stdout, name) {
			t.Fatalf("expected %s in output, got %q", name, stdout)
		}
	}
}

func TestCLIAlignAndStatus(t *testing.T) {
	cfg, configPath := newTestConfigFile(t)
	base := t.TempDir()

	audioPath := testsupport.WriteWAV(t, base, "rec.wav", 3.0)
	transPath := testsupport.WriteTranscription(t, base, "rec.TextGrid", []anndata.Interval{
		{Start: 0, End: 0.5, Label: ""},
		{Start: 0.5, End: 1.7, Label: "the cat"},
		{Start: 1.7, End: 3.0, Label: ""},
	})
	dictPath := testsupport.WriteDict(t, base, "dict.txt",
		"the DH AH",
		"cat K AE T",
	)
	outDir := filepath.Join(base, "out")

	stdout, _, err := runCLI(t, configPath, "align",
		"--audio", audioPath,
		"--trans", transPath,
		"--dict", dictPath,
		"--out", outDir,
	)
	if err != nil {
		t.Fatalf("align: %v", err)
	}
	if !strings.Contains(stdout, "Alignment written to") {
		t.Fatalf("expected output path notice, got %q", stdout)
	}
	if !strings.Contains(stdout, "0 failed") {
		t.Fatalf("expected no failures, got %q", stdout)
	}
	if _, err := os.Stat(filepath.Join(outDir, "rec-palign.TextGrid")); err != nil {
		t.Fatalf("aligned TextGrid missing: %v", err)
	}

	stdout, _, err = runCLI(t, configPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(stdout, "rec.wav") {
		t.Fatalf("expected run listing, got %q", stdout)
	}

	store, err := batch.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	runs, err := store.ListRuns(context.Background())
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected one run, got %d", len(runs))
	}

	stdout, _, err = runCLI(t, configPath, "status", runs[0].RunID)
	if err != nil {
		t.Fatalf("status run: %v", err)
	}
	if !strings.Contains(stdout, "done") {
		t.Fatalf("expected done utterances, got %q", stdout)
	}
}

func TestCLIAlignUnknownWordExitCode(t *testing.T) {
	_, configPath := newTestConfigFile(t)
	base := t.TempDir()

	audioPath := testsupport.WriteWAV(t, base, "rec.wav", 2.0)
	transPath := testsupport.WriteTranscription(t, base, "rec.TextGrid", []anndata.Interval{
		{Start: 0.2, End: 1.8, Label: "the xyzzy"},
	})
	dictPath := testsupport.WriteDict(t, base, "dict.txt", "the DH AH")

	_, _, err := runCLI(t, configPath, "align",
		"--audio", audioPath,
		"--trans", transPath,
		"--dict", dictPath,
		"--out", base,
	)
	if err == nil {
		t.Fatal("expected vocabulary error")
	}
	if !errors.Is(err, services.ErrVocabulary) {
		t.Fatalf("expected vocabulary error, got %v", err)
	}
	if code := services.ExitCode(err); code != services.ExitVocabulary {
		t.Fatalf("expected exit code %d, got %d", services.ExitVocabulary, code)
	}
}

func TestCLISegment(t *testing.T) {
	_, configPath := newTestConfigFile(t)
	base := t.TempDir()

	audioPath := testsupport.WriteWAV(t, base, "rec.wav", 2.0)
	tr := &anndata.Transcription{}
	tr.Add(&anndata.Tier{Name: refine.TokensTierName, Intervals: []anndata.Interval{
		{Start: 0, End: 0.5, Label: "#"},
		{Start: 0.5, End: 1.0, Label: "the"},
		{Start: 1.0, End: 1.5, Label: "#"},
		{Start: 1.5, End: 2.0, Label: "cat"},
	}})
	alignmentPath := filepath.Join(base, "rec-palign.TextGrid")
	if err := anndata.WriteTextGridFile(alignmentPath, tr); err != nil {
		t.Fatalf("write alignment: %v", err)
	}
	outDir := filepath.Join(base, "tracks")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	stdout, _, err := runCLI(t, configPath, "segment",
		"--audio", audioPath,
		"--alignment", alignmentPath,
		"--out", outDir,
		"--pattern", "^#$",
	)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	if !strings.Contains(stdout, "Wrote 2 tracks") {
		t.Fatalf("expected two tracks, got %q", stdout)
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		t.Fatalf("read out dir: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two files, got %d", len(entries))
	}
}

func TestTruncateTextKeepsRunesIntact(t *testing.T) {
	long := strings.Repeat("é", 50)
	got := truncateText(long, 40)
	if !utf8.ValidString(got) {
		t.Fatalf("truncation produced invalid UTF-8: %q", got)
	}
	if want := strings.Repeat("é", 37) + "..."; got != want {
		t.Fatalf("truncated to %q, want %q", got, want)
	}
	if got := truncateText("short", 40); got != "short" {
		t.Fatalf("short text altered: %q", got)
	}
}

func TestCLIMissingRequiredFlags(t *testing.T) {
	_, configPath := newTestConfigFile(t)

	if _, _, err := runCLI(t, configPath, "align"); err == nil {
		t.Fatal("expected error for missing align flags")
	}
	if _, _, err := runCLI(t, configPath, "segment"); err == nil {
		t.Fatal("expected error for missing segment flags")
	}
}
