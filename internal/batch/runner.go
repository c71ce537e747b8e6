package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"palign/internal/acm"
	"palign/internal/aligner"
	"palign/internal/anndata"
	"palign/internal/config"
	"palign/internal/dict"
	"palign/internal/grammar"
	"palign/internal/logging"
	"palign/internal/media/audio"
	"palign/internal/refine"
	"palign/internal/services"
)

// Request names the inputs of one batch alignment run.
type Request struct {
	AudioPath string
	TransPath string
	DictPath  string
	ModelDir  string
	OutDir    string
	Aligner   string
	Policy    string
}

// Result reports the outcome of a run.
type Result struct {
	Run     *Run
	Summary Summary
	OutPath string
	// FirstErr is the first utterance failure, nil when all succeeded.
	FirstErr error
}

// Runner drives the per-utterance alignment pipeline across a worker
// pool. The acoustic model and dictionary are loaded once and shared
// read-only by all workers.
type Runner struct {
	cfg    *config.Config
	store  *Store
	logger *slog.Logger
}

// NewRunner constructs a runner.
func NewRunner(cfg *config.Config, store *Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{cfg: cfg, store: store, logger: logger}
}

// Run aligns every utterance of the transcription against the audio
// and writes the aligned TextGrid into the output directory. Sibling
// utterances are isolated: one failure does not abort the others.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	lock := flock.New(filepath.Join(r.cfg.Paths.WorkDir, "palign.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, errors.New("another run is already in progress for this work directory")
	}
	defer func() { _ = lock.Unlock() }()

	runID := uuid.NewString()
	ctx = services.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, r.logger)

	engineName := req.Aligner
	if engineName == "" {
		engineName = r.cfg.Align.Aligner
	}
	policy := grammar.Policy(req.Policy)
	if req.Policy == "" {
		policy = grammar.Policy(r.cfg.Align.UnknownWordPolicy)
	}
	modelDir := req.ModelDir
	if modelDir == "" {
		modelDir = r.cfg.Model.Dir
	}
	if req.OutDir == "" {
		req.OutDir = filepath.Dir(req.AudioPath)
	}

	// The model must finish loading before any alignment starts.
	var model *acm.Model
	if engineName != "basic" {
		model, err = acm.Load(modelDir)
		if err != nil {
			return nil, services.Wrap(services.ErrFormat, "load", "acoustic model", modelDir, err)
		}
		logger.Info("acoustic model loaded",
			logging.String("dir", modelDir),
			logging.Int("phones", len(model.Phones())))
	}

	pron, err := dict.Load(req.DictPath)
	if err != nil {
		return nil, services.Wrap(services.ErrFormat, "load", "dictionary", req.DictPath, err)
	}

	clip, err := audio.ReadFile(req.AudioPath)
	if err != nil {
		return nil, services.Wrap(services.ErrMedia, "load", "audio", req.AudioPath, err)
	}

	utterances, err := readUtterances(req.TransPath)
	if err != nil {
		return nil, services.Wrap(services.ErrFormat, "load", "transcription", req.TransPath, err)
	}

	run, err := r.store.CreateRun(ctx, &Run{
		RunID:     runID,
		AudioPath: req.AudioPath,
		TransPath: req.TransPath,
		ModelDir:  modelDir,
		OutDir:    req.OutDir,
		Aligner:   engineName,
	})
	if err != nil {
		return nil, err
	}
	stored, err := r.store.AddUtterances(ctx, run.ID, utterances)
	if err != nil {
		return nil, err
	}

	engine, err := aligner.New(engineName, aligner.Options{
		FrameShift:   time.Duration(r.cfg.Model.FrameShiftMs * float64(time.Millisecond)),
		FrameLength:  time.Duration(r.cfg.Model.FrameLengthMs * float64(time.Millisecond)),
		JuliusBinary: r.cfg.Align.JuliusBinary,
		Timeout:      time.Duration(r.cfg.Align.TimeoutSeconds) * time.Second,
		Logger:       r.logger,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrRecognizer, "align", "engine", engineName, err)
	}

	clipDir := filepath.Join(r.cfg.Paths.WorkDir, "clips", runID)
	if err := os.MkdirAll(clipDir, 0o755); err != nil {
		return nil, fmt.Errorf("create clip dir: %w", err)
	}
	defer os.RemoveAll(clipDir)

	type outcome struct {
		position  int
		alignment *refine.Alignment
		err       error
	}
	results := make([]outcome, len(stored))

	jobs := make(chan int)
	var wg sync.WaitGroup
	workers := r.cfg.Align.Workers
	if workers <= 0 {
		workers = 1
	}
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				utt := stored[idx]
				alignment, err := r.alignOne(ctx, engine, model, modelDir, pron, policy, clip, clipDir, utt)
				results[idx] = outcome{position: idx, alignment: alignment, err: err}
			}
		}()
	}
	for idx := range stored {
		select {
		case jobs <- idx:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var firstErr error
	aligned := make(map[int]*refine.Alignment)
	for _, res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		if res.alignment != nil {
			aligned[res.position] = res.alignment
		}
	}

	outPath := ""
	if len(aligned) > 0 {
		outPath, err = writeOutput(req, clip.Duration(), stored, aligned)
		if err != nil {
			return nil, err
		}
		logger.Info("alignment written", logging.String("path", outPath))
	}

	summary, err := r.store.Summarize(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	logger.Info("run finished",
		logging.Int("utterances", summary.Total),
		logging.Int("done", summary.Counts[StatusDone]),
		logging.Int("failed", summary.Failed()))

	return &Result{Run: run, Summary: summary, OutPath: outPath, FirstErr: firstErr}, nil
}

// alignOne walks one utterance through the state machine: grammar
// build, alignment with the single relaxed retry on no-path, and
// refinement.
func (r *Runner) alignOne(ctx context.Context, engine aligner.Aligner, model *acm.Model, modelDir string, pron *dict.Dictionary, policy grammar.Policy, clip *audio.Clip, clipDir string, utt Utterance) (*refine.Alignment, error) {
	uttCtx := services.WithUtteranceID(ctx, utt.ID)
	logger := logging.WithContext(uttCtx, r.logger)

	fail := func(stage string, marker, err error) error {
		wrapped := services.Wrap(marker, stage, "utterance", fmt.Sprintf("%d", utt.Position), err)
		_ = r.store.MarkFailed(uttCtx, utt.ID, wrapped.Error())
		logger.Error("utterance failed", logging.String("stage", stage), logging.Error(wrapped))
		return wrapped
	}

	if err := r.store.Transition(uttCtx, utt.ID, StatusModelReady); err != nil {
		return nil, err
	}

	tokens := strings.Fields(utt.Text)
	g, err := grammar.Build(tokens, pron, policy)
	if err != nil {
		return nil, fail("grammar", services.ErrVocabulary, err)
	}
	if err := r.store.Transition(uttCtx, utt.ID, StatusGrammarBuilt); err != nil {
		return nil, err
	}

	clipPath := filepath.Join(clipDir, fmt.Sprintf("utt_%04d.wav", utt.Position))
	if err := audio.WriteFile(clipPath, clip.Slice(utt.Start, utt.End)); err != nil {
		return nil, fail("slice", services.ErrMedia, err)
	}

	if err := r.store.Transition(uttCtx, utt.ID, StatusAligning); err != nil {
		return nil, err
	}
	task := aligner.Task{AudioPath: clipPath, Grammar: g, Model: model, ModelDir: modelDir}
	raw, err := engine.Align(uttCtx, task)
	if errors.Is(err, aligner.ErrNoPath) && r.cfg.Align.RelaxOnNoPath {
		logger.Warn("no path found, retrying with relaxed grammar")
		if terr := r.store.Transition(uttCtx, utt.ID, StatusAligning); terr != nil {
			return nil, terr
		}
		relaxed, rerr := g.Relaxed(pron)
		if rerr != nil {
			return nil, fail("align", services.ErrRecognizer, rerr)
		}
		task.Grammar = relaxed
		raw, err = engine.Align(uttCtx, task)
	}
	if err != nil {
		return nil, fail("align", services.ErrRecognizer, err)
	}

	if err := r.store.Transition(uttCtx, utt.ID, StatusRefining); err != nil {
		return nil, err
	}
	alignment, err := refine.Refine(raw, refine.Options{
		FrameShift:    time.Duration(r.cfg.Model.FrameShiftMs * float64(time.Millisecond)),
		SnapTolerance: time.Duration(r.cfg.Model.SnapToleranceMs * float64(time.Millisecond)),
	})
	if err != nil {
		return nil, fail("refine", services.ErrCoverage, err)
	}

	if err := r.store.Transition(uttCtx, utt.ID, StatusDone); err != nil {
		return nil, err
	}
	logger.Info("utterance aligned",
		logging.Int("phones", len(alignment.Phones)),
		logging.Int("tokens", len(alignment.Tokens)))
	return alignment, nil
}

// readUtterances extracts the speech units from the transcription
// file, preferring a tier whose name mentions transcription or IPU.
func readUtterances(path string) ([]Utterance, error) {
	tr, err := anndata.ReadTextGridFile(path)
	if err != nil {
		return nil, err
	}
	tier := tr.Tiers[0]
	for _, candidate := range tr.Tiers {
		name := strings.ToLower(candidate.Name)
		if strings.Contains(name, "trans") || strings.Contains(name, "ipu") {
			tier = candidate
			break
		}
	}
	raw := anndata.Utterances(tier)
	if len(raw) == 0 {
		return nil, fmt.Errorf("no utterances in tier %q", tier.Name)
	}
	utterances := make([]Utterance, 0, len(raw))
	for _, u := range raw {
		utterances = append(utterances, Utterance{Start: u.Start, End: u.End, Text: u.Text})
	}
	return utterances, nil
}

// writeOutput assembles the per-utterance alignments into PhonAlign
// and TokensAlign tiers over the whole recording, filling the spans
// between utterances with silence.
func writeOutput(req Request, duration float64, utterances []Utterance, aligned map[int]*refine.Alignment) (string, error) {
	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	positions := make([]int, 0, len(aligned))
	for pos := range aligned {
		positions = append(positions, pos)
	}
	sort.Ints(positions)

	phonTier := &anndata.Tier{Name: refine.PhonTierName}
	tokenTier := &anndata.Tier{Name: refine.TokensTierName}
	cursor := 0.0
	for _, pos := range positions {
		utt := utterances[pos]
		alignment := aligned[pos]
		if utt.Start > cursor {
			gap := anndata.Interval{Start: cursor, End: utt.Start, Label: dict.SilencePhone}
			phonTier.Append(gap)
			tokenTier.Append(gap)
		}
		local := alignment.Transcription()
		phones, _ := local.Tier(refine.PhonTierName)
		tokens, _ := local.Tier(refine.TokensTierName)
		for _, iv := range phones.Intervals {
			phonTier.Append(anndata.Interval{Start: utt.Start + iv.Start, End: utt.Start + iv.End, Label: iv.Label})
		}
		for _, iv := range tokens.Intervals {
			tokenTier.Append(anndata.Interval{Start: utt.Start + iv.Start, End: utt.Start + iv.End, Label: iv.Label})
		}
		cursor = utt.End
	}
	if duration > cursor {
		gap := anndata.Interval{Start: cursor, End: duration, Label: dict.SilencePhone}
		phonTier.Append(gap)
		tokenTier.Append(gap)
	}

	out := &anndata.Transcription{}
	out.Add(phonTier)
	out.Add(tokenTier)

	base := strings.TrimSuffix(filepath.Base(req.AudioPath), filepath.Ext(req.AudioPath))
	outPath := filepath.Join(req.OutDir, base+"-palign.TextGrid")
	if err := anndata.WriteTextGridFile(outPath, out); err != nil {
		return "", err
	}

	labTier := &anndata.Tier{Name: refine.PhonTierName, Intervals: phonTier.Intervals}
	if err := anndata.WriteLabFile(filepath.Join(req.OutDir, base+"-palign.lab"), labTier); err != nil {
		return "", err
	}
	return outPath, nil
}
