package aligner

import (
	"context"
	"fmt"
	"math"

	"palign/internal/acm"
	"palign/internal/dict"
	"palign/internal/feature"
	"palign/internal/grammar"
	"palign/internal/media/audio"
)

func init() {
	Register("viterbi", func(opts Options) Aligner {
		return &viterbiAligner{opts: opts}
	})
}

// viterbiAligner runs an in-process best-path search over the product
// of the grammar network and the per-phone HMM state sequences. Frame
// scores are GMM log-likelihoods; the path score adds transition
// log-probabilities. Ties are broken toward fewer phone arcs so the
// search never inserts spurious units.
type viterbiAligner struct {
	opts Options
}

func (a *viterbiAligner) Name() string { return "viterbi" }

func (a *viterbiAligner) Align(ctx context.Context, task Task) (*RawAlignment, error) {
	if task.Model == nil {
		return nil, fmt.Errorf("%w: no acoustic model", acm.ErrModelFormat)
	}
	clip, err := audio.ReadFile(task.AudioPath)
	if err != nil {
		return nil, err
	}

	cfg := feature.DefaultConfig()
	cfg.SampleRate = clip.SampleRate
	cfg.FrameShiftMs = a.opts.frameShiftSeconds() * 1000
	cfg.FrameLenMs = a.opts.frameLengthSeconds() * 1000
	cfg, err = cfg.ForModelDim(task.Model.VecSize)
	if err != nil {
		return nil, err
	}
	frames, err := feature.Extract(clip.Samples(), cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPath, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lattice, err := newLattice(task.Grammar, task.Model)
	if err != nil {
		return nil, err
	}
	raw, err := lattice.search(ctx, frames, a.opts.frameShiftSeconds(), clip.Duration())
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// unreachable is the threshold below which a path score is treated as
// minus infinity.
const unreachable = acm.LogZero / 2

// lattice is the search space: grammar arcs bound to their HMMs.
type lattice struct {
	g         *grammar.Grammar
	arcs      []grammar.Arc
	hmms      []*acm.HMM
	maxStates int
	inbound   map[int][]int // node -> arc indices ending there
}

func newLattice(g *grammar.Grammar, m *acm.Model) (*lattice, error) {
	if g == nil || len(g.Arcs()) == 0 {
		return nil, fmt.Errorf("%w: empty grammar", ErrNoPath)
	}
	l := &lattice{
		g:       g,
		arcs:    g.Arcs(),
		inbound: make(map[int][]int),
	}
	for i, arc := range l.arcs {
		hmm, err := resolveHMM(m, arc.Phone)
		if err != nil {
			return nil, err
		}
		l.hmms = append(l.hmms, hmm)
		if n := hmm.NumEmitting(); n > l.maxStates {
			l.maxStates = n
		}
		l.inbound[arc.To] = append(l.inbound[arc.To], i)
	}
	return l, nil
}

// resolveHMM maps a grammar phone to a model HMM, trying the silence
// aliases when the phone is a silence-family label.
func resolveHMM(m *acm.Model, phone string) (*acm.HMM, error) {
	if hmm := m.HMM(phone); hmm != nil {
		return hmm, nil
	}
	if dict.IsSilence(phone) {
		for _, alias := range []string{"sil", "#", "silence", "sp"} {
			if hmm := m.HMM(alias); hmm != nil {
				return hmm, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q", acm.ErrPhonemeMissing, phone)
}

// bp is one backpointer: the composite state at the previous frame,
// with entered marking the first frame of an arc traversal.
type bp struct {
	prevCell int32
	entered  bool
}

// cell indexes one composite search state: (arc, emitting state).
func (l *lattice) cell(arc, state int) int {
	return arc*l.maxStates + state
}

func (l *lattice) search(ctx context.Context, frames [][]float64, frameShift, duration float64) (*RawAlignment, error) {
	T := len(frames)
	if T == 0 {
		return nil, fmt.Errorf("%w: no frames", ErrNoPath)
	}
	numCells := len(l.arcs) * l.maxStates

	score := make([]float64, numCells)
	prevScore := make([]float64, numCells)
	count := make([]int32, numCells)
	prevCount := make([]int32, numCells)

	trace := make([][]bp, T)
	for t := range trace {
		trace[t] = make([]bp, numCells)
	}

	for i := range prevScore {
		prevScore[i] = acm.LogZero
	}

	// Frame 0: only arcs leaving the start node are enterable.
	emit := make([]float64, numCells)
	l.emitScores(frames[0], emit)
	for a, arc := range l.arcs {
		if arc.From != l.g.Start() {
			continue
		}
		hmm := l.hmms[a]
		for j := 0; j < hmm.NumEmitting(); j++ {
			c := l.cell(a, j)
			s := hmm.EntryLog(j)
			if s <= unreachable {
				continue
			}
			prevScore[c] = s + emit[c]
			prevCount[c] = 1
			trace[0][c] = bp{prevCell: -1, entered: true}
		}
	}

	type exitBest struct {
		score float64
		cell  int32
		count int32
	}

	for t := 1; t < T; t++ {
		if t%64 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		l.emitScores(frames[t], emit)

		// Best scored exit per node at t-1, for arc-to-arc hops.
		exits := make(map[int]exitBest, len(l.inbound))
		for node, arcIdxs := range l.inbound {
			best := exitBest{score: acm.LogZero, cell: -1}
			for _, a := range arcIdxs {
				hmm := l.hmms[a]
				for j := 0; j < hmm.NumEmitting(); j++ {
					c := l.cell(a, j)
					if prevScore[c] <= unreachable {
						continue
					}
					s := prevScore[c] + hmm.ExitLog(j)
					if s <= unreachable {
						continue
					}
					if better(s, prevCount[c], best.score, best.count) {
						best = exitBest{score: s, cell: int32(c), count: prevCount[c]}
					}
				}
			}
			exits[node] = best
		}

		for a, arc := range l.arcs {
			hmm := l.hmms[a]
			entry, hasEntry := exits[arc.From]
			if !hasEntry {
				entry = exitBest{score: acm.LogZero, cell: -1}
			}
			for j := 0; j < hmm.NumEmitting(); j++ {
				c := l.cell(a, j)
				bestScore := acm.LogZero
				bestCell := int32(-1)
				bestCount := int32(0)
				entered := false

				for i := 0; i < hmm.NumEmitting(); i++ {
					p := l.cell(a, i)
					if prevScore[p] <= unreachable {
						continue
					}
					step := hmm.StepLog(i, j)
					if step <= unreachable {
						continue
					}
					s := prevScore[p] + step
					if better(s, prevCount[p], bestScore, bestCount) {
						bestScore = s
						bestCell = int32(p)
						bestCount = prevCount[p]
						entered = false
					}
				}

				if entry.cell >= 0 {
					s := entry.score + hmm.EntryLog(j)
					if s > unreachable && better(s, entry.count+1, bestScore, bestCount) {
						bestScore = s
						bestCell = entry.cell
						bestCount = entry.count + 1
						entered = true
					}
				}

				if bestCell < 0 {
					score[c] = acm.LogZero
					continue
				}
				score[c] = bestScore + emit[c]
				count[c] = bestCount
				trace[t][c] = bp{prevCell: bestCell, entered: entered}
			}
		}
		prevScore, score = score, prevScore
		prevCount, count = count, prevCount
	}

	// Accept only paths whose final arc reaches the end node.
	finalScore := acm.LogZero
	finalCell := -1
	var finalCount int32
	for a, arc := range l.arcs {
		if arc.To != l.g.End() {
			continue
		}
		hmm := l.hmms[a]
		for j := 0; j < hmm.NumEmitting(); j++ {
			c := l.cell(a, j)
			if prevScore[c] <= unreachable {
				continue
			}
			s := prevScore[c] + hmm.ExitLog(j)
			if s <= unreachable {
				continue
			}
			if better(s, prevCount[c], finalScore, finalCount) {
				finalScore = s
				finalCell = c
				finalCount = prevCount[c]
			}
		}
	}
	if finalCell < 0 || math.IsInf(finalScore, -1) {
		return nil, fmt.Errorf("%w: %d frames", ErrNoPath, T)
	}

	return l.backtrace(trace, finalCell, finalScore, frameShift, duration), nil
}

// emitScores fills out with per-cell emission log-likelihoods for one
// frame.
func (l *lattice) emitScores(x []float64, out []float64) {
	for a := range l.arcs {
		hmm := l.hmms[a]
		for j := 0; j < hmm.NumEmitting(); j++ {
			out[l.cell(a, j)] = hmm.Emitting[j].LogProb(x)
		}
	}
}

func better(score float64, count int32, bestScore float64, bestCount int32) bool {
	const eps = 1e-9
	if score > bestScore+eps {
		return true
	}
	if score < bestScore-eps {
		return false
	}
	return count < bestCount
}

// backtrace reconstructs the frame-level arc sequence and collapses it
// into time segments, one per arc traversal.
func (l *lattice) backtrace(trace [][]bp, finalCell int, finalScore, frameShift, duration float64) *RawAlignment {
	T := len(trace)
	arcAt := make([]int, T)
	startsArc := make([]bool, T)

	cell := finalCell
	for t := T - 1; t >= 0; t-- {
		arcAt[t] = cell / l.maxStates
		startsArc[t] = trace[t][cell].entered
		cell = int(trace[t][cell].prevCell)
	}

	raw := &RawAlignment{Duration: duration, Score: finalScore}
	segStart := 0
	for t := 1; t <= T; t++ {
		if t < T && !startsArc[t] {
			continue
		}
		arc := l.arcs[arcAt[segStart]]
		end := float64(t) * frameShift
		if t == T {
			end = duration
		}
		raw.Segments = append(raw.Segments, RawSegment{
			Start:      float64(segStart) * frameShift,
			End:        end,
			Phone:      arc.Phone,
			Token:      arc.Token,
			TokenIndex: arc.TokenIndex,
			Tag:        arc.Tag,
		})
		segStart = t
	}
	if len(raw.Segments) > 0 {
		raw.Segments[0].Start = 0
	}
	return raw
}
