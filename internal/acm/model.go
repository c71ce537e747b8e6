package acm

import (
	"math"
	"sort"
)

// LogZero stands in for log(0) in transition and emission scores.
const LogZero = -1.0e10

// Model is an immutable acoustic model: one HMM per phone.
type Model struct {
	Name      string
	VecSize   int
	ParamKind string
	phones    map[string]*HMM
}

// HMM is a left-to-right phone model. States are numbered the HTK way:
// 1 is the non-emitting entry, NumStates is the non-emitting exit, and
// 2..NumStates-1 are emitting.
type HMM struct {
	Name      string
	NumStates int
	// Emitting holds the emitting states in order; Emitting[0] is HTK
	// state 2.
	Emitting []*State
	// TransLog is the NumStates x NumStates transition matrix in the
	// log domain, LogZero for impossible transitions.
	TransLog [][]float64
}

// State is a single emitting state with a diagonal-covariance GMM.
type State struct {
	Mixtures []Mixture
}

// Mixture is one Gaussian component.
type Mixture struct {
	LogWeight float64
	Mean      []float64
	Variance  []float64

	invVariance  []float64
	logNormConst float64
}

// Phones returns the sorted phone names defined by the model.
func (m *Model) Phones() []string {
	names := make([]string, 0, len(m.phones))
	for name := range m.phones {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HMM returns the phone model for name, or nil when undefined.
func (m *Model) HMM(name string) *HMM {
	return m.phones[name]
}

// HasPhone reports whether the model defines an HMM for name.
func (m *Model) HasPhone(name string) bool {
	_, ok := m.phones[name]
	return ok
}

// NumEmitting returns the count of emitting states.
func (h *HMM) NumEmitting() int {
	return len(h.Emitting)
}

// EntryLog returns the log probability of entering emitting state j
// (0-based) from the entry state.
func (h *HMM) EntryLog(j int) float64 {
	return h.TransLog[0][j+1]
}

// ExitLog returns the log probability of leaving emitting state j
// (0-based) to the exit state.
func (h *HMM) ExitLog(j int) float64 {
	return h.TransLog[j+1][h.NumStates-1]
}

// StepLog returns the log probability of moving from emitting state i
// to emitting state j (both 0-based).
func (h *HMM) StepLog(i, j int) float64 {
	return h.TransLog[i+1][j+1]
}

// LogProb computes log P(x | state) as a log-sum-exp over the mixtures.
func (s *State) LogProb(x []float64) float64 {
	best := LogZero
	var rest float64
	for i := range s.Mixtures {
		lp := s.Mixtures[i].logProb(x)
		if lp > best {
			// Rebase the accumulated tail onto the new maximum.
			if best > LogZero {
				rest = (rest + 1) * math.Exp(best-lp)
			}
			best = lp
			continue
		}
		if lp > LogZero {
			rest += math.Exp(lp - best)
		}
	}
	if best <= LogZero {
		return LogZero
	}
	return best + math.Log1p(rest)
}

func (g *Mixture) logProb(x []float64) float64 {
	if len(x) != len(g.Mean) {
		return LogZero
	}
	maha := 0.0
	for d := range x {
		diff := x[d] - g.Mean[d]
		maha += diff * diff * g.invVariance[d]
	}
	return g.LogWeight - 0.5*maha - g.logNormConst
}

// precompute caches the inverse variances and the Gaussian
// normalization constant. Must run once after parsing.
func (g *Mixture) precompute() {
	dim := len(g.Mean)
	g.logNormConst = float64(dim)/2.0*math.Log(2*math.Pi) + 0.5*sumLog(g.Variance)
	g.invVariance = make([]float64, dim)
	for i, v := range g.Variance {
		g.invVariance[i] = 1.0 / v
	}
}

func sumLog(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += math.Log(x)
	}
	return s
}
