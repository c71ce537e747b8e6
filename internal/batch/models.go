package batch

import (
	"strings"
	"time"
)

// Status represents the lifecycle of one utterance in a run.
type Status string

const (
	StatusPending      Status = "pending"
	StatusModelReady   Status = "model_ready"
	StatusGrammarBuilt Status = "grammar_built"
	StatusAligning     Status = "aligning"
	StatusRefining     Status = "refining"
	StatusDone         Status = "done"
	StatusFailed       Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusModelReady,
	StatusGrammarBuilt,
	StatusAligning,
	StatusRefining,
	StatusDone,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// ParseStatus normalizes a stored status string.
func ParseStatus(raw string) (Status, bool) {
	status := Status(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := statusSet[status]
	return status, ok
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed
}

// validTransitions models the utterance state machine. Aligning allows
// a self-loop for the single relaxed-grammar retry.
var validTransitions = map[Status][]Status{
	StatusPending:      {StatusModelReady, StatusFailed},
	StatusModelReady:   {StatusGrammarBuilt, StatusFailed},
	StatusGrammarBuilt: {StatusAligning, StatusFailed},
	StatusAligning:     {StatusAligning, StatusRefining, StatusFailed},
	StatusRefining:     {StatusDone, StatusFailed},
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Run is one alignment batch over a recording.
type Run struct {
	ID        int64
	RunID     string
	AudioPath string
	TransPath string
	ModelDir  string
	OutDir    string
	Aligner   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Utterance is one speech unit of a run.
type Utterance struct {
	ID           int64
	RunID        int64
	Position     int
	Start        float64
	End          float64
	Text         string
	Status       Status
	ErrorMessage string
	Retries      int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Summary aggregates per-status utterance counts for one run.
type Summary struct {
	Total  int
	Counts map[Status]int
}

// Succeeded reports whether every utterance completed.
func (s Summary) Succeeded() bool {
	return s.Total > 0 && s.Counts[StatusDone] == s.Total
}

// Failed returns the number of failed utterances.
func (s Summary) Failed() int {
	return s.Counts[StatusFailed]
}
