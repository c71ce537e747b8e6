package aligner

import (
	"context"
	"fmt"

	"palign/internal/dict"
	"palign/internal/grammar"
	"palign/internal/media/audio"
)

func init() {
	Register("basic", func(opts Options) Aligner {
		return &basicAligner{opts: opts}
	})
}

// Nominal unit durations in seconds. The shortest grammar path is laid
// out with these weights and then scaled to fill the clip exactly.
const (
	nominalSilence = 0.5
	nominalPhone   = 0.12
)

// basicAligner assigns durations without looking at the signal. It
// walks the shortest path through the grammar and distributes the clip
// duration proportionally to nominal unit lengths. Useful when no
// acoustic model is available or as a deterministic baseline.
type basicAligner struct {
	opts Options
}

func (a *basicAligner) Name() string { return "basic" }

func (a *basicAligner) Align(ctx context.Context, task Task) (*RawAlignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clip, err := audio.ReadFile(task.AudioPath)
	if err != nil {
		return nil, err
	}
	duration := clip.Duration()
	if duration <= 0 {
		return nil, fmt.Errorf("%w: empty clip", ErrNoPath)
	}

	path, ok := shortestPath(task.Grammar)
	if !ok {
		return nil, fmt.Errorf("%w: grammar has no path", ErrNoPath)
	}

	total := 0.0
	weights := make([]float64, len(path))
	for i, arc := range path {
		w := nominalPhone
		if dict.IsSilence(arc.Phone) {
			w = nominalSilence
		}
		weights[i] = w
		total += w
	}

	raw := &RawAlignment{Duration: duration}
	at := 0.0
	for i, arc := range path {
		end := at + duration*weights[i]/total
		if i == len(path)-1 {
			end = duration
		}
		raw.Segments = append(raw.Segments, RawSegment{
			Start:      at,
			End:        end,
			Phone:      arc.Phone,
			Token:      arc.Token,
			TokenIndex: arc.TokenIndex,
			Tag:        arc.Tag,
		})
		at = end
	}
	return raw, nil
}

// shortestPath returns the arc sequence from start to end with the
// fewest arcs, ignoring self-loops. Breadth-first over the node graph;
// grammars are small DAGs plus optional self-loops.
func shortestPath(g *grammar.Grammar) ([]grammar.Arc, bool) {
	if g == nil {
		return nil, false
	}
	type hop struct {
		prev int
		arc  grammar.Arc
	}
	visited := make(map[int]hop, g.NumNodes())
	queue := []int{g.Start()}
	visited[g.Start()] = hop{prev: -1}

	outgoing := make(map[int][]grammar.Arc)
	for _, arc := range g.Arcs() {
		if arc.From == arc.To {
			continue
		}
		outgoing[arc.From] = append(outgoing[arc.From], arc)
	}

	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node == g.End() {
			break
		}
		for _, arc := range outgoing[node] {
			if _, seen := visited[arc.To]; seen {
				continue
			}
			visited[arc.To] = hop{prev: node, arc: arc}
			queue = append(queue, arc.To)
		}
	}

	if _, ok := visited[g.End()]; !ok {
		return nil, false
	}
	var path []grammar.Arc
	for node := g.End(); node != g.Start(); {
		h := visited[node]
		path = append(path, h.arc)
		node = h.prev
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, true
}
