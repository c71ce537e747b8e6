package julius

import (
	"bufio"
	"fmt"
	"os"
	"sort"

	"palign/internal/dict"
	"palign/internal/grammar"
)

// WriteGrammarFiles writes the .dfa/.dict pair Julius consumes,
// derived from the phone network: a linear automaton of silence,
// the utterance tokens in order, and silence, with one dictionary
// line per pronunciation variant.
func WriteGrammarFiles(base string, g *grammar.Grammar) error {
	tokens := g.Tokens()

	dfa, err := os.Create(base + ".dfa")
	if err != nil {
		return fmt.Errorf("write dfa: %w", err)
	}
	defer dfa.Close()
	bw := bufio.NewWriter(dfa)
	categories := len(tokens) + 2
	for i := 0; i < categories; i++ {
		// Julius automata run right to left; categories are reversed.
		fmt.Fprintf(bw, "%d %d %d 0 %d\n", i, categories-1-i, i+1, boolFlag(i == 0))
	}
	fmt.Fprintf(bw, "%d -1 -1 1 0\n", categories)
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write dfa: %w", err)
	}
	if err := dfa.Close(); err != nil {
		return fmt.Errorf("write dfa: %w", err)
	}

	dictFile, err := os.Create(base + ".dict")
	if err != nil {
		return fmt.Errorf("write dict: %w", err)
	}
	defer dictFile.Close()
	bw = bufio.NewWriter(dictFile)
	fmt.Fprintf(bw, "0 [%s] sil\n", dict.SilencePhone)
	for i, token := range tokens {
		variants := tokenVariants(g, i)
		if len(variants) == 0 {
			variants = [][]string{{"sil"}}
		}
		for _, pron := range variants {
			fmt.Fprintf(bw, "%d [%s]", i+1, token)
			for _, phone := range pron {
				if dict.IsSilence(phone) {
					phone = "sil"
				}
				fmt.Fprintf(bw, " %s", phone)
			}
			fmt.Fprintln(bw)
		}
	}
	fmt.Fprintf(bw, "%d [%s] sil\n", len(tokens)+1, dict.SilencePhone)
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write dict: %w", err)
	}
	return dictFile.Close()
}

func boolFlag(b bool) int {
	if b {
		return 1
	}
	return 0
}

// tokenVariants reconstructs the pronunciation variants for one token
// position by enumerating its paths through the network.
func tokenVariants(g *grammar.Grammar, tokenIndex int) [][]string {
	var arcs []grammar.Arc
	froms := make(map[int]bool)
	tos := make(map[int]bool)
	for _, arc := range g.Arcs() {
		if arc.TokenIndex != tokenIndex || arc.From == arc.To {
			continue
		}
		arcs = append(arcs, arc)
		froms[arc.From] = true
		tos[arc.To] = true
	}
	if len(arcs) == 0 {
		return nil
	}
	entry, exit := -1, -1
	for node := range froms {
		if !tos[node] {
			entry = node
		}
	}
	for node := range tos {
		if !froms[node] {
			exit = node
		}
	}
	if entry < 0 || exit < 0 {
		return nil
	}

	outgoing := make(map[int][]grammar.Arc)
	for _, arc := range arcs {
		outgoing[arc.From] = append(outgoing[arc.From], arc)
	}

	var variants [][]string
	var walk func(node int, phones []string)
	walk = func(node int, phones []string) {
		if node == exit {
			variants = append(variants, append([]string(nil), phones...))
			return
		}
		for _, arc := range outgoing[node] {
			walk(arc.To, append(phones, arc.Phone))
		}
	}
	walk(entry, nil)

	sort.Slice(variants, func(i, j int) bool {
		return len(variants[i]) < len(variants[j])
	})
	return variants
}
