package grammar

import (
	"errors"
	"fmt"

	"palign/internal/dict"
)

// Policy selects the behavior for tokens absent from the dictionary.
type Policy string

const (
	// PolicyFail aborts grammar construction with UnknownWordError.
	PolicyFail Policy = "fail"
	// PolicySkip drops the token from the search and tags its span
	// out-of-vocabulary in the output.
	PolicySkip Policy = "skip"
	// PolicySpell falls back to a grapheme-keyed single-phone guesser.
	PolicySpell Policy = "spell"
)

// ErrUnknownWord is the sentinel matched by UnknownWordError.
var ErrUnknownWord = errors.New("unknown word")

// UnknownWordError reports a token with no dictionary entry under
// PolicyFail.
type UnknownWordError struct {
	Token string
}

func (e *UnknownWordError) Error() string {
	return fmt.Sprintf("unknown word %q", e.Token)
}

func (e *UnknownWordError) Unwrap() error { return ErrUnknownWord }

// Tag classifies the origin of a grammar arc so downstream consumers
// can mark fallback spans in the final annotation.
type Tag uint8

const (
	TagLexicon Tag = iota
	TagSilence
	TagOOV
	TagSpelled
)

// Arc is a single phone transition in the network.
type Arc struct {
	From, To   int
	Phone      string
	Token      string
	TokenIndex int // -1 for silence arcs
	Tag        Tag
}

// Grammar is a per-utterance finite-state network of phone arcs.
type Grammar struct {
	arcs     []Arc
	numNodes int
	start    int
	end      int
	tokens   []string
	policy   Policy
	relaxed  bool
}

// Build constructs the network for the given token sequence.
func Build(tokens []string, d *dict.Dictionary, policy Policy) (*Grammar, error) {
	return build(tokens, d, policy, false)
}

// Relaxed rebuilds the grammar with optional silences between words,
// used for the single no-path retry.
func (g *Grammar) Relaxed(d *dict.Dictionary) (*Grammar, error) {
	return build(g.tokens, d, g.policy, true)
}

func build(tokens []string, d *dict.Dictionary, policy Policy, relaxed bool) (*Grammar, error) {
	switch policy {
	case PolicyFail, PolicySkip, PolicySpell:
	default:
		return nil, fmt.Errorf("unknown word policy %q", policy)
	}

	g := &Grammar{
		tokens:  append([]string(nil), tokens...),
		policy:  policy,
		relaxed: relaxed,
	}

	start := g.newNode()
	node := g.newNode()
	g.start = start
	g.addArc(Arc{From: start, To: node, Phone: dict.SilencePhone, TokenIndex: -1, Tag: TagSilence})

	for i, token := range tokens {
		variants, ok := lookup(d, token)
		tag := TagLexicon
		if !ok {
			switch policy {
			case PolicyFail:
				return nil, &UnknownWordError{Token: token}
			case PolicySkip:
				variants = [][]string{{dict.SilencePhone}}
				tag = TagOOV
			case PolicySpell:
				pron := Spell(token)
				if len(pron) == 0 {
					variants = [][]string{{dict.SilencePhone}}
					tag = TagOOV
				} else {
					variants = [][]string{pron}
					tag = TagSpelled
				}
			}
		}

		next := g.newNode()
		for _, pron := range variants {
			g.addPath(node, next, pron, token, i, tag)
		}
		if relaxed && i < len(tokens)-1 {
			// Optional short pause between words.
			g.addArc(Arc{From: next, To: next, Phone: dict.SilencePhone, TokenIndex: -1, Tag: TagSilence})
		}
		node = next
	}

	end := g.newNode()
	g.addArc(Arc{From: node, To: end, Phone: dict.SilencePhone, TokenIndex: -1, Tag: TagSilence})
	g.end = end
	return g, nil
}

func lookup(d *dict.Dictionary, token string) ([][]string, bool) {
	if d == nil {
		return nil, false
	}
	return d.Lookup(token)
}

// addPath wires one pronunciation variant between from and to, adding
// intermediate nodes for multi-phone pronunciations.
func (g *Grammar) addPath(from, to int, pron []string, token string, tokenIndex int, tag Tag) {
	node := from
	for i, phone := range pron {
		target := to
		if i < len(pron)-1 {
			target = g.newNode()
		}
		g.addArc(Arc{From: node, To: target, Phone: phone, Token: token, TokenIndex: tokenIndex, Tag: tag})
		node = target
	}
}

func (g *Grammar) newNode() int {
	id := g.numNodes
	g.numNodes++
	return id
}

func (g *Grammar) addArc(arc Arc) {
	g.arcs = append(g.arcs, arc)
}

// Arcs returns the network arcs. The slice must not be mutated.
func (g *Grammar) Arcs() []Arc { return g.arcs }

// Start returns the initial node.
func (g *Grammar) Start() int { return g.start }

// End returns the accepting node.
func (g *Grammar) End() int { return g.end }

// NumNodes returns the node count.
func (g *Grammar) NumNodes() int { return g.numNodes }

// Tokens returns the utterance tokens the grammar was built from.
func (g *Grammar) Tokens() []string { return g.tokens }

// Relaxed reports whether optional inter-word silences were added.
func (g *Grammar) IsRelaxed() bool { return g.relaxed }

// Phones returns the distinct phones referenced by the network.
func (g *Grammar) Phones() []string {
	seen := make(map[string]struct{})
	var phones []string
	for _, arc := range g.arcs {
		if _, ok := seen[arc.Phone]; ok {
			continue
		}
		seen[arc.Phone] = struct{}{}
		phones = append(phones, arc.Phone)
	}
	return phones
}
