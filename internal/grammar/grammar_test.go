package grammar_test

import (
	"errors"
	"strings"
	"testing"

	"palign/internal/dict"
	"palign/internal/grammar"
)

func testDict() *dict.Dictionary {
	d := dict.New()
	d.Add("the", []string{"DH", "AH"})
	d.Add("the", []string{"DH", "IY"})
	d.Add("cat", []string{"K", "AE", "T"})
	return d
}

// paths enumerates every phone sequence accepted by the network.
func paths(g *grammar.Grammar) []string {
	adj := make(map[int][]grammar.Arc)
	for _, arc := range g.Arcs() {
		if arc.From == arc.To {
			continue // self-loops make the language infinite
		}
		adj[arc.From] = append(adj[arc.From], arc)
	}
	var out []string
	var walk func(node int, acc []string)
	walk = func(node int, acc []string) {
		if node == g.End() {
			out = append(out, strings.Join(acc, " "))
			return
		}
		for _, arc := range adj[node] {
			walk(arc.To, append(acc, arc.Phone))
		}
	}
	walk(g.Start(), nil)
	return out
}

func TestBuildEnumeratesAllVariants(t *testing.T) {
	g, err := grammar.Build([]string{"the", "cat"}, testDict(), grammar.PolicyFail)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	got := paths(g)
	want := map[string]bool{
		"# DH AH K AE T #": false,
		"# DH IY K AE T #": false,
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d paths, got %v", len(want), got)
	}
	for _, path := range got {
		if _, ok := want[path]; !ok {
			t.Fatalf("unexpected path %q", path)
		}
		want[path] = true
	}
	for path, seen := range want {
		if !seen {
			t.Fatalf("missing path %q", path)
		}
	}
}

func TestBuildNeverFailsForKnownTokens(t *testing.T) {
	d := testDict()
	for _, tokens := range [][]string{{"the"}, {"cat"}, {"the", "cat", "the"}} {
		if _, err := grammar.Build(tokens, d, grammar.PolicyFail); err != nil {
			t.Fatalf("Build(%v) returned error: %v", tokens, err)
		}
	}
}

func TestBuildUnknownWordPolicies(t *testing.T) {
	d := testDict()

	_, err := grammar.Build([]string{"xyzzy"}, d, grammar.PolicyFail)
	if !errors.Is(err, grammar.ErrUnknownWord) {
		t.Fatalf("expected ErrUnknownWord, got %v", err)
	}
	var uwe *grammar.UnknownWordError
	if !errors.As(err, &uwe) || uwe.Token != "xyzzy" {
		t.Fatalf("expected UnknownWordError for xyzzy, got %v", err)
	}

	g, err := grammar.Build([]string{"the", "xyzzy"}, d, grammar.PolicySkip)
	if err != nil {
		t.Fatalf("PolicySkip returned error: %v", err)
	}
	var oov int
	for _, arc := range g.Arcs() {
		if arc.Tag == grammar.TagOOV {
			oov++
			if arc.Token != "xyzzy" {
				t.Fatalf("OOV arc carries token %q", arc.Token)
			}
		}
	}
	if oov != 1 {
		t.Fatalf("expected one OOV arc, got %d", oov)
	}

	g, err = grammar.Build([]string{"xyzzy"}, d, grammar.PolicySpell)
	if err != nil {
		t.Fatalf("PolicySpell returned error: %v", err)
	}
	var spelled []string
	for _, arc := range g.Arcs() {
		if arc.Tag == grammar.TagSpelled {
			spelled = append(spelled, arc.Phone)
		}
	}
	if strings.Join(spelled, "") != "xyzzy" {
		t.Fatalf("spelled phones = %v", spelled)
	}
}

func TestBuildStartsAndEndsWithSilence(t *testing.T) {
	g, err := grammar.Build([]string{"cat"}, testDict(), grammar.PolicyFail)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	for _, path := range paths(g) {
		if !strings.HasPrefix(path, dict.SilencePhone+" ") || !strings.HasSuffix(path, " "+dict.SilencePhone) {
			t.Fatalf("path %q not silence-delimited", path)
		}
	}
}

func TestRelaxedAddsInterWordSilenceLoop(t *testing.T) {
	g, err := grammar.Build([]string{"the", "cat"}, testDict(), grammar.PolicyFail)
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	relaxed, err := g.Relaxed(testDict())
	if err != nil {
		t.Fatalf("Relaxed returned error: %v", err)
	}
	if !relaxed.IsRelaxed() {
		t.Fatal("expected relaxed grammar")
	}
	var loops int
	for _, arc := range relaxed.Arcs() {
		if arc.From == arc.To {
			if arc.Phone != dict.SilencePhone {
				t.Fatalf("self-loop on %q", arc.Phone)
			}
			loops++
		}
	}
	if loops != 1 {
		t.Fatalf("expected one inter-word silence loop, got %d", loops)
	}
}

func TestSpell(t *testing.T) {
	got := grammar.Spell("Café!")
	if strings.Join(got, "") != "cafe" {
		t.Fatalf("Spell = %v", got)
	}
	if phones := grammar.Spell("42"); phones != nil {
		t.Fatalf("expected no phones for digits, got %v", phones)
	}
}
