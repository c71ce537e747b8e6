package aligner

import (
	"testing"
	"time"

	"palign/internal/dict"
	"palign/internal/grammar"
	"palign/internal/services/julius"
)

func TestJuliusConvertAttributesTokens(t *testing.T) {
	d := dict.New()
	d.Add("the", []string{"DH", "AH"})
	d.Add("the", []string{"DH", "IY"})
	d.Add("cat", []string{"K", "AE", "T"})
	g, err := grammar.Build([]string{"the", "cat"}, d, grammar.PolicyFail)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	segs := []julius.Segment{
		{StartFrame: 0, EndFrame: 49, Phone: "silB", Score: -20},
		{StartFrame: 50, EndFrame: 61, Phone: "DH", Score: -21},
		{StartFrame: 62, EndFrame: 73, Phone: "IY", Score: -22},
		{StartFrame: 74, EndFrame: 85, Phone: "K", Score: -23},
		{StartFrame: 86, EndFrame: 97, Phone: "AE", Score: -24},
		{StartFrame: 98, EndFrame: 109, Phone: "T", Score: -25},
		{StartFrame: 110, EndFrame: 119, Phone: "silE", Score: -26},
	}

	a := &juliusAligner{opts: Options{FrameShift: 10 * time.Millisecond}}
	raw := a.convert(g, segs, 1.2)

	if len(raw.Segments) != 7 {
		t.Fatalf("expected 7 segments, got %d", len(raw.Segments))
	}
	if raw.Segments[0].Phone != "#" || raw.Segments[0].TokenIndex != -1 {
		t.Fatalf("unexpected leading silence: %+v", raw.Segments[0])
	}
	if raw.Segments[2].Token != "the" || raw.Segments[2].TokenIndex != 0 {
		t.Fatalf("unexpected attribution: %+v", raw.Segments[2])
	}
	if raw.Segments[5].Token != "cat" || raw.Segments[5].TokenIndex != 1 {
		t.Fatalf("unexpected attribution: %+v", raw.Segments[5])
	}
	if raw.Segments[1].Start != 0.5 {
		t.Fatalf("frame conversion off: %v", raw.Segments[1].Start)
	}
	if raw.Segments[6].End != 1.2 {
		t.Fatalf("final segment not clamped: %v", raw.Segments[6].End)
	}
}

func TestMatchPathRejectsIllegalSequence(t *testing.T) {
	d := dict.New()
	d.Add("at", []string{"a", "t"})
	g, err := grammar.Build([]string{"at"}, d, grammar.PolicyFail)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if _, ok := matchPath(g, []string{"sil", "t", "a", "sil"}); ok {
		t.Fatal("expected no match for out-of-order phones")
	}
	if _, ok := matchPath(g, []string{"sil", "a", "t", "sil"}); !ok {
		t.Fatal("expected match for legal sequence")
	}
}
