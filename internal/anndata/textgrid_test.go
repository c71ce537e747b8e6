package anndata

import (
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"
)

const sampleTextGrid = `File type = "ooTextFile"
Object class = "TextGrid"

xmin = 0
xmax = 3
tiers? <exists>
size = 2
item []:
    item [1]:
        class = "IntervalTier"
        name = "transcription"
        xmin = 0
        xmax = 3
        intervals: size = 3
        intervals [1]:
            xmin = 0
            xmax = 0.5
            text = ""
        intervals [2]:
            xmin = 0.5
            xmax = 2.25
            text = "the cat sat"
        intervals [3]:
            xmin = 2.25
            xmax = 3
            text = ""
    item [2]:
        class = "TextTier"
        name = "points"
        xmin = 0
        xmax = 3
        points: size = 0
`

func TestReadTextGrid(t *testing.T) {
	tr, err := ReadTextGrid(strings.NewReader(sampleTextGrid))
	if err != nil {
		t.Fatalf("ReadTextGrid: %v", err)
	}
	if len(tr.Tiers) != 1 {
		t.Fatalf("expected 1 interval tier, got %d", len(tr.Tiers))
	}
	tier, err := tr.Tier("Transcription")
	if err != nil {
		t.Fatalf("Tier: %v", err)
	}
	if len(tier.Intervals) != 3 {
		t.Fatalf("expected 3 intervals, got %d", len(tier.Intervals))
	}
	if tier.Intervals[1].Label != "the cat sat" {
		t.Fatalf("unexpected label: %q", tier.Intervals[1].Label)
	}
	if math.Abs(tier.Intervals[1].Start-0.5) > 1e-9 || math.Abs(tier.Intervals[1].End-2.25) > 1e-9 {
		t.Fatalf("unexpected bounds: %v..%v", tier.Intervals[1].Start, tier.Intervals[1].End)
	}
}

func TestReadTextGridRejectsGarbage(t *testing.T) {
	if _, err := ReadTextGrid(strings.NewReader("not a textgrid\n")); !errors.Is(err, ErrTextGridFormat) {
		t.Fatalf("expected ErrTextGridFormat, got %v", err)
	}
}

func TestTierLookupMiss(t *testing.T) {
	tr := &Transcription{Tiers: []*Tier{{Name: "PhonAlign"}}}
	if _, err := tr.Tier("TokensAlign"); !errors.Is(err, ErrTierNotFound) {
		t.Fatalf("expected ErrTierNotFound, got %v", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	tr := &Transcription{}
	tr.Add(&Tier{Name: "PhonAlign", Intervals: []Interval{
		{Start: 0, End: 0.5, Label: "#"},
		{Start: 0.5, End: 0.62, Label: "DH"},
		{Start: 0.62, End: 0.74, Label: "AH"},
	}})
	tr.Add(&Tier{Name: "TokensAlign", Intervals: []Interval{
		{Start: 0, End: 0.5, Label: "#"},
		{Start: 0.5, End: 0.74, Label: "the"},
	}})

	path := filepath.Join(t.TempDir(), "out.TextGrid")
	if err := WriteTextGridFile(path, tr); err != nil {
		t.Fatalf("WriteTextGridFile: %v", err)
	}
	got, err := ReadTextGridFile(path)
	if err != nil {
		t.Fatalf("ReadTextGridFile: %v", err)
	}
	if len(got.Tiers) != 2 {
		t.Fatalf("expected 2 tiers, got %d", len(got.Tiers))
	}
	phones, err := got.Tier("PhonAlign")
	if err != nil {
		t.Fatalf("Tier: %v", err)
	}
	if len(phones.Intervals) != 3 {
		t.Fatalf("expected 3 phone intervals, got %d", len(phones.Intervals))
	}
	if phones.Intervals[1].Label != "DH" {
		t.Fatalf("unexpected label: %q", phones.Intervals[1].Label)
	}
}

func TestWriteEscapesQuotes(t *testing.T) {
	tr := &Transcription{}
	tr.Add(&Tier{Name: "transcription", Intervals: []Interval{
		{Start: 0, End: 1, Label: `say "hi"`},
	}})
	var sb strings.Builder
	if err := WriteTextGrid(&sb, tr); err != nil {
		t.Fatalf("WriteTextGrid: %v", err)
	}
	got, err := ReadTextGrid(strings.NewReader(sb.String()))
	if err != nil {
		t.Fatalf("ReadTextGrid: %v", err)
	}
	if got.Tiers[0].Intervals[0].Label != `say "hi"` {
		t.Fatalf("unexpected label: %q", got.Tiers[0].Intervals[0].Label)
	}
}

func TestUtterances(t *testing.T) {
	tier := &Tier{Name: "transcription", Intervals: []Interval{
		{Start: 0, End: 0.5, Label: " "},
		{Start: 0.5, End: 2.25, Label: "the cat sat"},
		{Start: 2.25, End: 3, Label: ""},
		{Start: 3, End: 4, Label: "again"},
	}}
	utts := Utterances(tier)
	if len(utts) != 2 {
		t.Fatalf("expected 2 utterances, got %d", len(utts))
	}
	if len(utts[0].Tokens) != 3 || utts[0].Tokens[2] != "sat" {
		t.Fatalf("unexpected tokens: %v", utts[0].Tokens)
	}
	if utts[1].Start != 3 || utts[1].End != 4 {
		t.Fatalf("unexpected bounds: %v..%v", utts[1].Start, utts[1].End)
	}
}
