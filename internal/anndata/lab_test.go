package anndata

import (
	"strings"
	"testing"
)

func TestWriteLab(t *testing.T) {
	tier := &Tier{Name: "PhonAlign", Intervals: []Interval{
		{Start: 0, End: 0.5, Label: "#"},
		{Start: 0.5, End: 0.62, Label: "DH"},
	}}
	var sb strings.Builder
	if err := WriteLab(&sb, tier); err != nil {
		t.Fatalf("WriteLab: %v", err)
	}
	want := "0 5000000 #\n5000000 6200000 DH\n"
	if sb.String() != want {
		t.Fatalf("got %q, want %q", sb.String(), want)
	}
}
