package anndata

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrTextGridFormat reports a file that could not be parsed as a Praat
// TextGrid.
var ErrTextGridFormat = errors.New("invalid textgrid")

// ReadTextGridFile parses a long-format Praat TextGrid file.
func ReadTextGridFile(path string) (*Transcription, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open textgrid: %w", err)
	}
	defer f.Close()
	tr, err := ReadTextGrid(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, path)
	}
	return tr, nil
}

// ReadTextGrid parses a long-format Praat TextGrid from r. Point tiers
// are skipped; only interval tiers are returned.
func ReadTextGrid(r io.Reader) (*Transcription, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for sc.Scan() {
		lines = append(lines, strings.TrimSpace(sc.Text()))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read textgrid: %w", err)
	}
	if len(lines) == 0 || !strings.Contains(lines[0], "ooTextFile") {
		return nil, fmt.Errorf("%w: missing ooTextFile header", ErrTextGridFormat)
	}
	headerOK := false
	for _, line := range lines[:min(len(lines), 4)] {
		if strings.Contains(line, "TextGrid") {
			headerOK = true
			break
		}
	}
	if !headerOK {
		return nil, fmt.Errorf("%w: not a TextGrid object", ErrTextGridFormat)
	}

	tr := &Transcription{}
	var tier *Tier
	intervalTier := false
	var cur Interval
	curSet := false

	flush := func() {
		if tier != nil && intervalTier && curSet {
			tier.Append(cur)
		}
		cur = Interval{}
		curSet = false
	}

	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, "item ["):
			flush()
			if tier != nil && intervalTier {
				tr.Add(tier)
			}
			tier = nil
			intervalTier = false
		case strings.HasPrefix(line, "class"):
			intervalTier = strings.Contains(line, "IntervalTier")
			if intervalTier {
				tier = &Tier{}
			}
		case strings.HasPrefix(line, "name"):
			if tier != nil {
				tier.Name = parseQuoted(line)
			}
		case strings.HasPrefix(line, "intervals ["):
			flush()
			curSet = true
		case strings.HasPrefix(line, "xmin"):
			if curSet {
				v, err := parseNumberField(line)
				if err != nil {
					return nil, err
				}
				cur.Start = v
			}
		case strings.HasPrefix(line, "xmax"):
			if curSet {
				v, err := parseNumberField(line)
				if err != nil {
					return nil, err
				}
				cur.End = v
			}
		case strings.HasPrefix(line, "text"):
			if curSet {
				cur.Label = parseQuoted(line)
			}
		}
	}
	flush()
	if tier != nil && intervalTier {
		tr.Add(tier)
	}
	if len(tr.Tiers) == 0 {
		return nil, fmt.Errorf("%w: no interval tiers", ErrTextGridFormat)
	}
	return tr, nil
}

// WriteTextGridFile writes the transcription to path in long format.
func WriteTextGridFile(path string, tr *Transcription) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create textgrid: %w", err)
	}
	defer f.Close()
	if err := WriteTextGrid(f, tr); err != nil {
		return err
	}
	return f.Close()
}

// WriteTextGrid renders the transcription as a long-format Praat
// TextGrid.
func WriteTextGrid(w io.Writer, tr *Transcription) error {
	bw := bufio.NewWriter(w)
	xmin := tr.Min()
	xmax := tr.Max()

	fmt.Fprintf(bw, "File type = \"ooTextFile\"\n")
	fmt.Fprintf(bw, "Object class = \"TextGrid\"\n\n")
	fmt.Fprintf(bw, "xmin = %s\n", formatTime(xmin))
	fmt.Fprintf(bw, "xmax = %s\n", formatTime(xmax))
	fmt.Fprintf(bw, "tiers? <exists>\n")
	fmt.Fprintf(bw, "size = %d\n", len(tr.Tiers))
	fmt.Fprintf(bw, "item []:\n")
	for i, tier := range tr.Tiers {
		fmt.Fprintf(bw, "    item [%d]:\n", i+1)
		fmt.Fprintf(bw, "        class = \"IntervalTier\"\n")
		fmt.Fprintf(bw, "        name = \"%s\"\n", quoteLabel(tier.Name))
		fmt.Fprintf(bw, "        xmin = %s\n", formatTime(xmin))
		fmt.Fprintf(bw, "        xmax = %s\n", formatTime(xmax))
		fmt.Fprintf(bw, "        intervals: size = %d\n", len(tier.Intervals))
		for j, iv := range tier.Intervals {
			fmt.Fprintf(bw, "        intervals [%d]:\n", j+1)
			fmt.Fprintf(bw, "            xmin = %s\n", formatTime(iv.Start))
			fmt.Fprintf(bw, "            xmax = %s\n", formatTime(iv.End))
			fmt.Fprintf(bw, "            text = \"%s\"\n", quoteLabel(iv.Label))
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write textgrid: %w", err)
	}
	return nil
}

func parseQuoted(line string) string {
	_, value, found := strings.Cut(line, "=")
	if !found {
		return ""
	}
	value = strings.TrimSpace(value)
	value = strings.TrimPrefix(value, "\"")
	value = strings.TrimSuffix(value, "\"")
	return strings.ReplaceAll(value, `""`, `"`)
}

func parseNumberField(line string) (float64, error) {
	_, value, found := strings.Cut(line, "=")
	if !found {
		return 0, fmt.Errorf("%w: bad field %q", ErrTextGridFormat, line)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad number %q", ErrTextGridFormat, line)
	}
	return v, nil
}

func quoteLabel(label string) string {
	return strings.ReplaceAll(label, `"`, `""`)
}

func formatTime(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
