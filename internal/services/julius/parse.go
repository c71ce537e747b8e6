package julius

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var alignmentLine = regexp.MustCompile(`^\[\s*(\d+)\s+(\d+)\]\s+(-?[0-9.]+)\s+(\S+)`)

// parseAlignment extracts the phoneme alignment rows from Julius
// output. When begin/end markers are present only the marked section
// is considered.
func parseAlignment(lines []string) ([]Segment, error) {
	section := lines
	for i, line := range lines {
		if strings.Contains(line, "begin forced alignment") {
			section = lines[i+1:]
			break
		}
	}

	var segments []Segment
	for _, line := range section {
		if strings.Contains(line, "end forced alignment") {
			break
		}
		m := alignmentLine.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		start, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("%w: bad frame %q", ErrNoAlignment, line)
		}
		end, err := strconv.Atoi(m[2])
		if err != nil {
			return nil, fmt.Errorf("%w: bad frame %q", ErrNoAlignment, line)
		}
		score, err := strconv.ParseFloat(m[3], 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bad score %q", ErrNoAlignment, line)
		}
		segments = append(segments, Segment{
			StartFrame: start,
			EndFrame:   end,
			Score:      score,
			Phone:      centerPhone(m[4]),
		})
	}
	if len(segments) == 0 {
		return nil, ErrNoAlignment
	}
	return segments, nil
}

// centerPhone strips triphone context notation, keeping the center
// unit: "a-b+c" yields "b".
func centerPhone(unit string) string {
	if i := strings.LastIndex(unit, "-"); i >= 0 {
		unit = unit[i+1:]
	}
	if i := strings.Index(unit, "+"); i >= 0 {
		unit = unit[:i]
	}
	return unit
}
