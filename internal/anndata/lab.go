package anndata

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
)

// htkTimeUnit is the HTK label time base of 100 nanoseconds.
const htkTimeUnit = 1e7

// WriteLabFile writes the tier to path as an HTK label file.
func WriteLabFile(path string, tier *Tier) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create label file: %w", err)
	}
	defer f.Close()
	if err := WriteLab(f, tier); err != nil {
		return err
	}
	return f.Close()
}

// WriteLab renders the tier in HTK label format, one interval per line
// with start and end in 100ns units.
func WriteLab(w io.Writer, tier *Tier) error {
	bw := bufio.NewWriter(w)
	for _, iv := range tier.Intervals {
		start := int64(math.Round(iv.Start * htkTimeUnit))
		end := int64(math.Round(iv.End * htkTimeUnit))
		fmt.Fprintf(bw, "%d %d %s\n", start, end, iv.Label)
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("write label file: %w", err)
	}
	return nil
}
