package dict

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// ErrDictFormat reports a malformed dictionary file.
var ErrDictFormat = errors.New("pronunciation dictionary format")

var variantSuffix = regexp.MustCompile(`\(\d+\)$`)

var lower = cases.Lower(language.Und)

// Dictionary maps orthographic tokens to ordered pronunciation variants.
type Dictionary struct {
	entries map[string][][]string
}

// New creates an empty dictionary.
func New() *Dictionary {
	return &Dictionary{entries: make(map[string][][]string)}
}

// Load reads a dictionary file from path.
func Load(path string) (*Dictionary, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dictionary: %w", err)
	}
	defer file.Close()
	d, err := Parse(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Parse reads dictionary entries from r.
func Parse(r io.Reader) (*Dictionary, error) {
	d := New()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, ";") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: line %d: entry %q has no pronunciation", ErrDictFormat, line, text)
		}
		token := variantSuffix.ReplaceAllString(fields[0], "")
		phones := fields[1:]
		// Optional bracketed output symbol after the token.
		if strings.HasPrefix(phones[0], "[") {
			if !strings.HasSuffix(phones[0], "]") {
				return nil, fmt.Errorf("%w: line %d: unterminated output symbol", ErrDictFormat, line)
			}
			phones = phones[1:]
			if len(phones) == 0 {
				return nil, fmt.Errorf("%w: line %d: entry %q has no pronunciation", ErrDictFormat, line, token)
			}
		}
		d.Add(token, phones)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	if len(d.entries) == 0 {
		return nil, fmt.Errorf("%w: empty dictionary", ErrDictFormat)
	}
	return d, nil
}

// Add appends a pronunciation variant for token. Duplicate variants
// are ignored.
func (d *Dictionary) Add(token string, phones []string) {
	key := Normalize(token)
	if key == "" || len(phones) == 0 {
		return
	}
	pron := append([]string(nil), phones...)
	for _, existing := range d.entries[key] {
		if equalPron(existing, pron) {
			return
		}
	}
	d.entries[key] = append(d.entries[key], pron)
}

// Lookup returns the pronunciation variants for token in insertion
// order.
func (d *Dictionary) Lookup(token string) ([][]string, bool) {
	prons, ok := d.entries[Normalize(token)]
	return prons, ok
}

// Contains reports whether token has at least one pronunciation.
func (d *Dictionary) Contains(token string) bool {
	_, ok := d.entries[Normalize(token)]
	return ok
}

// Len returns the number of distinct tokens.
func (d *Dictionary) Len() int {
	return len(d.entries)
}

// Phones returns the sorted set of phones used across all entries.
func (d *Dictionary) Phones() []string {
	set := make(map[string]struct{})
	for _, prons := range d.entries {
		for _, pron := range prons {
			for _, phone := range pron {
				set[phone] = struct{}{}
			}
		}
	}
	phones := make([]string, 0, len(set))
	for phone := range set {
		phones = append(phones, phone)
	}
	sort.Strings(phones)
	return phones
}

// Normalize folds a token to its dictionary key form.
func Normalize(token string) string {
	return lower.String(norm.NFC.String(strings.TrimSpace(token)))
}

func equalPron(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
