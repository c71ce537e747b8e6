package acm

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Load reads an acoustic model directory. hmmdefs is required; a
// monophones listing and a tiedlist are honored when present.
func Load(dir string) (*Model, error) {
	defs := filepath.Join(dir, "hmmdefs")
	file, err := os.Open(defs)
	if err != nil {
		return nil, fmt.Errorf("%w: no model found in %s", ErrModelFormat, dir)
	}
	defer file.Close()

	model, err := Parse(file)
	if err != nil {
		return nil, err
	}
	model.Name = filepath.Base(dir)

	if phones, err := readListing(filepath.Join(dir, "monophones")); err == nil {
		for _, phone := range phones {
			if !model.HasPhone(phone) {
				return nil, fmt.Errorf("%w: %q listed in monophones", ErrPhonemeMissing, phone)
			}
		}
	}
	if err := applyTiedlist(model, filepath.Join(dir, "tiedlist")); err != nil {
		return nil, err
	}
	return model, nil
}

// Parse reads an HTK-ASCII hmmdefs stream.
func Parse(r io.Reader) (*Model, error) {
	tr := newTokenReader(r)
	model := &Model{phones: make(map[string]*HMM)}
	transMacros := make(map[string][][]float64)
	stateMacros := make(map[string]*State)

	for {
		tok, ok := tr.next()
		if !ok {
			break
		}
		switch strings.ToLower(tok) {
		case "~o":
			if err := parseOptions(tr, model); err != nil {
				return nil, err
			}
		case "~t":
			name, err := tr.quoted()
			if err != nil {
				return nil, err
			}
			trans, err := parseTransP(tr, 0)
			if err != nil {
				return nil, err
			}
			transMacros[name] = trans
		case "~v":
			// Variance floor macro: parse and discard.
			if _, err := tr.quoted(); err != nil {
				return nil, err
			}
			if err := skipVarianceFloor(tr); err != nil {
				return nil, err
			}
		case "~s":
			name, err := tr.quoted()
			if err != nil {
				return nil, err
			}
			state, err := parseState(tr, model.VecSize)
			if err != nil {
				return nil, err
			}
			stateMacros[name] = state
		case "~h":
			name, err := tr.quoted()
			if err != nil {
				return nil, err
			}
			hmm, err := parseHMM(tr, name, model.VecSize, transMacros, stateMacros)
			if err != nil {
				return nil, err
			}
			model.phones[name] = hmm
		default:
			return nil, formatErrorf(tr.line, "unexpected token %q", tok)
		}
	}

	if len(model.phones) == 0 {
		return nil, formatErrorf(0, "empty model: no HMM definitions")
	}
	for _, hmm := range model.phones {
		for _, state := range hmm.Emitting {
			for i := range state.Mixtures {
				state.Mixtures[i].precompute()
			}
		}
	}
	return model, nil
}

func parseOptions(tr *tokenReader, model *Model) error {
	for {
		tok, ok := tr.peek()
		if !ok || !strings.HasPrefix(tok, "<") {
			return nil
		}
		switch keyword(tok) {
		case "streaminfo":
			tr.next()
			if _, err := tr.integer(); err != nil {
				return err
			}
			if _, err := tr.integer(); err != nil {
				return err
			}
		case "vecsize":
			tr.next()
			size, err := tr.integer()
			if err != nil {
				return err
			}
			if size <= 0 {
				return formatErrorf(tr.line, "vector size %d", size)
			}
			model.VecSize = size
		case "diagc", "nulld", "fullc", "invdiagc":
			tr.next()
		default:
			// Parameter kind flag such as <MFCC_0_D_N_Z>.
			tr.next()
			if model.ParamKind == "" {
				model.ParamKind = strings.Trim(tok, "<>")
			}
		}
	}
}

func parseHMM(tr *tokenReader, name string, vecSize int, transMacros map[string][][]float64, stateMacros map[string]*State) (*HMM, error) {
	if err := tr.expect("beginhmm"); err != nil {
		return nil, err
	}
	if err := tr.expect("numstates"); err != nil {
		return nil, err
	}
	numStates, err := tr.integer()
	if err != nil {
		return nil, err
	}
	if numStates < 3 {
		return nil, formatErrorf(tr.line, "hmm %q: %d states, need at least 3", name, numStates)
	}

	hmm := &HMM{Name: name, NumStates: numStates, Emitting: make([]*State, numStates-2)}

	for {
		tok, ok := tr.next()
		if !ok {
			return nil, formatErrorf(tr.line, "hmm %q: unterminated definition", name)
		}
		switch keyword(tok) {
		case "state":
			idx, err := tr.integer()
			if err != nil {
				return nil, err
			}
			if idx < 2 || idx > numStates-1 {
				return nil, formatErrorf(tr.line, "hmm %q: state index %d out of range [2,%d]", name, idx, numStates-1)
			}
			ref, ok := tr.peek()
			var state *State
			if ok && ref == "~s" {
				tr.next()
				macro, err := tr.quoted()
				if err != nil {
					return nil, err
				}
				shared, ok := stateMacros[macro]
				if !ok {
					return nil, formatErrorf(tr.line, "hmm %q: undefined state macro %q", name, macro)
				}
				state = shared
			} else {
				state, err = parseState(tr, vecSize)
				if err != nil {
					return nil, err
				}
			}
			hmm.Emitting[idx-2] = state
		case "transp":
			tr.unread("<TRANSP>")
			trans, err := parseTransP(tr, numStates)
			if err != nil {
				return nil, err
			}
			hmm.TransLog = trans
		case "~t":
			macro, err := tr.quoted()
			if err != nil {
				return nil, err
			}
			trans, ok := transMacros[macro]
			if !ok {
				return nil, formatErrorf(tr.line, "hmm %q: undefined transition macro %q", name, macro)
			}
			if len(trans) != numStates {
				return nil, formatErrorf(tr.line, "hmm %q: transition macro %q is %dx%d, want %d", name, macro, len(trans), len(trans), numStates)
			}
			hmm.TransLog = trans
		case "endhmm":
			return finishHMM(tr, hmm)
		default:
			return nil, formatErrorf(tr.line, "hmm %q: unexpected token %q", name, tok)
		}
	}
}

func finishHMM(tr *tokenReader, hmm *HMM) (*HMM, error) {
	for i, state := range hmm.Emitting {
		if state == nil {
			return nil, formatErrorf(tr.line, "hmm %q: emitting state %d undefined", hmm.Name, i+2)
		}
	}
	if hmm.TransLog == nil {
		return nil, formatErrorf(tr.line, "hmm %q: missing transition matrix", hmm.Name)
	}
	if len(hmm.TransLog) != hmm.NumStates {
		return nil, formatErrorf(tr.line, "hmm %q: transition matrix is %dx%d, want %d", hmm.Name, len(hmm.TransLog), len(hmm.TransLog), hmm.NumStates)
	}
	// Exit state must be absorbing and the entry state unreachable.
	last := hmm.NumStates - 1
	for j, lp := range hmm.TransLog[last] {
		if lp > LogZero {
			return nil, formatErrorf(tr.line, "hmm %q: exit state has outgoing transition to %d", hmm.Name, j+1)
		}
	}
	for i := range hmm.TransLog {
		if hmm.TransLog[i][0] > LogZero {
			return nil, formatErrorf(tr.line, "hmm %q: transition into entry state from %d", hmm.Name, i+1)
		}
	}
	return hmm, nil
}

func parseState(tr *tokenReader, vecSize int) (*State, error) {
	numMixes := 1
	if tok, ok := tr.peek(); ok && keyword(tok) == "nummixes" {
		tr.next()
		n, err := tr.integer()
		if err != nil {
			return nil, err
		}
		if n < 1 {
			return nil, formatErrorf(tr.line, "mixture count %d", n)
		}
		numMixes = n
	}

	state := &State{}
	for m := 0; m < numMixes; m++ {
		weight := 1.0
		if tok, ok := tr.peek(); ok && keyword(tok) == "mixture" {
			tr.next()
			idx, err := tr.integer()
			if err != nil {
				return nil, err
			}
			if idx != m+1 {
				return nil, formatErrorf(tr.line, "mixture index %d, want %d", idx, m+1)
			}
			if weight, err = tr.float(); err != nil {
				return nil, err
			}
			if weight <= 0 {
				return nil, formatErrorf(tr.line, "mixture weight %g", weight)
			}
		} else if numMixes > 1 {
			return nil, formatErrorf(tr.line, "expected <MIXTURE> %d", m+1)
		}

		mean, err := parseVector(tr, "mean", vecSize)
		if err != nil {
			return nil, err
		}
		variance, err := parseVector(tr, "variance", vecSize)
		if err != nil {
			return nil, err
		}
		if len(variance) != len(mean) {
			return nil, formatErrorf(tr.line, "variance size %d, mean size %d", len(variance), len(mean))
		}
		for _, v := range variance {
			if v <= 0 {
				return nil, formatErrorf(tr.line, "non-positive variance %g", v)
			}
		}
		if tok, ok := tr.peek(); ok && keyword(tok) == "gconst" {
			tr.next()
			if _, err := tr.float(); err != nil {
				return nil, err
			}
		}
		state.Mixtures = append(state.Mixtures, Mixture{
			LogWeight: math.Log(weight),
			Mean:      mean,
			Variance:  variance,
		})
	}
	return state, nil
}

func parseVector(tr *tokenReader, name string, vecSize int) ([]float64, error) {
	if err := tr.expect(name); err != nil {
		return nil, err
	}
	size, err := tr.integer()
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, formatErrorf(tr.line, "%s size %d", name, size)
	}
	if vecSize > 0 && size != vecSize {
		return nil, formatErrorf(tr.line, "%s size %d, declared vector size %d", name, size, vecSize)
	}
	values := make([]float64, size)
	for i := range values {
		if values[i], err = tr.float(); err != nil {
			return nil, err
		}
	}
	return values, nil
}

func parseTransP(tr *tokenReader, wantSize int) ([][]float64, error) {
	if err := tr.expect("transp"); err != nil {
		return nil, err
	}
	size, err := tr.integer()
	if err != nil {
		return nil, err
	}
	if size < 3 {
		return nil, formatErrorf(tr.line, "transition matrix size %d", size)
	}
	if wantSize > 0 && size != wantSize {
		return nil, formatErrorf(tr.line, "transition matrix size %d, want %d", size, wantSize)
	}
	trans := make([][]float64, size)
	for i := range trans {
		trans[i] = make([]float64, size)
		for j := range trans[i] {
			p, err := tr.float()
			if err != nil {
				return nil, err
			}
			if p < 0 || p > 1 {
				return nil, formatErrorf(tr.line, "transition probability %g", p)
			}
			if p > 0 {
				trans[i][j] = math.Log(p)
			} else {
				trans[i][j] = LogZero
			}
		}
	}
	return trans, nil
}

func skipVarianceFloor(tr *tokenReader) error {
	_, err := parseVector(tr, "variance", 0)
	return err
}

func readListing(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var entries []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		entries = append(entries, line)
	}
	return entries, scanner.Err()
}

// applyTiedlist maps tied phone aliases onto their base HMM.
func applyTiedlist(model *Model, path string) error {
	lines, err := readListing(path)
	if err != nil {
		return nil // tiedlist is optional
	}
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 1 {
			if !model.HasPhone(fields[0]) {
				return fmt.Errorf("%w: %q listed in tiedlist", ErrPhonemeMissing, fields[0])
			}
			continue
		}
		alias, base := fields[0], fields[1]
		hmm := model.HMM(base)
		if hmm == nil {
			return fmt.Errorf("%w: tiedlist alias %q targets undefined %q", ErrPhonemeMissing, alias, base)
		}
		if !model.HasPhone(alias) {
			model.phones[alias] = hmm
		}
	}
	return nil
}

func keyword(tok string) string {
	return strings.ToLower(strings.Trim(tok, "<>"))
}

// tokenReader yields whitespace-separated tokens, skipping comment
// lines, and tracks the current line for error reporting.
type tokenReader struct {
	scanner *bufio.Scanner
	tokens  []string
	pos     int
	line    int
	pushed  []string
}

func newTokenReader(r io.Reader) *tokenReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	return &tokenReader{scanner: scanner}
}

func (tr *tokenReader) next() (string, bool) {
	if n := len(tr.pushed); n > 0 {
		tok := tr.pushed[n-1]
		tr.pushed = tr.pushed[:n-1]
		return tok, true
	}
	for tr.pos >= len(tr.tokens) {
		if !tr.scanner.Scan() {
			return "", false
		}
		tr.line++
		text := strings.TrimSpace(tr.scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") || strings.HasPrefix(text, ";") {
			continue
		}
		tr.tokens = strings.Fields(text)
		tr.pos = 0
	}
	tok := tr.tokens[tr.pos]
	tr.pos++
	return tok, true
}

func (tr *tokenReader) peek() (string, bool) {
	tok, ok := tr.next()
	if ok {
		tr.unread(tok)
	}
	return tok, ok
}

func (tr *tokenReader) unread(tok string) {
	tr.pushed = append(tr.pushed, tok)
}

func (tr *tokenReader) expect(kw string) error {
	tok, ok := tr.next()
	if !ok {
		return formatErrorf(tr.line, "unexpected end of file, expected <%s>", kw)
	}
	if keyword(tok) != kw {
		return formatErrorf(tr.line, "expected <%s>, found %q", kw, tok)
	}
	return nil
}

func (tr *tokenReader) integer() (int, error) {
	tok, ok := tr.next()
	if !ok {
		return 0, formatErrorf(tr.line, "unexpected end of file, expected integer")
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, formatErrorf(tr.line, "expected integer, found %q", tok)
	}
	return n, nil
}

func (tr *tokenReader) float() (float64, error) {
	tok, ok := tr.next()
	if !ok {
		return 0, formatErrorf(tr.line, "unexpected end of file, expected number")
	}
	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, formatErrorf(tr.line, "expected number, found %q", tok)
	}
	return f, nil
}

func (tr *tokenReader) quoted() (string, error) {
	tok, ok := tr.next()
	if !ok {
		return "", formatErrorf(tr.line, "unexpected end of file, expected name")
	}
	return strings.Trim(tok, `"`), nil
}
