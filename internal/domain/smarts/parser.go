package smarts

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// Comparison tool output layout. Lines 0 and 1 are a banner, line 2 declares
// the mode, every following line is one compared pair:
//
//	leftPattern`(leftTag)|(mcs,sp[,extra])`rightPattern`(rightTag)
const (
	modeLineIndex  = 2
	fieldSeparator = "|"
	recordSep      = "`"
	maxOutputLine  = 4 << 20
)

// CompareRecord is one data line of comparison tool output. The ids are the
// tags the serializer wrote, i.e. SMARTS ids in string form.
type CompareRecord struct {
	Line    int
	LeftID  string
	RightID string
	MCSSim  float64
	SPSim   float64
}

// CompareParser reads comparison tool output. Mode must be called first;
// Next/Record/Err then iterate the data lines in the style of bufio.Scanner.
// Any deviation from the grammar stops the parser with ErrCodeParseGrammar.
type CompareParser struct {
	sc       *bufio.Scanner
	idx      int
	mode     Mode
	modeRead bool
	rec      CompareRecord
	err      error
}

// NewCompareParser wraps r.
func NewCompareParser(r io.Reader) *CompareParser {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxOutputLine)
	return &CompareParser{sc: sc, idx: -1}
}

func (p *CompareParser) scan() bool {
	if !p.sc.Scan() {
		if err := p.sc.Err(); err != nil && p.err == nil {
			p.err = errors.Wrap(err, errors.ErrCodeParseGrammar, "failed to read comparison output")
		}
		return false
	}
	p.idx++
	return true
}

// Mode consumes the banner and the mode line and returns the declared mode.
// Repeated calls return the same result.
func (p *CompareParser) Mode() (Mode, error) {
	if p.modeRead {
		return p.mode, p.err
	}
	p.modeRead = true

	for p.idx < modeLineIndex {
		if !p.scan() {
			if p.err == nil {
				p.err = errors.Newf(errors.ErrCodeParseGrammar,
					"comparison output ended after %d line(s), before the mode line", p.idx+1)
			}
			return 0, p.err
		}
	}

	line := p.sc.Text()
	name := line
	if i := strings.LastIndex(line, " "); i >= 0 {
		name = line[i+1:]
	}
	name = strings.ReplaceAll(strings.TrimSpace(name), "'", "")

	m, err := ParseMode(name)
	if err != nil {
		p.err = err
		return 0, err
	}
	p.mode = m
	return m, nil
}

// Next advances to the next data line. It returns false at the end of input
// or on the first error; check Err afterwards.
func (p *CompareParser) Next() bool {
	if !p.modeRead {
		if _, err := p.Mode(); err != nil {
			return false
		}
	}
	if p.err != nil || !p.scan() {
		return false
	}
	rec, err := parseCompareLine(p.sc.Text())
	if err != nil {
		p.err = errors.Wrapf(err, errors.ErrCodeParseGrammar, "comparison output line %d", p.idx+1)
		return false
	}
	rec.Line = p.idx + 1
	p.rec = rec
	return true
}

// Record returns the record read by the last successful Next.
func (p *CompareParser) Record() CompareRecord { return p.rec }

// Err returns the first error encountered.
func (p *CompareParser) Err() error { return p.err }

// ParseCompareOutput reads the whole output at once.
func ParseCompareOutput(r io.Reader) (Mode, []CompareRecord, error) {
	p := NewCompareParser(r)
	mode, err := p.Mode()
	if err != nil {
		return 0, nil, err
	}
	var out []CompareRecord
	for p.Next() {
		out = append(out, p.Record())
	}
	if err := p.Err(); err != nil {
		return 0, nil, err
	}
	return mode, out, nil
}

func parseCompareLine(line string) (CompareRecord, error) {
	halves := strings.Split(line, fieldSeparator)
	if len(halves) != 2 {
		return CompareRecord{}, grammarf("expected 2 %q-separated halves, got %d", fieldSeparator, len(halves))
	}

	left := strings.Split(halves[0], recordSep)
	if len(left) != 2 {
		return CompareRecord{}, grammarf("left half: expected pattern and tag, got %d field(s)", len(left))
	}
	right := strings.Split(halves[1], recordSep)
	if len(right) != 3 {
		return CompareRecord{}, grammarf("right half: expected similarities, pattern and tag, got %d field(s)", len(right))
	}

	leftID, err := tagID(left[1])
	if err != nil {
		return CompareRecord{}, err
	}
	rightID, err := tagID(right[2])
	if err != nil {
		return CompareRecord{}, err
	}
	mcs, sp, err := similarities(right[0])
	if err != nil {
		return CompareRecord{}, err
	}

	return CompareRecord{LeftID: leftID, RightID: rightID, MCSSim: mcs, SPSim: sp}, nil
}

// tagID extracts the id from "(id)" or "(annotation id)".
func tagID(tag string) (string, error) {
	t := strings.TrimSpace(tag)
	t = strings.TrimPrefix(t, "(")
	t = strings.TrimSuffix(t, ")")
	t = strings.TrimSpace(t)
	if t == "" {
		return "", grammarf("empty tag %q", tag)
	}
	i := strings.IndexAny(t, " \t")
	if i < 0 {
		return t, nil
	}
	return strings.TrimSpace(t[i:]), nil
}

// similarities parses "(mcs,sp[,extra...])"; extra fields are ignored.
func similarities(field string) (float64, float64, error) {
	parts := strings.Split(field, ",")
	if len(parts) < 2 {
		return 0, 0, grammarf("similarities %q: expected at least 2 comma-separated values", field)
	}
	mcsText := strings.TrimSpace(strings.ReplaceAll(strings.TrimSpace(parts[0]), "(", ""))
	spText := strings.TrimSpace(strings.ReplaceAll(strings.TrimSpace(parts[1]), ")", ""))

	mcs, err := strconv.ParseFloat(mcsText, 64)
	if err != nil {
		return 0, 0, grammarf("MCS similarity %q is not a number", mcsText)
	}
	sp, err := strconv.ParseFloat(spText, 64)
	if err != nil {
		return 0, 0, grammarf("SP similarity %q is not a number", spText)
	}
	return mcs, sp, nil
}

// grammarf errors are wrapped with ErrCodeParseGrammar and the line number by Next.
func grammarf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}
