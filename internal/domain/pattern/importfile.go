package pattern

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// LabelPolicy says whether an import line must carry a label after the pattern.
type LabelPolicy int

const (
	// LabelRequired is used for SMARTS libraries: "pattern<ws>label".
	LabelRequired LabelPolicy = iota
	// LabelOptional is used for molecule files; a missing label becomes "".
	LabelOptional
)

var labeledLine = regexp.MustCompile(`^(\S+)\s+(.+)$`)

// maxLineBytes bounds a single import line.
const maxLineBytes = 1 << 20

// Entry is one data line of an import file.
type Entry struct {
	Line    int
	Pattern string
	Name    string
}

// ImportResult is the outcome of parsing an import file.
type ImportResult struct {
	Entries []Entry
	// Ignored lists the 1-based numbers of lines that were neither comments
	// nor data lines.
	Ignored []int
}

// IgnoredError describes the ignored lines as a non-fatal
// ErrCodeMalformedInputLine error, or nil when every line was usable.
func (r *ImportResult) IgnoredError() error {
	if r == nil || len(r.Ignored) == 0 {
		return nil
	}
	nums := make([]string, len(r.Ignored))
	for i, n := range r.Ignored {
		nums[i] = fmt.Sprint(n)
	}
	return errors.Newf(errors.ErrCodeMalformedInputLine, "%d line(s) ignored", len(r.Ignored)).
		WithDetail("lines " + strings.Join(nums, ", "))
}

// ParseImport reads a SMARTS library or molecule file. Lines starting with '#'
// are skipped. Blank lines are reported as ignored under LabelRequired and
// skipped under LabelOptional. Names are NFC-normalized.
func ParseImport(r io.Reader, policy LabelPolicy) (*ImportResult, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	res := &ImportResult{}
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		if line == "" {
			if policy == LabelRequired {
				res.Ignored = append(res.Ignored, lineNo)
			}
			continue
		}

		var pat, name string
		switch policy {
		case LabelRequired:
			m := labeledLine.FindStringSubmatch(line)
			if m == nil {
				res.Ignored = append(res.Ignored, lineNo)
				continue
			}
			pat, name = m[1], m[2]
		default:
			pat = line
			if i := strings.IndexAny(line, " \t"); i >= 0 {
				pat, name = line[:i], line[i+1:]
			}
		}

		res.Entries = append(res.Entries, Entry{
			Line:    lineNo,
			Pattern: strings.TrimSpace(pat),
			Name:    norm.NFC.String(strings.TrimSpace(name)),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeMalformedInputLine, "failed to read import file")
	}
	return res, nil
}
