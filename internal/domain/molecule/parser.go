package molecule

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// MatchRecord is one line of match tool output.
type MatchRecord struct {
	Line       int
	SMARTSID   int64
	MoleculeID int64
}

// MatchParser reads "smartsId<TAB>moleculeId[<TAB>...]" lines. A line that
// does not have two integer fields stops it with ErrCodeParseGrammar.
type MatchParser struct {
	sc   *bufio.Scanner
	line int
	rec  MatchRecord
	err  error
}

func NewMatchParser(r io.Reader) *MatchParser {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &MatchParser{sc: sc}
}

func (p *MatchParser) Next() bool {
	if p.err != nil {
		return false
	}
	if !p.sc.Scan() {
		if err := p.sc.Err(); err != nil {
			p.err = errors.Wrap(err, errors.ErrCodeParseGrammar, "failed to read match output")
		}
		return false
	}
	p.line++

	fields := strings.Split(p.sc.Text(), "\t")
	if len(fields) < 2 {
		p.err = errors.Newf(errors.ErrCodeParseGrammar, "match output line %d: expected 2 tab-separated ids, got %d field(s)", p.line, len(fields))
		return false
	}
	smartsID, err := strconv.ParseInt(strings.TrimSpace(fields[0]), 10, 64)
	if err != nil {
		p.err = errors.Newf(errors.ErrCodeParseGrammar, "match output line %d: SMARTS id %q is not an integer", p.line, fields[0])
		return false
	}
	molID, err := strconv.ParseInt(strings.TrimSpace(fields[1]), 10, 64)
	if err != nil {
		p.err = errors.Newf(errors.ErrCodeParseGrammar, "match output line %d: molecule id %q is not an integer", p.line, fields[1])
		return false
	}
	p.rec = MatchRecord{Line: p.line, SMARTSID: smartsID, MoleculeID: molID}
	return true
}

func (p *MatchParser) Record() MatchRecord { return p.rec }

func (p *MatchParser) Err() error { return p.err }

// ParseMatchOutput reads every record of r.
func ParseMatchOutput(r io.Reader) ([]MatchRecord, error) {
	p := NewMatchParser(r)
	var out []MatchRecord
	for p.Next() {
		out = append(out, p.Record())
	}
	if err := p.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveMatches turns match records into Matches for the molecules of set.
// Records naming a molecule outside the set or an unknown SMARTS id are an
// ErrCodeEdgeInvariant error; repeated pairs are collapsed.
func ResolveMatches(records []MatchRecord, set *MoleculeSet, smartsIDs []int64) ([]*Match, error) {
	mols := make(map[int64]struct{}, len(set.Molecules))
	for _, m := range set.Molecules {
		mols[m.ID] = struct{}{}
	}
	known := make(map[int64]struct{}, len(smartsIDs))
	for _, id := range smartsIDs {
		known[id] = struct{}{}
	}

	type key struct{ mol, smarts int64 }
	seen := make(map[key]struct{}, len(records))
	out := make([]*Match, 0, len(records))
	for _, r := range records {
		if _, ok := mols[r.MoleculeID]; !ok {
			return nil, errors.Newf(errors.ErrCodeEdgeInvariant,
				"match output line %d: molecule %d is not part of set %d", r.Line, r.MoleculeID, set.ID)
		}
		if _, ok := known[r.SMARTSID]; !ok {
			return nil, errors.Newf(errors.ErrCodeEdgeInvariant,
				"match output line %d: unknown SMARTS id %d", r.Line, r.SMARTSID)
		}
		k := key{r.MoleculeID, r.SMARTSID}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, &Match{MoleculeID: r.MoleculeID, SMARTSID: r.SMARTSID})
	}
	return out, nil
}
