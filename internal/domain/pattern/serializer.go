package pattern

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/turtacn/SMARTSexplore/pkg/errors"
)

// LineIndex maps a 1-based tool input line number to the id of the record
// written on that line.
type LineIndex map[int]int64

// ID returns the record id written on line.
func (li LineIndex) ID(line int) (int64, bool) {
	id, ok := li[line]
	return id, ok
}

// Serialize renders records as "pattern<TAB>id" lines joined by "\n", in
// iteration order. A pattern containing a tab or a line break cannot be
// correlated back to its id and is rejected with ErrCodeInvalidPattern.
func Serialize[R Record](records []R) (string, LineIndex, error) {
	var sb strings.Builder
	index := make(LineIndex, len(records))

	for i, rec := range records {
		p := rec.RecordPattern()
		if strings.ContainsAny(p, "\t\n\r") {
			return "", nil, errors.Newf(errors.ErrCodeInvalidPattern,
				"pattern of record %d contains a separator character", rec.RecordID()).
				WithDetail(strconv.Quote(p))
		}
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(p)
		sb.WriteByte('\t')
		sb.WriteString(strconv.FormatInt(rec.RecordID(), 10))
		index[i+1] = rec.RecordID()
	}
	return sb.String(), index, nil
}

// ToolInput is a serialized record file on disk. Close removes it.
type ToolInput struct {
	Path  string
	Index LineIndex
	Count int
}

// WriteToolInput serializes records into a fresh temporary file inside dir
// (os.TempDir when empty). The file name starts with prefix and is unique per
// call, so concurrent pipeline runs never share an input file.
func WriteToolInput[R Record](dir, prefix string, records []R) (*ToolInput, error) {
	text, index, err := Serialize(records)
	if err != nil {
		return nil, err
	}

	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create tool work dir")
		}
	}
	f, err := os.CreateTemp(dir, prefix+"-*")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to create tool input file")
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to write tool input file")
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "failed to close tool input file")
	}

	return &ToolInput{Path: f.Name(), Index: index, Count: len(records)}, nil
}

// Close removes the file. Safe on nil and idempotent.
func (t *ToolInput) Close() error {
	if t == nil || t.Path == "" {
		return nil
	}
	err := os.Remove(t.Path)
	t.Path = ""
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove tool input: %w", err)
	}
	return nil
}
