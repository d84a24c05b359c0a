// Package ingest feeds parser output into an index. A Provider yields name
// occurrences; Apply replaces the names of every file it sees.
package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrOwnerCycle is returned for a binding that is, through its owners, its
// own owner. Decoded NDJSON cannot build one; in-memory descriptions can.
var ErrOwnerCycle = errors.New("binding owner cycle")

// BindingDesc names a binding by kind and name, with its owner chain. Flag,
// integer and string capabilities are keyed by capability name, e.g.
// "virtual" or "param-count".
type BindingDesc struct {
	Kind    string            `json:"kind"`
	Name    string            `json:"name"`
	Owner   *BindingDesc      `json:"owner,omitempty"`
	Flags   []string          `json:"flags,omitempty"`
	Ints    map[string]int32  `json:"ints,omitempty"`
	Strings map[string]string `json:"strings,omitempty"`
}

// Record is one name occurrence. A nil Binding is an unresolved reference.
type Record struct {
	File    string       `json:"file"`
	Offset  int          `json:"offset"`
	Length  int          `json:"length"`
	Binding *BindingDesc `json:"binding,omitempty"`
}

func (r Record) validate() error {
	switch {
	case strings.TrimSpace(r.File) == "":
		return errors.New("missing file")
	case r.Offset < 0 || r.Length < 0:
		return fmt.Errorf("negative span %d+%d", r.Offset, r.Length)
	}
	seen := make(map[*BindingDesc]bool)
	for b := r.Binding; b != nil; b = b.Owner {
		if seen[b] {
			return fmt.Errorf("%w: %s %q", ErrOwnerCycle, b.Kind, b.Name)
		}
		seen[b] = true
		if b.Kind == "" {
			return fmt.Errorf("binding %q without kind", b.Name)
		}
	}
	return nil
}

// Provider yields records until it returns io.EOF.
type Provider interface {
	Next() (Record, error)
}

// NDJSONReader reads one JSON record per line. Blank lines and lines starting
// with '#' are skipped.
type NDJSONReader struct {
	sc   *bufio.Scanner
	line int
}

// NewNDJSONReader wraps r.
func NewNDJSONReader(r io.Reader) *NDJSONReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	return &NDJSONReader{sc: sc}
}

// Next decodes the next record.
func (r *NDJSONReader) Next() (Record, error) {
	for r.sc.Scan() {
		r.line++
		text := strings.TrimSpace(r.sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		dec := json.NewDecoder(strings.NewReader(text))
		dec.DisallowUnknownFields()
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return Record{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		if err := rec.validate(); err != nil {
			return Record{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		return rec, nil
	}
	if err := r.sc.Err(); err != nil {
		return Record{}, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return Record{}, io.EOF
}

// SliceProvider serves records from memory.
type SliceProvider struct {
	records []Record
}

// NewSliceProvider returns a provider over records.
func NewSliceProvider(records ...Record) *SliceProvider {
	return &SliceProvider{records: records}
}

func (p *SliceProvider) Next() (Record, error) {
	if len(p.records) == 0 {
		return Record{}, io.EOF
	}
	rec := p.records[0]
	p.records = p.records[1:]
	if err := rec.validate(); err != nil {
		return Record{}, err
	}
	return rec, nil
}
