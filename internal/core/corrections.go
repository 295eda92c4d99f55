package core

import (
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// Corrections are human edits to a staged batch: row index to replacement
// field values.
type Corrections map[int]map[string]string

// Apply returns a copy of b with the edits merged into the addressed rows.
// Edits replace named fields only; rows are never added or removed. A known
// question field that the file lacked is appended to the headers. Rows are
// not re-validated here; the committer does that.
func (c Corrections) Apply(b *Batch) (*Batch, error) {
	out := &Batch{
		ID:        uuid.New(),
		FileName:  b.FileName,
		Kind:      b.Kind,
		Headers:   append([]string(nil), b.Headers...),
		Rows:      make([]ValidatedRow, len(b.Rows)),
		CreatedAt: b.CreatedAt,
	}
	copy(out.Rows, b.Rows)

	for index, edits := range c {
		pos := slices.IndexFunc(out.Rows, func(r ValidatedRow) bool { return r.Index == index })
		if pos < 0 {
			return nil, fmt.Errorf("row %d: %w", index, ErrUnknownRow)
		}

		rec := out.Rows[pos].Record.Clone()
		for field, value := range edits {
			name := NormalizeHeader(field)
			if !slices.Contains(out.Headers, name) {
				if !slices.Contains(KnownFields, name) {
					return nil, fmt.Errorf("row %d field %q: %w", index, field, ErrUnknownField)
				}
				out.Headers = append(out.Headers, name)
			}
			rec.Set(name, strings.TrimSpace(value))
		}
		out.Rows[pos].Record = rec
		out.Rows[pos].RowError = ""
	}

	// Headers added by one row must exist on every row.
	for i := range out.Rows {
		if out.Rows[i].Record.Len() == len(out.Headers) {
			continue
		}
		rec := out.Rows[i].Record.Clone()
		for _, h := range out.Headers {
			if _, ok := rec.Value(h); !ok {
				rec.Set(h, "")
			}
		}
		out.Rows[i].Record = rec
	}

	return out, nil
}
