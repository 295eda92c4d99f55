package core

import (
	"strconv"
	"strings"
	"time"
)

// Question record field names. Header cells are matched against these after
// normalization with NormalizeHeader.
const (
	FieldText          = "text"
	FieldType          = "type"
	FieldOptionA       = "option_a"
	FieldOptionB       = "option_b"
	FieldOptionC       = "option_c"
	FieldOptionD       = "option_d"
	FieldCorrectAnswer = "correct_answer"
	FieldExplanation   = "explanation"
	FieldReleaseDate   = "release_date"
	FieldTimeLimit     = "time_limit"
	FieldCategory      = "category"
	FieldDepartment    = "department"
)

// KnownFields lists every field a question row may carry, in display order.
var KnownFields = []string{
	FieldText, FieldType,
	FieldOptionA, FieldOptionB, FieldOptionC, FieldOptionD,
	FieldCorrectAnswer, FieldExplanation,
	FieldReleaseDate, FieldTimeLimit,
	FieldCategory, FieldDepartment,
}

// DateLayout is the textual release date format (day/month/year).
const DateLayout = "02/01/2006"

// RawRecord is one decoded data row: field name to raw cell value, in source
// column order. Values are strings for delimited text; spreadsheet cells may
// also be time.Time (date-formatted cells) or float64.
type RawRecord struct {
	fields []string
	values map[string]any
}

// NewRawRecord returns an empty record.
func NewRawRecord() RawRecord {
	return RawRecord{values: make(map[string]any)}
}

// RecordFromMap builds a record from text values, ordered by fields.
func RecordFromMap(fields []string, values map[string]string) RawRecord {
	r := NewRawRecord()
	for _, f := range fields {
		r.Set(f, values[f])
	}
	return r
}

// Set assigns a value, appending the field to the column order when new.
func (r *RawRecord) Set(field string, v any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, ok := r.values[field]; !ok {
		r.fields = append(r.fields, field)
	}
	r.values[field] = v
}

// Value returns the untouched cell value.
func (r RawRecord) Value(field string) (any, bool) {
	v, ok := r.values[field]
	return v, ok
}

// Fields returns the field names in column order.
func (r RawRecord) Fields() []string {
	out := make([]string, len(r.fields))
	copy(out, r.fields)
	return out
}

// Len returns the number of fields.
func (r RawRecord) Len() int { return len(r.fields) }

// Text returns the value of field as text. Native dates are rendered with
// DateLayout and whole floats lose their ".0" suffix, so both spreadsheet
// cells and typed-in text reach the validator in the same shape.
func (r RawRecord) Text(field string) string {
	switch v := r.values[field].(type) {
	case nil:
		return ""
	case string:
		return v
	case time.Time:
		return v.Format(DateLayout)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// Texts returns every value rendered with Text.
func (r RawRecord) Texts() map[string]string {
	out := make(map[string]string, len(r.fields))
	for _, f := range r.fields {
		out[f] = r.Text(f)
	}
	return out
}

// Clone returns a copy that shares no state with r.
func (r RawRecord) Clone() RawRecord {
	c := RawRecord{
		fields: make([]string, len(r.fields)),
		values: make(map[string]any, len(r.values)),
	}
	copy(c.fields, r.fields)
	for k, v := range r.values {
		c.values[k] = v
	}
	return c
}

// IsBlank reports whether every value renders as whitespace.
func (r RawRecord) IsBlank() bool {
	for _, f := range r.fields {
		if strings.TrimSpace(r.Text(f)) != "" {
			return false
		}
	}
	return true
}

// NormalizeHeader maps a header cell to a field name: BOM and surrounding
// quotes removed, lower-cased, inner spaces and hyphens turned into
// underscores. "Correct Answer" becomes "correct_answer".
func NormalizeHeader(s string) string {
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.Join(strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_'
	}), "_")
	return s
}
