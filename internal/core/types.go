package core

import (
	"time"

	"github.com/google/uuid"
)

// QuestionType is the kind of answer a question expects.
type QuestionType string

const (
	TypeMultipleChoice QuestionType = "multiple_choice"
	TypeTrueFalse      QuestionType = "true_false"
	TypeOpenResponse   QuestionType = "open_response"
)

// True/false answer tokens.
const (
	AnswerTrue  = "true"
	AnswerFalse = "false"
)

// DefaultCategory is assigned when the category cell is empty.
const DefaultCategory = "General"

// AllDepartments is the department cell value targeting every department.
const AllDepartments = "all"

// ValidatedRow is a record together with its validation outcome.
type ValidatedRow struct {
	// Index is the 1-based position of the row among the file's data rows.
	Index  int
	Record RawRecord
	Valid  bool
	Errors FieldErrors

	// RowError holds a failure that belongs to no single field, such as a
	// storage error reported by the last commit.
	RowError string
}

// Batch is the set of rows decoded from one upload.
type Batch struct {
	ID        uuid.UUID
	FileName  string
	Kind      Kind
	Headers   []string
	Rows      []ValidatedRow
	CreatedAt time.Time
}

// NewBatch validates every record of table and wraps them in a batch.
func NewBatch(fileName string, kind Kind, table *Table, v *RowValidator) *Batch {
	b := &Batch{
		ID:        uuid.New(),
		FileName:  fileName,
		Kind:      kind,
		Headers:   append([]string(nil), table.Headers...),
		Rows:      make([]ValidatedRow, 0, len(table.Records)),
		CreatedAt: time.Now(),
	}
	for i, rec := range table.Records {
		b.Rows = append(b.Rows, v.Check(i+1, rec))
	}
	return b
}

// ValidCount returns the number of rows currently marked valid.
func (b *Batch) ValidCount() int {
	n := 0
	for _, r := range b.Rows {
		if r.Valid {
			n++
		}
	}
	return n
}

// Failing returns the rows that need correction.
func (b *Batch) Failing() []ValidatedRow {
	var out []ValidatedRow
	for _, r := range b.Rows {
		if !r.Valid || r.RowError != "" {
			out = append(out, r)
		}
	}
	return out
}

// Row returns the row with the given index.
func (b *Batch) Row(index int) (ValidatedRow, bool) {
	for _, r := range b.Rows {
		if r.Index == index {
			return r, true
		}
	}
	return ValidatedRow{}, false
}

// QuestionDraft is a question built from a record that passed validation.
// Only RowValidator.Draft produces one.
type QuestionDraft struct {
	Text           string
	Type           QuestionType
	Options        [4]string
	CorrectAnswer  string
	Explanation    string
	ReleaseDate    time.Time
	TimeLimit      *int
	Category       string
	AllDepartments bool
	Departments    []string

	// SourceRow is the batch row the draft came from.
	SourceRow int
}

// Question is a persisted question.
type Question struct {
	QuestionDraft
	ID        int64
	CreatedAt time.Time
}

// Recipient is a user who should hear about a question.
type Recipient struct {
	UserID     int64
	Name       string
	Email      string
	Department string
}
