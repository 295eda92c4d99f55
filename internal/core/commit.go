package core

// commit.go persists a staged batch one row at a time.
//
// Every row is re-validated, because corrections may have changed it since it
// was staged. Each valid row is written by the question store in its own
// transaction; a failed row is recorded and the next row proceeds, so one bad
// row never rolls back or blocks the others. The per-row results are the
// return value, not a side effect of error handling.

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/quizdesk/internal/logging"
)

// QuestionStore persists questions. Create must write the question and its
// department links atomically.
type QuestionStore interface {
	Create(ctx context.Context, draft QuestionDraft) (Question, error)
}

// CreationNotifier is told about the questions a commit created. It should
// return promptly; delivery happens in the background.
type CreationNotifier interface {
	QuestionsCreated(ctx context.Context, questions []Question)
}

// RowError explains why a row was not committed: either field errors or a
// storage failure.
type RowError struct {
	Fields FieldErrors
	Err    error
}

func (e *RowError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return "invalid fields: " + strings.Join(e.Fields.Names(), ", ")
}

func (e *RowError) Unwrap() error { return e.Err }

// RowResult is the outcome for one row: exactly one of Question or Err is set.
type RowResult struct {
	Index    int
	Question *Question
	Err      *RowError
}

// UnresolvedRow is a row that was not committed.
type UnresolvedRow struct {
	Index  int         `json:"row_index"`
	Errors FieldErrors `json:"errors,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// ImportOutcome summarizes a commit.
type ImportOutcome struct {
	BatchID      uuid.UUID       `json:"batch_id"`
	SuccessCount int             `json:"success_count"`
	FailureCount int             `json:"failure_count"`
	Unresolved   []UnresolvedRow `json:"unresolved"`
	Created      []Question      `json:"-"`
	Duration     time.Duration   `json:"-"`

	results []RowResult
}

// Results returns the per-row results in batch order.
func (o *ImportOutcome) Results() []RowResult {
	return o.results
}

// Restage returns a batch holding only the unresolved rows of b, with their
// original indexes, values and header order plus the errors from this
// commit. It returns nil when every row was committed.
func (o *ImportOutcome) Restage(b *Batch) *Batch {
	if len(o.Unresolved) == 0 {
		return nil
	}

	out := &Batch{
		ID:        uuid.New(),
		FileName:  b.FileName,
		Kind:      b.Kind,
		Headers:   append([]string(nil), b.Headers...),
		CreatedAt: b.CreatedAt,
	}
	for _, u := range o.Unresolved {
		row, ok := b.Row(u.Index)
		if !ok {
			continue
		}
		out.Rows = append(out.Rows, ValidatedRow{
			Index:    u.Index,
			Record:   row.Record.Clone(),
			Valid:    len(u.Errors) == 0,
			Errors:   u.Errors,
			RowError: u.Reason,
		})
	}
	return out
}

// Committer turns batches into questions.
type Committer struct {
	validator *RowValidator
	store     QuestionStore
	notifier  CreationNotifier
}

// NewCommitter returns a committer writing to store. notifier may be nil.
func NewCommitter(v *RowValidator, store QuestionStore, notifier CreationNotifier) *Committer {
	return &Committer{validator: v, store: store, notifier: notifier}
}

// Commit re-validates and persists every row of b in order. It never fails
// as a whole: row failures are reported in the outcome. Committing the same
// batch twice creates the questions twice.
func (c *Committer) Commit(ctx context.Context, b *Batch) *ImportOutcome {
	start := time.Now()
	log := logging.WithFields(ctx, "batch_id", b.ID, "file", b.FileName)

	results := make([]RowResult, 0, len(b.Rows))
	for _, row := range b.Rows {
		results = append(results, c.commitRow(ctx, log, row))
	}

	outcome := summarize(b.ID, results)
	outcome.Duration = time.Since(start)

	log.Info("batch committed",
		"rows", len(b.Rows),
		"succeeded", outcome.SuccessCount,
		"failed", outcome.FailureCount,
		"duration", outcome.Duration)

	if c.notifier != nil && len(outcome.Created) > 0 {
		c.notifier.QuestionsCreated(ctx, outcome.Created)
	}

	return outcome
}

func (c *Committer) commitRow(ctx context.Context, log *slog.Logger, row ValidatedRow) RowResult {
	draft, errs := c.validator.Draft(row.Record)
	if len(errs) > 0 {
		return RowResult{Index: row.Index, Err: &RowError{Fields: errs}}
	}
	draft.SourceRow = row.Index

	q, err := c.store.Create(ctx, draft)
	if err != nil {
		var serr *StorageError
		if !errors.As(err, &serr) {
			serr = &StorageError{Row: row.Index, Err: err}
		}
		log.Warn("row not persisted", "row", row.Index, "error", serr.Err)
		return RowResult{Index: row.Index, Err: &RowError{Err: serr}}
	}

	return RowResult{Index: row.Index, Question: &q}
}

func summarize(batchID uuid.UUID, results []RowResult) *ImportOutcome {
	o := &ImportOutcome{BatchID: batchID, Unresolved: []UnresolvedRow{}, results: results}
	for _, r := range results {
		if r.Err == nil {
			o.SuccessCount++
			o.Created = append(o.Created, *r.Question)
			continue
		}
		o.FailureCount++
		u := UnresolvedRow{Index: r.Index, Errors: r.Err.Fields}
		if r.Err.Err != nil {
			u.Reason = MapError(r.Err.Err).Message
		}
		o.Unresolved = append(o.Unresolved, u)
	}
	return o
}
