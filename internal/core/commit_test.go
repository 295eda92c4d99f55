package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// memoryStore is an in-memory QuestionStore. Rows listed in failRows fail
// with a storage error.
type memoryStore struct {
	mu       sync.Mutex
	nextID   int64
	created  []Question
	failRows map[int]error
}

func (s *memoryStore) Create(_ context.Context, d QuestionDraft) (Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err, ok := s.failRows[d.SourceRow]; ok {
		return Question{}, err
	}
	s.nextID++
	q := Question{QuestionDraft: d, ID: s.nextID, CreatedAt: time.Now()}
	s.created = append(s.created, q)
	return q, nil
}

type recordingNotifier struct {
	calls [][]Question
}

func (n *recordingNotifier) QuestionsCreated(_ context.Context, qs []Question) {
	n.calls = append(n.calls, qs)
}

func batchOf(t *testing.T, n int) *Batch {
	t.Helper()
	table := &Table{Headers: KnownFields}
	for i := 1; i <= n; i++ {
		table.Records = append(table.Records, record(with(validValues(), FieldText, fmt.Sprintf("Question %d", i))))
	}
	return NewBatch("questions.csv", KindDelimited, table, NewRowValidator())
}

func TestCommit_AllRowsSucceed(t *testing.T) {
	store := &memoryStore{}
	notifier := &recordingNotifier{}
	c := NewCommitter(NewRowValidator(), store, notifier)

	out := c.Commit(context.Background(), batchOf(t, 5))

	if out.SuccessCount != 5 || out.FailureCount != 0 {
		t.Errorf("counts = %d/%d, want 5/0", out.SuccessCount, out.FailureCount)
	}
	if len(out.Unresolved) != 0 {
		t.Errorf("Unresolved = %v, want none", out.Unresolved)
	}
	if len(notifier.calls) != 1 || len(notifier.calls[0]) != 5 {
		t.Errorf("notifier calls = %v, want one call with 5 questions", len(notifier.calls))
	}
	if got := store.created[2].SourceRow; got != 3 {
		t.Errorf("created[2].SourceRow = %d, want 3", got)
	}
	if out.Restage(batchOf(t, 5)) != nil {
		t.Error("Restage() should be nil when every row committed")
	}
}

func TestCommit_StorageFailureIsIsolated(t *testing.T) {
	const n, k = 6, 4

	store := &memoryStore{failRows: map[int]error{k: errors.New("connection reset by peer")}}
	c := NewCommitter(NewRowValidator(), store, nil)
	b := batchOf(t, n)

	out := c.Commit(context.Background(), b)

	if out.SuccessCount != n-1 {
		t.Errorf("SuccessCount = %d, want %d", out.SuccessCount, n-1)
	}
	if out.FailureCount != 1 {
		t.Errorf("FailureCount = %d, want 1", out.FailureCount)
	}
	if len(out.Unresolved) != 1 || out.Unresolved[0].Index != k {
		t.Fatalf("Unresolved = %+v, want row %d", out.Unresolved, k)
	}
	if out.Unresolved[0].Reason == "" {
		t.Error("storage failure should carry a reason")
	}

	results := out.Results()
	var serr *StorageError
	if !errors.As(results[k-1].Err, &serr) || serr.Row != k {
		t.Errorf("row %d error = %v, want StorageError for that row", k, results[k-1].Err)
	}
	for _, r := range results {
		if r.Index != k && r.Question == nil {
			t.Errorf("row %d not committed", r.Index)
		}
	}
}

func TestCommit_RecommitCreatesAgain(t *testing.T) {
	store := &memoryStore{}
	c := NewCommitter(NewRowValidator(), store, nil)
	b := batchOf(t, 3)

	first := c.Commit(context.Background(), b)
	second := c.Commit(context.Background(), b)

	if first.SuccessCount != 3 || second.SuccessCount != 3 {
		t.Errorf("SuccessCount = %d then %d, want 3 both times", first.SuccessCount, second.SuccessCount)
	}
	if len(store.created) != 6 {
		t.Errorf("created %d questions, want 6", len(store.created))
	}
}

func TestCommit_RevalidatesRows(t *testing.T) {
	store := &memoryStore{}
	c := NewCommitter(NewRowValidator(), store, nil)
	b := batchOf(t, 3)

	// Mark every row valid even though row 2 is not.
	b.Rows[1].Record.Set(FieldCorrectAnswer, "z")
	b.Rows[1].Valid = true

	out := c.Commit(context.Background(), b)

	if out.SuccessCount != 2 || out.FailureCount != 1 {
		t.Fatalf("counts = %d/%d, want 2/1", out.SuccessCount, out.FailureCount)
	}
	u := out.Unresolved[0]
	if u.Index != 2 {
		t.Errorf("unresolved index = %d, want 2", u.Index)
	}
	if _, ok := u.Errors[FieldCorrectAnswer]; !ok {
		t.Errorf("unresolved errors = %v, want correct_answer", u.Errors)
	}
	if u.Reason != "" {
		t.Errorf("validation failure reason = %q, want empty", u.Reason)
	}
}

func TestCommit_NoNotificationWithoutQuestions(t *testing.T) {
	store := &memoryStore{failRows: map[int]error{1: errors.New("boom")}}
	notifier := &recordingNotifier{}
	c := NewCommitter(NewRowValidator(), store, notifier)

	c.Commit(context.Background(), batchOf(t, 1))

	if len(notifier.calls) != 0 {
		t.Errorf("notifier called %d times, want 0", len(notifier.calls))
	}
}

func TestImportOutcome_Restage(t *testing.T) {
	store := &memoryStore{failRows: map[int]error{
		2: errors.New("deadlock detected"),
		5: &StorageError{Row: 5, Err: errors.New("duplicate key value")},
	}}
	c := NewCommitter(NewRowValidator(), store, nil)
	b := batchOf(t, 5)
	b.Rows[2].Record.Set(FieldReleaseDate, "31/02/2026")

	out := c.Commit(context.Background(), b)
	staged := out.Restage(b)

	if staged == nil {
		t.Fatal("Restage() = nil, want batch")
	}
	if staged.ID == b.ID {
		t.Error("restaged batch should have a new ID")
	}
	wantIdx := []int{2, 3, 5}
	if len(staged.Rows) != len(wantIdx) {
		t.Fatalf("restaged %d rows, want %d", len(staged.Rows), len(wantIdx))
	}
	for i, want := range wantIdx {
		if staged.Rows[i].Index != want {
			t.Errorf("Rows[%d].Index = %d, want %d", i, staged.Rows[i].Index, want)
		}
	}
	if len(staged.Headers) != len(b.Headers) || staged.Headers[0] != b.Headers[0] {
		t.Errorf("Headers = %v, want %v", staged.Headers, b.Headers)
	}

	row3, _ := staged.Row(3)
	if row3.Valid {
		t.Error("row 3 should be invalid")
	}
	if row3.Record.Text(FieldReleaseDate) != "31/02/2026" {
		t.Errorf("row 3 release_date = %q, want original value", row3.Record.Text(FieldReleaseDate))
	}

	row2, _ := staged.Row(2)
	if !row2.Valid || row2.RowError == "" {
		t.Errorf("row 2 = valid %v, error %q; want valid with row error", row2.Valid, row2.RowError)
	}
	if len(staged.Failing()) != 3 {
		t.Errorf("Failing() = %d rows, want 3", len(staged.Failing()))
	}
}
