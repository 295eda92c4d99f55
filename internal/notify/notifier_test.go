package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/quizdesk/internal/core"
)

type fakeRecipients map[int64][]core.Recipient

func (f fakeRecipients) ListRecipientsForQuestion(ctx context.Context, q core.Question) ([]core.Recipient, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rs, ok := f[q.ID]
	if !ok {
		return nil, errors.New("lookup failed")
	}
	return rs, nil
}

func TestImportNotifier_GroupsPerRecipient(t *testing.T) {
	ana := core.Recipient{UserID: 1, Name: "Ana", Email: "ana@example.com"}
	bo := core.Recipient{UserID: 2, Name: "Bo", Email: "bo@example.com"}
	store := fakeRecipients{
		1: {ana, bo},
		2: {ana},
		3: {core.Recipient{UserID: 1, Name: "Ana", Email: "ANA@example.com"}},
	}

	tr := newFakeTransport()
	d := NewDispatcher(tr, mustTemplates(t), Options{})
	n := NewImportNotifier(store, d, "http://quiz")

	n.QuestionsCreated(context.Background(), []core.Question{
		{ID: 1, QuestionDraft: core.QuestionDraft{Text: "Q1"}},
		{ID: 2, QuestionDraft: core.QuestionDraft{Text: "Q2"}},
		{ID: 3, QuestionDraft: core.QuestionDraft{Text: "Q3"}},
		{ID: 4, QuestionDraft: core.QuestionDraft{Text: "lookup fails"}},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))

	require.Len(t, tr.sent["ana@example.com"], 1, "one message per recipient")
	assert.Equal(t, "3 new questions for you", tr.sent["ana@example.com"][0].Subject)
	require.Len(t, tr.sent["bo@example.com"], 1)
	assert.Equal(t, "1 new question for you", tr.sent["bo@example.com"][0].Subject)
	assert.NotContains(t, tr.sent["ana@example.com"][0].Text, "lookup fails")
}

func TestImportNotifier_NoRecipients(t *testing.T) {
	tr := newFakeTransport()
	d := NewDispatcher(tr, mustTemplates(t), Options{})
	n := NewImportNotifier(fakeRecipients{1: nil}, d, "")

	n.QuestionsCreated(context.Background(), []core.Question{{ID: 1}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))
	assert.Equal(t, Stats{}, d.Stats())
}

func TestImportNotifier_SurvivesExpiredCommitContext(t *testing.T) {
	ana := core.Recipient{UserID: 1, Name: "Ana", Email: "ana@example.com"}
	tr := newFakeTransport()
	d := NewDispatcher(tr, mustTemplates(t), Options{})
	n := NewImportNotifier(fakeRecipients{1: {ana}}, d, "http://quiz")

	commitCtx, expire := context.WithTimeout(context.Background(), time.Millisecond)
	defer expire()
	<-commitCtx.Done()

	n.QuestionsCreated(commitCtx, []core.Question{{ID: 1, QuestionDraft: core.QuestionDraft{Text: "Q1"}}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))

	assert.Len(t, tr.sent["ana@example.com"], 1)
	assert.Equal(t, int64(1), d.Stats().Sent)
}

func TestImportNotifier_ReturnsBeforeLookup(t *testing.T) {
	release := make(chan struct{})
	store := blockingRecipients{release: release, rs: []core.Recipient{{UserID: 1, Email: "ana@example.com"}}}
	tr := newFakeTransport()
	d := NewDispatcher(tr, mustTemplates(t), Options{})
	n := NewImportNotifier(store, d, "")

	returned := make(chan struct{})
	go func() {
		n.QuestionsCreated(context.Background(), []core.Question{{ID: 1}})
		close(returned)
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("QuestionsCreated blocked on the recipient lookup")
	}
	assert.Equal(t, int64(1), d.Stats().Pending)

	close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.Equal(t, 1, tr.count())
}

func TestDispatcher_NotifyLaterAfterClose(t *testing.T) {
	d := NewDispatcher(newFakeTransport(), mustTemplates(t), Options{})
	require.NoError(t, d.Close(context.Background()))

	called := false
	d.NotifyLater(context.Background(), func(context.Context) []Notification {
		called = true
		return nil
	})

	assert.False(t, called)
	assert.Equal(t, int64(0), d.Stats().Pending)
}

// stallingStore stores every row except stallRow, which waits for ctx to end.
type stallingStore struct {
	stallRow int
	next     int64
}

func (s *stallingStore) Create(ctx context.Context, d core.QuestionDraft) (core.Question, error) {
	if d.SourceRow == s.stallRow {
		<-ctx.Done()
		return core.Question{}, ctx.Err()
	}
	s.next++
	return core.Question{QuestionDraft: d, ID: s.next}, nil
}

func TestImportNotifier_CommitDeadlineMidBatch(t *testing.T) {
	ana := core.Recipient{UserID: 1, Name: "Ana", Email: "ana@example.com"}
	tr := newFakeTransport()
	d := NewDispatcher(tr, mustTemplates(t), Options{})
	v := core.NewRowValidator()
	c := core.NewCommitter(v, &stallingStore{stallRow: 2}, NewImportNotifier(fakeRecipients{1: {ana}}, d, ""))

	table := &core.Table{Headers: core.KnownFields}
	for _, text := range []string{"Capital of France?", "Capital of Spain?"} {
		rec := core.NewRawRecord()
		rec.Set(core.FieldText, text)
		rec.Set(core.FieldType, "true_false")
		rec.Set(core.FieldCorrectAnswer, "true")
		rec.Set(core.FieldReleaseDate, "03/01/2026")
		rec.Set(core.FieldTimeLimit, "30")
		table.Records = append(table.Records, rec)
	}

	commitCtx, expire := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer expire()
	out := c.Commit(commitCtx, core.NewBatch("questions.csv", core.KindDelimited, table, v))
	require.Equal(t, 1, out.SuccessCount)
	require.Equal(t, 1, out.FailureCount)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Wait(ctx))

	require.Len(t, tr.sent["ana@example.com"], 1)
	assert.Contains(t, tr.sent["ana@example.com"][0].Text, "Capital of France?")
}

type blockingRecipients struct {
	release chan struct{}
	rs      []core.Recipient
}

func (b blockingRecipients) ListRecipientsForQuestion(ctx context.Context, _ core.Question) ([]core.Recipient, error) {
	select {
	case <-b.release:
		return b.rs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ core.CreationNotifier = (*ImportNotifier)(nil)
