package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

const serviceCSV = "text,type,option_a,option_b,correct_answer,release_date,time_limit\n" +
	"Capital of France?,multiple_choice,Paris,Lyon,a,03/01/2026,30\n" +
	"Sky is green,true_false,,,maybe,03/01/2026,15\n" +
	"Describe a cloud,open_response,,,,03/01/2026,\n"

func newTestService(t *testing.T, store QuestionStore) *Service {
	t.Helper()
	svc, err := NewService(ServiceConfig{
		MaxBytes:      1 << 20,
		MaxConcurrent: 2,
		MaxWait:       time.Second,
		StagingTTL:    time.Hour,
	}, store, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	return svc
}

func TestService_StageAndCurrent(t *testing.T) {
	svc := newTestService(t, &memoryStore{})
	ctx := context.Background()

	if _, err := svc.Current("s1"); !errors.Is(err, ErrBatchNotFound) {
		t.Fatalf("Current() before staging error = %v, want ErrBatchNotFound", err)
	}

	b, err := svc.Stage(ctx, "s1", "questions.csv", "text/csv", []byte(serviceCSV))
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if len(b.Rows) != 3 || b.ValidCount() != 2 {
		t.Errorf("rows/valid = %d/%d, want 3/2", len(b.Rows), b.ValidCount())
	}

	got, err := svc.Current("s1")
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if got.ID != b.ID {
		t.Errorf("Current().ID = %v, want %v", got.ID, b.ID)
	}
	if _, err := svc.Current("s2"); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("other session should see nothing, got %v", err)
	}
	if svc.LimiterStatus().Active != 0 {
		t.Error("limiter slot was not released")
	}
}

func TestService_StageRejectsBadUploads(t *testing.T) {
	svc := newTestService(t, &memoryStore{})
	ctx := context.Background()

	if _, err := svc.Stage(ctx, "s1", "questions.pdf", "application/pdf", []byte("x")); !errors.Is(err, ErrUnsupportedUpload) {
		t.Errorf("pdf error = %v, want ErrUnsupportedUpload", err)
	}

	big := []byte(strings.Repeat("a", 2<<20))
	if _, err := svc.Stage(ctx, "s1", "questions.csv", "text/csv", big); !errors.Is(err, ErrFileTooLarge) {
		t.Errorf("oversized error = %v, want ErrFileTooLarge", err)
	}

	var fe *FormatError
	if _, err := svc.Stage(ctx, "s1", "questions.csv", "text/csv", []byte("")); !errors.As(err, &fe) {
		t.Errorf("empty file error = %v, want FormatError", err)
	}
	if svc.StagedCount() != 0 {
		t.Errorf("StagedCount() = %d, want 0 after failed uploads", svc.StagedCount())
	}
}

func TestService_CommitRestagesFailures(t *testing.T) {
	store := &memoryStore{}
	svc := newTestService(t, store)
	ctx := context.Background()

	if _, err := svc.Stage(ctx, "s1", "questions.csv", "text/csv", []byte(serviceCSV)); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	out, restaged, err := svc.Commit(ctx, "s1", nil)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if out.SuccessCount != 2 || out.FailureCount != 1 {
		t.Errorf("counts = %d/%d, want 2/1", out.SuccessCount, out.FailureCount)
	}
	if restaged == nil || len(restaged.Rows) != 1 || restaged.Rows[0].Index != 2 {
		t.Fatalf("restaged = %+v, want row 2 only", restaged)
	}

	current, err := svc.Current("s1")
	if err != nil || current.ID != restaged.ID {
		t.Fatalf("Current() = %v, %v; want the restaged batch", current, err)
	}

	out, restaged, err = svc.Commit(ctx, "s1", Corrections{2: {FieldCorrectAnswer: "false"}})
	if err != nil {
		t.Fatalf("second Commit() error = %v", err)
	}
	if out.SuccessCount != 1 || restaged != nil {
		t.Errorf("second commit success=%d restaged=%v, want 1 and nil", out.SuccessCount, restaged)
	}
	if _, err := svc.Current("s1"); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("Current() after full commit error = %v, want ErrBatchNotFound", err)
	}
	if len(store.created) != 3 {
		t.Errorf("created = %d questions, want 3", len(store.created))
	}
}

func TestService_CommitWithoutBatch(t *testing.T) {
	svc := newTestService(t, &memoryStore{})
	if _, _, err := svc.Commit(context.Background(), "nobody", nil); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("Commit() error = %v, want ErrBatchNotFound", err)
	}
}

func TestService_CommitBadCorrectionKeepsBatch(t *testing.T) {
	svc := newTestService(t, &memoryStore{})
	ctx := context.Background()

	b, err := svc.Stage(ctx, "s1", "questions.csv", "text/csv", []byte(serviceCSV))
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if _, _, err := svc.Commit(ctx, "s1", Corrections{99: {FieldText: "x"}}); !errors.Is(err, ErrUnknownRow) {
		t.Fatalf("Commit() error = %v, want ErrUnknownRow", err)
	}
	current, err := svc.Current("s1")
	if err != nil || current.ID != b.ID {
		t.Errorf("staged batch should survive a rejected correction: %v, %v", current, err)
	}
}

func TestService_Cancel(t *testing.T) {
	svc := newTestService(t, &memoryStore{})
	ctx := context.Background()

	if _, err := svc.Stage(ctx, "s1", "questions.csv", "text/csv", []byte(serviceCSV)); err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	svc.Cancel("s1")
	if _, err := svc.Current("s1"); !errors.Is(err, ErrBatchNotFound) {
		t.Errorf("Current() after Cancel error = %v, want ErrBatchNotFound", err)
	}
}

func TestService_Busy(t *testing.T) {
	svc, err := NewService(ServiceConfig{MaxConcurrent: 1, MaxWait: 20 * time.Millisecond}, &memoryStore{}, nil)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	if !svc.limiter.TryAcquire() {
		t.Fatal("TryAcquire() = false")
	}
	defer svc.limiter.Release()

	_, err = svc.Stage(context.Background(), "s1", "questions.csv", "text/csv", []byte(serviceCSV))
	if !errors.Is(err, ErrTooManyUploads) {
		t.Errorf("Stage() error = %v, want ErrTooManyUploads", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := svc.WaitForImports(ctx); err == nil {
		t.Error("WaitForImports() should time out while a slot is held")
	}
}
