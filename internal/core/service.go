package core

import (
	"context"
	"fmt"
	"time"

	"github.com/JonMunkholm/quizdesk/internal/logging"
)

// CommitTimeout bounds one commit once it holds an import slot.
var CommitTimeout = 5 * time.Minute

// ServiceConfig holds the intake settings of a Service.
type ServiceConfig struct {
	MaxBytes        int64
	MaxConcurrent   int
	MaxWait         time.Duration
	StagingTTL      time.Duration
	FallbackCharset string
}

// Service is the entry point for import operations. It ties intake,
// decoding, validation, staging and commit together per admin session.
type Service struct {
	maxBytes  int64
	decoder   *Decoder
	validator *RowValidator
	staging   *StagingStore
	committer *Committer
	limiter   *ImportLimiter
}

// NewService builds a service committing to store. notifier may be nil.
func NewService(cfg ServiceConfig, store QuestionStore, notifier CreationNotifier) (*Service, error) {
	decoder, err := NewDecoder(cfg.FallbackCharset)
	if err != nil {
		return nil, fmt.Errorf("create decoder: %w", err)
	}
	if cfg.StagingTTL <= 0 {
		cfg.StagingTTL = 2 * time.Hour
	}

	v := NewRowValidator()
	return &Service{
		maxBytes:  cfg.MaxBytes,
		decoder:   decoder,
		validator: v,
		staging:   NewStagingStore(cfg.StagingTTL),
		committer: NewCommitter(v, store, notifier),
		limiter:   NewImportLimiter(cfg.MaxConcurrent, cfg.MaxWait),
	}, nil
}

// Load decodes and validates an upload without staging it.
func (s *Service) Load(ctx context.Context, fileName, contentType string, data []byte) (*Batch, error) {
	kind, err := DetectKind(fileName, contentType)
	if err != nil {
		return nil, err
	}
	if s.maxBytes > 0 {
		if err := CheckSize(int64(len(data)), s.maxBytes); err != nil {
			return nil, err
		}
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	table, err := s.decoder.Decode(data, kind)
	if err != nil {
		return nil, err
	}
	b := NewBatch(fileName, kind, table, s.validator)

	attrs := []any{"kind", kind.String(), "rows", len(b.Rows), "valid", b.ValidCount()}
	if table.Delimiter != 0 {
		attrs = append(attrs, "delimiter", string(table.Delimiter))
	}
	logging.WithFields(ctx, "batch_id", b.ID, "file", fileName).Info("batch decoded", attrs...)
	return b, nil
}

// Stage loads an upload and stages it for session, replacing whatever the
// session had staged. Nothing is staged when decoding fails.
func (s *Service) Stage(ctx context.Context, session, fileName, contentType string, data []byte) (*Batch, error) {
	b, err := s.Load(ctx, fileName, contentType, data)
	if err != nil {
		return nil, err
	}
	s.staging.Put(session, b)
	return b, nil
}

// Current returns the batch staged for session.
func (s *Service) Current(session string) (*Batch, error) {
	h, ok := s.staging.Current(session)
	if !ok {
		return nil, ErrBatchNotFound
	}
	return s.staging.Get(h)
}

// Commit applies corrections to the batch staged for session and commits
// it. The staged batch is cleared; unresolved rows are staged again and
// returned as the second value.
func (s *Service) Commit(ctx context.Context, session string, corrections Corrections) (*ImportOutcome, *Batch, error) {
	h, ok := s.staging.Current(session)
	if !ok {
		return nil, nil, ErrBatchNotFound
	}
	b, err := s.staging.Get(h)
	if err != nil {
		return nil, nil, err
	}

	if len(corrections) > 0 {
		if b, err = corrections.Apply(b); err != nil {
			return nil, nil, err
		}
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, CommitTimeout)
	defer cancel()

	outcome := s.committer.Commit(ctx, b)

	s.staging.Clear(h)
	restaged := outcome.Restage(b)
	if restaged != nil {
		s.staging.Put(session, restaged)
	}
	return outcome, restaged, nil
}

// CommitBatch commits b directly, without staging.
func (s *Service) CommitBatch(ctx context.Context, b *Batch) (*ImportOutcome, error) {
	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()
	return s.committer.Commit(ctx, b), nil
}

// Cancel discards whatever session has staged.
func (s *Service) Cancel(session string) {
	s.staging.DropSession(session)
}

// RunJanitor expires idle staged batches until ctx is cancelled.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	s.staging.Run(ctx, interval)
}

// LimiterStatus reports import slot usage.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// StagedCount returns the number of staged batches.
func (s *Service) StagedCount() int {
	return s.staging.Len()
}

// WaitForImports blocks until no import holds a slot or ctx ends.
func (s *Service) WaitForImports(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}
