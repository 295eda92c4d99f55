package core

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Handle addresses the batch staged for one admin session. It is held in the
// session itself and never exposed otherwise.
type Handle struct {
	Session string
	BatchID uuid.UUID
}

// IsZero reports whether h refers to nothing.
func (h Handle) IsZero() bool {
	return h.Session == "" || h.BatchID == uuid.Nil
}

type stagedBatch struct {
	batch   *Batch
	touched time.Time
}

// StagingStore keeps at most one batch per admin session between upload and
// commit. Putting a batch replaces the session's previous one, which makes
// handles to the old batch stale.
type StagingStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	batches map[string]*stagedBatch
}

// NewStagingStore returns a store that drops batches idle for longer than ttl.
func NewStagingStore(ttl time.Duration) *StagingStore {
	return &StagingStore{
		ttl:     ttl,
		now:     time.Now,
		batches: make(map[string]*stagedBatch),
	}
}

// Put stages b for session, replacing anything staged before.
func (s *StagingStore) Put(session string, b *Batch) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batches[session] = &stagedBatch{batch: b, touched: s.now()}
	return Handle{Session: session, BatchID: b.ID}
}

// Get returns the batch h refers to.
func (s *StagingStore) Get(h Handle) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sb, ok := s.batches[h.Session]
	if !ok || sb.batch.ID != h.BatchID {
		return nil, ErrBatchNotFound
	}
	sb.touched = s.now()
	return sb.batch, nil
}

// Current returns the handle of the batch staged for session, if any.
func (s *StagingStore) Current(session string) (Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sb, ok := s.batches[session]
	if !ok {
		return Handle{}, false
	}
	return Handle{Session: session, BatchID: sb.batch.ID}, true
}

// Clear removes the batch h refers to. A stale handle leaves the session's
// newer batch in place.
func (s *StagingStore) Clear(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sb, ok := s.batches[h.Session]; ok && sb.batch.ID == h.BatchID {
		delete(s.batches, h.Session)
	}
}

// DropSession removes whatever session has staged.
func (s *StagingStore) DropSession(session string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.batches, session)
}

// Len returns the number of staged batches.
func (s *StagingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

// Expire drops batches idle for longer than the TTL and returns how many
// were dropped.
func (s *StagingStore) Expire() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	n := 0
	for session, sb := range s.batches {
		if sb.touched.Before(cutoff) {
			delete(s.batches, session)
			n++
		}
	}
	return n
}

// Run expires idle batches every interval until ctx is cancelled.
func (s *StagingStore) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Expire()
		}
	}
}
