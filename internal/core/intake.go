package core

// intake.go guards the entry to the pipeline: which files are accepted and
// how many imports may be decoded or committed at the same time.

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// kindByExtension is the upload allow-list.
var kindByExtension = map[string]Kind{
	".csv":  KindDelimited,
	".tsv":  KindDelimited,
	".txt":  KindDelimited,
	".xlsx": KindSpreadsheet,
	".xlsm": KindSpreadsheet,
}

// contentTypes lists the media types accepted for each kind. Browsers are
// inconsistent here, so application/octet-stream and an empty type defer to
// the extension.
var contentTypes = map[Kind][]string{
	KindDelimited: {
		"text/csv", "text/plain", "text/tab-separated-values",
		"application/csv", "application/vnd.ms-excel",
	},
	KindSpreadsheet: {
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"application/vnd.ms-excel.sheet.macroenabled.12",
		"application/zip",
	},
}

// DetectKind resolves the source kind of an upload from its file name and
// declared content type. Anything outside the allow-list is rejected with
// ErrUnsupportedUpload.
func DetectKind(fileName, contentType string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	kind, ok := kindByExtension[ext]
	if !ok {
		return 0, fmt.Errorf("extension %q: %w", ext, ErrUnsupportedUpload)
	}

	if contentType == "" {
		return kind, nil
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return 0, fmt.Errorf("content type %q: %w", contentType, ErrUnsupportedUpload)
	}
	if mt == "application/octet-stream" {
		return kind, nil
	}
	for _, allowed := range contentTypes[kind] {
		if mt == allowed {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("content type %q for %s: %w", mt, ext, ErrUnsupportedUpload)
}

// CheckSize rejects payloads larger than max bytes.
func CheckSize(size, max int64) error {
	if size > max {
		return fmt.Errorf("%d bytes exceeds %d: %w", size, max, ErrFileTooLarge)
	}
	return nil
}

// Default limiter settings.
const (
	DefaultMaxConcurrentImports = 4
	DefaultMaxWait              = 10 * time.Second
)

// ImportLimiter bounds the number of imports running at once. Requests that
// cannot get a slot within maxWait fail with ErrTooManyUploads.
type ImportLimiter struct {
	sem     *semaphore.Weighted
	max     int64
	maxWait time.Duration
	active  atomic.Int64
}

// NewImportLimiter allows at most maxConcurrent simultaneous imports.
func NewImportLimiter(maxConcurrent int, maxWait time.Duration) *ImportLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentImports
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}
	return &ImportLimiter{
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
		max:     int64(maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire waits for a slot. The caller must Release it.
func (l *ImportLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	if err := l.sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyUploads
	}
	l.active.Add(1)
	return nil
}

// TryAcquire takes a slot only if one is free.
func (l *ImportLimiter) TryAcquire() bool {
	if !l.sem.TryAcquire(1) {
		return false
	}
	l.active.Add(1)
	return true
}

// Release returns a slot taken by Acquire or TryAcquire.
func (l *ImportLimiter) Release() {
	l.active.Add(-1)
	l.sem.Release(1)
}

// ActiveCount returns the number of imports holding a slot.
func (l *ImportLimiter) ActiveCount() int {
	return int(l.active.Load())
}

// WaitForDrain blocks until no import holds a slot or ctx ends.
func (l *ImportLimiter) WaitForDrain(ctx context.Context) error {
	if err := l.sem.Acquire(ctx, l.max); err != nil {
		return err
	}
	l.sem.Release(l.max)
	return nil
}

// LimiterStatus is a snapshot for the health endpoint.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the limiter state.
func (l *ImportLimiter) Status() LimiterStatus {
	active := l.ActiveCount()
	return LimiterStatus{
		Active:        active,
		Available:     int(l.max) - active,
		MaxConcurrent: int(l.max),
	}
}
