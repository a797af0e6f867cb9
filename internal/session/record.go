// Package session orchestrates post-recording analysis: eligibility
// gating, silence sampling and analysis, splitting, and reporting the
// result to the persistence collaborator.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrRecordNotFound is returned when a split record cannot be found.
var ErrRecordNotFound = errors.New("session: split record not found")

// SplitSummary is what gets reported to the persistence collaborator
// after a successful split.
type SplitSummary struct {
	// OriginalDurationSeconds is the recording duration before the split.
	OriginalDurationSeconds float64
	// SplitTimeSeconds is the boundary between meeting and silence.
	SplitTimeSeconds float64
	// SilencePath is where the silence segment was written.
	SilencePath string
	// SpaceSavedBytes is the exact byte count reclaimed.
	SpaceSavedBytes int64
}

// SplitRecord is a persisted split summary with identity and timestamps.
type SplitRecord struct {
	ID        string
	SessionID string
	Summary   SplitSummary
	CreatedAt time.Time
}

// Clone returns a copy of the record for safe reads.
func (r *SplitRecord) Clone() *SplitRecord {
	c := *r
	return &c
}

// Recorder is the persistence port the orchestrator reports splits to.
// The hosting application typically backs it with its own database.
type Recorder interface {
	// RecordSplit persists the split summary for a session.
	RecordSplit(ctx context.Context, sessionID string, summary SplitSummary) error
}

// Compile-time check that MemoryRecorder implements Recorder.
var _ Recorder = (*MemoryRecorder)(nil)

// MemoryRecorder is an in-memory Recorder. It uses a map with RWMutex for
// thread-safe access. Suitable for development and testing; swap for the
// host application's persistence in production.
type MemoryRecorder struct {
	mu      sync.RWMutex
	records map[string]*SplitRecord
}

// NewMemoryRecorder creates a new in-memory split recorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{
		records: make(map[string]*SplitRecord),
	}
}

// RecordSplit stores a split record for the session.
func (r *MemoryRecorder) RecordSplit(_ context.Context, sessionID string, summary SplitSummary) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := &SplitRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Summary:   summary,
		CreatedAt: time.Now(),
	}
	r.records[rec.ID] = rec
	return nil
}

// Get retrieves a split record by ID.
// Returns a clone to prevent external mutations.
func (r *MemoryRecorder) Get(_ context.Context, id string) (*SplitRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return rec.Clone(), nil
}

// List returns all split records.
// Returns clones to prevent external mutations.
func (r *MemoryRecorder) List(_ context.Context) ([]*SplitRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*SplitRecord, 0, len(r.records))
	for _, rec := range r.records {
		result = append(result, rec.Clone())
	}
	return result, nil
}

// ListBySession returns all split records for one session.
func (r *MemoryRecorder) ListBySession(_ context.Context, sessionID string) ([]*SplitRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []*SplitRecord
	for _, rec := range r.records {
		if rec.SessionID == sessionID {
			result = append(result, rec.Clone())
		}
	}
	return result, nil
}
