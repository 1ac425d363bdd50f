package integration

import "time"

// SyncItemError is a per-item failure recorded without aborting the batch
type SyncItemError struct {
	ExternalID string `json:"external_id"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
}

// SyncResult is the outcome of one SyncOrders / SyncProducts run
type SyncResult struct {
	Key      Key
	Resource ResourceKind
	Imported int
	Updated  int
	Errors   []SyncItemError
	// Warnings are non-fatal notes such as unmapped remote statuses
	Warnings []string
	Pages    int
	// CursorAdvanced is true when at least one page moved the cursor forward
	CursorAdvanced bool
	StartedAt      time.Time
	FinishedAt     time.Time
}

// NewSyncResult starts an empty result
func NewSyncResult(key Key, resource ResourceKind, now time.Time) *SyncResult {
	return &SyncResult{
		Key:       key,
		Resource:  resource,
		Errors:    make([]SyncItemError, 0),
		Warnings:  make([]string, 0),
		StartedAt: now,
	}
}

// RecordOutcome counts one successful upsert
func (r *SyncResult) RecordOutcome(outcome UpsertOutcome) {
	switch outcome {
	case UpsertCreated:
		r.Imported++
	case UpsertUpdated:
		r.Updated++
	}
}

// RecordError appends a per-item failure
func (r *SyncResult) RecordError(externalID string, err error) {
	r.Errors = append(r.Errors, SyncItemError{
		ExternalID: externalID,
		Kind:       ErrorKind(err),
		Message:    err.Error(),
	})
}

// Succeeded returns the number of items that were upserted
func (r *SyncResult) Succeeded() int {
	return r.Imported + r.Updated
}

// Finish stamps the end of the run
func (r *SyncResult) Finish(now time.Time) {
	r.FinishedAt = now
}

// Duration returns how long the run took
func (r *SyncResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
