// Package types provides the shared data model used across the
// duplicate detection pipeline.
package types

import "time"

// Candidate is a file eligible for duplicate analysis after
// extension/size filtering. Immutable once enumerated.
type Candidate struct {
	Path      string
	Size      int64
	Extension string // lower-cased, empty if the name has no extension
	ModTime   time.Time
}

// Reason classifies how a duplicate group was formed.
type Reason string

const (
	// ReasonExactHash marks groups confirmed by identical full-content hashes.
	ReasonExactHash Reason = "exact-hash"
	// ReasonNameSimilarity marks lower-confidence groups proposed from
	// normalized file name similarity.
	ReasonNameSimilarity Reason = "name-similarity"
	// ReasonDurationMatch marks lower-confidence groups proposed from
	// near-equal media durations.
	ReasonDurationMatch Reason = "duration-match"
)

// Entry is one file inside a duplicate group.
type Entry struct {
	Path string
	Size int64
	// FullHash is the hex-encoded full-content digest, empty when the
	// file was grouped without a completed full hash.
	FullHash string
	// DurationSeconds is best-effort media duration, 0 when unknown.
	DurationSeconds float64
}

// Group is a set of two or more files judged duplicate or
// near-duplicate. IDs are dense and unique within one run.
type Group struct {
	ID      int
	Entries []Entry // sorted by path, len >= 2
	Reason  Reason
	Score   float64 // 0.0-1.0, exactly 1.0 only for exact-hash
}

// Warning reports a per-file problem that excluded the file from the
// run without aborting it.
type Warning struct {
	Path    string
	Message string
}

// Semaphore implements a counting semaphore using a buffered channel.
// It limits concurrent access to a resource by blocking when the limit
// is reached.
type Semaphore chan struct{}

// NewSemaphore creates a semaphore that allows up to n concurrent acquisitions.
func NewSemaphore(n int) Semaphore { return make(chan struct{}, n) }

// Acquire blocks until a slot is available, then claims it.
func (s Semaphore) Acquire() { s <- struct{}{} }

// Release frees a slot, unblocking one waiting Acquire call.
func (s Semaphore) Release() { <-s }
