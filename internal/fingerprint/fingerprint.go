// Package fingerprint narrows size buckets with cheap sampled digests.
//
// For each file a fixed set of byte windows (head, middle, tail) is
// read and fed through xxhash in a fixed order. Files whose sampled
// digests differ cannot be identical, so only files colliding on
// (size, digest) survive to full-content hashing. Windows are clamped
// for short files; no padding is applied, so two files of equal size
// always sample the same ranges.
package fingerprint

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/mtakagi/vdup/internal/bucketer"
	"github.com/mtakagi/vdup/internal/types"
)

// DefaultWindowBytes is the default size of each sampled window.
const DefaultWindowBytes = 64 * 1024

// Subgroup contains candidates sharing size and sampled digest.
// Files are sorted by path.
type Subgroup struct {
	Size   int64
	Digest uint64
	Files  []types.Candidate
}

// Refiner sub-partitions size buckets by sampled fingerprint using a
// bounded pool of concurrent file readers.
//
// Designed for single-use: create with NewRefiner, call Run once.
type Refiner struct {
	window     int64
	workers    int
	warn       func(types.Warning)
	eliminated func(n int) // files dropped from further consideration
}

// NewRefiner creates a Refiner. warn receives per-file sampling
// failures and eliminated is called with counts of files that left the
// pipeline at this stage; either may be nil.
func NewRefiner(windowBytes int64, workers int, warn func(types.Warning), eliminated func(n int)) *Refiner {
	if windowBytes <= 0 {
		windowBytes = DefaultWindowBytes
	}
	if workers < 1 {
		workers = 1
	}
	if warn == nil {
		warn = func(types.Warning) {}
	}
	if eliminated == nil {
		eliminated = func(int) {}
	}
	return &Refiner{window: windowBytes, workers: workers, warn: warn, eliminated: eliminated}
}

type sampleResult struct {
	candidate types.Candidate
	digest    uint64
	err       error
}

// Run samples every file in every bucket and returns the surviving
// subgroups, keyed by (size, digest), with singletons dropped.
// Returns ctx.Err() when cancelled; partial results are discarded by
// the caller in that case.
func (r *Refiner) Run(ctx context.Context, buckets []bucketer.Bucket) ([]Subgroup, error) {
	var subgroups []Subgroup
	sem := types.NewSemaphore(r.workers)

	for _, bucket := range buckets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		results := make(chan sampleResult, len(bucket.Files))
		var wg sync.WaitGroup
		for _, cand := range bucket.Files {
			wg.Add(1)
			go func(c types.Candidate) {
				defer wg.Done()
				sem.Acquire()
				defer sem.Release()
				if ctx.Err() != nil {
					results <- sampleResult{candidate: c, err: ctx.Err()}
					return
				}
				digest, err := r.sample(c.Path, c.Size)
				results <- sampleResult{candidate: c, digest: digest, err: err}
			}(cand)
		}
		wg.Wait()
		close(results)

		byDigest := make(map[uint64][]types.Candidate)
		for res := range results {
			if res.err != nil {
				if ctx.Err() == nil {
					r.warn(types.Warning{Path: res.candidate.Path, Message: fmt.Sprintf("sampling failed: %v", res.err)})
					r.eliminated(1)
				}
				continue
			}
			byDigest[res.digest] = append(byDigest[res.digest], res.candidate)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for digest, files := range byDigest {
			if len(files) < 2 {
				r.eliminated(len(files))
				continue
			}
			slices.SortFunc(files, func(a, b types.Candidate) int {
				return cmp.Compare(a.Path, b.Path)
			})
			subgroups = append(subgroups, Subgroup{Size: bucket.Size, Digest: digest, Files: files})
		}
	}

	slices.SortFunc(subgroups, func(a, b Subgroup) int {
		if c := cmp.Compare(a.Size, b.Size); c != 0 {
			return c
		}
		return cmp.Compare(a.Files[0].Path, b.Files[0].Path)
	})
	return subgroups, nil
}

// sample hashes the head, middle and tail windows of the file in that
// fixed order. Ranges are clamped to the file size and may overlap for
// files shorter than three windows; sampling never fails on short files.
func (r *Refiner) sample(path string, size int64) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	digest := xxhash.New()
	buf := make([]byte, 64*1024)

	for _, start := range sampleOffsets(size, r.window) {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			return 0, err
		}
		length := min(r.window, size-start)
		if _, err := io.CopyBuffer(digest, io.LimitReader(f, length), buf); err != nil {
			return 0, err
		}
	}
	return digest.Sum64(), nil
}

// sampleOffsets returns the window start offsets for a file of the
// given size: head, middle, tail. Offsets are a pure function of
// (size, window) so equal-size files always read the same ranges.
func sampleOffsets(size, window int64) []int64 {
	if size <= window {
		return []int64{0}
	}
	head := int64(0)
	middle := (size - window) / 2
	tail := size - window
	return []int64{head, middle, tail}
}
