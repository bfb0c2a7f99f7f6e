// Package hasher confirms true duplicates by streaming full file
// contents through a strong hash.
//
// Files are read in bounded chunks with the cancellation token checked
// between chunks, never mid-chunk, so hash state stays consistent and
// cancellation completes within one chunk-read latency. A file is
// never loaded wholly into memory. Confirmed sets are groups of files
// sharing an identical full-content digest; a file whose hashing fails
// partway is excluded and reported, never silently matched.
package hasher

import (
	"cmp"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/mtakagi/vdup/internal/fingerprint"
	"github.com/mtakagi/vdup/internal/types"
)

const (
	// DefaultChunkBytes is the per-read chunk size for full hashing.
	DefaultChunkBytes = 4 * 1024 * 1024
	// blockSize is the read buffer size within a chunk.
	blockSize = 64 * 1024
)

// ConfirmedSet contains files proven identical by full-content hash.
// Files are sorted by path.
type ConfirmedSet struct {
	Size  int64
	Hash  string // hex-encoded digest
	Files []types.Candidate
}

// Hasher streams surviving candidates through the strong hash with a
// bounded pool of concurrent readers.
//
// Designed for single-use: create with New, call Run once.
type Hasher struct {
	algo    Algorithm
	chunk   int64
	workers int
	cache   *Cache // may be nil (disabled)
	warn    func(types.Warning)
	hashed  func(n int64) // bytes hashed, called per chunk
	scanned func(n int)   // files dispositioned at this stage
}

// New creates a Hasher. cache may be nil to disable caching; warn,
// hashed and scanned may be nil.
func New(algo Algorithm, chunkBytes int64, workers int, cache *Cache, warn func(types.Warning), hashed func(int64), scanned func(int)) *Hasher {
	if algo == nil {
		algo = DefaultAlgorithm()
	}
	if chunkBytes <= 0 {
		chunkBytes = DefaultChunkBytes
	}
	if workers < 1 {
		workers = 1
	}
	if warn == nil {
		warn = func(types.Warning) {}
	}
	if hashed == nil {
		hashed = func(int64) {}
	}
	if scanned == nil {
		scanned = func(int) {}
	}
	return &Hasher{algo: algo, chunk: chunkBytes, workers: workers, cache: cache, warn: warn, hashed: hashed, scanned: scanned}
}

type hashResult struct {
	candidate types.Candidate
	hash      string
	err       error
}

// Run hashes every file in every subgroup and returns the confirmed
// duplicate sets. Returns ctx.Err() when cancelled; in-flight files
// surface no confirmed set in that case.
func (h *Hasher) Run(ctx context.Context, subgroups []fingerprint.Subgroup) ([]ConfirmedSet, error) {
	var confirmed []ConfirmedSet
	sem := types.NewSemaphore(h.workers)

	for _, sg := range subgroups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		results := make(chan hashResult, len(sg.Files))
		var wg sync.WaitGroup
		for _, cand := range sg.Files {
			wg.Add(1)
			go func(c types.Candidate) {
				defer wg.Done()
				sem.Acquire()
				defer sem.Release()
				sum, err := h.hashFile(ctx, c)
				results <- hashResult{candidate: c, hash: sum, err: err}
			}(cand)
		}
		wg.Wait()
		close(results)

		byHash := make(map[string][]types.Candidate)
		for res := range results {
			h.scanned(1)
			if res.err != nil {
				if ctx.Err() == nil {
					h.warn(types.Warning{Path: res.candidate.Path, Message: fmt.Sprintf("hashing failed: %v", res.err)})
				}
				continue
			}
			byHash[res.hash] = append(byHash[res.hash], res.candidate)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for sum, files := range byHash {
			if len(files) < 2 {
				continue
			}
			slices.SortFunc(files, func(a, b types.Candidate) int {
				return cmp.Compare(a.Path, b.Path)
			})
			confirmed = append(confirmed, ConfirmedSet{Size: sg.Size, Hash: sum, Files: files})
		}
	}

	slices.SortFunc(confirmed, func(a, b ConfirmedSet) int {
		if c := cmp.Compare(a.Size, b.Size); c != 0 {
			return c
		}
		return cmp.Compare(a.Files[0].Path, b.Files[0].Path)
	})
	return confirmed, nil
}

// hashFile streams one file through the strong hash in chunk-sized
// reads, consulting the cache first. The cancellation check sits
// between chunks only.
func (h *Hasher) hashFile(ctx context.Context, c types.Candidate) (string, error) {
	if sum := h.cache.Lookup(h.algo, c); sum != nil {
		return hex.EncodeToString(sum), nil
	}

	f, err := os.Open(c.Path)
	if err != nil {
		return "", err
	}
	defer func() { _ = f.Close() }()

	digest := h.algo.New()
	buf := make([]byte, blockSize)

	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, err := io.CopyBuffer(digest, io.LimitReader(f, h.chunk), buf)
		h.hashed(n)
		if err != nil {
			return "", err
		}
		if n < h.chunk {
			break // EOF
		}
	}

	sum := digest.Sum(nil)
	h.cache.Store(h.algo, c, sum)
	return hex.EncodeToString(sum), nil
}
