// Package scanner enumerates duplicate-analysis candidates with a
// parallel filesystem walk.
//
// The walk uses a fan-out/fan-in model: one goroutine per discovered
// directory, bounded by a semaphore, all feeding a single collector.
// Unreadable directories produce warnings instead of aborting the walk,
// and symlinks are never followed, which bounds traversal on cyclic
// link structures.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/mtakagi/vdup/internal/types"
)

// ErrRootUnreadable is returned when the root directory itself cannot
// be listed. Deeper failures are reported as warnings instead.
var ErrRootUnreadable = errors.New("root directory unreadable")

// Scanner discovers candidate files under a single root.
//
// The scanner is designed for single-use: create with New, call Run once.
type Scanner struct {
	// Config (immutable, set by New)
	root       string
	extensions map[string]struct{} // lower-cased with dot, empty = all
	minSize    int64
	workers    int
	warn       func(types.Warning)
	discovered func(n int64) // called as matching files are found

	// Runtime (initialized in Run)
	ctx       context.Context
	walkerWg  sync.WaitGroup
	walkerSem types.Semaphore
	resultCh  chan types.Candidate
	rootErr   atomic.Pointer[error]
}

// New creates a Scanner. extensions entries are normalized to a leading
// dot and lower case; an empty slice matches every file. warn receives
// per-directory failures and discovered is invoked with a running count
// of matched files; either may be nil.
func New(root string, extensions []string, minSize int64, workers int, warn func(types.Warning), discovered func(n int64)) *Scanner {
	exts := make(map[string]struct{}, len(extensions))
	for _, e := range extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[e] = struct{}{}
	}
	if warn == nil {
		warn = func(types.Warning) {}
	}
	if discovered == nil {
		discovered = func(int64) {}
	}
	if workers < 1 {
		workers = 1
	}
	return &Scanner{
		root:       root,
		extensions: exts,
		minSize:    minSize,
		workers:    workers,
		warn:       warn,
		discovered: discovered,
	}
}

// Run walks the subtree and returns all matching candidates.
//
// Coordination sequence mirrors the walker/collector split: a single
// collector drains resultCh while walkers fan out per directory, then
// the channel is closed once every walker has finished. Cancellation
// via ctx stops new directory listings promptly; Run still drains
// in-flight walkers before returning.
func (s *Scanner) Run(ctx context.Context) ([]types.Candidate, error) {
	s.ctx = ctx
	s.walkerSem = types.NewSemaphore(s.workers)
	s.resultCh = make(chan types.Candidate, 1000)

	var results []types.Candidate
	var count int64
	collectorWg := sync.WaitGroup{}

	collectorWg.Add(1)
	go func() {
		defer collectorWg.Done()
		for c := range s.resultCh {
			results = append(results, c)
			count++
			s.discovered(count)
		}
	}()

	s.walkDirectory(s.root, true)

	s.walkerWg.Wait()
	close(s.resultCh)
	collectorWg.Wait()

	if errPtr := s.rootErr.Load(); errPtr != nil {
		return nil, fmt.Errorf("%w: %v", ErrRootUnreadable, *errPtr)
	}
	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}

// walkDirectory spawns a goroutine to process one directory and
// recursively spawn children. The WaitGroup is incremented before the
// spawn to avoid racing Wait, and the semaphore is held only for the
// duration of the directory listing.
func (s *Scanner) walkDirectory(dir string, isRoot bool) {
	s.walkerWg.Add(1)
	go func() {
		defer s.walkerWg.Done()

		if s.ctx.Err() != nil {
			return
		}

		s.walkerSem.Acquire()
		files, subdirs, err := s.listDirectory(dir)
		s.walkerSem.Release()

		if err != nil {
			if isRoot {
				s.rootErr.Store(&err)
			} else {
				s.warn(types.Warning{Path: dir, Message: err.Error()})
			}
			return
		}

		for _, f := range files {
			select {
			case s.resultCh <- f:
			case <-s.ctx.Done():
				return
			}
		}

		for _, sub := range subdirs {
			s.walkDirectory(sub, false)
		}
	}()
}

// listDirectory reads a single directory, returning matching files and
// subdirectories. Entries are read in batches so directories with very
// large fanout do not force a single huge allocation.
func (s *Scanner) listDirectory(dirPath string) (files []types.Candidate, subdirs []string, err error) {
	dir, err := os.Open(dirPath)
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = dir.Close() }()

	const batchSize = 1000
	for {
		entries, err := dir.ReadDir(batchSize)
		if len(entries) == 0 {
			if err != nil && err != io.EOF {
				return files, subdirs, err
			}
			break
		}

		for _, entry := range entries {
			f, sub, ok := s.processEntry(dirPath, entry)
			if !ok {
				continue
			}
			if sub != "" {
				subdirs = append(subdirs, sub)
			} else {
				files = append(files, f)
			}
		}
	}

	return files, subdirs, nil
}

// processEntry classifies a single directory entry. Symlinks, devices
// and other non-regular files are skipped, so the walk never follows a
// link into a cycle.
func (s *Scanner) processEntry(dirPath string, entry fs.DirEntry) (file types.Candidate, subdir string, ok bool) {
	fullPath := filepath.Join(dirPath, entry.Name())

	if entry.IsDir() {
		return types.Candidate{}, fullPath, true
	}
	if !entry.Type().IsRegular() {
		return types.Candidate{}, "", false
	}

	ext := strings.ToLower(filepath.Ext(entry.Name()))
	if len(s.extensions) > 0 {
		if _, want := s.extensions[ext]; !want {
			return types.Candidate{}, "", false
		}
	}

	// Info may require an extra stat; files that vanish between the
	// listing and the stat are silently skipped.
	info, err := entry.Info()
	if err != nil {
		return types.Candidate{}, "", false
	}
	if info.Size() < s.minSize {
		return types.Candidate{}, "", false
	}

	return types.Candidate{
		Path:      fullPath,
		Size:      info.Size(),
		Extension: ext,
		ModTime:   info.ModTime(),
	}, "", true
}
