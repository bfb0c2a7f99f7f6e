// Package engine orchestrates the detection pipeline as a cancellable,
// progress-reporting background run.
//
// A Run moves through Pending → Running → {Completed, Cancelled,
// Failed}. Failed is reserved for conditions that make the whole run
// meaningless (unusable root); per-file problems only ever accumulate
// as warnings next to the final groups. A cancelled run discards all
// partial results so an incomplete grouping is never presented as
// final.
//
// Progress counters are updated through atomics by the worker stages
// and read as snapshots; the warning list has a single writer fed by a
// channel. The cancellation token is the run's context, checked at
// stage boundaries and between hash chunks.
package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/mtakagi/vdup/internal/assembler"
	"github.com/mtakagi/vdup/internal/bucketer"
	"github.com/mtakagi/vdup/internal/ffprobe"
	"github.com/mtakagi/vdup/internal/fingerprint"
	"github.com/mtakagi/vdup/internal/hasher"
	"github.com/mtakagi/vdup/internal/scanner"
	"github.com/mtakagi/vdup/internal/types"
)

// State is the lifecycle phase of a Run.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// ErrCancelled is returned by Wait and Poll for a cancelled run.
var ErrCancelled = errors.New("run cancelled")

// ErrStillRunning is returned by Poll while the run has not finished.
var ErrStillRunning = errors.New("run still in progress")

// Progress is a point-in-time snapshot of a run. FilesTotal is
// best-effort and revised upward while enumeration continues.
type Progress struct {
	FilesScanned int64
	FilesTotal   int64
	BytesHashed  int64
	GroupCount   int64
}

// Result carries the final groups and the per-file warnings collected
// alongside them.
type Result struct {
	Groups   []types.Group
	Warnings []types.Warning
}

// Run is a handle to one detection run.
type Run struct {
	ID   uuid.UUID
	root string
	opts Options

	ctx    context.Context
	cancel context.CancelFunc

	state atomic.Int32
	done  chan struct{}

	filesScanned atomic.Int64
	filesTotal   atomic.Int64
	bytesHashed  atomic.Int64
	groupCount   atomic.Int64

	warnCh chan types.Warning

	// Written by the pipeline goroutine before the terminal state is
	// stored; read only after observing a terminal state.
	groups   []types.Group
	warnings []types.Warning
	err      error
}

// Start validates the root and begins a detection run. It returns
// immediately; the returned handle reports progress and delivers the
// result. An unusable root fails fast with an error and no handle.
func Start(root string, opts Options) (*Run, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("root path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root path %q is not a directory", root)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Run{
		ID:     uuid.New(),
		root:   root,
		opts:   opts.withDefaults(),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		warnCh: make(chan types.Warning, 100),
	}
	r.state.Store(int32(StatePending))

	go r.run()
	return r, nil
}

// State returns the current lifecycle phase.
func (r *Run) State() State { return State(r.state.Load()) }

// Progress returns the latest snapshot; safe to call concurrently with
// the running pipeline.
func (r *Run) Progress() Progress {
	return Progress{
		FilesScanned: r.filesScanned.Load(),
		FilesTotal:   r.filesTotal.Load(),
		BytesHashed:  r.bytesHashed.Load(),
		GroupCount:   r.groupCount.Load(),
	}
}

// Cancel requests cooperative cancellation. Idempotent; does not block
// waiting for stages to observe it.
func (r *Run) Cancel() { r.cancel() }

// Done is closed when the run reaches a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Poll returns the result without blocking. While the run is active it
// returns ErrStillRunning; a cancelled run returns ErrCancelled and no
// result.
func (r *Run) Poll() (Result, error) {
	switch r.State() {
	case StateCompleted:
		return Result{Groups: r.groups, Warnings: r.warnings}, nil
	case StateCancelled:
		return Result{}, ErrCancelled
	case StateFailed:
		return Result{}, r.err
	default:
		return Result{}, ErrStillRunning
	}
}

// Wait blocks until the run finishes or ctx expires. Waiting is
// composable with an external timeout; cancelling the wait does not
// cancel the run.
func (r *Run) Wait(ctx context.Context) (Result, error) {
	select {
	case <-r.done:
		return r.Poll()
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// Updates returns a channel delivering coalesced progress snapshots at
// most once per interval. The channel is closed when the run finishes;
// a slow consumer only ever misses intermediate snapshots, updates are
// overwritten rather than queued.
func (r *Run) Updates(interval time.Duration) <-chan Progress {
	ch := make(chan Progress, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.done:
				return
			case <-ticker.C:
				select {
				case ch <- r.Progress():
				default: // consumer busy, drop this snapshot
				}
			}
		}
	}()
	return ch
}

// run executes the pipeline and records the terminal state.
func (r *Run) run() {
	r.state.Store(int32(StateRunning))

	var warnings []types.Warning
	var warnWg sync.WaitGroup
	warnWg.Add(1)
	go func() {
		defer warnWg.Done()
		for w := range r.warnCh {
			warnings = append(warnings, w)
		}
	}()

	groups, err := r.pipeline()

	close(r.warnCh)
	warnWg.Wait()

	switch {
	case errors.Is(err, context.Canceled):
		r.finish(StateCancelled, nil, nil, ErrCancelled)
	case err != nil:
		r.finish(StateFailed, nil, nil, err)
	default:
		r.finish(StateCompleted, groups, warnings, nil)
	}
}

func (r *Run) finish(state State, groups []types.Group, warnings []types.Warning, err error) {
	r.groups = groups
	r.warnings = warnings
	r.err = err
	r.state.Store(int32(state))
	close(r.done)
}

// pipeline runs enumerate → bucket → fingerprint → hash → assemble.
func (r *Run) pipeline() ([]types.Group, error) {
	warn := func(w types.Warning) { r.warnCh <- w }

	scan := scanner.New(r.root, r.opts.Extensions, r.opts.MinSize, r.opts.Workers, warn,
		func(n int64) { r.filesTotal.Store(n) })
	candidates, err := scan.Run(r.ctx)
	if err != nil {
		return nil, err
	}

	// Canonicalize enumeration order so output is identical across
	// runs despite the parallel walk.
	slices.SortFunc(candidates, func(a, b types.Candidate) int {
		return cmp.Compare(a.Path, b.Path)
	})

	buckets, dropped := bucketer.Partition(candidates)
	r.filesScanned.Add(int64(dropped))

	refiner := fingerprint.NewRefiner(r.opts.SampleWindowBytes, r.opts.Workers, warn,
		func(n int) { r.filesScanned.Add(int64(n)) })
	subgroups, err := refiner.Run(r.ctx, buckets)
	if err != nil {
		return nil, err
	}

	algo, err := hasher.AlgorithmByName(r.opts.HashAlgorithm)
	if err != nil {
		return nil, err
	}

	cache, err := hasher.OpenCache(r.opts.CachePath)
	if err != nil {
		// A broken cache degrades to uncached hashing.
		warn(types.Warning{Path: r.opts.CachePath, Message: fmt.Sprintf("hash cache unavailable: %v", err)})
		cache = nil
	}
	defer func() { _ = cache.Close() }()

	h := hasher.New(algo, r.opts.ChunkBytes, r.opts.Workers, cache, warn,
		func(n int64) { r.bytesHashed.Add(n) },
		func(n int) { r.filesScanned.Add(int64(n)) })
	confirmed, err := h.Run(r.ctx, subgroups)
	if err != nil {
		return nil, err
	}
	r.groupCount.Store(int64(len(confirmed)))

	var durations map[string]float64
	if r.opts.DurationMatch {
		durations, err = r.probeDurations(buckets)
		if err != nil {
			return nil, err
		}
	}

	groups := assembler.Assemble(assembler.Input{
		Candidates:     candidates,
		Confirmed:      confirmed,
		Durations:      durations,
		NameSimilarity: r.opts.NameSimilarity,
		DurationMatch:  r.opts.DurationMatch,
	})
	r.groupCount.Store(int64(len(groups)))
	return groups, nil
}

// probeDurations extracts durations for every bucketed file, i.e. the
// files that could plausibly be duplicates. Probe failures just leave
// the duration unknown.
func (r *Run) probeDurations(buckets []bucketer.Bucket) (map[string]float64, error) {
	durations := make(map[string]float64)
	var mu sync.Mutex
	sem := types.NewSemaphore(r.opts.Workers)
	var wg sync.WaitGroup

	for _, b := range buckets {
		for _, c := range b.Files {
			wg.Add(1)
			go func(path string) {
				defer wg.Done()
				sem.Acquire()
				defer sem.Release()
				if r.ctx.Err() != nil {
					return
				}
				d, err := ffprobe.Duration(r.ctx, r.opts.FFprobeBinary, path)
				if err != nil {
					return
				}
				mu.Lock()
				durations[path] = d
				mu.Unlock()
			}(c.Path)
		}
	}
	wg.Wait()

	if err := r.ctx.Err(); err != nil {
		return nil, err
	}
	return durations, nil
}
