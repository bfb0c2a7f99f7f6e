// Package bucketer partitions candidates into equivalence classes by
// exact byte size.
//
// Size grouping is O(n), requires no I/O beyond the stat already done
// during enumeration, and eliminates most files before any hashing:
// only buckets with two or more members can contain duplicates.
package bucketer

import (
	"cmp"
	"slices"

	"github.com/mtakagi/vdup/internal/types"
)

// Bucket is a group of candidates sharing an exact byte size.
// Files are sorted by path for deterministic downstream processing.
type Bucket struct {
	Size  int64
	Files []types.Candidate
}

// Partition groups candidates by size and drops singleton buckets.
// Buckets are returned ordered by ascending size; dropped is the number
// of candidates eliminated because nothing else shared their size.
func Partition(candidates []types.Candidate) (buckets []Bucket, dropped int) {
	bySize := make(map[int64][]types.Candidate)
	for _, c := range candidates {
		bySize[c.Size] = append(bySize[c.Size], c)
	}

	for size, files := range bySize {
		if len(files) < 2 {
			dropped += len(files)
			continue
		}
		slices.SortFunc(files, func(a, b types.Candidate) int {
			return cmp.Compare(a.Path, b.Path)
		})
		buckets = append(buckets, Bucket{Size: size, Files: files})
	}

	slices.SortFunc(buckets, func(a, b Bucket) int {
		return cmp.Compare(a.Size, b.Size)
	})
	return buckets, dropped
}
