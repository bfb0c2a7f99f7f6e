package bucketer

import (
	"testing"

	"github.com/mtakagi/vdup/internal/types"
)

func TestPartitionGroupsBySize(t *testing.T) {
	candidates := []types.Candidate{
		{Path: "/b.mp4", Size: 100},
		{Path: "/a.mp4", Size: 100},
		{Path: "/c.mp4", Size: 200},
		{Path: "/d.mp4", Size: 200},
		{Path: "/e.mp4", Size: 300}, // singleton, dropped
	}

	buckets, dropped := Partition(candidates)

	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}

	// Ascending size order, paths sorted within a bucket.
	if buckets[0].Size != 100 || buckets[1].Size != 200 {
		t.Errorf("bucket sizes = %d, %d, want 100, 200", buckets[0].Size, buckets[1].Size)
	}
	if buckets[0].Files[0].Path != "/a.mp4" || buckets[0].Files[1].Path != "/b.mp4" {
		t.Errorf("bucket files not sorted by path: %+v", buckets[0].Files)
	}
}

func TestPartitionAllSingletons(t *testing.T) {
	candidates := []types.Candidate{
		{Path: "/a", Size: 1},
		{Path: "/b", Size: 2},
		{Path: "/c", Size: 3},
	}
	buckets, dropped := Partition(candidates)
	if len(buckets) != 0 {
		t.Errorf("expected no buckets, got %d", len(buckets))
	}
	if dropped != 3 {
		t.Errorf("dropped = %d, want 3", dropped)
	}
}

func TestPartitionEmpty(t *testing.T) {
	buckets, dropped := Partition(nil)
	if len(buckets) != 0 || dropped != 0 {
		t.Errorf("expected empty result, got %d buckets, %d dropped", len(buckets), dropped)
	}
}

func TestPartitionZeroByteFiles(t *testing.T) {
	candidates := []types.Candidate{
		{Path: "/a", Size: 0},
		{Path: "/b", Size: 0},
	}
	buckets, _ := Partition(candidates)
	if len(buckets) != 1 || buckets[0].Size != 0 {
		t.Fatalf("expected one zero-size bucket, got %+v", buckets)
	}
}
