package fingerprint

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/mtakagi/vdup/internal/bucketer"
	"github.com/mtakagi/vdup/internal/types"
)

func writeBytes(t *testing.T, dir, name string, content []byte) types.Candidate {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return types.Candidate{Path: path, Size: int64(len(content))}
}

func TestSampleOffsets(t *testing.T) {
	tests := []struct {
		name   string
		size   int64
		window int64
		want   []int64
	}{
		{"short file single window", 10, 100, []int64{0}},
		{"exactly one window", 100, 100, []int64{0}},
		{"large file three windows", 1000, 100, []int64{0, 450, 900}},
		{"empty file", 0, 100, []int64{0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sampleOffsets(tt.size, tt.window)
			if len(got) != len(tt.want) {
				t.Fatalf("sampleOffsets(%d, %d) = %v, want %v", tt.size, tt.window, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("offset[%d] = %d, want %d", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestIdenticalFilesShareDigest(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("abcdef"), 1000)
	a := writeBytes(t, dir, "a.mp4", content)
	b := writeBytes(t, dir, "b.mp4", content)

	r := NewRefiner(64, 2, nil, nil)
	da, err := r.sample(a.Path, a.Size)
	if err != nil {
		t.Fatal(err)
	}
	db, err := r.sample(b.Path, b.Size)
	if err != nil {
		t.Fatal(err)
	}
	if da != db {
		t.Errorf("identical files produced digests %x and %x", da, db)
	}
}

func TestMiddleWindowDetectsDifference(t *testing.T) {
	// Same head and tail, different middle: must produce different
	// digests since the middle window is sampled too.
	dir := t.TempDir()
	contentA := bytes.Repeat([]byte{0}, 3000)
	contentB := bytes.Repeat([]byte{0}, 3000)
	contentB[1500] = 1

	a := writeBytes(t, dir, "a.bin", contentA)
	b := writeBytes(t, dir, "b.bin", contentB)

	r := NewRefiner(64, 2, nil, nil)
	da, _ := r.sample(a.Path, a.Size)
	db, _ := r.sample(b.Path, b.Size)
	if da == db {
		t.Error("files differing only in the middle window share a digest")
	}
}

func TestRefinerDropsSingletonSubgroups(t *testing.T) {
	dir := t.TempDir()
	same1 := writeBytes(t, dir, "s1.mp4", bytes.Repeat([]byte("x"), 500))
	same2 := writeBytes(t, dir, "s2.mp4", bytes.Repeat([]byte("x"), 500))
	other := writeBytes(t, dir, "o.mp4", bytes.Repeat([]byte("y"), 500))

	var eliminated int
	r := NewRefiner(64, 2, nil, func(n int) { eliminated += n })
	buckets := []bucketer.Bucket{{Size: 500, Files: []types.Candidate{same1, same2, other}}}

	subgroups, err := r.Run(context.Background(), buckets)
	if err != nil {
		t.Fatal(err)
	}
	if len(subgroups) != 1 {
		t.Fatalf("expected 1 subgroup, got %d", len(subgroups))
	}
	if len(subgroups[0].Files) != 2 {
		t.Errorf("subgroup has %d files, want 2", len(subgroups[0].Files))
	}
	if eliminated != 1 {
		t.Errorf("eliminated = %d, want 1", eliminated)
	}
}

func TestRefinerMissingFileWarns(t *testing.T) {
	dir := t.TempDir()
	a := writeBytes(t, dir, "a.mp4", bytes.Repeat([]byte("z"), 100))
	b := writeBytes(t, dir, "b.mp4", bytes.Repeat([]byte("z"), 100))
	gone := types.Candidate{Path: filepath.Join(dir, "gone.mp4"), Size: 100}

	var warnings []types.Warning
	r := NewRefiner(64, 2, func(w types.Warning) { warnings = append(warnings, w) }, nil)
	buckets := []bucketer.Bucket{{Size: 100, Files: []types.Candidate{a, b, gone}}}

	subgroups, err := r.Run(context.Background(), buckets)
	if err != nil {
		t.Fatal(err)
	}
	if len(subgroups) != 1 || len(subgroups[0].Files) != 2 {
		t.Fatalf("expected one 2-file subgroup, got %+v", subgroups)
	}
	if len(warnings) != 1 || warnings[0].Path != gone.Path {
		t.Fatalf("expected warning for %q, got %v", gone.Path, warnings)
	}
}

func TestRefinerCancellation(t *testing.T) {
	dir := t.TempDir()
	a := writeBytes(t, dir, "a.mp4", []byte("same"))
	b := writeBytes(t, dir, "b.mp4", []byte("same"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewRefiner(64, 2, nil, nil)
	buckets := []bucketer.Bucket{{Size: 4, Files: []types.Candidate{a, b}}}
	if _, err := r.Run(ctx, buckets); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
