package hasher

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mtakagi/vdup/internal/fingerprint"
	"github.com/mtakagi/vdup/internal/types"
)

func writeBytes(t *testing.T, dir, name string, content []byte) types.Candidate {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	return types.Candidate{Path: path, Size: info.Size(), ModTime: info.ModTime()}
}

func TestHashFileMatchesReference(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("reference"), 1000)
	cand := writeBytes(t, dir, "f.bin", content)

	algo, err := AlgorithmByName("sha256")
	if err != nil {
		t.Fatal(err)
	}
	// Chunk smaller than the file forces multiple chunk reads.
	h := New(algo, 1024, 1, nil, nil, nil, nil)
	got, err := h.hashFile(context.Background(), cand)
	if err != nil {
		t.Fatal(err)
	}

	want := sha256.Sum256(content)
	if got != hex.EncodeToString(want[:]) {
		t.Errorf("hash = %s, want %s", got, hex.EncodeToString(want[:]))
	}
}

func TestHashEmptyFile(t *testing.T) {
	dir := t.TempDir()
	cand := writeBytes(t, dir, "empty.bin", nil)

	h := New(nil, 0, 1, nil, nil, nil, nil)
	if _, err := h.hashFile(context.Background(), cand); err != nil {
		t.Fatalf("hashing empty file: %v", err)
	}
}

func TestRunConfirmsDuplicates(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("dup"), 2000)
	a := writeBytes(t, dir, "a.mp4", content)
	b := writeBytes(t, dir, "b.mp4", content)
	// Same size, different content: collides on size but not on hash.
	other := append(bytes.Clone(content[:len(content)-1]), 'X')
	c := writeBytes(t, dir, "c.mp4", other)

	h := New(nil, 0, 2, nil, nil, nil, nil)
	sub := []fingerprint.Subgroup{{Size: a.Size, Files: []types.Candidate{a, b, c}}}

	confirmed, err := h.Run(context.Background(), sub)
	if err != nil {
		t.Fatal(err)
	}
	if len(confirmed) != 1 {
		t.Fatalf("expected 1 confirmed set, got %d", len(confirmed))
	}
	set := confirmed[0]
	if len(set.Files) != 2 || set.Files[0].Path != a.Path || set.Files[1].Path != b.Path {
		t.Errorf("confirmed set = %+v, want {a, b}", set.Files)
	}
	if set.Hash == "" {
		t.Error("confirmed set has empty hash")
	}
}

func TestRunWarnsOnUnreadableFile(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("w"), 100)
	a := writeBytes(t, dir, "a.mp4", content)
	b := writeBytes(t, dir, "b.mp4", content)
	gone := types.Candidate{Path: filepath.Join(dir, "gone.mp4"), Size: 100}

	var warnings []types.Warning
	h := New(nil, 0, 2, nil, func(w types.Warning) { warnings = append(warnings, w) }, nil, nil)
	sub := []fingerprint.Subgroup{{Size: 100, Files: []types.Candidate{a, b, gone}}}

	confirmed, err := h.Run(context.Background(), sub)
	if err != nil {
		t.Fatal(err)
	}
	if len(confirmed) != 1 || len(confirmed[0].Files) != 2 {
		t.Fatalf("expected {a, b} confirmed, got %+v", confirmed)
	}
	if len(warnings) != 1 || warnings[0].Path != gone.Path {
		t.Fatalf("expected warning for %q, got %v", gone.Path, warnings)
	}
}

func TestRunCancellation(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("c"), 100)
	a := writeBytes(t, dir, "a.mp4", content)
	b := writeBytes(t, dir, "b.mp4", content)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := New(nil, 0, 2, nil, nil, nil, nil)
	sub := []fingerprint.Subgroup{{Size: 100, Files: []types.Candidate{a, b}}}
	if _, err := h.Run(ctx, sub); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBytesHashedReported(t *testing.T) {
	dir := t.TempDir()
	content := bytes.Repeat([]byte("b"), 5000)
	cand := writeBytes(t, dir, "f.bin", content)

	var total int64
	h := New(nil, 1024, 1, nil, nil, func(n int64) { total += n }, nil)
	if _, err := h.hashFile(context.Background(), cand); err != nil {
		t.Fatal(err)
	}
	if total != 5000 {
		t.Errorf("bytes hashed = %d, want 5000", total)
	}
}

func TestCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cand := writeBytes(t, dir, "f.bin", []byte("cached content"))
	cachePath := filepath.Join(dir, "cache", "hashes.db")

	algo := DefaultAlgorithm()

	// First run: populate.
	c, err := OpenCache(cachePath)
	if err != nil {
		t.Fatal(err)
	}
	h := New(algo, 0, 1, c, nil, nil, nil)
	first, err := h.hashFile(context.Background(), cand)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	// Second run: must hit the cache even if the file is unreadable.
	if err := os.Remove(cand.Path); err != nil {
		t.Fatal(err)
	}
	c2, err := OpenCache(cachePath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c2.Close() }()

	if sum := c2.Lookup(algo, cand); sum == nil {
		t.Fatal("expected cache hit")
	} else if hex.EncodeToString(sum) != first {
		t.Errorf("cached hash = %x, want %s", sum, first)
	}
}

func TestCacheMissOnModifiedFile(t *testing.T) {
	dir := t.TempDir()
	cand := writeBytes(t, dir, "f.bin", []byte("original"))
	cachePath := filepath.Join(dir, "hashes.db")

	algo := DefaultAlgorithm()
	c, err := OpenCache(cachePath)
	if err != nil {
		t.Fatal(err)
	}
	c.Store(algo, cand, make([]byte, algo.Size()))
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}

	c2, err := OpenCache(cachePath)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = c2.Close() }()

	// Different mtime invalidates the entry.
	changed := cand
	changed.ModTime = cand.ModTime.Add(time.Second)
	if sum := c2.Lookup(algo, changed); sum != nil {
		t.Error("expected cache miss after mtime change")
	}
}

func TestNilCacheIsDisabled(t *testing.T) {
	c, err := OpenCache("")
	if err != nil {
		t.Fatal(err)
	}
	if c != nil {
		t.Fatal("expected nil cache for empty path")
	}
	// All operations are safe on a nil cache.
	if sum := c.Lookup(DefaultAlgorithm(), types.Candidate{}); sum != nil {
		t.Error("nil cache returned a hit")
	}
	c.Store(DefaultAlgorithm(), types.Candidate{}, nil)
	if err := c.Close(); err != nil {
		t.Error(err)
	}
}

func TestAlgorithmByName(t *testing.T) {
	for _, name := range []string{"", "blake3", "sha256"} {
		if _, err := AlgorithmByName(name); err != nil {
			t.Errorf("AlgorithmByName(%q): %v", name, err)
		}
	}
	if _, err := AlgorithmByName("md5"); err == nil {
		t.Error("expected error for unsupported algorithm")
	}
}
