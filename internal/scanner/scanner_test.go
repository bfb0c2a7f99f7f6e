package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/mtakagi/vdup/internal/types"
)

// writeFile creates a file with given content under dir, creating
// parent directories as needed.
func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runScan(t *testing.T, root string, exts []string, minSize int64) ([]types.Candidate, []types.Warning) {
	t.Helper()
	var warnings []types.Warning
	s := New(root, exts, minSize, 4, func(w types.Warning) { warnings = append(warnings, w) }, nil)
	got, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return got, warnings
}

func paths(cands []types.Candidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Path
	}
	sort.Strings(out)
	return out
}

func TestScannerFindsAllFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.mp4", "aaa")
	b := writeFile(t, dir, "sub/b.mp4", "bbb")
	c := writeFile(t, dir, "sub/deep/c.mkv", "ccc")

	got, warnings := runScan(t, dir, nil, 0)
	if len(warnings) != 0 {
		t.Errorf("unexpected warnings: %v", warnings)
	}

	want := []string{a, b, c}
	sort.Strings(want)
	if gp := paths(got); len(gp) != len(want) {
		t.Fatalf("expected %d files, got %v", len(want), gp)
	}
	for i, p := range paths(got) {
		if p != want[i] {
			t.Errorf("path[%d] = %q, want %q", i, p, want[i])
		}
	}
}

func TestScannerExtensionFilter(t *testing.T) {
	dir := t.TempDir()
	keep := writeFile(t, dir, "movie.MP4", "video")
	writeFile(t, dir, "notes.txt", "text")
	writeFile(t, dir, "noext", "data")

	// Extensions may be given with or without the leading dot.
	got, _ := runScan(t, dir, []string{"mp4", ".mkv"}, 0)
	if len(got) != 1 || got[0].Path != keep {
		t.Fatalf("expected only %q, got %v", keep, paths(got))
	}
	if got[0].Extension != ".mp4" {
		t.Errorf("extension = %q, want %q", got[0].Extension, ".mp4")
	}
}

func TestScannerMinSizeFilter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "small.mp4", "x")
	big := writeFile(t, dir, "big.mp4", "xxxxxxxxxx")

	got, _ := runScan(t, dir, nil, 5)
	if len(got) != 1 || got[0].Path != big {
		t.Fatalf("expected only %q, got %v", big, paths(got))
	}
}

func TestScannerSkipsSymlinks(t *testing.T) {
	dir := t.TempDir()
	target := writeFile(t, dir, "real.mp4", "content")
	if err := os.Symlink(target, filepath.Join(dir, "link.mp4")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	// Directory symlink cycle: must terminate and not duplicate files.
	if err := os.Symlink(dir, filepath.Join(dir, "loop")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	got, _ := runScan(t, dir, nil, 0)
	if len(got) != 1 || got[0].Path != target {
		t.Fatalf("expected only %q, got %v", target, paths(got))
	}
}

func TestScannerUnreadableRoot(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "missing"), nil, 0, 2, nil, nil)
	if _, err := s.Run(context.Background()); err == nil {
		t.Fatal("expected error for missing root")
	}
}

func TestScannerUnreadableSubdirWarns(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}
	dir := t.TempDir()
	readable := writeFile(t, dir, "ok.mp4", "fine")
	denied := filepath.Join(dir, "denied")
	if err := os.Mkdir(denied, 0o000); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chmod(denied, 0o755) })

	got, warnings := runScan(t, dir, nil, 0)
	if len(got) != 1 || got[0].Path != readable {
		t.Fatalf("expected only %q, got %v", readable, paths(got))
	}
	if len(warnings) != 1 || warnings[0].Path != denied {
		t.Fatalf("expected one warning for %q, got %v", denied, warnings)
	}
}

func TestScannerCancellation(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 10; i++ {
		writeFile(t, dir, filepath.Join("d", string(rune('a'+i)), "f.mp4"), "data")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(dir, nil, 0, 2, nil, nil)
	_, err := s.Run(ctx)
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
