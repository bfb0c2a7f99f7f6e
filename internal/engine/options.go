package engine

import (
	"runtime"

	"github.com/mtakagi/vdup/internal/fingerprint"
	"github.com/mtakagi/vdup/internal/hasher"
)

// DefaultVideoExtensions is the extension filter applied when the
// caller requests video-only scanning without an explicit list.
var DefaultVideoExtensions = []string{
	".mp4", ".avi", ".mov", ".mkv", ".wmv", ".flv", ".webm",
	".m4v", ".3gp", ".mpg", ".mpeg", ".mts", ".m2ts",
}

// Options configures a detection run. The zero value means: all
// extensions, no size floor, default window/chunk sizes, one worker
// per CPU, BLAKE3, no cache, no secondary signals.
type Options struct {
	// Extensions restricts enumeration; empty means all files.
	Extensions []string
	// MinSize excludes files smaller than this many bytes.
	MinSize int64
	// SampleWindowBytes is the size of each sampled fingerprint window.
	SampleWindowBytes int64
	// ChunkBytes is the read granularity for full-content hashing.
	ChunkBytes int64
	// Workers bounds the pool for sampling and hashing.
	Workers int
	// HashAlgorithm selects the strong hash ("blake3" or "sha256").
	HashAlgorithm string
	// CachePath enables the persistent hash cache when non-empty.
	CachePath string
	// NameSimilarity enables lower-confidence name-similarity groups.
	NameSimilarity bool
	// DurationMatch enables lower-confidence duration-match groups;
	// requires ffprobe to be runnable.
	DurationMatch bool
	// FFprobeBinary overrides the ffprobe executable ("" = from PATH).
	FFprobeBinary string
}

// withDefaults fills unset fields.
func (o Options) withDefaults() Options {
	if o.SampleWindowBytes <= 0 {
		o.SampleWindowBytes = fingerprint.DefaultWindowBytes
	}
	if o.ChunkBytes <= 0 {
		o.ChunkBytes = hasher.DefaultChunkBytes
	}
	if o.Workers <= 0 {
		o.Workers = runtime.NumCPU()
	}
	return o
}
