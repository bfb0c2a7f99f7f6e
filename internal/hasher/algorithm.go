package hasher

import (
	"crypto/sha256"
	"fmt"
	"hash"

	"github.com/zeebo/blake3"
)

// Algorithm is the strong-hash capability used for full-content
// hashing. The pipeline is polymorphic over it: swapping algorithms
// changes digests, never behavior.
type Algorithm interface {
	Name() string
	Size() int
	New() hash.Hash
}

type blake3Algorithm struct{}

func (blake3Algorithm) Name() string   { return "blake3" }
func (blake3Algorithm) Size() int      { return 32 }
func (blake3Algorithm) New() hash.Hash { return blake3.New() }

type sha256Algorithm struct{}

func (sha256Algorithm) Name() string   { return "sha256" }
func (sha256Algorithm) Size() int      { return sha256.Size }
func (sha256Algorithm) New() hash.Hash { return sha256.New() }

// DefaultAlgorithm returns the preferred strong hash.
func DefaultAlgorithm() Algorithm { return blake3Algorithm{} }

// AlgorithmByName resolves an algorithm by its configuration name.
func AlgorithmByName(name string) (Algorithm, error) {
	switch name {
	case "", "blake3":
		return blake3Algorithm{}, nil
	case "sha256":
		return sha256Algorithm{}, nil
	default:
		return nil, fmt.Errorf("unknown hash algorithm %q", name)
	}
}
