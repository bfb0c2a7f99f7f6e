// Package similarity scores file name resemblance for the
// lower-confidence duplicate signal.
//
// Names are normalized before comparison: extension stripped, case
// folded, bracketed qualifiers like "(copy)" or "[1080p]" removed and
// separator runs collapsed. The ratio itself is a Dice coefficient
// over character bigrams of the normalized names, blended with a file
// size ratio so same-named files of wildly different sizes score low.
package similarity

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Default blend weights and the grouping threshold.
const (
	NameWeight = 0.7
	SizeWeight = 0.3
	Threshold  = 0.7
)

var (
	parenRe     = regexp.MustCompile(`\([^)]*\)`)
	bracketRe   = regexp.MustCompile(`\[[^\]]*\]`)
	separatorRe = regexp.MustCompile(`[-_\s]+`)
)

// Normalize canonicalizes a file name for comparison.
func Normalize(name string) string {
	base := filepath.Base(name)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	s := strings.ToLower(stem)
	s = parenRe.ReplaceAllString(s, "")
	s = bracketRe.ReplaceAllString(s, "")
	s = separatorRe.ReplaceAllString(s, "_")
	return strings.Trim(s, "_ ")
}

// Ratio returns the similarity of two file names in [0, 1].
func Ratio(name1, name2 string) float64 {
	a := Normalize(name1)
	b := Normalize(name2)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	return diceBigrams(a, b)
}

// SizeRatio returns the similarity of two byte sizes in [0, 1]:
// the smaller size divided by the larger.
func SizeRatio(size1, size2 int64) float64 {
	if size1 == 0 && size2 == 0 {
		return 1
	}
	if size1 == 0 || size2 == 0 {
		return 0
	}
	if size1 > size2 {
		size1, size2 = size2, size1
	}
	return float64(size1) / float64(size2)
}

// Combined blends name and size similarity with the default weights.
func Combined(name1, name2 string, size1, size2 int64) float64 {
	return NameWeight*Ratio(name1, name2) + SizeWeight*SizeRatio(size1, size2)
}

// diceBigrams computes the Dice coefficient over character bigram
// multisets: 2 * |overlap| / (|bigrams(a)| + |bigrams(b)|).
func diceBigrams(a, b string) float64 {
	ba := bigrams(a)
	bb := bigrams(b)
	if len(ba) == 0 || len(bb) == 0 {
		return 0
	}

	counts := make(map[string]int, len(ba))
	for _, g := range ba {
		counts[g]++
	}
	overlap := 0
	for _, g := range bb {
		if counts[g] > 0 {
			counts[g]--
			overlap++
		}
	}
	return 2 * float64(overlap) / float64(len(ba)+len(bb))
}

func bigrams(s string) []string {
	runes := []rune(s)
	if len(runes) < 2 {
		return []string{string(runes)}
	}
	out := make([]string, 0, len(runes)-1)
	for i := 0; i+1 < len(runes); i++ {
		out = append(out, string(runes[i:i+2]))
	}
	return out
}
