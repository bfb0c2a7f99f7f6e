// Package assembler converts confirmed hash collisions and optional
// secondary signals into ordered duplicate groups.
//
// Group IDs are dense and unique within one run. Output order is a
// pure function of group contents (descending entry count, then the
// path of the earliest-enumerated member), so results are
// deterministic regardless of internal execution order. Secondary
// name-similarity and duration-match groups are best-effort, always
// score below 1.0, and never claim a file already confirmed by hash.
package assembler

import (
	"cmp"
	"slices"

	"github.com/mtakagi/vdup/internal/hasher"
	"github.com/mtakagi/vdup/internal/similarity"
	"github.com/mtakagi/vdup/internal/types"
)

const (
	// maxFallbackScore caps secondary-signal scores strictly below an
	// exact-hash match.
	maxFallbackScore = 0.99
	// durationTolerance is the relative difference within which two
	// durations are considered matching.
	durationTolerance = 0.02
)

// Input carries everything the assembler needs from earlier stages.
type Input struct {
	// Candidates in enumeration order; used for deterministic
	// tie-breaking and as the population for secondary signals.
	Candidates []types.Candidate
	Confirmed  []hasher.ConfirmedSet
	// Durations maps path to best-effort media duration in seconds.
	Durations map[string]float64
	// NameSimilarity enables the normalized-name secondary signal.
	NameSimilarity bool
	// DurationMatch enables the duration secondary signal.
	DurationMatch bool
}

// Assemble builds the final, ordered duplicate groups.
func Assemble(in Input) []types.Group {
	enumIndex := make(map[string]int, len(in.Candidates))
	for i, c := range in.Candidates {
		enumIndex[c.Path] = i
	}

	var groups []types.Group
	claimed := make(map[string]bool)

	for _, set := range in.Confirmed {
		entries := make([]types.Entry, 0, len(set.Files))
		for _, f := range set.Files {
			claimed[f.Path] = true
			entries = append(entries, types.Entry{
				Path:            f.Path,
				Size:            f.Size,
				FullHash:        set.Hash,
				DurationSeconds: in.Durations[f.Path],
			})
		}
		groups = append(groups, types.Group{Entries: entries, Reason: types.ReasonExactHash, Score: 1.0})
	}

	if in.NameSimilarity {
		groups = append(groups, nameSimilarityGroups(in, claimed)...)
	}
	if in.DurationMatch {
		groups = append(groups, durationMatchGroups(in, claimed)...)
	}

	for i := range groups {
		slices.SortFunc(groups[i].Entries, func(a, b types.Entry) int {
			return cmp.Compare(a.Path, b.Path)
		})
	}
	slices.SortFunc(groups, func(a, b types.Group) int {
		if c := cmp.Compare(len(b.Entries), len(a.Entries)); c != 0 {
			return c
		}
		return cmp.Compare(firstPath(a, enumIndex), firstPath(b, enumIndex))
	})
	for i := range groups {
		groups[i].ID = i + 1
	}
	return groups
}

// firstPath returns the path of the earliest-enumerated entry.
func firstPath(g types.Group, enumIndex map[string]int) string {
	best := g.Entries[0].Path
	for _, e := range g.Entries[1:] {
		if enumIndex[e.Path] < enumIndex[best] {
			best = e.Path
		}
	}
	return best
}

// nameSimilarityGroups greedily groups unclaimed candidates whose
// blended name/size similarity clears the threshold. The group score
// is the average pairwise similarity, capped below 1.0.
func nameSimilarityGroups(in Input, claimed map[string]bool) []types.Group {
	var groups []types.Group

	for i, seed := range in.Candidates {
		if claimed[seed.Path] {
			continue
		}
		members := []types.Candidate{seed}
		for _, other := range in.Candidates[i+1:] {
			if claimed[other.Path] {
				continue
			}
			if similarity.Combined(seed.Path, other.Path, seed.Size, other.Size) >= similarity.Threshold {
				members = append(members, other)
			}
		}
		if len(members) < 2 {
			continue
		}

		var total float64
		var pairs int
		for a := 0; a < len(members); a++ {
			for b := a + 1; b < len(members); b++ {
				total += similarity.Combined(members[a].Path, members[b].Path, members[a].Size, members[b].Size)
				pairs++
			}
		}
		score := min(total/float64(pairs), maxFallbackScore)

		entries := make([]types.Entry, 0, len(members))
		for _, m := range members {
			claimed[m.Path] = true
			entries = append(entries, types.Entry{
				Path:            m.Path,
				Size:            m.Size,
				DurationSeconds: in.Durations[m.Path],
			})
		}
		groups = append(groups, types.Group{Entries: entries, Reason: types.ReasonNameSimilarity, Score: score})
	}
	return groups
}

// durationMatchGroups greedily groups unclaimed candidates whose known
// durations fall within the tolerance of each other.
func durationMatchGroups(in Input, claimed map[string]bool) []types.Group {
	var groups []types.Group

	for i, seed := range in.Candidates {
		if claimed[seed.Path] {
			continue
		}
		seedDur, ok := in.Durations[seed.Path]
		if !ok || seedDur <= 0 {
			continue
		}

		members := []types.Candidate{seed}
		worst := 1.0
		for _, other := range in.Candidates[i+1:] {
			if claimed[other.Path] {
				continue
			}
			otherDur, ok := in.Durations[other.Path]
			if !ok || otherDur <= 0 {
				continue
			}
			ratio := min(seedDur, otherDur) / max(seedDur, otherDur)
			if 1-ratio <= durationTolerance {
				members = append(members, other)
				worst = min(worst, ratio)
			}
		}
		if len(members) < 2 {
			continue
		}

		score := min(0.9*worst, maxFallbackScore)
		entries := make([]types.Entry, 0, len(members))
		for _, m := range members {
			claimed[m.Path] = true
			entries = append(entries, types.Entry{
				Path:            m.Path,
				Size:            m.Size,
				DurationSeconds: in.Durations[m.Path],
			})
		}
		groups = append(groups, types.Group{Entries: entries, Reason: types.ReasonDurationMatch, Score: score})
	}
	return groups
}
