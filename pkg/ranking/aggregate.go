// Package ranking unifies candidate lists from independent strategies into one
// ranked list with a single candidate per entity
package ranking

import (
	"sort"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/clover/pkg/models"
)

const (
	// DefaultAutoLimit is the number of automatic suggestions shown to the user
	DefaultAutoLimit = 3
	// DefaultManualLimit is the number of manual search results shown to the user
	DefaultManualLimit = 5
)

// Aggregate flattens the lists, keeps one candidate per entity id and returns at most
// max candidates ordered by score. The winner for an entity is the highest score; equal
// scores go to the match type listed first in the score table, then to the candidate
// seen first. Reasons of the discarded duplicates are appended to the winner. max <= 0
// returns every entity.
func Aggregate(max int, lists ...[]models.MatchCandidate) []models.MatchCandidate {
	type entry struct {
		candidate models.MatchCandidate
		seen      int
	}

	byID := make(map[string]*entry)
	var order []string
	losers := make(map[string][][]string)

	seen := 0
	for _, list := range lists {
		for _, candidate := range list {
			id := candidate.Entity.ID
			existing, ok := byID[id]
			if !ok {
				byID[id] = &entry{candidate: copyCandidate(candidate), seen: seen}
				order = append(order, id)
				seen++
				continue
			}
			if beats(candidate, existing.candidate) {
				losers[id] = append(losers[id], existing.candidate.MatchReasons)
				existing.candidate = copyCandidate(candidate)
			} else {
				losers[id] = append(losers[id], candidate.MatchReasons)
			}
			seen++
		}
	}

	result := make([]entry, 0, len(order))
	for _, id := range order {
		e := byID[id]
		for _, reasons := range losers[id] {
			e.candidate.MatchReasons = appendMissing(e.candidate.MatchReasons, reasons)
		}
		result = append(result, *e)
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i].candidate, result[j].candidate
		if a.ConfidenceScore != b.ConfidenceScore {
			return a.ConfidenceScore > b.ConfidenceScore
		}
		if a.MatchType.Rank() != b.MatchType.Rank() {
			return a.MatchType.Rank() < b.MatchType.Rank()
		}
		return result[i].seen < result[j].seen
	})

	if max > 0 && len(result) > max {
		result = result[:max]
	}

	candidates := make([]models.MatchCandidate, len(result))
	for i, e := range result {
		candidates[i] = e.candidate
	}
	return candidates
}

// beats reports whether challenger replaces the current winner for the same entity
func beats(challenger, current models.MatchCandidate) bool {
	if challenger.ConfidenceScore != current.ConfidenceScore {
		return challenger.ConfidenceScore > current.ConfidenceScore
	}
	return challenger.MatchType.Rank() < current.MatchType.Rank()
}

func copyCandidate(candidate models.MatchCandidate) models.MatchCandidate {
	candidate.MatchReasons = append([]string(nil), candidate.MatchReasons...)
	return candidate
}

func appendMissing(reasons, extra []string) []string {
	for _, reason := range extra {
		if !ectolinq.Contains(reasons, reason) {
			reasons = append(reasons, reason)
		}
	}
	return reasons
}
