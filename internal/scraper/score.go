package scraper

import (
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"

	"rymeta/internal/textnorm"
)

const (
	titleWeight = 0.8
	yearWeight  = 0.2

	// maxYearDrift is how far a candidate's year may sit from the target
	// before the match is rejected outright; two releases sharing a title
	// three years apart are nearly always different records.
	maxYearDrift = 2

	// exactYearBonus relaxes the acceptance threshold when the year
	// matches exactly, since year agreement is strong independent
	// evidence the candidate is right.
	exactYearBonus = 0.05
)

// similarity is an edit-distance ratio in [0,1] over normalized titles.
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	longest := len(ra)
	if len(rb) > longest {
		longest = len(rb)
	}
	dist := fuzzy.LevenshteinDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// yearScore degrades stepwise with distance from the target year; missing
// year information on either side is neutral.
func yearScore(candidate, target int) float64 {
	if candidate == 0 || target == 0 {
		return 1.0
	}
	diff := candidate - target
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff == 0:
		return 1.0
	case diff <= 1:
		return 0.9
	case diff <= 2:
		return 0.8
	default:
		return 0.5
	}
}

// score combines title similarity and year proximity for one candidate.
func score(c Candidate, targetKey string, targetYear int) float64 {
	sim := similarity(textnorm.TitleKey(c.Album), targetKey)
	return sim*titleWeight + yearScore(c.Year, targetYear)*yearWeight
}

// pickBest scores candidates against the target and returns the winning
// site-relative URL, or false if nothing clears the threshold. Ties go to
// the shortest URL so reissue slugs like name-2/ lose to name/.
func pickBest(candidates []Candidate, targetAlbum string, targetYear int, threshold float64) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}
	targetKey := textnorm.TitleKey(targetAlbum)

	type scored struct {
		c Candidate
		s float64
	}
	ranked := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, scored{c: c, s: score(c, targetKey, targetYear)})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].s != ranked[j].s {
			return ranked[i].s > ranked[j].s
		}
		return len(ranked[i].c.URL) < len(ranked[j].c.URL)
	})

	best := ranked[0]
	if targetYear != 0 && best.c.Year != 0 {
		diff := best.c.Year - targetYear
		if diff < 0 {
			diff = -diff
		}
		if diff > maxYearDrift {
			return Candidate{}, false
		}
		if diff == 0 {
			threshold -= exactYearBonus
		}
	}
	if best.s < threshold {
		return Candidate{}, false
	}
	return best.c, true
}
