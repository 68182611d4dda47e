package resolver

import (
	"math"
	"sort"

	"github.com/seattlelisted/listing-cli/internal/model"
)

// ScoreCandidate ranks a provider candidate by how strongly it looks like a
// managed apartment building rather than an arbitrary geocode hit:
// point_of_interest + establishment together outrank either alone, a decent
// rating adds a nudge, and review volume adds a log-scaled bonus capped at 40.
func ScoreCandidate(c model.Candidate) int {
	score := 0

	poi, establishment := false, false
	for _, t := range c.Types {
		switch t {
		case "point_of_interest":
			poi = true
		case "establishment":
			establishment = true
		}
	}
	if poi && establishment {
		score += 100
	} else if poi {
		score += 50
	}

	if c.Rating != nil && *c.Rating >= 4.0 {
		score += 10
	}
	if c.RatingCount != nil && *c.RatingCount > 0 {
		bonus := int(math.Floor(math.Log(float64(*c.RatingCount)+1) * 10))
		if bonus > 40 {
			bonus = 40
		}
		score += bonus
	}

	return score
}

// rankCandidates orders candidates by score descending, breaking ties by the
// provider's own ordering within the variant that produced them.
func rankCandidates(cands []model.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Score != cands[j].Score {
			return cands[i].Score > cands[j].Score
		}
		return cands[i].RankInVariant < cands[j].RankInVariant
	})
}
