package services

import "realtor-scraper/models"

// DedupeCandidates removes candidates that share a property ID, keeping the
// first occurrence. Candidates without a property ID always pass through,
// since they cannot be compared to anything. The pass is stable and
// idempotent.
func DedupeCandidates(candidates []models.Candidate) []models.Candidate {
	seen := make(map[string]struct{}, len(candidates))
	unique := make([]models.Candidate, 0, len(candidates))

	for _, c := range candidates {
		if c.PropertyID == "" {
			unique = append(unique, c)
			continue
		}
		if _, dup := seen[c.PropertyID]; dup {
			continue
		}
		seen[c.PropertyID] = struct{}{}
		unique = append(unique, c)
	}

	return unique
}
