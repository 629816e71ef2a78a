package services

import (
	"regexp"
	"strings"

	"realtor-scraper/models"
)

// Pattern sets for septic/well detection. All matching is case-insensitive
// against lowercased text and uses word boundaries: a bare "well" is never
// matched, so street names like "Howell Ave" stay out of the results.
var (
	septicDetailPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bseptic\b`),
		regexp.MustCompile(`\bsewer:\s*septic\b`),
	}
	wellDetailPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bprivate\s+well\b`),
		regexp.MustCompile(`\bwater:\s*well\b`),
		regexp.MustCompile(`\bwell\s+water\b`),
		regexp.MustCompile(`\bdrilled\s+well\b`),
	}

	septicDescriptionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bseptic\s*system\b`),
		regexp.MustCompile(`\bseptic\s*tank\b`),
		regexp.MustCompile(`\bprivate\s+septic\b`),
	}
	wellDescriptionPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\bprivate\s+well\b`),
		regexp.MustCompile(`\bwell\s+water\b`),
		regexp.MustCompile(`\bwater\s+well\b`),
		regexp.MustCompile(`\bdrilled\s+well\b`),
	}
)

// Classify scans a record's detail entries and description for septic system
// and private well mentions. It is pure and deterministic: detail entries are
// scanned in their given order, each text line in order, then the description,
// so mention lists are reproducible for identical input.
//
// Detail provenance is "<category>: <text>" with the full matched line;
// description provenance is "description: <matched phrase>".
func Classify(details []models.DetailEntry, description string) models.Classification {
	var result models.Classification

	for _, entry := range details {
		category := strings.ToLower(entry.Category)

		for _, text := range entry.Text {
			lower := strings.ToLower(text)

			for _, p := range septicDetailPatterns {
				if p.MatchString(lower) {
					result.HasSepticSystem = true
					result.SepticMentions = append(result.SepticMentions, category+": "+text)
					break
				}
			}

			for _, p := range wellDetailPatterns {
				if p.MatchString(lower) {
					result.HasPrivateWell = true
					result.WellMentions = append(result.WellMentions, category+": "+text)
					break
				}
			}
		}
	}

	if description != "" {
		lower := strings.ToLower(description)

		for _, p := range septicDescriptionPatterns {
			if match := p.FindString(lower); match != "" {
				result.HasSepticSystem = true
				result.SepticMentions = append(result.SepticMentions, "description: "+match)
			}
		}

		for _, p := range wellDescriptionPatterns {
			if match := p.FindString(lower); match != "" {
				result.HasPrivateWell = true
				result.WellMentions = append(result.WellMentions, "description: "+match)
			}
		}
	}

	return result
}

// ClassifyRecord classifies an enriched record. A nil record yields a
// negative classification, since there is no detail text to scan.
func ClassifyRecord(record *models.EnrichedRecord) models.Classification {
	if record == nil {
		return models.Classification{}
	}
	return Classify(record.Details, record.Description)
}
