package models

import (
	"time"

	"github.com/google/uuid"
)

// Candidate is a minimally-detailed listing returned by a bulk search call.
// It exists only within one pipeline run.
type Candidate struct {
	PropertyID string
	ListingID  string
	Permalink  string
	Address    string
	City       string
	County     string
	StateCode  string
	PostalCode string
	Price      int64
	Beds       int
	Baths      float64
	Sqft       int64
	ListDate   string

	AgentName  string
	AgentURL   string
	AgentPhone string
}

// DetailEntry is one free-text detail block from a property detail response,
// e.g. category "Utilities" with text ["Sewer: Septic", "Water: Well"].
type DetailEntry struct {
	Category       string
	ParentCategory string
	Text           []string
}

// EnrichedRecord is the full per-property detail record: the Candidate data
// plus the free text the classifier scans and refined advertiser info.
type EnrichedRecord struct {
	Candidate

	Description   string
	Details       []DetailEntry
	BrokerageName string
}

// Classification is the septic/well detection result for one record.
// Each flag is true iff the corresponding mention list is non-empty.
type Classification struct {
	HasSepticSystem bool
	HasPrivateWell  bool
	SepticMentions  []string
	WellMentions    []string
}

// Matched reports whether either attribute was detected.
func (c Classification) Matched() bool {
	return c.HasSepticSystem || c.HasPrivateWell
}

// Listing is the persisted record, keyed by ListingURL.
type Listing struct {
	ListingURL string
	PropertyID string
	Address    string
	City       string
	County     string
	StateCode  string
	PostalCode string
	Price      int64
	Beds       int
	Baths      float64
	Sqft       int64
	ListDate   string

	HasSepticSystem bool
	HasPrivateWell  bool
	SepticMentions  []string
	WellMentions    []string

	AgentURL      string
	AgentName     string
	AgentPhone    string
	BrokerageName string

	FirstSeenAt time.Time
	LastSeenAt  time.Time
	TimesSeen   int
	ScrapedAt   time.Time
}

// Agent is a cached agent profile, keyed by AgentURL.
type Agent struct {
	AgentURL  string
	Name      string
	Phone     string
	FetchedAt time.Time
}

// RunStats accumulates counters over one pipeline run.
type RunStats struct {
	RunID           string
	TotalProcessed  int
	NewListings     int
	UpdatedListings int
	SepticWellCount int
	SkippedCount    int
	Errors          []string
	StartedAt       time.Time
	CompletedAt     time.Time
}

// NewRunStats returns stats stamped with a fresh run ID and start time.
func NewRunStats() *RunStats {
	return &RunStats{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
}

// Duration returns the elapsed run time, or zero if the run has not completed.
func (s *RunStats) Duration() time.Duration {
	if s.CompletedAt.IsZero() {
		return 0
	}
	return s.CompletedAt.Sub(s.StartedAt)
}

// DBStats summarizes the stored dataset.
type DBStats struct {
	TotalListings int
	WithSeptic    int
	WithWell      int
	NewLast24h    int
}
