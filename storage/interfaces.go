package storage

import (
	"context"
	"time"

	"realtor-scraper/models"
)

// ListingFilter narrows Listings queries. Zero values mean "no filter".
type ListingFilter struct {
	Since      time.Time
	SepticOnly bool
	WellOnly   bool
	City       string
	Limit      int
}

// ListingStore persists listings with visit tracking. Upsert reports whether
// the URL was seen for the first time; re-observations increment TimesSeen,
// refresh LastSeenAt and overwrite the volatile and classification fields
// while FirstSeenAt stays fixed.
type ListingStore interface {
	Upsert(ctx context.Context, listing *models.Listing) (isNew bool, stored *models.Listing, err error)
	Listings(ctx context.Context, filter ListingFilter) ([]*models.Listing, error)
	NewSepticWellListings(ctx context.Context, window time.Duration) ([]*models.Listing, error)
	Cities(ctx context.Context) ([]string, error)
	Stats(ctx context.Context) (*models.DBStats, error)
	Close() error
}

// AgentCache caches agent profile data keyed by profile URL, so repeat runs
// skip redundant external lookups. Lookup returns nil on a miss.
type AgentCache interface {
	LookupAgent(ctx context.Context, agentURL string) (*models.Agent, error)
	StoreAgent(ctx context.Context, agent *models.Agent) error
}
