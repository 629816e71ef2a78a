package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"realtor-scraper/models"
)

// Memory is an in-memory ListingStore and AgentCache with the same upsert
// semantics as the Postgres store. It backs dry runs (no database required)
// and the pipeline tests.
type Memory struct {
	mu       sync.RWMutex
	listings map[string]*models.Listing
	agents   map[string]*models.Agent

	now func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		listings: make(map[string]*models.Listing),
		agents:   make(map[string]*models.Agent),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Upsert mirrors the Postgres store: first observation inserts with
// TimesSeen=1; later ones bump TimesSeen, refresh LastSeenAt and overwrite
// volatile and classification fields, leaving FirstSeenAt untouched.
func (m *Memory) Upsert(_ context.Context, listing *models.Listing) (bool, *models.Listing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	existing, ok := m.listings[listing.ListingURL]
	if !ok {
		stored := *listing
		stored.FirstSeenAt = now
		stored.LastSeenAt = now
		stored.ScrapedAt = now
		stored.TimesSeen = 1
		m.listings[listing.ListingURL] = &stored

		snapshot := stored
		return true, &snapshot, nil
	}

	existing.TimesSeen++
	existing.LastSeenAt = now
	existing.ScrapedAt = now
	existing.Price = listing.Price
	existing.HasSepticSystem = listing.HasSepticSystem
	existing.HasPrivateWell = listing.HasPrivateWell
	existing.SepticMentions = listing.SepticMentions
	existing.WellMentions = listing.WellMentions
	existing.AgentName = listing.AgentName
	existing.AgentPhone = listing.AgentPhone
	existing.BrokerageName = listing.BrokerageName

	snapshot := *existing
	return false, &snapshot, nil
}

// Listings returns stored listings matching the filter, newest-seen first.
func (m *Memory) Listings(_ context.Context, filter ListingFilter) ([]*models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*models.Listing
	for _, l := range m.listings {
		if !filter.Since.IsZero() && !l.LastSeenAt.After(filter.Since) {
			continue
		}
		if filter.SepticOnly && !l.HasSepticSystem {
			continue
		}
		if filter.WellOnly && !l.HasPrivateWell {
			continue
		}
		if filter.City != "" && !strings.EqualFold(l.City, filter.City) {
			continue
		}
		snapshot := *l
		out = append(out, &snapshot)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastSeenAt.After(out[j].LastSeenAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// NewSepticWellListings returns septic/well listings first seen within the window.
func (m *Memory) NewSepticWellListings(_ context.Context, window time.Duration) ([]*models.Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := m.now().Add(-window)

	var out []*models.Listing
	for _, l := range m.listings {
		if !l.FirstSeenAt.After(cutoff) {
			continue
		}
		if !l.HasSepticSystem && !l.HasPrivateWell {
			continue
		}
		snapshot := *l
		out = append(out, &snapshot)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].FirstSeenAt.After(out[j].FirstSeenAt)
	})
	return out, nil
}

// Cities returns every distinct city with at least one stored listing.
func (m *Memory) Cities(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	var cities []string
	for _, l := range m.listings {
		if l.City == "" {
			continue
		}
		if _, dup := seen[l.City]; dup {
			continue
		}
		seen[l.City] = struct{}{}
		cities = append(cities, l.City)
	}
	sort.Strings(cities)
	return cities, nil
}

// Stats summarizes the stored dataset.
func (m *Memory) Stats(_ context.Context) (*models.DBStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &models.DBStats{}
	cutoff := m.now().Add(-24 * time.Hour)
	for _, l := range m.listings {
		stats.TotalListings++
		if l.HasSepticSystem {
			stats.WithSeptic++
		}
		if l.HasPrivateWell {
			stats.WithWell++
		}
		if l.FirstSeenAt.After(cutoff) {
			stats.NewLast24h++
		}
	}
	return stats, nil
}

// LookupAgent returns the cached agent for a profile URL, or nil on a miss.
func (m *Memory) LookupAgent(_ context.Context, agentURL string) (*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agent, ok := m.agents[agentURL]
	if !ok {
		return nil, nil
	}
	snapshot := *agent
	return &snapshot, nil
}

// StoreAgent upserts agent data, refreshing FetchedAt.
func (m *Memory) StoreAgent(_ context.Context, agent *models.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *agent
	stored.FetchedAt = m.now()
	m.agents[agent.AgentURL] = &stored
	return nil
}

func (m *Memory) Close() error { return nil }
