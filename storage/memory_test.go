package storage

import (
	"context"
	"testing"
	"time"

	"realtor-scraper/models"
)

// clockMemory returns a Memory whose clock starts at base and advances by
// step on every read.
func clockMemory(base time.Time, step time.Duration) *Memory {
	m := NewMemory()
	current := base
	m.now = func() time.Time {
		t := current
		current = current.Add(step)
		return t
	}
	return m
}

func TestMemoryUpsertInsertThenUpdate(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m := clockMemory(base, time.Minute)
	ctx := context.Background()

	first := &models.Listing{
		ListingURL:      "https://example.com/detail/home-a",
		PropertyID:      "A",
		Price:           250000,
		HasSepticSystem: true,
		SepticMentions:  []string{"utilities: Sewer: Septic"},
	}

	isNew, stored, err := m.Upsert(ctx, first)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !isNew {
		t.Error("first observation must report isNew")
	}
	if stored.TimesSeen != 1 {
		t.Errorf("TimesSeen after insert: got %d, want 1", stored.TimesSeen)
	}
	if !stored.FirstSeenAt.Equal(base) {
		t.Errorf("FirstSeenAt: got %v, want %v", stored.FirstSeenAt, base)
	}

	second := &models.Listing{
		ListingURL:      "https://example.com/detail/home-a",
		PropertyID:      "A",
		Price:           240000,
		HasSepticSystem: false,
	}

	isNew, stored, err = m.Upsert(ctx, second)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if isNew {
		t.Error("second observation must not report isNew")
	}
	if stored.TimesSeen != 2 {
		t.Errorf("TimesSeen after update: got %d, want 2", stored.TimesSeen)
	}
	if !stored.FirstSeenAt.Equal(base) {
		t.Errorf("FirstSeenAt must not move on update: got %v", stored.FirstSeenAt)
	}
	if !stored.LastSeenAt.After(stored.FirstSeenAt) {
		t.Errorf("LastSeenAt must advance: first=%v last=%v", stored.FirstSeenAt, stored.LastSeenAt)
	}
	if stored.Price != 240000 {
		t.Errorf("price must be overwritten: got %d", stored.Price)
	}
	if stored.HasSepticSystem {
		t.Error("classification must be overwritten, not merged")
	}
}

func TestMemoryUpsertReturnsSnapshot(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	_, stored, err := m.Upsert(ctx, &models.Listing{ListingURL: "u", City: "Bristol"})
	if err != nil {
		t.Fatal(err)
	}
	stored.City = "mutated"

	listings, _ := m.Listings(ctx, ListingFilter{})
	if listings[0].City != "Bristol" {
		t.Errorf("caller mutation leaked into the store: %q", listings[0].City)
	}
}

func TestMemoryListingsFilters(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	seed := []*models.Listing{
		{ListingURL: "u1", City: "Bristol", HasSepticSystem: true},
		{ListingURL: "u2", City: "Waterford", HasPrivateWell: true},
		{ListingURL: "u3", City: "bristol"},
	}
	for _, l := range seed {
		if _, _, err := m.Upsert(ctx, l); err != nil {
			t.Fatal(err)
		}
	}

	septic, _ := m.Listings(ctx, ListingFilter{SepticOnly: true})
	if len(septic) != 1 || septic[0].ListingURL != "u1" {
		t.Errorf("SepticOnly: got %d results", len(septic))
	}

	well, _ := m.Listings(ctx, ListingFilter{WellOnly: true})
	if len(well) != 1 || well[0].ListingURL != "u2" {
		t.Errorf("WellOnly: got %d results", len(well))
	}

	// City matching is case-insensitive.
	bristol, _ := m.Listings(ctx, ListingFilter{City: "BRISTOL"})
	if len(bristol) != 2 {
		t.Errorf("City filter: got %d results, want 2", len(bristol))
	}

	limited, _ := m.Listings(ctx, ListingFilter{Limit: 2})
	if len(limited) != 2 {
		t.Errorf("Limit: got %d results, want 2", len(limited))
	}
}

func TestMemoryNewSepticWellListings(t *testing.T) {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	ctx := context.Background()

	current := base
	m.now = func() time.Time { return current }

	// Old septic listing, outside any reasonable window.
	if _, _, err := m.Upsert(ctx, &models.Listing{ListingURL: "old", HasSepticSystem: true}); err != nil {
		t.Fatal(err)
	}

	current = base.Add(48 * time.Hour)
	if _, _, err := m.Upsert(ctx, &models.Listing{ListingURL: "fresh-septic", HasSepticSystem: true}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := m.Upsert(ctx, &models.Listing{ListingURL: "fresh-plain"}); err != nil {
		t.Fatal(err)
	}

	current = base.Add(49 * time.Hour)
	got, err := m.NewSepticWellListings(ctx, 24*time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ListingURL != "fresh-septic" {
		t.Errorf("expected only the fresh septic listing, got %d results", len(got))
	}
}

func TestMemoryStatsAndCities(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	seed := []*models.Listing{
		{ListingURL: "u1", City: "Bristol", HasSepticSystem: true, HasPrivateWell: true},
		{ListingURL: "u2", City: "Waterford", HasSepticSystem: true},
		{ListingURL: "u3", City: "Bristol"},
		{ListingURL: "u4"},
	}
	for _, l := range seed {
		if _, _, err := m.Upsert(ctx, l); err != nil {
			t.Fatal(err)
		}
	}

	stats, err := m.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalListings != 4 || stats.WithSeptic != 2 || stats.WithWell != 1 {
		t.Errorf("stats: %+v", stats)
	}
	if stats.NewLast24h != 4 {
		t.Errorf("all listings are fresh: NewLast24h=%d", stats.NewLast24h)
	}

	cities, err := m.Cities(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Bristol", "Waterford"}
	if len(cities) != len(want) || cities[0] != want[0] || cities[1] != want[1] {
		t.Errorf("cities: got %v, want %v", cities, want)
	}
}

func TestMemoryAgentCache(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	agent, err := m.LookupAgent(ctx, "https://example.com/agent/jane")
	if err != nil {
		t.Fatal(err)
	}
	if agent != nil {
		t.Fatalf("cache miss must return nil, got %+v", agent)
	}

	stored := &models.Agent{
		AgentURL: "https://example.com/agent/jane",
		Name:     "Jane Smith",
		Phone:    "2625550100",
	}
	if err := m.StoreAgent(ctx, stored); err != nil {
		t.Fatal(err)
	}

	agent, err = m.LookupAgent(ctx, stored.AgentURL)
	if err != nil {
		t.Fatal(err)
	}
	if agent == nil || agent.Name != "Jane Smith" || agent.Phone != "2625550100" {
		t.Errorf("unexpected cached agent: %+v", agent)
	}
	if agent.FetchedAt.IsZero() {
		t.Error("StoreAgent must stamp FetchedAt")
	}

	// Re-store overwrites.
	stored.Phone = "2625550199"
	if err := m.StoreAgent(ctx, stored); err != nil {
		t.Fatal(err)
	}
	agent, _ = m.LookupAgent(ctx, stored.AgentURL)
	if agent.Phone != "2625550199" {
		t.Errorf("re-store should overwrite: got %q", agent.Phone)
	}
}
