package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"realtor-scraper/models"
	"realtor-scraper/utils"
)

// Postgres implements ListingStore and AgentCache on PostgreSQL.
type Postgres struct {
	db     *sql.DB
	logger *utils.Logger
}

// NewPostgres opens a connection, verifies it with a short retry loop (the
// database container may still be starting), and ensures the schema exists.
func NewPostgres(dsn string, logger *utils.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	retry := &utils.RetryConfig{MaxAttempts: 5, BaseDelay: 2 * time.Second, Logger: logger}
	if err := retry.Do("postgres ping", db.Ping); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: %w", err)
	}

	pg := &Postgres{db: db, logger: logger}
	if err := pg.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}
	return pg, nil
}

func (p *Postgres) migrate() error {
	_, err := p.db.Exec(`
		CREATE TABLE IF NOT EXISTS agents (
			agent_url   TEXT PRIMARY KEY,
			agent_name  TEXT,
			agent_phone TEXT,
			fetched_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS listings (
			listing_url       TEXT PRIMARY KEY,
			property_id       TEXT,
			address           TEXT,
			city              TEXT,
			county            TEXT,
			state_code        TEXT,
			postal_code       TEXT,
			price             BIGINT,
			beds              INTEGER,
			baths             REAL,
			sqft              BIGINT,
			list_date         TEXT,
			has_septic_system BOOLEAN NOT NULL DEFAULT FALSE,
			has_private_well  BOOLEAN NOT NULL DEFAULT FALSE,
			septic_mentions   JSONB   NOT NULL DEFAULT '[]'::jsonb,
			well_mentions     JSONB   NOT NULL DEFAULT '[]'::jsonb,
			agent_url         TEXT,
			agent_name        TEXT,
			agent_phone       TEXT,
			brokerage_name    TEXT,
			first_seen_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_seen_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			times_seen        INTEGER NOT NULL DEFAULT 1,
			scraped_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_last_seen   ON listings(last_seen_at DESC);
		CREATE INDEX IF NOT EXISTS idx_listings_first_seen  ON listings(first_seen_at DESC);
		CREATE INDEX IF NOT EXISTS idx_listings_septic_well ON listings(has_septic_system, has_private_well);
		CREATE INDEX IF NOT EXISTS idx_listings_city        ON listings(city);
	`)
	return err
}

const listingColumns = `listing_url, property_id, address, city, county, state_code, postal_code,
	price, beds, baths, sqft, list_date,
	has_septic_system, has_private_well, septic_mentions, well_mentions,
	agent_url, agent_name, agent_phone, brokerage_name,
	first_seen_at, last_seen_at, times_seen, scraped_at`

// Upsert inserts a listing on first observation and updates visit tracking on
// every later one. All writes arrive through the pipeline's single writer, so
// the check-then-write pair never races within a run.
func (p *Postgres) Upsert(ctx context.Context, listing *models.Listing) (bool, *models.Listing, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return false, nil, fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback()

	var timesSeen int
	err = tx.QueryRowContext(ctx,
		"SELECT times_seen FROM listings WHERE listing_url = $1", listing.ListingURL,
	).Scan(&timesSeen)

	var row *sql.Row
	var isNew bool

	switch {
	case err == sql.ErrNoRows:
		septic, well, merr := marshalMentions(listing)
		if merr != nil {
			return false, nil, merr
		}
		row = tx.QueryRowContext(ctx, `
			INSERT INTO listings
			(listing_url, property_id, address, city, county, state_code, postal_code,
			 price, beds, baths, sqft, list_date,
			 has_septic_system, has_private_well, septic_mentions, well_mentions,
			 agent_url, agent_name, agent_phone, brokerage_name)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
			RETURNING `+listingColumns,
			listing.ListingURL, listing.PropertyID, listing.Address, listing.City,
			listing.County, listing.StateCode, listing.PostalCode,
			listing.Price, listing.Beds, listing.Baths, listing.Sqft, listing.ListDate,
			listing.HasSepticSystem, listing.HasPrivateWell, septic, well,
			listing.AgentURL, listing.AgentName, listing.AgentPhone, listing.BrokerageName,
		)
		isNew = true

	case err != nil:
		return false, nil, fmt.Errorf("postgres: lookup listing: %w", err)

	default:
		septic, well, merr := marshalMentions(listing)
		if merr != nil {
			return false, nil, merr
		}
		row = tx.QueryRowContext(ctx, `
			UPDATE listings SET
				last_seen_at = NOW(),
				times_seen = $1,
				price = $2,
				has_septic_system = $3,
				has_private_well = $4,
				septic_mentions = $5,
				well_mentions = $6,
				agent_name = $7,
				agent_phone = $8,
				brokerage_name = $9,
				scraped_at = NOW()
			WHERE listing_url = $10
			RETURNING `+listingColumns,
			timesSeen+1, listing.Price,
			listing.HasSepticSystem, listing.HasPrivateWell, septic, well,
			listing.AgentName, listing.AgentPhone, listing.BrokerageName,
			listing.ListingURL,
		)
	}

	stored, err := scanListing(row.Scan)
	if err != nil {
		return false, nil, fmt.Errorf("postgres: upsert listing %q: %w", listing.ListingURL, err)
	}
	if err := tx.Commit(); err != nil {
		return false, nil, fmt.Errorf("postgres: commit: %w", err)
	}
	return isNew, stored, nil
}

// Listings returns stored listings matching the filter, newest-seen first.
func (p *Postgres) Listings(ctx context.Context, filter ListingFilter) ([]*models.Listing, error) {
	query := "SELECT " + listingColumns + " FROM listings WHERE 1=1"
	var args []any

	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		query += fmt.Sprintf(" AND last_seen_at > $%d", len(args))
	}
	if filter.SepticOnly {
		query += " AND has_septic_system = TRUE"
	}
	if filter.WellOnly {
		query += " AND has_private_well = TRUE"
	}
	if filter.City != "" {
		args = append(args, filter.City)
		query += fmt.Sprintf(" AND city = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY last_seen_at DESC LIMIT $%d", len(args))

	return p.queryListings(ctx, query, args...)
}

// NewSepticWellListings returns septic/well listings first seen within the window.
func (p *Postgres) NewSepticWellListings(ctx context.Context, window time.Duration) ([]*models.Listing, error) {
	return p.queryListings(ctx, `
		SELECT `+listingColumns+` FROM listings
		WHERE first_seen_at > $1
		AND (has_septic_system = TRUE OR has_private_well = TRUE)
		ORDER BY first_seen_at DESC`,
		time.Now().UTC().Add(-window),
	)
}

// Cities returns every distinct city with at least one stored listing.
func (p *Postgres) Cities(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx,
		"SELECT DISTINCT city FROM listings WHERE city IS NOT NULL AND city <> '' ORDER BY city")
	if err != nil {
		return nil, fmt.Errorf("postgres: cities: %w", err)
	}
	defer rows.Close()

	var cities []string
	for rows.Next() {
		var city string
		if err := rows.Scan(&city); err != nil {
			return nil, err
		}
		cities = append(cities, city)
	}
	return cities, rows.Err()
}

// Stats summarizes the stored dataset.
func (p *Postgres) Stats(ctx context.Context) (*models.DBStats, error) {
	stats := &models.DBStats{}
	err := p.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE has_septic_system),
			COUNT(*) FILTER (WHERE has_private_well),
			COUNT(*) FILTER (WHERE first_seen_at > NOW() - INTERVAL '24 hours')
		FROM listings`,
	).Scan(&stats.TotalListings, &stats.WithSeptic, &stats.WithWell, &stats.NewLast24h)
	if err != nil {
		return nil, fmt.Errorf("postgres: stats: %w", err)
	}
	return stats, nil
}

// LookupAgent returns the cached agent for a profile URL, or nil on a miss.
func (p *Postgres) LookupAgent(ctx context.Context, agentURL string) (*models.Agent, error) {
	agent := &models.Agent{}
	err := p.db.QueryRowContext(ctx,
		"SELECT agent_url, agent_name, agent_phone, fetched_at FROM agents WHERE agent_url = $1",
		agentURL,
	).Scan(&agent.AgentURL, &agent.Name, &agent.Phone, &agent.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: lookup agent: %w", err)
	}
	p.logger.Debug("[storage] Cache HIT for agent: %s", agentURL)
	return agent, nil
}

// StoreAgent upserts agent data, refreshing fetched_at.
func (p *Postgres) StoreAgent(ctx context.Context, agent *models.Agent) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO agents (agent_url, agent_name, agent_phone)
		VALUES ($1, $2, $3)
		ON CONFLICT (agent_url) DO UPDATE SET
			agent_name = EXCLUDED.agent_name,
			agent_phone = EXCLUDED.agent_phone,
			fetched_at = NOW()`,
		agent.AgentURL, agent.Name, agent.Phone,
	)
	if err != nil {
		return fmt.Errorf("postgres: store agent: %w", err)
	}
	return nil
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) queryListings(ctx context.Context, query string, args ...any) ([]*models.Listing, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query listings: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan listing: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func marshalMentions(l *models.Listing) ([]byte, []byte, error) {
	septic, err := json.Marshal(emptyIfNil(l.SepticMentions))
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: marshal septic mentions: %w", err)
	}
	well, err := json.Marshal(emptyIfNil(l.WellMentions))
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: marshal well mentions: %w", err)
	}
	return septic, well, nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func scanListing(scan func(...any) error) (*models.Listing, error) {
	l := &models.Listing{}
	var septic, well []byte
	var propertyID, address, city, county, stateCode, postalCode sql.NullString
	var agentURL, agentName, agentPhone, brokerage, listDate sql.NullString
	var price, sqft sql.NullInt64
	var beds sql.NullInt32
	var baths sql.NullFloat64

	err := scan(
		&l.ListingURL, &propertyID, &address, &city, &county, &stateCode, &postalCode,
		&price, &beds, &baths, &sqft, &listDate,
		&l.HasSepticSystem, &l.HasPrivateWell, &septic, &well,
		&agentURL, &agentName, &agentPhone, &brokerage,
		&l.FirstSeenAt, &l.LastSeenAt, &l.TimesSeen, &l.ScrapedAt,
	)
	if err != nil {
		return nil, err
	}

	l.PropertyID = propertyID.String
	l.Address = address.String
	l.City = city.String
	l.County = county.String
	l.StateCode = stateCode.String
	l.PostalCode = postalCode.String
	l.Price = price.Int64
	l.Beds = int(beds.Int32)
	l.Baths = baths.Float64
	l.Sqft = sqft.Int64
	l.ListDate = listDate.String
	l.AgentURL = agentURL.String
	l.AgentName = agentName.String
	l.AgentPhone = agentPhone.String
	l.BrokerageName = brokerage.String

	if err := json.Unmarshal(septic, &l.SepticMentions); err != nil {
		return nil, fmt.Errorf("septic mentions: %w", err)
	}
	if err := json.Unmarshal(well, &l.WellMentions); err != nil {
		return nil, fmt.Errorf("well mentions: %w", err)
	}
	return l, nil
}
