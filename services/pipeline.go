package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"realtor-scraper/config"
	"realtor-scraper/models"
	"realtor-scraper/notify"
	"realtor-scraper/storage"
	"realtor-scraper/utils"
)

// ListingSource is the upstream the pipeline consumes: bulk search per
// partition, per-property detail fetch, and the stable URL derivation.
type ListingSource interface {
	SearchCounty(ctx context.Context, stateCode, county string, dateFloor time.Time, limit int) ([]models.Candidate, error)
	FetchDetails(ctx context.Context, base models.Candidate) (*models.EnrichedRecord, error)
	ListingURL(permalink string) string
}

// runState tracks where a run is in its lifecycle. Transitions are linear:
// Idle → Searching → Deduplicating → Enriching → Finalizing → Completed,
// with Failed as the terminal state for run-fatal errors.
type runState string

const (
	stateIdle          runState = "idle"
	stateSearching     runState = "searching"
	stateDeduplicating runState = "deduplicating"
	stateEnriching     runState = "enriching"
	stateFinalizing    runState = "finalizing"
	stateCompleted     runState = "completed"
	stateFailed        runState = "failed"
)

// Pipeline drives one scrape run: search every county partition, dedupe,
// enrich and classify under bounded concurrency, persist through a single
// writer, then hand the outcome to the notifier.
type Pipeline struct {
	cfg      *config.Config
	source   ListingSource
	store    storage.ListingStore
	agents   storage.AgentCache // optional; nil disables caching
	notifier notify.Notifier
	logger   *utils.Logger

	state runState
}

// NewPipeline wires a Pipeline from its collaborators.
func NewPipeline(cfg *config.Config, source ListingSource, store storage.ListingStore,
	agents storage.AgentCache, notifier notify.Notifier, logger *utils.Logger) *Pipeline {
	return &Pipeline{
		cfg:      cfg,
		source:   source,
		store:    store,
		agents:   agents,
		notifier: notifier,
		logger:   logger,
		state:    stateIdle,
	}
}

func (p *Pipeline) transition(next runState) {
	p.logger.Debug("[pipeline] %s → %s", p.state, next)
	p.state = next
}

// Run executes one full pipeline pass. It always returns RunStats with
// CompletedAt set; a non-nil error means the run was fatal and the failure
// notification has already been sent.
func (p *Pipeline) Run(ctx context.Context) (*models.RunStats, error) {
	stats := models.NewRunStats()

	p.logger.Info("[pipeline] Run %s starting — state: %s, counties: %d, lookback: %dd, concurrency: %d",
		stats.RunID, p.cfg.StateCode, len(p.cfg.Counties), p.cfg.DaysOld, p.cfg.MaxConcurrency)

	// Searching: one call per county partition, sequentially, with a
	// politeness delay in between. A failed partition yields nothing and is
	// recorded; it does not abort the run on its own.
	p.transition(stateSearching)
	candidates, err := p.search(ctx, stats)
	if err != nil {
		return p.fail(ctx, stats, err)
	}

	if len(candidates) == 0 {
		if len(stats.Errors) > 0 {
			return p.fail(ctx, stats, fmt.Errorf("search produced no candidates (%d partition errors, first: %s)",
				len(stats.Errors), stats.Errors[0]))
		}
		p.logger.Info("[pipeline] No candidates found; nothing to do")
		return p.finalize(ctx, stats, nil, nil)
	}

	p.transition(stateDeduplicating)
	unique := DedupeCandidates(candidates)
	if dropped := len(candidates) - len(unique); dropped > 0 {
		p.logger.Info("[pipeline] Deduplicated: removed %d duplicate listings", dropped)
	}
	stats.TotalProcessed = len(unique)

	p.transition(stateEnriching)
	all, matched, err := p.enrich(ctx, unique, stats)
	if err != nil {
		return p.fail(ctx, stats, err)
	}

	return p.finalize(ctx, stats, all, matched)
}

// search runs every county partition, accumulating candidates. Partition
// failures land in stats.Errors. Only context cancellation is fatal here.
func (p *Pipeline) search(ctx context.Context, stats *models.RunStats) ([]models.Candidate, error) {
	var dateFloor time.Time
	if p.cfg.DaysOld > 0 {
		dateFloor = time.Now().UTC().AddDate(0, 0, -p.cfg.DaysOld)
	}

	partitions := p.cfg.Counties
	if len(partitions) == 0 {
		// State-wide search as a single partition.
		partitions = []string{""}
	}

	var candidates []models.Candidate
	for i, county := range partitions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		label := county
		if label == "" {
			label = p.cfg.StateCode + " (state-wide)"
		}
		p.logger.Info("[pipeline] Searching partition: %s", label)

		found, err := p.source.SearchCounty(ctx, p.cfg.StateCode, county, dateFloor, p.cfg.SearchLimit)
		if err != nil {
			p.logger.Error("[pipeline] Partition %s failed: %v", label, err)
			stats.Errors = append(stats.Errors, fmt.Sprintf("search %s: %v", label, err))
		} else {
			candidates = append(candidates, found...)
		}

		if i < len(partitions)-1 && p.cfg.PartitionDelay > 0 {
			select {
			case <-time.After(p.cfg.PartitionDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	p.logger.Info("[pipeline] Total candidates from all partitions: %d", len(candidates))
	return candidates, nil
}

// enrich runs the bounded-concurrency fetch/classify stage over the unique
// candidates and drains every classified listing through a single writer.
// Write order is arrival order, which varies with fetch latency; each URL is
// written exactly once per run.
func (p *Pipeline) enrich(ctx context.Context, candidates []models.Candidate, stats *models.RunStats) (all, matched []*models.Listing, err error) {
	queue := make(chan *models.Listing, p.cfg.MaxConcurrency)
	writerDone := make(chan struct{})

	var mu sync.Mutex // guards stats counters and the result slices

	go func() {
		defer close(writerDone)
		for listing := range queue {
			isNew, stored, upsertErr := p.store.Upsert(ctx, listing)
			if upsertErr != nil {
				mu.Lock()
				stats.Errors = append(stats.Errors, fmt.Sprintf("upsert %s: %v", listing.ListingURL, upsertErr))
				mu.Unlock()
				continue
			}

			p.cacheAgent(ctx, stored)

			mu.Lock()
			all = append(all, stored)
			if isNew {
				stats.NewListings++
				if (stored.HasSepticSystem || stored.HasPrivateWell) && p.withinNotifyWindow(stored.ListDate) {
					matched = append(matched, stored)
					stats.SepticWellCount++
					p.logger.Info("[pipeline] NEW SEPTIC/WELL: %s, %s (septic: %v, well: %v)",
						stored.Address, stored.City, stored.HasSepticSystem, stored.HasPrivateWell)
				}
			} else {
				stats.UpdatedListings++
			}
			mu.Unlock()
		}
	}()

	pool := utils.NewWorkerPool(p.cfg.MaxConcurrency)
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		candidate := candidate
		pool.Submit(func() {
			listing, procErr := p.processCandidate(ctx, candidate)
			if procErr != nil {
				mu.Lock()
				stats.Errors = append(stats.Errors, procErr.Error())
				stats.SkippedCount++
				mu.Unlock()
				return
			}
			queue <- listing
		})
	}

	pool.Wait()
	close(queue)
	<-writerDone

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, nil, fmt.Errorf("enrichment interrupted: %w", ctxErr)
	}
	return all, matched, nil
}

// processCandidate fetches detail data, classifies it and builds the listing
// record. An absent detail record is a valid outcome: the candidate proceeds
// with a negative classification.
func (p *Pipeline) processCandidate(ctx context.Context, candidate models.Candidate) (*models.Listing, error) {
	if candidate.Permalink == "" {
		return nil, fmt.Errorf("candidate %s: missing permalink, cannot derive listing URL", candidate.PropertyID)
	}

	var record *models.EnrichedRecord
	if p.cfg.FetchDetails && candidate.PropertyID != "" {
		var err error
		record, err = p.source.FetchDetails(ctx, candidate)
		if err != nil {
			p.logger.Warn("[pipeline] Detail fetch failed for %s, proceeding without detail: %v",
				candidate.PropertyID, err)
			record = nil
		}
	}

	classification := ClassifyRecord(record)

	listing := &models.Listing{
		ListingURL: p.source.ListingURL(candidate.Permalink),
		PropertyID: candidate.PropertyID,
		Address:    candidate.Address,
		City:       candidate.City,
		County:     candidate.County,
		StateCode:  candidate.StateCode,
		PostalCode: candidate.PostalCode,
		Price:      candidate.Price,
		Beds:       candidate.Beds,
		Baths:      candidate.Baths,
		Sqft:       candidate.Sqft,
		ListDate:   candidate.ListDate,

		HasSepticSystem: classification.HasSepticSystem,
		HasPrivateWell:  classification.HasPrivateWell,
		SepticMentions:  classification.SepticMentions,
		WellMentions:    classification.WellMentions,

		AgentURL:   candidate.AgentURL,
		AgentName:  candidate.AgentName,
		AgentPhone: candidate.AgentPhone,
	}

	if record != nil {
		listing.Price = record.Price
		listing.Beds = record.Beds
		listing.Baths = record.Baths
		listing.Sqft = record.Sqft
		if record.County != "" {
			listing.County = record.County
		}
		if record.AgentName != "" {
			listing.AgentName = record.AgentName
		}
		if record.AgentURL != "" {
			listing.AgentURL = record.AgentURL
		}
		if record.AgentPhone != "" {
			listing.AgentPhone = record.AgentPhone
		}
		listing.BrokerageName = record.BrokerageName
	}

	return listing, nil
}

// cacheAgent keeps the agent cache fresh: fills gaps in the listing from the
// cache, and writes back whenever the observation carries data. Cache errors
// are logged and otherwise ignored.
func (p *Pipeline) cacheAgent(ctx context.Context, listing *models.Listing) {
	if p.agents == nil || listing.AgentURL == "" {
		return
	}

	if listing.AgentName == "" || listing.AgentPhone == "" {
		cached, err := p.agents.LookupAgent(ctx, listing.AgentURL)
		if err != nil {
			p.logger.Debug("[pipeline] Agent cache lookup failed: %v", err)
		} else if cached != nil {
			if listing.AgentName == "" {
				listing.AgentName = cached.Name
			}
			if listing.AgentPhone == "" {
				listing.AgentPhone = cached.Phone
			}
		}
	}

	if listing.AgentName == "" && listing.AgentPhone == "" {
		return
	}
	err := p.agents.StoreAgent(ctx, &models.Agent{
		AgentURL: listing.AgentURL,
		Name:     listing.AgentName,
		Phone:    listing.AgentPhone,
	})
	if err != nil {
		p.logger.Debug("[pipeline] Agent cache store failed: %v", err)
	}
}

// withinNotifyWindow applies the configured notify window to a list date.
// An unparsable date passes, so a malformed upstream value never hides a
// listing from the notifier.
func (p *Pipeline) withinNotifyWindow(listDate string) bool {
	if p.cfg.NotifyWindowHours <= 0 {
		return true
	}
	if listDate == "" {
		return true
	}
	listed, err := time.Parse("2006-01-02", listDate[:min(len(listDate), 10)])
	if err != nil {
		return true
	}
	cutoff := time.Now().UTC().Add(-time.Duration(p.cfg.NotifyWindowHours) * time.Hour)
	return !listed.Before(cutoff.Truncate(24 * time.Hour))
}

// finalize stamps completion, reports success and returns the stats.
func (p *Pipeline) finalize(ctx context.Context, stats *models.RunStats, all, matched []*models.Listing) (*models.RunStats, error) {
	p.transition(stateFinalizing)
	stats.CompletedAt = time.Now().UTC()

	p.logger.Info("[pipeline] SCRAPE COMPLETE — processed: %d | new: %d | updated: %d | septic/well: %d | errors: %d | took %s",
		stats.TotalProcessed, stats.NewListings, stats.UpdatedListings,
		stats.SepticWellCount, len(stats.Errors), stats.Duration().Round(time.Millisecond))

	if err := p.notifier.ReportSuccess(ctx, stats, all, matched); err != nil {
		p.logger.Error("[pipeline] Success notification failed: %v", err)
	}

	p.transition(stateCompleted)
	return stats, nil
}

// fail stamps completion, reports the failure exactly once and returns the
// error to the caller, which exits non-zero.
func (p *Pipeline) fail(ctx context.Context, stats *models.RunStats, runErr error) (*models.RunStats, error) {
	p.transition(stateFailed)
	stats.CompletedAt = time.Now().UTC()
	stats.Errors = append(stats.Errors, runErr.Error())

	p.logger.Error("[pipeline] Run %s failed: %v", stats.RunID, runErr)

	// Notifier failures are logged only; the run error is what surfaces.
	if err := p.notifier.ReportFailure(context.WithoutCancel(ctx), runErr); err != nil {
		p.logger.Error("[pipeline] Failure notification failed: %v", err)
	}

	return stats, runErr
}
