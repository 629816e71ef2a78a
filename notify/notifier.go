package notify

import (
	"context"

	"realtor-scraper/models"
	"realtor-scraper/utils"
)

// Notifier receives the outcome of a pipeline run. Message formatting and
// delivery live behind this interface; the pipeline treats both calls as
// fire-and-forget and never fails a run on a notifier error.
type Notifier interface {
	// ReportSuccess delivers the run statistics, every listing observed this
	// run, and the newsworthy subset (new septic/well listings inside the
	// configured notify window).
	ReportSuccess(ctx context.Context, stats *models.RunStats, all, matched []*models.Listing) error

	// ReportFailure delivers a run-fatal error.
	ReportFailure(ctx context.Context, runErr error) error
}

// LogNotifier writes run reports to the application log. It is the default
// when no delivery channel is configured.
type LogNotifier struct {
	logger *utils.Logger
}

// NewLogNotifier creates a LogNotifier with the given logger.
func NewLogNotifier(logger *utils.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) ReportSuccess(_ context.Context, stats *models.RunStats, all, matched []*models.Listing) error {
	n.logger.Info("[notify] Run %s complete — processed: %d | new: %d | updated: %d | septic/well: %d | errors: %d | duration: %s",
		stats.RunID, stats.TotalProcessed, stats.NewListings, stats.UpdatedListings,
		stats.SepticWellCount, len(stats.Errors), stats.Duration())

	if len(matched) == 0 {
		n.logger.Info("[notify] No new septic/well listings this run (%d total observed)", len(all))
		return nil
	}

	for _, l := range matched {
		n.logger.Info("[notify] NEW SEPTIC/WELL: %s, %s, %s %s | $%d | septic=%v well=%v | %s",
			l.Address, l.City, l.StateCode, l.PostalCode, l.Price,
			l.HasSepticSystem, l.HasPrivateWell, l.ListingURL)
	}
	return nil
}

func (n *LogNotifier) ReportFailure(_ context.Context, runErr error) error {
	n.logger.Error("[notify] Run failed: %v", runErr)
	return nil
}
