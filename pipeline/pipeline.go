// Package pipeline turns the raw street list into the persisted address
// table: it parses listings, pulls per-street schedules through the
// fetcher with bounded retries, and flushes the table after every
// street so an interrupted run keeps its completed work.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/CodeforKarlsruhe/abfallkalender-scraper/config"
	"github.com/CodeforKarlsruhe/abfallkalender-scraper/models"
	"github.com/CodeforKarlsruhe/abfallkalender-scraper/parser"
	"github.com/CodeforKarlsruhe/abfallkalender-scraper/scraper"
)

// StreetFetcher supplies per-street schedule data. Implemented by
// scraper.Fetcher; tests substitute their own.
type StreetFetcher interface {
	ServiceDates(ctx context.Context, street string) (models.ServiceData, error)
}

// Orchestrator owns the table being built for the duration of a run.
// Streets are processed one at a time; there is no shared mutable state
// beyond the table itself.
type Orchestrator struct {
	cfg     *config.Config
	fetcher StreetFetcher
	writer  SnapshotWriter
	metrics *scraper.Metrics
}

// NewOrchestrator builds an orchestrator. metrics may be nil.
func NewOrchestrator(cfg *config.Config, fetcher StreetFetcher, writer SnapshotWriter, metrics *scraper.Metrics) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		fetcher: fetcher,
		writer:  writer,
		metrics: metrics,
	}
}

// Run processes every listing and returns the finalized table. A single
// street's failure never aborts the run; only persistence failures and
// context cancellation do. The partially built table has already been
// flushed street by street when an error is returned.
func (o *Orchestrator) Run(ctx context.Context, listings []string) (*models.ScrapeResult, error) {
	result := &models.ScrapeResult{
		Table:        models.NewAddressTable(),
		ListingCount: len(listings),
		ErrorsByType: make(map[string]int),
	}
	result.StartTime = result.Table.ScrapedAt

	for _, listing := range listings {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		display, rng, perr := parser.ParseListing(listing)
		if perr != nil {
			// keep the street visible in the output even when its
			// range did not parse
			slog.Warn("unparseable listing", slog.String("listing", listing), slog.Any("error", perr))
			rng = models.AllRange()
		}
		normalized := parser.NormalizeStreetName(display)
		rec := result.Table.Record(normalized, display)

		data, retries, ferr := o.fetchStreet(ctx, listing)
		result.RetryCount += retries
		rec.Entries = append(rec.Entries, models.RangeEntry{Range: rng, Services: data})

		switch {
		case ferr != nil:
			label := scraper.ErrorLabel(ferr)
			result.ErrorsByType[label]++
			result.FailedStreets = append(result.FailedStreets, listing)
			o.metrics.IncStreet(label)
			slog.Warn("street without data",
				slog.String("street", display),
				slog.String("category", label),
				slog.Any("error", ferr),
			)
		default:
			o.metrics.IncStreet("ok")
			slog.Debug("street scraped",
				slog.String("street", display),
				slog.String("range", rng.String()),
				slog.Int("services", len(data)),
			)
		}

		if err := o.writer.WriteSnapshot(result.Table); err != nil {
			return result, fmt.Errorf("persist snapshot after %q: %w", listing, err)
		}
	}

	result.Table.Sort()
	result.StreetCount = len(result.Table.Streets)
	if err := o.writer.WriteSnapshot(result.Table); err != nil {
		return result, fmt.Errorf("persist final snapshot: %w", err)
	}
	result.EndTime = time.Now().UTC()
	return result, nil
}

// fetchStreet attempts a street fetch up to MaxAttempts times. Only
// transient failures (connection, timeout) are retried; a page without
// usable content will not change on the next attempt.
func (o *Orchestrator) fetchStreet(ctx context.Context, listing string) (models.ServiceData, int, error) {
	var lastErr error
	retries := 0
	for attempt := 1; attempt <= o.cfg.MaxAttempts; attempt++ {
		data, err := o.fetcher.ServiceDates(ctx, listing)
		if err == nil {
			return data, retries, nil
		}
		lastErr = err
		if !scraper.IsTransient(err) {
			break
		}
		if attempt < o.cfg.MaxAttempts {
			retries++
			o.metrics.IncRetries()
			slog.Debug("retrying street fetch",
				slog.String("street", listing),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
		}
	}
	return nil, retries, lastErr
}
