package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/CodeforKarlsruhe/abfallkalender-scraper/config"
	"github.com/CodeforKarlsruhe/abfallkalender-scraper/models"
	"github.com/CodeforKarlsruhe/abfallkalender-scraper/scraper"
)

type scriptedFetcher struct {
	mu       sync.Mutex
	calls    map[string]int
	script   map[string][]fetchStep
	fallback models.ServiceData
}

type fetchStep struct {
	data models.ServiceData
	err  error
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		calls:    make(map[string]int),
		script:   make(map[string][]fetchStep),
		fallback: models.ServiceData{"restmuell": {"2024-01-02"}},
	}
}

func (f *scriptedFetcher) on(street string, steps ...fetchStep) {
	f.script[street] = steps
}

func (f *scriptedFetcher) ServiceDates(_ context.Context, street string) (models.ServiceData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.calls[street]
	f.calls[street] = n + 1
	steps, ok := f.script[street]
	if !ok {
		return f.fallback, nil
	}
	if n >= len(steps) {
		n = len(steps) - 1
	}
	return steps[n].data, steps[n].err
}

func (f *scriptedFetcher) callCount(street string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[street]
}

type snapshotRecorder struct {
	mu        sync.Mutex
	snapshots int
}

func (w *snapshotRecorder) WriteSnapshot(table *models.AddressTable) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snapshots++
	return nil
}

func (w *snapshotRecorder) Close() error    { return nil }
func (w *snapshotRecorder) Validate() error { return nil }

func (w *snapshotRecorder) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snapshots
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.MaxAttempts = 3
	return cfg
}

func TestRunTransientFailureRetried(t *testing.T) {
	fetcher := newScriptedFetcher()
	success := models.ServiceData{"sperrmuellabholung": {"2024-05-03"}}
	fetcher.on("Schlossplatz 12-18",
		fetchStep{err: scraper.ErrConnection{Err: errors.New("connection refused")}},
		fetchStep{err: scraper.ErrConnection{Err: errors.New("connection refused")}},
		fetchStep{data: success},
	)

	writer := &snapshotRecorder{}
	o := NewOrchestrator(testConfig(), fetcher, writer, nil)

	result, err := o.Run(context.Background(), []string{"Schlossplatz 12-18"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := fetcher.callCount("Schlossplatz 12-18"); got != 3 {
		t.Errorf("call count = %d, want 3", got)
	}
	if result.RetryCount != 2 {
		t.Errorf("retry count = %d, want 2", result.RetryCount)
	}
	if len(result.FailedStreets) != 0 {
		t.Errorf("earlier transient failures must not surface: %v", result.FailedStreets)
	}

	rec := result.Table.Streets["schlossplatz"]
	if rec == nil || len(rec.Entries) != 1 {
		t.Fatalf("unexpected table contents: %+v", result.Table.Streets)
	}
	if rec.Entries[0].Services["sperrmuellabholung"][0] != "2024-05-03" {
		t.Errorf("successful third attempt not recorded: %v", rec.Entries[0].Services)
	}
}

func TestRunTransientFailureExhausted(t *testing.T) {
	fetcher := newScriptedFetcher()
	fetcher.on("Schlossplatz 12-18",
		fetchStep{err: scraper.ErrConnection{Err: errors.New("connection refused")}},
	)

	writer := &snapshotRecorder{}
	o := NewOrchestrator(testConfig(), fetcher, writer, nil)

	result, err := o.Run(context.Background(), []string{"Schlossplatz 12-18", "Kaiserallee"})
	if err != nil {
		t.Fatalf("a failing street must not abort the run: %v", err)
	}

	if got := fetcher.callCount("Schlossplatz 12-18"); got != 3 {
		t.Errorf("call count = %d, want MaxAttempts (3)", got)
	}
	if len(result.FailedStreets) != 1 {
		t.Errorf("failed streets = %v, want one entry", result.FailedStreets)
	}
	if result.ErrorsByType["connection"] != 1 {
		t.Errorf("errors by type = %v", result.ErrorsByType)
	}

	// the failed street is still present, with an empty record
	rec := result.Table.Streets["schlossplatz"]
	if rec == nil || len(rec.Entries) != 1 {
		t.Fatalf("failed street missing from table: %+v", result.Table.Streets)
	}
	if rec.Entries[0].Services != nil {
		t.Errorf("failed street should have no service data: %v", rec.Entries[0].Services)
	}
	if result.Table.Streets["kaiserallee"] == nil {
		t.Errorf("run should continue past the failing street")
	}
}

func TestRunContentFailureNotRetried(t *testing.T) {
	fetcher := newScriptedFetcher()
	fetcher.on("Leerstrasse", fetchStep{err: scraper.ErrNoDate{Street: "Leerstrasse"}})

	writer := &snapshotRecorder{}
	o := NewOrchestrator(testConfig(), fetcher, writer, nil)

	result, err := o.Run(context.Background(), []string{"Leerstrasse"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := fetcher.callCount("Leerstrasse"); got != 1 {
		t.Errorf("content failures must not be retried, got %d calls", got)
	}
	if result.RetryCount != 0 {
		t.Errorf("retry count = %d, want 0", result.RetryCount)
	}
	if result.ErrorsByType["no_date"] != 1 {
		t.Errorf("errors by type = %v", result.ErrorsByType)
	}
}

func TestRunPersistsAfterEachStreet(t *testing.T) {
	fetcher := newScriptedFetcher()
	writer := &snapshotRecorder{}
	o := NewOrchestrator(testConfig(), fetcher, writer, nil)

	listings := []string{"Schlossplatz 12-18", "Kaiserallee 50-Ende", "Alter Brauhof"}
	if _, err := o.Run(context.Background(), listings); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// one snapshot per street plus the final sorted flush
	if got := writer.count(); got != len(listings)+1 {
		t.Errorf("snapshot count = %d, want %d", got, len(listings)+1)
	}
}

func TestRunRepeatedStreetAccumulatesRanges(t *testing.T) {
	fetcher := newScriptedFetcher()
	writer := &snapshotRecorder{}
	o := NewOrchestrator(testConfig(), fetcher, writer, nil)

	listings := []string{"Kaiserallee 2-48", "Kaiserallee 50-Ende"}
	result, err := o.Run(context.Background(), listings)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	rec := result.Table.Streets["kaiserallee"]
	if rec == nil {
		t.Fatalf("street missing: %+v", result.Table.Streets)
	}
	if len(rec.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(rec.Entries))
	}
	if rec.Entries[0].Range.String() != "2-48" || rec.Entries[1].Range.String() != "50-Ende" {
		t.Errorf("ranges not sorted: %s, %s", rec.Entries[0].Range, rec.Entries[1].Range)
	}
}

func TestRunUnparseableListingKeptVisible(t *testing.T) {
	fetcher := newScriptedFetcher()
	writer := &snapshotRecorder{}
	o := NewOrchestrator(testConfig(), fetcher, writer, nil)

	result, err := o.Run(context.Background(), []string{"Kaiserallee 50-"})
	if err != nil {
		t.Fatalf("a bad listing must not abort the run: %v", err)
	}
	rec := result.Table.Streets["kaiserallee"]
	if rec == nil || len(rec.Entries) != 1 {
		t.Fatalf("street with bad range missing: %+v", result.Table.Streets)
	}
	if rec.Entries[0].Range.Kind != models.RangeAll {
		t.Errorf("bad range should degrade to unrestricted, got %s", rec.Entries[0].Range)
	}
}

func TestRunCancelledContext(t *testing.T) {
	fetcher := newScriptedFetcher()
	writer := &snapshotRecorder{}
	o := NewOrchestrator(testConfig(), fetcher, writer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, []string{"Schlossplatz 12-18"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := fetcher.callCount("Schlossplatz 12-18"); got != 0 {
		t.Errorf("no fetch should happen after cancellation, got %d", got)
	}
}
