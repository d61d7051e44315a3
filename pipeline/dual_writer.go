package pipeline

import (
	"fmt"
	"sync"

	"github.com/CodeforKarlsruhe/abfallkalender-scraper/models"
)

// DualWriter persists snapshots to both the JSON and the CSV output.
type DualWriter struct {
	json *JSONSnapshotWriter
	csv  *CSVExporter
	mu   sync.Mutex
}

// NewDualWriter creates a writer for both output formats.
func NewDualWriter(jsonPath, csvPath string) (*DualWriter, error) {
	jsonWriter, err := NewJSONSnapshotWriter(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("create json writer: %w", err)
	}
	csvWriter, err := NewCSVExporter(csvPath)
	if err != nil {
		return nil, fmt.Errorf("create csv writer: %w", err)
	}
	return &DualWriter{json: jsonWriter, csv: csvWriter}, nil
}

// WriteSnapshot flushes the table to both outputs.
func (dw *DualWriter) WriteSnapshot(table *models.AddressTable) error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	if err := dw.json.WriteSnapshot(table); err != nil {
		return fmt.Errorf("json snapshot: %w", err)
	}
	if err := dw.csv.WriteSnapshot(table); err != nil {
		return fmt.Errorf("csv snapshot: %w", err)
	}
	return nil
}

// Close closes both writers.
func (dw *DualWriter) Close() error {
	dw.mu.Lock()
	defer dw.mu.Unlock()

	var errs []error
	if err := dw.json.Close(); err != nil {
		errs = append(errs, fmt.Errorf("json close: %w", err))
	}
	if err := dw.csv.Close(); err != nil {
		errs = append(errs, fmt.Errorf("csv close: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("multiple errors: %v", errs)
	}
	return nil
}

// Validate validates both output files.
func (dw *DualWriter) Validate() error {
	var errs []error
	if err := dw.json.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := dw.csv.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation errors: %v", errs)
	}
	return nil
}
