package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/CodeforKarlsruhe/abfallkalender-scraper/models"
)

// SnapshotWriter persists the address table. WriteSnapshot is called
// after every completed street, so implementations must replace their
// output atomically: a crash mid-run leaves the previous snapshot
// intact.
type SnapshotWriter interface {
	WriteSnapshot(table *models.AddressTable) error
	Close() error
	Validate() error
}

// JSONSnapshotWriter persists the table as an indented JSON document,
// written to a temp file and renamed into place.
type JSONSnapshotWriter struct {
	path string
	mu   sync.Mutex
}

// NewJSONSnapshotWriter prepares a JSON snapshot writer.
func NewJSONSnapshotWriter(path string) (*JSONSnapshotWriter, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return &JSONSnapshotWriter{path: path}, nil
}

// WriteSnapshot replaces the snapshot file with the current table.
func (w *JSONSnapshotWriter) WriteSnapshot(table *models.AddressTable) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.MarshalIndent(table, "", "  ")
	if err != nil {
		return fmt.Errorf("encode table: %w", err)
	}
	return replaceFile(w.path, data)
}

// Close is a no-op; every snapshot is already durable.
func (w *JSONSnapshotWriter) Close() error {
	return nil
}

// Validate ensures a snapshot was written and has content.
func (w *JSONSnapshotWriter) Validate() error {
	return validateFile(w.path, "json snapshot")
}

// CSVExporter persists the table as flat rows
// (street, display_name, range, service, date), one row per collection
// date. Streets without data keep a single row with empty service and
// date columns so their presence can be audited.
type CSVExporter struct {
	path string
	mu   sync.Mutex
}

// NewCSVExporter prepares a CSV exporter.
func NewCSVExporter(path string) (*CSVExporter, error) {
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	return &CSVExporter{path: path}, nil
}

// WriteSnapshot rewrites the CSV file from the current table.
func (w *CSVExporter) WriteSnapshot(table *models.AddressTable) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tmp := w.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	// an aborted rewrite must not leave the temp file behind
	abort := func() {
		f.Close()
		os.Remove(tmp)
	}

	writer := csv.NewWriter(f)
	if err := writer.Write([]string{"street", "display_name", "range", "service", "date"}); err != nil {
		abort()
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, name := range table.SortedNames() {
		rec := table.Streets[name]
		for _, entry := range rec.Entries {
			if len(entry.Services) == 0 {
				row := []string{name, rec.DisplayName, entry.Range.String(), "", ""}
				if err := writer.Write(row); err != nil {
					abort()
					return fmt.Errorf("write csv record: %w", err)
				}
				continue
			}
			services := make([]string, 0, len(entry.Services))
			for service := range entry.Services {
				services = append(services, service)
			}
			sort.Strings(services)
			for _, service := range services {
				for _, date := range entry.Services[service] {
					row := []string{name, rec.DisplayName, entry.Range.String(), service, date}
					if err := writer.Write(row); err != nil {
						abort()
						return fmt.Errorf("write csv record: %w", err)
					}
				}
			}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		abort()
		return fmt.Errorf("flush csv records: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close csv file: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace csv file: %w", err)
	}
	return nil
}

// Close is a no-op; every snapshot is already durable.
func (w *CSVExporter) Close() error {
	return nil
}

// Validate ensures the CSV file has content besides the header.
func (w *CSVExporter) Validate() error {
	return validateFile(w.path, "csv export")
}

func replaceFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func validateFile(path, kind string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat %s: %w", kind, err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("%s is empty", kind)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
