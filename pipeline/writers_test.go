package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/CodeforKarlsruhe/abfallkalender-scraper/models"
)

func sampleTable(t *testing.T) *models.AddressTable {
	t.Helper()

	low, err := models.ParseKey("12")
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}
	high, err := models.ParseKey("18")
	if err != nil {
		t.Fatalf("ParseKey: %v", err)
	}

	tbl := models.NewAddressTable()
	rec := tbl.Record("schlossplatz", "Schlossplatz")
	rec.Entries = append(rec.Entries, models.RangeEntry{
		Range:    models.BoundedRange(low, high),
		Services: models.ServiceData{"sperrmuellabholung": {"2024-05-03"}},
	})
	rec = tbl.Record("leerstrasse", "Leerstraße")
	rec.Entries = append(rec.Entries, models.RangeEntry{Range: models.AllRange()})
	return tbl
}

func TestJSONSnapshotWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "snapshot.json")
	w, err := NewJSONSnapshotWriter(path)
	if err != nil {
		t.Fatalf("NewJSONSnapshotWriter: %v", err)
	}

	tbl := sampleTable(t)
	if err := w.WriteSnapshot(tbl); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	// a second snapshot replaces the first
	if err := w.WriteSnapshot(tbl); err != nil {
		t.Fatalf("WriteSnapshot (rewrite): %v", err)
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	var back models.AddressTable
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("snapshot is not valid JSON: %v", err)
	}
	if len(back.Streets) != 2 {
		t.Errorf("streets = %d, want 2", len(back.Streets))
	}
	if back.Streets["schlossplatz"].Entries[0].Range.String() != "12-18" {
		t.Errorf("range did not survive the round trip: %+v", back.Streets["schlossplatz"])
	}

	// no temp file left behind
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file still present: %v", err)
	}
}

func TestJSONSnapshotWriterValidateEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshot.json")
	w, err := NewJSONSnapshotWriter(path)
	if err != nil {
		t.Fatalf("NewJSONSnapshotWriter: %v", err)
	}
	if err := w.Validate(); err == nil {
		t.Errorf("Validate should fail before any snapshot was written")
	}
}

func TestCSVExporter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.csv")
	w, err := NewCSVExporter(path)
	if err != nil {
		t.Fatalf("NewCSVExporter: %v", err)
	}

	if err := w.WriteSnapshot(sampleTable(t)); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	// header + one data row + one empty-street audit row
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3: %v", len(rows), rows)
	}
	if rows[0][0] != "street" {
		t.Errorf("missing header: %v", rows[0])
	}
	// streets are emitted in sorted normalized order
	if rows[1][0] != "leerstrasse" || rows[1][3] != "" {
		t.Errorf("audit row for empty street wrong: %v", rows[1])
	}
	if rows[2][0] != "schlossplatz" || rows[2][2] != "12-18" || rows[2][4] != "2024-05-03" {
		t.Errorf("data row wrong: %v", rows[2])
	}
}

func TestCSVExporterFailedRewriteLeavesNoTempFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.csv")
	// a directory at the target path makes the final rename fail
	if err := os.Mkdir(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	w, err := NewCSVExporter(path)
	if err != nil {
		t.Fatalf("NewCSVExporter: %v", err)
	}
	if err := w.WriteSnapshot(sampleTable(t)); err == nil {
		t.Fatalf("WriteSnapshot should fail when the target cannot be replaced")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file still present after failed rewrite: %v", err)
	}
}

func TestDualWriter(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "table.json")
	csvPath := filepath.Join(dir, "table.csv")

	w, err := NewDualWriter(jsonPath, csvPath)
	if err != nil {
		t.Fatalf("NewDualWriter: %v", err)
	}
	if err := w.WriteSnapshot(sampleTable(t)); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	for _, p := range []string{jsonPath, csvPath} {
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if info.Size() == 0 {
			t.Errorf("%s is empty", p)
		}
	}
}
