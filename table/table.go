// Package table answers the query side: given a persisted address
// table, resolve a street name and house number to the collection
// dates that apply to that address.
package table

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/CodeforKarlsruhe/abfallkalender-scraper/models"
	"github.com/CodeforKarlsruhe/abfallkalender-scraper/parser"
	"github.com/agnivade/levenshtein"
	lru "github.com/hashicorp/golang-lru/v2"
)

// maxSuggestionDistance bounds how far a street name may be from its
// closest match before no suggestion is offered.
const maxSuggestionDistance = 3

// UnknownStreetError is returned when the queried street is not in the
// table. Suggestion carries the closest known street name, if any is
// plausibly close.
type UnknownStreetError struct {
	Name       string
	Suggestion string
}

func (e *UnknownStreetError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("unknown street %q (did you mean %q?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("unknown street %q", e.Name)
}

// UnknownHouseNumberError is returned when the street is known but no
// published range contains the queried house number.
type UnknownHouseNumberError struct {
	Street string
	Number string
}

func (e *UnknownHouseNumberError) Error() string {
	return fmt.Sprintf("no range on street %q contains house number %q", e.Street, e.Number)
}

// Resolver answers queries against a finalized table. It is safe for
// concurrent readers.
type Resolver struct {
	table *models.AddressTable
	cache *lru.Cache[string, models.ServiceData]
}

// NewResolver wraps a table for querying. cacheSize bounds the number
// of memoized lookups; values below 1 fall back to a small default.
func NewResolver(t *models.AddressTable, cacheSize int) (*Resolver, error) {
	if cacheSize < 1 {
		cacheSize = 128
	}
	cache, err := lru.New[string, models.ServiceData](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create lookup cache: %w", err)
	}
	return &Resolver{table: t, cache: cache}, nil
}

// Resolve finds the service data for a street name and house number.
// The name is normalized and the number tokenized before lookup; the
// street's ranges are scanned in order and the first containing range
// wins. Failures are typed: *models.InvalidHouseNumberError,
// *UnknownStreetError, *UnknownHouseNumberError.
func (r *Resolver) Resolve(street, number string) (models.ServiceData, error) {
	normalized := parser.NormalizeStreetName(street)
	key, err := models.ParseKey(number)
	if err != nil {
		return nil, err
	}

	cacheKey := normalized + "\x00" + key.String()
	if data, ok := r.cache.Get(cacheKey); ok {
		return data, nil
	}

	rec, ok := r.table.Streets[normalized]
	if !ok {
		return nil, &UnknownStreetError{
			Name:       street,
			Suggestion: r.suggest(normalized),
		}
	}

	for _, entry := range rec.Entries {
		if entry.Range.Contains(key) {
			r.cache.Add(cacheKey, entry.Services)
			return entry.Services, nil
		}
	}
	return nil, &UnknownHouseNumberError{Street: street, Number: number}
}

// suggest returns the display name of the street whose normalized form
// is closest to the query, or "" when nothing is close enough.
func (r *Resolver) suggest(normalized string) string {
	best := maxSuggestionDistance + 1
	bestName := ""
	suggestion := ""
	for name, rec := range r.table.Streets {
		d := levenshtein.ComputeDistance(normalized, name)
		if d < best || (d == best && name < bestName) {
			best = d
			bestName = name
			suggestion = rec.DisplayName
		}
	}
	return suggestion
}

// Load reads a table back from a JSON snapshot produced by a prior run.
func Load(path string) (*models.AddressTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var t models.AddressTable
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if t.Streets == nil {
		t.Streets = make(map[string]*models.StreetRecord)
	}
	return &t, nil
}
