package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// RangeKind discriminates the published house-number restrictions.
type RangeKind int

const (
	// RangeAll matches every house number. It is produced for listings
	// that carry no numeric suffix at all. Note that the source data is
	// ambiguous here: a listing without a range may in fact stand for a
	// single parity class (odd or even side of the street), but the
	// published pages give no way to tell, so "no restriction" is kept
	// as the recorded behavior.
	RangeAll RangeKind = iota
	// RangeExact matches a single key.
	RangeExact
	// RangeBounded matches keys between Low and High that share the
	// parity of Low's leading integer.
	RangeBounded
)

// AddressRange is a published restriction on which house numbers a
// schedule entry applies to.
type AddressRange struct {
	Kind RangeKind
	Low  Key
	High Key
}

// AllRange builds the unrestricted range.
func AllRange() AddressRange {
	return AddressRange{Kind: RangeAll}
}

// ExactRange builds a single-value range.
func ExactRange(k Key) AddressRange {
	return AddressRange{Kind: RangeExact, Low: k, High: k}
}

// BoundedRange builds a two-endpoint range.
func BoundedRange(low, high Key) AddressRange {
	return AddressRange{Kind: RangeBounded, Low: low, High: high}
}

// Contains reports whether the key falls inside the range. For bounded
// ranges the key must share the parity of the lower endpoint's leading
// integer; keys or lower endpoints without a leading integer (letter
// runs, the open-end sentinel) never match a bounded range.
func (r AddressRange) Contains(k Key) bool {
	switch r.Kind {
	case RangeAll:
		return true
	case RangeExact:
		return k.Compare(r.Low) == 0
	case RangeBounded:
		keyEven, ok := k.Parity()
		if !ok {
			return false
		}
		lowEven, ok := r.Low.Parity()
		if !ok {
			return false
		}
		if keyEven != lowEven {
			return false
		}
		return r.Low.Compare(k) <= 0 && k.Compare(r.High) <= 0
	}
	return false
}

// sortLow and sortHigh give every range kind a position in the sort
// order: the unrestricted range behaves like 0-Ende.
func (r AddressRange) sortLow() Key {
	if r.Kind == RangeAll {
		return Key{NumberToken(0)}
	}
	return r.Low
}

func (r AddressRange) sortHigh() Key {
	if r.Kind == RangeAll {
		return Key{OpenEndToken()}
	}
	return r.High
}

// Compare orders ranges by lower endpoint, then upper endpoint. The
// order is used only to make persisted tables deterministic; overlapping
// ranges tie and keep their discovery order under a stable sort.
func (r AddressRange) Compare(o AddressRange) int {
	if c := r.sortLow().Compare(o.sortLow()); c != 0 {
		return c
	}
	return r.sortHigh().Compare(o.sortHigh())
}

// String renders the range in listing form: "*" for unrestricted,
// "12A" for exact, "12-18" for bounded.
func (r AddressRange) String() string {
	switch r.Kind {
	case RangeAll:
		return "*"
	case RangeExact:
		return r.Low.String()
	default:
		return fmt.Sprintf("%s-%s", r.Low, r.High)
	}
}

// MarshalJSON serializes the range as null (unrestricted), a single
// key, or a pair of keys.
func (r AddressRange) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RangeAll:
		return []byte("null"), nil
	case RangeExact:
		return json.Marshal([]string{r.Low.String()})
	default:
		return json.Marshal([]string{r.Low.String(), r.High.String()})
	}
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (r *AddressRange) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = AllRange()
		return nil
	}
	var endpoints []string
	if err := json.Unmarshal(data, &endpoints); err != nil {
		return err
	}
	keys := make([]Key, 0, len(endpoints))
	for _, e := range endpoints {
		k, err := ParseKey(e)
		if err != nil {
			return err
		}
		keys = append(keys, k)
	}
	switch len(keys) {
	case 1:
		*r = ExactRange(keys[0])
	case 2:
		*r = BoundedRange(keys[0], keys[1])
	default:
		return fmt.Errorf("address range must have 1 or 2 endpoints, got %d", len(keys))
	}
	return nil
}

// ServiceData maps a service identifier (e.g. "sperrmullabholung") to
// its collection dates in ISO-8601 form. A nil map records a street
// whose fetch yielded no usable data.
type ServiceData map[string][]string

// Add records a collection date for a service, keeping the date list
// sorted and free of duplicates.
func (d ServiceData) Add(service string, date time.Time) {
	iso := date.Format(time.DateOnly)
	dates := d[service]
	i := sort.SearchStrings(dates, iso)
	if i < len(dates) && dates[i] == iso {
		return
	}
	dates = append(dates, "")
	copy(dates[i+1:], dates[i:])
	dates[i] = iso
	d[service] = dates
}

// RangeEntry pairs an address range with the service data scraped for
// the listing that produced it.
type RangeEntry struct {
	Range    AddressRange `json:"range"`
	Services ServiceData  `json:"services,omitempty"`
}

// StreetRecord collects every entry discovered for one street. A street
// may appear multiple times in the source list, each occurrence with
// its own range.
type StreetRecord struct {
	DisplayName string       `json:"display_name"`
	Entries     []RangeEntry `json:"entries"`
}

// AddressTable is the aggregated, queryable structure: normalized
// street name to street record. It is owned exclusively by the
// orchestrator while being built and read-only afterwards.
type AddressTable struct {
	Streets   map[string]*StreetRecord `json:"streets"`
	ScrapedAt time.Time                `json:"scraped_at"`
}

// NewAddressTable returns an empty table stamped with the current time.
func NewAddressTable() *AddressTable {
	return &AddressTable{
		Streets:   make(map[string]*StreetRecord),
		ScrapedAt: time.Now().UTC(),
	}
}

// Record returns the street record for a normalized name, creating it
// if the street has not been seen yet. Streets are registered before
// their data is fetched so that a failed fetch still leaves an
// auditable, empty record.
func (t *AddressTable) Record(normalized, display string) *StreetRecord {
	rec, ok := t.Streets[normalized]
	if !ok {
		rec = &StreetRecord{DisplayName: display}
		t.Streets[normalized] = rec
	}
	return rec
}

// SortedNames returns the normalized street names in sorted order.
func (t *AddressTable) SortedNames() []string {
	names := make([]string, 0, len(t.Streets))
	for name := range t.Streets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sort orders every street's entries by range. The sort is stable, so
// entries with equal ranges keep their discovery order.
func (t *AddressTable) Sort() {
	for _, rec := range t.Streets {
		entries := rec.Entries
		sort.SliceStable(entries, func(i, j int) bool {
			return entries[i].Range.Compare(entries[j].Range) < 0
		})
	}
}
