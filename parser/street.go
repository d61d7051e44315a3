// Package parser turns the raw strings published by the city site into
// the typed address model: street listings, house-number keys, street
// lookup names, and German calendar dates.
package parser

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/CodeforKarlsruhe/abfallkalender-scraper/models"
	"github.com/mozillazg/go-unidecode"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// trailing "str" abbreviation, matched after diacritic folding,
// lower-casing, and punctuation stripping (the "str." form loses its
// dot to the stripping step)
var trailingStrRe = regexp.MustCompile(`str$`)

// NormalizeStreetName canonicalizes a street name into the lookup key
// used by the address table: surrounding whitespace is trimmed,
// diacritics are folded away, the result is lower-cased, every
// character that is not a letter, digit, or underscore is stripped,
// and a trailing "str"/"str." abbreviation is expanded to "strasse".
// The function is idempotent. Punctuation is stripped before the
// abbreviation expands, so "Akademiestr," collapses to "akademiestr"
// and expands the same way "Akademiestr." does.
func NormalizeStreetName(name string) string {
	s := strings.TrimSpace(name)
	s = unidecode.Unidecode(s)
	s = strings.ToLower(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}
		return -1
	}, s)
	return trailingStrRe.ReplaceAllString(s, "strasse")
}

// ParseListing splits a raw street listing such as "Schlossplatz 12-18"
// into its title-cased display name and the house-number range the
// listing applies to. A listing without any digit yields the
// unrestricted range. The numeric suffix is split on "-": one segment
// gives an exact range, two give a bounded range. Suffixes with more
// than two segments collapse to their outermost pair.
func ParseListing(listing string) (display string, rng models.AddressRange, err error) {
	// a Caser keeps internal state, so build one per call
	caser := cases.Title(language.German)

	idx := strings.IndexFunc(listing, unicode.IsDigit)
	if idx < 0 {
		return caser.String(strings.TrimSpace(listing)), models.AllRange(), nil
	}

	display = caser.String(strings.TrimSpace(listing[:idx]))
	segments := strings.Split(listing[idx:], "-")

	keys := make([]models.Key, 0, len(segments))
	for _, seg := range segments {
		key, kerr := models.ParseKey(seg)
		if kerr != nil {
			return display, models.AddressRange{}, fmt.Errorf("listing %q: %w", listing, kerr)
		}
		keys = append(keys, key)
	}

	if len(keys) == 1 {
		return display, models.ExactRange(keys[0]), nil
	}
	return display, models.BoundedRange(keys[0], keys[len(keys)-1]), nil
}
