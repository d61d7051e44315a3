package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var dateRe = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})\.(\d{4})\b`)

// ExtractDate finds the first thing in s that looks like a German
// calendar date (d.m.yyyy) and actually is one. Candidates that do not
// form a valid date, such as 31.02., are skipped.
func ExtractDate(s string) (time.Time, error) {
	for _, m := range dateRe.FindAllStringSubmatch(s, -1) {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])

		t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
		if t.Day() != day || t.Month() != time.Month(month) || t.Year() != year {
			continue
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("no valid date in %q", s)
}
