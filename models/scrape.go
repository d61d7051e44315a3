package models

import "time"

// ScrapeResult holds the overall outcome of a scrape run.
type ScrapeResult struct {
	Table         *AddressTable
	StartTime     time.Time
	EndTime       time.Time
	ListingCount  int
	StreetCount   int
	FailedStreets []string
	ErrorsByType  map[string]int
	RetryCount    int
}
