// Package config holds the scraper configuration and its validation.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds scraper and query configuration.
type Config struct {
	BaseURL      string
	MaxAttempts  int
	Timeout      time.Duration
	Delay        time.Duration
	OutputFile   string
	OutputFormat string // json, csv, or dual
	UserAgent    string
	MetricsAddr  string
	CacheSize    int
	Verbose      bool
}

// DefaultConfig returns conservative defaults for the city's schedule
// site.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:      "http://web3.karlsruhe.de/service/abfall/akal/akal.php",
		MaxAttempts:  3,
		Timeout:      10 * time.Second,
		Delay:        0,
		OutputFile:   "output/abfallkalender.json",
		OutputFormat: "json",
		UserAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/117.0.0.0 Safari/537.36",
		MetricsAddr:  "",
		CacheSize:    512,
		Verbose:      false,
	}
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}

	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}

	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be at least 1")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "json" && c.OutputFormat != "csv" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be json, csv, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}
	if c.CacheSize < 1 {
		return fmt.Errorf("cache size must be at least 1")
	}

	return nil
}

// EnvString reads a string environment variable. ok is false when the
// variable is unset or empty.
func EnvString(name string) (value string, ok bool) {
	v := os.Getenv(name)
	if v == "" {
		return "", false
	}
	return v, true
}

// EnvInt reads an integer environment variable.
func EnvInt(name string) (value int, ok bool, err error) {
	v, ok := EnvString(name)
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", name, err)
	}
	return n, true, nil
}

// EnvDuration reads a duration environment variable in Go duration
// syntax, e.g. "500ms" or "10s".
func EnvDuration(name string) (value time.Duration, ok bool, err error) {
	v, ok := EnvString(name)
	if !ok {
		return 0, false, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", name, err)
	}
	return d, true, nil
}
