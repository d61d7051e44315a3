// Package scraper fetches the city's waste-collection pages: the street
// list and the per-street schedule tables.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/CodeforKarlsruhe/abfallkalender-scraper/config"
	"github.com/CodeforKarlsruhe/abfallkalender-scraper/models"
	"github.com/CodeforKarlsruhe/abfallkalender-scraper/parser"
	"github.com/gocolly/colly/v2"
	"github.com/mozillazg/go-unidecode"
)

// Fetcher wraps the colly collector for the schedule site. Fetches are
// synchronous and sequential; the orchestrator owns retry policy.
type Fetcher struct {
	cfg       *config.Config
	collector *colly.Collector
	Metrics   *Metrics

	handlersOnce sync.Once

	// active visit state; safe without locking because the collector
	// runs synchronously and the fetcher is used from one goroutine
	visit *visitState
}

type visitState struct {
	street   string
	options  []string
	services models.ServiceData
	status   int
	err      error
}

// NewFetcher builds a fetcher configured from cfg.
func NewFetcher(cfg *config.Config) (*Fetcher, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Host),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	return &Fetcher{
		cfg:       cfg,
		collector: collector,
		Metrics:   NewMetrics(),
	}, nil
}

// WithTransport overrides the HTTP transport, used by tests to inject a
// mock round tripper.
func (f *Fetcher) WithTransport(rt http.RoundTripper) {
	f.collector.WithTransport(rt)
}

// StreetList fetches the full list of street listings from the site's
// A-to-Z index page.
func (f *Fetcher) StreetList(ctx context.Context) ([]string, error) {
	st, err := f.visitPage(ctx, "", url.Values{"von": {"A"}, "bis": {"["}})
	if err != nil {
		return nil, err
	}
	if len(st.options) == 0 {
		return nil, fmt.Errorf("street list page had no street options")
	}
	return st.options, nil
}

// ServiceDates fetches one street's schedule page and returns the
// collection dates per service. Network failures come back as
// ErrConnection/ErrTimeout, a page without any usable date as ErrNoDate.
func (f *Fetcher) ServiceDates(ctx context.Context, street string) (models.ServiceData, error) {
	st, err := f.visitPage(ctx, street, url.Values{"strasse": {street}})
	if err != nil {
		return nil, err
	}
	if len(st.services) == 0 {
		return nil, ErrNoDate{Street: street}
	}
	return st.services, nil
}

func (f *Fetcher) visitPage(ctx context.Context, street string, params url.Values) (*visitState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.configureHandlers()

	target, err := f.buildURL(params)
	if err != nil {
		return nil, err
	}

	st := &visitState{street: street, services: models.ServiceData{}}
	f.visit = st
	defer func() { f.visit = nil }()

	start := time.Now()
	visitErr := f.collector.Visit(target)
	f.collector.Wait()
	f.Metrics.ObserveFetch(time.Since(start))

	if st.err != nil {
		f.Metrics.IncError(ErrorLabel(st.err))
		return nil, st.err
	}
	if visitErr != nil {
		classified := classify(visitErr, st.status)
		f.Metrics.IncError(ErrorLabel(classified))
		return nil, classified
	}

	slog.Debug("page fetched",
		slog.String("url", target),
		slog.Int("status", st.status),
		slog.Int("services", len(st.services)),
	)
	return st, nil
}

func (f *Fetcher) buildURL(params url.Values) (string, error) {
	u, err := url.Parse(f.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	q := u.Query()
	for key, values := range params {
		for _, v := range values {
			q.Set(key, v)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (f *Fetcher) configureHandlers() {
	f.handlersOnce.Do(func() {
		f.collector.OnResponse(func(r *colly.Response) {
			if f.visit != nil {
				f.visit.status = r.StatusCode
			}
		})

		f.collector.OnError(func(r *colly.Response, err error) {
			if f.visit == nil {
				return
			}
			status := 0
			if r != nil {
				status = r.StatusCode
			}
			f.visit.err = classify(err, status)
		})

		f.collector.OnHTML(`select[name="strasse"] option`, func(e *colly.HTMLElement) {
			if f.visit == nil {
				return
			}
			text := strings.TrimSpace(e.Text)
			if text != "" {
				f.visit.options = append(f.visit.options, text)
			}
		})

		f.collector.OnHTML("tr", func(e *colly.HTMLElement) {
			if f.visit == nil || f.visit.street == "" {
				return
			}
			cells := e.ChildTexts("td")
			if len(cells) < 2 {
				return
			}
			service := serviceSlug(cells[0])
			if service == "" {
				return
			}
			for _, cell := range cells[1:] {
				date, err := parser.ExtractDate(cell)
				if err != nil {
					continue
				}
				f.visit.services.Add(service, date)
			}
		})
	})
}

func classify(err error, statusCode int) error {
	if statusCode >= http.StatusBadRequest {
		return ErrBadStatus{Status: statusCode}
	}
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return ErrConnection{Err: err}
	}
	return err
}

// serviceSlug turns a schedule-row label such as "Sperrmüllabholung"
// into a stable service identifier.
func serviceSlug(label string) string {
	s := strings.ToLower(unidecode.Unidecode(strings.TrimSpace(label)))
	var b strings.Builder
	prevDash := true
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			prevDash = false
			continue
		}
		if !prevDash {
			b.WriteByte('-')
			prevDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
