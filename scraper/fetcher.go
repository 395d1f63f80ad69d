package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/gocolly/colly/v2"
)

const (
	ctxStart  = "start"
	ctxBody   = "body"
	ctxStatus = "status"
)

// FetchStats summarises transport activity.
type FetchStats struct {
	Requests     int
	Errors       int
	Retries      int
	FailedURLs   []string
	ErrorsByType map[string]int
}

// Fetcher issues GET requests through a colly collector and hands back the
// raw body. Headers and cookies are fixed at construction.
type Fetcher struct {
	collector *colly.Collector
	headers   http.Header
	retry     retryPolicy
	Metrics   *Metrics

	requestCount int64
	errorCount   int64
	retryCount   int64

	mu           sync.Mutex
	failedURLs   []string
	errorsByType map[string]int
}

// NewFetcher builds a fetcher configured from cfg. Requests are limited to
// the hosts of the catalog, the site origin and the product API.
func NewFetcher(cfg *config.Config, metrics *Metrics) (*Fetcher, error) {
	var hosts []string
	for _, raw := range []string{cfg.BaseURL, cfg.SiteOrigin, cfg.APIBaseURL} {
		parsed, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", raw, err)
		}
		if parsed.Host == "" {
			return nil, fmt.Errorf("url %q must include a host", raw)
		}
		hosts = append(hosts, parsed.Hostname())
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(hosts...),
		colly.AllowURLRevisit(),
		colly.UserAgent(cfg.UserAgent),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.DisableCookies()
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        100,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Parallelism,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	f := &Fetcher{
		collector:    collector,
		headers:      buildHeaders(cfg),
		retry:        retryPolicy{maxRetries: cfg.MaxRetries, base: cfg.RetryBackoff, max: cfg.RetryBackoffMax},
		Metrics:      metrics,
		errorsByType: make(map[string]int),
	}
	f.registerCallbacks()
	return f, nil
}

func buildHeaders(cfg *config.Config) http.Header {
	hdr := make(http.Header, len(cfg.Headers)+2)
	for k, v := range cfg.Headers {
		hdr.Set(k, v)
	}
	hdr.Set("User-Agent", cfg.UserAgent)

	if len(cfg.Cookies) > 0 {
		names := make([]string, 0, len(cfg.Cookies))
		for name := range cfg.Cookies {
			names = append(names, name)
		}
		sort.Strings(names)
		pairs := make([]string, 0, len(names))
		for _, name := range names {
			pairs = append(pairs, name+"="+cfg.Cookies[name])
		}
		hdr.Set("Cookie", strings.Join(pairs, "; "))
	}
	return hdr
}

func (f *Fetcher) registerCallbacks() {
	f.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStart, time.Now())
		current := atomic.AddInt64(&f.requestCount, 1)
		f.Metrics.IncRequest("started")
		if current%50 == 0 {
			slog.Debug("fetch progress",
				slog.Int64("requests", current),
				slog.String("url", r.URL.String()),
			)
		}
	})

	f.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxBody, string(r.Body))
		if start, ok := r.Ctx.GetAny(ctxStart).(time.Time); ok {
			f.Metrics.ObserveDuration(time.Since(start))
		}
		f.Metrics.IncRequest("completed")
	})

	f.collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.Ctx != nil {
			r.Ctx.Put(ctxStatus, r.StatusCode)
		}
	})
}

// Fetch returns the body at rawURL. Any failure (network, non-2xx status,
// timeout, empty body) yields false once retries are spent.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, bool) {
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return "", false
		}

		body, err := f.get(rawURL)
		if err == nil {
			return body, true
		}

		category := errorTypeLabel(err)
		atomic.AddInt64(&f.errorCount, 1)
		f.mu.Lock()
		f.errorsByType[category]++
		f.mu.Unlock()
		f.Metrics.IncError(category)

		if attempt >= f.retry.maxRetries || !retriable(err) {
			slog.Debug("fetch failed",
				slog.String("url", rawURL),
				slog.String("category", category),
				slog.Int("attempts", attempt+1),
				slog.Any("error", err),
			)
			f.mu.Lock()
			f.failedURLs = append(f.failedURLs, rawURL)
			f.mu.Unlock()
			return "", false
		}

		atomic.AddInt64(&f.retryCount, 1)
		f.Metrics.IncRetries()
		timer := time.NewTimer(f.retry.backoff(attempt + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", false
		case <-timer.C:
		}
	}
}

func (f *Fetcher) get(rawURL string) (string, error) {
	cctx := colly.NewContext()
	err := f.collector.Request(http.MethodGet, rawURL, nil, cctx, f.headers.Clone())
	if err != nil {
		status, _ := cctx.GetAny(ctxStatus).(int)
		return "", classifyError(err, status)
	}
	body, _ := cctx.GetAny(ctxBody).(string)
	if strings.TrimSpace(body) == "" {
		return "", errEmptyBody
	}
	return body, nil
}

// Stats returns a snapshot of transport counters.
func (f *Fetcher) Stats() FetchStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	failed := make([]string, len(f.failedURLs))
	copy(failed, f.failedURLs)
	byType := make(map[string]int, len(f.errorsByType))
	for k, v := range f.errorsByType {
		byType[k] = v
	}
	return FetchStats{
		Requests:     int(atomic.LoadInt64(&f.requestCount)),
		Errors:       int(atomic.LoadInt64(&f.errorCount)),
		Retries:      int(atomic.LoadInt64(&f.retryCount)),
		FailedURLs:   failed,
		ErrorsByType: byType,
	}
}

func classifyError(err error, statusCode int) error {
	if err == nil && statusCode == 0 {
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

	if statusCode != 0 {
		wrapped := err
		if wrapped == nil {
			wrapped = fmt.Errorf("http status %d", statusCode)
		}
		switch {
		case statusCode == http.StatusForbidden:
			return ErrForbidden{Err: wrapped}
		case statusCode == http.StatusNotFound:
			return ErrNotFound{Err: wrapped}
		case statusCode == http.StatusTooManyRequests:
			return ErrRateLimited{Err: wrapped}
		case statusCode >= http.StatusInternalServerError:
			return ErrServer{Status: statusCode, Err: wrapped}
		}
	}

	if err == nil {
		return nil
	}
	return err
}

// retryPolicy is the transport's exponential backoff.
type retryPolicy struct {
	maxRetries int
	base       time.Duration
	max        time.Duration
}

func (rp retryPolicy) backoff(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}

	base := rp.base
	if base <= 0 {
		base = 100 * time.Millisecond
	}

	delay := base * time.Duration(1<<(attempt-1))
	if rp.max > 0 && delay > rp.max {
		delay = rp.max
	}
	return delay
}
