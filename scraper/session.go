package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/catalog"
	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/aluiziolira/go-scrape-catalog/parser"
)

// ProductSink receives normalized products.
type ProductSink interface {
	Process(products ...*models.Product) error
}

// Failure reasons reported per product.
const (
	reasonNoProductID    = "no_product_id"
	reasonAPIUnavailable = "api_unavailable"
	reasonMalformed      = "malformed_payload"
	reasonBadState       = "unsuccessful_state"
	reasonNoProduct      = "missing_product"
	reasonSink           = "sink_rejected"
)

// Session crawls the catalog: root page, categories, pages, products.
type Session struct {
	cfg        *config.Config
	base       *url.URL
	fetcher    catalog.Fetcher
	traversal  *catalog.Traversal
	normalizer *parser.Normalizer
	metrics    *Metrics

	categories   int64
	pages        int64
	productLinks int64
	normalized   int64

	mu         sync.Mutex
	failures   map[string]int
	failedURLs []string
}

// NewSession wires the catalog walkers and the normalizer on top of fetcher.
func NewSession(cfg *config.Config, fetcher catalog.Fetcher, metrics *Metrics) (*Session, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	extractor, err := catalog.NewExtractor(cfg.SiteOrigin)
	if err != nil {
		return nil, err
	}

	resolver := catalog.NewResolver(fetcher, extractor, cfg.MaxPageIndex)
	resolver.OnProbe = func(o catalog.ProbeOutcome) {
		metrics.IncProbe(o.String())
	}

	return &Session{
		cfg:        cfg,
		base:       base,
		fetcher:    fetcher,
		traversal:  catalog.NewTraversal(fetcher, extractor, resolver),
		normalizer: parser.NewNormalizer(cfg.APISuccessCode),
		metrics:    metrics,
		failures:   make(map[string]int),
	}, nil
}

// Run crawls every category reachable from the catalog root and streams the
// normalized products into sink. Failures of single categories or products
// are counted and skipped; only an unreachable catalog root fails the run.
func (s *Session) Run(ctx context.Context, sink ProductSink) (*models.CrawlResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	root, ok := s.fetcher.Fetch(ctx, s.cfg.BaseURL)
	if !ok {
		return nil, fmt.Errorf("catalog root %s unavailable", s.cfg.BaseURL)
	}
	categories := catalog.ExtractCategories(root, s.base)
	if s.cfg.MaxCategories > 0 && len(categories) > s.cfg.MaxCategories {
		categories = categories[:s.cfg.MaxCategories]
	}
	slog.Info("categories discovered", slog.Int("categories", len(categories)))

	categoryCh := make(chan string)
	linkCh := make(chan string, s.cfg.ProductWorkers*4)

	var categoryWG sync.WaitGroup
	for i := 0; i < s.cfg.CategoryWorkers; i++ {
		categoryWG.Add(1)
		go func() {
			defer categoryWG.Done()
			for category := range categoryCh {
				s.crawlCategory(ctx, category, linkCh)
			}
		}()
	}

	var productWG sync.WaitGroup
	for i := 0; i < s.cfg.ProductWorkers; i++ {
		productWG.Add(1)
		go func() {
			defer productWG.Done()
			for link := range linkCh {
				s.crawlProduct(ctx, link, sink)
			}
		}()
	}

feed:
	for _, category := range categories {
		select {
		case <-ctx.Done():
			break feed
		case categoryCh <- category:
		}
	}
	close(categoryCh)
	categoryWG.Wait()
	close(linkCh)
	productWG.Wait()

	return s.result(start), nil
}

func (s *Session) crawlCategory(ctx context.Context, category string, out chan<- string) {
	s.metrics.CategoryStarted()
	defer s.metrics.CategoryDone()

	col := s.traversal.Collect(ctx, category)
	atomic.AddInt64(&s.categories, 1)
	atomic.AddInt64(&s.pages, int64(len(col.Pages)))
	atomic.AddInt64(&s.productLinks, int64(len(col.Products)))
	s.metrics.ObservePages(len(col.Pages))

	for _, link := range col.Products.Sorted() {
		select {
		case <-ctx.Done():
			return
		case out <- link:
		}
	}
}

func (s *Session) crawlProduct(ctx context.Context, link string, sink ProductSink) {
	if ctx.Err() != nil {
		return
	}

	id, err := catalog.ProductID(link)
	if err != nil {
		s.fail(reasonNoProductID, link, err)
		return
	}

	payload, ok := s.fetcher.Fetch(ctx, s.apiURL(id))
	if !ok {
		s.fail(reasonAPIUnavailable, link, nil)
		return
	}

	product, err := s.normalizer.Normalize(id, link, []byte(payload))
	if err != nil {
		s.fail(normalizeReason(err), link, err)
		return
	}

	atomic.AddInt64(&s.normalized, 1)
	s.metrics.IncProduct("normalized")
	if err := sink.Process(product); err != nil {
		s.fail(reasonSink, link, err)
	}
}

// apiURL returns <api base>/<id>?city_code=..&client_id=..
func (s *Session) apiURL(id string) string {
	q := url.Values{}
	q.Set("city_code", s.cfg.APICityCode)
	q.Set("client_id", s.cfg.APIClientID)
	return s.cfg.APIBaseURL + "/" + id + "?" + q.Encode()
}

func normalizeReason(err error) string {
	switch {
	case errors.Is(err, parser.ErrMalformedPayload):
		return reasonMalformed
	case errors.Is(err, parser.ErrUnsuccessfulState):
		return reasonBadState
	case errors.Is(err, parser.ErrMissingProduct):
		return reasonNoProduct
	default:
		return "other"
	}
}

func (s *Session) fail(reason, link string, err error) {
	s.mu.Lock()
	s.failures[reason]++
	s.failedURLs = append(s.failedURLs, link)
	s.mu.Unlock()

	s.metrics.IncProduct(reason)
	attrs := []any{slog.String("url", link), slog.String("reason", reason)}
	if err != nil {
		attrs = append(attrs, slog.Any("error", err))
	}
	slog.Warn("product skipped", attrs...)
}

func (s *Session) result(start time.Time) *models.CrawlResult {
	s.mu.Lock()
	failures := make(map[string]int, len(s.failures))
	for k, v := range s.failures {
		failures[k] = v
	}
	failed := make([]string, len(s.failedURLs))
	copy(failed, s.failedURLs)
	s.mu.Unlock()

	result := &models.CrawlResult{
		StartTime:          start,
		EndTime:            time.Now(),
		Categories:         int(atomic.LoadInt64(&s.categories)),
		Pages:              int(atomic.LoadInt64(&s.pages)),
		ProductLinks:       int(atomic.LoadInt64(&s.productLinks)),
		ProductsNormalized: int(atomic.LoadInt64(&s.normalized)),
		FailedURLs:         failed,
		FailuresByReason:   failures,
	}
	if f, ok := s.fetcher.(interface{ Stats() FetchStats }); ok {
		stats := f.Stats()
		result.RequestCount = stats.Requests
		result.RetryCount = stats.Retries
		result.ErrorCount = stats.Errors
	}
	return result
}
