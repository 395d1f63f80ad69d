package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// PageURL returns the URL of result page index of categoryURL.
func PageURL(categoryURL string, index int) string {
	sep := "?"
	if strings.Contains(categoryURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sp=%d", categoryURL, sep, index)
}

// Collection is the outcome of walking every page of a category.
type Collection struct {
	Pages       []string
	FailedPages []string
	Products    LinkSet
}

// Traversal enumerates category pages and the products on them.
type Traversal struct {
	fetcher   Fetcher
	extractor *Extractor
	resolver  *Resolver
}

// NewTraversal builds a traversal over fetcher.
func NewTraversal(fetcher Fetcher, extractor *Extractor, resolver *Resolver) *Traversal {
	return &Traversal{
		fetcher:   fetcher,
		extractor: extractor,
		resolver:  resolver,
	}
}

// PageURLs returns categoryURL?p=0 .. p=count-1.
func (t *Traversal) PageURLs(ctx context.Context, categoryURL string) []string {
	count := t.resolver.PageCount(ctx, categoryURL)
	pages := make([]string, 0, count)
	for i := 0; i < count; i++ {
		pages = append(pages, PageURL(categoryURL, i))
	}
	return pages
}

// ProductURLs returns the union of product links across every page.
func (t *Traversal) ProductURLs(ctx context.Context, categoryURL string) LinkSet {
	return t.Collect(ctx, categoryURL).Products
}

// Collect fetches every page of categoryURL. A page that fails to fetch
// contributes nothing and does not stop the walk.
func (t *Traversal) Collect(ctx context.Context, categoryURL string) Collection {
	pages := t.PageURLs(ctx, categoryURL)
	out := Collection{
		Pages:    pages,
		Products: make(LinkSet),
	}

	for _, page := range pages {
		if ctx.Err() != nil {
			break
		}
		html, ok := t.fetcher.Fetch(ctx, page)
		if !ok {
			out.FailedPages = append(out.FailedPages, page)
			continue
		}
		links := t.extractor.ExtractHTML(html)
		out.Products.Merge(links)
		slog.Debug("collected page",
			slog.String("page", page),
			slog.Int("products", len(links)),
		)
	}

	slog.Info("category collected",
		slog.String("category", categoryURL),
		slog.Int("pages", len(pages)),
		slog.Int("products", len(out.Products)),
		slog.Int("failed_pages", len(out.FailedPages)),
	)
	return out
}
