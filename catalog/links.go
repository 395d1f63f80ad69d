// Package catalog walks category listings: it discovers categories, resolves
// how many result pages each one has and collects the product links on them.
package catalog

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	productPathPrefix = "/product"
	// Product tiles on listing pages. Links elsewhere on the page are
	// cross-sell or navigation and must not be collected.
	listingTileSelector = "div.pt-flex.pt-flex-col.pt-justify-between"
)

// LinkSet is an unordered, de-duplicated set of absolute product URLs.
type LinkSet map[string]struct{}

// Add inserts link into the set.
func (s LinkSet) Add(link string) {
	s[link] = struct{}{}
}

// Merge adds every link of other into s.
func (s LinkSet) Merge(other LinkSet) {
	for link := range other {
		s[link] = struct{}{}
	}
}

// Equal reports set equality; ordering never matters.
func (s LinkSet) Equal(other LinkSet) bool {
	if len(s) != len(other) {
		return false
	}
	for link := range s {
		if _, ok := other[link]; !ok {
			return false
		}
	}
	return true
}

// Sorted returns the links in lexical order.
func (s LinkSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for link := range s {
		out = append(out, link)
	}
	sort.Strings(out)
	return out
}

// Extractor pulls product links out of listing pages.
type Extractor struct {
	origin *url.URL
}

// NewExtractor builds an extractor that resolves relative links against origin.
func NewExtractor(origin string) (*Extractor, error) {
	parsed, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse site origin: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("site origin must include a host")
	}
	return &Extractor{origin: parsed}, nil
}

// Extract returns the product links found inside listing tiles of doc. A page
// without products yields an empty set.
func (e *Extractor) Extract(doc *goquery.Document) LinkSet {
	links := make(LinkSet)
	if doc == nil {
		return links
	}

	doc.Find(listingTileSelector).Each(func(_ int, tile *goquery.Selection) {
		tile.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
			href, _ := a.Attr("href")
			if !strings.HasPrefix(href, productPathPrefix) {
				return
			}
			ref, err := url.Parse(href)
			if err != nil {
				return
			}
			links.Add(e.origin.ResolveReference(ref).String())
		})
	})
	return links
}

// ExtractHTML parses raw markup and extracts product links from it.
func (e *Extractor) ExtractHTML(html string) LinkSet {
	doc, ok := parseDocument(html)
	if !ok {
		return make(LinkSet)
	}
	return e.Extract(doc)
}

func parseDocument(html string) (*goquery.Document, bool) {
	if strings.TrimSpace(html) == "" {
		return nil, false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, false
	}
	return doc, true
}
