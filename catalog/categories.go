package catalog

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	categoryLinkSelector = "section.pt-row.pt-gutter-lg-xlg p a[href]"
	catalogPathPrefix    = "/catalog/"
)

// ErrNoProductID is returned when a URL has no /product/<digits> segment.
var ErrNoProductID = errors.New("catalog: no product id in url")

var productIDPattern = regexp.MustCompile(`/product/(\d+)/?`)

// ExtractCategories returns category URLs linked from the catalog root page,
// in page order and without duplicates. Site-absolute /catalog/ links are
// re-rooted on base.
func ExtractCategories(html string, base *url.URL) []string {
	doc, ok := parseDocument(html)
	if !ok {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	doc.Find(categoryLinkSelector).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if href == "" {
			return
		}
		href = strings.TrimPrefix(href, catalogPathPrefix)
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		full := base.ResolveReference(ref).String()
		if _, dup := seen[full]; dup {
			return
		}
		seen[full] = struct{}{}
		out = append(out, full)
	})
	return out
}

// ProductID extracts the numeric identifier following /product/ in rawURL.
func ProductID(rawURL string) (string, error) {
	m := productIDPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", fmt.Errorf("%w: %s", ErrNoProductID, rawURL)
	}
	return m[1], nil
}
