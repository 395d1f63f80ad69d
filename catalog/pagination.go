package catalog

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/PuerkitoBio/goquery"
)

// DefaultMaxPageIndex bounds forward probing: indices at or above it are
// never requested.
const DefaultMaxPageIndex = 1000

const moreChunkSelector = `a[data-test="paginator-next-chunk-btn"]`

var pageMarkerPattern = regexp.MustCompile(`p=(\d+)`)

// Fetcher returns the body at url, or false on any failure.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, bool)
}

// ProbeOutcome classifies one forward probe.
type ProbeOutcome int

const (
	ProbeValid ProbeOutcome = iota
	ProbeUnavailable
	ProbeEmpty
	ProbeRepeat
)

func (o ProbeOutcome) String() string {
	switch o {
	case ProbeValid:
		return "valid"
	case ProbeUnavailable:
		return "unavailable"
	case ProbeEmpty:
		return "empty"
	case ProbeRepeat:
		return "repeat"
	default:
		return "unknown"
	}
}

// ProbeState is the state of the boundary search.
type ProbeState int

const (
	StateProbing ProbeState = iota
	StateConfirmedEnd
	StateExhausted
)

func (s ProbeState) String() string {
	switch s {
	case StateProbing:
		return "probing"
	case StateConfirmedEnd:
		return "confirmed_end"
	case StateExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}

// judgeProbe compares a probed page against page 0. A page whose product set
// equals page 0's is the server clamping an out-of-range index.
func judgeProbe(first, current LinkSet, fetched bool) ProbeOutcome {
	switch {
	case !fetched:
		return ProbeUnavailable
	case len(current) == 0:
		return ProbeEmpty
	case current.Equal(first):
		return ProbeRepeat
	default:
		return ProbeValid
	}
}

// boundary tracks the last page confirmed to hold new content.
type boundary struct {
	state     ProbeState
	next      int
	lastValid int
	limit     int
}

func newBoundary(visibleMax, limit int) *boundary {
	b := &boundary{
		state:     StateProbing,
		next:      visibleMax + 1,
		lastValid: visibleMax,
		limit:     limit,
	}
	if b.next >= limit {
		b.state = StateExhausted
	}
	return b
}

func (b *boundary) advance(outcome ProbeOutcome) {
	if b.state != StateProbing {
		return
	}
	if outcome != ProbeValid {
		b.state = StateConfirmedEnd
		return
	}
	b.lastValid = b.next
	b.next++
	if b.next >= b.limit {
		b.state = StateExhausted
	}
}

func (b *boundary) count() int {
	return b.lastValid + 1
}

// Resolution describes how a page count was determined.
type Resolution struct {
	Count        int
	VisibleMax   int
	HasMoreChunk bool
	State        ProbeState
	Probes       int
}

// Resolver determines how many result pages a category has.
type Resolver struct {
	fetcher   Fetcher
	extractor *Extractor
	maxIndex  int

	// OnProbe, when set, is called after every forward probe.
	OnProbe func(ProbeOutcome)
}

// NewResolver builds a resolver. maxIndex <= 0 selects DefaultMaxPageIndex.
func NewResolver(fetcher Fetcher, extractor *Extractor, maxIndex int) *Resolver {
	if maxIndex <= 0 {
		maxIndex = DefaultMaxPageIndex
	}
	return &Resolver{
		fetcher:   fetcher,
		extractor: extractor,
		maxIndex:  maxIndex,
	}
}

// PageCount returns the number of result pages of categoryURL, always >= 1.
func (r *Resolver) PageCount(ctx context.Context, categoryURL string) int {
	return r.Resolve(ctx, categoryURL).Count
}

// Resolve runs the boundary search for categoryURL.
//
// Visible page markers are clamped to maxIndex-1 even when no "more pages"
// control is present: a marker of 1500 yields maxIndex pages, not 1501.
// This is a deliberate deviation from the marker+1 rule.
func (r *Resolver) Resolve(ctx context.Context, categoryURL string) Resolution {
	single := Resolution{Count: 1, State: StateConfirmedEnd}

	html, ok := r.fetcher.Fetch(ctx, categoryURL)
	if !ok {
		slog.Debug("first page unavailable", slog.String("category", categoryURL))
		return single
	}
	doc, ok := parseDocument(html)
	if !ok {
		return single
	}

	first := r.extractor.Extract(doc)
	if len(first) == 0 {
		slog.Info("no products on first page", slog.String("category", categoryURL))
		return single
	}

	visibleMax, found := maxPageMarker(html)
	if !found {
		slog.Debug("no pagination markers", slog.String("category", categoryURL))
		return single
	}
	visibleMax = min(visibleMax, r.maxIndex-1)

	if !hasMoreChunk(doc) {
		return Resolution{
			Count:      visibleMax + 1,
			VisibleMax: visibleMax,
			State:      StateConfirmedEnd,
		}
	}

	b := newBoundary(visibleMax, r.maxIndex)
	probes := 0
	for b.state == StateProbing {
		if ctx.Err() != nil {
			b.state = StateConfirmedEnd
			break
		}
		page := b.next
		body, fetched := r.fetcher.Fetch(ctx, PageURL(categoryURL, page))
		var current LinkSet
		if fetched {
			current = r.extractor.ExtractHTML(body)
		}
		outcome := judgeProbe(first, current, fetched)
		probes++
		if r.OnProbe != nil {
			r.OnProbe(outcome)
		}
		slog.Debug("probed page",
			slog.String("category", categoryURL),
			slog.Int("page", page),
			slog.String("outcome", outcome.String()),
			slog.Int("products", len(current)),
		)
		b.advance(outcome)
	}

	res := Resolution{
		Count:        b.count(),
		VisibleMax:   visibleMax,
		HasMoreChunk: true,
		State:        b.state,
		Probes:       probes,
	}
	if res.State == StateExhausted {
		slog.Warn("page probe limit reached",
			slog.String("category", categoryURL),
			slog.Int("limit", r.maxIndex),
		)
	}
	return res
}

// maxPageMarker scans raw markup for p=<n> markers anywhere in the page.
func maxPageMarker(html string) (int, bool) {
	found := false
	highest := 0
	for _, m := range pageMarkerPattern.FindAllStringSubmatch(html, -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if !found || n > highest {
			highest = n
			found = true
		}
	}
	return highest, found
}

func hasMoreChunk(doc *goquery.Document) bool {
	return doc.Find(moreChunkSelector).Length() > 0
}
