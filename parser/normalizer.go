// Package parser turns product API payloads into canonical product records.
package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// DefaultSuccessCode is the state code of a successful product API response.
const DefaultSuccessCode = 20001

var (
	// ErrMalformedPayload is returned when the payload is not JSON.
	ErrMalformedPayload = errors.New("parser: malformed payload")
	// ErrUnsuccessfulState is returned when state.code is not the success code.
	ErrUnsuccessfulState = errors.New("parser: unsuccessful response state")
	// ErrMissingProduct is returned when data.product is absent or empty.
	ErrMissingProduct = errors.New("parser: product missing from payload")
)

// Property slugs with dedicated fields. They never become attributes.
const (
	slugBrand         = "brend"
	slugCountry       = "stranamproizvoditel"
	slugOftenSearched = "chasto_ischut"
	slugWarranty      = "garantiya"
)

var packageSlugs = []string{"fasovka", "kolichestvo_v_upakovke", "kolichestvo_shtuk_v_upakovke"}

var excludedSlugs = map[string]struct{}{
	slugBrand:                      {},
	slugCountry:                    {},
	slugOftenSearched:              {},
	slugWarranty:                   {},
	"fasovka":                      {},
	"kolichestvo_v_upakovke":       {},
	"kolichestvo_shtuk_v_upakovke": {},
}

// Normalizer builds products from product API payloads. It holds no mutable
// state and is safe for concurrent use.
type Normalizer struct {
	successCode string
	supplier    models.Supplier
}

// NewNormalizer returns a normalizer accepting successCode as the success
// state. A non-positive code selects DefaultSuccessCode.
func NewNormalizer(successCode int) *Normalizer {
	if successCode <= 0 {
		successCode = DefaultSuccessCode
	}
	return &Normalizer{
		successCode: fmt.Sprint(successCode),
		supplier:    RetailerIdentity(),
	}
}

// Normalize decodes payload and builds the product. purchaseURL is the
// product page the offers point to.
func (nz *Normalizer) Normalize(productID, purchaseURL string, payload []byte) (*models.Product, error) {
	root, err := Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nz.NormalizeNode(productID, purchaseURL, root)
}

// NormalizeNode builds the product from an already decoded payload.
func (nz *Normalizer) NormalizeNode(productID, purchaseURL string, root Node) (*models.Product, error) {
	if code, ok := root.Path("state", "code").Scalar(); !ok || code != nz.successCode {
		return nil, fmt.Errorf("%w: code=%q", ErrUnsuccessfulState, code)
	}

	product := root.Path("data", "product")
	if !product.IsObject() {
		return nil, ErrMissingProduct
	}

	props := product.Get("properties").List()

	return &models.Product{
		ProductID:       productID,
		Title:           firstOf(product, models.NoData, textAt("title")),
		Description:     firstOf(product, models.NoData, textAt("description_no_html", "description")),
		Article:         firstOf(product, models.NoData, scalarAt("code")),
		Brand:           propertyValue(props, slugBrand),
		CountryOfOrigin: propertyValue(props, slugCountry),
		Warranty:        propertyValue(props, slugWarranty),
		Category: firstOf(product, models.NoData,
			lastBreadcrumb,
			textAt("section", "title"),
		),
		Attributes: extractAttributes(props),
		Suppliers: []models.Supplier{
			nz.buildSupplier(extractPrices(product), extractTerms(product, props, purchaseURL)),
		},
	}, nil
}

func lastBreadcrumb(product Node) (string, bool) {
	return product.Get("breadcrumbs").Last().Get("title").Text()
}

// propertyValue returns the first value title of the first property with
// slug that has one.
func propertyValue(props []Node, slug string) string {
	for _, prop := range props {
		if s, _ := prop.Get("slug").Text(); s != slug {
			continue
		}
		if title, ok := prop.Get("value").First().Get("title").Scalar(); ok {
			return title
		}
	}
	return models.NoData
}

func packageFromProperties(props []Node) (string, bool) {
	for _, prop := range props {
		slug, _ := prop.Get("slug").Text()
		if !isPackageSlug(slug) {
			continue
		}
		quantity, ok := prop.Get("value").First().Get("title").Scalar()
		if !ok {
			continue
		}
		if unit, ok := prop.Get("unit").Text(); ok {
			return quantity + " " + unit, true
		}
		return quantity, true
	}
	return "", false
}

func packageFromUnit(product Node) (string, bool) {
	title, ok := product.Get("unit_title").Text()
	if !ok {
		return "", false
	}
	ratio, ok := product.Get("unit_ratio").Scalar()
	if !ok {
		return "", false
	}
	if d, numeric := product.Get("unit_ratio").Decimal(); numeric && d.IsZero() {
		return "", false
	}
	return ratio + " " + title, true
}

func isPackageSlug(slug string) bool {
	for _, s := range packageSlugs {
		if s == slug {
			return true
		}
	}
	return false
}

// extractAttributes converts descriptive properties to attributes. Both the
// bare title and the final name with its unit suffix are unique
// case-insensitively; the first occurrence wins.
func extractAttributes(props []Node) []models.Attribute {
	attrs := make([]models.Attribute, 0, len(props))
	seen := make(map[string]struct{}, len(props))

	for _, prop := range props {
		slug, _ := prop.Get("slug").Text()
		if _, skip := excludedSlugs[slug]; skip {
			continue
		}
		if describes, ok := prop.Get("is_description").Bool(); ok && !describes {
			continue
		}

		title, ok := prop.Get("title").Text()
		if !ok {
			continue
		}
		var parts []string
		for _, v := range prop.Get("value").List() {
			if t, ok := v.Get("title").Scalar(); ok {
				parts = append(parts, t)
			}
		}
		if len(parts) == 0 {
			continue
		}

		name := title
		if unit, ok := prop.Get("unit").Text(); ok {
			name = title + ", " + unit
		}

		titleKey, nameKey := strings.ToLower(title), strings.ToLower(name)
		_, dupTitle := seen[titleKey]
		_, dupName := seen[nameKey]
		if dupTitle || dupName {
			continue
		}
		seen[titleKey] = struct{}{}
		seen[nameKey] = struct{}{}

		attrs = append(attrs, models.Attribute{
			Name:  name,
			Value: strings.Join(parts, ", "),
		})
	}
	return attrs
}
