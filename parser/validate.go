package parser

import (
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-catalog/models"
)

// ValidateProduct rejects records that break the product shape consumers
// rely on. Text fields must be populated and attribute names unique.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.StorageKey()) == "" {
		return fmt.Errorf("product has no storage key")
	}

	fields := []struct {
		name, value string
	}{
		{"title", p.Title},
		{"description", p.Description},
		{"article", p.Article},
		{"brand", p.Brand},
		{"country_of_origin", p.CountryOfOrigin},
		{"warranty", p.Warranty},
		{"category", p.Category},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("product %s missing %s", p.StorageKey(), f.name)
		}
	}

	if len(p.Suppliers) != 1 {
		return fmt.Errorf("product %s has %d suppliers, want 1", p.StorageKey(), len(p.Suppliers))
	}
	if n := p.OfferCount(); n > 2 {
		return fmt.Errorf("product %s has %d offers, want at most 2", p.StorageKey(), n)
	}
	for _, offer := range p.Suppliers[0].Offers {
		for _, price := range offer.Price {
			if !price.Price.IsPositive() {
				return fmt.Errorf("product %s has non-positive price %s", p.StorageKey(), price.Price)
			}
		}
	}

	seen := make(map[string]struct{}, len(p.Attributes))
	for _, attr := range p.Attributes {
		key := strings.ToLower(strings.TrimSpace(attr.Name))
		if _, dup := seen[key]; dup {
			return fmt.Errorf("product %s has duplicate attribute %q", p.StorageKey(), attr.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}
