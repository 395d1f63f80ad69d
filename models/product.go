// Package models defines data structures for the scraper.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NoData fills any product field that could not be resolved.
const NoData = "Нет данных"

// Product is the canonical record built from one product API payload.
type Product struct {
	ProductID       string      `json:"product_id"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Article         string      `json:"article"`
	Brand           string      `json:"brand"`
	CountryOfOrigin string      `json:"country_of_origin"`
	Warranty        string      `json:"warranty_months"`
	Category        string      `json:"category"`
	Attributes      []Attribute `json:"attributes"`
	Suppliers       []Supplier  `json:"suppliers"`
}

// Attribute is a single product characteristic.
type Attribute struct {
	Name  string `json:"attr_name"`
	Value string `json:"attr_value"`
}

// Supplier wraps the retailer identity and its offers.
type Supplier struct {
	Name        string          `json:"supplier_name"`
	Phone       string          `json:"supplier_tel"`
	Address     string          `json:"supplier_address"`
	Description string          `json:"supplier_description"`
	Offers      []SupplierOffer `json:"supplier_offers"`
}

// SupplierOffer is one purchasable price tier.
type SupplierOffer struct {
	Price        []PriceInfo `json:"price"`
	Stock        string      `json:"stock"`
	DeliveryTime string      `json:"delivery_time"`
	PackageInfo  string      `json:"package_info"`
	PurchaseURL  string      `json:"purchase_url"`
}

// PriceInfo is a quantity/discount/price triple.
type PriceInfo struct {
	Quantity int             `json:"qnt"`
	Discount int             `json:"discount"`
	Price    decimal.Decimal `json:"price"`
}

// StorageKey identifies the product for upserts: the article when it was
// resolved, otherwise the numeric product identifier.
func (p *Product) StorageKey() string {
	if p.Article != "" && p.Article != NoData {
		return p.Article
	}
	return p.ProductID
}

// OfferCount returns the number of offers across all suppliers.
func (p *Product) OfferCount() int {
	total := 0
	for _, s := range p.Suppliers {
		total += len(s.Offers)
	}
	return total
}

// CrawlResult holds the overall result of a crawl pass.
type CrawlResult struct {
	StartTime          time.Time
	EndTime            time.Time
	Categories         int
	Pages              int
	ProductLinks       int
	ProductsNormalized int
	ErrorCount         int
	FailedURLs         []string
	FailuresByReason   map[string]int
	RequestCount       int
	RetryCount         int
}
