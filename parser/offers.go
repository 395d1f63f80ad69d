package parser

import (
	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/shopspring/decimal"
)

// RetailerIdentity returns the fixed supplier identity with no offers.
func RetailerIdentity() models.Supplier {
	return models.Supplier{
		Name:        "Петрович",
		Phone:       "8 (499) 334-88-88; 8 (499) 334-88-95",
		Address:     "г. Москва, ул. Бутырский Вал, д. 68/70 (строение 1), БЦ «Бейкер Плаза», офис 66 (6 этаж)",
		Description: "Описание отсутсвует",
	}
}

// Prices holds the price tiers of a product. A zero value means the tier
// was absent or not a positive number.
type Prices struct {
	Retail decimal.Decimal
	Gold   decimal.Decimal
}

// OfferTerms are shared by every offer of a product.
type OfferTerms struct {
	Stock        string
	DeliveryTime string
	PackageInfo  string
	PurchaseURL  string
}

func extractPrices(product Node) Prices {
	price := product.Get("price")
	return Prices{
		Retail: positiveDecimal(price.Get("retail")),
		Gold:   positiveDecimal(price.Get("gold")),
	}
}

func positiveDecimal(n Node) decimal.Decimal {
	d, ok := n.Decimal()
	if !ok || !d.IsPositive() {
		return decimal.Zero
	}
	return d
}

func extractTerms(product Node, props []Node, purchaseURL string) OfferTerms {
	delivery := product.Path("remains", "delivery", "list").First()
	return OfferTerms{
		Stock:        firstOf(delivery, models.NoData, textAt("description")),
		DeliveryTime: firstOf(delivery, models.NoData, textAt("title")),
		PackageInfo: firstOf(product, models.NoData,
			func(Node) (string, bool) { return packageFromProperties(props) },
			packageFromUnit,
		),
		PurchaseURL: purchaseURL,
	}
}

// BuildOffers derives zero, one or two offers: the retail tier when its
// price is positive, and the gold tier when its price is positive and
// differs from retail.
func BuildOffers(prices Prices, terms OfferTerms) []models.SupplierOffer {
	offers := make([]models.SupplierOffer, 0, 2)
	if prices.Retail.IsPositive() {
		offers = append(offers, newOffer(prices.Retail, terms))
	}
	if prices.Gold.IsPositive() && !prices.Gold.Equal(prices.Retail) {
		offers = append(offers, newOffer(prices.Gold, terms))
	}
	return offers
}

func newOffer(price decimal.Decimal, terms OfferTerms) models.SupplierOffer {
	return models.SupplierOffer{
		Price:        []models.PriceInfo{{Quantity: 1, Discount: 0, Price: price}},
		Stock:        terms.Stock,
		DeliveryTime: terms.DeliveryTime,
		PackageInfo:  terms.PackageInfo,
		PurchaseURL:  terms.PurchaseURL,
	}
}

func (nz *Normalizer) buildSupplier(prices Prices, terms OfferTerms) models.Supplier {
	supplier := nz.supplier
	supplier.Offers = BuildOffers(prices, terms)
	return supplier
}
