package parser

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/shopspring/decimal"
)

const purchaseURL = "https://shop.example.test/product/670672/"

const fullPayload = `{
  "state": {"code": 20001, "title": "OK"},
  "data": {
    "product": {
      "title": "  Гипсокартон Knauf 12,5 мм  ",
      "code": 670672,
      "description_no_html": {"description": "Лист для внутренних работ."},
      "breadcrumbs": [
        {"title": "Каталог"},
        {"title": "Стройматериалы"},
        {"title": "Гипсокартон"}
      ],
      "section": {"title": "Листовые материалы"},
      "unit_title": "шт.",
      "unit_ratio": 1,
      "price": {"retail": 500, "gold": "450.50"},
      "remains": {"delivery": {"list": [
        {"title": "Завтра", "description": "В наличии"},
        {"title": "Через неделю", "description": "Под заказ"}
      ]}},
      "properties": [
        {"slug": "brend", "title": "Бренд", "value": [{"title": "Knauf"}]},
        {"slug": "stranamproizvoditel", "title": "Страна", "value": [{"title": "Россия"}]},
        {"slug": "garantiya", "title": "Гарантия", "value": [{"title": "12 мес."}]},
        {"slug": "chasto_ischut", "title": "Часто ищут", "value": [{"title": "гкл"}]},
        {"slug": "kolichestvo_v_upakovke", "title": "В упаковке", "unit": "шт.", "value": [{"title": "50"}]},
        {"slug": "tolshchina", "title": "Толщина", "unit": "мм", "value": [{"title": "12,5"}]},
        {"slug": "tsvet", "title": "Цвет", "value": [{"title": "серый"}, {"title": "белый"}]},
        {"slug": "tsvet_2", "title": "цвет", "value": [{"title": "зелёный"}]},
        {"slug": "internal", "title": "Служебное", "is_description": false, "value": [{"title": "x"}]},
        {"slug": "empty_values", "title": "Пусто", "value": []},
        {"slug": "no_title", "title": "", "value": [{"title": "y"}]},
        {"slug": "vlagostoykiy", "title": "Влагостойкий", "is_description": true, "value": [{"title": "нет"}]}
      ]
    }
  }
}`

func mustNormalize(t *testing.T, payload string) *models.Product {
	t.Helper()
	p, err := NewNormalizer(0).Normalize("670672", purchaseURL, []byte(payload))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return p
}

func TestNormalizeFullPayload(t *testing.T) {
	p := mustNormalize(t, fullPayload)

	checks := []struct {
		field, got, want string
	}{
		{"title", p.Title, "Гипсокартон Knauf 12,5 мм"},
		{"description", p.Description, "Лист для внутренних работ."},
		{"article", p.Article, "670672"},
		{"brand", p.Brand, "Knauf"},
		{"country", p.CountryOfOrigin, "Россия"},
		{"warranty", p.Warranty, "12 мес."},
		{"category", p.Category, "Гипсокартон"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Fatalf("%s = %q, want %q", c.field, c.got, c.want)
		}
	}

	wantAttrs := []models.Attribute{
		{Name: "Толщина, мм", Value: "12,5"},
		{Name: "Цвет", Value: "серый, белый"},
		{Name: "Влагостойкий", Value: "нет"},
	}
	if !reflect.DeepEqual(p.Attributes, wantAttrs) {
		t.Fatalf("attributes = %+v, want %+v", p.Attributes, wantAttrs)
	}

	if len(p.Suppliers) != 1 {
		t.Fatalf("suppliers = %d, want 1", len(p.Suppliers))
	}
	supplier := p.Suppliers[0]
	if supplier.Name != "Петрович" {
		t.Fatalf("supplier name = %q", supplier.Name)
	}
	if len(supplier.Offers) != 2 {
		t.Fatalf("offers = %d, want 2", len(supplier.Offers))
	}
	retail, gold := supplier.Offers[0], supplier.Offers[1]
	if !retail.Price[0].Price.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("retail price = %s, want 500", retail.Price[0].Price)
	}
	if !gold.Price[0].Price.Equal(decimal.RequireFromString("450.5")) {
		t.Fatalf("gold price = %s, want 450.5", gold.Price[0].Price)
	}
	for _, offer := range supplier.Offers {
		if offer.Stock != "В наличии" || offer.DeliveryTime != "Завтра" {
			t.Fatalf("stock/delivery = %q/%q", offer.Stock, offer.DeliveryTime)
		}
		if offer.PackageInfo != "50 шт." {
			t.Fatalf("package info = %q, want %q", offer.PackageInfo, "50 шт.")
		}
		if offer.PurchaseURL != purchaseURL {
			t.Fatalf("purchase url = %q", offer.PurchaseURL)
		}
		if offer.Price[0].Quantity != 1 || offer.Price[0].Discount != 0 {
			t.Fatalf("price info = %+v", offer.Price[0])
		}
	}

	if err := ValidateProduct(p); err != nil {
		t.Fatalf("normalized product should validate: %v", err)
	}
}

func TestNormalizeSentinels(t *testing.T) {
	p := mustNormalize(t, `{"state":{"code":20001},"data":{"product":{"title":"   ","code":null,"properties":"oops","breadcrumbs":[]}}}`)

	for name, got := range map[string]string{
		"title":       p.Title,
		"description": p.Description,
		"article":     p.Article,
		"brand":       p.Brand,
		"country":     p.CountryOfOrigin,
		"warranty":    p.Warranty,
		"category":    p.Category,
	} {
		if got != models.NoData {
			t.Fatalf("%s = %q, want sentinel", name, got)
		}
	}
	if len(p.Attributes) != 0 {
		t.Fatalf("attributes = %+v, want none", p.Attributes)
	}
	if len(p.Suppliers) != 1 || len(p.Suppliers[0].Offers) != 0 {
		t.Fatalf("want one supplier without offers, got %+v", p.Suppliers)
	}
	if p.StorageKey() != "670672" {
		t.Fatalf("storage key = %q, want product id", p.StorageKey())
	}
	if err := ValidateProduct(p); err != nil {
		t.Fatalf("sentinel product should validate: %v", err)
	}
}

func TestNormalizeFailures(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    error
	}{
		{name: "not json", payload: `<html>blocked</html>`, want: ErrMalformedPayload},
		{name: "wrong state", payload: `{"state":{"code":40401},"data":{"product":{"title":"x"}}}`, want: ErrUnsuccessfulState},
		{name: "missing state", payload: `{"data":{"product":{"title":"x"}}}`, want: ErrUnsuccessfulState},
		{name: "missing product", payload: `{"state":{"code":20001},"data":{}}`, want: ErrMissingProduct},
		{name: "empty product", payload: `{"state":{"code":20001},"data":{"product":{}}}`, want: ErrMissingProduct},
		{name: "product not object", payload: `{"state":{"code":20001},"data":{"product":[1,2]}}`, want: ErrMissingProduct},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewNormalizer(0).Normalize("1", purchaseURL, []byte(tt.payload))
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if p != nil {
				t.Fatalf("expected no product, got %+v", p)
			}
		})
	}
}

func TestNormalizeCustomSuccessCode(t *testing.T) {
	payload := `{"state":{"code":"200"},"data":{"product":{"title":"x"}}}`
	if _, err := NewNormalizer(200).Normalize("1", purchaseURL, []byte(payload)); err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if _, err := NewNormalizer(0).Normalize("1", purchaseURL, []byte(payload)); !errors.Is(err, ErrUnsuccessfulState) {
		t.Fatalf("expected unsuccessful state, got %v", err)
	}
}

func TestNormalizeCategoryFallsBackToSection(t *testing.T) {
	p := mustNormalize(t, `{"state":{"code":20001},"data":{"product":{"breadcrumbs":[{"title":"A"},{"name":"no title"}],"section":{"title":"Раздел"}}}}`)
	if p.Category != "Раздел" {
		t.Fatalf("category = %q, want section title", p.Category)
	}
}

func TestNormalizePackageInfo(t *testing.T) {
	tests := []struct {
		name    string
		product string
		want    string
	}{
		{
			name:    "property with unit",
			product: `{"properties":[{"slug":"fasovka","unit":"кг","value":[{"title":"25"}]}]}`,
			want:    "25 кг",
		},
		{
			name:    "property without unit",
			product: `{"properties":[{"slug":"kolichestvo_shtuk_v_upakovke","value":[{"title":"100"}]}]}`,
			want:    "100",
		},
		{
			name:    "unit ratio fallback",
			product: `{"unit_title":"м2","unit_ratio":2.5,"properties":[{"slug":"fasovka","value":[]}]}`,
			want:    "2.5 м2",
		},
		{
			name:    "zero ratio",
			product: `{"unit_title":"м2","unit_ratio":0}`,
			want:    models.NoData,
		},
		{
			name:    "nothing",
			product: `{"title":"x"}`,
			want:    models.NoData,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := `{"state":{"code":20001},"data":{"product":` + tt.product + `}}`
			root, err := Decode([]byte(payload))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			product := root.Path("data", "product")
			terms := extractTerms(product, product.Get("properties").List(), purchaseURL)
			if terms.PackageInfo != tt.want {
				t.Fatalf("package info = %q, want %q", terms.PackageInfo, tt.want)
			}
		})
	}
}

func TestNormalizeOfferTiers(t *testing.T) {
	tests := []struct {
		name   string
		price  string
		offers int
	}{
		{name: "equal tiers", price: `{"retail":500,"gold":500}`, offers: 1},
		{name: "equal tiers different literal", price: `{"retail":"500.00","gold":500}`, offers: 1},
		{name: "discounted gold", price: `{"retail":500,"gold":450}`, offers: 2},
		{name: "no gold", price: `{"retail":500}`, offers: 1},
		{name: "zero gold", price: `{"retail":500,"gold":0}`, offers: 1},
		{name: "gold only", price: `{"retail":0,"gold":450}`, offers: 1},
		{name: "unparseable retail", price: `{"retail":"n/a","gold":null}`, offers: 0},
		{name: "negative", price: `{"retail":-5,"gold":-1}`, offers: 0},
		{name: "no price object", price: `null`, offers: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustNormalize(t, `{"state":{"code":20001},"data":{"product":{"title":"x","price":`+tt.price+`}}}`)
			if got := p.OfferCount(); got != tt.offers {
				t.Fatalf("offers = %d, want %d", got, tt.offers)
			}
		})
	}
}

func TestNormalizeAttributeDedupIsCaseInsensitive(t *testing.T) {
	p := mustNormalize(t, `{"state":{"code":20001},"data":{"product":{"properties":[
		{"slug":"a","title":"Цвет","value":[{"title":"красный"}]},
		{"slug":"b","title":"ЦВЕТ","value":[{"title":"синий"}]},
		{"slug":"c","title":"цвет","unit":"тон","value":[{"title":"зелёный"}]}
	]}}}`)

	if len(p.Attributes) != 1 {
		t.Fatalf("attributes = %+v, want exactly one", p.Attributes)
	}
	if p.Attributes[0].Name != "Цвет" || p.Attributes[0].Value != "красный" {
		t.Fatalf("attribute = %+v, want first occurrence", p.Attributes[0])
	}
}

func TestNormalizeAttributeDedupIncludesUnitSuffix(t *testing.T) {
	p := mustNormalize(t, `{"state":{"code":20001},"data":{"product":{"properties":[
		{"slug":"a","title":"Вес","unit":"кг","value":[{"title":"5"}]},
		{"slug":"b","title":"вес, КГ","value":[{"title":"6"}]},
		{"slug":"c","title":"Вес, кг","unit":"г","value":[{"title":"7"}]}
	]}}}`)

	if len(p.Attributes) != 1 {
		t.Fatalf("attributes = %+v, want exactly one", p.Attributes)
	}
	if p.Attributes[0].Name != "Вес, кг" || p.Attributes[0].Value != "5" {
		t.Fatalf("attribute = %+v, want first occurrence", p.Attributes[0])
	}
	if err := ValidateProduct(p); err != nil {
		t.Fatalf("validate normalized product: %v", err)
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	nz := NewNormalizer(0)
	a, err := nz.Normalize("670672", purchaseURL, []byte(fullPayload))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	b, err := nz.Normalize("670672", purchaseURL, []byte(fullPayload))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("normalizing the same payload twice differs")
	}
}

func TestNormalizeNeverEmitsEmptyFields(t *testing.T) {
	payloads := []string{
		fullPayload,
		`{"state":{"code":20001},"data":{"product":{"title":""}}}`,
		`{"state":{"code":20001},"data":{"product":{"code":"","properties":[{"slug":"brend","value":[{"title":""}]}]}}}`,
		`{"state":{"code":20001},"data":{"product":{"remains":{"delivery":{"list":[{"title":"","description":" "}]}},"price":{"retail":1}}}}`,
	}
	for i, payload := range payloads {
		p := mustNormalize(t, payload)
		if err := ValidateProduct(p); err != nil {
			t.Fatalf("payload %d: %v", i, err)
		}
		for _, offer := range p.Suppliers[0].Offers {
			if strings.TrimSpace(offer.Stock) == "" || strings.TrimSpace(offer.DeliveryTime) == "" || strings.TrimSpace(offer.PackageInfo) == "" {
				t.Fatalf("payload %d: offer with empty terms %+v", i, offer)
			}
		}
	}
}
