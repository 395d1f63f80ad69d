package storage

import (
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func sampleProduct(article string) *models.Product {
	return &models.Product{
		ProductID:       "670672",
		Title:           "Гипсокартон Knauf 12,5 мм",
		Description:     models.NoData,
		Article:         article,
		Brand:           "Knauf",
		CountryOfOrigin: "Россия",
		Warranty:        "12 мес.",
		Category:        "Гипсокартон",
		Attributes:      []models.Attribute{{Name: "Толщина, мм", Value: "12,5"}},
		Suppliers: []models.Supplier{{
			Name: "Петрович",
			Offers: []models.SupplierOffer{
				{Price: []models.PriceInfo{{Quantity: 1, Price: decimal.RequireFromString("500")}}},
				{Price: []models.PriceInfo{{Quantity: 1, Price: decimal.RequireFromString("450.50")}}},
			},
		}},
	}
}

func TestNewProductDocument(t *testing.T) {
	now := time.Date(2025, 11, 4, 13, 9, 13, 0, time.UTC)

	tests := []struct {
		name    string
		article string
		wantID  string
	}{
		{name: "article is the key", article: "A-670672", wantID: "A-670672"},
		{name: "product id fallback", article: models.NoData, wantID: "670672"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := NewProductDocument(sampleProduct(tt.article), now)
			if err != nil {
				t.Fatalf("new document: %v", err)
			}
			if doc.ID != tt.wantID {
				t.Fatalf("_id = %q, want %q", doc.ID, tt.wantID)
			}
			if !doc.UpdatedAt.Time().Equal(now) {
				t.Fatalf("updated_at = %v", doc.UpdatedAt.Time())
			}
			offers := doc.Suppliers[0].Offers
			if len(offers) != 2 {
				t.Fatalf("offers = %d, want 2", len(offers))
			}
			if got := offers[1].Price[0].Price.String(); got != "450.5" {
				t.Fatalf("gold price = %s, want 450.5", got)
			}
			if doc.Attributes[0].Name != "Толщина, мм" {
				t.Fatalf("attributes = %+v", doc.Attributes)
			}
		})
	}
}

func TestProductDocumentBSONKeys(t *testing.T) {
	doc, err := NewProductDocument(sampleProduct("A-1"), time.Now())
	if err != nil {
		t.Fatalf("new document: %v", err)
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded bson.M
	if err := bson.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"_id", "product_id", "warranty_months", "suppliers", "updated_at"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("missing key %q in %v", key, decoded)
		}
	}
}

func TestMongoStoreWrite(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("upserts batch", func(mt *mtest.T) {
		store := NewCollectionStore(mt.Coll, time.Second)

		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 2},
			bson.E{Key: "nModified", Value: 0},
			bson.E{Key: "upserted", Value: bson.A{
				bson.D{{Key: "index", Value: 0}, {Key: "_id", Value: "A-1"}},
				bson.D{{Key: "index", Value: 1}, {Key: "_id", Value: "670672"}},
			}},
		))

		err := store.Write([]*models.Product{sampleProduct("A-1"), sampleProduct(models.NoData)})
		if err != nil {
			mt.Fatalf("write: %v", err)
		}
		if upserted, _, _ := store.Counts(); upserted != 2 {
			mt.Fatalf("upserted = %d, want 2", upserted)
		}
		if err := store.Validate(); err != nil {
			mt.Fatalf("validate: %v", err)
		}
		if err := store.Close(); err != nil {
			mt.Fatalf("close: %v", err)
		}
	})

	mt.Run("surfaces server errors", func(mt *mtest.T) {
		store := NewCollectionStore(mt.Coll, time.Second)

		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "invalid document",
		}))

		if err := store.Write([]*models.Product{sampleProduct("A-1")}); err == nil {
			mt.Fatalf("expected write error")
		}
		if err := store.Validate(); err == nil {
			mt.Fatalf("expected validate to fail with nothing stored")
		}
	})
}

func TestMongoStoreWriteEmptyBatch(t *testing.T) {
	store := NewCollectionStore(nil, 0)
	if err := store.Write(nil); err != nil {
		t.Fatalf("empty write: %v", err)
	}
}
