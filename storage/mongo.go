// Package storage persists normalized products in MongoDB.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalog/config"
	"github.com/aluiziolira/go-scrape-catalog/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// ProductDocument is the stored shape of a product. The _id is the
// product's storage key so repeated crawls overwrite instead of duplicate.
type ProductDocument struct {
	ID              string              `bson:"_id"`
	ProductID       string              `bson:"product_id"`
	Title           string              `bson:"title"`
	Description     string              `bson:"description"`
	Article         string              `bson:"article"`
	Brand           string              `bson:"brand"`
	CountryOfOrigin string              `bson:"country_of_origin"`
	Warranty        string              `bson:"warranty_months"`
	Category        string              `bson:"category"`
	Attributes      []AttributeDocument `bson:"attributes"`
	Suppliers       []SupplierDocument  `bson:"suppliers"`
	UpdatedAt       primitive.DateTime  `bson:"updated_at"`
}

// AttributeDocument is one stored product attribute.
type AttributeDocument struct {
	Name  string `bson:"attr_name"`
	Value string `bson:"attr_value"`
}

// SupplierDocument is the stored supplier with its offers.
type SupplierDocument struct {
	Name        string          `bson:"supplier_name"`
	Phone       string          `bson:"supplier_tel"`
	Address     string          `bson:"supplier_address"`
	Description string          `bson:"supplier_description"`
	Offers      []OfferDocument `bson:"supplier_offers"`
}

// OfferDocument is one stored price tier of a supplier.
type OfferDocument struct {
	Price        []PriceDocument `bson:"price"`
	Stock        string          `bson:"stock"`
	DeliveryTime string          `bson:"delivery_time"`
	PackageInfo  string          `bson:"package_info"`
	PurchaseURL  string          `bson:"purchase_url"`
}

// PriceDocument is a quantity price stored as Decimal128.
type PriceDocument struct {
	Quantity int                  `bson:"qnt"`
	Discount int                  `bson:"discount"`
	Price    primitive.Decimal128 `bson:"price"`
}

// NewProductDocument maps p onto its stored form.
func NewProductDocument(p *models.Product, now time.Time) (ProductDocument, error) {
	doc := ProductDocument{
		ID:              p.StorageKey(),
		ProductID:       p.ProductID,
		Title:           p.Title,
		Description:     p.Description,
		Article:         p.Article,
		Brand:           p.Brand,
		CountryOfOrigin: p.CountryOfOrigin,
		Warranty:        p.Warranty,
		Category:        p.Category,
		Attributes:      make([]AttributeDocument, 0, len(p.Attributes)),
		Suppliers:       make([]SupplierDocument, 0, len(p.Suppliers)),
		UpdatedAt:       primitive.NewDateTimeFromTime(now),
	}
	for _, a := range p.Attributes {
		doc.Attributes = append(doc.Attributes, AttributeDocument{Name: a.Name, Value: a.Value})
	}

	for _, s := range p.Suppliers {
		sd := SupplierDocument{
			Name:        s.Name,
			Phone:       s.Phone,
			Address:     s.Address,
			Description: s.Description,
			Offers:      make([]OfferDocument, 0, len(s.Offers)),
		}
		for _, o := range s.Offers {
			od := OfferDocument{
				Price:        make([]PriceDocument, 0, len(o.Price)),
				Stock:        o.Stock,
				DeliveryTime: o.DeliveryTime,
				PackageInfo:  o.PackageInfo,
				PurchaseURL:  o.PurchaseURL,
			}
			for _, pi := range o.Price {
				amount, err := primitive.ParseDecimal128(pi.Price.String())
				if err != nil {
					return ProductDocument{}, fmt.Errorf("product %s price %s: %w", doc.ID, pi.Price, err)
				}
				od.Price = append(od.Price, PriceDocument{
					Quantity: pi.Quantity,
					Discount: pi.Discount,
					Price:    amount,
				})
			}
			sd.Offers = append(sd.Offers, od)
		}
		doc.Suppliers = append(doc.Suppliers, sd)
	}
	return doc, nil
}

// MongoStore upserts product batches into one collection. It satisfies the
// pipeline's OutputWriter.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
	now        func() time.Time

	mu       sync.Mutex
	upserted int64
	modified int64
	matched  int64
}

// NewMongoStore connects to cfg.MongoURI and verifies the server is reachable.
func NewMongoStore(ctx context.Context, cfg *config.Config) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().
		ApplyURI(cfg.MongoURI).
		SetServerSelectionTimeout(cfg.StoreTimeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	slog.Info("connected to mongo",
		slog.String("database", cfg.MongoDatabase),
		slog.String("collection", cfg.MongoCollection),
	)
	store := NewCollectionStore(client.Database(cfg.MongoDatabase).Collection(cfg.MongoCollection), cfg.StoreTimeout)
	store.client = client
	return store, nil
}

// NewCollectionStore wraps an existing collection.
func NewCollectionStore(collection *mongo.Collection, timeout time.Duration) *MongoStore {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &MongoStore{
		collection: collection,
		timeout:    timeout,
		now:        time.Now,
	}
}

// Write upserts products keyed by their storage key. The bulk is unordered
// so one bad document does not stop the rest.
func (s *MongoStore) Write(products []*models.Product) error {
	if len(products) == 0 {
		return nil
	}

	now := s.now()
	writes := make([]mongo.WriteModel, 0, len(products))
	for _, p := range products {
		doc, err := NewProductDocument(p, now)
		if err != nil {
			return err
		}
		writes = append(writes, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": doc.ID}).
			SetReplacement(doc).
			SetUpsert(true))
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	res, err := s.collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return fmt.Errorf("bulk upsert %d products: %w", len(writes), err)
	}

	s.mu.Lock()
	s.upserted += res.UpsertedCount
	s.modified += res.ModifiedCount
	s.matched += res.MatchedCount
	s.mu.Unlock()

	slog.Debug("products stored",
		slog.Int("batch", len(writes)),
		slog.Int64("upserted", res.UpsertedCount),
		slog.Int64("modified", res.ModifiedCount),
	)
	return nil
}

// Counts returns cumulative upserted, modified and matched document counts.
func (s *MongoStore) Counts() (upserted, modified, matched int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserted, s.modified, s.matched
}

// Validate reports an error when nothing reached the collection.
func (s *MongoStore) Validate() error {
	upserted, _, matched := s.Counts()
	if upserted+matched == 0 {
		return errors.New("no products stored")
	}
	return nil
}

// Close disconnects the client when the store owns it.
func (s *MongoStore) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}
