package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/aluiziolira/go-scrape-catalog/models"
	"github.com/shopspring/decimal"
)

func twoTierProduct() *models.Product {
	p := testProduct("670672", "670672")
	p.Attributes = []models.Attribute{
		{Name: "Толщина, мм", Value: "12,5"},
		{Name: "Цвет", Value: "серый, белый"},
	}
	gold := p.Suppliers[0].Offers[0]
	gold.Price = []models.PriceInfo{{Quantity: 1, Price: decimal.RequireFromString("450.5")}}
	p.Suppliers[0].Offers = append(p.Suppliers[0].Offers, gold)
	return p
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.csv")

	writer, err := NewCSVWriter(path)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	if err := writer.Write([]*models.Product{twoTierProduct()}); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records=%d, want 2", len(records))
	}
	if records[0][0] != "product_id" || records[0][8] != "price" {
		t.Fatalf("unexpected header: %v", records[0])
	}

	row := make(map[string]string, len(csvHeader))
	for i, col := range records[0] {
		row[col] = records[1][i]
	}
	if row["price"] != "500.00" || row["gold_price"] != "450.50" {
		t.Fatalf("prices = %q / %q", row["price"], row["gold_price"])
	}
	if row["attributes"] != "Толщина, мм: 12,5; Цвет: серый, белый" {
		t.Fatalf("attributes = %q", row["attributes"])
	}
	if row["purchase_url"] != "https://shop.example.test/product/670672/" {
		t.Fatalf("purchase url = %q", row["purchase_url"])
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "products.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	if err := writer.Write([]*models.Product{twoTierProduct(), testProduct("2", "A-2")}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	var decoded []models.Product
	for scanner.Scan() {
		var p models.Product
		if err := json.Unmarshal(scanner.Bytes(), &p); err != nil {
			t.Fatalf("invalid json line: %v", err)
		}
		decoded = append(decoded, p)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan json: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("json lines=%d, want 2", len(decoded))
	}
	gold := decoded[0].Suppliers[0].Offers[1].Price[0].Price
	if !gold.Equal(decimal.RequireFromString("450.5")) {
		t.Fatalf("gold price = %s", gold)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath, jsonPath := DualFilenames(filepath.Join(dir, "products.jsonl"))
	if filepath.Base(csvPath) != "products.csv" || filepath.Base(jsonPath) != "products.jsonl" {
		t.Fatalf("dual filenames = %s, %s", csvPath, jsonPath)
	}

	writer, err := NewDualWriter(csvPath, jsonPath)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}

	if err := writer.Write([]*models.Product{twoTierProduct()}); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if info, err := os.Stat(csvPath); err != nil || info.Size() == 0 {
		t.Fatalf("csv file missing or empty")
	}
	if info, err := os.Stat(jsonPath); err != nil || info.Size() == 0 {
		t.Fatalf("json file missing or empty")
	}
}

func TestMultiWriterStopsOnFailure(t *testing.T) {
	first := &mockWriter{writeErr: errors.New("unavailable")}
	second := &mockWriter{}
	mw := NewMultiWriter(map[string]OutputWriter{"store": first, "file": second}, "store", "file")

	if err := mw.Write([]*models.Product{testProduct("1", "A-1")}); err == nil {
		t.Fatalf("expected write error")
	}
	if second.totalWritten() != 0 {
		t.Fatalf("second writer should not receive the batch")
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !first.closed || !second.closed {
		t.Fatalf("writers not closed")
	}
}
