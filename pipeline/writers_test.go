package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/aluiziolira/go-scrape-catalogue/models"
)

func floatPtr(f float64) *float64 { return &f }

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	return rows
}

func TestHeaderColumns(t *testing.T) {
	want := []string{"name", "articul", "retail_price", "discount_price", "product_option_name", "availability"}
	if !reflect.DeepEqual(Header, want) {
		t.Fatalf("Header=%v, want %v", Header, want)
	}
}

func TestCSVWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "products.csv")

	writer, err := NewCSVWriter(path, true)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}

	records := []*models.OfferRecord{
		{
			Name:              "Dog food",
			Articul:           "12345",
			RetailPrice:       1299.5,
			DiscountPrice:     floatPtr(999),
			ProductOptionName: "2 kg",
			Availability:      strPtr("In stock"),
		},
		{
			Name:              "Dog food",
			Articul:           "12346",
			RetailPrice:       2499,
			ProductOptionName: "5 kg",
		},
	}

	if err := writer.Write(records); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate csv: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows) != 3 {
		t.Fatalf("rows=%d, want 3", len(rows))
	}
	if !reflect.DeepEqual(rows[0], Header) {
		t.Fatalf("unexpected header: %v", rows[0])
	}
	wantFirst := []string{"Dog food", "12345", "1299.5", "999", "2 kg", "In stock"}
	if !reflect.DeepEqual(rows[1], wantFirst) {
		t.Fatalf("row 1=%v, want %v", rows[1], wantFirst)
	}
	wantSecond := []string{"Dog food", "12346", "2499", "", "5 kg", ""}
	if !reflect.DeepEqual(rows[2], wantSecond) {
		t.Fatalf("row 2=%v, want %v", rows[2], wantSecond)
	}
}

func TestCSVWriterHeaderOnceAcrossAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.csv")

	writer, err := NewCSVWriter(path, HeaderNeeded(path))
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write(nil); err != nil {
		t.Fatalf("empty write: %v", err)
	}
	for i := 0; i < 3; i++ {
		batch := []*models.OfferRecord{{Name: "Toy", Articul: "T", RetailPrice: float64(i)}}
		if err := writer.Write(batch); err != nil {
			t.Fatalf("write batch %d: %v", i, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	if HeaderNeeded(path) {
		t.Fatal("expected HeaderNeeded=false for a populated file")
	}

	// A later run appends to the existing file without a second header.
	again, err := NewCSVWriter(path, HeaderNeeded(path))
	if err != nil {
		t.Fatalf("reopen csv writer: %v", err)
	}
	if err := again.Write([]*models.OfferRecord{{Name: "Toy", Articul: "T", RetailPrice: 9}}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := again.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}

	rows := readCSV(t, path)
	if len(rows) != 5 {
		t.Fatalf("rows=%d, want 5", len(rows))
	}
	headers := 0
	for _, row := range rows {
		if row[0] == "name" {
			headers++
		}
	}
	if headers != 1 {
		t.Fatalf("header rows=%d, want 1", headers)
	}
}

func TestCSVWriterEmptyBatchWritesNothing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.csv")

	writer, err := NewCSVWriter(path, true)
	if err != nil {
		t.Fatalf("create csv writer: %v", err)
	}
	if err := writer.Write([]*models.OfferRecord{}); err != nil {
		t.Fatalf("empty write: %v", err)
	}
	if err := writer.Validate(); err == nil {
		t.Fatal("expected validation error for empty file")
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close csv: %v", err)
	}
	if !HeaderNeeded(path) {
		t.Fatal("expected HeaderNeeded=true for an empty file")
	}
}

func TestHeaderNeededMissingFile(t *testing.T) {
	if !HeaderNeeded(filepath.Join(t.TempDir(), "absent.csv")) {
		t.Fatal("expected HeaderNeeded=true for a missing file")
	}
}

func TestJSONWriterWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}

	record := &models.OfferRecord{
		Name:              "Cat litter",
		Articul:           "C1",
		RetailPrice:       350,
		ProductOptionName: "10 l",
	}
	if err := writer.Write([]*models.OfferRecord{record}); err != nil {
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
	var lines int
	for scanner.Scan() {
		var decoded map[string]interface{}
		if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if decoded["articul"] != "C1" {
			t.Fatalf("articul=%v, want C1", decoded["articul"])
		}
		if decoded["availability"] != nil {
			t.Fatalf("availability=%v, want null", decoded["availability"])
		}
		lines++
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if lines != 1 {
		t.Fatalf("lines=%d, want 1", lines)
	}
}

func TestDualWriterWrite(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "products.csv")
	jsonPath := filepath.Join(dir, "products.jsonl")

	writer, err := NewDualWriter(csvPath, jsonPath, true)
	if err != nil {
		t.Fatalf("create dual writer: %v", err)
	}
	if err := writer.Write([]*models.OfferRecord{{Name: "Leash", Articul: "L1", RetailPrice: 500}}); err != nil {
		t.Fatalf("write dual: %v", err)
	}
	if err := writer.Validate(); err != nil {
		t.Fatalf("validate dual: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close dual: %v", err)
	}

	if rows := readCSV(t, csvPath); len(rows) != 2 {
		t.Fatalf("csv rows=%d, want 2", len(rows))
	}
	info, err := os.Stat(jsonPath)
	if err != nil {
		t.Fatalf("stat json: %v", err)
	}
	if info.Size() == 0 {
		t.Fatal("json output empty")
	}
}
