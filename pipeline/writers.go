package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/aluiziolira/go-scrape-catalogue/models"
	"github.com/aluiziolira/go-scrape-catalogue/parser"
)

// Header is the CSV header row, taken from the csv tags of OfferRecord.
var Header = csvHeader(reflect.TypeOf(models.OfferRecord{}))

func csvHeader(t reflect.Type) []string {
	header := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if name := t.Field(i).Tag.Get("csv"); name != "" && name != "-" {
			header = append(header, name)
		}
	}
	return header
}

// HeaderNeeded reports whether filename is missing or empty, i.e. whether
// the first batch appended to it must carry the header row.
func HeaderNeeded(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return true
	}
	return info.Size() == 0
}

// CSVWriter appends records to a CSV file.
type CSVWriter struct {
	file        *os.File
	writer      *csv.Writer
	writeHeader bool
	mu          sync.Mutex
}

// NewCSVWriter opens filename for appending. When writeHeader is set the
// header row precedes the first non-empty batch; it is never written again
// by this writer.
func NewCSVWriter(filename string, writeHeader bool) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}

	return &CSVWriter{
		file:        f,
		writer:      csv.NewWriter(f),
		writeHeader: writeHeader,
	}, nil
}

// Write appends records to the CSV output.
func (cw *CSVWriter) Write(records []*models.OfferRecord) error {
	if len(records) == 0 {
		return nil
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.writeHeader {
		if err := cw.writer.Write(Header); err != nil {
			return fmt.Errorf("write csv header: %w", err)
		}
		cw.writeHeader = false
	}

	for _, record := range records {
		if err := cw.writer.Write(csvRow(record)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

func csvRow(r *models.OfferRecord) []string {
	discount := ""
	if r.DiscountPrice != nil {
		discount = parser.FormatPrice(*r.DiscountPrice)
	}
	availability := ""
	if r.Availability != nil {
		availability = *r.Availability
	}
	return []string{
		r.Name,
		r.Articul,
		parser.FormatPrice(r.RetailPrice),
		discount,
		r.ProductOptionName,
		availability,
	}
}

// JSONWriter appends newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter opens filename for appending.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: encoder,
	}, nil
}

// Write appends records in JSONL format.
func (jw *JSONWriter) Write(records []*models.OfferRecord) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, record := range records {
		if err := jw.encoder.Encode(record); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
