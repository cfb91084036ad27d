// Package models defines data structures for the scraper.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// OfferRecord is one output row: a single offer of a product, annotated with
// the availability text of the configured store.
type OfferRecord struct {
	Name              string   `csv:"name" json:"name"`
	Articul           string   `csv:"articul" json:"articul"`
	RetailPrice       float64  `csv:"retail_price" json:"retail_price"`
	DiscountPrice     *float64 `csv:"discount_price" json:"discount_price"`
	ProductOptionName string   `csv:"product_option_name" json:"product_option_name"`
	Availability      *string  `csv:"availability" json:"availability"`
}

// CategoryFilter narrows a run to one category and optionally one of its
// sub-categories. Both names are lower-cased.
type CategoryFilter struct {
	Category       string
	SubCategory    string
	HasSubCategory bool
}

// CategoryLink is a resolved category or sub-category page.
type CategoryLink struct {
	Name string
	URL  string
}

// ProductDetails is the body of the product-details endpoint.
type ProductDetails struct {
	Name   string  `json:"name"`
	Offers []Offer `json:"offers"`
}

// Offer is a purchasable variant of a product.
type Offer struct {
	ID            FlexString `json:"id"`
	Code          FlexString `json:"code"`
	RetailPrice   float64    `json:"retail_price"`
	DiscountPrice *float64   `json:"discount_price"`
	Size          string     `json:"size"`
}

// OfferDetails is the body of the offer-details endpoint.
type OfferDetails struct {
	AvailabilityInfo struct {
		OfferStoreAmount []StoreStock `json:"offer_store_amount"`
	} `json:"availability_info"`
}

// StoreStock is the stock entry of one store for an offer.
type StoreStock struct {
	Address      string `json:"address"`
	Availability struct {
		Text string `json:"text"`
	} `json:"availability"`
}

// FlexString accepts both JSON strings and numbers. The API is not
// consistent about identifier types.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("flex string: %w", err)
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string {
	return string(f)
}

// ScraperResult holds the overall result of a scraping operation
type ScraperResult struct {
	StartTime        time.Time
	EndTime          time.Time
	CategoryCount    int
	PageCount        int
	ProductCount     int
	RecordCount      int
	PartialCount     int
	RequestCount     int
	ErrorCount       int
	FailedProducts   []string
	FailedCategories []string
	ErrorsByType     map[string]int
}
