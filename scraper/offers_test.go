package scraper

import (
	"context"
	"errors"
	"testing"

	"github.com/aluiziolira/go-scrape-catalogue/models"
)

type fakeAPI struct {
	products map[string]*models.ProductDetails
	offers   map[string]*models.OfferDetails
	errs     map[string]error

	productCalls map[string]int
}

func (f *fakeAPI) ProductDetails(_ context.Context, productID string) (*models.ProductDetails, error) {
	if f.productCalls == nil {
		f.productCalls = make(map[string]int)
	}
	f.productCalls[productID]++
	if err := f.errs["product:"+productID]; err != nil {
		return nil, err
	}
	return f.products[productID], nil
}

func (f *fakeAPI) OfferDetails(_ context.Context, offerID string) (*models.OfferDetails, error) {
	if err := f.errs["offer:"+offerID]; err != nil {
		return nil, err
	}
	if details, ok := f.offers[offerID]; ok {
		return details, nil
	}
	return &models.OfferDetails{}, nil
}

func stock(pairs ...string) *models.OfferDetails {
	details := &models.OfferDetails{}
	for i := 0; i+1 < len(pairs); i += 2 {
		entry := models.StoreStock{Address: pairs[i]}
		entry.Availability.Text = pairs[i+1]
		details.AvailabilityInfo.OfferStoreAmount = append(details.AvailabilityInfo.OfferStoreAmount, entry)
	}
	return details
}

func price(f float64) *float64 { return &f }

func TestOfferFetcherFetch(t *testing.T) {
	const target = "Moscow, Lenina 1"

	tests := []struct {
		name    string
		product *models.ProductDetails
		offers  map[string]*models.OfferDetails
		want    []models.OfferRecord
	}{
		{
			name: "discount kept and store found",
			product: &models.ProductDetails{Name: "Dry food", Offers: []models.Offer{
				{ID: "1", Code: "A1", RetailPrice: 1000, DiscountPrice: price(800), Size: "2 kg"},
			}},
			offers: map[string]*models.OfferDetails{
				"1": stock("Moscow, Lenina 1", "In stock"),
			},
			want: []models.OfferRecord{
				{Name: "Dry food", Articul: "A1", RetailPrice: 1000, DiscountPrice: price(800), ProductOptionName: "2 kg", Availability: strPtr("In stock")},
			},
		},
		{
			name: "discount equal to retail dropped",
			product: &models.ProductDetails{Name: "Toy", Offers: []models.Offer{
				{ID: "2", Code: "T2", RetailPrice: 300, DiscountPrice: price(300), Size: "S"},
			}},
			want: []models.OfferRecord{
				{Name: "Toy", Articul: "T2", RetailPrice: 300, ProductOptionName: "S"},
			},
		},
		{
			name: "second store matches",
			product: &models.ProductDetails{Name: "Leash", Offers: []models.Offer{
				{ID: "3", Code: "L3", RetailPrice: 500, Size: "M"},
			}},
			offers: map[string]*models.OfferDetails{
				"3": stock("Moscow, Mira 5", "A", "Moscow, Lenina 1, bld 2", "B"),
			},
			want: []models.OfferRecord{
				{Name: "Leash", Articul: "L3", RetailPrice: 500, ProductOptionName: "M", Availability: strPtr("B")},
			},
		},
		{
			name: "no store match keeps record",
			product: &models.ProductDetails{Name: "Bowl", Offers: []models.Offer{
				{ID: "4", Code: "B4", RetailPrice: 150, Size: ""},
			}},
			offers: map[string]*models.OfferDetails{
				"4": stock("Kazan, Baumana 3", "In stock"),
			},
			want: []models.OfferRecord{
				{Name: "Bowl", Articul: "B4", RetailPrice: 150},
			},
		},
		{
			name:    "zero offers",
			product: &models.ProductDetails{Name: "Empty"},
			want:    []models.OfferRecord{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{
				products: map[string]*models.ProductDetails{"p": tt.product},
				offers:   tt.offers,
			}
			fetcher, err := NewOfferFetcher(api, 0, nil)
			if err != nil {
				t.Fatalf("new fetcher: %v", err)
			}

			results, err := fetcher.Fetch(context.Background(), "p", target)
			if err != nil {
				t.Fatalf("fetch: %v", err)
			}
			if len(results) != len(tt.want) {
				t.Fatalf("results=%d, want %d", len(results), len(tt.want))
			}
			for i, want := range tt.want {
				got := results[i]
				if got.Err != nil {
					t.Fatalf("result %d error: %v", i, got.Err)
				}
				assertRecord(t, got.Record, want)
			}
		})
	}
}

func TestOfferFetcherProductError(t *testing.T) {
	remote := ErrRemote{URL: "http://example.test/products/p/details", Status: 500}
	api := &fakeAPI{errs: map[string]error{"product:p": remote}}
	fetcher, err := NewOfferFetcher(api, 0, nil)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	results, err := fetcher.Fetch(context.Background(), "p", "x")
	if results != nil {
		t.Fatalf("expected no results, got %d", len(results))
	}
	var target ErrRemote
	if !errors.As(err, &target) || target.Status != 500 {
		t.Fatalf("expected ErrRemote 500, got %v", err)
	}
}

func TestOfferFetcherOfferErrorKeepsPartialRecord(t *testing.T) {
	api := &fakeAPI{
		products: map[string]*models.ProductDetails{"p": {Name: "Food", Offers: []models.Offer{
			{ID: "1", Code: "F1", RetailPrice: 10},
			{ID: "2", Code: "F2", RetailPrice: 20},
		}}},
		offers: map[string]*models.OfferDetails{"2": stock("City, Street", "Few")},
		errs:   map[string]error{"offer:1": ErrDecode{URL: "u", Err: errors.New("bad json")}},
	}
	fetcher, err := NewOfferFetcher(api, 0, nil)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	results, err := fetcher.Fetch(context.Background(), "p", "City, Street")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results=%d, want 2", len(results))
	}
	if results[0].Err == nil || results[0].Record.Availability != nil {
		t.Fatalf("first result should be partial: %+v", results[0])
	}
	if errorTypeLabel(results[0].Err) != "decode" {
		t.Fatalf("label=%q, want decode", errorTypeLabel(results[0].Err))
	}
	if results[1].Err != nil || results[1].Record.Availability == nil || *results[1].Record.Availability != "Few" {
		t.Fatalf("second result should be complete: %+v", results[1])
	}
}

func TestOfferFetcherCachesProductDetails(t *testing.T) {
	api := &fakeAPI{
		products: map[string]*models.ProductDetails{"p": {Name: "Food", Offers: []models.Offer{{ID: "1", Code: "F1"}}}},
	}
	metrics := NewMetrics()
	fetcher, err := NewOfferFetcher(api, 8, metrics)
	if err != nil {
		t.Fatalf("new fetcher: %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := fetcher.Fetch(context.Background(), "p", "x"); err != nil {
			t.Fatalf("fetch %d: %v", i, err)
		}
	}
	if got := api.productCalls["p"]; got != 1 {
		t.Fatalf("product calls=%d, want 1", got)
	}
}

func assertRecord(t *testing.T, got *models.OfferRecord, want models.OfferRecord) {
	t.Helper()
	if got.Name != want.Name || got.Articul != want.Articul || got.RetailPrice != want.RetailPrice || got.ProductOptionName != want.ProductOptionName {
		t.Fatalf("record=%+v, want %+v", *got, want)
	}
	switch {
	case want.DiscountPrice == nil && got.DiscountPrice != nil:
		t.Fatalf("discount=%v, want nil", *got.DiscountPrice)
	case want.DiscountPrice != nil && (got.DiscountPrice == nil || *got.DiscountPrice != *want.DiscountPrice):
		t.Fatalf("discount=%v, want %v", got.DiscountPrice, *want.DiscountPrice)
	}
	switch {
	case want.Availability == nil && got.Availability != nil:
		t.Fatalf("availability=%q, want nil", *got.Availability)
	case want.Availability != nil && (got.Availability == nil || *got.Availability != *want.Availability):
		t.Fatalf("availability=%v, want %q", got.Availability, *want.Availability)
	}
}
