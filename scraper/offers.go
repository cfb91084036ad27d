package scraper

import (
	"context"
	"fmt"

	"github.com/aluiziolira/go-scrape-catalogue/models"
	"github.com/aluiziolira/go-scrape-catalogue/parser"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DetailsAPI is the part of the catalogue API the fetcher depends on.
type DetailsAPI interface {
	ProductDetails(ctx context.Context, productID string) (*models.ProductDetails, error)
	OfferDetails(ctx context.Context, offerID string) (*models.OfferDetails, error)
}

// OfferResult is one record together with the error of its offer lookup.
// A record with a non-nil Err is still written, without availability.
type OfferResult struct {
	Record *models.OfferRecord
	Err    error
}

// OfferFetcher merges product details and per-offer stock into records.
type OfferFetcher struct {
	api     DetailsAPI
	cache   *lru.Cache[string, *models.ProductDetails]
	metrics *Metrics
}

// NewOfferFetcher builds a fetcher. cacheSize bounds the product details
// cache; zero disables it.
func NewOfferFetcher(api DetailsAPI, cacheSize int, metrics *Metrics) (*OfferFetcher, error) {
	f := &OfferFetcher{api: api, metrics: metrics}
	if cacheSize > 0 {
		cache, err := lru.New[string, *models.ProductDetails](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create details cache: %w", err)
		}
		f.cache = cache
	}
	return f, nil
}

// Fetch returns one result per offer of the product. A failed product
// lookup returns the error and no results; a failed offer lookup yields a
// partial record carrying the error.
func (f *OfferFetcher) Fetch(ctx context.Context, productID, targetAddress string) ([]OfferResult, error) {
	product, err := f.productDetails(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", productID, err)
	}

	results := make([]OfferResult, 0, len(product.Offers))
	for _, offer := range product.Offers {
		record := newRecord(product.Name, offer)

		details, err := f.api.OfferDetails(ctx, offer.ID.String())
		if err != nil {
			results = append(results, OfferResult{
				Record: record,
				Err:    fmt.Errorf("product %s offer %s: %w", productID, offer.ID, err),
			})
			continue
		}

		record.Availability = parser.ResolveAvailability(targetAddress, details.AvailabilityInfo.OfferStoreAmount)
		results = append(results, OfferResult{Record: record})
	}
	return results, nil
}

func (f *OfferFetcher) productDetails(ctx context.Context, productID string) (*models.ProductDetails, error) {
	if f.cache != nil {
		if product, ok := f.cache.Get(productID); ok {
			f.metrics.IncCacheHit()
			return product, nil
		}
	}

	product, err := f.api.ProductDetails(ctx, productID)
	if err != nil {
		return nil, err
	}
	if f.cache != nil {
		f.cache.Add(productID, product)
	}
	return product, nil
}

func newRecord(name string, offer models.Offer) *models.OfferRecord {
	return &models.OfferRecord{
		Name:              name,
		Articul:           offer.Code.String(),
		RetailPrice:       offer.RetailPrice,
		DiscountPrice:     parser.DiscountPrice(offer.RetailPrice, offer.DiscountPrice),
		ProductOptionName: offer.Size,
	}
}
