package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-catalogue/catalogue"
	"github.com/aluiziolira/go-scrape-catalogue/config"
	"github.com/aluiziolira/go-scrape-catalogue/models"
	"github.com/aluiziolira/go-scrape-catalogue/parser"
	"github.com/aluiziolira/go-scrape-catalogue/pipeline"
)

var errSink = errors.New("sink write failed")

// Scraper walks the catalogue and streams offer records into the pipeline.
// It is strictly sequential and owns its reader for the whole run.
type Scraper struct {
	cfg     *config.Config
	reader  catalogue.PageReader
	client  *APIClient
	fetcher *OfferFetcher
	Metrics *Metrics

	result *models.ScraperResult
}

// NewScraper builds a scraper instance configured from cfg.
func NewScraper(cfg *config.Config, reader catalogue.PageReader) (*Scraper, error) {
	metrics := NewMetrics()

	client, err := NewAPIClient(cfg, metrics)
	if err != nil {
		return nil, err
	}
	fetcher, err := NewOfferFetcher(client, cfg.DetailsCacheSize, metrics)
	if err != nil {
		return nil, err
	}

	return &Scraper{
		cfg:     cfg,
		reader:  reader,
		client:  client,
		fetcher: fetcher,
		Metrics: metrics,
	}, nil
}

// Run resolves the configured categories, pages through each of them and
// writes every product's offers to the pipeline. Category-level failures are
// logged and skipped; only sink failures and a failed category lookup abort
// the run.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.result = &models.ScraperResult{
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}

	filter := parser.ParseCategoryFilter(s.cfg.Category)
	categories, err := catalogue.ResolveCategories(ctx, s.reader, filter)
	switch {
	case errors.Is(err, catalogue.ErrCategoryNotFound):
		s.recordError(err)
		slog.Warn("no category matches filter", slog.String("category", s.cfg.Category))
		return s.finish(), nil
	case err != nil:
		return nil, fmt.Errorf("resolve categories: %w", err)
	case len(categories) == 0:
		slog.Warn("category matched but sub-category not found", slog.String("category", s.cfg.Category))
		return s.finish(), nil
	}

	slog.Info("categories resolved", slog.Int("count", len(categories)))

	for _, category := range categories {
		if ctx.Err() != nil {
			break
		}
		s.result.CategoryCount++

		err := s.crawlCategory(ctx, category, p)
		switch {
		case err == nil:
		case errors.Is(err, errSink):
			return nil, err
		case ctx.Err() != nil:
			slog.Info("run interrupted", slog.String("category", category.URL))
		default:
			s.recordError(err)
			s.result.FailedCategories = append(s.result.FailedCategories, category.URL)
			slog.Error("category aborted",
				slog.String("category", category.Name),
				slog.String("url", category.URL),
				slog.Any("error", err),
			)
		}
	}

	return s.finish(), nil
}

func (s *Scraper) crawlCategory(ctx context.Context, category models.CategoryLink, p *pipeline.Pipeline) error {
	pages, err := catalogue.PageCount(ctx, s.reader, category.URL)
	if err != nil {
		return fmt.Errorf("page count: %w", err)
	}
	slog.Info("crawling category",
		slog.String("category", category.Name),
		slog.String("url", category.URL),
		slog.Int("pages", pages),
	)

	for page := 1; page <= pages; page++ {
		ids, err := catalogue.ProductIDs(ctx, s.reader, category.URL, page)
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
		s.result.PageCount++
		s.Metrics.IncPages()
		slog.Debug("listing page read",
			slog.String("url", category.URL),
			slog.Int("page", page),
			slog.Int("products", len(ids)),
		)

		for _, id := range ids {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.processProduct(ctx, id, p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Scraper) processProduct(ctx context.Context, productID string, p *pipeline.Pipeline) error {
	s.result.ProductCount++

	results, err := s.fetcher.Fetch(ctx, productID, s.cfg.TargetAddress())
	if err != nil {
		s.recordError(err)
		s.result.FailedProducts = append(s.result.FailedProducts, productID)
		slog.Error("product skipped", slog.String("product_id", productID), slog.Any("error", err))
		return nil
	}

	records := make([]*models.OfferRecord, 0, len(results))
	for _, r := range results {
		partial := r.Err != nil
		if partial {
			s.recordError(r.Err)
			s.result.PartialCount++
			slog.Warn("offer details unavailable, writing record without availability",
				slog.String("product_id", productID),
				slog.String("articul", r.Record.Articul),
				slog.Any("error", r.Err),
			)
		}
		s.Metrics.IncRecord(partial)
		records = append(records, r.Record)
	}

	if err := p.Process(records...); err != nil {
		return fmt.Errorf("%w: %w", errSink, err)
	}
	s.result.RecordCount += len(records)
	return nil
}

func (s *Scraper) recordError(err error) {
	label := errorTypeLabel(err)
	s.result.ErrorCount++
	s.result.ErrorsByType[label]++
	s.Metrics.IncError(label)
}

func (s *Scraper) finish() *models.ScraperResult {
	s.result.EndTime = time.Now()
	s.result.RequestCount = s.client.RequestCount()
	return s.result
}
