package catalogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-catalogue/models"
	"github.com/aluiziolira/go-scrape-catalogue/parser"
)

// ErrCategoryNotFound is returned when no top-level category matches the filter.
var ErrCategoryNotFound = errors.New("catalogue: category not found")

// ErrPageLabel indicates a pagination label that is not a page number.
type ErrPageLabel struct {
	URL   string
	Label string
	Err   error
}

func (e ErrPageLabel) Error() string {
	return fmt.Errorf("pagination on %s: %w", e.URL, e.Err).Error()
}

func (e ErrPageLabel) Unwrap() error {
	return e.Err
}

// ResolveCategories returns the category pages to crawl. A nil filter
// selects every top-level category. Matching stops at the first top-level
// name match, even when the requested sub-category is absent from it, in
// which case the result is empty and the error nil.
func ResolveCategories(ctx context.Context, reader PageReader, filter *models.CategoryFilter) ([]models.CategoryLink, error) {
	blocks, err := reader.CategoryBlocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("read categories: %w", err)
	}

	if filter == nil {
		links := make([]models.CategoryLink, 0, len(blocks))
		for _, block := range blocks {
			links = append(links, models.CategoryLink{Name: block.Text, URL: block.URL})
		}
		return links, nil
	}

	for _, block := range blocks {
		if strings.ToLower(block.Text) != filter.Category {
			continue
		}
		if !filter.HasSubCategory {
			return []models.CategoryLink{{Name: block.Text, URL: block.URL}}, nil
		}
		for _, sub := range block.SubCategories {
			name := parser.StripTrailingDigits(sub.Text)
			if strings.ToLower(name) == filter.SubCategory {
				return []models.CategoryLink{{Name: name, URL: sub.URL}}, nil
			}
		}
		return []models.CategoryLink{}, nil
	}
	return []models.CategoryLink{}, ErrCategoryNotFound
}

// PageCount reports how many listing pages a category has.
func PageCount(ctx context.Context, reader PageReader, categoryURL string) (int, error) {
	labels, err := reader.PaginationLabels(ctx, categoryURL)
	if err != nil {
		return 0, err
	}
	if len(labels) == 0 {
		return 1, nil
	}
	last := labels[len(labels)-1]
	n, err := parser.ParsePageLabel(last)
	if err != nil {
		return 0, ErrPageLabel{URL: categoryURL, Label: last, Err: err}
	}
	return n, nil
}

// ProductIDs lists the product identifiers on one listing page of a category.
func ProductIDs(ctx context.Context, reader PageReader, categoryURL string, page int) ([]string, error) {
	pageURL, err := PageURL(categoryURL, page)
	if err != nil {
		return nil, err
	}
	return reader.ProductIDs(ctx, pageURL)
}
