package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-catalogue/models"
)

// CategorySeparator splits "category/sub-category" filters.
const CategorySeparator = "/"

var trailingDigits = regexp.MustCompile(`^(.*?)(\d+)$`)

// ParseCategoryFilter turns a "category[/sub-category]" string into a filter.
// It returns nil only for the empty string; any other value, whitespace
// included, is matched literally.
func ParseCategoryFilter(raw string) *models.CategoryFilter {
	if raw == "" {
		return nil
	}
	if !strings.Contains(raw, CategorySeparator) {
		return &models.CategoryFilter{Category: strings.ToLower(raw)}
	}
	parts := strings.Split(raw, CategorySeparator)
	return &models.CategoryFilter{
		Category:       strings.ToLower(parts[0]),
		SubCategory:    strings.ToLower(parts[1]),
		HasSubCategory: true,
	}
}

// StripTrailingDigits drops a trailing run of digits, which the catalogue
// appends to sub-category names as an item count.
func StripTrailingDigits(text string) string {
	text = strings.TrimSpace(text)
	match := trailingDigits.FindStringSubmatch(text)
	if match == nil {
		return text
	}
	return strings.TrimSpace(match[1])
}

// ParsePageLabel converts a pagination link label to a page number.
func ParsePageLabel(label string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(label))
	if err != nil {
		return 0, fmt.Errorf("page label %q: %w", label, err)
	}
	return n, nil
}

// DiscountPrice returns nil when the offer carries no real discount.
func DiscountPrice(retail float64, discount *float64) *float64 {
	if discount == nil || *discount == retail {
		return nil
	}
	v := *discount
	return &v
}

// ResolveAvailability returns the availability text of the first store whose
// address contains target, or nil.
func ResolveAvailability(target string, stores []models.StoreStock) *string {
	for _, store := range stores {
		if strings.Contains(store.Address, target) {
			text := store.Availability.Text
			return &text
		}
	}
	return nil
}

// ValidateRecord reports records missing fields every row is expected to carry.
func ValidateRecord(r *models.OfferRecord) error {
	if r == nil {
		return fmt.Errorf("record is nil")
	}
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("record missing name for articul %s", r.Articul)
	}
	if strings.TrimSpace(r.Articul) == "" {
		return fmt.Errorf("record missing articul for %s", r.Name)
	}
	return nil
}

// FormatPrice renders a price with the shortest exact decimal form.
func FormatPrice(price float64) string {
	return strconv.FormatFloat(price, 'f', -1, 64)
}
