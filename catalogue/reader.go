// Package catalogue walks the category tree and listing pages of the shop.
package catalogue

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Selectors of the catalogue markup.
const (
	CategoryBlockSelector = ".section_item_inner"
	CategoryLinkSelector  = ".name a.dark_link"
	SubCategorySelector   = ".sect"
	SubCategoryLink       = "a.dark_link"
	ProductCardSelector   = ".bth-card-element"
	ProductIDAttr         = "data-product-id"
	PaginationSelector    = ".bottom_nav"

	// PageParam selects a listing page.
	PageParam = "PAGEN_1"
)

// Anchor is a named link read from the DOM.
type Anchor struct {
	Text string
	URL  string
}

// CategoryBlock is a top-level category with its sub-categories, in DOM order.
type CategoryBlock struct {
	Anchor
	SubCategories []Anchor
}

// PageReader lists the parts of catalogue pages the traversal needs.
type PageReader interface {
	CategoryBlocks(ctx context.Context) ([]CategoryBlock, error)
	PaginationLabels(ctx context.Context, categoryURL string) ([]string, error)
	ProductIDs(ctx context.Context, pageURL string) ([]string, error)
}

// Renderer loads a page once waitSelector matches and returns its DOM.
type Renderer interface {
	Render(ctx context.Context, pageURL, waitSelector string) (*goquery.Document, error)
}

// BrowserReader reads catalogue pages through a Renderer.
type BrowserReader struct {
	renderer Renderer
	indexURL string
}

// NewBrowserReader builds a reader whose category index lives at indexURL.
func NewBrowserReader(renderer Renderer, indexURL string) *BrowserReader {
	return &BrowserReader{renderer: renderer, indexURL: indexURL}
}

func (r *BrowserReader) CategoryBlocks(ctx context.Context) ([]CategoryBlock, error) {
	doc, err := r.renderer.Render(ctx, r.indexURL, CategoryBlockSelector)
	if err != nil {
		return nil, err
	}
	return parseCategoryBlocks(doc, r.indexURL), nil
}

func (r *BrowserReader) PaginationLabels(ctx context.Context, categoryURL string) ([]string, error) {
	doc, err := r.renderer.Render(ctx, categoryURL, ProductCardSelector)
	if err != nil {
		return nil, err
	}
	return parsePaginationLabels(doc), nil
}

func (r *BrowserReader) ProductIDs(ctx context.Context, pageURL string) ([]string, error) {
	doc, err := r.renderer.Render(ctx, pageURL, ProductCardSelector)
	if err != nil {
		return nil, err
	}
	return parseProductIDs(doc), nil
}

func parseCategoryBlocks(doc *goquery.Document, pageURL string) []CategoryBlock {
	var blocks []CategoryBlock
	doc.Find(CategoryBlockSelector).Each(func(_ int, s *goquery.Selection) {
		link := s.Find(CategoryLinkSelector).First()
		if link.Length() == 0 {
			return
		}
		block := CategoryBlock{Anchor: readAnchor(link, pageURL)}
		s.Find(SubCategorySelector).Each(func(_ int, sect *goquery.Selection) {
			sub := sect.Find(SubCategoryLink).First()
			if sub.Length() == 0 {
				return
			}
			block.SubCategories = append(block.SubCategories, readAnchor(sub, pageURL))
		})
		blocks = append(blocks, block)
	})
	return blocks
}

func parsePaginationLabels(doc *goquery.Document) []string {
	var labels []string
	// Only the first navigation bar counts.
	doc.Find(PaginationSelector).First().Find("a").Each(func(_ int, s *goquery.Selection) {
		labels = append(labels, strings.TrimSpace(s.Text()))
	})
	return labels
}

func parseProductIDs(doc *goquery.Document) []string {
	var ids []string
	doc.Find(ProductCardSelector).Each(func(_ int, s *goquery.Selection) {
		if id, ok := s.Attr(ProductIDAttr); ok && id != "" {
			ids = append(ids, id)
		}
	})
	return ids
}

func readAnchor(s *goquery.Selection, pageURL string) Anchor {
	return Anchor{
		Text: strings.TrimSpace(s.Text()),
		URL:  absoluteURL(pageURL, s.AttrOr("href", "")),
	}
}

func absoluteURL(base, href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

// PageURL annotates a category URL with the listing page number.
func PageURL(categoryURL string, page int) (string, error) {
	u, err := url.Parse(categoryURL)
	if err != nil {
		return "", fmt.Errorf("parse category url %q: %w", categoryURL, err)
	}
	q := u.Query()
	q.Set(PageParam, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
