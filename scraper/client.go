package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/aluiziolira/go-scrape-catalogue/config"
	"github.com/aluiziolira/go-scrape-catalogue/models"
	"github.com/gocolly/colly/v2"
)

const (
	phaseProduct = "product_details"
	phaseOffer   = "offer_details"

	ctxStart  = "start"
	ctxStatus = "status"
	ctxBody   = "body"
)

// APIClient fetches product and offer details from the catalogue JSON API.
// Requests run one at a time on a synchronous collector.
type APIClient struct {
	cfg       *config.Config
	collector *colly.Collector
	metrics   *Metrics

	requestCount int64
}

// NewAPIClient builds a client configured from cfg.
func NewAPIClient(cfg *config.Config, metrics *Metrics) (*APIClient, error) {
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("base url must include a host")
	}

	collector := colly.NewCollector(
		colly.AllowedDomains(parsed.Hostname()),
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
	)

	collector.SetRequestTimeout(cfg.Timeout)
	collector.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	collector.ParseHTTPErrorResponse = true
	collector.WithTransport(&http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})

	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: 1,
		Delay:       cfg.Delay,
		RandomDelay: cfg.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("configure rate limits: %w", err)
	}

	c := &APIClient{
		cfg:       cfg,
		collector: collector,
		metrics:   metrics,
	}
	c.configureHandlers()
	return c, nil
}

func (c *APIClient) configureHandlers() {
	c.collector.OnRequest(func(r *colly.Request) {
		r.Ctx.Put(ctxStart, time.Now())
		if c.cfg.Accept != "" {
			r.Headers.Set("Accept", c.cfg.Accept)
		}
		if c.cfg.Referer != "" {
			r.Headers.Set("Referer", c.cfg.Referer)
		}
	})

	c.collector.OnResponse(func(r *colly.Response) {
		r.Ctx.Put(ctxStatus, r.StatusCode)
		r.Ctx.Put(ctxBody, r.Body)
		if r.StatusCode >= http.StatusBadRequest {
			slog.Error("non-200 response",
				slog.Int("status", r.StatusCode),
				slog.String("url", r.Request.URL.String()),
			)
		}
	})
}

// ProductDetails fetches the product and its offers.
func (c *APIClient) ProductDetails(ctx context.Context, productID string) (*models.ProductDetails, error) {
	var details models.ProductDetails
	target := c.cfg.APIURL("products", productID, "details")
	if err := c.getJSON(ctx, phaseProduct, target, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// OfferDetails fetches per-store stock for one offer.
func (c *APIClient) OfferDetails(ctx context.Context, offerID string) (*models.OfferDetails, error) {
	var details models.OfferDetails
	target := c.cfg.APIURL("offers", offerID, "details")
	if err := c.getJSON(ctx, phaseOffer, target, &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// RequestCount reports how many API requests were issued.
func (c *APIClient) RequestCount() int {
	return int(atomic.LoadInt64(&c.requestCount))
}

func (c *APIClient) getJSON(ctx context.Context, phase, target string, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	reqCtx := colly.NewContext()
	atomic.AddInt64(&c.requestCount, 1)
	c.metrics.IncRequest(phase)

	err := c.collector.Request(http.MethodGet, target, nil, reqCtx, http.Header{})
	if start, ok := reqCtx.GetAny(ctxStart).(time.Time); ok {
		c.metrics.ObserveDuration(phase, time.Since(start))
	}
	if err != nil {
		return classifyError(fmt.Errorf("get %s: %w", target, err))
	}

	status, _ := reqCtx.GetAny(ctxStatus).(int)
	if status < http.StatusOK || status >= http.StatusMultipleChoices {
		return ErrRemote{URL: target, Status: status}
	}

	body, _ := reqCtx.GetAny(ctxBody).([]byte)
	if err := json.Unmarshal(body, out); err != nil {
		return ErrDecode{URL: target, Err: err}
	}
	return nil
}
