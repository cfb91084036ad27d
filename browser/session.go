// Package browser drives a headless Chrome through chromedp and hands
// rendered pages back as goquery documents.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

// ErrNavigationTimeout indicates the awaited selector never appeared.
type ErrNavigationTimeout struct {
	URL      string
	Selector string
	Err      error
}

func (e ErrNavigationTimeout) Error() string {
	return fmt.Errorf("navigation timeout waiting for %q on %s: %w", e.Selector, e.URL, e.Err).Error()
}

func (e ErrNavigationTimeout) Unwrap() error {
	return e.Err
}

// Options describes how the browser is launched.
type Options struct {
	Headless bool
	Timeout  time.Duration
	// NavigationRate caps navigations per second; 0 disables the limit.
	NavigationRate float64
	UserAgent      string
	ExtraHeaders   map[string]string
	ExecPath       string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       true,
		Timeout:        10 * time.Second,
		NavigationRate: 0,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
	}
}

// Session owns one browser tab. It is not safe for concurrent use.
type Session struct {
	ctx     context.Context
	cancel  context.CancelFunc
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New launches the browser. Close must be called to release it.
func New(opts *Options) (*Session, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	actions := []chromedp.Action{network.Enable()}
	if len(opts.ExtraHeaders) > 0 {
		headers := make(network.Headers, len(opts.ExtraHeaders))
		for k, v := range opts.ExtraHeaders {
			headers[k] = v
		}
		actions = append(actions, network.SetExtraHTTPHeaders(headers))
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	s := &Session{
		ctx: ctx,
		cancel: func() {
			cancel()
			allocCancel()
		},
		opts:    *opts,
		limiter: newLimiter(opts.NavigationRate),
		logger:  slog.Default().With("component", "browser"),
	}
	return s, nil
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), 1)
}

// Render navigates to pageURL, waits until waitSelector matches at least one
// node and returns the rendered document.
func (s *Session) Render(ctx context.Context, pageURL, waitSelector string) (*goquery.Document, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithTimeout(s.ctx, s.opts.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	s.logger.Debug("navigating", slog.String("url", pageURL), slog.String("wait", waitSelector))

	var html string
	err := chromedp.Run(runCtx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady(waitSelector, chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			return nil, ErrNavigationTimeout{URL: pageURL, Selector: waitSelector, Err: context.DeadlineExceeded}
		}
		return nil, fmt.Errorf("render %s: %w", pageURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pageURL, err)
	}
	doc.Url, _ = url.Parse(pageURL)
	return doc, nil
}

// Close shuts the tab and the browser process down.
func (s *Session) Close() error {
	if s == nil || s.cancel == nil {
		return nil
	}
	s.cancel()
	s.cancel = nil
	return nil
}
