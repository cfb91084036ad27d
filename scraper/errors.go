package scraper

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/aluiziolira/go-scrape-catalogue/browser"
	"github.com/aluiziolira/go-scrape-catalogue/catalogue"
)

// ErrTimeout indicates a timeout while issuing a request.
type ErrTimeout struct {
	Err error
}

func (e ErrTimeout) Error() string {
	return fmt.Errorf("timeout: %w", e.Err).Error()
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrConnection indicates a network connectivity failure.
type ErrConnection struct {
	Err error
}

func (e ErrConnection) Error() string {
	return fmt.Errorf("connection: %w", e.Err).Error()
}

func (e ErrConnection) Unwrap() error {
	return e.Err
}

// ErrRemote indicates a non-2xx API response.
type ErrRemote struct {
	URL    string
	Status int
}

func (e ErrRemote) Error() string {
	return fmt.Sprintf("remote: status %d from %s", e.Status, e.URL)
}

// ErrDecode indicates a response body that is not the expected JSON.
type ErrDecode struct {
	URL string
	Err error
}

func (e ErrDecode) Error() string {
	return fmt.Errorf("decode %s: %w", e.URL, e.Err).Error()
}

func (e ErrDecode) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var navigation browser.ErrNavigationTimeout
	if errors.As(err, &navigation) {
		return "navigation_timeout"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var conn ErrConnection
	if errors.As(err, &conn) {
		return "connection"
	}
	var remote ErrRemote
	if errors.As(err, &remote) {
		return "remote"
	}
	var decode ErrDecode
	if errors.As(err, &decode) {
		return "decode"
	}
	var label catalogue.ErrPageLabel
	if errors.As(err, &label) {
		return "page_label"
	}
	if errors.Is(err, catalogue.ErrCategoryNotFound) {
		return "category_not_found"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "other"
}

func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout{Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout{Err: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return ErrConnection{Err: err}
	}
	return err
}
