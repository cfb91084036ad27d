package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aluiziolira/go-scrape-catalogue/models"
	"github.com/aluiziolira/go-scrape-catalogue/parser"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// OutputWriter defines the interface for data output.
type OutputWriter interface {
	Write(records []*models.OfferRecord) error
	Close() error
	Validate() error
}

// Pipeline checks records and hands each product's batch to the writer in
// the order it arrives.
type Pipeline struct {
	writer OutputWriter

	metrics metrics

	mu     sync.Mutex // guards closed/err and serialises writes
	closed bool
	err    error

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline over writer.
func NewPipeline(writer OutputWriter) *Pipeline {
	return &Pipeline{
		writer:   writer,
		metrics:  newMetrics(),
		shutdown: make(chan struct{}),
	}
}

// Process writes one batch of records. Records failing validation are
// counted and still written; an empty batch is a no-op.
func (p *Pipeline) Process(records ...*models.OfferRecord) error {
	batch := make([]*models.OfferRecord, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		batch = append(batch, p.prepare(record))
	}
	if len(batch) == 0 {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	if p.closed {
		return ErrPipelineClosed
	}

	if err := p.writer.Write(batch); err != nil {
		p.err = fmt.Errorf("write batch: %w", err)
		return p.err
	}
	p.metrics.addProcessed(len(batch))
	return nil
}

// Close prevents more submissions and stops progress reporting.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.signalShutdown()
	return p.Err()
}

// Err returns the first error encountered during processing.
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				processed := metrics["processed_records"].(int64)
				validation := metrics["validation_errors"].(map[string]int)
				slog.Info("pipeline progress",
					slog.Int64("processed", processed),
					slog.Any("validation_errors", validation),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) prepare(record *models.OfferRecord) *models.OfferRecord {
	if err := parser.ValidateRecord(record); err != nil {
		p.metrics.addValidation("incomplete_record")
		slog.Debug("incomplete record", slog.Any("error", err))
	}
	if record.Availability == nil {
		p.metrics.addValidation("missing_availability")
	}
	return record
}

func (p *Pipeline) signalShutdown() {
	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	validation map[string]int
}

func newMetrics() metrics {
	return metrics{
		validation: make(map[string]int),
	}
}

func (m *metrics) addProcessed(n int) {
	m.mu.Lock()
	m.processed += int64(n)
	m.mu.Unlock()
}

func (m *metrics) addValidation(kind string) {
	m.mu.Lock()
	m.validation[kind]++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	copyValidation := make(map[string]int, len(m.validation))
	for k, v := range m.validation {
		copyValidation[k] = v
	}

	return map[string]interface{}{
		"processed_records": m.processed,
		"validation_errors": copyValidation,
	}
}
