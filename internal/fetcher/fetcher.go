// Package fetcher implements the periodic cloud telemetry poller.
//
// Each cycle requests every configured metric from the upstream device API,
// normalizes the successful replies and appends them to the store as one
// atomic batch. A single metric's failure never blocks the cycle, and no
// failure of any kind stops the loop: the poller runs until the service
// shuts down.
package fetcher

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/skyking-delivery/skytrack/internal/audit"
	"github.com/skyking-delivery/skytrack/internal/cloud"
	"github.com/skyking-delivery/skytrack/internal/config"
	"github.com/skyking-delivery/skytrack/internal/store"
	"github.com/skyking-delivery/skytrack/internal/telemetry"
)

// MetricSource fetches the latest sample of one metric.
type MetricSource interface {
	FetchMetric(ctx context.Context, metric string) (telemetry.Reading, error)
}

// BatchStore persists normalized readings.
type BatchStore interface {
	AppendBatch(ctx context.Context, readings []telemetry.Reading) (int, error)
}

// Fetcher polls the configured metrics on a fixed interval. The sleep runs
// from cycle end to next cycle start, so a slow upstream naturally throttles
// the effective rate.
type Fetcher struct {
	source  MetricSource
	store   BatchStore
	metrics []string
	cfg     *config.CloudConfig
	logger  *log.Logger
	journal *audit.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a fetcher. The metric list is copied so later config mutation
// cannot race the poll loop.
func New(source MetricSource, batchStore BatchStore, cfg *config.CloudConfig, logger *log.Logger) *Fetcher {
	ctx, cancel := context.WithCancel(context.Background())
	metrics := make([]string, len(cfg.Metrics))
	copy(metrics, cfg.Metrics)

	return &Fetcher{
		source:  source,
		store:   batchStore,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// SetJournal attaches the pipeline journal. Optional; a nil journal
// disables journaling without affecting the loop.
func (f *Fetcher) SetJournal(journal *audit.Logger) {
	f.journal = journal
}

// Start launches the poll loop in its own goroutine.
func (f *Fetcher) Start() {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.run()
	}()
}

// Stop signals the loop to exit and waits for it.
func (f *Fetcher) Stop() {
	f.cancel()
	f.wg.Wait()
}

func (f *Fetcher) run() {
	f.logger.Printf("starting cloud telemetry poller: %d metrics, interval %s",
		len(f.metrics), f.cfg.PollInterval())

	for {
		select {
		case <-f.ctx.Done():
			f.logger.Printf("poller stopped")
			return
		default:
		}

		f.Cycle(f.ctx)

		if !sleepCtx(f.ctx, f.cfg.PollInterval()) {
			f.logger.Printf("poller stopped")
			return
		}
	}
}

// Cycle runs one full extraction cycle and returns the number of readings
// written. Per-metric failures are logged and skipped; a store failure
// discards the whole batch for this cycle. Cycle never panics the loop and
// never returns an error for upstream trouble; the next cycle retries
// everything from scratch.
func (f *Fetcher) Cycle(ctx context.Context) int {
	readings := make([]telemetry.Reading, 0, len(f.metrics))
	failed := 0

	for _, metric := range f.metrics {
		select {
		case <-ctx.Done():
			return 0
		default:
		}

		reading, err := f.source.FetchMetric(ctx, metric)
		if err != nil {
			failed++
			switch {
			case errors.Is(err, cloud.ErrMalformed):
				f.logger.Printf("warning: dropping malformed reading for %q: %v", metric, err)
			case errors.Is(err, cloud.ErrUnavailable):
				f.logger.Printf("warning: upstream fetch failed for %q: %v", metric, err)
			default:
				f.logger.Printf("warning: unexpected error fetching %q: %v", metric, err)
			}
			continue
		}
		readings = append(readings, reading)
	}

	if len(readings) == 0 {
		f.logger.Printf("cycle complete: no valid readings (%d/%d metrics failed)", failed, len(f.metrics))
		return 0
	}

	written, err := f.store.AppendBatch(ctx, readings)
	f.record("append_batch", map[string]interface{}{
		"readings": len(readings),
		"failed":   failed,
		"written":  written,
	}, err)
	if err != nil {
		if store.IsUnavailable(err) {
			f.logger.Printf("error: store unavailable, dropping batch of %d readings: %v", len(readings), err)
		} else {
			f.logger.Printf("error: batch append rejected, dropping %d readings: %v", len(readings), err)
		}
		return 0
	}

	f.logger.Printf("cycle complete: %d readings written, %d metrics failed", written, failed)
	return written
}

func (f *Fetcher) record(action string, detail map[string]interface{}, err error) {
	if f.journal != nil {
		f.journal.Record("fetcher", action, detail, err)
	}
}

// sleepCtx sleeps for d unless ctx is done first. Returns false when the
// sleep was interrupted by cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
