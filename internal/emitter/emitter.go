// Package emitter implements the change-tail loop: it watches the store's
// maximum timestamp, reads the delta past its in-memory watermark, groups
// new readings by metric and pushes them to stream subscribers.
//
// The watermark lives only in process memory. On restart it re-reads the
// store maximum, so pre-existing data is neither replayed nor skipped;
// this cold-start behavior is intended.
package emitter

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/skyking-delivery/skytrack/internal/audit"
	"github.com/skyking-delivery/skytrack/internal/config"
	"github.com/skyking-delivery/skytrack/internal/series"
	"github.com/skyking-delivery/skytrack/internal/store"
	"github.com/skyking-delivery/skytrack/internal/telemetry"
)

// TailStore is the read contract the emitter needs from the store.
type TailStore interface {
	MaxTimestamp(ctx context.Context) (time.Time, bool, error)
	Range(ctx context.Context, after, upto time.Time) ([]telemetry.Reading, error)
}

// Publisher pushes grouped deltas to stream subscribers, fire-and-forget.
type Publisher interface {
	PublishDelta(delta map[string][]telemetry.Point) error
}

// Emitter tails the store for new readings. It holds no lock against the
// fetcher or the request path; coordination happens entirely through the
// store's own transactional guarantees.
type Emitter struct {
	store   TailStore
	pub     Publisher
	cfg     *config.EmitterConfig
	logger  *log.Logger
	journal *audit.Logger

	watermark   time.Time
	initialized bool
	idleCycles  int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an emitter with an uninitialized watermark.
func New(tailStore TailStore, pub Publisher, cfg *config.EmitterConfig, logger *log.Logger) *Emitter {
	ctx, cancel := context.WithCancel(context.Background())
	return &Emitter{
		store:  tailStore,
		pub:    pub,
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// SetJournal attaches the pipeline journal. Optional.
func (e *Emitter) SetJournal(journal *audit.Logger) {
	e.journal = journal
}

// Start launches the tail loop in its own goroutine.
func (e *Emitter) Start() {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run()
	}()
}

// Stop signals the loop to exit and waits for it.
func (e *Emitter) Stop() {
	e.cancel()
	e.wg.Wait()
}

func (e *Emitter) run() {
	e.logger.Printf("starting change-tail emitter, interval %s", e.cfg.Interval())

	for {
		select {
		case <-e.ctx.Done():
			e.logger.Printf("emitter stopped")
			return
		default:
		}

		sleep := e.cfg.Interval()
		if err := e.Iterate(e.ctx); err != nil {
			if store.IsUnavailable(err) {
				e.logger.Printf("error: store unavailable, backing off %s: %v",
					e.cfg.StoreRetryBackoff(), err)
				sleep = e.cfg.StoreRetryBackoff()
			} else {
				e.logger.Printf("error: emitter iteration failed: %v", err)
			}
		}

		if !sleepCtx(e.ctx, sleep) {
			e.logger.Printf("emitter stopped")
			return
		}
	}
}

// Iterate runs a single tail iteration. The watermark only moves forward:
// to the maximum timestamp observed in the fetched delta, or, when the
// store max advanced but the range read came back empty, to that phantom
// max, so the loop cannot stall re-reading the same window forever.
func (e *Emitter) Iterate(ctx context.Context) error {
	currentMax, ok, err := e.store.MaxTimestamp(ctx)
	if err != nil {
		return err
	}
	if !ok {
		// Store still empty
		return nil
	}

	if !e.initialized {
		// Cold start: adopt the current maximum without emitting a backlog.
		e.watermark = currentMax
		e.initialized = true
		e.logger.Printf("watermark initialized at %s", telemetry.FormatTimestamp(currentMax))
		return nil
	}

	if !currentMax.After(e.watermark) {
		e.noteIdle(currentMax)
		return nil
	}

	readings, err := e.store.Range(ctx, e.watermark, currentMax)
	if err != nil {
		return err
	}

	if len(readings) == 0 {
		// Read-your-write skew: max advanced but the rows are not visible
		// through this connection yet. Advance anyway to avoid an infinite
		// re-read of a phantom max.
		e.logger.Printf("store max %s ahead of watermark %s but range read returned no rows; advancing watermark",
			telemetry.FormatTimestamp(currentMax), telemetry.FormatTimestamp(e.watermark))
		e.watermark = currentMax
		e.idleCycles++
		return nil
	}

	delta := make(map[string][]telemetry.Point)
	maxObserved := e.watermark
	for _, r := range readings {
		delta[r.Metric] = append(delta[r.Metric], telemetry.Point{
			Value:     series.CoerceValue(r.Value),
			Timestamp: r.ISO(),
		})
		if r.Timestamp.After(maxObserved) {
			maxObserved = r.Timestamp
		}
	}

	if err := e.pub.PublishDelta(delta); err != nil {
		// Fire-and-forget: log and advance regardless, subscribers catch up
		// from the snapshot endpoint.
		e.logger.Printf("warning: delta publish failed: %v", err)
	}
	e.record("emit_delta", map[string]interface{}{
		"metrics":  len(delta),
		"readings": len(readings),
		"upto":     telemetry.FormatTimestamp(maxObserved),
	}, nil)

	e.logger.Printf("emitted %d readings across %d metrics, watermark %s -> %s",
		len(readings), len(delta),
		telemetry.FormatTimestamp(e.watermark), telemetry.FormatTimestamp(maxObserved))

	e.watermark = maxObserved
	e.idleCycles = 0
	return nil
}

// Watermark returns the current watermark and whether it is initialized.
func (e *Emitter) Watermark() (time.Time, bool) {
	return e.watermark, e.initialized
}

// noteIdle counts consecutive no-data iterations and logs the first one,
// then every IdleLogCycles-th, to keep outage diagnosis possible without
// flooding the log at the tail cadence.
func (e *Emitter) noteIdle(currentMax time.Time) {
	e.idleCycles++
	if e.idleCycles == 1 || e.idleCycles%e.cfg.IdleLogCycles == 0 {
		e.logger.Printf("no new readings (cycle %d), store max %s, watermark %s",
			e.idleCycles,
			telemetry.FormatTimestamp(currentMax),
			telemetry.FormatTimestamp(e.watermark))
	}
}

func (e *Emitter) record(action string, detail map[string]interface{}, err error) {
	if e.journal != nil {
		e.journal.Record("emitter", action, detail, err)
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
