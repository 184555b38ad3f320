// Package api defines ports (interfaces) for API server dependencies.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/skyking-delivery/skytrack/internal/store"
	"github.com/skyking-delivery/skytrack/internal/telemetry"
)

// SnapshotStore defines the minimal interface the API needs from the
// telemetry store.
type SnapshotStore interface {
	Since(ctx context.Context, window time.Duration) ([]telemetry.Reading, error)
	Ping(ctx context.Context) error
}

// StreamPort defines the minimal interface the API needs from the hub.
type StreamPort interface {
	Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error
	SubscriberCount() int
}

// Compile-time assertions for port conformance
var _ SnapshotStore = (*store.Postgres)(nil)
var _ StreamPort = (*telemetry.Hub)(nil)
