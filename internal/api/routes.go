package api

import (
	"context"
	"net/http"
	"time"

	"github.com/skyking-delivery/skytrack/internal/series"
)

// RegisterRoutes registers all v1 endpoints plus the legacy dashboard alias.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	apiV1 := "/api/v1"

	// Health endpoint
	mux.HandleFunc(apiV1+"/health", s.handleHealth)

	// Snapshot endpoint, columnar initial data for the chart dashboard
	mux.HandleFunc(apiV1+"/telemetry/snapshot", s.handleSnapshot)

	// Legacy alias kept for the original dashboard frontend
	mux.HandleFunc("/api/datos-iniciales", s.handleSnapshot)

	// Real-time stream endpoint (SSE)
	mux.HandleFunc(apiV1+"/telemetry/stream", s.handleStream)
}

// handleSnapshot handles GET /api/v1/telemetry/snapshot.
// It reshapes the trailing window of readings into the columnar shape the
// dashboard charts consume: {"timestamps": [...], "<metric>": [...], ...}.
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	if s.store == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE",
			"Telemetry store not available", nil)
		return
	}

	readings, err := s.store.Since(r.Context(), s.snapshot.Window())
	if err != nil {
		s.logger.Printf("error: snapshot read failed: %v", err)
		WriteAPIError(w, err)
		return
	}

	snapshot := series.Reshape(readings)
	s.logger.Printf("snapshot served: %d timestamps, %d metrics",
		len(snapshot.Timestamps), len(snapshot.Columns))

	WriteJSON(w, http.StatusOK, snapshot)
}

// handleStream handles GET /api/v1/telemetry/stream (SSE).
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	if s.hub == nil {
		WriteError(w, http.StatusServiceUnavailable, "UNAVAILABLE",
			"Telemetry stream not available", nil)
		return
	}

	if err := s.hub.Subscribe(r.Context(), w, r); err != nil {
		WriteError(w, http.StatusInternalServerError, "INTERNAL",
			"Failed to subscribe to telemetry stream", nil)
		return
	}
}

// handleHealth handles GET /api/v1/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED",
			"Only GET method is allowed", nil)
		return
	}

	uptime := 0.0
	if !s.startTime.IsZero() {
		uptime = time.Since(s.startTime).Seconds()
	}

	subsystems := s.checkSubsystemHealth(r.Context())

	overallStatus := "ok"
	if !subsystems["stream"] || !subsystems["store"] {
		overallStatus = "degraded"
	}

	health := map[string]interface{}{
		"status":     overallStatus,
		"uptimeSec":  uptime,
		"subsystems": subsystems,
	}
	if s.hub != nil {
		health["subscribers"] = s.hub.SubscriberCount()
	}

	if overallStatus == "ok" {
		WriteSuccess(w, health)
	} else {
		WriteError(w, http.StatusServiceUnavailable, "SERVICE_DEGRADED",
			"One or more subsystems are unavailable", health)
	}
}

// checkSubsystemHealth probes the hub and the store. The store probe is
// bounded so a hung database cannot hang the health endpoint.
func (s *Server) checkSubsystemHealth(ctx context.Context) map[string]bool {
	subsystems := make(map[string]bool)

	subsystems["stream"] = s.hub != nil

	storeOK := false
	if s.store != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		storeOK = s.store.Ping(pingCtx) == nil
		cancel()
	}
	subsystems["store"] = storeOK

	return subsystems
}
