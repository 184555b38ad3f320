// Package telemetry defines the Reading data model and the SSE hub that
// fans new readings out to connected dashboard clients.
//
// The hub buffers the last N events for reconnection support using
// Last-Event-ID headers and sends periodic heartbeats while at least one
// client is connected. Delivery is fire-and-forget; slow clients drop
// events rather than back-pressuring the emitter.
package telemetry
