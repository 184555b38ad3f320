// Package api implements the HTTP surface of the telemetry service: the
// columnar snapshot endpoint, the SSE stream endpoint and the health probe.
//
// Errors cross this boundary as normalized store sentinels and are mapped
// to HTTP statuses without leaking internal detail to clients.
package api
