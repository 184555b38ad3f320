// Package store implements the durable telemetry store on Postgres.
//
// The access contract is intentionally narrow: atomic batch append, max
// timestamp, exclusive-after/inclusive-upto range reads for the change
// tail, and trailing-window reads for the snapshot endpoint. Errors are
// normalized to two kinds, STORE_UNAVAILABLE and STORE_WRITE_FAILED, so
// callers can choose a retry cadence without inspecting driver detail.
package store
