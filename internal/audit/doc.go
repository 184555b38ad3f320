// Package audit implements the append-only pipeline journal.
//
// Each ingest batch and each emitted delta is recorded as one JSONL entry
// with component, action, detail and outcome, so data gaps can be traced
// after the fact. Journal failures never propagate into the pipeline.
package audit
