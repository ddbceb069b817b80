// Package storage provides the SQLite-backed persistence collaborator.
//
// The dispatch core records lifecycle facts through the core.Recorder
// interface; this package stores them durably so task history, dead letter
// entries and accepted results survive process restarts. Recording is best
// effort: write failures are logged and never surface into the dispatch
// path.
package storage
