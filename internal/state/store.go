// Package state keeps a history of merge runs in a local SQLite database.
package state

import (
	"context"
	"time"
)

// MergeRun is one recorded merge.
type MergeRun struct {
	ID           string    `json:"id"`
	StartedAt    time.Time `json:"started_at"`
	MasterFile   string    `json:"master_file"`
	DumpFile     string    `json:"dump_file"`
	OutputFile   string    `json:"output_file,omitempty"`
	MasterRows   int       `json:"master_rows"`
	IncomingRows int       `json:"incoming_rows"`
	CombinedRows int       `json:"combined_rows"`
	Removed      int       `json:"duplicates_removed"`
	Deduplicated bool      `json:"deduplicated"`
	DryRun       bool      `json:"dry_run"`
}

// Store records and lists merge runs.
type Store interface {
	Open(path string) error
	Close() error
	Migrate() error

	// RecordMerge stores run and returns it with ID and StartedAt filled in
	// when they were empty.
	RecordMerge(ctx context.Context, run MergeRun) (*MergeRun, error)
	// ListMerges returns the most recent runs first. A limit <= 0 returns all.
	ListMerges(ctx context.Context, limit int) ([]*MergeRun, error)
}

var _ Store = (*SQLiteStore)(nil)
