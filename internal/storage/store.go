package storage

import (
	"context"

	"evovis/internal/model"
)

// Store persists the index of ingested runs: a summary row per run plus the
// structural snapshot it was built from.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, summary model.RunSummary, snapshot model.RunSnapshot) error
	GetRunSummary(ctx context.Context, runID string) (model.RunSummary, bool, error)
	GetRunSnapshot(ctx context.Context, runID string) (model.RunSnapshot, bool, error)
	// ListRuns returns summaries newest first. A limit <= 0 returns all.
	ListRuns(ctx context.Context, limit int) ([]model.RunSummary, error)
	DeleteRun(ctx context.Context, runID string) error
}
