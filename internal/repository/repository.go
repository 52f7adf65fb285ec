// Package repository implements the catalog repository: idempotent
// host/domain/agency/dataset upserts, stale-dataset retirement, and the
// durable resume-state checkpoint, all Postgres-backed.
package repository

import (
	"context"
	"time"

	"github.com/opendatacatalog/catalogsync/internal/model"
)

// UpsertResult reports how many rows an upsert inserted vs. updated.
// Backends without RETURNING-based counting may report {N, 0} as a coarse
// total; PgRepository always reports accurate counts via xmax = 0.
type UpsertResult struct {
	Inserted int
	Updated  int
}

// Repository is the uniform catalog persistence contract the pipeline
// depends on. All operations are idempotent.
type Repository interface {
	UpsertHost(ctx context.Context, host model.Host) error
	UpsertDomain(ctx context.Context, domain model.Domain) error
	UpsertAgency(ctx context.Context, agency model.Agency) error
	UpsertDatasets(ctx context.Context, host string, datasets []model.Dataset) (UpsertResult, error)
	RetireStaleDatasets(ctx context.Context, host string, cutoff time.Time) (int, error)
	LoadResumeState(ctx context.Context, pipeline string) (*model.ResumeState, error)
	UpdateResumeState(ctx context.Context, pipeline, token string, processedAt time.Time) error

	// ProcessItemBatch runs the host/domain/agency upserts for every item
	// in the batch, plus the resume-state update, in a single transaction.
	// On failure the whole transaction rolls back and the resume token
	// stays at its prior committed value.
	ProcessItemBatch(ctx context.Context, pipeline string, items []model.CatalogItem, resumeToken string, processedAt time.Time) error
}
