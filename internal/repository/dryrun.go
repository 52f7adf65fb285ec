package repository

import (
	"context"
	"time"

	"github.com/opendatacatalog/catalogsync/internal/model"
)

// DryRunRepository satisfies Repository without touching storage: every
// write is a no-op and every upsert reports as if every row were inserted.
// LoadResumeState always reports no prior checkpoint, so a dry run always
// starts from the beginning of discovery.
type DryRunRepository struct{}

func NewDryRunRepository() *DryRunRepository {
	return &DryRunRepository{}
}

func (DryRunRepository) UpsertHost(context.Context, model.Host) error     { return nil }
func (DryRunRepository) UpsertDomain(context.Context, model.Domain) error { return nil }
func (DryRunRepository) UpsertAgency(context.Context, model.Agency) error { return nil }

func (DryRunRepository) UpsertDatasets(_ context.Context, _ string, datasets []model.Dataset) (UpsertResult, error) {
	return UpsertResult{Inserted: len(datasets)}, nil
}

func (DryRunRepository) RetireStaleDatasets(context.Context, string, time.Time) (int, error) {
	return 0, nil
}

func (DryRunRepository) LoadResumeState(context.Context, string) (*model.ResumeState, error) {
	return nil, nil
}

func (DryRunRepository) UpdateResumeState(context.Context, string, string, time.Time) error {
	return nil
}

func (DryRunRepository) ProcessItemBatch(context.Context, string, []model.CatalogItem, string, time.Time) error {
	return nil
}
