package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/opendatacatalog/catalogsync/internal/adapter"
	"github.com/opendatacatalog/catalogsync/internal/model"
	"github.com/opendatacatalog/catalogsync/internal/repository"
)

type fakeIterator struct {
	items []model.CatalogItem
	idx   int
	err   error // returned once idx reaches len(items), instead of (nil, false, nil)
}

func (f *fakeIterator) Next(ctx context.Context) (*model.CatalogItem, bool, error) {
	if f.idx >= len(f.items) {
		if f.err != nil {
			err := f.err
			f.err = nil
			return nil, false, err
		}
		return nil, false, nil
	}
	item := f.items[f.idx]
	f.idx++
	return &item, true, nil
}

// fakeDiscoverer replays a scripted sequence of iterators per region, one
// per Discover call, so tests can simulate a transient failure on the first
// attempt and success on a retry.
type fakeDiscoverer struct {
	iterators map[model.Region][]*fakeIterator
	discoverErrOnce map[model.Region]error
	calls     map[model.Region]int
}

func newFakeDiscoverer() *fakeDiscoverer {
	return &fakeDiscoverer{
		iterators:       make(map[model.Region][]*fakeIterator),
		discoverErrOnce: make(map[model.Region]error),
		calls:           make(map[model.Region]int),
	}
}

func (f *fakeDiscoverer) Discover(ctx context.Context, region model.Region, limit int) (adapter.CatalogItemIterator, error) {
	if err, ok := f.discoverErrOnce[region]; ok {
		delete(f.discoverErrOnce, region)
		return nil, err
	}
	n := f.calls[region]
	f.calls[region]++
	its := f.iterators[region]
	if n >= len(its) {
		return &fakeIterator{}, nil
	}
	return its[n], nil
}

// fakeRepository records every call; ProcessItemBatch can be scripted to
// fail on a specific invocation index.
type fakeRepository struct {
	state *model.ResumeState

	batches    [][]model.CatalogItem
	tokens     []string
	failOnCall int // 1-indexed; 0 means never fail
	calls      int
}

func (f *fakeRepository) UpsertHost(context.Context, model.Host) error     { return nil }
func (f *fakeRepository) UpsertDomain(context.Context, model.Domain) error { return nil }
func (f *fakeRepository) UpsertAgency(context.Context, model.Agency) error { return nil }

func (f *fakeRepository) UpsertDatasets(context.Context, string, []model.Dataset) (repository.UpsertResult, error) {
	return repository.UpsertResult{}, nil
}

func (f *fakeRepository) RetireStaleDatasets(context.Context, string, time.Time) (int, error) {
	return 0, nil
}

func (f *fakeRepository) LoadResumeState(context.Context, string) (*model.ResumeState, error) {
	return f.state, nil
}

func (f *fakeRepository) UpdateResumeState(context.Context, string, string, time.Time) error {
	return nil
}

func (f *fakeRepository) ProcessItemBatch(ctx context.Context, pipeline string, items []model.CatalogItem, token string, processedAt time.Time) error {
	f.calls++
	if f.failOnCall != 0 && f.calls == f.failOnCall {
		return errors.New("Database connection lost")
	}
	batch := make([]model.CatalogItem, len(items))
	copy(batch, items)
	f.batches = append(f.batches, batch)
	f.tokens = append(f.tokens, token)
	return nil
}

type noSleep struct{}

func (noSleep) Sleep(ctx context.Context, d time.Duration) error { return nil }

func strPtr(s string) *string { return &s }
