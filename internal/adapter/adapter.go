// Package adapter defines the uniform capability set ("portal adapter
// contract") that every catalog driver (Socrata, CKAN, ArcGIS) implements,
// and the error taxonomy drivers report through.
//
// The pipeline depends only on this capability set, never on a concrete
// driver: tests substitute a recording/replay driver and production wires
// the Socrata driver in internal/socrata.
package adapter

import (
	"context"

	"github.com/opendatacatalog/catalogsync/internal/model"
)

// Operator is a SoQL/CKAN-agnostic comparison operator for WHERE predicates.
type Operator string

const (
	OpEq       Operator = "="
	OpNeq      Operator = "!="
	OpGt       Operator = ">"
	OpGte      Operator = ">="
	OpLt       Operator = "<"
	OpLte      Operator = "<="
	OpIn       Operator = "IN"
	OpNotIn    Operator = "NOT IN"
	OpLike     Operator = "LIKE"
	OpILike    Operator = "ILIKE"
	OpIsNull   Operator = "IS NULL"
	OpNotNull  Operator = "IS NOT NULL"
	OpBetween  Operator = "BETWEEN"
)

// Predicate is a single WHERE clause term.
type Predicate struct {
	Field string
	Op    Operator
	Value any // nil for IS NULL / IS NOT NULL
}

// Query is the adapter-agnostic row query shape. Where is passed through
// natively by the adapter-specific dialect; the rest is translated.
type Query struct {
	Select  []string
	Where   []Predicate
	OrderBy []string
	GroupBy []string
	Limit   int
	Offset  int
	// Extra carries driver-specific passthrough parameters. Only keys
	// honoring the driver's prefix convention (e.g. "$" for Socrata) are
	// forwarded; everything else is dropped by the driver without an error.
	Extra map[string]string
}

// ListOptions controls discovery pagination.
type ListOptions struct {
	Limit  int
	Offset int
	Cursor string
}

// Fetch is the HTTP transport shape the core consumes, so it can be mocked
// or cassette-replayed. Init mirrors the subset of http.Request fields a
// driver needs to set.
type FetchInit struct {
	Method  string
	Headers map[string]string
	Body    []byte
}

type FetchResponse struct {
	StatusCode int
	Header     map[string]string
	Body       []byte
}

// FetchFunc is the `fetch(url, init)`-shaped function the core consumes.
type FetchFunc func(ctx context.Context, url string, init FetchInit) (*FetchResponse, error)

// EntryIterator is a lazy, finite, restartable-only-via-cursor sequence of
// PortalCatalogEntry. Next returns (nil, false, nil) at end of stream.
type EntryIterator interface {
	Next(ctx context.Context) (*model.PortalCatalogEntry, bool, error)
}

// RowIterator is a lazy sequence of row records.
type RowIterator interface {
	Next(ctx context.Context) (map[string]any, bool, error)
}

// CatalogItemIterator is the discovery-level stream the pipeline consumes.
type CatalogItemIterator interface {
	Next(ctx context.Context) (*model.CatalogItem, bool, error)
}

// Driver is the uniform capability set a portal backend implements.
type Driver interface {
	// ListCatalog returns a lazy sequence of PortalCatalogEntry.
	ListCatalog(ctx context.Context, opts ListOptions) (EntryIterator, error)
	// FetchRows returns a lazy sequence of row records for idOrURL.
	FetchRows(ctx context.Context, idOrURL string, q Query) (RowIterator, error)
	// FetchMetadata returns normalized dataset metadata.
	FetchMetadata(ctx context.Context, id string) (*model.DatasetMetadata, error)
}

// Discoverer produces CatalogItem records; this is what the
// ingest pipeline actually drives, one level above the generic catalog
// listing every Driver exposes.
type Discoverer interface {
	Discover(ctx context.Context, region model.Region, limit int) (CatalogItemIterator, error)
}
