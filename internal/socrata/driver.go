package socrata

import (
	"context"
	"errors"

	"github.com/opendatacatalog/catalogsync/internal/adapter"
	"github.com/opendatacatalog/catalogsync/internal/codec"
	"github.com/opendatacatalog/catalogsync/internal/model"
	"github.com/opendatacatalog/catalogsync/internal/secrets"
)

// Driver composes the discovery, row, and metadata clients behind the
// adapter.Driver capability set for one host. Row and metadata access are
// bound to Host and never switch regions. Discovery is region-scoped
// (Discoverer reads one region per call) and does not fail over to the
// other region either.
type Driver struct {
	Host     string
	BaseURL  string
	AppToken string
	Keys     secrets.Accessor

	rows     *RowClient
	v3       *QueryV3Client
	metadata *MetadataClient
}

func NewDriver(fetch adapter.FetchFunc, host, baseURL, appToken string, keys secrets.Accessor) *Driver {
	return &Driver{
		Host:     host,
		BaseURL:  baseURL,
		AppToken: appToken,
		Keys:     keys,
		rows:     NewRowClient(fetch, baseURL, appToken),
		v3:       NewQueryV3Client(fetch, baseURL, host, keys),
		metadata: NewMetadataClient(fetch, baseURL, appToken),
	}
}

// ListCatalog is not meaningful for a host-bound Driver; discovery is
// region-scoped and lives on Discoverer instead. Present to satisfy
// adapter.Driver for callers that only need row/metadata access.
func (d *Driver) ListCatalog(ctx context.Context, opts adapter.ListOptions) (adapter.EntryIterator, error) {
	return emptyEntryIterator{}, nil
}

// FetchRows tries the v3 POST query first; on a v3-unavailable fatal error
// it falls back to v2 GET pagination. Values are normalized against the
// dataset's column metadata (field name to logical type) before rows reach
// the caller, so a scoring or storage consumer sees Go-native values rather
// than raw wire strings.
func (d *Driver) FetchRows(ctx context.Context, idOrURL string, q adapter.Query) (adapter.RowIterator, error) {
	where, err := buildWhereClause(q)
	if err != nil {
		return nil, err
	}
	pageSize := q.Limit
	if pageSize <= 0 {
		pageSize = 1000
	}

	fieldTypes := d.fieldLogicalTypes(ctx, idOrURL)

	it := d.v3.FetchRows(ctx, idOrURL, where, pageSize, false)

	probe, ok, probeErr := it.Next(ctx)
	if probeErr != nil {
		var fatal *adapter.FatalHTTPError
		if errors.As(probeErr, &fatal) && fatal.IsV3Unavailable() {
			raw, rawErr := d.rows.FetchRows(ctx, idOrURL, q, 0)
			if rawErr != nil {
				return nil, rawErr
			}
			return &normalizingIterator{rest: raw, fieldTypes: fieldTypes}, nil
		}
		return nil, probeErr
	}
	return &normalizingIterator{
		rest:       &prependIterator{first: probe, firstOK: ok, rest: it},
		fieldTypes: fieldTypes,
	}, nil
}

// fieldLogicalTypes fetches column metadata once and indexes it by
// FieldName, the key rows are actually keyed by on the wire. A metadata
// fetch failure degrades to no known types rather than failing the row
// fetch outright: normalization is an enrichment, not a precondition for
// reading rows.
func (d *Driver) fieldLogicalTypes(ctx context.Context, idOrURL string) map[string]model.LogicalType {
	meta, err := d.metadata.FetchMetadata(ctx, idOrURL)
	if err != nil {
		return nil
	}
	out := make(map[string]model.LogicalType, len(meta.Columns))
	for _, col := range meta.Columns {
		out[col.FieldName] = col.LogicalType
	}
	return out
}

// normalizingIterator wraps a raw row iterator, converting each field's
// wire value into its Go-native form via the codec registered for that
// column's logical type. A field with no known column, or whose value
// doesn't parse, passes through unchanged.
type normalizingIterator struct {
	rest       adapter.RowIterator
	fieldTypes map[string]model.LogicalType
}

func (n *normalizingIterator) Next(ctx context.Context) (map[string]any, bool, error) {
	row, ok, err := n.rest.Next(ctx)
	if err != nil || !ok {
		return row, ok, err
	}
	for field, raw := range row {
		lt, known := n.fieldTypes[field]
		if !known || raw == nil {
			continue
		}
		if v, parsed := codec.For(lt).Parse(raw); parsed {
			row[field] = v
		}
	}
	return row, true, nil
}

func (d *Driver) FetchMetadata(ctx context.Context, id string) (*model.DatasetMetadata, error) {
	return d.metadata.FetchMetadata(ctx, id)
}

// buildWhereClause renders q.Where into a single SoQL string for the v3
// query field, reusing the same allow-list-free trust model as RowClient.
func buildWhereClause(q adapter.Query) (string, error) {
	params, err := BuildSoQL(adapter.Query{Where: q.Where}, allowListFromQuery(q))
	if err != nil {
		return "", err
	}
	return params["$where"], nil
}

type emptyEntryIterator struct{}

func (emptyEntryIterator) Next(ctx context.Context) (*model.PortalCatalogEntry, bool, error) {
	return nil, false, nil
}

// prependIterator re-surfaces a row already consumed during the v3
// availability probe, then delegates to the underlying iterator.
type prependIterator struct {
	first    map[string]any
	firstOK  bool
	consumed bool
	rest     adapter.RowIterator
}

func (p *prependIterator) Next(ctx context.Context) (map[string]any, bool, error) {
	if !p.consumed {
		p.consumed = true
		if p.firstOK {
			return p.first, true, nil
		}
		return nil, false, nil
	}
	return p.rest.Next(ctx)
}
