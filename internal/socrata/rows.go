package socrata

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/opendatacatalog/catalogsync/internal/adapter"
)

const (
	minPageSize = 1
	maxPageSize = 1000
)

func clampPageSize(n int) int {
	if n < minPageSize {
		return minPageSize
	}
	if n > maxPageSize {
		return maxPageSize
	}
	return n
}

// RowClient fetches rows for one dataset via the v2 GET-based API. It is
// host-bound: constructed once per host and never fails over to the other
// region (only discovery does).
type RowClient struct {
	Fetch     adapter.FetchFunc
	BaseURL   string
	AppToken  string
	Throttle  time.Duration // sleep between pages; 0 disables
	sleepFunc func(context.Context, time.Duration) error
}

func NewRowClient(fetch adapter.FetchFunc, baseURL, appToken string) *RowClient {
	return &RowClient{Fetch: fetch, BaseURL: baseURL, AppToken: appToken, sleepFunc: defaultSleep}
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FetchRows returns a lazy row iterator for idOrURL, honoring pageSize
// clamping, a short-page stop condition, and maxRows truncation.
func (c *RowClient) FetchRows(ctx context.Context, idOrURL string, q adapter.Query, maxRows int) (adapter.RowIterator, error) {
	pageSize := clampPageSize(q.Limit)
	if pageSize == 0 {
		pageSize = 1000
	}
	params, err := BuildSoQL(adapter.Query{
		Select:  q.Select,
		Where:   q.Where,
		OrderBy: q.OrderBy,
		GroupBy: q.GroupBy,
		Extra:   q.Extra,
	}, allowListFromQuery(q))
	if err != nil {
		return nil, err
	}

	return &rowIterator{
		client:   c,
		id:       idOrURL,
		params:   params,
		pageSize: pageSize,
		maxRows:  maxRows,
	}, nil
}

// allowListFromQuery builds an AllowList from the fields the caller already
// referenced in q: row queries trust the caller's own validation rather
// than requiring a second explicit allow-list.
func allowListFromQuery(q adapter.Query) AllowList {
	al := make(AllowList)
	for _, f := range q.Select {
		al[f] = true
	}
	for _, p := range q.Where {
		al[p.Field] = true
	}
	for _, f := range q.OrderBy {
		field := f
		if sp := strings.IndexByte(f, ' '); sp >= 0 {
			field = f[:sp]
		}
		al[field] = true
	}
	for _, f := range q.GroupBy {
		al[f] = true
	}
	return al
}

type rowIterator struct {
	client   *RowClient
	id       string
	params   map[string]string
	pageSize int
	maxRows  int
	offset   int
	emitted  int
	page     []map[string]any
	pageIdx  int
	done     bool
}

func (it *rowIterator) Next(ctx context.Context) (map[string]any, bool, error) {
	for {
		if it.maxRows > 0 && it.emitted >= it.maxRows {
			return nil, false, nil
		}
		if it.pageIdx < len(it.page) {
			row := it.page[it.pageIdx]
			it.pageIdx++
			it.emitted++
			return row, true, nil
		}
		if it.done {
			return nil, false, nil
		}
		if err := it.fetchPage(ctx); err != nil {
			return nil, false, err
		}
	}
}

func (it *rowIterator) fetchPage(ctx context.Context) error {
	if it.offset > 0 && it.client.Throttle > 0 {
		if err := it.client.sleepFunc(ctx, it.client.Throttle); err != nil {
			return &adapter.CancellationError{Cause: err}
		}
	}

	v := url.Values{}
	for k, val := range it.params {
		v.Set(k, val)
	}
	v.Set("$limit", strconv.Itoa(it.pageSize))
	v.Set("$offset", strconv.Itoa(it.offset))

	u := it.client.BaseURL + "/resource/" + it.id + ".json?" + v.Encode()
	resp, err := it.client.Fetch(ctx, u, adapter.FetchInit{Method: "GET", Headers: discoveryHeaders(it.client.AppToken)})
	if err != nil {
		return err
	}

	var rows []map[string]any
	if unmarshalErr := json.Unmarshal(resp.Body, &rows); unmarshalErr != nil {
		return &adapter.SchemaError{Msg: "invalid row page response", Cause: unmarshalErr}
	}

	it.page = rows
	it.pageIdx = 0
	it.offset += len(rows)

	if len(rows) < it.pageSize {
		it.done = true
	}
	return nil
}
