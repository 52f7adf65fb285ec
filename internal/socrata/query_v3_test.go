package socrata

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opendatacatalog/catalogsync/internal/adapter"
	"github.com/opendatacatalog/catalogsync/internal/secrets"
)

func TestQueryV3_PagesWhileFullPages(t *testing.T) {
	calls := 0
	fetch := func(ctx context.Context, url string, init adapter.FetchInit) (*adapter.FetchResponse, error) {
		calls++
		var body v3RequestBody
		require.NoError(t, json.Unmarshal(init.Body, &body))
		if body.Page.PageNumber == 1 {
			return &adapter.FetchResponse{StatusCode: 200, Body: []byte(`{"results":[{"a":1},{"a":2}]}`)}, nil
		}
		return &adapter.FetchResponse{StatusCode: 200, Body: []byte(`{"results":[{"a":3}]}`)}, nil
	}
	c := NewQueryV3Client(fetch, "https://data.example.gov", "data.example.gov", secrets.MapAccessor{})
	it := c.FetchRows(context.Background(), "abcd-1234", "select *", 2, false)

	var rows []map[string]any
	for {
		row, ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		rows = append(rows, row)
	}
	require.Len(t, rows, 3)
	require.Equal(t, 2, calls)
}

func TestQueryV3_AuthPrecedenceDatasetOverHost(t *testing.T) {
	keys := secrets.MapAccessor{
		"SOCRATA__DATA_EXAMPLE_GOV__V3_KEY_ID":     "hostkey",
		"SOCRATA__DATA_EXAMPLE_GOV__V3_KEY_SECRET": "hostsecret",
		"SOCRATA__DATA_EXAMPLE_GOV__abcd1234__V3_KEY_ID":     "datasetkey",
		"SOCRATA__DATA_EXAMPLE_GOV__abcd1234__V3_KEY_SECRET": "datasetsecret",
	}
	var seenAuth string
	fetch := func(ctx context.Context, url string, init adapter.FetchInit) (*adapter.FetchResponse, error) {
		seenAuth = init.Headers["Authorization"]
		return &adapter.FetchResponse{StatusCode: 200, Body: []byte(`{"results":[]}`)}, nil
	}
	c := NewQueryV3Client(fetch, "https://data.example.gov", "data.example.gov", keys)
	it := c.FetchRows(context.Background(), "abcd-1234", "select *", 100, false)
	_, _, err := it.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, basicAuthHeader("datasetkey", "datasetsecret"), seenAuth)
}

func TestQueryV3_AnonymousFallsBackToAppToken(t *testing.T) {
	keys := secrets.MapAccessor{"SOCRATA_APP_TOKEN": "tok123"}
	var seenAuth, seenToken string
	fetch := func(ctx context.Context, url string, init adapter.FetchInit) (*adapter.FetchResponse, error) {
		seenAuth = init.Headers["Authorization"]
		seenToken = init.Headers["X-App-Token"]
		return &adapter.FetchResponse{StatusCode: 200, Body: []byte(`{"results":[]}`)}, nil
	}
	c := NewQueryV3Client(fetch, "https://data.example.gov", "data.example.gov", keys)
	it := c.FetchRows(context.Background(), "abcd-1234", "select *", 100, false)
	_, _, err := it.Next(context.Background())
	require.NoError(t, err)
	require.Empty(t, seenAuth)
	require.Equal(t, "tok123", seenToken)
}

func TestQueryV3_BareArrayResponseAccepted(t *testing.T) {
	fetch := func(ctx context.Context, url string, init adapter.FetchInit) (*adapter.FetchResponse, error) {
		return &adapter.FetchResponse{StatusCode: 200, Body: []byte(`[{"a":1}]`)}, nil
	}
	c := NewQueryV3Client(fetch, "https://data.example.gov", "data.example.gov", secrets.MapAccessor{})
	it := c.FetchRows(context.Background(), "abcd-1234", "select *", 100, false)
	row, ok, err := it.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, float64(1), row["a"])
}

func TestQueryV3_FatalStatusIsV3Unavailable(t *testing.T) {
	fetch := func(ctx context.Context, url string, init adapter.FetchInit) (*adapter.FetchResponse, error) {
		return nil, &adapter.FatalHTTPError{URL: url, StatusCode: 404}
	}
	c := NewQueryV3Client(fetch, "https://data.example.gov", "data.example.gov", secrets.MapAccessor{})
	it := c.FetchRows(context.Background(), "abcd-1234", "select *", 100, false)
	_, _, err := it.Next(context.Background())
	require.Error(t, err)
	var fatal *adapter.FatalHTTPError
	require.ErrorAs(t, err, &fatal)
	require.True(t, fatal.IsV3Unavailable())
}

func TestQueryV3_CancellationAborted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fetch := func(ctx context.Context, url string, init adapter.FetchInit) (*adapter.FetchResponse, error) {
		t.Fatal("fetch must not be called after cancellation")
		return nil, nil
	}
	c := NewQueryV3Client(fetch, "https://data.example.gov", "data.example.gov", secrets.MapAccessor{})
	it := c.FetchRows(ctx, "abcd-1234", "select *", 100, false)
	_, _, err := it.Next(ctx)
	require.Error(t, err)
	var canceled *adapter.CancellationError
	require.ErrorAs(t, err, &canceled)
}
