package socrata

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opendatacatalog/catalogsync/internal/adapter"
	"github.com/opendatacatalog/catalogsync/internal/model"
)

func scriptedFetch(t *testing.T, pages map[string]string) adapter.FetchFunc {
	return func(ctx context.Context, url string, init adapter.FetchInit) (*adapter.FetchResponse, error) {
		body, ok := pages[url]
		require.True(t, ok, "unscripted URL: %s", url)
		return &adapter.FetchResponse{StatusCode: 200, Body: []byte(body)}, nil
	}
}

func baseURLFunc(region model.Region) string {
	return "https://api.us.socrata.com"
}

func TestDiscover_OneAgencyPerDomain(t *testing.T) {
	first := "https://api.us.socrata.com/api/catalog/v1/domains?limit=100"
	fetch := scriptedFetch(t, map[string]string{
		first: `{"results":[
			{"domain":"data.city1.gov","metadata":{"agencies":["Dept A"]}},
			{"domain":"data.city2.gov","metadata":{"agencies":["Dept B"]}}
		],"links":{}}`,
	})

	d := NewDiscoverer(fetch, baseURLFunc, 100)
	it, err := d.Discover(context.Background(), model.RegionUS, 0)
	require.NoError(t, err)

	var items []*model.CatalogItem
	for {
		item, ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		items = append(items, item)
	}
	require.Len(t, items, 2)
	require.Equal(t, "Dept A", *items[0].Agency)
	require.Equal(t, "Dept B", *items[1].Agency)
}

func TestDiscover_EmptyAgencyListEmitsNullAgency(t *testing.T) {
	first := "https://api.us.socrata.com/api/catalog/v1/domains?limit=100"
	fetch := scriptedFetch(t, map[string]string{
		first: `{"results":[{"domain":"data.city3.gov","metadata":{}}],"links":{}}`,
	})
	d := NewDiscoverer(fetch, baseURLFunc, 100)
	it, err := d.Discover(context.Background(), model.RegionUS, 0)
	require.NoError(t, err)

	item, ok, err := it.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, item.Agency)

	_, ok, err = it.Next(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestDiscover_MultipleAgenciesPerDomainAllEmitted(t *testing.T) {
	first := "https://api.us.socrata.com/api/catalog/v1/domains?limit=100"
	fetch := scriptedFetch(t, map[string]string{
		first: `{"results":[{"domain":"data.city4.gov","metadata":{"agencies":["A","B","C"]}}],"links":{}}`,
	})
	d := NewDiscoverer(fetch, baseURLFunc, 100)
	it, err := d.Discover(context.Background(), model.RegionUS, 0)
	require.NoError(t, err)

	var names []string
	for {
		item, ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		names = append(names, *item.Agency)
	}
	require.Equal(t, []string{"A", "B", "C"}, names)
}

func TestDiscover_PaginatesViaLinksNext(t *testing.T) {
	first := "https://api.us.socrata.com/api/catalog/v1/domains?limit=100"
	secondCursorURL := "https://api.us.socrata.com/api/catalog/v1/domains?cursor=abc123&limit=100"
	fetch := scriptedFetch(t, map[string]string{
		first:           `{"results":[{"domain":"data.city5.gov","metadata":{}}],"links":{"next":"abc123"}}`,
		secondCursorURL: `{"results":[{"domain":"data.city6.gov","metadata":{}}],"links":{}}`,
	})
	d := NewDiscoverer(fetch, baseURLFunc, 100)
	it, err := d.Discover(context.Background(), model.RegionUS, 0)
	require.NoError(t, err)

	var hosts []string
	for {
		item, ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		hosts = append(hosts, item.Host)
	}
	require.Equal(t, []string{"data.city5.gov", "data.city6.gov"}, hosts)
}

func TestDiscover_LimitCapsTotalEmitted(t *testing.T) {
	first := "https://api.us.socrata.com/api/catalog/v1/domains?limit=100"
	fetch := scriptedFetch(t, map[string]string{
		first: `{"results":[
			{"domain":"d1","metadata":{"agencies":["A","B"]}},
			{"domain":"d2","metadata":{"agencies":["C","D"]}}
		],"links":{}}`,
	})
	d := NewDiscoverer(fetch, baseURLFunc, 100)
	it, err := d.Discover(context.Background(), model.RegionUS, 2)
	require.NoError(t, err)

	count := 0
	for {
		_, ok, err := it.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		count++
	}
	require.Equal(t, 2, count)
}

func TestDiscover_InvalidJSONIsSchemaError(t *testing.T) {
	first := "https://api.us.socrata.com/api/catalog/v1/domains?limit=100"
	fetch := scriptedFetch(t, map[string]string{first: `not json`})
	d := NewDiscoverer(fetch, baseURLFunc, 100)
	it, err := d.Discover(context.Background(), model.RegionUS, 0)
	require.NoError(t, err)

	_, _, err = it.Next(context.Background())
	require.Error(t, err)
	var schemaErr *adapter.SchemaError
	require.ErrorAs(t, err, &schemaErr)
}

func TestDomainResult_AgencyFieldVariants(t *testing.T) {
	var d domainResult
	require.NoError(t, json.Unmarshal([]byte(`{"domain":"x","metadata":{"agency":"solo"}}`), &d))
	require.Equal(t, []string{"solo"}, d.agencies())
}
