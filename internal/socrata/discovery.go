package socrata

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"

	"github.com/opendatacatalog/catalogsync/internal/adapter"
	"github.com/opendatacatalog/catalogsync/internal/model"
)

// domainsEnvelope is the {results, links} response of
// /api/catalog/v1/domains. Only this envelope is decoded: a payload that is
// a bare domain object, with no "results" array, yields no domains.
type domainsEnvelope struct {
	Results []domainResult `json:"results"`
	Links   struct {
		Next string `json:"next"`
	} `json:"links"`
}

type domainResult struct {
	Domain   string `json:"domain"`
	Metadata struct {
		Domain     string   `json:"domain"`
		Agencies   []string `json:"agencies"`
		Agency     string   `json:"agency"`
		AgencyList []string `json:"agency_list"`
	} `json:"metadata"`
}

// agencies returns the per-domain agency list, tolerating any of the field
// names real payloads have used.
func (d domainResult) agencies() []string {
	if len(d.Metadata.Agencies) > 0 {
		return d.Metadata.Agencies
	}
	if len(d.Metadata.AgencyList) > 0 {
		return d.Metadata.AgencyList
	}
	if d.Metadata.Agency != "" {
		return []string{d.Metadata.Agency}
	}
	return nil
}

func (d domainResult) host() string {
	if d.Domain != "" {
		return d.Domain
	}
	return d.Metadata.Domain
}

// Discoverer drives /api/catalog/v1/domains, paging via the server-returned
// links.next cursor and emitting one CatalogItem per listed agency (or a
// single null-agency item when none are listed).
type Discoverer struct {
	Fetch      adapter.FetchFunc
	BaseURL    func(region model.Region) string
	PageSize   int
	AppToken   string
}

func NewDiscoverer(fetch adapter.FetchFunc, baseURL func(model.Region) string, pageSize int) *Discoverer {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &Discoverer{Fetch: fetch, BaseURL: baseURL, PageSize: pageSize}
}

// Discover returns a lazy iterator over at most limit CatalogItem records
// for region. limit <= 0 means unbounded.
func (d *Discoverer) Discover(ctx context.Context, region model.Region, limit int) (adapter.CatalogItemIterator, error) {
	return &discoveryIterator{
		d:       d,
		region:  region,
		limit:   limit,
		nextURL: d.firstURL(region),
	}, nil
}

func (d *Discoverer) firstURL(region model.Region) string {
	v := url.Values{}
	v.Set("limit", strconv.Itoa(d.PageSize))
	return d.BaseURL(region) + "/api/catalog/v1/domains?" + v.Encode()
}

type discoveryIterator struct {
	d       *Discoverer
	region  model.Region
	limit   int
	emitted int

	nextURL string
	done    bool

	page    []domainResult
	pageIdx int
	agIdx   int
}

func (it *discoveryIterator) Next(ctx context.Context) (*model.CatalogItem, bool, error) {
	for {
		if it.limit > 0 && it.emitted >= it.limit {
			return nil, false, nil
		}

		if item, ok := it.nextFromPage(); ok {
			it.emitted++
			return item, true, nil
		}

		if it.done || it.nextURL == "" {
			return nil, false, nil
		}

		if err := it.fetchPage(ctx); err != nil {
			return nil, false, err
		}
	}
}

func (it *discoveryIterator) nextFromPage() (*model.CatalogItem, bool) {
	for it.pageIdx < len(it.page) {
		rec := it.page[it.pageIdx]
		agencies := rec.agencies()
		host := rec.host()
		if host == "" {
			it.pageIdx++
			it.agIdx = 0
			continue
		}

		if len(agencies) == 0 {
			it.pageIdx++
			return &model.CatalogItem{Region: it.region, Host: host, Domain: host, Agency: nil}, true
		}

		if it.agIdx < len(agencies) {
			agency := agencies[it.agIdx]
			it.agIdx++
			if it.agIdx >= len(agencies) {
				it.pageIdx++
				it.agIdx = 0
			}
			return &model.CatalogItem{Region: it.region, Host: host, Domain: host, Agency: &agency}, true
		}
		it.pageIdx++
		it.agIdx = 0
	}
	return nil, false
}

func (it *discoveryIterator) fetchPage(ctx context.Context) error {
	resp, err := it.d.Fetch(ctx, it.nextURL, adapter.FetchInit{
		Method:  "GET",
		Headers: discoveryHeaders(it.d.AppToken),
	})
	if err != nil {
		return err
	}

	var env domainsEnvelope
	if unmarshalErr := json.Unmarshal(resp.Body, &env); unmarshalErr != nil {
		return &adapter.SchemaError{Msg: "invalid domains response", Cause: unmarshalErr}
	}

	it.page = env.Results
	it.pageIdx = 0
	it.agIdx = 0

	if env.Links.Next == "" {
		it.done = true
	} else {
		it.nextURL = resolveNext(it.nextURL, env.Links.Next)
	}
	return nil
}

// resolveNext accepts both an absolute links.next URL and a bare cursor
// token, consistent with the defensive handling real deployments require.
func resolveNext(prevURL, next string) string {
	if parsed, err := url.Parse(next); err == nil && parsed.IsAbs() {
		return next
	}
	base, err := url.Parse(prevURL)
	if err != nil {
		return next
	}
	q := base.Query()
	q.Set("cursor", next)
	base.RawQuery = q.Encode()
	return base.String()
}

func discoveryHeaders(appToken string) map[string]string {
	h := map[string]string{"Accept": "application/json"}
	if appToken != "" {
		h["X-App-Token"] = appToken
	}
	return h
}
