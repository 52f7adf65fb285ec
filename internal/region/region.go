// Package region resolves a Socrata host to a discovery region and decides
// failover eligibility. Resolution is memoized per host,
// process-wide, for the lifetime of the binary — host-to-region is stable
// and entries never invalidate.
package region

import (
	"strings"
	"sync"

	"github.com/opendatacatalog/catalogsync/internal/model"
	"github.com/opendatacatalog/catalogsync/internal/secrets"
)

const (
	usBaseURL = "https://api.us.socrata.com"
	euBaseURL = "https://api.eu.socrata.com"

	globalDefaultKey = "SOCRATA_DEFAULT_REGION"
)

// Resolver maps hosts to regions using per-host overrides, then a global
// default, then a hard-coded fallback of US.
type Resolver struct {
	keys secrets.Accessor

	mu    sync.Mutex
	cache map[string]model.Region
}

func NewResolver(keys secrets.Accessor) *Resolver {
	return &Resolver{keys: keys, cache: make(map[string]model.Region)}
}

// overrideKey builds the per-host override key:
// SOCRATA__<HOST_UPPER_UNDERSCORE>__REGION.
func overrideKey(host string) string {
	upper := strings.ToUpper(host)
	var b strings.Builder
	b.Grow(len(upper) + 16)
	for _, r := range upper {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return "SOCRATA__" + b.String() + "__REGION"
}

func parseRegion(s string) (model.Region, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "US":
		return model.RegionUS, true
	case "EU":
		return model.RegionEU, true
	default:
		return "", false
	}
}

// ResolveRegion resolves host to a region: per-host override, then global
// default, then US. Invalid override values are silently ignored.
func (r *Resolver) ResolveRegion(host string) model.Region {
	r.mu.Lock()
	if cached, ok := r.cache[host]; ok {
		r.mu.Unlock()
		return cached
	}
	r.mu.Unlock()

	region := model.RegionUS
	resolved := false
	if raw, ok := r.keys.Lookup(overrideKey(host)); ok {
		if parsed, ok := parseRegion(raw); ok {
			region = parsed
			resolved = true
		}
	}
	if !resolved {
		if raw, ok := r.keys.Lookup(globalDefaultKey); ok {
			if parsed, ok := parseRegion(raw); ok {
				region = parsed
			}
		}
	}

	r.mu.Lock()
	r.cache[host] = region
	r.mu.Unlock()
	return region
}

// DiscoveryBaseURL returns the region's discovery base.
func DiscoveryBaseURL(region model.Region) string {
	if region == model.RegionEU {
		return euBaseURL
	}
	return usBaseURL
}

// OtherRegion returns the alternate region.
func OtherRegion(region model.Region) model.Region {
	if region == model.RegionEU {
		return model.RegionUS
	}
	return model.RegionEU
}

// ShouldFailover reports whether a failed request is eligible for
// cross-region failover: any network error, or any 5xx status. Never for
// 401/403/404.
func ShouldFailover(status int, isNetworkError bool) bool {
	if isNetworkError {
		return true
	}
	return status >= 500 && status < 600
}
