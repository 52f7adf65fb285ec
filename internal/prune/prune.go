// Package prune scores and filters a discovered catalog payload down to
// the datasets worth keeping for this catalog's purpose.
package prune

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"
)

// Category is one of the keyword-classified relevance buckets.
type Category string

const (
	CategoryGovernance     Category = "governance"
	CategoryHousing        Category = "housing"
	CategorySafety         Category = "safety"
	CategoryInfrastructure Category = "infrastructure"
	CategoryFinance        Category = "finance"
	CategoryTransit        Category = "transit"
	CategoryBoundaries     Category = "boundaries"
)

// categoryPriority is the order a record's retention threshold is picked
// from among its matched categories, when more than one matches.
var categoryPriority = []Category{
	CategorySafety, CategoryInfrastructure, CategoryTransit,
	CategoryHousing, CategoryFinance, CategoryGovernance, CategoryBoundaries,
}

// DatasetRecord is one candidate in a normalized catalog payload.
type DatasetRecord struct {
	ID          string
	Name        string
	Type        string // "href" marks a link-only catalog entry, always dropped
	Description string
	Categories  []string
	Tags        []string
	Permalink   string
	Owner       string
	UpdatedAt   *time.Time
	// BoundaryKey groups records that are successive snapshots of the same
	// boundary series (e.g. "supervisor-districts"); only the two
	// most-recently-updated records per key survive.
	BoundaryKey string
}

// KeptRecord is a surviving record annotated with its scoring detail.
type KeptRecord struct {
	Record         DatasetRecord
	ReasonsKept    []string
	PriorityScore  float64
	Components     ScoreComponents
	Categories     []Category
	RetentionMonths int
}

// DroppedRecord is a filtered-out record and why.
type DroppedRecord struct {
	ID     string
	Name   string
	Reason string // pipe-separated when multiple reasons apply
}

// ScoreComponents is the weighted breakdown behind PriorityScore.
type ScoreComponents struct {
	Relevance   float64
	Freshness   float64
	OwnerTrust  float64
	Joinability float64
	Cadence     float64
	SizeSanity  float64
}

// Result is the outcome of one Prune call.
type Result struct {
	Kept    []KeptRecord
	Dropped []DroppedRecord
}

// Config holds the tunable keyword lists, trust set, and thresholds. Use
// DefaultConfig for the canonical defaults named in the scoring rules.
type Config struct {
	GlobalTokens    *regexp.Regexp
	SFHints         *regexp.Regexp
	ArchivedPattern *regexp.Regexp
	JoinKeyPattern  *regexp.Regexp
	CategoryKeywords map[Category]*regexp.Regexp
	TrustedOwners    map[string]bool // normalized owner name -> trusted
	RetentionMonths  map[Category]int
	MinScore         float64
}

func mustCompile(pattern string) *regexp.Regexp {
	return regexp.MustCompile("(?i)" + pattern)
}

// DefaultConfig returns the canonical keyword groups, retention table, and
// minimum score threshold.
func DefaultConfig() Config {
	return Config{
		GlobalTokens:    mustCompile(`USA|United States|Global|World|California`),
		SFHints:         mustCompile(`San Francisco|SF|sfgov|city and county`),
		ArchivedPattern: mustCompile(`archive|deprecated|retired|superseded`),
		JoinKeyPattern:  mustCompile(`APN|parcel|block|lot|case|permit|incident|tract|district`),
		CategoryKeywords: map[Category]*regexp.Regexp{
			CategoryGovernance:     mustCompile(`budget|council|ordinance|policy|legislation|government`),
			CategoryHousing:        mustCompile(`housing|rent|eviction|affordable|zoning`),
			CategorySafety:         mustCompile(`crime|police|fire|911|311|incident|safety`),
			CategoryInfrastructure: mustCompile(`road|street|utility|infrastructure|water|sewer|construction`),
			CategoryFinance:        mustCompile(`tax|revenue|expenditure|finance|ethics`),
			CategoryTransit:        mustCompile(`transit|bus|rail|muni|bart|parking|traffic`),
			CategoryBoundaries:     mustCompile(`boundary|boundaries|district|precinct|zone`),
		},
		TrustedOwners: map[string]bool{},
		RetentionMonths: map[Category]int{
			CategorySafety:         36,
			CategoryInfrastructure: 60,
			CategoryTransit:        120,
			CategoryHousing:        120,
			CategoryFinance:        144,
			CategoryGovernance:     144,
		},
		MinScore: 60,
	}
}

// ScoreContext is caller-supplied, zeroed fresh for every Prune invocation.
// It carries no package-level mutable state, so repeated calls across runs
// can never leak aggregate counts from one invocation into the next.
type ScoreContext struct {
	boundaryGroups map[string][]*KeptRecord
}

// NewScoreContext returns a fresh, empty ScoreContext.
func NewScoreContext() *ScoreContext {
	return &ScoreContext{boundaryGroups: make(map[string][]*KeptRecord)}
}

func normalizeName(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteByte(' ')
			}
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}

func isArcGISPermalink(permalink string) bool {
	lower := strings.ToLower(permalink)
	return strings.Contains(lower, "arcgis.com") || strings.Contains(lower, "/arcgis/")
}

func searchableText(r DatasetRecord) string {
	return strings.Join([]string{r.Name, r.Description, strings.Join(r.Tags, " "), strings.Join(r.Categories, " ")}, " ")
}

// classify returns every category whose keyword pattern matches r.
func classify(r DatasetRecord, cfg Config) []Category {
	text := searchableText(r)
	var matched []Category
	for _, cat := range categoryPriority {
		if pattern, ok := cfg.CategoryKeywords[cat]; ok && pattern.MatchString(text) {
			matched = append(matched, cat)
		}
	}
	return matched
}

func relevanceScore(matched []Category) float64 {
	score := 40 + 20*float64(len(matched))
	if score > 100 {
		score = 100
	}
	return score
}

func monthsSince(now time.Time, updatedAt *time.Time) (int, bool) {
	if updatedAt == nil {
		return 0, false
	}
	months := int(now.Sub(*updatedAt).Hours() / (24 * 30))
	return months, true
}

func freshnessScore(months int, known bool) float64 {
	if !known {
		return 30
	}
	switch {
	case months <= 6:
		return 100
	case months <= 12:
		return 85
	case months <= 36:
		return 70
	case months <= 60:
		return 55
	case months <= 120:
		return 40
	default:
		return 20
	}
}

func ownerTrustScore(owner string, trusted map[string]bool) float64 {
	if trusted[normalizeName(owner)] {
		return 100
	}
	if strings.TrimSpace(owner) != "" {
		return 70
	}
	return 20
}

func joinabilityScore(r DatasetRecord, cfg Config) float64 {
	if cfg.JoinKeyPattern.MatchString(searchableText(r)) {
		return 100
	}
	return 60
}

func cadenceScore(r DatasetRecord, matched []Category) float64 {
	text := strings.ToLower(searchableText(r))
	if strings.Contains(text, "311") || strings.Contains(text, "crime") || strings.Contains(text, "calls") {
		return 100
	}
	if strings.Contains(text, "permit") || containsCategory(matched, CategoryTransit) {
		return 85
	}
	if strings.Contains(text, "ethics") || containsCategory(matched, CategoryFinance) {
		return 70
	}
	return 50
}

func containsCategory(matched []Category, target Category) bool {
	for _, c := range matched {
		if c == target {
			return true
		}
	}
	return false
}

func sizeSanityScore(r DatasetRecord) float64 {
	text := strings.ToLower(searchableText(r))
	if strings.Contains(text, "summary") || strings.Contains(text, "aggregate") {
		return 100
	}
	if strings.Contains(text, "all time") {
		return 40
	}
	return 70
}

func retentionMonths(matched []Category, cfg Config) int {
	for _, cat := range categoryPriority {
		if months, ok := cfg.RetentionMonths[cat]; ok && containsCategory(matched, cat) {
			return months
		}
	}
	return 0
}

// Prune applies the drop rules in order, scores the survivors, and
// finally deduplicates boundary series, returning kept and dropped sets.
func Prune(records []DatasetRecord, cfg Config, sc *ScoreContext, now time.Time) Result {
	trustedNames := make(map[string]bool)
	for _, r := range records {
		if cfg.TrustedOwners[normalizeName(r.Owner)] {
			trustedNames[normalizeName(r.Name)] = true
		}
	}

	var result Result
	var survivors []KeptRecord

	for _, r := range records {
		if reason, dropped := evaluateDropRules(r, cfg, trustedNames, now); dropped {
			result.Dropped = append(result.Dropped, DroppedRecord{ID: r.ID, Name: r.Name, Reason: reason})
			continue
		}

		matched := classify(r, cfg)
		components, score := scoreRecord(r, cfg, matched, now)
		// Boundary series are retained by the keep-two-most-recent rule in
		// dedupeBoundaries regardless of score; everything else must clear
		// the threshold here.
		if score < cfg.MinScore && !containsCategory(matched, CategoryBoundaries) {
			result.Dropped = append(result.Dropped, DroppedRecord{
				ID: r.ID, Name: r.Name,
				Reason: fmt.Sprintf("score<%.0f(%.1f)", cfg.MinScore, score),
			})
			continue
		}

		survivors = append(survivors, KeptRecord{
			Record:          r,
			ReasonsKept:     []string{"passed-all-drop-rules", "score-above-threshold"},
			PriorityScore:   score,
			Components:      components,
			Categories:      matched,
			RetentionMonths: retentionMonths(matched, cfg),
		})
	}

	kept, boundaryDrops := dedupeBoundaries(survivors, sc)
	result.Kept = kept
	result.Dropped = append(result.Dropped, boundaryDrops...)
	return result
}

// evaluateDropRules runs the ordered, first-match drop rules (everything
// except the score threshold and boundary dedup, which apply afterward).
func evaluateDropRules(r DatasetRecord, cfg Config, trustedNames map[string]bool, now time.Time) (string, bool) {
	if r.Type == "href" {
		return "type:href", true
	}
	if cfg.ArchivedPattern.MatchString(r.Name) || cfg.ArchivedPattern.MatchString(strings.Join(r.Tags, " ")) {
		return "archived/deprecated", true
	}
	text := searchableText(r)
	if cfg.GlobalTokens.MatchString(text) && !cfg.SFHints.MatchString(text) {
		return "global/irrelevant", true
	}

	matched := classify(r, cfg)
	if len(matched) == 0 {
		return "not-in-target-categories", true
	}

	isBoundary := containsCategory(matched, CategoryBoundaries)
	if !isBoundary {
		months, known := monthsSince(now, r.UpdatedAt)
		threshold := retentionMonths(matched, cfg)
		if known && threshold > 0 && months > threshold {
			return fmt.Sprintf("stale>%dm", threshold), true
		}
	}

	if isArcGISPermalink(r.Permalink) && trustedNames[normalizeName(r.Name)] && !cfg.TrustedOwners[normalizeName(r.Owner)] {
		return "arcgis-connector-duplicate", true
	}

	return "", false
}

func scoreRecord(r DatasetRecord, cfg Config, matched []Category, now time.Time) (ScoreComponents, float64) {
	months, known := monthsSince(now, r.UpdatedAt)
	components := ScoreComponents{
		Relevance:   relevanceScore(matched),
		Freshness:   freshnessScore(months, known),
		OwnerTrust:  ownerTrustScore(r.Owner, cfg.TrustedOwners),
		Joinability: joinabilityScore(r, cfg),
		Cadence:     cadenceScore(r, matched),
		SizeSanity:  sizeSanityScore(r),
	}
	weighted := components.Relevance*3 + components.Freshness*2 + components.OwnerTrust*1.5 +
		components.Joinability*1.5 + components.Cadence*1 + components.SizeSanity*1
	return components, weighted / 10
}

// dedupeBoundaries keeps the two most-recently-updated records per
// non-empty BoundaryKey, dropping the rest.
func dedupeBoundaries(survivors []KeptRecord, sc *ScoreContext) ([]KeptRecord, []DroppedRecord) {
	var kept []KeptRecord
	var dropped []DroppedRecord

	for i := range survivors {
		key := survivors[i].Record.BoundaryKey
		if key == "" {
			kept = append(kept, survivors[i])
			continue
		}
		sc.boundaryGroups[key] = append(sc.boundaryGroups[key], &survivors[i])
	}

	for _, group := range sc.boundaryGroups {
		sort.Slice(group, func(i, j int) bool {
			ti, tj := group[i].Record.UpdatedAt, group[j].Record.UpdatedAt
			if ti == nil {
				return false
			}
			if tj == nil {
				return true
			}
			return ti.After(*tj)
		})
		for i, entry := range group {
			if i < 2 {
				kept = append(kept, *entry)
			} else {
				dropped = append(dropped, DroppedRecord{
					ID: entry.Record.ID, Name: entry.Record.Name,
					Reason: "boundaries:exceeds-current+previous",
				})
			}
		}
	}

	return kept, dropped
}
