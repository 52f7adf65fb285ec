package prune

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func ts(daysAgo int) *time.Time {
	t := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -daysAgo)
	return &t
}

func TestPrune_DropsHrefType(t *testing.T) {
	records := []DatasetRecord{
		{ID: "1", Name: "Police Incident Reports", Type: "href", Categories: []string{"safety"}, UpdatedAt: ts(10)},
	}
	result := Prune(records, DefaultConfig(), NewScoreContext(), time.Now())
	require.Empty(t, result.Kept)
	require.Len(t, result.Dropped, 1)
	require.Equal(t, "type:href", result.Dropped[0].Reason)
}

func TestPrune_DropsArchivedByNameOrTag(t *testing.T) {
	records := []DatasetRecord{
		{ID: "1", Name: "Archived Crime Reports", Tags: []string{"police"}, UpdatedAt: ts(10)},
		{ID: "2", Name: "Fire Incidents", Tags: []string{"deprecated"}, UpdatedAt: ts(10)},
	}
	result := Prune(records, DefaultConfig(), NewScoreContext(), time.Now())
	require.Empty(t, result.Kept)
	require.Len(t, result.Dropped, 2)
	for _, d := range result.Dropped {
		require.Equal(t, "archived/deprecated", d.Reason)
	}
}

func TestPrune_DropsGlobalTokenWithoutSFHint(t *testing.T) {
	records := []DatasetRecord{
		{ID: "1", Name: "United States Crime Statistics", UpdatedAt: ts(10)},
	}
	result := Prune(records, DefaultConfig(), NewScoreContext(), time.Now())
	require.Len(t, result.Dropped, 1)
	require.Equal(t, "global/irrelevant", result.Dropped[0].Reason)
}

func TestPrune_KeepsGlobalTokenWithSFHint(t *testing.T) {
	records := []DatasetRecord{
		{ID: "1", Name: "San Francisco California Police Incident Reports", Owner: "SFPD", UpdatedAt: ts(10)},
	}
	result := Prune(records, DefaultConfig(), NewScoreContext(), time.Now())
	require.Len(t, result.Kept, 1)
}

func TestPrune_DropsWhenNoCategoryMatches(t *testing.T) {
	records := []DatasetRecord{
		{ID: "1", Name: "Employee Cafeteria Menu", UpdatedAt: ts(10)},
	}
	result := Prune(records, DefaultConfig(), NewScoreContext(), time.Now())
	require.Len(t, result.Dropped, 1)
	require.Equal(t, "not-in-target-categories", result.Dropped[0].Reason)
}

func TestPrune_DropsStaleBeyondCategoryRetention(t *testing.T) {
	staleDate := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(-4, 0, 0) // ~48 months ago, safety retention is 36
	records := []DatasetRecord{
		{ID: "1", Name: "Police Incident Reports", UpdatedAt: &staleDate},
	}
	result := Prune(records, DefaultConfig(), NewScoreContext(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Len(t, result.Dropped, 1)
	require.Equal(t, "stale>36m", result.Dropped[0].Reason)
}

func TestPrune_BoundaryRecordsExemptFromStaleDrop(t *testing.T) {
	staleDate := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(-20, 0, 0)
	records := []DatasetRecord{
		{ID: "1", Name: "Supervisor District Boundaries 2010", BoundaryKey: "supervisor-districts", UpdatedAt: &staleDate},
	}
	result := Prune(records, DefaultConfig(), NewScoreContext(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Len(t, result.Kept, 1)
}

func TestPrune_DropsArcGISDuplicateOfTrustedOwnerRecord(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrustedOwners["department of public health"] = true
	records := []DatasetRecord{
		{ID: "1", Name: "Restaurant Safety Inspections", Owner: "Department of Public Health", UpdatedAt: ts(10), Tags: []string{"safety"}},
		{ID: "2", Name: "Restaurant Safety Inspections", Owner: "GIS Mirror", Permalink: "https://org.maps.arcgis.com/item/abc", UpdatedAt: ts(10), Tags: []string{"safety"}},
	}
	result := Prune(records, cfg, NewScoreContext(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Len(t, result.Kept, 1)
	require.Equal(t, "1", result.Kept[0].Record.ID)
	require.Len(t, result.Dropped, 1)
	require.Equal(t, "arcgis-connector-duplicate", result.Dropped[0].Reason)
}

func TestPrune_DropsBelowMinScore(t *testing.T) {
	cfg := DefaultConfig()
	records := []DatasetRecord{
		{ID: "1", Name: "Bus Ridership Notes", UpdatedAt: ts(2000)}, // ~66mo old, within transit's 120mo retention; only the score cutoff drops it
	}
	result := Prune(records, cfg, NewScoreContext(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Len(t, result.Dropped, 1)
}

func TestPrune_BoundaryDedupeKeepsTwoMostRecentPerKey(t *testing.T) {
	t1 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	t3 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []DatasetRecord{
		{ID: "old", Name: "Supervisor District Boundaries", BoundaryKey: "supervisor-districts", UpdatedAt: &t1},
		{ID: "mid", Name: "Supervisor District Boundaries", BoundaryKey: "supervisor-districts", UpdatedAt: &t2},
		{ID: "new", Name: "Supervisor District Boundaries", BoundaryKey: "supervisor-districts", UpdatedAt: &t3},
	}
	result := Prune(records, DefaultConfig(), NewScoreContext(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Len(t, result.Kept, 2)
	keptIDs := map[string]bool{result.Kept[0].Record.ID: true, result.Kept[1].Record.ID: true}
	require.True(t, keptIDs["new"])
	require.True(t, keptIDs["mid"])
	require.Len(t, result.Dropped, 1)
	require.Equal(t, "old", result.Dropped[0].ID)
	require.Equal(t, "boundaries:exceeds-current+previous", result.Dropped[0].Reason)
}

func TestPrune_FreshScoreAndReasonsKeptOnSurvivor(t *testing.T) {
	records := []DatasetRecord{
		{ID: "1", Name: "Police Incident Reports by APN", Owner: "SFPD", UpdatedAt: ts(10), Tags: []string{"crime"}},
	}
	result := Prune(records, DefaultConfig(), NewScoreContext(), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	require.Len(t, result.Kept, 1)
	kept := result.Kept[0]
	require.NotEmpty(t, kept.ReasonsKept)
	require.Greater(t, kept.PriorityScore, DefaultConfig().MinScore)
	require.Contains(t, kept.Categories, CategorySafety)
	require.Equal(t, 36, kept.RetentionMonths)
}

func TestScoreContext_IsFreshPerInvocation(t *testing.T) {
	t1 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []DatasetRecord{
		{ID: "a", Name: "Supervisor District Boundaries", BoundaryKey: "supervisor-districts", UpdatedAt: &t1},
		{ID: "b", Name: "Supervisor District Boundaries", BoundaryKey: "supervisor-districts", UpdatedAt: &t2},
	}
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	first := Prune(records, DefaultConfig(), NewScoreContext(), now)
	require.Len(t, first.Kept, 2)

	second := Prune(records, DefaultConfig(), NewScoreContext(), now)
	require.Len(t, second.Kept, 2, "a fresh ScoreContext must not see boundary groups accumulated by a prior call")
}
