package socrata

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opendatacatalog/catalogsync/internal/adapter"
)

func TestBuildSoQL_UnknownSelectField(t *testing.T) {
	allow := NewAllowList("id", "name")
	_, err := BuildSoQL(adapter.Query{Select: []string{"id", "unknown"}}, allow)
	require.Error(t, err)
	var cfg *adapter.ConfigError
	require.ErrorAs(t, err, &cfg)
	require.Contains(t, err.Error(), "unknown")
}

func TestBuildSoQL_Between(t *testing.T) {
	allow := NewAllowList("id")
	params, err := BuildSoQL(adapter.Query{
		Where: []adapter.Predicate{{Field: "id", Op: adapter.OpBetween, Value: []any{1, 10}}},
	}, allow)
	require.NoError(t, err)
	require.Equal(t, "id BETWEEN 1 AND 10", params["$where"])
}

func TestBuildSoQL_StringEscaping(t *testing.T) {
	allow := NewAllowList("name")
	params, err := BuildSoQL(adapter.Query{
		Where: []adapter.Predicate{{Field: "name", Op: adapter.OpEq, Value: "it's"}},
	}, allow)
	require.NoError(t, err)
	require.Equal(t, "name = 'it''s'", params["$where"])
}

func TestBuildSoQL_InRequiresNonEmptyList(t *testing.T) {
	allow := NewAllowList("id")
	_, err := BuildSoQL(adapter.Query{
		Where: []adapter.Predicate{{Field: "id", Op: adapter.OpIn, Value: []any{}}},
	}, allow)
	require.Error(t, err)
}

func TestBuildSoQL_InSerializesList(t *testing.T) {
	allow := NewAllowList("id")
	params, err := BuildSoQL(adapter.Query{
		Where: []adapter.Predicate{{Field: "id", Op: adapter.OpIn, Value: []any{1, 2, 3}}},
	}, allow)
	require.NoError(t, err)
	require.Equal(t, "id IN (1, 2, 3)", params["$where"])
}

func TestBuildSoQL_IsNullTakesNoValue(t *testing.T) {
	allow := NewAllowList("deleted_at")
	params, err := BuildSoQL(adapter.Query{
		Where: []adapter.Predicate{{Field: "deleted_at", Op: adapter.OpIsNull}},
	}, allow)
	require.NoError(t, err)
	require.Equal(t, "deleted_at IS NULL", params["$where"])
}

func TestBuildSoQL_NonFiniteNumberRejected(t *testing.T) {
	allow := NewAllowList("x")
	_, err := BuildSoQL(adapter.Query{
		Where: []adapter.Predicate{{Field: "x", Op: adapter.OpGt, Value: math.NaN()}},
	}, allow)
	require.Error(t, err)
}

func TestBuildSoQL_ObjectValueRejected(t *testing.T) {
	allow := NewAllowList("x")
	_, err := BuildSoQL(adapter.Query{
		Where: []adapter.Predicate{{Field: "x", Op: adapter.OpEq, Value: map[string]any{"a": 1}}},
	}, allow)
	require.Error(t, err)
}

func TestBuildSoQL_LimitOffset(t *testing.T) {
	allow := NewAllowList()
	params, err := BuildSoQL(adapter.Query{Limit: 50, Offset: 10}, allow)
	require.NoError(t, err)
	require.Equal(t, "50", params["$limit"])
	require.Equal(t, "10", params["$offset"])
}

func TestBuildSoQL_NegativeLimitRejected(t *testing.T) {
	_, err := BuildSoQL(adapter.Query{Limit: -1}, NewAllowList())
	require.Error(t, err)
}

func TestBuildSoQL_ExtraPassthroughRequiresDollarPrefix(t *testing.T) {
	params, err := BuildSoQL(adapter.Query{
		Extra: map[string]string{"$q": "full text", "unsafe": "dropped"},
	}, NewAllowList())
	require.NoError(t, err)
	require.Equal(t, "full text", params["$q"])
	require.NotContains(t, params, "unsafe")
}

func TestBuildSoQL_OrderWithDirection(t *testing.T) {
	allow := NewAllowList("updated_at")
	params, err := BuildSoQL(adapter.Query{OrderBy: []string{"updated_at DESC"}}, allow)
	require.NoError(t, err)
	require.Equal(t, "updated_at DESC", params["$order"])
}

func TestBuildSoQL_GroupBy(t *testing.T) {
	allow := NewAllowList("category")
	params, err := BuildSoQL(adapter.Query{GroupBy: []string{"category"}}, allow)
	require.NoError(t, err)
	require.Equal(t, "category", params["$group"])
}

func TestBuildSoQL_UnknownGroupFieldRejected(t *testing.T) {
	allow := NewAllowList("category")
	_, err := BuildSoQL(adapter.Query{GroupBy: []string{"category", "unknown"}}, allow)
	require.Error(t, err)
	var cfg *adapter.ConfigError
	require.ErrorAs(t, err, &cfg)
	require.Contains(t, err.Error(), "unknown")
}
