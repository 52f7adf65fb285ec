package socrata

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opendatacatalog/catalogsync/internal/adapter"
)

// AllowList is the caller-supplied set of identifiers permitted to appear in
// select/where/order/group. Unknown identifiers fail with a ConfigError.
type AllowList map[string]bool

func NewAllowList(fields ...string) AllowList {
	al := make(AllowList, len(fields))
	for _, f := range fields {
		al[f] = true
	}
	return al
}

// BuildSoQL translates an adapter.Query into Socrata's $-prefixed query
// parameters. Map iteration order is not used for anything observable:
// parameters are built into a deterministic, sorted-by-key form for Extra,
// and Select/Where/OrderBy preserve caller order.
func BuildSoQL(q adapter.Query, allow AllowList) (map[string]string, error) {
	params := make(map[string]string)

	if len(q.Select) > 0 {
		for _, f := range q.Select {
			if !allow[f] {
				return nil, adapter.NewConfigError(fmt.Sprintf("unknown field in select: %s", f))
			}
		}
		params["$select"] = strings.Join(q.Select, ",")
	}

	if len(q.Where) > 0 {
		clauses := make([]string, 0, len(q.Where))
		for _, p := range q.Where {
			if !allow[p.Field] {
				return nil, adapter.NewConfigError(fmt.Sprintf("unknown field in where: %s", p.Field))
			}
			clause, err := buildPredicate(p)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, clause)
		}
		params["$where"] = strings.Join(clauses, " AND ")
	}

	if len(q.OrderBy) > 0 {
		for _, f := range q.OrderBy {
			field := f
			if sp := strings.IndexByte(f, ' '); sp >= 0 {
				field = f[:sp]
			}
			if !allow[field] {
				return nil, adapter.NewConfigError(fmt.Sprintf("unknown field in order: %s", field))
			}
		}
		params["$order"] = strings.Join(q.OrderBy, ",")
	}

	if len(q.GroupBy) > 0 {
		for _, f := range q.GroupBy {
			if !allow[f] {
				return nil, adapter.NewConfigError(fmt.Sprintf("unknown field in group: %s", f))
			}
		}
		params["$group"] = strings.Join(q.GroupBy, ",")
	}

	if q.Limit < 0 {
		return nil, adapter.NewConfigError("limit must be a positive integer")
	}
	if q.Limit > 0 {
		params["$limit"] = strconv.Itoa(q.Limit)
	}
	if q.Offset < 0 {
		return nil, adapter.NewConfigError("offset must be non-negative")
	}
	if q.Offset > 0 {
		params["$offset"] = strconv.Itoa(q.Offset)
	}

	if len(q.Extra) > 0 {
		keys := make([]string, 0, len(q.Extra))
		for k := range q.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !strings.HasPrefix(k, "$") {
				continue
			}
			params[k] = q.Extra[k]
		}
	}

	return params, nil
}

func buildPredicate(p adapter.Predicate) (string, error) {
	switch p.Op {
	case adapter.OpIsNull:
		return p.Field + " IS NULL", nil
	case adapter.OpNotNull:
		return p.Field + " IS NOT NULL", nil
	case adapter.OpBetween:
		vals, ok := p.Value.([]any)
		if !ok || len(vals) != 2 {
			return "", adapter.NewConfigError("BETWEEN requires a 2-element value")
		}
		lo, err := serializeValue(vals[0])
		if err != nil {
			return "", err
		}
		hi, err := serializeValue(vals[1])
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s BETWEEN %s AND %s", p.Field, lo, hi), nil
	case adapter.OpIn, adapter.OpNotIn:
		vals, ok := p.Value.([]any)
		if !ok || len(vals) == 0 {
			return "", adapter.NewConfigError(fmt.Sprintf("%s requires a non-empty list", p.Op))
		}
		parts := make([]string, 0, len(vals))
		for _, v := range vals {
			s, err := serializeValue(v)
			if err != nil {
				return "", err
			}
			parts = append(parts, s)
		}
		return fmt.Sprintf("%s %s (%s)", p.Field, p.Op, strings.Join(parts, ", ")), nil
	case adapter.OpLike, adapter.OpILike:
		s, ok := p.Value.(string)
		if !ok {
			return "", adapter.NewConfigError(fmt.Sprintf("%s requires a string value", p.Op))
		}
		return fmt.Sprintf("%s %s %s", p.Field, p.Op, quoteString(s)), nil
	case adapter.OpEq, adapter.OpNeq, adapter.OpGt, adapter.OpGte, adapter.OpLt, adapter.OpLte:
		s, err := serializeValue(p.Value)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s %s %s", p.Field, p.Op, s), nil
	default:
		return "", adapter.NewConfigError(fmt.Sprintf("unsupported operator: %s", p.Op))
	}
}

func serializeValue(v any) (string, error) {
	switch t := v.(type) {
	case string:
		return quoteString(t), nil
	case bool:
		if t {
			return "true", nil
		}
		return "false", nil
	case time.Time:
		return quoteString(t.UTC().Format(time.RFC3339)), nil
	case int:
		return strconv.Itoa(t), nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return "", adapter.NewConfigError("numeric value must be finite")
		}
		return strconv.FormatFloat(t, 'g', -1, 64), nil
	case nil:
		return "", adapter.NewConfigError("null is not a valid predicate value; use IS NULL")
	default:
		return "", adapter.NewConfigError(fmt.Sprintf("unsupported value type %T", v))
	}
}

// quoteString applies SoQL single-quote literal escaping: ' doubled.
func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
