// Package codec normalizes raw portal field values into canonical Go
// values per logical type, and formats them back for outbound payloads.
package codec

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/opendatacatalog/catalogsync/internal/model"
)

// Codec parses a raw wire value into its canonical form and formats a
// canonical value back into wire form. Parse returns (nil, false) when raw
// cannot be interpreted as this logical type, per the "else null" parse
// semantics; it never errors — an unparseable value is simply absent.
type Codec struct {
	Parse  func(raw any) (any, bool)
	Format func(v any) any
}

// Point is the canonical form for TypePoint.
type Point struct {
	Lat float64
	Lon float64
}

// Polygon is the canonical form for TypePolygon: a list of rings, each a
// list of points, matching GeoJSON's coordinate nesting.
type Polygon struct {
	Rings [][]Point
}

// Registry maps a logical type to its codec. Types not present here (and
// json/unknown) pass their value through unchanged.
var Registry = map[model.LogicalType]Codec{
	model.TypeNumber:   numericCodec(),
	model.TypeMoney:    numericCodec(),
	model.TypePercent:  numericCodec(),
	model.TypeCheckbox: checkboxCodec(),
	model.TypeDate:     dateCodec(),
	model.TypeDatetime: datetimeCodec(),
	model.TypeLocation: locationCodec(),
	model.TypePoint:    pointCodec(),
	model.TypePolygon:  polygonCodec(),
}

// For looks up the codec for t, defaulting to a pass-through codec for
// text/url/email/phone/json/unknown and anything else not explicitly
// registered.
func For(t model.LogicalType) Codec {
	if c, ok := Registry[t]; ok {
		return c
	}
	return passthroughCodec()
}

func passthroughCodec() Codec {
	return Codec{
		Parse:  func(raw any) (any, bool) { return raw, true },
		Format: func(v any) any { return v },
	}
}

func numericCodec() Codec {
	return Codec{
		Parse: func(raw any) (any, bool) {
			switch t := raw.(type) {
			case float64:
				if math.IsNaN(t) || math.IsInf(t, 0) {
					return nil, false
				}
				return t, true
			case int:
				return float64(t), true
			case int64:
				return float64(t), true
			case string:
				f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
				if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
					return nil, false
				}
				return f, true
			default:
				return nil, false
			}
		},
		Format: func(v any) any {
			f, ok := v.(float64)
			if !ok {
				return nil
			}
			return strconv.FormatFloat(f, 'g', -1, 64)
		},
	}
}

func checkboxCodec() Codec {
	return Codec{
		Parse: func(raw any) (any, bool) {
			switch t := raw.(type) {
			case bool:
				return t, true
			case float64:
				if t == 0 {
					return false, true
				}
				if t == 1 {
					return true, true
				}
				return nil, false
			case int:
				if t == 0 {
					return false, true
				}
				if t == 1 {
					return true, true
				}
				return nil, false
			case string:
				switch strings.ToLower(strings.TrimSpace(t)) {
				case "true", "yes", "y", "1":
					return true, true
				case "false", "no", "n", "0":
					return false, true
				default:
					return nil, false
				}
			default:
				return nil, false
			}
		},
		Format: func(v any) any {
			b, ok := v.(bool)
			if !ok {
				return nil
			}
			if b {
				return "true"
			}
			return "false"
		},
	}
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func dateCodec() Codec {
	return Codec{
		Parse:  parseTimeValue,
		Format: func(v any) any { return formatTimeValue(v, "2006-01-02") },
	}
}

func datetimeCodec() Codec {
	return Codec{
		Parse:  parseTimeValue,
		Format: func(v any) any { return formatTimeValue(v, time.RFC3339) },
	}
}

func parseTimeValue(raw any) (any, bool) {
	switch t := raw.(type) {
	case time.Time:
		return t, true
	case string:
		s := strings.TrimSpace(t)
		for _, layout := range dateLayouts {
			if parsed, err := time.Parse(layout, s); err == nil {
				return parsed, true
			}
		}
		return nil, false
	default:
		return nil, false
	}
}

func formatTimeValue(v any, layout string) any {
	t, ok := v.(time.Time)
	if !ok {
		return nil
	}
	return t.UTC().Format(layout)
}

func locationCodec() Codec {
	return Codec{
		Parse: func(raw any) (any, bool) {
			p, ok := parsePointShape(raw)
			if !ok {
				return nil, false
			}
			return p, true
		},
		Format: formatPoint,
	}
}

func pointCodec() Codec {
	return Codec{
		Parse: func(raw any) (any, bool) {
			p, ok := parsePointShape(raw)
			if !ok {
				return nil, false
			}
			return p, true
		},
		Format: formatPoint,
	}
}

// parsePointShape accepts the two GeoJSON-like shapes Socrata location
// columns use: {"type":"Point","coordinates":[lon,lat]} and the flatter
// {"latitude":"...","longitude":"..."} form.
func parsePointShape(raw any) (Point, bool) {
	m, ok := raw.(map[string]any)
	if !ok {
		return Point{}, false
	}

	if coords, ok := m["coordinates"].([]any); ok && len(coords) == 2 {
		lon, lonOK := toFloat(coords[0])
		lat, latOK := toFloat(coords[1])
		if lonOK && latOK {
			return Point{Lat: lat, Lon: lon}, true
		}
		return Point{}, false
	}

	lat, latOK := toFloat(m["latitude"])
	lon, lonOK := toFloat(m["longitude"])
	if latOK && lonOK {
		return Point{Lat: lat, Lon: lon}, true
	}
	return Point{}, false
}

func formatPoint(v any) any {
	p, ok := v.(Point)
	if !ok {
		return nil
	}
	return map[string]any{
		"type":        "Point",
		"coordinates": []any{p.Lon, p.Lat},
	}
}

func polygonCodec() Codec {
	return Codec{
		Parse: func(raw any) (any, bool) {
			m, ok := raw.(map[string]any)
			if !ok {
				return nil, false
			}
			coords, ok := m["coordinates"].([]any)
			if !ok {
				return nil, false
			}
			var rings [][]Point
			for _, ringRaw := range coords {
				ringVals, ok := ringRaw.([]any)
				if !ok {
					return nil, false
				}
				var ring []Point
				for _, pt := range ringVals {
					ptVals, ok := pt.([]any)
					if !ok || len(ptVals) != 2 {
						return nil, false
					}
					lon, lonOK := toFloat(ptVals[0])
					lat, latOK := toFloat(ptVals[1])
					if !lonOK || !latOK {
						return nil, false
					}
					ring = append(ring, Point{Lat: lat, Lon: lon})
				}
				rings = append(rings, ring)
			}
			return Polygon{Rings: rings}, true
		},
		Format: func(v any) any {
			poly, ok := v.(Polygon)
			if !ok {
				return nil
			}
			coords := make([]any, 0, len(poly.Rings))
			for _, ring := range poly.Rings {
				ringCoords := make([]any, 0, len(ring))
				for _, p := range ring {
					ringCoords = append(ringCoords, []any{p.Lon, p.Lat})
				}
				coords = append(coords, ringCoords)
			}
			return map[string]any{
				"type":        "Polygon",
				"coordinates": coords,
			}
		},
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
