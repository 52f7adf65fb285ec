package socrata

import (
	"context"
	"encoding/json"

	"github.com/opendatacatalog/catalogsync/internal/adapter"
	"github.com/opendatacatalog/catalogsync/internal/model"
)

// dataTypeNameToLogical maps Socrata's dataTypeName values onto the
// canonical logical-type set. Anything absent here collapses to unknown.
var dataTypeNameToLogical = map[string]model.LogicalType{
	"text":             model.TypeText,
	"number":           model.TypeNumber,
	"money":            model.TypeMoney,
	"percent":          model.TypePercent,
	"checkbox":         model.TypeCheckbox,
	"calendar_date":    model.TypeDatetime,
	"date":             model.TypeDate,
	"url":              model.TypeURL,
	"email":            model.TypeEmail,
	"phone":            model.TypePhone,
	"location":         model.TypeLocation,
	"point":            model.TypePoint,
	"multipolygon":     model.TypePolygon,
	"polygon":          model.TypePolygon,
	"line":             model.TypePolygon,
	"multiline":        model.TypePolygon,
	"multipoint":       model.TypePoint,
	"document":         model.TypeJSON,
	"photo":            model.TypeURL,
	"flag":             model.TypeText,
	"stars":            model.TypeNumber,
	"json":             model.TypeJSON,
}

type viewColumnWire struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	FieldName    string `json:"fieldName"`
	DataTypeName string `json:"dataTypeName"`
	Description  string `json:"description"`
	Flags        []string `json:"flags"`
	Required     bool   `json:"required"`
	Hidden       bool   `json:"hidden"` // not in every payload; defaulted false
	SubColumnType string `json:"subColumnType"` // location sub-hint: point|polygon
}

type viewWire struct {
	ID      string           `json:"id"`
	Name    string           `json:"name"`
	Columns []viewColumnWire `json:"columns"`
}

// MetadataClient fetches /api/views/{id}.json and normalizes the result.
type MetadataClient struct {
	Fetch   adapter.FetchFunc
	BaseURL string
	AppToken string
}

func NewMetadataClient(fetch adapter.FetchFunc, baseURL, appToken string) *MetadataClient {
	return &MetadataClient{Fetch: fetch, BaseURL: baseURL, AppToken: appToken}
}

func (c *MetadataClient) FetchMetadata(ctx context.Context, id string) (*model.DatasetMetadata, error) {
	u := c.BaseURL + "/api/views/" + id + ".json"
	resp, err := c.Fetch(ctx, u, adapter.FetchInit{Method: "GET", Headers: discoveryHeaders(c.AppToken)})
	if err != nil {
		return nil, err
	}

	var wire viewWire
	if unmarshalErr := json.Unmarshal(resp.Body, &wire); unmarshalErr != nil {
		return nil, &adapter.SchemaError{Msg: "invalid view metadata response", Cause: unmarshalErr}
	}

	cols := make([]model.Column, 0, len(wire.Columns))
	for _, wc := range wire.Columns {
		cols = append(cols, normalizeColumn(wc))
	}
	return &model.DatasetMetadata{ID: wire.ID, Name: wire.Name, Columns: cols}, nil
}

func normalizeColumn(wc viewColumnWire) model.Column {
	logical := resolveLogicalType(wc.DataTypeName, wc.SubColumnType)

	return model.Column{
		ID:          wc.ID,
		Name:        wc.Name,
		FieldName:   wc.FieldName,
		APIType:     wc.DataTypeName,
		LogicalType: logical,
		Nullable:    !wc.Required,
		Hidden:      wc.Hidden,
		Description: wc.Description,
	}
}

// resolveLogicalType maps a raw dataTypeName onto the canonical set; for
// "location", a subColumnType hint of "point" or "polygon" overrides the
// bare location mapping, per the normalization rule.
func resolveLogicalType(dataTypeName, subColumnType string) model.LogicalType {
	if dataTypeName == "location" {
		switch subColumnType {
		case "point":
			return model.TypePoint
		case "polygon":
			return model.TypePolygon
		default:
			return model.TypeLocation
		}
	}
	if lt, ok := dataTypeNameToLogical[dataTypeName]; ok {
		return lt
	}
	return model.TypeUnknown
}
