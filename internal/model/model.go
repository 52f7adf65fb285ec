// Package model holds the persisted and transient record shapes shared
// across the catalog ingestion pipeline.
package model

import "time"

// Region identifies a Socrata discovery region.
type Region string

const (
	RegionUS Region = "US"
	RegionEU Region = "EU"
)

// Valid reports whether r is one of the known regions.
func (r Region) Valid() bool {
	return r == RegionUS || r == RegionEU
}

// Host is a portal API endpoint.
type Host struct {
	Host     string
	Region   Region
	LastSeen time.Time
}

// Domain is an organizational domain associated with a portal.
type Domain struct {
	Domain   string
	Country  string // ISO code, optional
	Region   Region
	LastSeen time.Time
}

// Agency is a named publisher within a host.
type Agency struct {
	Host      string
	Name      string
	Type      string // optional classification
	CreatedAt time.Time
}

// Dataset is a discovered dataset within a host.
type Dataset struct {
	Host        string
	DatasetID   string
	Title       string
	Description string
	Category    string
	Tags        []string // insertion order preserved
	Publisher   string
	UpdatedAt   time.Time // portal-reported
	RowCount    int64
	ViewCount   int64
	Link        string
	Active      bool
	FirstSeen   time.Time
	LastSeen    time.Time
}

// ResumeState is the durable pipeline checkpoint.
type ResumeState struct {
	Pipeline        string
	ResumeToken     string
	LastProcessedAt time.Time
	UpdatedAt       time.Time
}

// CatalogItem is a transient in-flight discovery record produced by a
// driver and consumed by the pipeline.
type CatalogItem struct {
	Region Region
	Host   string
	Domain string
	Agency *string // nil means "no agency listed for this domain"
	Meta   map[string]any
}

// Key returns the within-session deduplication key for the item, in the
// form "<region>:<host>:<domain>:<agency|null>".
func (c CatalogItem) Key() string {
	agency := "null"
	if c.Agency != nil {
		agency = *c.Agency
	}
	return string(c.Region) + ":" + c.Host + ":" + c.Domain + ":" + agency
}

// PortalSource identifies the adapter family that produced a
// PortalCatalogEntry.
type PortalSource string

const (
	SourceSocrata PortalSource = "socrata"
	SourceCKAN    PortalSource = "ckan"
	SourceArcGIS  PortalSource = "arcgis"
)

// PortalCatalogEntry is a transient, adapter-contract discovery record.
type PortalCatalogEntry struct {
	ID           string
	Name         string
	Description  string
	Domain       string
	Permalink    string
	ResourceURL  string
	Category     string
	Tags         []string
	Source       PortalSource
	Layer        string // present only for layer-backed sources (e.g. ArcGIS)
}

// LogicalType is the canonical runtime type a portal column is mapped into.
type LogicalType string

const (
	TypeText     LogicalType = "text"
	TypeNumber   LogicalType = "number"
	TypeCheckbox LogicalType = "checkbox"
	TypeDate     LogicalType = "date"
	TypeDatetime LogicalType = "datetime"
	TypeMoney    LogicalType = "money"
	TypePercent  LogicalType = "percent"
	TypeURL      LogicalType = "url"
	TypeEmail    LogicalType = "email"
	TypePhone    LogicalType = "phone"
	TypeLocation LogicalType = "location"
	TypePoint    LogicalType = "point"
	TypePolygon  LogicalType = "polygon"
	TypeJSON     LogicalType = "json"
	TypeUnknown  LogicalType = "unknown"
)

// Column is a normalized dataset column.
type Column struct {
	ID          string
	Name        string
	FieldName   string
	APIType     string
	LogicalType LogicalType
	Nullable    bool
	Hidden      bool
	Description string
}

// DatasetMetadata is the normalized result of a metadata fetch.
type DatasetMetadata struct {
	ID      string
	Name    string
	Columns []Column
}
