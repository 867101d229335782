package model

// CatalogColumn describes a single column harvested for a table.
type CatalogColumn struct {
	Name        string
	Type        string
	Nullable    bool
	Annotations string
}

// CatalogTable is a table harvested by the scanner for a given scan.
type CatalogTable struct {
	ScanID       int64
	ConnectionID int64
	Schema       string
	Name         string
	Type         string
	Description  string
	Annotations  string
	Columns      []CatalogColumn
	Samples      []map[string]any
}

// Identifier returns the "schema.table" form as stored, without case
// folding; the Schema Context Builder lowercases it to form the
// allowlist key.
func (t CatalogTable) Identifier() string {
	return t.Schema + "." + t.Name
}

// CatalogConstraint is a bounded-list constraint description attached
// to the schema snapshot.
type CatalogConstraint struct {
	ScanID      int64
	Schema      string
	Table       string
	Name        string
	Type        string
	Definition  string
}

// CatalogIndex is a bounded-list index description attached to the
// schema snapshot.
type CatalogIndex struct {
	ScanID     int64
	Schema     string
	Table      string
	Name       string
	Definition string
	IsUnique   bool
}

// SchemaSnapshot is the bounded, per-connection view the Schema
// Context Builder materialises on demand. It is treated as immutable
// once built: the orchestrator and planner never mutate it between
// rounds.
type SchemaSnapshot struct {
	Tables      []CatalogTable
	Constraints []CatalogConstraint
	Indexes     []CatalogIndex
}

// Allowlist is the per-connection set of normalised table identifiers
// validated SQL may reference. Two forms are admitted for every table:
// "schema.table" and the bare "table".
type Allowlist map[int64]map[string]struct{}

// Contains reports whether identifier is allowlisted for connectionID.
func (a Allowlist) Contains(connectionID int64, identifier string) bool {
	set, ok := a[connectionID]
	if !ok {
		return false
	}
	_, ok = set[identifier]
	return ok
}

// Add inserts identifier into the allowlist for connectionID.
func (a Allowlist) Add(connectionID int64, identifier string) {
	set, ok := a[connectionID]
	if !ok {
		set = make(map[string]struct{})
		a[connectionID] = set
	}
	set[identifier] = struct{}{}
}
