// Package catalog is the Tables & Schema Registry: the closed enum of virtual
// tables exposed to clients, their typed columns, and the system-catalog
// relations (pg_catalog, information_schema, pg_stat_activity) served
// alongside them. See spec §3 (Data Model) and §4.7.
package catalog

import (
	"strings"

	"github.com/akz4ol/histgate/internal/columnar"
)

// VirtualTable is the closed sum of relations the gateway exposes. Avoid
// inheritance here: this is a tagged enum matched exhaustively wherever it
// appears (spec §9, "Typed-variant relations").
type VirtualTable int

const (
	Unknown VirtualTable = iota
	TagValues
	LoggedTagValues
	ActiveAlarms
	LoggedAlarms
	TagList
	Dual // synthetic FROM-less relation

	PgNamespace
	PgClass
	PgProc
	PgType
	PgConstraint
	PgStatActivity
	InformationSchemaTables
	InformationSchemaColumns
)

// userTables lists the five historian-backed relations, in the order
// information_schema.tables enumerates them.
var userTables = []VirtualTable{TagValues, LoggedTagValues, ActiveAlarms, LoggedAlarms, TagList}

// names maps a VirtualTable to its lower-case SQL name.
var names = map[VirtualTable]string{
	TagValues:                "tagvalues",
	LoggedTagValues:          "loggedtagvalues",
	ActiveAlarms:             "activealarms",
	LoggedAlarms:             "loggedalarms",
	TagList:                  "taglist",
	Dual:                     "dual",
	PgNamespace:              "pg_namespace",
	PgClass:                  "pg_class",
	PgProc:                   "pg_proc",
	PgType:                   "pg_type",
	PgConstraint:             "pg_constraint",
	PgStatActivity:           "pg_stat_activity",
	InformationSchemaTables:  "information_schema.tables",
	InformationSchemaColumns: "information_schema.columns",
}

// FromName resolves a (possibly schema-qualified) SQL identifier to a
// VirtualTable. Unqualified catalog names default to pg_catalog.
func FromName(name string) (VirtualTable, bool) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "pg_catalog.")
	n = strings.TrimPrefix(n, "public.")
	for vt, nm := range names {
		if nm == n {
			return vt, true
		}
	}
	return Unknown, false
}

// Name returns the canonical SQL name of a VirtualTable.
func (vt VirtualTable) Name() string {
	return names[vt]
}

// IsUserTable reports whether vt is one of the five historian relations.
func (vt VirtualTable) IsUserTable() bool {
	for _, u := range userTables {
		if u == vt {
			return true
		}
	}
	return false
}

// UserTables returns the five historian-backed virtual tables, in stable order.
func UserTables() []VirtualTable { return append([]VirtualTable(nil), userTables...) }

type col = columnar.Column

var tVal = columnar.TypeUtf8
var tTimestamp = columnar.TypeTimestamp
var tInt64 = columnar.TypeInt64
var tInt32 = columnar.TypeInt32
var tFloat64 = columnar.TypeFloat64

// schemas holds the ordered column list for every virtual table, grounded on
// the original implementation's tables.rs (see original_source/src/tables.rs).
var schemas = map[VirtualTable]columnar.Schema{
	TagValues: {
		{Name: "tag_name", Type: tVal},
		{Name: "timestamp", Type: tTimestamp},
		{Name: "timestamp_ms", Type: tInt64},
		{Name: "numeric_value", Type: tFloat64},
		{Name: "string_value", Type: tVal},
		{Name: "quality", Type: tVal},
	},
	LoggedTagValues: {
		{Name: "tag_name", Type: tVal},
		{Name: "timestamp", Type: tTimestamp},
		{Name: "timestamp_ms", Type: tInt64},
		{Name: "numeric_value", Type: tFloat64},
		{Name: "string_value", Type: tVal},
		{Name: "quality", Type: tVal},
	},
	ActiveAlarms: {
		{Name: "name", Type: tVal},
		{Name: "instance_id", Type: tInt32},
		{Name: "alarm_group_id", Type: tInt32},
		{Name: "raise_time", Type: tTimestamp},
		{Name: "acknowledgment_time", Type: tTimestamp},
		{Name: "clear_time", Type: tTimestamp},
		{Name: "reset_time", Type: tTimestamp},
		{Name: "modification_time", Type: tTimestamp},
		{Name: "state", Type: tVal},
		{Name: "priority", Type: tInt32},
		{Name: "event_text", Type: tVal},
		{Name: "info_text", Type: tVal},
		{Name: "origin", Type: tVal},
		{Name: "area", Type: tVal},
		{Name: "value", Type: tVal},
		{Name: "host_name", Type: tVal},
		{Name: "user_name", Type: tVal},
	},
	LoggedAlarms: {
		{Name: "name", Type: tVal},
		{Name: "instance_id", Type: tInt32},
		{Name: "alarm_group_id", Type: tInt32},
		{Name: "raise_time", Type: tTimestamp},
		{Name: "acknowledgment_time", Type: tTimestamp},
		{Name: "clear_time", Type: tTimestamp},
		{Name: "reset_time", Type: tTimestamp},
		{Name: "modification_time", Type: tTimestamp},
		{Name: "state", Type: tVal},
		{Name: "priority", Type: tInt32},
		{Name: "event_text", Type: tVal},
		{Name: "info_text", Type: tVal},
		{Name: "origin", Type: tVal},
		{Name: "area", Type: tVal},
		{Name: "value", Type: tVal},
		{Name: "host_name", Type: tVal},
		{Name: "user_name", Type: tVal},
		{Name: "duration", Type: tVal},
		// virtual columns: parameterise the remote call, never returned.
		{Name: "filterString", Type: tVal, Virtual: true},
		{Name: "system_name", Type: tVal, Virtual: true},
		{Name: "filter_language", Type: tVal, Virtual: true},
	},
	TagList: {
		{Name: "tag_name", Type: tVal},
		{Name: "display_name", Type: tVal},
		{Name: "object_type", Type: tVal},
		{Name: "data_type", Type: tVal},
		{Name: "language", Type: tVal, Virtual: true},
	},
	Dual: {
		{Name: "dummy", Type: tVal},
	},
}

// Schema returns the ordered column list for a virtual table. Matching is
// exhaustive by construction: an unknown table returns an empty schema.
func (vt VirtualTable) Schema() columnar.Schema {
	return schemas[vt]
}

// HasColumn reports whether name is any column (selectable or virtual) of vt.
func (vt VirtualTable) HasColumn(name string) bool {
	_, ok := vt.Schema().ByName(name)
	return ok
}

// IsVirtualColumn reports whether name is a virtual (WHERE-only) column of vt.
func (vt VirtualTable) IsVirtualColumn(name string) bool {
	c, ok := vt.Schema().ByName(name)
	return ok && c.Virtual
}

// IsSelectableColumn reports whether name may appear in the projection of vt.
func (vt VirtualTable) IsSelectableColumn(name string) bool {
	c, ok := vt.Schema().ByName(name)
	return ok && !c.Virtual
}
