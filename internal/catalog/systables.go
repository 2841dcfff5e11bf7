package catalog

import (
	"time"

	"github.com/akz4ol/histgate/internal/columnar"
)

// ConnectionSnapshot is the subset of a session.ConnectionRecord needed to
// assemble pg_stat_activity, expressed independently of the session package
// so catalog has no dependency on the Session Manager's own types.
type ConnectionSnapshot struct {
	ConnectionID     int64
	PeerAddress      string
	ApplicationName  string
	DatabaseName     string
	Username         string
	State            string
	LastQuery        string
	BackendStartTime time.Time
	QueryStart       time.Time
}

var (
	pgNamespaceSchema = columnar.Schema{
		{Name: "oid", Type: tInt32},
		{Name: "nspname", Type: tVal},
	}
	pgClassSchema = columnar.Schema{
		{Name: "oid", Type: tInt32},
		{Name: "relname", Type: tVal},
		{Name: "relnamespace", Type: tInt32},
		{Name: "relkind", Type: tVal},
	}
	pgTypeSchema = columnar.Schema{
		{Name: "oid", Type: tInt32},
		{Name: "typname", Type: tVal},
	}
	pgProcSchema = columnar.Schema{
		{Name: "oid", Type: tInt32},
		{Name: "proname", Type: tVal},
	}
	pgConstraintSchema = columnar.Schema{
		{Name: "oid", Type: tInt32},
		{Name: "conname", Type: tVal},
		{Name: "contype", Type: tVal},
		{Name: "conrelid", Type: tInt32},
	}
	pgStatActivitySchema = columnar.Schema{
		{Name: "pid", Type: tInt32},
		{Name: "usename", Type: tVal},
		{Name: "datname", Type: tVal},
		{Name: "application_name", Type: tVal},
		{Name: "client_addr", Type: tVal},
		{Name: "state", Type: tVal},
		{Name: "query", Type: tVal},
		{Name: "backend_start", Type: tTimestamp},
		{Name: "query_start", Type: tTimestamp},
	}
	informationSchemaTablesSchema = columnar.Schema{
		{Name: "table_catalog", Type: tVal},
		{Name: "table_schema", Type: tVal},
		{Name: "table_name", Type: tVal},
		{Name: "table_type", Type: tVal},
	}
	informationSchemaColumnsSchema = columnar.Schema{
		{Name: "table_catalog", Type: tVal},
		{Name: "table_schema", Type: tVal},
		{Name: "table_name", Type: tVal},
		{Name: "column_name", Type: tVal},
		{Name: "ordinal_position", Type: tInt32},
		{Name: "data_type", Type: tVal},
	}
)

func init() {
	schemas[PgNamespace] = pgNamespaceSchema
	schemas[PgClass] = pgClassSchema
	schemas[PgType] = pgTypeSchema
	schemas[PgProc] = pgProcSchema
	schemas[PgConstraint] = pgConstraintSchema
	schemas[PgStatActivity] = pgStatActivitySchema
	schemas[InformationSchemaTables] = informationSchemaTablesSchema
	schemas[InformationSchemaColumns] = informationSchemaColumnsSchema
}

func textVal(s string) columnar.Value    { return columnar.Value{Kind: columnar.Text, Text: s} }
func intVal(n int64) columnar.Value      { return columnar.Value{Kind: columnar.Integer, Int: n} }
func tsVal(t time.Time) columnar.Value {
	if t.IsZero() {
		return columnar.Value{Kind: columnar.Null}
	}
	return columnar.Value{Kind: columnar.Timestamp, Text: t.UTC().Format(time.RFC3339Nano), TimeNanos: t.UnixNano()}
}

// PgNamespaceBatch returns the three fixed schema rows a typical client
// expects to find (spec §4.7).
func PgNamespaceBatch() *columnar.Batch {
	b := columnar.NewBatch(pgNamespaceSchema)
	rows := []struct {
		oid  int64
		name string
	}{
		{11, "pg_catalog"},
		{2200, "public"},
		{13427, "information_schema"},
	}
	for _, r := range rows {
		b.AppendRow(map[string]columnar.Value{"oid": intVal(r.oid), "nspname": textVal(r.name)})
	}
	return b
}

// PgClassBatch returns one row per virtual table (relkind='v'), plus minimal
// self-describing rows for pg_class, pg_namespace and pg_proc themselves
// (spec §4.7).
func PgClassBatch() *columnar.Batch {
	b := columnar.NewBatch(pgClassSchema)
	oid := int64(16384)
	for _, vt := range UserTables() {
		b.AppendRow(map[string]columnar.Value{
			"oid":          intVal(oid),
			"relname":      textVal(vt.Name()),
			"relnamespace": intVal(2200),
			"relkind":      textVal("v"),
		})
		oid++
	}
	for _, name := range []string{"pg_class", "pg_namespace", "pg_proc"} {
		b.AppendRow(map[string]columnar.Value{
			"oid":          intVal(oid),
			"relname":      textVal(name),
			"relnamespace": intVal(11),
			"relkind":      textVal("r"),
		})
		oid++
	}
	return b
}

// pgTypeEntries is (oid, typname) for the minimum well-known type set (spec §4.7).
var pgTypeEntries = []struct {
	oid  int64
	name string
}{
	{16, "bool"},
	{19, "name"},
	{20, "int8"},
	{21, "int2"},
	{23, "int4"},
	{25, "text"},
	{26, "oid"},
	{700, "float4"},
	{701, "float8"},
	{1043, "varchar"},
	{1114, "timestamp"},
	{1700, "numeric"},
}

// PgTypeBatch returns the common type OIDs most clients introspect (spec §4.7).
func PgTypeBatch() *columnar.Batch {
	b := columnar.NewBatch(pgTypeSchema)
	for _, e := range pgTypeEntries {
		b.AppendRow(map[string]columnar.Value{"oid": intVal(e.oid), "typname": textVal(e.name)})
	}
	return b
}

// PgProcBatch returns entries for the three introspection functions common
// clients (psql, pgAdmin, JDBC) probe for at connect time (spec §4.7).
func PgProcBatch() *columnar.Batch {
	b := columnar.NewBatch(pgProcSchema)
	for i, name := range []string{"pg_get_userbyid", "pg_get_function_identity_arguments", "pg_get_viewdef"} {
		b.AppendRow(map[string]columnar.Value{"oid": intVal(int64(12000 + i)), "proname": textVal(name)})
	}
	return b
}

// PgConstraintBatch is always empty: the gateway's virtual tables have no
// constraints to report (spec §4.7).
func PgConstraintBatch() *columnar.Batch {
	return columnar.NewBatch(pgConstraintSchema)
}

// PgStatActivityBatch materialises the Session Manager's connection registry
// into a table at query time (spec §4.7).
func PgStatActivityBatch(conns []ConnectionSnapshot) *columnar.Batch {
	b := columnar.NewBatch(pgStatActivitySchema)
	for _, c := range conns {
		b.AppendRow(map[string]columnar.Value{
			"pid":              intVal(c.ConnectionID),
			"usename":          textVal(c.Username),
			"datname":          textVal(c.DatabaseName),
			"application_name": textVal(c.ApplicationName),
			"client_addr":      textVal(c.PeerAddress),
			"state":            textVal(c.State),
			"query":            textVal(c.LastQuery),
			"backend_start":    tsVal(c.BackendStartTime),
			"query_start":      tsVal(c.QueryStart),
		})
	}
	return b
}

// InformationSchemaTablesBatch enumerates the five user virtual tables
// (spec §4.7).
func InformationSchemaTablesBatch() *columnar.Batch {
	b := columnar.NewBatch(informationSchemaTablesSchema)
	for _, vt := range UserTables() {
		b.AppendRow(map[string]columnar.Value{
			"table_catalog": textVal("histgate"),
			"table_schema":  textVal("public"),
			"table_name":    textVal(vt.Name()),
			"table_type":    textVal("VIEW"),
		})
	}
	return b
}

// InformationSchemaColumnsBatch enumerates the selectable columns of every
// user virtual table (spec §4.7).
func InformationSchemaColumnsBatch() *columnar.Batch {
	b := columnar.NewBatch(informationSchemaColumnsSchema)
	for _, vt := range UserTables() {
		for i, c := range vt.Schema().Selectable() {
			b.AppendRow(map[string]columnar.Value{
				"table_catalog":    textVal("histgate"),
				"table_schema":     textVal("public"),
				"table_name":       textVal(vt.Name()),
				"column_name":      textVal(c.Name),
				"ordinal_position": intVal(int64(i + 1)),
				"data_type":        textVal(informationSchemaTypeName(c.Type)),
			})
		}
	}
	return b
}

func informationSchemaTypeName(t columnar.LogicalType) string {
	switch t {
	case columnar.TypeBool:
		return "boolean"
	case columnar.TypeInt16, columnar.TypeInt32, columnar.TypeInt64:
		return "integer"
	case columnar.TypeFloat32, columnar.TypeFloat64:
		return "double precision"
	case columnar.TypeTimestamp:
		return "timestamp without time zone"
	default:
		return "text"
	}
}
