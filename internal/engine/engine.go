// Package engine adapts an embedded SQL engine into the gateway's local
// execution stage (spec §4.6): a columnar batch is registered as a named
// in-memory table, then the *original* query text — not the planner's
// restricted AST — runs against it so that projection, aggregation
// (COUNT/SUM/AVG/MIN/MAX), expression evaluation and joins against catalog
// tables all work without the hand-rolled dialect having to express them.
// This mirrors the DataFusion SessionContext::register_batch + ctx.sql(sql)
// pairing the original Rust implementation of this gateway uses for the
// same purpose.
package engine

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/akz4ol/histgate/internal/columnar"
	"github.com/akz4ol/histgate/internal/pgerr"
)

// ColumnDesc is one output column of a QueryResult: its name and the
// PostgreSQL type OID advertised in the RowDescription built from it.
type ColumnDesc struct {
	Name string
	OID  uint32
}

// QueryResult is the engine's output: a column list and an ordered rowset of
// typed cells, ready to be encoded as PostgreSQL DataRow messages (spec §4.6).
type QueryResult struct {
	Columns []ColumnDesc
	Rows    [][]columnar.Value
}

// Engine wraps a single embedded SQL connection scoped to one query's
// lifetime: callers create one, register the batches the query needs, run
// the query, and close it. This matches the original Rust implementation's
// per-query SessionContext::new(), so a stale registration from an earlier query can
// never leak into a later one.
type Engine struct {
	db       *sql.DB
	typeHint map[string]columnar.LogicalType
}

// New opens a fresh, empty in-memory SQL engine.
func New() (*Engine, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, pgerr.New(pgerr.InternalError, "opening embedded engine: %s", err)
	}
	db.SetMaxOpenConns(1) // a private :memory: database only exists on one connection
	return &Engine{db: db, typeHint: map[string]columnar.LogicalType{}}, nil
}

// Close releases the engine's connection.
func (e *Engine) Close() error {
	return e.db.Close()
}

// RegisterBatch creates a table named tableName from batch and loads its
// rows. Column names double as the engine-wide type hint table consulted by
// Query when a result column cannot otherwise be typed (spec §4.6, OID mapping).
func (e *Engine) RegisterBatch(ctx context.Context, tableName string, batch *columnar.Batch) error {
	if len(batch.Schema) == 0 {
		return pgerr.New(pgerr.InternalError, "cannot register table %q with no columns", tableName)
	}

	var ddl strings.Builder
	fmt.Fprintf(&ddl, `CREATE TABLE %s (`, quoteIdent(tableName))
	for i, c := range batch.Schema {
		if i > 0 {
			ddl.WriteString(", ")
		}
		fmt.Fprintf(&ddl, "%s %s", quoteIdent(c.Name), c.Type.SQLiteDecl())
		e.typeHint[c.Name] = c.Type
	}
	ddl.WriteString(")")
	if _, err := e.db.ExecContext(ctx, ddl.String()); err != nil {
		return pgerr.New(pgerr.InternalError, "creating table %q: %s", tableName, err)
	}

	if batch.NumRows == 0 {
		return nil
	}

	placeholders := make([]string, len(batch.Schema))
	cols := make([]string, len(batch.Schema))
	for i, c := range batch.Schema {
		placeholders[i] = "?"
		cols[i] = quoteIdent(c.Name)
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(tableName), strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	stmt, err := e.db.PrepareContext(ctx, insertSQL)
	if err != nil {
		return pgerr.New(pgerr.InternalError, "preparing insert into %q: %s", tableName, err)
	}
	defer stmt.Close()

	for row := 0; row < batch.NumRows; row++ {
		args := make([]any, len(batch.Schema))
		for i, c := range batch.Schema {
			args[i] = toDriverValue(batch.Columns[c.Name][row])
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return pgerr.New(pgerr.InternalError, "inserting into %q: %s", tableName, err)
		}
	}
	return nil
}

// AttachExternalCatalog attaches a read-only SQLite file as alias, so its
// tables become queryable (including in joins against registered batches)
// without copying any data, and seeds the type hint table from the
// pre-introspected schema so RowDescription OIDs come out right (spec §4.7,
// "arbitrary pre-loaded read-only catalog").
func (e *Engine) AttachExternalCatalog(ctx context.Context, alias, path string, tables map[string]columnar.Schema) error {
	if path == "" {
		return nil
	}
	stmt := fmt.Sprintf(`ATTACH DATABASE 'file:%s?mode=ro' AS %s`, path, quoteIdent(alias))
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return pgerr.New(pgerr.InternalError, "attaching external catalog %q: %s", path, err)
	}
	for _, schema := range tables {
		for _, c := range schema {
			e.typeHint[c.Name] = c.Type
		}
	}
	return nil
}

func toDriverValue(v columnar.Value) any {
	switch v.Kind {
	case columnar.Null:
		return nil
	case columnar.Text, columnar.Timestamp:
		return v.Text
	case columnar.Integer:
		return v.Int
	case columnar.Float:
		return v.Float
	case columnar.Boolean:
		if v.Bool {
			return int64(1)
		}
		return int64(0)
	default:
		return nil
	}
}

// schemaQualifierPattern strips the Postgres schema qualifiers this gateway's
// catalog flattens into a single namespace. The embedded engine has no
// concept of multiple schemas; rather than layer SQLite's ATTACH DATABASE
// machinery on top of a dialect that already only ever needs flat table
// names, qualified references are normalised away before execution.
var schemaQualifierPattern = regexp.MustCompile(`(?i)\b(pg_catalog|public|information_schema)\.`)

func stripSchemaQualifiers(sqlText string) string {
	return schemaQualifierPattern.ReplaceAllString(sqlText, "")
}

// Query executes sqlText (the client's original query, not the planner's
// restricted AST) against whatever tables have been registered, and encodes
// the result set generically.
func (e *Engine) Query(ctx context.Context, sqlText string) (*QueryResult, error) {
	rows, err := e.db.QueryContext(ctx, stripSchemaQualifiers(sqlText))
	if err != nil {
		return nil, pgerr.New(pgerr.SyntaxErrorOrAccessRuleViolation, "executing query: %s", err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, pgerr.New(pgerr.InternalError, "reading result columns: %s", err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, pgerr.New(pgerr.InternalError, "reading result column types: %s", err)
	}

	columns := make([]ColumnDesc, len(names))
	logical := make([]columnar.LogicalType, len(names))
	for i, n := range names {
		lt, ok := e.typeHint[n]
		if !ok {
			lt = inferFromDeclaredType(types[i])
		}
		logical[i] = lt
		columns[i] = ColumnDesc{Name: n, OID: lt.OID()}
	}

	result := &QueryResult{Columns: columns}
	dest := make([]any, len(names))
	for i := range dest {
		dest[i] = new(any)
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, pgerr.New(pgerr.InternalError, "scanning row: %s", err)
		}
		row := make([]columnar.Value, len(names))
		for i, d := range dest {
			row[i] = scanToValue(*(d.(*any)), logical[i])
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, pgerr.New(pgerr.InternalError, "iterating result rows: %s", err)
	}
	return result, nil
}

func inferFromDeclaredType(t *sql.ColumnType) columnar.LogicalType {
	switch strings.ToUpper(t.DatabaseTypeName()) {
	case "INTEGER", "INT", "BIGINT":
		return columnar.TypeInt64
	case "REAL", "FLOAT", "DOUBLE", "NUMERIC":
		return columnar.TypeFloat64
	case "BOOLEAN", "BOOL":
		return columnar.TypeBool
	case "TIMESTAMP", "DATETIME":
		return columnar.TypeTimestamp
	default:
		return columnar.TypeUtf8
	}
}

// scanToValue converts a value read back from the engine into the typed
// cell union (spec §4.6), falling back to the runtime Go type of the scanned
// value when the declared/hinted logical type doesn't hold (as happens for
// computed columns like COUNT(*) returning int64 from a column hinted TEXT).
func scanToValue(raw any, hint columnar.LogicalType) columnar.Value {
	if raw == nil {
		return columnar.Value{Kind: columnar.Null}
	}
	switch v := raw.(type) {
	case int64:
		if hint == columnar.TypeBool {
			return columnar.Value{Kind: columnar.Boolean, Bool: v != 0}
		}
		return columnar.Value{Kind: columnar.Integer, Int: v}
	case float64:
		return columnar.Value{Kind: columnar.Float, Float: v}
	case string:
		if hint == columnar.TypeTimestamp {
			return columnar.Value{Kind: columnar.Timestamp, Text: v}
		}
		return columnar.Value{Kind: columnar.Text, Text: v}
	case []byte:
		return columnar.Value{Kind: columnar.Text, Text: string(v)}
	case bool:
		return columnar.Value{Kind: columnar.Boolean, Bool: v}
	default:
		return columnar.Value{Kind: columnar.Text, Text: fmt.Sprintf("%v", v)}
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
