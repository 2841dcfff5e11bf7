package catalog

import (
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/akz4ol/histgate/internal/columnar"
)

// ExternalCatalog is the arbitrary pre-loaded read-only catalog (spec §4.7,
// last bullet): every table found in an external SQLite file is exposed
// alongside the gateway's own virtual tables. Discovery happens once, at
// load time; the file itself is re-attached read-only into each query's
// embedded engine instance rather than copied.
type ExternalCatalog struct {
	path   string
	tables map[string]columnar.Schema
}

// LoadExternalCatalog introspects every table in the SQLite file at path and
// maps its declared column types into the gateway's logical type system.
// A missing or unset path yields an empty, harmless catalog.
func LoadExternalCatalog(path string) (*ExternalCatalog, error) {
	ec := &ExternalCatalog{path: path, tables: map[string]columnar.Schema{}}
	if path == "" {
		return ec, nil
	}

	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, err
	}
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, n)
	}
	rows.Close()

	for _, name := range names {
		schema, err := introspectTable(db, name)
		if err != nil {
			return nil, err
		}
		ec.tables[name] = schema
	}
	return ec, nil
}

func introspectTable(db *sql.DB, table string) (columnar.Schema, error) {
	rows, err := db.Query(`PRAGMA table_info(` + quoteIdent(table) + `)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var schema columnar.Schema
	for rows.Next() {
		var (
			cid        int
			name       string
			declType   string
			notNull    int
			defaultVal any
			pk         int
		)
		if err := rows.Scan(&cid, &name, &declType, &notNull, &defaultVal, &pk); err != nil {
			return nil, err
		}
		schema = append(schema, columnar.Column{Name: name, Type: mapSQLiteAffinity(declType)})
	}
	return schema, rows.Err()
}

// mapSQLiteAffinity applies the declared-type mapping rule (spec §4.7):
// integer->int8, real/float/double->float8, text/varchar/char->text,
// boolean->bool, timestamp->timestamp, else text.
func mapSQLiteAffinity(declType string) columnar.LogicalType {
	t := strings.ToLower(declType)
	switch {
	case strings.Contains(t, "int"):
		return columnar.TypeInt64
	case strings.Contains(t, "real"), strings.Contains(t, "float"), strings.Contains(t, "double"):
		return columnar.TypeFloat64
	case strings.Contains(t, "bool"):
		return columnar.TypeBool
	case strings.Contains(t, "timestamp"), strings.Contains(t, "datetime"):
		return columnar.TypeTimestamp
	case strings.Contains(t, "text"), strings.Contains(t, "varchar"), strings.Contains(t, "char"):
		return columnar.TypeUtf8
	default:
		return columnar.TypeUtf8
	}
}

// Path returns the backing SQLite file path, or "" if no external catalog
// was configured.
func (ec *ExternalCatalog) Path() string {
	return ec.path
}

// Tables returns the discovered table name -> schema mapping.
func (ec *ExternalCatalog) Tables() map[string]columnar.Schema {
	return ec.tables
}

// HasTable reports whether name was discovered in the external file.
func (ec *ExternalCatalog) HasTable(name string) bool {
	_, ok := ec.tables[name]
	return ok
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
