// Package columnar implements the columnar batch representation that sits
// between a remote fetch and the local execution engine (spec §4.6): a fixed
// schema per virtual table, nullable typed columns, and the
// Arrow-equivalent-physical-type -> PostgreSQL OID mapping used everywhere a
// RowDescription is built.
package columnar

import "fmt"

// LogicalType is a column's logical type, independent of any particular wire
// or storage representation.
type LogicalType int

const (
	TypeBool LogicalType = iota
	TypeInt16
	TypeInt32
	TypeInt64
	TypeFloat32
	TypeFloat64
	TypeUtf8
	TypeTimestamp
)

// OID returns the PostgreSQL type OID for a logical type (spec §4.6, minimum set).
func (t LogicalType) OID() uint32 {
	switch t {
	case TypeBool:
		return 16
	case TypeInt16:
		return 21
	case TypeInt32:
		return 23
	case TypeInt64:
		return 20
	case TypeFloat32:
		return 700
	case TypeFloat64:
		return 701
	case TypeUtf8:
		return 25
	case TypeTimestamp:
		return 1114
	default:
		return 25
	}
}

// Size returns the fixed wire size for the type, or -1 for variable-length
// (matches pgproto3's FieldDescription.DataTypeSize convention).
func (t LogicalType) Size() int16 {
	switch t {
	case TypeBool:
		return 1
	case TypeInt16:
		return 2
	case TypeInt32:
		return 4
	case TypeInt64:
		return 8
	case TypeFloat32:
		return 4
	case TypeFloat64:
		return 8
	case TypeTimestamp:
		return 8
	default:
		return -1
	}
}

// SQLiteDecl returns the column type declaration used when the engine adapter
// creates a table to host this column inside the embedded SQL engine.
func (t LogicalType) SQLiteDecl() string {
	switch t {
	case TypeBool:
		return "BOOLEAN"
	case TypeInt16, TypeInt32, TypeInt64:
		return "INTEGER"
	case TypeFloat32, TypeFloat64:
		return "REAL"
	case TypeTimestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

// Column describes one column of a virtual table.
type Column struct {
	Name    string
	Type    LogicalType
	Virtual bool // consumed from WHERE as a remote-call parameter, never returned
}

// Schema is an ordered list of columns.
type Schema []Column

// ByName looks up a column by name (case-insensitive), ignoring virtual-ness.
func (s Schema) ByName(name string) (Column, bool) {
	for _, c := range s {
		if equalFold(c.Name, name) {
			return c, true
		}
	}
	return Column{}, false
}

// Selectable returns the columns that are not virtual, in order.
func (s Schema) Selectable() Schema {
	out := make(Schema, 0, len(s))
	for _, c := range s {
		if !c.Virtual {
			out = append(out, c)
		}
	}
	return out
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 'A' && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if cb >= 'A' && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Kind discriminates the Value union (§3: NULL is a distinct value).
type Kind int

const (
	Null Kind = iota
	Text
	Integer
	Float
	Boolean
	Timestamp
)

// Value is a single typed cell, matching the QueryResult cell union of §4.6.
type Value struct {
	Kind  Kind
	Text  string
	Int   int64
	Float float64
	Bool  bool
	// TimeNanos is nanoseconds since the Unix epoch when Kind == Timestamp.
	TimeNanos int64
}

func (v Value) String() string {
	switch v.Kind {
	case Null:
		return "<null>"
	case Text:
		return v.Text
	case Integer:
		return fmt.Sprintf("%d", v.Int)
	case Float:
		return FormatNumeric(v.Float)
	case Boolean:
		if v.Bool {
			return "t"
		}
		return "f"
	case Timestamp:
		return v.Text
	default:
		return ""
	}
}

// FormatNumeric renders a float the way the planner's numeric_value column
// must render it: integral values with no fractional part ("1", not "1.0"),
// per spec §8 boundary behaviours.
func FormatNumeric(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}

// Batch is a single columnar batch: a schema and column-major nullable data.
type Batch struct {
	Schema  Schema
	Columns map[string][]Value // column name -> values, all same length
	NumRows int
}

// NewBatch creates an empty batch for the given schema.
func NewBatch(schema Schema) *Batch {
	cols := make(map[string][]Value, len(schema))
	for _, c := range schema {
		cols[c.Name] = nil
	}
	return &Batch{Schema: schema, Columns: cols}
}

// AppendRow appends one row given as column-name -> Value. Missing columns
// become NULL, matching "missing values become nullable entries" (§4.6).
func (b *Batch) AppendRow(row map[string]Value) {
	for _, c := range b.Schema {
		v, ok := row[c.Name]
		if !ok {
			v = Value{Kind: Null}
		}
		b.Columns[c.Name] = append(b.Columns[c.Name], v)
	}
	b.NumRows++
}
