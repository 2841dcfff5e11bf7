package planner

import "github.com/akz4ol/histgate/internal/catalog"

// FilterOp is the comparison operator of a ColumnFilter (spec §4.4, grounded
// on the backend's own closed filter-operator enum).
type FilterOp int

const (
	OpEqual FilterOp = iota
	OpNotEqual
	OpLike
	OpIn
	OpGreaterThan
	OpLessThan
	OpGreaterThanOrEqual
	OpLessThanOrEqual
	OpBetween
)

// FilterValueKind discriminates the FilterValue union.
type FilterValueKind int

const (
	ValString FilterValueKind = iota
	ValNumber
	ValInteger
	ValTimestamp
	ValList
	ValRange
)

// FilterValue is a typed WHERE-clause operand.
type FilterValue struct {
	Kind    FilterValueKind
	Str     string
	Num     float64
	Int     int64
	List    []string
	RangeLo *FilterValue
	RangeHi *FilterValue
}

// ColumnFilter is one resolved WHERE-clause predicate on a single column.
type ColumnFilter struct {
	Column   string
	Operator FilterOp
	Value    FilterValue
}

// OrderBy is the single supported ORDER BY clause (spec §4.4: at most one
// sort key, matching the original dialect's own restriction).
type OrderBy struct {
	Column string
	Desc   bool
}

// QueryPlan is the fully-resolved shape of a single-table SELECT (spec §4.4).
type QueryPlan struct {
	Table         catalog.VirtualTable
	Columns       []string          // output column order, as source column names (aliases are in ColumnSources)
	ColumnSources map[string]string // alias -> underlying column, identity if unaliased
	Filters       []ColumnFilter
	Limit         *int64
	OrderBy       *OrderBy
	Distinct      bool
}
