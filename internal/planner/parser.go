package planner

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/akz4ol/histgate/internal/catalog"
	"github.com/akz4ol/histgate/internal/pgerr"
)

// timestampLayout is the canonical rendering used whenever the planner
// synthesizes a timestamp value (CURRENT_TIMESTAMP and interval arithmetic),
// always in UTC.
const timestampLayout = "2006-01-02T15:04:05.000"

// Statement is the parsed result of one SQL text: either Select is populated,
// or IsSet is true and SetTag holds the acknowledgement tag.
type Statement struct {
	Select    *QueryPlan
	SetTag    string // non-empty for a SET/SET NAMES/SET TIME ZONE acknowledgement
	IsSet     bool
}

// Parser turns one SQL statement into a Statement. A Parser is not reusable
// across statements.
type Parser struct {
	lex    *Lexer
	tok    Token
	logger zerolog.Logger
}

// Parse parses a single SQL statement (spec §4.4). logger is kept on the
// Parser, but no parse path logs through it (LIKE wildcard warnings are
// logged by internal/fetch); OR in a WHERE clause is rejected outright, not flattened (see
// parseWhere and DESIGN.md Open Question b).
func Parse(sql string, logger zerolog.Logger) (*Statement, error) {
	p := &Parser{lex: NewLexer(sql), logger: logger}
	if err := p.advance(); err != nil {
		return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
	}

	if p.isKeyword("SET") {
		return p.parseSet()
	}
	if !p.isKeyword("SELECT") {
		return nil, pgerr.New(pgerr.SyntaxError, "expected SELECT or SET, got %q", p.tok.Text)
	}
	plan, err := p.parseSelect()
	if err != nil {
		return nil, err
	}
	return &Statement{Select: plan}, nil
}

func (p *Parser) advance() error {
	tok, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *Parser) isKeyword(kw string) bool {
	return p.tok.Kind == TokIdent && strings.EqualFold(p.tok.Text, kw)
}

func (p *Parser) expectKeyword(kw string) error {
	if !p.isKeyword(kw) {
		return pgerr.New(pgerr.SyntaxError, "expected %q, got %q", kw, p.tok.Text)
	}
	return p.advance()
}

func (p *Parser) parseSet() (*Statement, error) {
	// SET <name> = <value> | SET NAMES <charset> | SET TIME ZONE <value>
	// Acknowledged but otherwise ignored (spec §4.4, SET passthrough).
	for p.tok.Kind != TokEOF {
		if err := p.advance(); err != nil {
			return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
	}
	return &Statement{IsSet: true, SetTag: "SET"}, nil
}

func (p *Parser) parseSelect() (*QueryPlan, error) {
	if err := p.advance(); err != nil { // consume SELECT
		return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
	}

	distinct := false
	if p.isKeyword("DISTINCT") {
		distinct = true
		if err := p.advance(); err != nil {
			return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
	}

	wildcard := false
	var rawCols []string
	aliases := map[string]string{}

	if p.tok.Kind == TokStar {
		wildcard = true
		if err := p.advance(); err != nil {
			return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
	} else {
		for {
			if p.tok.Kind != TokIdent {
				return nil, pgerr.New(pgerr.SyntaxError, "expected column name, got %q", p.tok.Text)
			}
			col := p.tok.Text
			if err := p.advance(); err != nil {
				return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
			}
			alias := col
			if p.isKeyword("AS") {
				if err := p.advance(); err != nil {
					return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
				}
				if p.tok.Kind != TokIdent {
					return nil, pgerr.New(pgerr.SyntaxError, "expected alias after AS")
				}
				alias = p.tok.Text
				if err := p.advance(); err != nil {
					return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
				}
			} else if p.tok.Kind == TokIdent && !p.isKeyword("FROM") {
				alias = p.tok.Text
				if err := p.advance(); err != nil {
					return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
				}
			}
			rawCols = append(rawCols, col)
			aliases[alias] = col
			if p.tok.Kind == TokComma {
				if err := p.advance(); err != nil {
					return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
				}
				continue
			}
			break
		}
	}

	if err := p.expectKeyword("FROM"); err != nil {
		return nil, err
	}
	if p.tok.Kind != TokIdent {
		return nil, pgerr.New(pgerr.SyntaxError, "expected table name, got %q", p.tok.Text)
	}
	tableName := p.tok.Text
	if err := p.advance(); err != nil {
		return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
	}
	if p.tok.Kind == TokDot {
		if err := p.advance(); err != nil {
			return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		if p.tok.Kind != TokIdent {
			return nil, pgerr.New(pgerr.SyntaxError, "expected table name after schema")
		}
		tableName = tableName + "." + p.tok.Text
		if err := p.advance(); err != nil {
			return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
	}

	table, ok := catalog.FromName(tableName)
	if !ok {
		return nil, pgerr.New(pgerr.UndefinedTable, "relation %q does not exist", tableName)
	}

	var filters []ColumnFilter
	if p.isKeyword("WHERE") {
		if err := p.advance(); err != nil {
			return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		f, err := p.parseWhere(table)
		if err != nil {
			return nil, err
		}
		filters = f
	}

	var orderBy *OrderBy
	if p.isKeyword("ORDER") {
		if err := p.advance(); err != nil {
			return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		if err := p.expectKeyword("BY"); err != nil {
			return nil, err
		}
		if p.tok.Kind != TokIdent {
			return nil, pgerr.New(pgerr.SyntaxError, "expected column after ORDER BY")
		}
		col := p.tok.Text
		if err := p.advance(); err != nil {
			return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		desc := false
		if p.isKeyword("DESC") {
			desc = true
			if err := p.advance(); err != nil {
				return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
			}
		} else if p.isKeyword("ASC") {
			if err := p.advance(); err != nil {
				return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
			}
		}
		orderBy = &OrderBy{Column: col, Desc: desc}
	}

	var limit *int64
	if p.isKeyword("LIMIT") {
		if err := p.advance(); err != nil {
			return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		if p.tok.Kind != TokNumber {
			return nil, pgerr.New(pgerr.SyntaxError, "expected number after LIMIT")
		}
		n, err := strconv.ParseInt(p.tok.Text, 10, 64)
		if err != nil {
			return nil, pgerr.New(pgerr.SyntaxError, "invalid LIMIT value %q", p.tok.Text)
		}
		limit = &n
		if err := p.advance(); err != nil {
			return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
	}

	if p.tok.Kind != TokEOF {
		return nil, pgerr.New(pgerr.SyntaxError, "unexpected trailing input near %q", p.tok.Text)
	}

	columns := rawCols
	if wildcard {
		for _, c := range table.Schema().Selectable() {
			columns = append(columns, c.Name)
			aliases[c.Name] = c.Name
		}
	} else {
		for _, col := range rawCols {
			if !table.HasColumn(col) {
				return nil, pgerr.New(pgerr.UndefinedColumn, "column %q does not exist", col)
			}
			if !table.IsSelectableColumn(col) {
				return nil, pgerr.New(pgerr.UndefinedColumn, "column %q is a filter-only column and cannot be selected", col)
			}
		}
	}

	if (table == catalog.TagValues || table == catalog.LoggedTagValues) && !hasTagNameFilter(filters) {
		return nil, pgerr.New(pgerr.MissingRequiredTagFilter, "%s requires a tag_name filter (=, IN, or LIKE)", table.Name())
	}
	if table == catalog.LoggedTagValues && limit != nil && !hasTimestampBound(filters) {
		return nil, pgerr.New(pgerr.LimitWithoutTimeBound, "loggedtagvalues LIMIT requires a timestamp bound")
	}

	return &QueryPlan{
		Table:         table,
		Columns:       columns,
		ColumnSources: aliases,
		Filters:       filters,
		Limit:         limit,
		OrderBy:       orderBy,
		Distinct:      distinct,
	}, nil
}

// parseWhere parses a chain of predicates joined by AND. OR is rejected
// outright (DESIGN.md Open Question b): the reference implementation this
// gateway is grounded on flattens OR into the same conjunctive list as AND,
// which silently turns a disjunction into an incorrect intersection once the
// predicates cross remote-call boundaries. Rather than reproduce that bug,
// the gateway refuses the query so a client can split it into two queries
// and union the results itself.
func (p *Parser) parseWhere(table catalog.VirtualTable) ([]ColumnFilter, error) {
	var filters []ColumnFilter
	for {
		f, err := p.parsePredicate(table)
		if err != nil {
			return nil, err
		}
		filters = append(filters, f)

		if p.isKeyword("AND") {
			if err := p.advance(); err != nil {
				return nil, pgerr.New(pgerr.SyntaxError, "%s", err)
			}
			continue
		}
		if p.isKeyword("OR") {
			return nil, pgerr.New(pgerr.FeatureNotSupported, "OR in WHERE clause is not supported; split into separate queries and union the results")
		}
		break
	}
	return filters, nil
}

func (p *Parser) parsePredicate(table catalog.VirtualTable) (ColumnFilter, error) {
	if p.tok.Kind != TokIdent {
		return ColumnFilter{}, pgerr.New(pgerr.SyntaxError, "expected column name in WHERE clause, got %q", p.tok.Text)
	}
	column := p.tok.Text
	if err := p.advance(); err != nil {
		return ColumnFilter{}, pgerr.New(pgerr.SyntaxError, "%s", err)
	}
	if !table.HasColumn(column) {
		return ColumnFilter{}, pgerr.New(pgerr.UndefinedColumn, "column %q does not exist", column)
	}

	switch {
	case p.isKeyword("LIKE"):
		if err := p.advance(); err != nil {
			return ColumnFilter{}, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		if p.tok.Kind != TokString {
			return ColumnFilter{}, pgerr.New(pgerr.SyntaxError, "expected string literal after LIKE")
		}
		pattern := p.tok.Text
		if err := p.advance(); err != nil {
			return ColumnFilter{}, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		return ColumnFilter{Column: column, Operator: OpLike, Value: FilterValue{Kind: ValString, Str: pattern}}, nil

	case p.isKeyword("IN"):
		if err := p.advance(); err != nil {
			return ColumnFilter{}, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		if p.tok.Kind != TokLParen {
			return ColumnFilter{}, pgerr.New(pgerr.SyntaxError, "expected ( after IN")
		}
		if err := p.advance(); err != nil {
			return ColumnFilter{}, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		var values []string
		for {
			if p.tok.Kind != TokString {
				return ColumnFilter{}, pgerr.New(pgerr.SyntaxError, "expected string literal in IN list")
			}
			values = append(values, p.tok.Text)
			if err := p.advance(); err != nil {
				return ColumnFilter{}, pgerr.New(pgerr.SyntaxError, "%s", err)
			}
			if p.tok.Kind == TokComma {
				if err := p.advance(); err != nil {
					return ColumnFilter{}, pgerr.New(pgerr.SyntaxError, "%s", err)
				}
				continue
			}
			break
		}
		if p.tok.Kind != TokRParen {
			return ColumnFilter{}, pgerr.New(pgerr.SyntaxError, "expected ) to close IN list")
		}
		if err := p.advance(); err != nil {
			return ColumnFilter{}, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		return ColumnFilter{Column: column, Operator: OpIn, Value: FilterValue{Kind: ValList, List: values}}, nil

	case p.isKeyword("BETWEEN"):
		if err := p.advance(); err != nil {
			return ColumnFilter{}, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		lo, err := p.parseValue(column)
		if err != nil {
			return ColumnFilter{}, err
		}
		if err := p.expectKeyword("AND"); err != nil {
			return ColumnFilter{}, err
		}
		hi, err := p.parseValue(column)
		if err != nil {
			return ColumnFilter{}, err
		}
		return ColumnFilter{Column: column, Operator: OpBetween, Value: FilterValue{Kind: ValRange, RangeLo: &lo, RangeHi: &hi}}, nil

	case p.tok.Kind == TokOp:
		op, err := parseOperator(p.tok.Text)
		if err != nil {
			return ColumnFilter{}, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		if err := p.advance(); err != nil {
			return ColumnFilter{}, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		val, err := p.parseValue(column)
		if err != nil {
			return ColumnFilter{}, err
		}
		return ColumnFilter{Column: column, Operator: op, Value: val}, nil

	default:
		return ColumnFilter{}, pgerr.New(pgerr.SyntaxError, "unsupported predicate near %q", p.tok.Text)
	}
}

// hasTagNameFilter reports whether filters contains a tag_name predicate
// narrow enough to drive a remote lookup (spec §4.4 Validation:
// MissingRequiredTagFilter). Comparison operators other than equality don't
// count: "tag_name > 'x'" isn't a fetchable set of tag names.
func hasTagNameFilter(filters []ColumnFilter) bool {
	for _, f := range filters {
		if f.Column != "tag_name" {
			continue
		}
		switch f.Operator {
		case OpEqual, OpIn, OpLike:
			return true
		}
	}
	return false
}

// hasTimestampBound reports whether filters constrains the timestamp column
// in any way, required alongside LIMIT on LoggedTagValues (spec §4.4
// Validation: LimitWithoutTimeBound) so an unbounded LIMIT can't silently
// scan the entire logged history.
func hasTimestampBound(filters []ColumnFilter) bool {
	for _, f := range filters {
		if f.Column == "timestamp" {
			return true
		}
	}
	return false
}

func parseOperator(text string) (FilterOp, error) {
	switch text {
	case "=":
		return OpEqual, nil
	case "!=", "<>":
		return OpNotEqual, nil
	case ">":
		return OpGreaterThan, nil
	case "<":
		return OpLessThan, nil
	case ">=":
		return OpGreaterThanOrEqual, nil
	case "<=":
		return OpLessThanOrEqual, nil
	default:
		return 0, fmt.Errorf("unsupported operator %q", text)
	}
}

// parseValue parses a comparison operand: a string literal, a number, or a
// CURRENT_TIMESTAMP expression optionally offset by an INTERVAL (spec §4.4,
// "interval arithmetic").
func (p *Parser) parseValue(column string) (FilterValue, error) {
	switch {
	case p.tok.Kind == TokOp && p.tok.Text == "-":
		if err := p.advance(); err != nil {
			return FilterValue{}, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		if p.tok.Kind != TokNumber {
			return FilterValue{}, pgerr.New(pgerr.SyntaxError, "expected number after unary -")
		}
		s := p.tok.Text
		if err := p.advance(); err != nil {
			return FilterValue{}, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return FilterValue{}, pgerr.New(pgerr.SyntaxError, "invalid numeric literal %q", s)
		}
		return FilterValue{Kind: ValNumber, Num: -f}, nil

	case p.tok.Kind == TokString:
		s := p.tok.Text
		if err := p.advance(); err != nil {
			return FilterValue{}, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		return FilterValue{Kind: ValString, Str: s}, nil

	case p.tok.Kind == TokNumber:
		s := p.tok.Text
		if err := p.advance(); err != nil {
			return FilterValue{}, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return FilterValue{Kind: ValNumber, Num: f}, nil
		}
		return FilterValue{}, pgerr.New(pgerr.SyntaxError, "invalid numeric literal %q", s)

	case p.isKeyword("CURRENT_TIMESTAMP") || p.isKeyword("CURRENT_TIME") || p.isKeyword("NOW"):
		if err := p.advance(); err != nil {
			return FilterValue{}, pgerr.New(pgerr.SyntaxError, "%s", err)
		}
		base := time.Now().UTC()
		if p.tok.Kind == TokOp && (p.tok.Text == "+" || p.tok.Text == "-") {
			sign := p.tok.Text
			if err := p.advance(); err != nil {
				return FilterValue{}, pgerr.New(pgerr.SyntaxError, "%s", err)
			}
			d, err := p.parseInterval()
			if err != nil {
				return FilterValue{}, err
			}
			if sign == "-" {
				base = base.Add(-d)
			} else {
				base = base.Add(d)
			}
		}
		return FilterValue{Kind: ValTimestamp, Str: base.Format(timestampLayout)}, nil

	default:
		return FilterValue{}, pgerr.New(pgerr.SyntaxError, "unexpected token %q in WHERE clause", p.tok.Text)
	}
}

// parseInterval parses "INTERVAL '<n> <unit>'" into a time.Duration.
func (p *Parser) parseInterval() (time.Duration, error) {
	if err := p.expectKeyword("INTERVAL"); err != nil {
		return 0, err
	}
	if p.tok.Kind != TokString {
		return 0, pgerr.New(pgerr.SyntaxError, "expected interval string literal")
	}
	raw := p.tok.Text
	if err := p.advance(); err != nil {
		return 0, pgerr.New(pgerr.SyntaxError, "%s", err)
	}
	return parseIntervalString(raw)
}

func parseIntervalString(raw string) (time.Duration, error) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) != 2 {
		return 0, pgerr.New(pgerr.SyntaxError, "malformed interval literal %q", raw)
	}
	n, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, pgerr.New(pgerr.SyntaxError, "malformed interval quantity %q", fields[0])
	}
	unit := strings.ToLower(strings.TrimSuffix(fields[1], "s"))
	switch unit {
	case "second":
		return time.Duration(n * float64(time.Second)), nil
	case "minute":
		return time.Duration(n * float64(time.Minute)), nil
	case "hour":
		return time.Duration(n * float64(time.Hour)), nil
	case "day":
		return time.Duration(n * 24 * float64(time.Hour)), nil
	case "week":
		return time.Duration(n * 7 * 24 * float64(time.Hour)), nil
	case "month":
		return time.Duration(n * 30 * 24 * float64(time.Hour)), nil
	case "year":
		return time.Duration(n * 365 * 24 * float64(time.Hour)), nil
	default:
		return 0, pgerr.New(pgerr.SyntaxError, "unsupported interval unit %q", fields[1])
	}
}
