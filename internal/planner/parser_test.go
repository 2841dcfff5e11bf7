package planner

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func parse(t *testing.T, sql string) *Statement {
	t.Helper()
	stmt, err := Parse(sql, zerolog.Nop())
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", sql, err)
	}
	return stmt
}

func TestParseSimpleSelect(t *testing.T) {
	stmt := parse(t, "SELECT tag_name, numeric_value FROM tagvalues WHERE tag_name = 'Plant1.PV1'")
	if stmt.Select == nil {
		t.Fatal("expected a Select plan")
	}
	p := stmt.Select
	if len(p.Columns) != 2 || p.Columns[0] != "tag_name" || p.Columns[1] != "numeric_value" {
		t.Fatalf("Columns = %v", p.Columns)
	}
	if len(p.Filters) != 1 || p.Filters[0].Operator != OpEqual || p.Filters[0].Value.Str != "Plant1.PV1" {
		t.Fatalf("Filters = %+v", p.Filters)
	}
}

func TestParseWildcard(t *testing.T) {
	stmt := parse(t, "SELECT * FROM tagvalues WHERE tag_name = 'Plant1.PV1'")
	if len(stmt.Select.Columns) == 0 {
		t.Fatal("expected wildcard expansion to populate columns")
	}
}

func TestParseTagValuesWithoutTagNameFilterRejected(t *testing.T) {
	if _, err := Parse("SELECT * FROM tagvalues", zerolog.Nop()); err == nil {
		t.Fatal("expected tagvalues without a tag_name filter to be rejected")
	}
	if _, err := Parse("SELECT * FROM tagvalues WHERE numeric_value > 0", zerolog.Nop()); err == nil {
		t.Fatal("expected tagvalues with only a non-tag_name filter to be rejected")
	}
	if _, err := Parse("SELECT * FROM tagvalues WHERE tag_name > 'A'", zerolog.Nop()); err == nil {
		t.Fatal("expected a non-equality tag_name comparison to be rejected")
	}
}

func TestParseLoggedTagValuesWithoutTagNameFilterRejected(t *testing.T) {
	if _, err := Parse("SELECT tag_name FROM loggedtagvalues WHERE timestamp > CURRENT_TIMESTAMP - INTERVAL '1 hour'", zerolog.Nop()); err == nil {
		t.Fatal("expected loggedtagvalues without a tag_name filter to be rejected")
	}
}

func TestParseLoggedTagValuesLimitWithoutTimeBoundRejected(t *testing.T) {
	if _, err := Parse("SELECT tag_name FROM loggedtagvalues WHERE tag_name = 'Plant1.PV1' LIMIT 10", zerolog.Nop()); err == nil {
		t.Fatal("expected LIMIT without a timestamp bound to be rejected")
	}
}

func TestParseLoggedTagValuesLimitWithTimeBoundAccepted(t *testing.T) {
	stmt := parse(t, "SELECT tag_name FROM loggedtagvalues WHERE tag_name = 'Plant1.PV1' AND timestamp > CURRENT_TIMESTAMP - INTERVAL '1 day' LIMIT 10")
	if stmt.Select.Limit == nil || *stmt.Select.Limit != 10 {
		t.Fatalf("Limit = %v", stmt.Select.Limit)
	}
}

func TestParseLikeAndIn(t *testing.T) {
	stmt := parse(t, "SELECT tag_name FROM taglist WHERE tag_name LIKE 'Plant1.%' AND object_type IN ('TAG', 'FOLDER')")
	f := stmt.Select.Filters
	if len(f) != 2 {
		t.Fatalf("expected 2 filters, got %d", len(f))
	}
	if f[0].Operator != OpLike || f[0].Value.Str != "Plant1.%" {
		t.Fatalf("LIKE filter = %+v", f[0])
	}
	if f[1].Operator != OpIn || len(f[1].Value.List) != 2 {
		t.Fatalf("IN filter = %+v", f[1])
	}
}

func TestParseBetween(t *testing.T) {
	stmt := parse(t, "SELECT tag_name FROM loggedtagvalues WHERE tag_name = 'Plant1.PV1' AND timestamp BETWEEN '2026-01-01' AND '2026-02-01'")
	f := stmt.Select.Filters[1]
	if f.Operator != OpBetween || f.Value.RangeLo.Str != "2026-01-01" || f.Value.RangeHi.Str != "2026-02-01" {
		t.Fatalf("BETWEEN filter = %+v", f)
	}
}

func TestParseIntervalArithmetic(t *testing.T) {
	before := time.Now().UTC()
	stmt := parse(t, "SELECT tag_name FROM loggedtagvalues WHERE tag_name = 'Plant1.PV1' AND timestamp > CURRENT_TIMESTAMP - INTERVAL '1 hour'")
	f := stmt.Select.Filters[1]
	if f.Operator != OpGreaterThan || f.Value.Kind != ValTimestamp {
		t.Fatalf("filter = %+v", f)
	}
	got, err := time.Parse(timestampLayout, f.Value.Str)
	if err != nil {
		t.Fatalf("parsing generated timestamp: %v", err)
	}
	wantApprox := before.Add(-1 * time.Hour)
	if got.Sub(wantApprox) > 2*time.Second || wantApprox.Sub(got) > 2*time.Second {
		t.Fatalf("interval arithmetic off: got %v, want near %v", got, wantApprox)
	}
}

func TestParseIntervalMonthAndYear(t *testing.T) {
	before := time.Now().UTC()

	stmt := parse(t, "SELECT tag_name FROM loggedtagvalues WHERE tag_name = 'Plant1.PV1' AND timestamp > CURRENT_TIMESTAMP - INTERVAL '1 month'")
	got, err := time.Parse(timestampLayout, stmt.Select.Filters[1].Value.Str)
	if err != nil {
		t.Fatalf("parsing generated timestamp: %v", err)
	}
	wantApprox := before.Add(-30 * 24 * time.Hour)
	if got.Sub(wantApprox) > 2*time.Second || wantApprox.Sub(got) > 2*time.Second {
		t.Fatalf("month interval off: got %v, want near %v", got, wantApprox)
	}

	stmt = parse(t, "SELECT tag_name FROM loggedtagvalues WHERE tag_name = 'Plant1.PV1' AND timestamp > CURRENT_TIMESTAMP - INTERVAL '1 year'")
	got, err = time.Parse(timestampLayout, stmt.Select.Filters[1].Value.Str)
	if err != nil {
		t.Fatalf("parsing generated timestamp: %v", err)
	}
	wantApprox = before.Add(-365 * 24 * time.Hour)
	if got.Sub(wantApprox) > 2*time.Second || wantApprox.Sub(got) > 2*time.Second {
		t.Fatalf("year interval off: got %v, want near %v", got, wantApprox)
	}
}

func TestParseOrderByLimit(t *testing.T) {
	stmt := parse(t, "SELECT tag_name FROM tagvalues WHERE tag_name = 'Plant1.PV1' ORDER BY tag_name DESC LIMIT 10")
	if stmt.Select.OrderBy == nil || !stmt.Select.OrderBy.Desc || stmt.Select.OrderBy.Column != "tag_name" {
		t.Fatalf("OrderBy = %+v", stmt.Select.OrderBy)
	}
	if stmt.Select.Limit == nil || *stmt.Select.Limit != 10 {
		t.Fatalf("Limit = %v", stmt.Select.Limit)
	}
}

func TestParseUnknownTableErrors(t *testing.T) {
	if _, err := Parse("SELECT * FROM nonexistent_table", zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown table")
	}
}

func TestParseUnknownColumnErrors(t *testing.T) {
	if _, err := Parse("SELECT bogus_column FROM tagvalues", zerolog.Nop()); err == nil {
		t.Fatal("expected error for unknown column")
	}
}

func TestParseVirtualColumnNotSelectable(t *testing.T) {
	if _, err := Parse("SELECT language FROM taglist", zerolog.Nop()); err == nil {
		t.Fatal("expected error selecting a virtual (WHERE-only) column")
	}
}

func TestParseOrIsRejected(t *testing.T) {
	if _, err := Parse("SELECT tag_name FROM tagvalues WHERE tag_name = 'A' OR tag_name = 'B'", zerolog.Nop()); err == nil {
		t.Fatal("expected OR in WHERE clause to be rejected")
	}
}

func TestParseSetStatementAcknowledged(t *testing.T) {
	stmt, err := Parse("SET extra_float_digits = 3", zerolog.Nop())
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if !stmt.IsSet || stmt.SetTag != "SET" {
		t.Fatalf("stmt = %+v", stmt)
	}
}
