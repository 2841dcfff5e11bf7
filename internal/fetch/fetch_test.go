package fetch

import (
	"testing"

	"github.com/akz4ol/histgate/internal/planner"
)

func TestMatchesLikePattern(t *testing.T) {
	cases := []struct {
		value, pattern string
		want           bool
	}{
		{"Plant1.PV1", "Plant1.%", true},
		{"Plant2.PV1", "Plant1.%", false},
		{"Plant1.PV1", "%.PV1", true},
		{"Plant1.PV1", "%PV%", true},
		{"GOOD", "G_OD", true},
		{"BAD", "G_OD", false},
	}
	for _, c := range cases {
		if got := matchesLikePattern(c.value, c.pattern); got != c.want {
			t.Errorf("matchesLikePattern(%q, %q) = %v, want %v", c.value, c.pattern, got, c.want)
		}
	}
}

func TestCheckNumericFilter(t *testing.T) {
	gt := planner.ColumnFilter{Operator: planner.OpGreaterThan, Value: planner.FilterValue{Kind: planner.ValNumber, Num: 10}}
	if !checkNumericFilter(15, gt) {
		t.Error("15 > 10 should pass")
	}
	if checkNumericFilter(5, gt) {
		t.Error("5 > 10 should fail")
	}
	eq := planner.ColumnFilter{Operator: planner.OpEqual, Value: planner.FilterValue{Kind: planner.ValNumber, Num: 42}}
	if !checkNumericFilter(42, eq) {
		t.Error("42 == 42 should pass")
	}
}

func TestCheckStringFilter(t *testing.T) {
	like := planner.ColumnFilter{Operator: planner.OpLike, Value: planner.FilterValue{Str: "GOOD%"}}
	if !checkStringFilter("GOOD_NON_CASCADE", like) {
		t.Error("expected LIKE match")
	}
	neq := planner.ColumnFilter{Operator: planner.OpNotEqual, Value: planner.FilterValue{Str: "BAD"}}
	if !checkStringFilter("GOOD", neq) {
		t.Error("GOOD != BAD should pass")
	}
}

func TestCheckNullFilter(t *testing.T) {
	eqNull := planner.ColumnFilter{Operator: planner.OpEqual, Value: planner.FilterValue{Str: "NULL"}}
	if !checkNullFilter(eqNull) {
		t.Error("equals NULL should match a missing value")
	}
	neqNull := planner.ColumnFilter{Operator: planner.OpNotEqual, Value: planner.FilterValue{Str: "NULL"}}
	if checkNullFilter(neqNull) {
		t.Error("not-equals NULL should reject a missing value")
	}
}

func TestAlarmFilterStringStripsWildcards(t *testing.T) {
	filters := []planner.ColumnFilter{
		{Column: "name", Operator: planner.OpLike, Value: planner.FilterValue{Str: "Pump%"}},
	}
	if got := alarmFilterString(filters); got != "Pump" {
		t.Fatalf("got %q", got)
	}
}

func TestAlarmFilterStringIgnoresUnrelatedColumns(t *testing.T) {
	filters := []planner.ColumnFilter{
		{Column: "priority", Operator: planner.OpEqual, Value: planner.FilterValue{Kind: planner.ValNumber, Num: 5}},
	}
	if got := alarmFilterString(filters); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestTimeBoundsBetween(t *testing.T) {
	filters := []planner.ColumnFilter{
		{
			Column:   "timestamp",
			Operator: planner.OpBetween,
			Value: planner.FilterValue{
				RangeLo: &planner.FilterValue{Str: "2026-01-01T00:00:00.000"},
				RangeHi: &planner.FilterValue{Str: "2026-02-01T00:00:00.000"},
			},
		},
	}
	start, end := timeBounds(filters, "timestamp")
	if start == nil || end == nil {
		t.Fatal("expected both bounds set")
	}
	if *start != "2026-01-01T00:00:00.000" || *end != "2026-02-01T00:00:00.000" {
		t.Fatalf("got (%v, %v)", *start, *end)
	}
}

func TestTimeBoundsOpenEnded(t *testing.T) {
	filters := []planner.ColumnFilter{
		{Column: "timestamp", Operator: planner.OpGreaterThan, Value: planner.FilterValue{Str: "2026-01-01T00:00:00.000"}},
	}
	start, end := timeBounds(filters, "timestamp")
	if start == nil || *start != "2026-01-01T00:00:00.000" {
		t.Fatalf("start = %v", start)
	}
	if end != nil {
		t.Fatalf("end = %v, want nil", end)
	}
}

func TestBrowseNameFiltersAppendsWildcardToExactMatch(t *testing.T) {
	filters := []planner.ColumnFilter{
		{Column: "tag_name", Operator: planner.OpEqual, Value: planner.FilterValue{Str: "Plant1.PV1"}},
	}
	got := browseNameFilters(filters)
	if len(got) != 1 || got[0] != "Plant1.PV1*" {
		t.Fatalf("got %v", got)
	}
}

func TestSortingModeFromPlanDefault(t *testing.T) {
	plan := &planner.QueryPlan{}
	if got := sortingModeFromPlan(plan); got != "TIME_ASC" {
		t.Fatalf("got %q", got)
	}
}
