package fetch

import "testing"

func TestTranslateLikeBarePercent(t *testing.T) {
	got, warn := TranslateLike("%")
	if got != "*" || warn {
		t.Fatalf("TranslateLike(%%) = (%q, %v)", got, warn)
	}
}

func TestTranslateLikeTrailing(t *testing.T) {
	got, warn := TranslateLike("Plant1.%")
	if got != "Plant1.*" || warn {
		t.Fatalf("got (%q, %v)", got, warn)
	}
}

func TestTranslateLikeLeading(t *testing.T) {
	got, warn := TranslateLike("%.PV1")
	if got != "*.PV1" || warn {
		t.Fatalf("got (%q, %v)", got, warn)
	}
}

func TestTranslateLikeSurrounding(t *testing.T) {
	got, warn := TranslateLike("%PV1%")
	if got != "*PV1*" || warn {
		t.Fatalf("got (%q, %v)", got, warn)
	}
}

func TestTranslateLikeUnderscoreWarns(t *testing.T) {
	got, warn := TranslateLike("Plant_.PV1")
	if !warn {
		t.Fatal("expected a warning for '_' wildcard")
	}
	if got != "Plant_.PV1" {
		t.Fatalf("got %q, want underscore left unchanged", got)
	}
}

func TestTranslateLikeTextualFallback(t *testing.T) {
	got, _ := TranslateLike("Plant1.%.PV%")
	if got != "Plant1.*.PV*" {
		t.Fatalf("got %q", got)
	}
}

func TestTranslateLikeNoWildcard(t *testing.T) {
	got, warn := TranslateLike("Plant1.PV1")
	if got != "Plant1.PV1" || warn {
		t.Fatalf("got (%q, %v)", got, warn)
	}
}

func TestAsLoggingTagPatternAppendsWildcard(t *testing.T) {
	if got := AsLoggingTagPattern("Plant1.*"); got != "Plant1.*:*" {
		t.Fatalf("got %q", got)
	}
}

func TestAsLoggingTagPatternLeavesExplicitColon(t *testing.T) {
	if got := AsLoggingTagPattern("Plant1.PV1:logging"); got != "Plant1.PV1:logging" {
		t.Fatalf("got %q", got)
	}
}

func TestSortingMode(t *testing.T) {
	cases := []struct {
		column string
		desc   bool
		want   string
	}{
		{"timestamp", false, "TIME_ASC"},
		{"timestamp", true, "TIME_DESC"},
		{"raise_time", true, "TIME_DESC"},
		{"tag_name", true, "TIME_ASC"},
		{"", false, "TIME_ASC"},
	}
	for _, c := range cases {
		if got := SortingMode(c.column, c.desc); got != c.want {
			t.Errorf("SortingMode(%q, %v) = %q, want %q", c.column, c.desc, got, c.want)
		}
	}
}

func TestDedupeNames(t *testing.T) {
	got := DedupeNames([]string{"a", "b", "a", "c", "b"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
