package catalog

import (
	"testing"

	"github.com/akz4ol/histgate/internal/columnar"
)

func TestLoadExternalCatalogEmptyPath(t *testing.T) {
	ec, err := LoadExternalCatalog("")
	if err != nil {
		t.Fatalf("LoadExternalCatalog(\"\") error = %v", err)
	}
	if ec.Path() != "" || len(ec.Tables()) != 0 {
		t.Fatalf("expected an empty catalog, got %+v", ec.Tables())
	}
	if ec.HasTable("anything") {
		t.Fatal("empty catalog should have no tables")
	}
}

func TestMapSQLiteAffinity(t *testing.T) {
	cases := map[string]columnar.LogicalType{
		"INTEGER":  columnar.TypeInt64,
		"BIGINT":   columnar.TypeInt64,
		"REAL":     columnar.TypeFloat64,
		"DOUBLE":   columnar.TypeFloat64,
		"TEXT":     columnar.TypeUtf8,
		"VARCHAR(255)": columnar.TypeUtf8,
		"BOOLEAN":  columnar.TypeBool,
		"TIMESTAMP": columnar.TypeTimestamp,
		"BLOB":     columnar.TypeUtf8,
	}
	for decl, want := range cases {
		if got := mapSQLiteAffinity(decl); got != want {
			t.Errorf("mapSQLiteAffinity(%q) = %v, want %v", decl, got, want)
		}
	}
}
