package wire

import (
	"testing"

	"github.com/akz4ol/histgate/internal/columnar"
	"github.com/akz4ol/histgate/internal/pgerr"
)

func TestRowDescriptionSkipsVirtualColumns(t *testing.T) {
	schema := columnar.Schema{
		{Name: "tag_name", Type: columnar.TypeUtf8},
		{Name: "language", Type: columnar.TypeUtf8, Virtual: true},
	}
	rd := RowDescription(schema)
	if len(rd.Fields) != 1 || string(rd.Fields[0].Name) != "tag_name" {
		t.Fatalf("fields = %+v", rd.Fields)
	}
}

func TestDataRowEncodesNullForMissingValue(t *testing.T) {
	schema := columnar.Schema{{Name: "numeric_value", Type: columnar.TypeFloat64}}
	row := map[string]columnar.Value{}
	dr := DataRow(schema, row)
	if len(dr.Values) != 1 || dr.Values[0] != nil {
		t.Fatalf("expected a single NULL value, got %+v", dr.Values)
	}
}

func TestDataRowEncodesPresentValue(t *testing.T) {
	schema := columnar.Schema{{Name: "numeric_value", Type: columnar.TypeFloat64}}
	row := map[string]columnar.Value{"numeric_value": {Kind: columnar.Float, Float: 3.5}}
	dr := DataRow(schema, row)
	if string(dr.Values[0]) != "3.5" {
		t.Fatalf("got %q", dr.Values[0])
	}
}

func TestErrorResponseCarriesSQLSTATE(t *testing.T) {
	err := pgerr.New(pgerr.UndefinedTable, "relation %q does not exist", "bogus")
	resp := ErrorResponse(err)
	if resp.Code != pgerr.UndefinedTable || resp.Severity != "ERROR" {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestRowDescriptionFromColumnsRoundTrip(t *testing.T) {
	cols := []ColumnDesc{{Name: "n", OID: 20}, {Name: "avg_val", OID: 701}}
	rd := RowDescriptionFromColumns(cols)
	if len(rd.Fields) != 2 || rd.Fields[0].DataTypeSize != 8 || rd.Fields[1].DataTypeSize != 8 {
		t.Fatalf("fields = %+v", rd.Fields)
	}

	dr := DataRowFromValues([]columnar.Value{{Kind: columnar.Integer, Int: 2}, {Kind: columnar.Null}})
	if string(dr.Values[0]) != "2" || dr.Values[1] != nil {
		t.Fatalf("values = %+v", dr.Values)
	}
}
