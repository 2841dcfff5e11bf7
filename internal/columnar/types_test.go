package columnar

import "testing"

func TestFormatNumeric(t *testing.T) {
	cases := map[float64]string{
		1:    "1",
		100:  "100",
		1.5:  "1.5",
		0:    "0",
		-2:   "-2",
		2.25: "2.25",
	}
	for in, want := range cases {
		if got := FormatNumeric(in); got != want {
			t.Errorf("FormatNumeric(%v) = %q, want %q", in, got, want)
		}
	}
}

func TestLogicalTypeOID(t *testing.T) {
	cases := map[LogicalType]uint32{
		TypeBool:      16,
		TypeInt16:     21,
		TypeInt32:     23,
		TypeInt64:     20,
		TypeFloat32:   700,
		TypeFloat64:   701,
		TypeUtf8:      25,
		TypeTimestamp: 1114,
	}
	for typ, want := range cases {
		if got := typ.OID(); got != want {
			t.Errorf("%v.OID() = %d, want %d", typ, got, want)
		}
	}
}

func TestSchemaByName(t *testing.T) {
	s := Schema{
		{Name: "tag_name", Type: TypeUtf8},
		{Name: "language", Type: TypeUtf8, Virtual: true},
	}
	if _, ok := s.ByName("TAG_NAME"); !ok {
		t.Fatal("expected case-insensitive lookup to succeed")
	}
	sel := s.Selectable()
	if len(sel) != 1 || sel[0].Name != "tag_name" {
		t.Fatalf("Selectable() = %+v, want only tag_name", sel)
	}
}

func TestBatchAppendRowFillsNull(t *testing.T) {
	b := NewBatch(Schema{{Name: "a", Type: TypeUtf8}, {Name: "b", Type: TypeInt64}})
	b.AppendRow(map[string]Value{"a": {Kind: Text, Text: "x"}})
	if b.NumRows != 1 {
		t.Fatalf("NumRows = %d, want 1", b.NumRows)
	}
	if b.Columns["b"][0].Kind != Null {
		t.Fatalf("missing column should be NULL, got %+v", b.Columns["b"][0])
	}
}
