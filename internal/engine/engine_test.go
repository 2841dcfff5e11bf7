package engine

import (
	"context"
	"testing"

	"github.com/akz4ol/histgate/internal/columnar"
)

func sampleBatch() *columnar.Batch {
	schema := columnar.Schema{
		{Name: "tag_name", Type: columnar.TypeUtf8},
		{Name: "numeric_value", Type: columnar.TypeFloat64},
	}
	b := columnar.NewBatch(schema)
	b.AppendRow(map[string]columnar.Value{
		"tag_name":      {Kind: columnar.Text, Text: "Plant1.PV1"},
		"numeric_value": {Kind: columnar.Float, Float: 42.5},
	})
	b.AppendRow(map[string]columnar.Value{
		"tag_name":      {Kind: columnar.Text, Text: "Plant1.PV2"},
		"numeric_value": {Kind: columnar.Float, Float: 7},
	})
	return b
}

func TestRegisterAndProject(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close()

	ctx := context.Background()
	if err := e.RegisterBatch(ctx, "tagvalues", sampleBatch()); err != nil {
		t.Fatalf("RegisterBatch() error = %v", err)
	}

	result, err := e.Query(ctx, "SELECT tag_name, numeric_value FROM tagvalues ORDER BY numeric_value DESC")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Rows))
	}
	if result.Rows[0][0].Text != "Plant1.PV1" {
		t.Fatalf("expected highest numeric_value row first, got %+v", result.Rows[0])
	}
	if result.Columns[1].OID != columnar.TypeFloat64.OID() {
		t.Fatalf("numeric_value OID = %d, want %d", result.Columns[1].OID, columnar.TypeFloat64.OID())
	}
}

func TestAggregateQuery(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close()

	ctx := context.Background()
	if err := e.RegisterBatch(ctx, "tagvalues", sampleBatch()); err != nil {
		t.Fatalf("RegisterBatch() error = %v", err)
	}

	result, err := e.Query(ctx, "SELECT COUNT(*) AS n, AVG(numeric_value) AS avg_val FROM tagvalues")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(result.Rows))
	}
	if result.Rows[0][0].Int != 2 {
		t.Fatalf("COUNT(*) = %+v, want 2", result.Rows[0][0])
	}
}

func TestSchemaQualifiedReferenceNormalised(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close()

	ctx := context.Background()
	if err := e.RegisterBatch(ctx, "pg_namespace", &columnar.Batch{
		Schema:  columnar.Schema{{Name: "nspname", Type: columnar.TypeUtf8}},
		Columns: map[string][]columnar.Value{"nspname": {{Kind: columnar.Text, Text: "pg_catalog"}}},
		NumRows: 1,
	}); err != nil {
		t.Fatalf("RegisterBatch() error = %v", err)
	}

	result, err := e.Query(ctx, "SELECT nspname FROM pg_catalog.pg_namespace")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(result.Rows) != 1 || result.Rows[0][0].Text != "pg_catalog" {
		t.Fatalf("got %+v", result.Rows)
	}
}

func TestFromlessQuery(t *testing.T) {
	e, err := New()
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer e.Close()

	result, err := e.Query(context.Background(), "SELECT 1 AS one")
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if len(result.Rows) != 1 || result.Rows[0][0].Int != 1 {
		t.Fatalf("got %+v", result.Rows)
	}
}
