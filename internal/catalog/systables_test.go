package catalog

import "testing"

func TestPgNamespaceBatchHasThreeRows(t *testing.T) {
	b := PgNamespaceBatch()
	if b.NumRows != 3 {
		t.Fatalf("NumRows = %d, want 3", b.NumRows)
	}
	names := b.Columns["nspname"]
	want := map[string]bool{"pg_catalog": false, "public": false, "information_schema": false}
	for _, v := range names {
		want[v.Text] = true
	}
	for name, found := range want {
		if !found {
			t.Errorf("expected pg_namespace row for %q", name)
		}
	}
}

func TestPgClassBatchCoversUserTables(t *testing.T) {
	b := PgClassBatch()
	relnames := map[string]bool{}
	for _, v := range b.Columns["relname"] {
		relnames[v.Text] = true
	}
	for _, vt := range UserTables() {
		if !relnames[vt.Name()] {
			t.Errorf("expected pg_class row for %q", vt.Name())
		}
	}
}

func TestPgConstraintBatchIsEmpty(t *testing.T) {
	if b := PgConstraintBatch(); b.NumRows != 0 {
		t.Fatalf("NumRows = %d, want 0", b.NumRows)
	}
}

func TestPgStatActivityBatchFromSnapshots(t *testing.T) {
	snaps := []ConnectionSnapshot{
		{ConnectionID: 1, Username: "alice", DatabaseName: "histgate", State: "active", LastQuery: "SELECT 1"},
	}
	b := PgStatActivityBatch(snaps)
	if b.NumRows != 1 {
		t.Fatalf("NumRows = %d, want 1", b.NumRows)
	}
	if b.Columns["usename"][0].Text != "alice" {
		t.Fatalf("usename = %+v", b.Columns["usename"][0])
	}
}

func TestInformationSchemaTablesListsUserTables(t *testing.T) {
	b := InformationSchemaTablesBatch()
	if b.NumRows != len(UserTables()) {
		t.Fatalf("NumRows = %d, want %d", b.NumRows, len(UserTables()))
	}
}

func TestInformationSchemaColumnsExcludesVirtual(t *testing.T) {
	b := InformationSchemaColumnsBatch()
	for i, v := range b.Columns["table_name"] {
		if v.Text == "taglist" && b.Columns["column_name"][i].Text == "language" {
			t.Fatal("virtual column 'language' should not appear in information_schema.columns")
		}
	}
}
