package pgerr

import (
	"errors"
	"testing"
)

func TestAsErrorPreservesSQLSTATE(t *testing.T) {
	orig := New(UndefinedTable, "relation %q does not exist", "foo")
	got := AsError(orig)
	if got != orig {
		t.Fatalf("AsError should return the same *Error instance unchanged")
	}
	if got.Code != UndefinedTable {
		t.Errorf("Code = %q, want %q", got.Code, UndefinedTable)
	}
}

func TestAsErrorDefaultsGenericError(t *testing.T) {
	got := AsError(errors.New("boom"))
	if got.Code != InternalError {
		t.Errorf("Code = %q, want %q", got.Code, InternalError)
	}
}
