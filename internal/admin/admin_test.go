package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestHealthHandler(t *testing.T) {
	h := New(Dependencies{Logger: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if body["status"] != "healthy" {
		t.Fatalf("expected status healthy, got %q", body["status"])
	}
}

func TestReadyHandlerDefaultsToReady(t *testing.T) {
	h := New(Dependencies{Logger: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when no Ready func is set, got %d", rec.Code)
	}
}

func TestReadyHandlerNotReady(t *testing.T) {
	h := New(Dependencies{Logger: zerolog.Nop(), Ready: func() bool { return false }})

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when Ready returns false, got %d", rec.Code)
	}
}

func TestPgStatActivityHandlerWithoutSessions(t *testing.T) {
	h := New(Dependencies{Logger: zerolog.Nop()})

	req := httptest.NewRequest(http.MethodGet, "/debug/pg_stat_activity", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() == "" {
		t.Fatal("expected a JSON body")
	}
}
