package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func loginServer(t *testing.T, token string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zero := "0"
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"login": map[string]any{
					"token":   token,
					"expires": time.Now().Add(time.Hour).Format(time.RFC3339),
					"error":   map[string]any{"code": zero},
				},
			},
		})
	}))
}

func TestAuthenticateRegistersSession(t *testing.T) {
	srv := loginServer(t, "tok-abc")
	defer srv.Close()

	m := NewManager(srv.URL, zerolog.Nop())
	h, err := m.Authenticate(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if h.Token() != "tok-abc" {
		t.Fatalf("token = %q", h.Token())
	}
	if !h.Valid() {
		t.Fatal("expected a freshly authenticated session to be valid")
	}
	if m.SessionCount() != 1 {
		t.Fatalf("SessionCount() = %d, want 1", m.SessionCount())
	}

	m.RemoveSession(h)
	if m.SessionCount() != 0 {
		t.Fatalf("SessionCount() after RemoveSession = %d, want 0", m.SessionCount())
	}
}

func TestAuthenticateFailsOnBadLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		one := "1"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"login": map[string]any{"error": map[string]any{"code": one}}},
		})
	}))
	defer srv.Close()

	m := NewManager(srv.URL, zerolog.Nop())
	if _, err := m.Authenticate(context.Background(), "alice", "wrong"); err == nil {
		t.Fatal("expected an error from a rejected login")
	}
}

func TestConnectionLifecycle(t *testing.T) {
	m := NewManager("http://unused.invalid", zerolog.Nop())
	rec := m.RegisterConnection("127.0.0.1:5432", 5432, "psql", "histgate", "alice")
	if rec.State() != Idle {
		t.Fatalf("initial state = %v, want Idle", rec.State())
	}

	m.StartQuery(rec.ConnectionID, "SELECT 1")
	if rec.State() != Active || rec.LastQuery() != "SELECT 1" {
		t.Fatalf("after StartQuery: state=%v lastQuery=%q", rec.State(), rec.LastQuery())
	}

	m.SetTimings(rec.ConnectionID, 10, 5, 0)
	time.Sleep(2 * time.Millisecond) // EndQuery measures whole milliseconds
	m.EndQuery(rec.ConnectionID)
	if rec.State() != Idle {
		t.Fatalf("after EndQuery: state = %v, want Idle", rec.State())
	}
	gql, df, overall := rec.Timings()
	if gql != 10 || df != 5 || overall <= 0 {
		t.Fatalf("Timings() = (%d, %d, %d)", gql, df, overall)
	}

	conns := m.GetConnections()
	if len(conns) != 1 || conns[0].ConnectionID != rec.ConnectionID {
		t.Fatalf("GetConnections() = %+v", conns)
	}

	m.CleanupConnectionsByAddress("127.0.0.1:5432")
	if len(m.GetConnections()) != 0 {
		t.Fatal("expected connection to be cleaned up by address")
	}
}
