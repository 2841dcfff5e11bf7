package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIsSuccess(t *testing.T) {
	zero := "0"
	one := "1"
	cases := []struct {
		name string
		err  *graphQLError
		want bool
	}{
		{"nil is success", nil, true},
		{"code zero is success", &graphQLError{Code: &zero}, true},
		{"code one is failure", &graphQLError{Code: &one}, false},
		{"missing code defaults to failure", &graphQLError{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := isSuccess(tc.err); got != tc.want {
				t.Errorf("isSuccess() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestLoginSuccessDespiteZeroCodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !strings.Contains(req.Query, "login") {
			t.Errorf("expected login query, got %q", req.Query)
		}
		zero := "0"
		resp := loginResponse{Data: &loginData{Login: sessionPayload{
			Token:   "tok-123",
			Expires: "2026-08-01T00:00:00Z",
			Error:   &graphQLError{Code: &zero, Description: strPtr("ok")},
		}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	token, expires, err := c.Login(context.Background(), "alice", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if token != "tok-123" {
		t.Errorf("token = %q, want tok-123", token)
	}
	if expires.IsZero() {
		t.Error("expected non-zero expiry")
	}
}

func TestLoginFailsOnNonZeroCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		one := "1"
		resp := loginResponse{Data: &loginData{Login: sessionPayload{
			Error: &graphQLError{Code: &one, Description: strPtr("bad credentials")},
		}}}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	if _, _, err := c.Login(context.Background(), "alice", "wrong"); err == nil {
		t.Fatal("expected error for non-zero error code")
	}
}

func TestTagValuesSetsBearerHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(tagValuesResponse{Data: &tagValuesData{TagValues: []TagValueResult{
			{Name: "Tag1", Value: &Value{Value: 1.0, Timestamp: "2026-07-31T00:00:00Z"}},
		}}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.SetToken("abc")
	results, err := c.TagValues(context.Background(), []string{"Tag1"}, false)
	if err != nil {
		t.Fatalf("TagValues() error = %v", err)
	}
	if gotAuth != "Bearer abc" {
		t.Errorf("Authorization header = %q, want %q", gotAuth, "Bearer abc")
	}
	if len(results) != 1 || results[0].Name != "Tag1" {
		t.Fatalf("results = %+v", results)
	}
}

func strPtr(s string) *string { return &s }
