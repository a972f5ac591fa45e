package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCallerIDUsesHeaderWhenPresent(t *testing.T) {
	var got string
	handler := CallerID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetCallerID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CallerIDHeader, "client-42")
	req.RemoteAddr = "10.0.0.1:1234"

	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "client-42" {
		t.Fatalf("caller id = %q, want client-42", got)
	}
}

func TestCallerIDFallsBackToRemoteAddr(t *testing.T) {
	var got string
	handler := CallerID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = GetCallerID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got != "10.0.0.1:1234" {
		t.Fatalf("caller id = %q, want remote addr fallback", got)
	}
}

func TestGetCallerIDMissingFromContext(t *testing.T) {
	if _, ok := GetCallerID(httptest.NewRequest(http.MethodGet, "/", nil).Context()); ok {
		t.Fatal("expected ok=false when caller id was never set")
	}
}
