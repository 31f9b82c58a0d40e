package obs

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRoutePattern(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			got = RoutePattern(req)
		})
	})
	r.Get("/audit-logs/user/{userId}", func(w http.ResponseWriter, r *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/audit-logs/user/user_123", nil))
	if got != "/audit-logs/user/{userId}" {
		t.Fatalf("unexpected route pattern: %q", got)
	}

	plain := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	if p := RoutePattern(plain); p != "unmatched" {
		t.Fatalf("expected unmatched, got %q", p)
	}
}

func TestRedactQuery(t *testing.T) {
	q := map[string][]string{
		"token":      {"abc"},
		"apiSecret":  {"xyz"},
		"searchTerm": {"mail jane@example.com about 4111 1111 1111 1111"},
		"limit":      {"10"},
	}
	got := RedactQuery(q)
	if got["token"][0] != "[REDACTED]" || got["apiSecret"][0] != "[REDACTED]" {
		t.Fatalf("sensitive keys not redacted: %v", got)
	}
	if got["searchTerm"][0] != "mail [EMAIL] about [CARD]" {
		t.Fatalf("unexpected scrubbed value: %q", got["searchTerm"][0])
	}
	if got["limit"][0] != "10" {
		t.Fatalf("plain value modified: %v", got["limit"])
	}
}

func TestLogRequestWritesStructuredEntry(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	restore := SetLogger(zap.New(core))
	defer restore()

	LogRequest(RequestEntry{
		RequestID: "req-1",
		Method:    http.MethodGet,
		Path:      "/api/admin/audit-logs",
		Status:    http.StatusOK,
		UserID:    "user_1",
		Query:     map[string][]string{"password": {"hunter2"}},
	})

	entries := logs.FilterMessage("request_complete").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" || fields["user_id"] != "user_1" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	query, ok := fields["query"].(map[string][]string)
	if !ok || query["password"][0] != "[REDACTED]" {
		t.Fatalf("query not redacted: %#v", fields["query"])
	}
}
