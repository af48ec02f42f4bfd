package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestRecovery_ReturnsInternalError(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INTERNAL_ERROR") {
		t.Errorf("unexpected body: %s", rec.Body.String())
	}
}

func TestRequestLogger_AccessLog(t *testing.T) {
	var buf bytes.Buffer
	log := zerolog.New(&buf)

	var ctxLogged bool
	h := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zerolog.Ctx(r.Context()).Info().Msg("inside")
		ctxLogged = true
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodPost, "/campaigns", nil)
	req.Header.Set(RequestIDHeader, "req-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !ctxLogged {
		t.Fatal("handler not called")
	}
	if got := rec.Header().Get(RequestIDHeader); got != "req-1" {
		t.Errorf("expected request id to be echoed, got %q", got)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %s", len(lines), buf.String())
	}
	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["request_id"] != "req-1" || entry["path"] != "/campaigns" || entry["status"] != float64(http.StatusTeapot) {
		t.Errorf("unexpected access log: %v", entry)
	}
	if !strings.Contains(lines[0], `"request_id":"req-1"`) {
		t.Errorf("expected request logger in context: %s", lines[0])
	}
}

func TestRequestLogger_GeneratesID(t *testing.T) {
	h := RequestLogger(zerolog.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if len(rec.Header().Get(RequestIDHeader)) != 36 {
		t.Errorf("expected a uuid request id, got %q", rec.Header().Get(RequestIDHeader))
	}
}
