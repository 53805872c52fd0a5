package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observedLogger() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return zap.New(core), logs
}

func serveWithStatus(status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
}

func TestLoggerWithLevel(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel zapcore.Level
	}{
		{name: "success logs at info", status: http.StatusOK, wantLevel: zapcore.InfoLevel},
		{name: "client error logs at warn", status: http.StatusNotFound, wantLevel: zapcore.WarnLevel},
		{name: "server error logs at error", status: http.StatusInternalServerError, wantLevel: zapcore.ErrorLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, logs := observedLogger()
			handler := LoggerWithLevel(logger)(serveWithStatus(tt.status))

			req := httptest.NewRequest("GET", "/subscriptions", nil)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			entries := logs.All()
			if len(entries) != 1 {
				t.Fatalf("expected 1 log entry, got %d", len(entries))
			}
			if entries[0].Level != tt.wantLevel {
				t.Errorf("expected level %s, got %s", tt.wantLevel, entries[0].Level)
			}

			fields := entries[0].ContextMap()
			if fields["status"] != int64(tt.status) {
				t.Errorf("expected status field %d, got %v", tt.status, fields["status"])
			}
			if fields["path"] != "/subscriptions" {
				t.Errorf("expected path field /subscriptions, got %v", fields["path"])
			}
		})
	}
}

func TestResponseWriterSingleHeader(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := wrapResponseWriter(rec)

	wrapped.WriteHeader(http.StatusTeapot)
	wrapped.WriteHeader(http.StatusOK)

	if wrapped.Status() != http.StatusTeapot {
		t.Errorf("expected first status to stick, got %d", wrapped.Status())
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("expected recorder code %d, got %d", http.StatusTeapot, rec.Code)
	}
}

func TestRecovery(t *testing.T) {
	logger, logs := observedLogger()
	handler := Recovery(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %q", ct)
	}

	entries := logs.FilterMessage("panic recovered").All()
	if len(entries) != 1 {
		t.Fatalf("expected the panic to be logged once, got %d entries", len(entries))
	}
}

func TestRecoveryPassesThrough(t *testing.T) {
	logger, logs := observedLogger()
	handler := Recovery(logger)(serveWithStatus(http.StatusOK))

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if logs.Len() != 0 {
		t.Errorf("expected no log entries, got %d", logs.Len())
	}
}
