package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestRateLimiter_BurstThenDeny(t *testing.T) {
	rl := NewRateLimiter(1, 3, zap.NewNop())

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d within burst should be allowed", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("request beyond burst should be denied")
	}
}

func TestRateLimiter_IndependentClients(t *testing.T) {
	rl := NewRateLimiter(1, 2, zap.NewNop())

	for i := 0; i < 2; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatal("first client within burst should be allowed")
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("first client beyond burst should be denied")
	}

	// The second client has its own bucket
	if !rl.Allow("10.0.0.2") {
		t.Error("second client should not share the first client's bucket")
	}

	if rl.ActiveClients() != 2 {
		t.Errorf("expected 2 active clients, got %d", rl.ActiveClients())
	}
}

func TestRateLimiter_PrunesIdleClients(t *testing.T) {
	rl := NewRateLimiter(100, 100, zap.NewNop())

	clock := time.Now()
	rl.now = func() time.Time { return clock }
	rl.lastPrune = clock

	rl.Allow("10.0.0.1")
	rl.Allow("10.0.0.2")
	if rl.ActiveClients() != 2 {
		t.Fatalf("expected 2 active clients, got %d", rl.ActiveClients())
	}

	// One client keeps talking, the other goes quiet past the idle TTL.
	clock = clock.Add(rl.idleTTL - time.Second)
	rl.Allow("10.0.0.1")

	clock = clock.Add(2 * time.Second)
	rl.Allow("10.0.0.3")

	if rl.ActiveClients() != 2 {
		t.Errorf("expected idle client pruned, got %d active", rl.ActiveClients())
	}
	if !rl.Allow("10.0.0.1") {
		t.Error("recently active client should survive the prune")
	}
}

func TestRateLimitMiddleware_TooManyRequests(t *testing.T) {
	handler := RateLimit(1, 2, zap.NewNop())(newTestHandler())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("GET", "/subscriptions", nil)
		req.RemoteAddr = "192.168.1.1:54321"
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
	}

	req := httptest.NewRequest("GET", "/subscriptions", nil)
	req.RemoteAddr = "192.168.1.1:54321"
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("expected Retry-After '1', got %q", rec.Header().Get("Retry-After"))
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected JSON content type, got %q", rec.Header().Get("Content-Type"))
	}
}

func TestRateLimitMiddleware_KeyedByForwardedIP(t *testing.T) {
	handler := RateLimit(1, 1, zap.NewNop())(newTestHandler())

	// Distinct X-Forwarded-For values must not share a bucket even
	// when the proxy's RemoteAddr is the same.
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/subscriptions", nil)
		req.RemoteAddr = "10.0.0.254:443"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i+1))
		rec := httptest.NewRecorder()

		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("client %d: expected 200, got %d", i+1, rec.Code)
		}
	}
}

func TestExtractClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{
			name:       "remote addr only",
			remoteAddr: "192.168.1.1:54321",
			want:       "192.168.1.1",
		},
		{
			name:       "x-forwarded-for single",
			remoteAddr: "10.0.0.254:443",
			xff:        "203.0.113.7",
			want:       "203.0.113.7",
		},
		{
			name:       "x-forwarded-for chain uses leftmost",
			remoteAddr: "10.0.0.254:443",
			xff:        "203.0.113.7, 10.0.0.1, 10.0.0.2",
			want:       "203.0.113.7",
		},
		{
			name:       "x-real-ip",
			remoteAddr: "10.0.0.254:443",
			xri:        "203.0.113.9",
			want:       "203.0.113.9",
		},
		{
			name:       "invalid forwarded header falls through",
			remoteAddr: "192.168.1.1:54321",
			xff:        "not-an-ip",
			want:       "192.168.1.1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}

			if got := extractClientIP(req); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(1, 100, zap.NewNop())

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("10.0.0.1") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	// Burst of 100 at 1/s: exactly the burst gets through
	if got := allowed.Load(); got != 100 {
		t.Errorf("expected exactly 100 allowed, got %d", got)
	}
}
