package httpx

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sto-booking/stobot/libs/auth"
	"github.com/sto-booking/stobot/libs/runtime"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestChainOrder(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler(), mark("a"), mark("b"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if strings.Join(order, ",") != "a,b" {
		t.Fatalf("order = %v, want a,b", order)
	}
}

func TestWithRecover(t *testing.T) {
	h := WithRecover(runtime.DiscardLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestWithRequestID(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "upd-77")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if seen != "upd-77" || rec.Header().Get(RequestIDHeader) != "upd-77" {
		t.Fatalf("caller id not reused: ctx=%q header=%q", seen, rec.Header().Get(RequestIDHeader))
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, strings.Repeat("x", maxRequestIDLen+1))
	h.ServeHTTP(httptest.NewRecorder(), req)
	if len(seen) != 36 {
		t.Fatalf("oversized id should be replaced by a uuid, got %q", seen)
	}
}

func TestWithBearerHS256(t *testing.T) {
	const secret = "transport-secret"
	h := WithBearerHS256(secret, "/api/")(okHandler())

	token, err := auth.SignHS256(auth.Claims{Sub: "chat-bot", Exp: time.Now().Add(time.Hour).Unix()}, secret)
	if err != nil {
		t.Fatalf("SignHS256: %v", err)
	}

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{name: "health is open", path: "/healthz", want: http.StatusNoContent},
		{name: "missing token", path: "/api/v1/book", want: http.StatusUnauthorized},
		{name: "garbage token", path: "/api/v1/book", header: "Bearer nope", want: http.StatusUnauthorized},
		{name: "valid token", path: "/api/v1/book", header: "Bearer " + token, want: http.StatusNoContent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}

	// No secret: auth disabled.
	rec := httptest.NewRecorder()
	WithBearerHS256("", "/api/")(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/book", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d with auth disabled", rec.Code)
	}
}

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	if !rl.Allow("chat:1") || !rl.Allow("chat:1") {
		t.Fatal("burst of 2 should be allowed")
	}
	if rl.Allow("chat:1") {
		t.Fatal("third request inside the window should be rejected")
	}
	if !rl.Allow("chat:2") {
		t.Fatal("other keys have their own bucket")
	}

	now = now.Add(30 * time.Second)
	if !rl.Allow("chat:1") {
		t.Fatal("a token refills every 30s")
	}
}

func TestClientKey(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.5:5555"
	if got := ClientKey(req); got != "10.0.0.5" {
		t.Fatalf("remote addr key = %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := ClientKey(req); got != "203.0.113.9" {
		t.Fatalf("forwarded key = %q", got)
	}

	req.Header.Set(ChatUserHeader, "42")
	if got := ClientKey(req); got != "chat:42" {
		t.Fatalf("chat key = %q", got)
	}
}
