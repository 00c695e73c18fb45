package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sto-booking/stobot/libs/runtime"
)

// windowScripter counts per key in memory and answers the fixed-window script.
type windowScripter struct {
	counts map[string]int64
	err    error
}

func (s *windowScripter) run(keys []string) *redis.Cmd {
	if s.err != nil {
		return redis.NewCmdResult(nil, s.err)
	}
	s.counts[keys[0]]++
	return redis.NewCmdResult([]interface{}{s.counts[keys[0]], int64(42_500)}, nil)
}

func (s *windowScripter) Eval(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.run(keys)
}

func (s *windowScripter) EvalSha(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.run(keys)
}

func (s *windowScripter) EvalRO(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.run(keys)
}

func (s *windowScripter) EvalShaRO(_ context.Context, _ string, keys []string, _ ...interface{}) *redis.Cmd {
	return s.run(keys)
}

func (s *windowScripter) ScriptExists(context.Context, ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult([]bool{true}, nil)
}

func (s *windowScripter) ScriptLoad(context.Context, string) *redis.StringCmd {
	return redis.NewStringResult("sha", nil)
}

func TestRedisRateLimiter(t *testing.T) {
	rdb := &windowScripter{counts: map[string]int64{}}
	h := NewRedisRateLimiter(rdb, 2, time.Minute, "booking").Middleware(runtime.DiscardLogger(), true)(okHandler())

	send := func(chatUser string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/book", nil)
		req.Header.Set(ChatUserHeader, chatUser)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 2; i++ {
		if rec := send("42"); rec.Code != http.StatusNoContent {
			t.Fatalf("request %d: status = %d", i, rec.Code)
		}
	}
	rec := send("42")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "43" {
		t.Fatalf("Retry-After = %q, want 43", got)
	}
	if rdb.counts["booking:chat:42"] != 3 {
		t.Fatalf("counts = %v", rdb.counts)
	}
	if rec := send("7"); rec.Code != http.StatusNoContent {
		t.Fatalf("other chat limited: %d", rec.Code)
	}
}

func TestRedisRateLimiter_RedisDown(t *testing.T) {
	rdb := &windowScripter{err: errors.New("connection refused")}
	limiter := NewRedisRateLimiter(rdb, 2, time.Minute, "")

	rec := httptest.NewRecorder()
	limiter.Middleware(runtime.DiscardLogger(), true)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/services", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("fail open: status = %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	limiter.Middleware(runtime.DiscardLogger(), false)(okHandler()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/services", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("fail closed: status = %d", rec.Code)
	}
}
