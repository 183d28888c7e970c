package httpmiddleware

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/go-faster/jx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, setup func(r *http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	setup(req)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func fromAddr(addr string) func(r *http.Request) {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func TestRateLimit_UnderLimit(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := serve(handler, fromAddr("192.168.1.1:12345"))
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(4-i), w.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		w := serve(handler, fromAddr("10.0.0.1:9999"))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := serve(handler, fromAddr("10.0.0.1:9999"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))

	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	require.NoError(t, err)
	assert.Positive(t, retry)
	assert.LessOrEqual(t, retry, 30)

	var (
		code    int
		message string
	)
	require.NoError(t, jx.DecodeBytes(w.Body.Bytes()).Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "code":
			code, err = d.Int()
		case "message":
			message, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}))
	assert.Equal(t, http.StatusTooManyRequests, code)
	assert.Equal(t, "rate limit exceeded", message)
}

func TestRateLimit_DifferentIPs(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	assert.Equal(t, http.StatusOK, serve(handler, fromAddr("10.0.0.1:1234")).Code)
	assert.Equal(t, http.StatusOK, serve(handler, fromAddr("10.0.0.2:1234")).Code)
	// Port does not matter, only the host.
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, fromAddr("10.0.0.1:5678")).Code)
}

func TestRateLimit_CustomKeyFunc(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		KeyFunc: func(r *http.Request) string {
			return r.Header.Get("Authorization")
		},
	})(okHandler())

	withAuth := func(v string) func(r *http.Request) {
		return func(r *http.Request) { r.Header.Set("Authorization", v) }
	}
	assert.Equal(t, http.StatusOK, serve(handler, withAuth("Bearer a")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, withAuth("Bearer a")).Code)
	assert.Equal(t, http.StatusOK, serve(handler, withAuth("Bearer b")).Code)
}

func TestRateLimit_Skip(t *testing.T) {
	handler := RateLimit(RateLimitConfig{
		Max:    1,
		Window: time.Minute,
		Skip: func(r *http.Request) bool {
			return r.URL.Path == "/hooks"
		},
	})(okHandler())

	toPath := func(path string) func(r *http.Request) {
		return func(r *http.Request) {
			r.RemoteAddr = "10.0.0.1:1234"
			r.URL.Path = path
		}
	}
	for i := range 3 {
		w := serve(handler, toPath("/hooks"))
		assert.Equal(t, http.StatusOK, w.Code, "request %d should pass", i+1)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
	// Skipped requests consume no tokens.
	assert.Equal(t, http.StatusOK, serve(handler, toPath("/")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, toPath("/")).Code)
}

func TestRateLimit_XForwardedFor(t *testing.T) {
	handler := RateLimit(RateLimitConfig{Max: 1, Window: time.Minute})(okHandler())

	forwarded := func(addr string) func(r *http.Request) {
		return func(r *http.Request) {
			r.RemoteAddr = addr
			r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")
		}
	}
	assert.Equal(t, http.StatusOK, serve(handler, forwarded("192.168.1.1:4444")).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(handler, forwarded("192.168.1.2:5555")).Code)
}

func TestRateLimiter_Evict(t *testing.T) {
	rl := newRateLimiter(RateLimitConfig{Max: 1, Window: time.Minute})
	now := time.Now()

	_, _, ok := rl.reserve("a", now)
	require.True(t, ok)
	_, _, ok = rl.reserve("b", now.Add(50*time.Second))
	require.True(t, ok)

	rl.evict(now.Add(70 * time.Second))

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.NotContains(t, rl.clients, "a")
	assert.Contains(t, rl.clients, "b")
}
