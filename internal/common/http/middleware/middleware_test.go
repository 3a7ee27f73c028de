package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"judgebox/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestTraceContextMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(TraceContextMiddleware())
	var ctxTrace, ctxRequest interface{}
	router.GET("/trace", func(c *gin.Context) {
		ctxTrace = c.Request.Context().Value(contextkey.TraceID)
		ctxRequest = c.Request.Context().Value(contextkey.RequestID)
		c.Status(http.StatusOK)
	})

	t.Run("generate ids", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/trace", nil))
		if rec.Header().Get(traceIDHeader) == "" || rec.Header().Get(requestIDHeader) == "" {
			t.Fatalf("expected generated ids in headers")
		}
		if ctxTrace != rec.Header().Get(traceIDHeader) {
			t.Fatalf("context trace id %v does not match header", ctxTrace)
		}
	})

	t.Run("preserve ids", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/trace", nil)
		req.Header.Set(traceIDHeader, "trace-123")
		req.Header.Set(requestIDHeader, "req-123")
		router.ServeHTTP(rec, req)
		if rec.Header().Get(traceIDHeader) != "trace-123" || ctxTrace != "trace-123" {
			t.Fatalf("trace id not preserved")
		}
		if rec.Header().Get(requestIDHeader) != "req-123" || ctxRequest != "req-123" {
			t.Fatalf("request id not preserved")
		}
	})
}

func TestCORSMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware(CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"https://judge.example"},
		AllowedMethods: []string{"GET", "POST"},
	}))
	router.GET("/languages", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/languages", nil)
	req.Header.Set("Origin", "https://judge.example")
	router.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://judge.example" {
		t.Fatalf("expected allowed origin echoed, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodOptions, "/languages", nil)
	req.Header.Set("Origin", "https://evil.example")
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for disallowed preflight, got %d", rec.Code)
	}
}

func TestRateLimitPerIP(t *testing.T) {
	hits := 0
	rl := NewRateLimiter(RateLimitConfig{PerIPRPS: 0.001, PerIPBurst: 2}, func() { hits++ })

	router := gin.New()
	router.Use(RateLimitMiddleware(rl))
	router.GET("/submissions", func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(ip string) int {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/submissions", nil)
		req.RemoteAddr = ip + ":1234"
		router.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 0; i < 2; i++ {
		if code := send("10.0.0.1"); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := send("10.0.0.1"); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", code)
	}
	if code := send("10.0.0.2"); code != http.StatusOK {
		t.Fatalf("other client should not be limited, got %d", code)
	}
	if hits != 1 {
		t.Fatalf("expected one hit, got %d", hits)
	}
}

func TestRateLimitGlobal(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{GlobalRPS: 0.001, GlobalBurst: 1}, nil)
	if !rl.Allow("a") {
		t.Fatalf("first request should pass")
	}
	if rl.Allow("b") {
		t.Fatalf("global bucket should be empty")
	}
}

func TestRateLimitPrune(t *testing.T) {
	rl := NewRateLimiter(RateLimitConfig{PerIPRPS: 10, IdleTTL: time.Minute}, nil)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }
	rl.Allow("a")
	now = now.Add(30 * time.Second)
	rl.Allow("b")
	now = now.Add(45 * time.Second)
	if removed := rl.Prune(); removed != 1 {
		t.Fatalf("expected one idle client removed, got %d", removed)
	}
	if _, ok := rl.clients["b"]; !ok {
		t.Fatalf("recent client should survive")
	}
}

type httpSample struct {
	method, route string
	code          int
}

type recordingHTTPObserver struct {
	mu      sync.Mutex
	samples []httpSample
}

func (r *recordingHTTPObserver) ObserveHTTP(method, route string, code int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, httpSample{method, route, code})
}

func TestAccessLogReportsRoutePattern(t *testing.T) {
	obs := &recordingHTTPObserver{}
	router := gin.New()
	router.Use(TraceContextMiddleware(), AccessLogMiddleware(obs))
	router.GET("/submissions/:token", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/submissions/abc", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/nowhere", nil))

	if len(obs.samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(obs.samples))
	}
	if obs.samples[0] != (httpSample{"GET", "/submissions/:token", 404}) {
		t.Fatalf("unexpected sample %+v", obs.samples[0])
	}
	if obs.samples[1].route != "unmatched" {
		t.Fatalf("expected unmatched route, got %q", obs.samples[1].route)
	}
}
