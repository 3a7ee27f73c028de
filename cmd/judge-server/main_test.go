package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"judgebox/internal/judge/catalog"
	"judgebox/internal/judge/metrics"
	"judgebox/internal/judge/model"
	"judgebox/internal/judge/sandbox"
	appErr "judgebox/pkg/errors"

	"github.com/gin-gonic/gin"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppConfigDefaults(t *testing.T) {
	cfg, err := loadAppConfig(writeConfig(t, "logger:\n  level: info\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.App.Env != sandbox.EnvProduction {
		t.Fatalf("expected production by default, got %q", cfg.App.Env)
	}
	if cfg.Sandbox.Mode != sandbox.ModeIsolate || cfg.Store.Driver != storeMemory {
		t.Fatalf("unexpected defaults %+v %+v", cfg.Sandbox, cfg.Store)
	}
	if cfg.Limits.Defaults != model.DefaultRunLimits() || cfg.Limits.Ceiling != model.DefaultCompileLimits() {
		t.Fatalf("unexpected limits %+v", cfg.Limits)
	}
	if cfg.Sandbox.BoxCount < cfg.Worker.PoolSize {
		t.Fatalf("box count %d below pool size %d", cfg.Sandbox.BoxCount, cfg.Worker.PoolSize)
	}
	if cfg.Metrics.Enabled == nil || !*cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Fatalf("metrics should default on")
	}
	if cfg.Server.ShutdownTimeout != defaultShutdownTimeout {
		t.Fatalf("unexpected shutdown timeout %v", cfg.Server.ShutdownTimeout)
	}
}

func TestLoadAppConfigRejects(t *testing.T) {
	cases := map[string]string{
		"degraded in production": "sandbox:\n  mode: degraded\n  allowDegraded: true\n",
		"redis without addr":     "store:\n  driver: redis\n",
		"unknown driver":         "store:\n  driver: etcd\n",
		"default above ceiling":  "limits:\n  defaults:\n    cpuTime: 30\n",
		"too few boxes":          "worker:\n  poolSize: 8\nsandbox:\n  boxCount: 2\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadAppConfig(writeConfig(t, body)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestLoadAppConfigDevelopmentDegraded(t *testing.T) {
	cfg, err := loadAppConfig(writeConfig(t, "app:\n  env: Development\nsandbox:\n  mode: degraded\n  allowDegraded: true\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sb, err := sandbox.New(cfg.Sandbox.toSandboxConfig(cfg.App.Env, cfg.Limits.Ceiling), nil)
	if err != nil {
		t.Fatalf("sandbox: %v", err)
	}
	if sb.Name() != sandbox.ModeDegraded {
		t.Fatalf("expected degraded sandbox, got %q", sb.Name())
	}
}

func TestShippedConfigsLoad(t *testing.T) {
	for _, name := range []string{"judge_server.yaml", "judge_server.dev.yaml"} {
		if _, err := loadAppConfig(filepath.Join("..", "..", "configs", name)); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
}

type stubSubmissions struct{}

func (stubSubmissions) Create(context.Context, model.CreateRequest) (*model.Submission, error) {
	return &model.Submission{Token: "t", Status: catalog.InQueue}, nil
}

func (stubSubmissions) ByToken(context.Context, string) (*model.Submission, error) {
	return nil, appErr.New(appErr.SubmissionNotFound)
}

func TestBuildHandlerRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg, err := loadAppConfig(writeConfig(t, "server:\n  gzip: true\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	h := buildHandler(cfg, stubSubmissions{}, metrics.New(), nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected health %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Trace-Id") == "" {
		t.Fatalf("trace middleware not installed")
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/submissions/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "judgebox_http_requests_total") {
		t.Fatalf("metrics endpoint missing request counter: %d", rec.Code)
	}
}

func TestBuildHandlerMetricsDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg, err := loadAppConfig(writeConfig(t, "metrics:\n  enabled: false\n"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	h := buildHandler(cfg, stubSubmissions{}, metrics.New(), nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 with metrics disabled, got %d", rec.Code)
	}
}
