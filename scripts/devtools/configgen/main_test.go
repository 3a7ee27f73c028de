package main

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestGenerateMergesOverridesAndShared(t *testing.T) {
	dir := t.TempDir()
	base := "app:\n  env: production\nworker:\n  poolSize: 4\n  queueSize: 64\nstore:\n  driver: memory\n"
	if err := os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(base), 0o644); err != nil {
		t.Fatalf("write base: %v", err)
	}
	profile := `outputDir: out
shared:
  env: staging
  redisAddr: "redis:6379"
targets:
  judge-redis:
    base: base.yaml
    overrides:
      worker:
        poolSize: 8
      store:
        driver: redis
`
	profilePath := filepath.Join(dir, "profile.yaml")
	if err := os.WriteFile(profilePath, []byte(profile), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}

	written, err := generate(profilePath, "")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(written) != 1 || written[0] != filepath.Join(dir, "out", "judge-redis.yaml") {
		t.Fatalf("unexpected outputs %v", written)
	}

	data, err := os.ReadFile(written[0])
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var got struct {
		App    struct{ Env string }
		Worker struct {
			PoolSize  int `yaml:"poolSize"`
			QueueSize int `yaml:"queueSize"`
		}
		Store struct {
			Driver string
			Redis  struct{ Addr string }
		}
	}
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("parse output: %v", err)
	}
	if got.App.Env != "staging" || got.Worker.PoolSize != 8 || got.Worker.QueueSize != 64 {
		t.Fatalf("unexpected merge result %+v", got)
	}
	if got.Store.Driver != "redis" || got.Store.Redis.Addr != "redis:6379" {
		t.Fatalf("unexpected store %+v", got.Store)
	}
}

func TestMergeMapRejectsNonMaps(t *testing.T) {
	if _, err := mergeMap([]interface{}{1}, map[string]interface{}{}); err == nil {
		t.Fatalf("expected error for list base")
	}
}

func TestGenerateRequiresTargets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	if err := os.WriteFile(path, []byte("outputDir: out\n"), 0o644); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	if _, err := generate(path, ""); err == nil {
		t.Fatalf("expected error")
	}
}
