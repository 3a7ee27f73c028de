// Package sandbox runs submissions inside isolated boxes.
//
// Two strategies implement Sandbox: Isolate drives the isolate CLI and is the
// only production strategy; Degraded runs a plain subprocess in a temp dir and
// must be enabled explicitly outside production.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"judgebox/internal/judge/catalog"
	"judgebox/internal/judge/model"
	appErr "judgebox/pkg/errors"
)

const (
	ModeIsolate  = "isolate"
	ModeDegraded = "degraded"

	EnvProduction = "production"

	defaultIsolatePath     = "isolate"
	defaultBoxCount        = 16
	defaultDegradedTimeout = 30 * time.Second
	defaultDegradedOutput  = 10 << 20
)

// Sandbox allocates sessions for submissions.
type Sandbox interface {
	Acquire(ctx context.Context, sub *model.Submission) (Session, error)
	Name() string
}

// Session is one submission's box across compile, run and teardown.
type Session interface {
	// Compile is a no-op success for interpreted languages.
	Compile(ctx context.Context) (CompileResult, error)
	// Run returns an error only when the step could not be attempted.
	Run(ctx context.Context) (RunResult, error)
	// Metadata of the run step. Empty when no record was written.
	Metadata() (Metadata, error)
	Stdout() (string, error)
	Stderr() (string, error)
	// Release is idempotent and safe on partially acquired sessions.
	Release(ctx context.Context) error
}

// CompileResult is the outcome of the compile step.
type CompileResult struct {
	OK      bool
	Skipped bool
	Output  string
}

// RunResult is the outcome of the run step. A failed run still leaves metadata behind.
type RunResult struct {
	OK  bool
	Err string
}

// Config selects and tunes the strategy.
type Config struct {
	Mode          string
	AllowDegraded bool
	Environment   string

	IsolatePath string
	BoxFirst    int
	BoxCount    int
	Sudo        bool

	CompileLimits model.Limits

	DegradedTimeout   time.Duration
	DegradedMaxOutput int
	TempRoot          string
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeIsolate
	}
	if c.IsolatePath == "" {
		c.IsolatePath = defaultIsolatePath
	}
	if c.BoxCount <= 0 {
		c.BoxCount = defaultBoxCount
	}
	c.CompileLimits = c.CompileLimits.FillZero(model.DefaultCompileLimits())
	if c.DegradedTimeout <= 0 {
		c.DegradedTimeout = defaultDegradedTimeout
	}
	if c.DegradedMaxOutput <= 0 {
		c.DegradedMaxOutput = defaultDegradedOutput
	}
}

// New builds the strategy named by cfg.Mode. Degraded mode is refused unless it
// is explicitly allowed and the environment is not production.
func New(cfg Config, runner CommandRunner) (Sandbox, error) {
	cfg.applyDefaults()
	switch cfg.Mode {
	case ModeIsolate:
		if runner == nil {
			runner = ExecRunner{}
		}
		return NewIsolate(cfg, runner), nil
	case ModeDegraded:
		if !cfg.AllowDegraded {
			return nil, appErr.New(appErr.SandboxUnavailable).WithMessage("degraded sandbox requires allowDegraded")
		}
		if cfg.Environment == EnvProduction {
			return nil, appErr.New(appErr.SandboxUnavailable).WithMessage("degraded sandbox is not permitted in production")
		}
		return NewDegraded(cfg), nil
	default:
		return nil, appErr.Newf(appErr.SandboxUnavailable, "unknown sandbox mode %q", cfg.Mode)
	}
}

func resolveLanguage(sub *model.Submission) (catalog.Language, error) {
	lang, ok := sub.Language()
	if !ok {
		return catalog.Language{}, appErr.AcquisitionError(nil, "language %d is not available", sub.LanguageID)
	}
	return lang, nil
}

// compileArgv builds the compile command, or reports unusable options as compile output.
func compileArgv(lang catalog.Language, options string) ([]string, string) {
	words, err := UserWords(options)
	if err != nil {
		return nil, fmt.Sprintf("invalid compiler options: %v", err)
	}
	return Expand(lang.Compile, words), ""
}

func runArgv(lang catalog.Language, arguments string) ([]string, error) {
	words, err := UserWords(arguments)
	if err != nil {
		return nil, fmt.Errorf("invalid command line arguments: %w", err)
	}
	return Expand(lang.Run, words), nil
}
