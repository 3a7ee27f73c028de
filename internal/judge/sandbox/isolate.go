package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"judgebox/internal/judge/catalog"
	"judgebox/internal/judge/model"
	appErr "judgebox/pkg/errors"
	"judgebox/pkg/utils/logger"

	"go.uber.org/zap"
)

const (
	stdinFile         = "stdin.txt"
	stdoutFile        = "stdout.txt"
	stderrFile        = "stderr.txt"
	metadataFile      = "metadata.txt"
	compileMetaFile   = "compile_metadata.txt"
	compileOutputFile = "compile_output.txt"
	compileScript     = "compile.sh"
	runScript         = "run.sh"
)

// Isolate is the production strategy backed by the isolate CLI.
type Isolate struct {
	cfg      Config
	runner   CommandRunner
	pool     *BoxPool
	lookPath func(string) (string, error)
}

// NewIsolate creates the strategy with a box pool sized from cfg.
func NewIsolate(cfg Config, runner CommandRunner) *Isolate {
	cfg.applyDefaults()
	return &Isolate{
		cfg:      cfg,
		runner:   runner,
		pool:     NewBoxPool(cfg.BoxFirst, cfg.BoxCount),
		lookPath: exec.LookPath,
	}
}

func (s *Isolate) Name() string {
	return ModeIsolate
}

// Pool exposes the box pool for metrics.
func (s *Isolate) Pool() *BoxPool {
	return s.pool
}

// Acquire checks out a box, initializes it and stages source and stdin.
func (s *Isolate) Acquire(ctx context.Context, sub *model.Submission) (Session, error) {
	lang, err := resolveLanguage(sub)
	if err != nil {
		return nil, err
	}
	if _, err := s.lookPath(s.cfg.IsolatePath); err != nil {
		return nil, appErr.AcquisitionError(err, "isolate binary %q is unavailable", s.cfg.IsolatePath)
	}

	boxID, err := s.pool.Checkout(ctx)
	if err != nil {
		return nil, err
	}
	sess := &isolateSession{
		sb:      s,
		sub:     sub,
		lang:    lang,
		boxID:   boxID,
		cgroups: sub.Flags.UsesCgroups(),
	}
	if err := sess.prepare(ctx); err != nil {
		if relErr := sess.Release(ctx); relErr != nil {
			logger.Warn(ctx, "release after failed acquire", zap.Int("box_id", boxID), zap.Error(relErr))
		}
		return nil, err
	}
	return sess, nil
}

type isolateSession struct {
	sb      *Isolate
	sub     *model.Submission
	lang    catalog.Language
	boxID   int
	cgroups bool

	initialized bool
	workdir     string
	boxDir      string
	tmpDir      string

	mu       sync.Mutex
	released bool
}

func (s *isolateSession) path(name string) string {
	return filepath.Join(s.workdir, name)
}

func (s *isolateSession) prepare(ctx context.Context) error {
	var out, errOut bytes.Buffer
	err := s.sb.runner.Run(ctx, Command{
		Name:   s.sb.cfg.IsolatePath,
		Args:   initArgs(s.boxID, s.cgroups),
		Stdout: &out,
		Stderr: &errOut,
	})
	if err != nil {
		return appErr.AcquisitionError(err, "init box %d: %s", s.boxID, strings.TrimSpace(errOut.String()))
	}
	s.initialized = true
	s.workdir = strings.TrimSpace(out.String())
	if s.workdir == "" {
		return appErr.AcquisitionError(nil, "init box %d returned no workdir", s.boxID)
	}
	s.boxDir = filepath.Join(s.workdir, "box")
	s.tmpDir = filepath.Join(s.workdir, "tmp")

	for _, dir := range []string{s.boxDir, s.tmpDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil && !os.IsPermission(err) {
			return appErr.AcquisitionError(err, "create %s", dir)
		}
	}
	placeholders := []string{
		s.path(stdinFile),
		s.path(stdoutFile),
		s.path(stderrFile),
		s.path(metadataFile),
	}
	if err := s.stage(ctx, placeholders...); err != nil {
		return appErr.AcquisitionError(err, "stage files for box %d", s.boxID)
	}
	if s.sb.cfg.Sudo {
		if err := s.privileged(ctx, "chown", "-R", owner(), s.boxDir); err != nil {
			return appErr.AcquisitionError(err, "chown box %d", s.boxID)
		}
	}
	if err := os.WriteFile(filepath.Join(s.boxDir, s.lang.SourceFile), []byte(s.sub.SourceCode), 0o644); err != nil {
		return appErr.AcquisitionError(err, "write source")
	}
	if err := os.WriteFile(s.path(stdinFile), []byte(s.sub.Stdin), 0o644); err != nil {
		return appErr.AcquisitionError(err, "write stdin")
	}
	return nil
}

// stage creates empty files owned by the current user.
func (s *isolateSession) stage(ctx context.Context, paths ...string) error {
	if s.sb.cfg.Sudo {
		if err := s.privileged(ctx, "touch", paths...); err != nil {
			return err
		}
		return s.privileged(ctx, "chown", append([]string{owner()}, paths...)...)
	}
	for _, p := range paths {
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			return err
		}
	}
	return nil
}

func (s *isolateSession) privileged(ctx context.Context, name string, args ...string) error {
	var errOut bytes.Buffer
	cmd := Command{Name: name, Args: args, Stderr: &errOut}
	if s.sb.cfg.Sudo {
		cmd = Command{Name: "sudo", Args: append([]string{name}, args...), Stderr: &errOut}
	}
	if err := s.sb.runner.Run(ctx, cmd); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(errOut.String()))
	}
	return nil
}

func (s *isolateSession) Compile(ctx context.Context) (CompileResult, error) {
	if !s.lang.Compiled() {
		return CompileResult{OK: true, Skipped: true}, nil
	}
	argv, problem := compileArgv(s.lang, s.sub.CompilerOptions)
	if problem != "" {
		return CompileResult{Output: problem}, nil
	}
	scriptPath := filepath.Join(s.boxDir, compileScript)
	if err := os.WriteFile(scriptPath, []byte(Script(argv)), 0o755); err != nil {
		return CompileResult{}, fmt.Errorf("write compile script: %w", err)
	}
	defer os.Remove(scriptPath)

	outPath := s.path(compileOutputFile)
	metaPath := s.path(compileMetaFile)
	if err := s.stage(ctx, outPath, metaPath); err != nil {
		return CompileResult{}, fmt.Errorf("stage compile files: %w", err)
	}
	defer os.Remove(outPath)
	defer os.Remove(metaPath)

	out, err := os.OpenFile(outPath, os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return CompileResult{}, fmt.Errorf("open compile output: %w", err)
	}
	runErr := s.sb.runner.Run(ctx, Command{
		Name: s.sb.cfg.IsolatePath,
		Args: runArgs(step{
			BoxID:          s.boxID,
			Cgroups:        s.cgroups,
			MetaPath:       metaPath,
			Limits:         s.sb.cfg.CompileLimits,
			Flags:          s.sub.Flags,
			RedirectStderr: true,
			StdinPath:      "/dev/null",
			Script:         compileScript,
		}),
		Stdout: out,
		Stderr: out,
	})
	_ = out.Close()

	output, err := os.ReadFile(outPath)
	if err != nil {
		return CompileResult{}, fmt.Errorf("read compile output: %w", err)
	}
	meta, err := ReadMetadataFile(metaPath)
	if err != nil {
		return CompileResult{}, err
	}
	if runErr != nil || meta.Status() != "" {
		text := string(output)
		if strings.TrimSpace(text) == "" {
			text = "Compilation failed"
		}
		return CompileResult{Output: text}, nil
	}
	return CompileResult{OK: true, Output: string(output)}, nil
}

func (s *isolateSession) Run(ctx context.Context) (RunResult, error) {
	argv, err := runArgv(s.lang, s.sub.CommandLineArguments)
	if err != nil {
		return RunResult{}, err
	}
	scriptPath := filepath.Join(s.boxDir, runScript)
	if err := os.WriteFile(scriptPath, []byte(Script(argv)), 0o755); err != nil {
		return RunResult{}, fmt.Errorf("write run script: %w", err)
	}
	defer os.Remove(scriptPath)

	stdin, err := os.Open(s.path(stdinFile))
	if err != nil {
		return RunResult{}, fmt.Errorf("open stdin: %w", err)
	}
	defer stdin.Close()
	stdout, err := os.OpenFile(s.path(stdoutFile), os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return RunResult{}, fmt.Errorf("open stdout: %w", err)
	}
	defer stdout.Close()
	stderr, err := os.OpenFile(s.path(stderrFile), os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return RunResult{}, fmt.Errorf("open stderr: %w", err)
	}
	defer stderr.Close()

	runErr := s.sb.runner.Run(ctx, Command{
		Name: s.sb.cfg.IsolatePath,
		Args: runArgs(step{
			BoxID:          s.boxID,
			Cgroups:        s.cgroups,
			MetaPath:       s.path(metadataFile),
			Limits:         s.sub.Limits,
			Flags:          s.sub.Flags,
			RedirectStderr: s.sub.Flags.RedirectStderr,
			EnableNetwork:  s.sub.Flags.EnableNetwork,
			Script:         runScript,
		}),
		Stdin:  stdin,
		Stdout: stdout,
		Stderr: stderr,
	})
	if runErr != nil {
		return RunResult{Err: runErr.Error()}, nil
	}
	return RunResult{OK: true}, nil
}

func (s *isolateSession) Metadata() (Metadata, error) {
	return ReadMetadataFile(s.path(metadataFile))
}

func (s *isolateSession) Stdout() (string, error) {
	return readOptional(s.path(stdoutFile))
}

func (s *isolateSession) Stderr() (string, error) {
	return readOptional(s.path(stderrFile))
}

// Release restores ownership, wipes the box, runs isolate --cleanup and returns the slot.
func (s *isolateSession) Release(ctx context.Context) error {
	s.mu.Lock()
	if s.released {
		s.mu.Unlock()
		return nil
	}
	s.released = true
	s.mu.Unlock()

	// Teardown must finish even when the caller's context is already done.
	ctx = context.WithoutCancel(ctx)
	var errs []error
	if s.workdir != "" {
		if s.sb.cfg.Sudo {
			_ = s.privileged(ctx, "chown", "-R", owner(), s.boxDir)
		}
		for _, dir := range []string{s.boxDir, s.tmpDir} {
			if err := s.clearDir(ctx, dir); err != nil {
				errs = append(errs, err)
			}
		}
		for _, name := range []string{stdinFile, stdoutFile, stderrFile, metadataFile, compileOutputFile, compileMetaFile} {
			if err := s.remove(ctx, s.path(name)); err != nil {
				errs = append(errs, err)
			}
		}
	}
	if s.initialized {
		var errOut bytes.Buffer
		err := s.sb.runner.Run(ctx, Command{
			Name:   s.sb.cfg.IsolatePath,
			Args:   cleanupArgs(s.boxID, s.cgroups),
			Stderr: &errOut,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("cleanup box %d: %w: %s", s.boxID, err, strings.TrimSpace(errOut.String())))
		}
	}
	if err := s.sb.pool.Return(s.boxID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *isolateSession) clearDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("list %s: %w", dir, err)
	}
	for _, entry := range entries {
		if err := s.remove(ctx, filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (s *isolateSession) remove(ctx context.Context, path string) error {
	if s.sb.cfg.Sudo {
		return s.privileged(ctx, "rm", "-rf", path)
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

func owner() string {
	return fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid())
}

func readOptional(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(data), nil
}
