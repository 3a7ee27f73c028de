package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"judgebox/internal/judge/catalog"
	"judgebox/internal/judge/model"
	appErr "judgebox/pkg/errors"
)

const degradedWaitDelay = 2 * time.Second

// Degraded runs submissions as plain subprocesses in a temp dir.
// It provides no isolation and is for development only.
type Degraded struct {
	cfg Config
}

func NewDegraded(cfg Config) *Degraded {
	cfg.applyDefaults()
	return &Degraded{cfg: cfg}
}

func (d *Degraded) Name() string {
	return ModeDegraded
}

func (d *Degraded) Acquire(ctx context.Context, sub *model.Submission) (Session, error) {
	lang, err := resolveLanguage(sub)
	if err != nil {
		return nil, err
	}
	dir, err := os.MkdirTemp(d.cfg.TempRoot, "judgebox-")
	if err != nil {
		return nil, appErr.AcquisitionError(err, "create temp dir")
	}
	sess := &degradedSession{
		cfg:    d.cfg,
		sub:    sub,
		lang:   lang,
		dir:    dir,
		boxDir: filepath.Join(dir, "box"),
	}
	if err := os.MkdirAll(sess.boxDir, 0o755); err != nil {
		_ = sess.Release(ctx)
		return nil, appErr.AcquisitionError(err, "create box dir")
	}
	if err := os.WriteFile(filepath.Join(sess.boxDir, lang.SourceFile), []byte(sub.SourceCode), 0o644); err != nil {
		_ = sess.Release(ctx)
		return nil, appErr.AcquisitionError(err, "write source")
	}
	return sess, nil
}

type degradedSession struct {
	cfg    Config
	sub    *model.Submission
	lang   catalog.Language
	dir    string
	boxDir string

	meta   Metadata
	stdout string
	stderr string

	mu       sync.Mutex
	released bool
}

// outcome is what one capped subprocess run observed.
type outcome struct {
	wall     time.Duration
	exitCode int
	signal   int
	timedOut bool
	rssKB    int64
	startErr error
}

func (s *degradedSession) Compile(ctx context.Context) (CompileResult, error) {
	if !s.lang.Compiled() {
		return CompileResult{OK: true, Skipped: true}, nil
	}
	argv, problem := compileArgv(s.lang, s.sub.CompilerOptions)
	if problem != "" {
		return CompileResult{Output: problem}, nil
	}
	if err := s.writeScript(compileScript, argv); err != nil {
		return CompileResult{}, err
	}
	defer os.Remove(filepath.Join(s.boxDir, compileScript))

	out := newLimitedBuffer(s.cfg.DegradedMaxOutput)
	res := s.runCapped(ctx, compileScript, nil, out, out, s.cfg.CompileLimits.WallTime)
	text := out.String()
	if res.startErr != nil || res.timedOut || res.signal != 0 || res.exitCode != 0 {
		if strings.TrimSpace(text) == "" {
			text = "Compilation failed"
		}
		return CompileResult{Output: text}, nil
	}
	return CompileResult{OK: true, Output: text}, nil
}

func (s *degradedSession) Run(ctx context.Context) (RunResult, error) {
	argv, err := runArgv(s.lang, s.sub.CommandLineArguments)
	if err != nil {
		return RunResult{}, err
	}
	if err := s.writeScript(runScript, argv); err != nil {
		return RunResult{}, err
	}
	defer os.Remove(filepath.Join(s.boxDir, runScript))

	stdout := newLimitedBuffer(s.cfg.DegradedMaxOutput)
	stderr := newLimitedBuffer(s.cfg.DegradedMaxOutput)
	errSink := stderr
	if s.sub.Flags.RedirectStderr {
		errSink = stdout
	}
	res := s.runCapped(ctx, runScript, strings.NewReader(s.sub.Stdin), stdout, errSink, s.sub.Limits.WallTime)

	s.stdout = stdout.String()
	s.stderr = stderr.String()
	s.meta = synthesize(res)
	if res.startErr != nil {
		return RunResult{Err: res.startErr.Error()}, nil
	}
	if s.meta.Status() != "" {
		return RunResult{Err: "process exited abnormally"}, nil
	}
	return RunResult{OK: true}, nil
}

func (s *degradedSession) Metadata() (Metadata, error) {
	if s.meta == nil {
		return Metadata{}, nil
	}
	return s.meta, nil
}

func (s *degradedSession) Stdout() (string, error) {
	return s.stdout, nil
}

func (s *degradedSession) Stderr() (string, error) {
	return s.stderr, nil
}

func (s *degradedSession) Release(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil
	}
	s.released = true
	if err := os.RemoveAll(s.dir); err != nil {
		return fmt.Errorf("remove %s: %w", s.dir, err)
	}
	return nil
}

func (s *degradedSession) writeScript(name string, argv []string) error {
	if err := os.WriteFile(filepath.Join(s.boxDir, name), []byte(Script(argv)), 0o755); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// runCapped runs the script with a wall clock limit. The whole process
// group is killed on timeout.
func (s *degradedSession) runCapped(ctx context.Context, script string, stdin *strings.Reader, stdout, stderr *limitedBuffer, wallLimit float64) outcome {
	timeout := s.cfg.DegradedTimeout
	if wallLimit > 0 {
		if d := time.Duration(wallLimit * float64(time.Second)); d < timeout {
			timeout = d
		}
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/bash", script)
	cmd.Dir = s.boxDir
	cmd.Env = []string{"HOME=" + s.dir, "PATH=" + sandboxPath, "LANG=C.UTF-8"}
	if stdin != nil {
		cmd.Stdin = stdin
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	configureProcessGroup(cmd)
	cmd.Cancel = func() error {
		return killProcessGroup(cmd.Process)
	}
	cmd.WaitDelay = degradedWaitDelay

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return outcome{startErr: err, exitCode: -1}
	}
	waitErr := cmd.Wait()
	res := outcome{
		wall:     time.Since(start),
		timedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}
	if cmd.ProcessState != nil {
		res.exitCode = cmd.ProcessState.ExitCode()
		res.signal = exitSignal(cmd.ProcessState)
		res.rssKB = peakRSSKB(cmd.ProcessState)
	}
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !res.timedOut && !errors.Is(waitErr, exec.ErrWaitDelay) {
		res.startErr = waitErr
	}
	return res
}

// synthesize builds an isolate-style record from what the subprocess reported.
func synthesize(res outcome) Metadata {
	if res.startErr != nil {
		return Metadata{
			"status":  MetaInternal,
			"message": res.startErr.Error(),
		}
	}
	seconds := strconv.FormatFloat(res.wall.Seconds(), 'f', 3, 64)
	rss := strconv.FormatInt(res.rssKB, 10)
	meta := Metadata{
		"time":      seconds,
		"time-wall": seconds,
		"max-rss":   rss,
		"cg-mem":    rss,
		"exitcode":  strconv.Itoa(max(res.exitCode, 0)),
	}
	switch {
	case res.timedOut:
		meta["status"] = MetaTimedOut
		meta["message"] = "Time limit exceeded"
		meta["killed"] = "1"
	case res.signal != 0:
		meta["status"] = MetaSignaled
		meta["exitsig"] = strconv.Itoa(res.signal)
		meta["message"] = fmt.Sprintf("Caught fatal signal %d", res.signal)
	case res.exitCode != 0:
		meta["status"] = MetaRuntime
		meta["message"] = fmt.Sprintf("Exited with error status %d", res.exitCode)
	}
	return meta
}

// limitedBuffer keeps the first max bytes and silently drops the rest.
type limitedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
	max int
}

func newLimitedBuffer(max int) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.max - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
