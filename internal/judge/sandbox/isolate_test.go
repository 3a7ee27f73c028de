package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"judgebox/internal/judge/catalog"
	"judgebox/internal/judge/model"
	appErr "judgebox/pkg/errors"
)

type fakeStep struct {
	meta   string
	stdout string
	err    error
}

type fakeIsolate struct {
	mu       sync.Mutex
	workdir  string
	initErr  error
	steps    map[string]fakeStep
	calls    [][]string
	scripts  map[string]string
	stdinSaw string
}

func newFakeIsolate(t *testing.T) *fakeIsolate {
	return &fakeIsolate{
		workdir: t.TempDir(),
		steps:   map[string]fakeStep{},
		scripts: map[string]string{},
	}
}

func (f *fakeIsolate) Run(ctx context.Context, cmd Command) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string{cmd.Name}, cmd.Args...))
	switch {
	case slices.Contains(cmd.Args, "--init"):
		if f.initErr != nil {
			return f.initErr
		}
		fmt.Fprintln(cmd.Stdout, f.workdir)
		return nil
	case slices.Contains(cmd.Args, "--run"):
		script := cmd.Args[len(cmd.Args)-1]
		body, err := os.ReadFile(filepath.Join(f.workdir, "box", script))
		if err != nil {
			return err
		}
		f.scripts[script] = string(body)
		if cmd.Stdin != nil {
			data, err := io.ReadAll(cmd.Stdin)
			if err != nil {
				return err
			}
			f.stdinSaw = string(data)
		}
		st := f.steps[script]
		metaPath := cmd.Args[slices.Index(cmd.Args, "-M")+1]
		if err := os.WriteFile(metaPath, []byte(st.meta), 0o644); err != nil {
			return err
		}
		if st.stdout != "" {
			fmt.Fprint(cmd.Stdout, st.stdout)
		}
		return st.err
	}
	return nil
}

func (f *fakeIsolate) count(flag string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, call := range f.calls {
		if slices.Contains(call, flag) {
			n++
		}
	}
	return n
}

func newTestIsolate(runner CommandRunner) *Isolate {
	iso := NewIsolate(Config{BoxFirst: 1, BoxCount: 2}, runner)
	iso.lookPath = func(string) (string, error) { return "/usr/local/bin/isolate", nil }
	return iso
}

func testSubmission(lang int, source string) *model.Submission {
	return &model.Submission{
		Token:      "tok",
		LanguageID: lang,
		SourceCode: source,
		Limits:     model.DefaultRunLimits(),
		Flags:      model.Flags{PerProcessTime: true, PerProcessMemory: true},
		Status:     catalog.Processing,
	}
}

func TestIsolateInterpretedLifecycle(t *testing.T) {
	fake := newFakeIsolate(t)
	fake.steps[runScript] = fakeStep{meta: "time:0.010\ntime-wall:0.020\nmax-rss:900\nexitcode:0\n", stdout: "hi\n"}
	iso := newTestIsolate(fake)

	sub := testSubmission(4, "print('hi')")
	sub.Stdin = "input line"
	sub.CommandLineArguments = `"a b" ; c`
	sess, err := iso.Acquire(context.Background(), sub)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	source, err := os.ReadFile(filepath.Join(fake.workdir, "box", "script.py"))
	if err != nil || string(source) != "print('hi')" {
		t.Fatalf("source not staged: %q %v", source, err)
	}

	comp, err := sess.Compile(context.Background())
	if err != nil || !comp.OK || !comp.Skipped {
		t.Fatalf("expected skipped compile, got %+v %v", comp, err)
	}
	run, err := sess.Run(context.Background())
	if err != nil || !run.OK {
		t.Fatalf("expected run ok, got %+v %v", run, err)
	}
	if got := fake.scripts[runScript]; got != "#!/bin/bash\nexec python3 script.py 'a b' c\n" {
		t.Fatalf("unexpected run script %q", got)
	}
	if fake.stdinSaw != "input line" {
		t.Fatalf("stdin not wired, got %q", fake.stdinSaw)
	}
	if _, err := os.Stat(filepath.Join(fake.workdir, "box", runScript)); !os.IsNotExist(err) {
		t.Fatalf("run script should be removed after the run")
	}

	meta, err := sess.Metadata()
	if err != nil || meta["max-rss"] != "900" {
		t.Fatalf("unexpected metadata %v %v", meta, err)
	}
	out, err := sess.Stdout()
	if err != nil || out != "hi\n" {
		t.Fatalf("unexpected stdout %q %v", out, err)
	}

	if err := sess.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := sess.Release(context.Background()); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if fake.count("--cleanup") != 1 {
		t.Fatalf("expected exactly one cleanup, got %d", fake.count("--cleanup"))
	}
	if iso.Pool().InUse() != 0 {
		t.Fatalf("box slot not returned")
	}
	entries, _ := os.ReadDir(filepath.Join(fake.workdir, "box"))
	if len(entries) != 0 {
		t.Fatalf("box not cleared: %d entries left", len(entries))
	}
}

func TestIsolateCompileFailure(t *testing.T) {
	fake := newFakeIsolate(t)
	fake.steps[compileScript] = fakeStep{
		meta:   "status:RE\nexitcode:1\n",
		stdout: "main.c:1: error: expected ';'\n",
		err:    errors.New("exit status 1"),
	}
	iso := newTestIsolate(fake)
	sess, err := iso.Acquire(context.Background(), testSubmission(1, "int main(){"))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer sess.Release(context.Background())

	comp, err := sess.Compile(context.Background())
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if comp.OK {
		t.Fatalf("expected failed compile")
	}
	if comp.Output != "main.c:1: error: expected ';'\n" {
		t.Fatalf("unexpected compile output %q", comp.Output)
	}
	for _, call := range fake.calls {
		if slices.Contains(call, "--run") {
			joined := strings.Join(call, " ")
			if !strings.Contains(joined, "-i /dev/null") || !strings.Contains(joined, "--stderr-to-stdout") {
				t.Fatalf("compile step must read /dev/null and merge stderr: %s", joined)
			}
			if !strings.Contains(joined, "-t 15") {
				t.Fatalf("compile step must use compile limits: %s", joined)
			}
		}
	}
}

func TestIsolateCompileFailureWithoutOutput(t *testing.T) {
	fake := newFakeIsolate(t)
	fake.steps[compileScript] = fakeStep{meta: "status:TO\n", err: errors.New("exit status 1")}
	iso := newTestIsolate(fake)
	sess, err := iso.Acquire(context.Background(), testSubmission(2, "int main(){}"))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer sess.Release(context.Background())

	comp, _ := sess.Compile(context.Background())
	if comp.OK || comp.Output != "Compilation failed" {
		t.Fatalf("unexpected compile result %+v", comp)
	}
}

func TestIsolateCompileSuccessKeepsOutput(t *testing.T) {
	fake := newFakeIsolate(t)
	fake.steps[compileScript] = fakeStep{meta: "time:0.3\nexitcode:0\n", stdout: "warning: unused\n"}
	iso := newTestIsolate(fake)
	sub := testSubmission(1, "int main(){return 0;}")
	sub.CompilerOptions = "-O2 -lm"
	sess, err := iso.Acquire(context.Background(), sub)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer sess.Release(context.Background())

	comp, err := sess.Compile(context.Background())
	if err != nil || !comp.OK || comp.Output != "warning: unused\n" {
		t.Fatalf("unexpected compile result %+v %v", comp, err)
	}
	if got := fake.scripts[compileScript]; got != "#!/bin/bash\nexec gcc -O2 -lm main.c -o a.out\n" {
		t.Fatalf("unexpected compile script %q", got)
	}
}

func TestIsolateRunFailureStillLeavesMetadata(t *testing.T) {
	fake := newFakeIsolate(t)
	fake.steps[runScript] = fakeStep{meta: "status:SG\nexitsig:11\n", err: errors.New("exit status 1")}
	iso := newTestIsolate(fake)
	sess, err := iso.Acquire(context.Background(), testSubmission(5, "process.exit()"))
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer sess.Release(context.Background())

	run, err := sess.Run(context.Background())
	if err != nil {
		t.Fatalf("run should not return an error: %v", err)
	}
	if run.OK || run.Err == "" {
		t.Fatalf("expected failed run, got %+v", run)
	}
	meta, _ := sess.Metadata()
	if meta.Status() != MetaSignaled {
		t.Fatalf("expected SG metadata, got %v", meta)
	}
}

func TestIsolateInitFailureReleasesSlot(t *testing.T) {
	fake := newFakeIsolate(t)
	fake.initErr = errors.New("box is busy")
	iso := newTestIsolate(fake)

	_, err := iso.Acquire(context.Background(), testSubmission(4, "print(1)"))
	if !appErr.Is(err, appErr.SandboxAcquireFailed) {
		t.Fatalf("expected acquisition error, got %v", err)
	}
	if iso.Pool().InUse() != 0 {
		t.Fatalf("slot leaked after failed init")
	}
	if fake.count("--cleanup") != 0 {
		t.Fatalf("cleanup must not run for a box that never initialized")
	}
}

func TestIsolateMissingBinary(t *testing.T) {
	fake := newFakeIsolate(t)
	iso := NewIsolate(Config{}, fake)
	iso.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	_, err := iso.Acquire(context.Background(), testSubmission(4, "print(1)"))
	if !appErr.Is(err, appErr.SandboxAcquireFailed) {
		t.Fatalf("expected acquisition error, got %v", err)
	}
	if len(fake.calls) != 0 {
		t.Fatalf("no isolate command should run without the binary")
	}
}

func TestIsolateUnknownLanguage(t *testing.T) {
	iso := newTestIsolate(newFakeIsolate(t))
	if _, err := iso.Acquire(context.Background(), testSubmission(99, "")); !appErr.Is(err, appErr.SandboxAcquireFailed) {
		t.Fatalf("expected acquisition error, got %v", err)
	}
}

func TestIsolateCgroupFlagsPropagate(t *testing.T) {
	fake := newFakeIsolate(t)
	iso := newTestIsolate(fake)
	sub := testSubmission(4, "print(1)")
	sub.Flags.PerProcessMemory = false
	sess, err := iso.Acquire(context.Background(), sub)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := sess.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := sess.Release(context.Background()); err != nil {
		t.Fatalf("release: %v", err)
	}
	for _, call := range fake.calls {
		if call[1] != "--cg" {
			t.Fatalf("expected every isolate call to use --cg: %v", call)
		}
	}
}
