package sandbox

import (
	"slices"
	"strings"
	"testing"

	"judgebox/internal/judge/model"
)

func testStep(flags model.Flags) step {
	return step{
		BoxID:    4,
		Cgroups:  flags.UsesCgroups(),
		MetaPath: "/var/local/lib/isolate/4/metadata.txt",
		Limits:   model.DefaultRunLimits(),
		Flags:    flags,
		Script:   "run.sh",
	}
}

func count(args []string, want string) int {
	n := 0
	for _, a := range args {
		if a == want || strings.HasPrefix(a, want+"=") {
			n++
		}
	}
	return n
}

func TestRunArgsPerProcessOnly(t *testing.T) {
	args := runArgs(testStep(model.Flags{PerProcessTime: true, PerProcessMemory: true}))
	if args[0] != "-b" {
		t.Fatalf("expected no --cg without cgroup accounting, got %v", args[:2])
	}
	if count(args, "-m") != 1 || count(args, "--cg-mem") != 0 {
		t.Fatalf("expected per-process memory flag only: %v", args)
	}
	if count(args, "--cg-timing") != 0 || count(args, "--no-cg-timing") != 0 {
		t.Fatalf("expected no timing flag without cgroups: %v", args)
	}
}

func TestRunArgsCgroupMemory(t *testing.T) {
	args := runArgs(testStep(model.Flags{PerProcessTime: true, PerProcessMemory: false}))
	if args[0] != "--cg" {
		t.Fatalf("expected --cg first, got %v", args[:2])
	}
	if count(args, "-m") != 0 || count(args, "--cg-mem") != 1 {
		t.Fatalf("expected cgroup memory flag only: %v", args)
	}
	if count(args, "--no-cg-timing") != 1 || count(args, "--cg-timing") != 0 {
		t.Fatalf("expected --no-cg-timing: %v", args)
	}
	if !slices.Contains(args, "--cg-mem=128000") {
		t.Fatalf("expected memory value: %v", args)
	}
}

func TestRunArgsCgroupTiming(t *testing.T) {
	args := runArgs(testStep(model.Flags{PerProcessTime: false, PerProcessMemory: true}))
	if count(args, "--cg-timing") != 1 || count(args, "--no-cg-timing") != 0 {
		t.Fatalf("expected --cg-timing: %v", args)
	}
	if count(args, "-m") != 1 {
		t.Fatalf("expected per-process memory: %v", args)
	}
}

func TestRunArgsOptionalFlags(t *testing.T) {
	s := testStep(model.Flags{PerProcessTime: true, PerProcessMemory: true})
	s.StdinPath = "/dev/null"
	s.RedirectStderr = true
	s.EnableNetwork = true
	args := runArgs(s)
	joined := strings.Join(args, " ")
	for _, want := range []string{"-i /dev/null", "--stderr-to-stdout", "--share-net", "-p60", "-t 5", "-x 1", "-w 10", "-k 64000", "-f 1024"} {
		if !strings.Contains(joined, want) {
			t.Fatalf("missing %q in %s", want, joined)
		}
	}
	if !strings.HasSuffix(joined, "--run -- /bin/bash run.sh") {
		t.Fatalf("unexpected tail: %s", joined)
	}
}

func TestRunArgsFractionalSeconds(t *testing.T) {
	s := testStep(model.Flags{PerProcessTime: true, PerProcessMemory: true})
	s.Limits.CPUTime = 0.5
	args := runArgs(s)
	idx := slices.Index(args, "-t")
	if idx < 0 || args[idx+1] != "0.5" {
		t.Fatalf("unexpected cpu time flag: %v", args)
	}
}

func TestInitAndCleanupArgs(t *testing.T) {
	if got := strings.Join(initArgs(2, true), " "); got != "--cg -b 2 --init" {
		t.Fatalf("unexpected init args %q", got)
	}
	if got := strings.Join(cleanupArgs(2, false), " "); got != "-b 2 --cleanup" {
		t.Fatalf("unexpected cleanup args %q", got)
	}
}
