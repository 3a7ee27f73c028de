package sandbox

import (
	"strconv"

	"judgebox/internal/judge/model"
)

const sandboxPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// step describes one isolate --run invocation.
type step struct {
	BoxID          int
	Cgroups        bool
	MetaPath       string
	Limits         model.Limits
	Flags          model.Flags
	RedirectStderr bool
	EnableNetwork  bool
	StdinPath      string
	Script         string
}

func boxArgs(boxID int, cgroups bool) []string {
	args := make([]string, 0, 4)
	if cgroups {
		args = append(args, "--cg")
	}
	return append(args, "-b", strconv.Itoa(boxID))
}

func initArgs(boxID int, cgroups bool) []string {
	return append(boxArgs(boxID, cgroups), "--init")
}

func cleanupArgs(boxID int, cgroups bool) []string {
	return append(boxArgs(boxID, cgroups), "--cleanup")
}

// runArgs translates a step into isolate flags. Memory and time accounting
// each emit at most one flag, so per-process and cgroup limits never mix.
func runArgs(s step) []string {
	args := boxArgs(s.BoxID, s.Cgroups)
	args = append(args, "-s", "-M", s.MetaPath)
	if s.StdinPath != "" {
		args = append(args, "-i", s.StdinPath)
	}
	if s.RedirectStderr {
		args = append(args, "--stderr-to-stdout")
	}
	if s.EnableNetwork {
		args = append(args, "--share-net")
	}
	args = append(args,
		"-t", formatSeconds(s.Limits.CPUTime),
		"-x", formatSeconds(s.Limits.CPUExtraTime),
		"-w", formatSeconds(s.Limits.WallTime),
		"-k", strconv.Itoa(s.Limits.Stack),
		"-p"+strconv.Itoa(s.Limits.MaxProcesses),
	)

	if s.Flags.PerProcessMemory {
		args = append(args, "-m", strconv.Itoa(s.Limits.Memory))
	} else {
		args = append(args, "--cg-mem="+strconv.Itoa(s.Limits.Memory))
	}

	switch {
	case s.Flags.PerProcessTime && s.Cgroups:
		args = append(args, "--no-cg-timing")
	case !s.Flags.PerProcessTime:
		args = append(args, "--cg-timing")
	}

	args = append(args,
		"-f", strconv.Itoa(s.Limits.MaxFileSize),
		"-E", "HOME=/tmp",
		"-E", "PATH="+sandboxPath,
		"-E", "LANG",
		"-E", "LANGUAGE",
		"-E", "LC_ALL",
		"-d", "/etc:noexec",
		"--run", "--", "/bin/bash", s.Script,
	)
	return args
}

func formatSeconds(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
