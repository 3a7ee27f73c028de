//go:build !unix

package sandbox

import (
	"os"
	"os/exec"
)

func configureProcessGroup(*exec.Cmd) {}

func killProcessGroup(proc *os.Process) error {
	if proc == nil {
		return nil
	}
	return proc.Kill()
}

func exitSignal(*os.ProcessState) int { return 0 }

func peakRSSKB(*os.ProcessState) int64 { return 0 }
