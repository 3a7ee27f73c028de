// Package verdict turns sandbox metadata and program output into a final status.
package verdict

import (
	"strings"
	"unicode"

	"judgebox/internal/judge/catalog"
	"judgebox/internal/judge/model"
	"judgebox/internal/judge/sandbox"
)

// Input is everything observed after the run step.
type Input struct {
	Meta     sandbox.Metadata
	Expected *string
	Stdout   string
	Stderr   string
	// Cgroups selects cg-mem over max-rss as the memory figure.
	Cgroups bool
}

// Outcome is the terminal status with its result fields.
type Outcome struct {
	Status catalog.Status
	Result model.Result
}

const missingMetadata = "Sandbox produced no execution metadata"

var execFailureMarkers = []string{
	"Exec format error",
	"No such file or directory",
	"Permission denied",
}

// Decide derives the outcome. An empty metadata record is an internal error.
func Decide(in Input) Outcome {
	if len(in.Meta) == 0 {
		return Outcome{
			Status: catalog.InternalError,
			Result: model.Result{Message: model.StringPtr(missingMetadata)},
		}
	}
	return Outcome{
		Status: status(in),
		Result: result(in),
	}
}

func status(in Input) catalog.Status {
	switch in.Meta.Status() {
	case sandbox.MetaTimedOut:
		return catalog.TimeLimitExceeded
	case sandbox.MetaSignaled:
		return signalStatus(in.Meta.Int("exitsig"))
	case sandbox.MetaRuntime:
		return catalog.RuntimeNZEC
	case sandbox.MetaInternal:
		msg := in.Meta.Message()
		for _, marker := range execFailureMarkers {
			if strings.Contains(msg, marker) {
				return catalog.ExecFormatError
			}
		}
		return catalog.InternalError
	}
	if in.Expected == nil || *in.Expected == "" {
		return catalog.Accepted
	}
	if Normalize(*in.Expected) == Normalize(in.Stdout) {
		return catalog.Accepted
	}
	return catalog.WrongAnswer
}

func signalStatus(sig *int) catalog.Status {
	if sig == nil {
		return catalog.RuntimeOther
	}
	switch *sig {
	case 11:
		return catalog.RuntimeSIGSEGV
	case 25:
		return catalog.RuntimeSIGXFSZ
	case 8:
		return catalog.RuntimeSIGFPE
	case 6:
		return catalog.RuntimeSIGABRT
	default:
		return catalog.RuntimeOther
	}
}

func result(in Input) model.Result {
	res := model.Result{
		Stdout:     nonBlank(in.Stdout),
		Stderr:     nonBlank(in.Stderr),
		Time:       in.Meta.Float("time"),
		WallTime:   in.Meta.Float("time-wall"),
		ExitSignal: in.Meta.Int("exitsig"),
	}
	if msg := in.Meta.Message(); msg != "" {
		res.Message = model.StringPtr(msg)
	}
	memKey := "max-rss"
	if in.Cgroups {
		memKey = "cg-mem"
	}
	if mem := in.Meta.Int(memKey); mem != nil {
		v := int64(*mem)
		res.Memory = &v
	}
	exitCode := 0
	if code := in.Meta.Int("exitcode"); code != nil {
		exitCode = *code
	}
	res.ExitCode = &exitCode
	return res
}

// Normalize strips trailing whitespace from every line and drops trailing blank lines.
func Normalize(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	return strings.TrimRightFunc(strings.Join(lines, "\n"), unicode.IsSpace)
}

func nonBlank(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
