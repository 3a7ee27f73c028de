package model

import "judgebox/internal/judge/catalog"

// CreateRequest is the POST /submissions body. Pointer fields fall back to defaults when absent.
type CreateRequest struct {
	SourceCode           string  `json:"source_code"`
	LanguageID           int     `json:"language_id"`
	Stdin                string  `json:"stdin"`
	ExpectedOutput       string  `json:"expected_output"`
	CompilerOptions      string  `json:"compiler_options"`
	CommandLineArguments string  `json:"command_line_arguments"`
	CPUTimeLimit         float64 `json:"cpu_time_limit"`
	CPUExtraTime         float64 `json:"cpu_extra_time"`
	WallTimeLimit        float64 `json:"wall_time_limit"`
	MemoryLimit          int     `json:"memory_limit"`
	StackLimit           int     `json:"stack_limit"`
	MaxProcesses         int     `json:"max_processes_and_or_threads"`
	MaxFileSize          int     `json:"max_file_size"`
	Flags
}

// Limits returns the requested limits with zero fields unset.
func (r CreateRequest) Limits() Limits {
	return Limits{
		CPUTime:      r.CPUTimeLimit,
		CPUExtraTime: r.CPUExtraTime,
		WallTime:     r.WallTimeLimit,
		Memory:       r.MemoryLimit,
		Stack:        r.StackLimit,
		MaxProcesses: r.MaxProcesses,
		MaxFileSize:  r.MaxFileSize,
	}
}

// StatusView is the public rendering of a status.
type StatusView struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
}

func NewStatusView(s catalog.Status) StatusView {
	return StatusView{ID: s.ID, Description: s.Description}
}

// CreatedView answers POST /submissions.
type CreatedView struct {
	Token  string     `json:"token"`
	Status StatusView `json:"status"`
}

// SubmissionView answers GET /submissions/{token}.
type SubmissionView struct {
	Stdout        *string    `json:"stdout"`
	Stderr        *string    `json:"stderr"`
	CompileOutput *string    `json:"compile_output"`
	Message       *string    `json:"message"`
	Status        StatusView `json:"status"`
	Time          *float64   `json:"time"`
	Memory        *int64     `json:"memory"`
	ExitCode      *int       `json:"exit_code"`
	ExitSignal    *int       `json:"exit_signal"`
}

// NewSubmissionView renders s. Result fields stay null until s is terminal.
func NewSubmissionView(s *Submission) SubmissionView {
	view := SubmissionView{Status: NewStatusView(s.Status)}
	if !s.Status.Terminal() {
		return view
	}
	view.Stdout = s.Result.Stdout
	view.Stderr = s.Result.Stderr
	view.CompileOutput = s.Result.CompileOutput
	view.Message = s.Result.Message
	view.Time = s.Result.Time
	view.Memory = s.Result.Memory
	view.ExitCode = s.Result.ExitCode
	view.ExitSignal = s.Result.ExitSignal
	return view
}

// LanguageView is the public rendering of a language.
type LanguageView struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
