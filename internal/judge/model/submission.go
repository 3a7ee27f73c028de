package model

import (
	"time"

	"judgebox/internal/judge/catalog"
	appErr "judgebox/pkg/errors"
)

// Result holds the fields written once with the terminal status. Nil means absent.
type Result struct {
	Stdout        *string  `json:"stdout"`
	Stderr        *string  `json:"stderr"`
	CompileOutput *string  `json:"compile_output"`
	Message       *string  `json:"message"`
	Time          *float64 `json:"time"`
	WallTime      *float64 `json:"wall_time"`
	Memory        *int64   `json:"memory"`
	ExitCode      *int     `json:"exit_code"`
	ExitSignal    *int     `json:"exit_signal"`
}

// Submission is one unit of judge work.
type Submission struct {
	ID                   int64          `json:"id"`
	Token                string         `json:"token"`
	SourceCode           string         `json:"source_code"`
	LanguageID           int            `json:"language_id"`
	Stdin                string         `json:"stdin"`
	ExpectedOutput       *string        `json:"expected_output"`
	CompilerOptions      string         `json:"compiler_options"`
	CommandLineArguments string         `json:"command_line_arguments"`
	Limits               Limits         `json:"limits"`
	Flags                Flags          `json:"flags"`
	Status               catalog.Status `json:"status"`
	CreatedAt            time.Time      `json:"created_at"`
	QueuedAt             time.Time      `json:"queued_at"`
	StartedAt            *time.Time     `json:"started_at"`
	FinishedAt           *time.Time     `json:"finished_at"`
	Result               Result         `json:"result"`
}

// Language resolves the submission's catalog entry.
func (s *Submission) Language() (catalog.Language, bool) {
	return catalog.LanguageByID(s.LanguageID)
}

// Start moves a queued submission to Processing.
func (s *Submission) Start(now time.Time) error {
	if s.Status != catalog.InQueue {
		return appErr.Newf(appErr.InvalidTransition, "cannot start submission in status %q", s.Status.Description)
	}
	s.Status = catalog.Processing
	s.StartedAt = &now
	return nil
}

// Finish records the terminal status together with its result fields.
func (s *Submission) Finish(status catalog.Status, result Result, now time.Time) error {
	if !status.Terminal() {
		return appErr.Newf(appErr.InvalidTransition, "status %q is not terminal", status.Description)
	}
	if s.Status != catalog.Processing {
		return appErr.Newf(appErr.InvalidTransition, "cannot finish submission in status %q", s.Status.Description)
	}
	s.Status = status
	s.Result = result
	s.FinishedAt = &now
	return nil
}

// Clone returns a copy safe to hand out of a store.
func (s *Submission) Clone() *Submission {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}

// StringPtr returns nil for "" and &v otherwise.
func StringPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
