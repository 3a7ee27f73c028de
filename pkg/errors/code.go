package errors

import "net/http"

// ErrorCode identifies a failure class across the judge.
type ErrorCode int

// Code ranges:
// 10000-10999: system & common
// 13000-13099: submission
// 13100-13199: judge & sandbox

const (
	Success ErrorCode = 10000

	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	CacheError ErrorCode = 10200
	MQError    ErrorCode = 10250

	ValidationFailed ErrorCode = 10300
	InvalidFormat    ErrorCode = 10301

	SubmissionNotFound     ErrorCode = 13000
	SubmissionCreateFailed ErrorCode = 13001
	CodeTooLarge           ErrorCode = 13002
	LanguageNotSupported   ErrorCode = 13003
	LanguageNotFound       ErrorCode = 13004
	InvalidTransition      ErrorCode = 13005

	JudgeQueueFull       ErrorCode = 13100
	JudgeSystemError     ErrorCode = 13101
	SandboxAcquireFailed ErrorCode = 13110
	SandboxExecFailed    ErrorCode = 13111
	SandboxUnavailable   ErrorCode = 13112
)

var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	CacheError: "Cache operation failed",
	MQError:    "Message queue operation failed",

	ValidationFailed: "Validation failed",
	InvalidFormat:    "Invalid format",

	SubmissionNotFound:     "Submission not found",
	SubmissionCreateFailed: "Failed to create submission",
	CodeTooLarge:           "Code is too large",
	LanguageNotSupported:   "Programming language not supported",
	LanguageNotFound:       "Language not found",
	InvalidTransition:      "Invalid submission status transition",

	JudgeQueueFull:       "Judge queue is full, please try again later",
	JudgeSystemError:     "Judge system error",
	SandboxAcquireFailed: "Failed to acquire sandbox",
	SandboxExecFailed:    "Sandbox execution failed",
	SandboxUnavailable:   "Sandbox is unavailable",
}

// Message returns the default message for the code.
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the HTTP status the API layer answers with.
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return http.StatusOK
	case c == NotFound, c == SubmissionNotFound, c == LanguageNotFound:
		return http.StatusNotFound
	case c == TooManyRequests:
		return http.StatusTooManyRequests
	case c == ServiceUnavailable, c == JudgeQueueFull, c == SandboxUnavailable:
		return http.StatusServiceUnavailable
	case c == InvalidParams, c == LanguageNotSupported, c == CodeTooLarge:
		return http.StatusBadRequest
	case c >= 10300 && c < 10400:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
