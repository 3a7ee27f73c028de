package model

import "time"

const VerdictEventFinal = "final"

// VerdictEvent is the payload published when a submission reaches a terminal status.
type VerdictEvent struct {
	Type       string         `json:"type"`
	ID         int64          `json:"id"`
	Token      string         `json:"token"`
	LanguageID int            `json:"language_id"`
	Status     StatusView     `json:"status"`
	Time       *float64       `json:"time"`
	Memory     *int64         `json:"memory"`
	View       SubmissionView `json:"submission"`
	CreatedAt  int64          `json:"created_at"`
}

// NewVerdictEvent builds the final event for s.
func NewVerdictEvent(s *Submission, now time.Time) VerdictEvent {
	return VerdictEvent{
		Type:       VerdictEventFinal,
		ID:         s.ID,
		Token:      s.Token,
		LanguageID: s.LanguageID,
		Status:     NewStatusView(s.Status),
		Time:       s.Result.Time,
		Memory:     s.Result.Memory,
		View:       NewSubmissionView(s),
		CreatedAt:  now.Unix(),
	}
}
