package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// MaxRecent caps the submission history kept on disk.
const MaxRecent = 10

// firstTerminalStatus is the lowest status id that never changes again.
const firstTerminalStatus = 3

// Entry is one submission this CLI created, with the last status it saw.
type Entry struct {
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	StatusID  int       `json:"status_id,omitempty"`
	Status    string    `json:"status,omitempty"`
	CheckedAt time.Time `json:"checked_at,omitempty"`
}

// Final reports whether the recorded status is terminal.
func (e Entry) Final() bool {
	return e.StatusID >= firstTerminalStatus
}

// SessionState is what the CLI remembers between runs.
type SessionState struct {
	LastToken     string    `json:"last_token"`
	LastCreatedAt time.Time `json:"last_created_at"`
	Recent        []Entry   `json:"recent,omitempty"`
}

// Remember records a newly created submission as the last one.
func (s *SessionState) Remember(token string, at time.Time) {
	if token == "" {
		return
	}
	s.LastToken = token
	s.LastCreatedAt = at
	entries := []Entry{{Token: token, CreatedAt: at}}
	for _, e := range s.Recent {
		if e.Token != token {
			entries = append(entries, e)
		}
	}
	if len(entries) > MaxRecent {
		entries = entries[:MaxRecent]
	}
	s.Recent = entries
}

// Observe stores the status last seen for token. Unknown tokens are ignored.
// A terminal status is never replaced by an earlier one.
func (s *SessionState) Observe(token string, statusID int, status string, at time.Time) bool {
	for i := range s.Recent {
		e := &s.Recent[i]
		if e.Token != token {
			continue
		}
		if e.Final() || statusID < e.StatusID {
			return false
		}
		e.StatusID = statusID
		e.Status = status
		e.CheckedAt = at
		return true
	}
	return false
}

// Last returns the entry of the last created submission.
func (s *SessionState) Last() (Entry, bool) {
	if s.LastToken == "" {
		return Entry{}, false
	}
	for _, e := range s.Recent {
		if e.Token == s.LastToken {
			return e, true
		}
	}
	return Entry{Token: s.LastToken, CreatedAt: s.LastCreatedAt}, true
}

// Pending returns recent submissions not yet seen in a terminal status.
func (s *SessionState) Pending() []Entry {
	var out []Entry
	for _, e := range s.Recent {
		if !e.Final() {
			out = append(out, e)
		}
	}
	return out
}

// normalize drops blank and duplicate history entries and keeps the last token in history.
func (s *SessionState) normalize() {
	seen := make(map[string]bool, len(s.Recent))
	entries := s.Recent[:0]
	for _, e := range s.Recent {
		if e.Token == "" || seen[e.Token] {
			continue
		}
		seen[e.Token] = true
		entries = append(entries, e)
	}
	if s.LastToken != "" && !seen[s.LastToken] {
		entries = append([]Entry{{Token: s.LastToken, CreatedAt: s.LastCreatedAt}}, entries...)
	}
	if len(entries) > MaxRecent {
		entries = entries[:MaxRecent]
	}
	if len(entries) == 0 {
		entries = nil
	}
	s.Recent = entries
}

func Load(path string) (SessionState, error) {
	var st SessionState
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("read session state failed: %w", err)
	}
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, fmt.Errorf("parse session state failed: %w", err)
	}
	st.normalize()
	return st, nil
}

func Save(path string, st SessionState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create session state dir failed: %w", err)
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session state failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write session state failed: %w", err)
	}
	return nil
}

func Clear(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session state failed: %w", err)
	}
	return nil
}
