package sandbox

import (
	"fmt"
	"strings"

	"judgebox/internal/judge/catalog"

	"github.com/google/shlex"
)

const shellMeta = "$&;<>|`"

// Sanitize trims s and strips shell metacharacters.
func Sanitize(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(shellMeta, r) {
			return -1
		}
		return r
	}, s)
}

// UserWords sanitizes raw and splits it into argument words.
func UserWords(raw string) ([]string, error) {
	clean := Sanitize(raw)
	if clean == "" {
		return nil, nil
	}
	words, err := shlex.Split(clean)
	if err != nil {
		return nil, fmt.Errorf("split arguments: %w", err)
	}
	return words, nil
}

// Expand splices words into template at the flags slot, or appends them when there is none.
func Expand(template []string, words []string) []string {
	out := make([]string, 0, len(template)+len(words))
	spliced := false
	for _, part := range template {
		if part == catalog.FlagsSlot {
			out = append(out, words...)
			spliced = true
			continue
		}
		out = append(out, part)
	}
	if !spliced {
		out = append(out, words...)
	}
	return out
}

// Script renders argv as a bash script that execs the program.
// Every word is quoted on its own so none can start a new command.
func Script(argv []string) string {
	quoted := make([]string, len(argv))
	for i, arg := range argv {
		quoted[i] = quote(arg)
	}
	return "#!/bin/bash\nexec " + strings.Join(quoted, " ") + "\n"
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || strings.ContainsRune("_-./=:,+@%", r)) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
