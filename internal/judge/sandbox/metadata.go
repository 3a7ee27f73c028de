package sandbox

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Metadata status codes written by isolate.
const (
	MetaTimedOut = "TO"
	MetaSignaled = "SG"
	MetaRuntime  = "RE"
	MetaInternal = "XX"
)

// Metadata is the key:value record of one sandboxed step.
type Metadata map[string]string

// ParseMetadata reads key:value lines. Keys and values are trimmed and
// values may themselves contain colons.
func ParseMetadata(r io.Reader) (Metadata, error) {
	meta := Metadata{}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		meta[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan metadata: %w", err)
	}
	return meta, nil
}

// ReadMetadataFile parses path. A missing file yields an empty record.
func ReadMetadataFile(path string) (Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Metadata{}, nil
		}
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer f.Close()
	return ParseMetadata(f)
}

// Format renders the record in isolate's format with keys sorted.
func (m Metadata) Format() string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s:%s\n", k, m[k])
	}
	return b.String()
}

func (m Metadata) Status() string {
	return m["status"]
}

func (m Metadata) Message() string {
	return m["message"]
}

// Float returns the numeric value of key, or nil when absent or malformed.
func (m Metadata) Float(key string) *float64 {
	raw, ok := m[key]
	if !ok || raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Int returns the integer value of key, or nil when absent or malformed.
func (m Metadata) Int(key string) *int {
	raw, ok := m[key]
	if !ok || raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}
