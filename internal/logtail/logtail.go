package logtail

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Entry is one decoded line of the console's JSON log.
type Entry struct {
	Time    time.Time
	Level   string
	Logger  string
	Message string
	Fields  map[string]any
	Raw     string // set when the line is not JSON
}

// Read returns at most maxLines from the end of the file at path.
func Read(path string, maxLines int) ([]string, error) {
	if maxLines <= 0 {
		return nil, nil
	}
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer file.Close()

	ring := make([]string, maxLines)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	count := 0
	idx := 0
	for scanner.Scan() {
		ring[idx] = scanner.Text()
		idx = (idx + 1) % maxLines
		if count < maxLines {
			count++
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}

	lines := make([]string, count)
	if count == maxLines {
		for i := 0; i < count; i++ {
			lines[i] = ring[(idx+i)%maxLines]
		}
	} else {
		copy(lines, ring[:count])
	}
	return lines, nil
}

// ReadEntries is Read followed by Parse on every non-blank line.
func ReadEntries(path string, maxLines int) ([]Entry, error) {
	lines, err := Read(path, maxLines)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		entries = append(entries, Parse(line))
	}
	return entries, nil
}

// Parse decodes a zap JSON line. Lines that are not JSON objects come back
// with only Raw set.
func Parse(line string) Entry {
	var fields map[string]any
	if err := json.Unmarshal([]byte(line), &fields); err != nil {
		return Entry{Raw: line}
	}
	e := Entry{
		Level:   takeString(fields, "level"),
		Logger:  takeString(fields, "logger"),
		Message: takeString(fields, "msg"),
	}
	if ts, ok := fields["ts"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			e.Time = parsed
		}
	}
	delete(fields, "ts")
	delete(fields, "caller")
	if len(fields) > 0 {
		e.Fields = fields
	}
	return e
}

// String renders the entry as "15:04:05 LEVEL logger: message k=v ...".
func (e Entry) String() string {
	if e.Raw != "" || (e.Message == "" && e.Level == "") {
		return e.Raw
	}
	var b strings.Builder
	if !e.Time.IsZero() {
		b.WriteString(e.Time.Local().Format("15:04:05"))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%-5s ", strings.ToUpper(e.Level))
	if e.Logger != "" {
		b.WriteString(e.Logger)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, e.Fields[k])
	}
	return b.String()
}

func takeString(fields map[string]any, key string) string {
	v, _ := fields[key].(string)
	delete(fields, key)
	return v
}
