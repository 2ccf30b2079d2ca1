package ui

import (
	"testing"
	"time"
)

func TestTruncate(t *testing.T) {
	cases := []struct {
		in    string
		limit int
		want  string
	}{
		{"  hello  ", 10, "hello"},
		{"hello world", 8, "hello..."},
		{"hello", 3, "hel"},
		{"hello", 0, "hello"},
		{"Muhire Ngabo", 12, "Muhire Ngabo"},
	}
	for _, tc := range cases {
		if got := truncate(tc.in, tc.limit); got != tc.want {
			t.Fatalf("truncate(%q, %d) = %q, want %q", tc.in, tc.limit, got, tc.want)
		}
	}
}

func TestTruncateMiddle(t *testing.T) {
	got := truncateMiddle("/home/agent/.local/share/ssportal/logs/ssportal.log", 21)
	if len([]rune(got)) != 21 {
		t.Fatalf("truncateMiddle length = %d, want 21 (%q)", len([]rune(got)), got)
	}
	if got[:10] != "/home/agen" {
		t.Fatalf("truncateMiddle prefix = %q, want kept start", got)
	}
	if want := "portal.log"; got[len(got)-len(want):] != want {
		t.Fatalf("truncateMiddle = %q, want it to keep the end", got)
	}
	if got := truncateMiddle("short", 10); got != "short" {
		t.Fatalf("truncateMiddle(short) = %q", got)
	}
}

func TestTitleCase(t *testing.T) {
	if got := titleCase("in_progress"); got != "In Progress" {
		t.Fatalf("titleCase = %q, want In Progress", got)
	}
	if got := titleCase("  "); got != "" {
		t.Fatalf("titleCase(blank) = %q, want empty", got)
	}
}

func TestPadRight(t *testing.T) {
	if got := padRight("ab", 4); got != "ab  " {
		t.Fatalf("padRight = %q, want %q", got, "ab  ")
	}
	if got := padRight("abcdef", 4); got != "abcdef" {
		t.Fatalf("padRight long = %q, want unchanged", got)
	}
}

func TestFormatAge(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		at   time.Time
		want string
	}{
		{time.Time{}, "-"},
		{now.Add(-20 * time.Second), "now"},
		{now.Add(-5 * time.Minute), "5m"},
		{now.Add(-3 * time.Hour), "3h"},
		{now.Add(-50 * time.Hour), "2d"},
	}
	for _, tc := range cases {
		if got := formatAge(tc.at, now); got != tc.want {
			t.Fatalf("formatAge(%v) = %q, want %q", tc.at, got, tc.want)
		}
	}
}
