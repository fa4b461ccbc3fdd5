package cuid2

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestEncodeTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		seconds  int64
		expected string
	}{
		{"zero", 0, "000000"},
		{"one second", 1, "000001"},
		{"base rollover", 62, "000010"},
		{"one minute", 60, "00000y"},
		{"one hour", 3600, "0000w4"},
		{"one day", 86400, "000MTY"},
		{"2024-01-01", 1704067200, "1rK5iq"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := encodeTimestamp(tt.seconds); got != tt.expected {
				t.Errorf("encodeTimestamp(%d) = %s, want %s", tt.seconds, got, tt.expected)
			}
		})
	}
}

func TestNewFormat(t *testing.T) {
	id := New("task")

	if len(id) != len("task")+1+timestampLength+randomLength {
		t.Errorf("ID length incorrect: got %d in %s", len(id), id)
	}

	matched, _ := regexp.MatchString(`^task_[0-9A-Za-z]{24}$`, id)
	if !matched {
		t.Errorf("ID format does not match expected pattern: %s", id)
	}
}

func TestNewCharset(t *testing.T) {
	for _, prefix := range []string{"task", "dlr", "aud"} {
		id := New(prefix)
		body := strings.TrimPrefix(id, prefix+"_")
		for _, c := range body {
			if !strings.ContainsRune(alphabet, c) {
				t.Errorf("ID %s contains non-base62 character %c", id, c)
			}
		}
	}
}

func TestNewUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 10000; i++ {
		id := New("task")
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestNewTimeSortable(t *testing.T) {
	first := New("task")
	time.Sleep(1100 * time.Millisecond)
	second := New("task")

	if !(first < second) {
		t.Errorf("IDs not time ordered: %s then %s", first, second)
	}
}

func TestRandomBase62Length(t *testing.T) {
	for _, n := range []int{1, 8, 18, 64} {
		if got := randomBase62(n); len(got) != n {
			t.Errorf("randomBase62(%d) returned %d characters", n, len(got))
		}
	}
}
