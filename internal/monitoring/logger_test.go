package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("Custom logger was not called")
	}

	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}
}

func TestLimiter(t *testing.T) {
	tests := []struct {
		name   string
		every  int
		events int
		want   int
	}{
		{"every event", 1, 5, 5},
		{"one in three", 3, 7, 3},
		{"first only", 100, 10, 1},
		{"non-positive treated as one", 0, 4, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLimiter(tt.every)
			got := 0
			for i := 0; i < tt.events; i++ {
				if l.Allow() {
					got++
				}
			}
			if got != tt.want {
				t.Errorf("allowed %d events, want %d", got, tt.want)
			}
			if l.Count() != uint64(tt.events) {
				t.Errorf("Count() = %d, want %d", l.Count(), tt.events)
			}
		})
	}
}

func TestLimiterLogf(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	l := NewLimiter(2)
	for i := 0; i < 4; i++ {
		l.Logf("event %d", i)
	}
	if len(lines) != 2 || lines[0] != "event 0" || lines[1] != "event 2" {
		t.Errorf("unexpected log lines: %v", lines)
	}
}
