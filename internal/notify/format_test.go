package notify

import (
	"strings"
	"testing"
	"time"
)

var when = time.Date(2026, 8, 24, 9, 30, 0, 0, time.UTC)

func TestFormatAnomaly(t *testing.T) {
	tests := []struct {
		typ       string
		wantTitle string
	}{
		{"unusual_activity", "Unusual Activity Detected"},
		{"unusual_inactivity", "Unusual Inactivity Detected"},
		{"broken_pattern", "Missing Expected Activity"},
		{"streaming_model", "Unusual Pattern Detected"},
	}
	for _, tt := range tests {
		got := FormatAnomaly("light.x", tt.typ, "statistical", "desc", 3.2, when)
		if !strings.Contains(got, tt.wantTitle) {
			t.Fatalf("type=%s sem título %q: %q", tt.typ, tt.wantTitle, got)
		}
		if !strings.Contains(got, "light.x") || !strings.Contains(got, "2026-08-24 09:30:00") {
			t.Fatalf("mensagem incompleta: %q", got)
		}
	}
}

func TestFormatWelfare(t *testing.T) {
	got := FormatWelfare("concern", []string{"door.front silent for 6h"}, when)
	if !strings.Contains(got, "concern") || !strings.Contains(got, "door.front silent for 6h") {
		t.Fatalf("mensagem incompleta: %q", got)
	}
	if !strings.Contains(got, ":warning:") {
		t.Fatalf("ícone errado: %q", got)
	}
}
