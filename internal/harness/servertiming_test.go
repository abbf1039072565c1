package harness

import (
	"testing"
	"time"
)

func TestParseServerTiming(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
		ok     bool
	}{
		{
			name:   "typical value",
			header: "cfRequestDuration;dur=123.45",
			want:   123450 * time.Microsecond,
			ok:     true,
		},
		{
			name:   "integer value",
			header: "cfRequestDuration;dur=250",
			want:   250 * time.Millisecond,
			ok:     true,
		},
		{
			name:   "zero",
			header: "cfRequestDuration;dur=0",
			want:   0,
			ok:     true,
		},
		{
			name:   "dur in later segment",
			header: "cfRequestDuration;desc=origin;dur=42",
			want:   42 * time.Millisecond,
			ok:     true,
		},
		{
			name:   "whitespace around segments",
			header: "cfRequestDuration; dur=10.5",
			want:   10500 * time.Microsecond,
			ok:     true,
		},
		{name: "no dur token", header: "cfRequestDuration;desc=origin", ok: false},
		{name: "empty header", header: "", ok: false},
		{name: "negative", header: "cfRequestDuration;dur=-5", ok: false},
		{name: "not a number", header: "cfRequestDuration;dur=abc", ok: false},
		{name: "nan", header: "cfRequestDuration;dur=NaN", ok: false},
		{name: "infinity", header: "cfRequestDuration;dur=Inf", ok: false},
		{name: "empty value", header: "cfRequestDuration;dur=", ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseServerTiming(tt.header)
			if ok != tt.ok {
				t.Fatalf("ParseServerTiming(%q) ok = %v, want %v", tt.header, ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("ParseServerTiming(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}

func TestParseServerTimingFirstDurWins(t *testing.T) {
	got, ok := ParseServerTiming("a;dur=10;b;dur=20")
	if !ok {
		t.Fatal("ParseServerTiming() ok = false")
	}
	if got != 10*time.Millisecond {
		t.Errorf("ParseServerTiming() = %v, want 10ms", got)
	}
}
