package interval_test

import (
	"testing"
	"time"

	"github.com/camber-run/camber/interval"
)

func TestNext_Duration(t *testing.T) {
	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		spec string
		want time.Time
	}{
		{"30s", from.Add(30 * time.Second)},
		{"5m", from.Add(5 * time.Minute)},
		{"1h30m", from.Add(90 * time.Minute)},
		{"1500", from.Add(1500 * time.Millisecond)}, // bare millis
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := interval.Next(tt.spec, from)
			if err != nil {
				t.Fatalf("Next(%q) error: %v", tt.spec, err)
			}
			if !got.Equal(tt.want) {
				t.Errorf("Next(%q) = %v, want %v", tt.spec, got, tt.want)
			}
		})
	}
}

func TestNext_Cron(t *testing.T) {
	from := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)

	got, err := interval.Next("0 * * * *", from)
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	want := time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("Next = %v, want %v", got, want)
	}
}

func TestNext_Descriptor(t *testing.T) {
	from := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := interval.Next("@every 45s", from)
	if err != nil {
		t.Fatalf("Next error: %v", err)
	}
	if !got.Equal(from.Add(45 * time.Second)) {
		t.Errorf("Next = %v, want %v", got, from.Add(45*time.Second))
	}
}

func TestNext_Invalid(t *testing.T) {
	from := time.Now()
	for _, spec := range []string{"", "not a spec", "-5s", "0"} {
		if _, err := interval.Next(spec, from); err == nil {
			t.Errorf("Next(%q) should fail", spec)
		}
	}
}
