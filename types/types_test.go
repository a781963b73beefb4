package types

import (
	"testing"
	"time"
)

func TestEntry_IsExpired(t *testing.T) {
	created := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		ttl  time.Duration
		now  time.Time
		want bool
	}{
		{"no ttl never expires", 0, created.Add(100 * time.Hour), false},
		{"before deadline", time.Minute, created.Add(59 * time.Second), false},
		{"at deadline", time.Minute, created.Add(time.Minute), true},
		{"after deadline", time.Minute, created.Add(2 * time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEntry([]byte("v"), created, tt.ttl)
			if got := e.IsExpired(tt.now); got != tt.want {
				t.Errorf("IsExpired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBackendConfig_Clock(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := BackendConfig{Now: func() time.Time { return fixed }}
	if got := cfg.Clock()(); !got.Equal(fixed) {
		t.Errorf("Clock() = %v, want %v", got, fixed)
	}

	if (BackendConfig{}).Clock() == nil {
		t.Error("expected default clock")
	}
}
