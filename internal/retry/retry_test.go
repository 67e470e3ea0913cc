package retry

import (
	"errors"
	"testing"
	"time"
)

func TestBackoff_Growth(t *testing.T) {
	initial := 100 * time.Millisecond
	max := 10 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
	}
	for _, tt := range tests {
		got := Backoff(tt.attempt, initial, max, 2.0)
		if got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_Cap(t *testing.T) {
	got := Backoff(20, 100*time.Millisecond, 5*time.Second, 2.0)
	if got != 5*time.Second {
		t.Errorf("Backoff(20) = %v, want cap %v", got, 5*time.Second)
	}
}

func TestBackoff_ZeroAttemptTreatedAsFirst(t *testing.T) {
	if got := Backoff(0, time.Second, time.Minute, 2.0); got != time.Second {
		t.Errorf("Backoff(0) = %v, want %v", got, time.Second)
	}
}

func TestBackoffWithJitter_Range(t *testing.T) {
	base := Backoff(3, 100*time.Millisecond, 10*time.Second, 2.0)
	for i := 0; i < 100; i++ {
		got := BackoffWithJitter(3, 100*time.Millisecond, 10*time.Second, 2.0)
		if got < base/2 || got > base*3/2 {
			t.Fatalf("jittered delay %v outside [%v, %v]", got, base/2, base*3/2)
		}
	}
}

func TestConfigDelay_UsesJitterSetting(t *testing.T) {
	cfg := Config{InitialDelay: time.Second, MaxDelay: time.Minute, Factor: 2.0, Jitter: false}
	if got := cfg.Delay(2); got != 2*time.Second {
		t.Errorf("Delay(2) = %v, want %v", got, 2*time.Second)
	}
}

func TestPermanent(t *testing.T) {
	base := errors.New("unauthorized")
	wrapped := Permanent(base)

	if !IsPermanent(wrapped) {
		t.Error("expected wrapped error to be permanent")
	}
	if IsPermanent(base) {
		t.Error("plain error should not be permanent")
	}
	if !errors.Is(wrapped, base) {
		t.Error("Permanent should preserve the error chain")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
