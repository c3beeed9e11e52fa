package backoff

import (
	"testing"
	"time"
)

func TestDelay(t *testing.T) {
	p := Default()

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{-3, 1 * time.Second}, // clamped to zero
	}

	for _, tt := range tests {
		if got := p.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestDelayMatchesFormula(t *testing.T) {
	p := Policy{Base: 250 * time.Millisecond, MaxAttempts: 8, RecoveryDelay: time.Second}
	for a := 0; a < p.MaxAttempts; a++ {
		want := p.Base * time.Duration(1<<a)
		if got := p.Delay(a); got != want {
			t.Errorf("Delay(%d) = %v, want %v", a, got, want)
		}
	}
}

func TestExhausted(t *testing.T) {
	p := Default()
	for a := 0; a < DefaultMaxAttempts; a++ {
		if p.Exhausted(a) {
			t.Errorf("Exhausted(%d) = true, want false", a)
		}
	}
	if !p.Exhausted(DefaultMaxAttempts) {
		t.Errorf("Exhausted(%d) = false, want true", DefaultMaxAttempts)
	}
	if !p.Exhausted(DefaultMaxAttempts + 1) {
		t.Errorf("Exhausted(%d) = false, want true", DefaultMaxAttempts+1)
	}
}

func TestRecoveryIsIndependentOfAttempt(t *testing.T) {
	p := Default()
	if got := p.Recovery(); got != time.Second {
		t.Errorf("Recovery() = %v, want 1s", got)
	}
}

func TestValidate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() error: %v", err)
	}

	bad := []Policy{
		{Base: 0, MaxAttempts: 5, RecoveryDelay: time.Second},
		{Base: time.Second, MaxAttempts: 0, RecoveryDelay: time.Second},
		{Base: time.Second, MaxAttempts: 5, RecoveryDelay: -1},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Errorf("case %d: Validate() = nil, want error", i)
		}
	}
}

func TestDelaySaturates(t *testing.T) {
	p := Policy{Base: time.Second, MaxAttempts: 64, RecoveryDelay: time.Second}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}

	// 1s * 2^33 still fits; 2^34 would wrap.
	if got, want := p.Delay(33), time.Second*time.Duration(1<<33); got != want {
		t.Errorf("Delay(33) = %v, want %v", got, want)
	}

	prev := p.Delay(33)
	for a := 34; a < p.MaxAttempts; a++ {
		got := p.Delay(a)
		if got <= 0 {
			t.Fatalf("Delay(%d) = %v, want positive", a, got)
		}
		if got < prev {
			t.Errorf("Delay(%d) = %v, smaller than Delay(%d) = %v", a, got, a-1, prev)
		}
		prev = got
	}
	if got := p.Delay(100); got != maxDelay {
		t.Errorf("Delay(100) = %v, want %v", got, maxDelay)
	}
}
