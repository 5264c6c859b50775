package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig(maxRetries int) *Config {
	return &Config{
		MaxRetries:      maxRetries,
		InitialInterval: 1 * time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		Multiplier:      2.0,
	}
}

func TestNew_FillsDefaults(t *testing.T) {
	retrier := New(nil)
	if retrier.config.MaxRetries != 5 {
		t.Errorf("MaxRetries = %d, want 5", retrier.config.MaxRetries)
	}
	if retrier.config.InitialInterval != 1*time.Second {
		t.Errorf("InitialInterval = %v, want 1s", retrier.config.InitialInterval)
	}

	retrier = New(&Config{JitterFactor: 2})
	if retrier.config.JitterFactor != 1 {
		t.Errorf("JitterFactor = %f, want clamped to 1", retrier.config.JitterFactor)
	}
	if retrier.config.Multiplier != 2.0 {
		t.Errorf("Multiplier = %f, want 2.0 (default)", retrier.config.Multiplier)
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(3), func(ctx context.Context) error {
		calls++
		return nil
	})

	if result.Err != nil {
		t.Fatalf("Err = %v, want nil", result.Err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if result.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1", result.Attempts)
	}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	result := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	if result.Err != nil {
		t.Fatalf("Err = %v, want nil", result.Err)
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
}

func TestDo_ExhaustsRetries(t *testing.T) {
	wantErr := errors.New("still broken")
	result := Do(context.Background(), fastConfig(2), func(ctx context.Context) error {
		return wantErr
	})

	if !errors.Is(result.Err, ErrMaxRetriesExceeded) {
		t.Errorf("Err = %v, want ErrMaxRetriesExceeded", result.Err)
	}
	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3 (initial + 2 retries)", result.Attempts)
	}
	if !errors.Is(result.LastError, wantErr) {
		t.Errorf("LastError = %v, want %v", result.LastError, wantErr)
	}
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	wantErr := errors.New("bad payload")
	calls := 0
	result := Do(context.Background(), fastConfig(5), func(ctx context.Context) error {
		calls++
		return Permanent(wantErr)
	})

	if !errors.Is(result.Err, wantErr) {
		t.Errorf("Err = %v, want %v", result.Err, wantErr)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestPermanent_NilPassthrough(t *testing.T) {
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}

func TestDo_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := Do(ctx, fastConfig(3), func(ctx context.Context) error {
		return errors.New("never reached")
	})

	if !errors.Is(result.Err, ErrContextCanceled) {
		t.Errorf("Err = %v, want ErrContextCanceled", result.Err)
	}
}

func TestDo_ContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := &Config{
		MaxRetries:      3,
		InitialInterval: 1 * time.Hour,
		MaxInterval:     1 * time.Hour,
		Multiplier:      2.0,
	}

	done := make(chan *Result, 1)
	go func() {
		done <- Do(ctx, config, func(ctx context.Context) error {
			return errors.New("transient")
		})
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case result := <-done:
		if !errors.Is(result.Err, ErrContextCanceled) {
			t.Errorf("Err = %v, want ErrContextCanceled", result.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("retry did not abort on context cancel")
	}
}

func TestDoWithCallback_InvokedBeforeEachRetry(t *testing.T) {
	var attempts []int
	retrier := New(fastConfig(2))

	retrier.DoWithCallback(context.Background(), func(ctx context.Context) error {
		return errors.New("transient")
	}, func(attempt int, err error, nextInterval time.Duration) {
		attempts = append(attempts, attempt)
		if nextInterval <= 0 {
			t.Errorf("nextInterval = %v, want > 0", nextInterval)
		}
	})

	if len(attempts) != 2 {
		t.Fatalf("callback invoked %d times, want 2", len(attempts))
	}
	if attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("attempts = %v, want [1 2]", attempts)
	}
}

func TestCalculateInterval_GrowsAndCaps(t *testing.T) {
	retrier := New(&Config{
		MaxRetries:      5,
		InitialInterval: 1 * time.Second,
		MaxInterval:     4 * time.Second,
		Multiplier:      2.0,
		JitterFactor:    0,
	})

	if got := retrier.calculateInterval(0); got != 1*time.Second {
		t.Errorf("interval(0) = %v, want 1s", got)
	}
	if got := retrier.calculateInterval(1); got != 2*time.Second {
		t.Errorf("interval(1) = %v, want 2s", got)
	}
	if got := retrier.calculateInterval(3); got != 4*time.Second {
		t.Errorf("interval(3) = %v, want capped at 4s", got)
	}
}
