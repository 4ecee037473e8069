package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestLimiterWaitDelaysSameHost(t *testing.T) {
	t.Parallel()

	// 10 RPS = 1 token every 100ms, burst 1.
	l := New(Config{PerHostRPS: 10, Burst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://forms.example.gov/a.pdf"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://FORMS.example.gov/b.pdf"); err != nil {
		t.Fatal(err)
	}
	if dur := time.Since(start); dur < 80*time.Millisecond {
		t.Errorf("expected wait ~100ms, got %v", dur)
	}
}

func TestLimiterDifferentHosts(t *testing.T) {
	t.Parallel()

	l := New(Config{PerHostRPS: 1, Burst: 1})
	ctx := context.Background()

	if err := l.Wait(ctx, "https://a.com/1.pdf"); err != nil {
		t.Fatal(err)
	}
	start := time.Now()
	if err := l.Wait(ctx, "https://b.com/1.pdf"); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > 50*time.Millisecond {
		t.Errorf("host b blocked unexpectedly")
	}
}

func TestLimiterDisabledAndCanceled(t *testing.T) {
	t.Parallel()

	disabled := New(Config{})
	for i := 0; i < 5; i++ {
		if err := disabled.Wait(context.Background(), "https://a.com"); err != nil {
			t.Fatalf("disabled limiter returned %v", err)
		}
	}

	l := New(Config{PerHostRPS: 0.1, Burst: 1})
	if err := l.Wait(context.Background(), "https://slow.example"); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := l.Wait(ctx, "https://slow.example")
	if err == nil {
		t.Fatal("expected error when the wait exceeds the deadline")
	}
	if errors.Is(err, context.Canceled) {
		t.Fatalf("expected deadline-related error, got %v", err)
	}
}
