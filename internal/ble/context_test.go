package ble

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCallWithContextReturnsResult(t *testing.T) {
	got, err := callWithContext(context.Background(), func() (int, error) {
		return 7, nil
	})
	if err != nil || got != 7 {
		t.Errorf("callWithContext() = %d, %v; want 7, nil", got, err)
	}
}

func TestCallWithContextHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	release := make(chan struct{})
	defer close(release)

	start := time.Now()
	_, err := callWithContext(ctx, func() (struct{}, error) {
		<-release
		return struct{}{}, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("callWithContext did not return promptly after the deadline")
	}
}

func TestCallWithReleaseHandsOffLateResult(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	finish := make(chan struct{})
	released := make(chan int, 1)
	_, err := callWithRelease(ctx, func() (int, error) {
		<-finish
		return 7, nil
	}, func(v int) { released <- v })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want DeadlineExceeded", err)
	}

	close(finish)
	select {
	case v := <-released:
		if v != 7 {
			t.Errorf("released %d, want 7", v)
		}
	case <-time.After(time.Second):
		t.Fatal("late result was never released")
	}
}

func TestCallWithReleaseSkipsFailedLateCall(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	finish := make(chan struct{})
	done := make(chan struct{})
	released := make(chan int, 1)
	_, _ = callWithRelease(ctx, func() (int, error) {
		defer close(done)
		<-finish
		return 0, errors.New("connect failed")
	}, func(v int) { released <- v })

	close(finish)
	<-done
	select {
	case <-released:
		t.Error("release should not run for a failed call")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestCallWithReleaseKeepsTimelyResult(t *testing.T) {
	released := make(chan int, 1)
	got, err := callWithRelease(context.Background(), func() (int, error) {
		return 3, nil
	}, func(v int) { released <- v })
	if err != nil || got != 3 {
		t.Fatalf("callWithRelease() = %d, %v; want 3, nil", got, err)
	}
	select {
	case <-released:
		t.Error("release should not run when the caller got the result")
	default:
	}
}
