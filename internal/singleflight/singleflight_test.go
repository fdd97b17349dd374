package singleflight

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	g := New()
	if g == nil {
		t.Fatal("New() returned nil")
	}
	if g.m == nil {
		t.Error("New() did not initialize map")
	}
}

func TestDo(t *testing.T) {
	g := New()

	val, err := g.Do(context.Background(), "key1", func(context.Context) (interface{}, error) {
		return "hello", nil
	})

	if err != nil {
		t.Errorf("Do() returned error: %v", err)
	}
	if val != "hello" {
		t.Errorf("Do() returned %v, want hello", val)
	}
}

func TestDoError(t *testing.T) {
	g := New()
	expectedErr := errors.New("test error")

	val, err := g.Do(context.Background(), "key1", func(context.Context) (interface{}, error) {
		return nil, expectedErr
	})

	if err != expectedErr {
		t.Errorf("Do() returned error %v, want %v", err, expectedErr)
	}
	if val != nil {
		t.Errorf("Do() returned %v, want nil", val)
	}
}

func TestDoDuplicateCalls(t *testing.T) {
	g := New()

	var callCount int
	var mu sync.Mutex

	started := make(chan struct{})
	proceed := make(chan struct{})

	fn := func(context.Context) (interface{}, error) {
		mu.Lock()
		callCount++
		first := callCount == 1
		mu.Unlock()
		if first {
			close(started)
		}
		<-proceed
		return "result", nil
	}

	const numCalls = 10
	var wg sync.WaitGroup
	results := make([]interface{}, numCalls)
	errs := make([]error, numCalls)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], errs[0] = g.Do(context.Background(), "same-key", fn)
	}()
	<-started

	for i := 1; i < numCalls; i++ {
		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			results[index], errs[index] = g.Do(context.Background(), "same-key", fn)
		}(i)
	}

	// Give the duplicate callers time to reach the wait before releasing.
	time.Sleep(10 * time.Millisecond)
	close(proceed)
	wg.Wait()

	mu.Lock()
	if callCount != 1 {
		t.Errorf("Function called %d times, want 1", callCount)
	}
	mu.Unlock()

	for i, result := range results {
		if errs[i] != nil {
			t.Errorf("Call %d returned error: %v", i, errs[i])
		}
		if result != "result" {
			t.Errorf("Call %d returned %v, want result", i, result)
		}
	}
}

func TestDoCancelledWaiter(t *testing.T) {
	g := New()

	proceed := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_, _ = g.Do(context.Background(), "key1", func(context.Context) (interface{}, error) {
			close(started)
			<-proceed
			return "slow", nil
		})
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	val, err := g.Do(ctx, "key1", func(context.Context) (interface{}, error) {
		return "never", nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Do() with cancelled ctx returned error %v, want context.Canceled", err)
	}
	if val != nil {
		t.Errorf("Do() returned %v, want nil", val)
	}

	// The original call still completes for callers that kept waiting.
	close(proceed)
	val, err = g.Do(context.Background(), "key1", func(context.Context) (interface{}, error) {
		return "fresh", nil
	})
	if err != nil {
		t.Errorf("Do() after completion returned error: %v", err)
	}
	if val != "slow" && val != "fresh" {
		t.Errorf("Do() returned %v, want slow or fresh", val)
	}
}

func TestDoExecutionSurvivesOwnerCancel(t *testing.T) {
	g := New()

	started := make(chan struct{})
	proceed := make(chan struct{})
	ownerCtx, ownerCancel := context.WithCancel(context.Background())

	ownerDone := make(chan error, 1)
	go func() {
		_, err := g.Do(ownerCtx, "key1", func(context.Context) (interface{}, error) {
			close(started)
			<-proceed
			return "shared", nil
		})
		ownerDone <- err
	}()
	<-started

	waiterDone := make(chan interface{}, 1)
	go func() {
		val, _ := g.Do(context.Background(), "key1", func(context.Context) (interface{}, error) {
			return "never", nil
		})
		waiterDone <- val
	}()

	// Give the waiter time to join before the owner abandons the wait.
	time.Sleep(10 * time.Millisecond)
	ownerCancel()
	if err := <-ownerDone; !errors.Is(err, context.Canceled) {
		t.Errorf("owner Do() returned %v, want context.Canceled", err)
	}

	close(proceed)
	if val := <-waiterDone; val != "shared" {
		t.Errorf("waiter received %v, want shared", val)
	}
}

func TestForget(t *testing.T) {
	g := New()

	_, _ = g.Do(context.Background(), "key1", func(context.Context) (interface{}, error) {
		return "value", nil
	})

	g.Forget("key1")

	val, err := g.Do(context.Background(), "key1", func(context.Context) (interface{}, error) {
		return "new-value", nil
	})

	if err != nil {
		t.Errorf("Do() after Forget returned error: %v", err)
	}
	if val != "new-value" {
		t.Errorf("Do() after Forget returned %v, want new-value", val)
	}
}

func BenchmarkDo(b *testing.B) {
	g := New()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = g.Do(ctx, "bench-key", func(context.Context) (interface{}, error) {
			return "result", nil
		})
	}
}
