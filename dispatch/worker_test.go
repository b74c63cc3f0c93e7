package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorker_RunsInOrder(t *testing.T) {
	w := New()
	defer w.Close()

	ctx := context.Background()
	var got []int
	for i := 0; i < 10; i++ {
		if err := w.Do(ctx, func(context.Context) { got = append(got, i) }); err != nil {
			t.Fatalf("Do %d failed: %v", i, err)
		}
	}

	for i, v := range got {
		if v != i {
			t.Fatalf("job %d ran as %d", i, v)
		}
	}
}

func TestWorker_Serializes(t *testing.T) {
	w := New(WithQueueSize(4))
	defer w.Close()

	var (
		inFlight atomic.Int32
		maxSeen  atomic.Int32
		wg       sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = w.Do(context.Background(), func(context.Context) {
				n := inFlight.Add(1)
				if n > maxSeen.Load() {
					maxSeen.Store(n)
				}
				time.Sleep(100 * time.Microsecond)
				inFlight.Add(-1)
			})
		}()
	}
	wg.Wait()

	if maxSeen.Load() != 1 {
		t.Fatalf("expected one job at a time, saw %d", maxSeen.Load())
	}
}

func TestWorker_CancelledCallerDoesNotCancelJob(t *testing.T) {
	w := New()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	started := make(chan struct{})
	var finished atomic.Bool
	var jobCtxErr error

	errc := make(chan error, 1)
	go func() {
		errc <- w.Do(ctx, func(jobCtx context.Context) {
			close(started)
			<-release
			jobCtxErr = jobCtx.Err()
			finished.Store(true)
		})
	}()

	<-started
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if finished.Load() {
		t.Fatal("job should still be running")
	}

	close(release)
	// The next job runs only after the abandoned one completes.
	if err := w.Do(context.Background(), func(context.Context) {}); err != nil {
		t.Fatal(err)
	}
	if !finished.Load() {
		t.Fatal("abandoned job must run to completion")
	}
	if jobCtxErr != nil {
		t.Fatalf("job context should not be cancelled, got %v", jobCtxErr)
	}
}

func TestWorker_AlreadyCancelled(t *testing.T) {
	w := New()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ran := false
	if err := w.Do(ctx, func(context.Context) { ran = true }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	w.Close()
	if ran {
		t.Fatal("job submitted with a cancelled context must not run")
	}
}

func TestWorker_ContextValues(t *testing.T) {
	type key struct{}
	w := New()
	defer w.Close()

	var got any
	ctx := context.WithValue(context.Background(), key{}, "v")
	if err := w.Do(ctx, func(c context.Context) { got = c.Value(key{}) }); err != nil {
		t.Fatal(err)
	}
	if got != "v" {
		t.Fatalf("job context lost values, got %v", got)
	}
}

func TestWorker_Close(t *testing.T) {
	w := New()

	release := make(chan struct{})
	started := make(chan struct{})
	var done atomic.Bool
	go func() {
		_ = w.Do(context.Background(), func(context.Context) {
			close(started)
			<-release
			done.Store(true)
		})
	}()
	<-started

	closed := make(chan struct{})
	go func() {
		w.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned before the running job finished")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-closed
	if !done.Load() {
		t.Fatal("running job should have completed")
	}

	if err := w.Do(context.Background(), func(context.Context) {}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after Close, got %v", err)
	}
	w.Close()
}

func TestWorker_PanicIsReported(t *testing.T) {
	w := New()
	defer w.Close()

	err := w.Do(context.Background(), func(context.Context) { panic("driver crashed") })
	if err == nil {
		t.Fatal("expected an error from a panicking job")
	}

	if err := w.Do(context.Background(), func(context.Context) {}); err != nil {
		t.Fatalf("worker should survive a panicking job: %v", err)
	}
}
