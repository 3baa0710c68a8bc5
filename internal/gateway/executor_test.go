package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jerhadf/voice-computer-use/internal/types"
)

func TestExecutorConcurrency(t *testing.T) {
	exec := NewExecutor(2, nil)
	exec.Start(context.Background())
	defer exec.Stop()

	var running int32
	var maxSeen int32
	var wg sync.WaitGroup

	for i := 0; i < 5; i++ {
		wg.Add(1)
		err := exec.Schedule(types.SessionID(fmt.Sprintf("session-%d", i)), func(context.Context) {
			defer wg.Done()
			current := atomic.AddInt32(&running, 1)
			for {
				old := atomic.LoadInt32(&maxSeen)
				if current <= old || atomic.CompareAndSwapInt32(&maxSeen, old, current) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			atomic.AddInt32(&running, -1)
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()

	if m := atomic.LoadInt32(&maxSeen); m > 2 {
		t.Errorf("expected max 2 concurrent, saw %d", m)
	}
}

func TestExecutorLaneIsFIFO(t *testing.T) {
	exec := NewExecutor(4, nil)
	exec.Start(context.Background())
	defer exec.Stop()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		if err := exec.Schedule("s", func(context.Context) {
			defer wg.Done()
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()

	for i, v := range order {
		if v != i {
			t.Fatalf("expected FIFO order, got %v", order)
		}
	}
}

func TestExecutorLaneFull(t *testing.T) {
	exec := NewExecutor(1, nil)
	exec.Start(context.Background())
	defer exec.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	if err := exec.Schedule("s", func(context.Context) {
		close(started)
		<-release
	}); err != nil {
		t.Fatal(err)
	}
	<-started

	for i := 0; i < laneBuffer; i++ {
		if err := exec.Schedule("s", func(context.Context) {}); err != nil {
			t.Fatalf("task %d: %v", i, err)
		}
	}
	if err := exec.Schedule("s", func(context.Context) {}); !errors.Is(err, ErrLaneFull) {
		t.Errorf("expected ErrLaneFull, got %v", err)
	}
	close(release)
}

func TestExecutorStopped(t *testing.T) {
	exec := NewExecutor(1, nil)
	if err := exec.Schedule("s", func(context.Context) {}); !errors.Is(err, ErrExecutorStopped) {
		t.Errorf("expected ErrExecutorStopped before Start, got %v", err)
	}

	exec.Start(context.Background())
	exec.Stop()
	if err := exec.Schedule("s", func(context.Context) {}); !errors.Is(err, ErrExecutorStopped) {
		t.Errorf("expected ErrExecutorStopped after Stop, got %v", err)
	}
}

func TestExecutorRejectsAfterContextCancel(t *testing.T) {
	exec := NewExecutor(1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	exec.Start(ctx)
	defer exec.Stop()

	cancel()
	if err := exec.Schedule("s", func(context.Context) {}); !errors.Is(err, ErrExecutorStopped) {
		t.Errorf("expected ErrExecutorStopped once the context is cancelled, got %v", err)
	}
}

func TestExecutorRecoversPanic(t *testing.T) {
	exec := NewExecutor(1, nil)
	exec.Start(context.Background())
	defer exec.Stop()

	done := make(chan struct{})
	_ = exec.Schedule("s", func(context.Context) { panic("boom") })
	_ = exec.Schedule("s", func(context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lane did not survive a panicking task")
	}
}

func TestExecutorWaitIdle(t *testing.T) {
	exec := NewExecutor(1, nil)
	exec.Start(context.Background())
	defer exec.Stop()

	_ = exec.Schedule("s", func(context.Context) { time.Sleep(50 * time.Millisecond) })
	time.Sleep(10 * time.Millisecond)
	if !exec.WaitIdle(2 * time.Second) {
		t.Error("expected executor to become idle")
	}
}
