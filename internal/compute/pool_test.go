package compute

import (
	"context"
	"errors"
	"fmt"
	"primetime/internal/oracle"
	"primetime/internal/storage"
	"sync"
	"testing"
	"time"
)

type checkerFunc func(int64) bool

func (f checkerFunc) IsPrime(v int64) bool { return f(v) }

// gatedChecker blocks on slow until released and answers everything else
// immediately.
type gatedChecker struct {
	slow    int64
	started chan struct{}
	release chan struct{}
}

func newGatedChecker(slow int64) *gatedChecker {
	return &gatedChecker{
		slow:    slow,
		started: make(chan struct{}, 16),
		release: make(chan struct{}),
	}
}

func (g *gatedChecker) IsPrime(v int64) bool {
	if v == g.slow {
		g.started <- struct{}{}
		<-g.release
	}
	return oracle.TrialDivision(v)
}

func TestPool_Answers(t *testing.T) {
	idx, err := storage.BuildIndex(1000)
	if err != nil {
		t.Fatalf("BuildIndex failed: %v", err)
	}
	p := NewPool(oracle.New(idx, nil), 2, 8)
	p.Start()
	defer p.Close()

	cases := map[int64]bool{7: true, 8: false, -5: false, 997: true, 1009: true, 1001: false}
	for v, want := range cases {
		got, err := p.Submit(context.Background(), v)
		if err != nil {
			t.Fatalf("Submit(%d) failed: %v", v, err)
		}
		if got != want {
			t.Errorf("Submit(%d) = %v, want %v", v, got, want)
		}
	}
}

func TestPool_ConcurrentSubmitters(t *testing.T) {
	idx, err := storage.BuildIndex(10_000)
	if err != nil {
		t.Fatalf("BuildIndex failed: %v", err)
	}
	p := NewPool(oracle.New(idx, nil), 1, 4)
	p.Start()
	defer p.Close()

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for g := 0; g < 64; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				v := int64(g*157 + i*31)
				got, err := p.Submit(context.Background(), v)
				if err != nil {
					errs <- err
					return
				}
				if want := oracle.TrialDivision(v); got != want {
					errs <- fmt.Errorf("submitter %d: %d answered %v, want %v", g, v, got, want)
					return
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestPool_SingleWorkerStallsBehindSlowCheck(t *testing.T) {
	g := newGatedChecker(1_000_003)
	p := NewPool(g, 1, 8)
	p.Start()
	defer p.Close()

	slowDone := make(chan bool, 1)
	go func() {
		prime, _ := p.Submit(context.Background(), g.slow)
		slowDone <- prime
	}()
	<-g.started

	// The only worker is busy, so a trivial query cannot be answered.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := p.Submit(ctx, 7); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected the fast query to stall, got err=%v", err)
	}

	close(g.release)
	if !<-slowDone {
		t.Error("1000003 should be prime")
	}
	prime, err := p.Submit(context.Background(), 7)
	if err != nil || !prime {
		t.Errorf("After the stall: prime=%v err=%v", prime, err)
	}
}

func TestPool_WiderPoolAvoidsStall(t *testing.T) {
	g := newGatedChecker(1_000_003)
	p := NewPool(g, 2, 8)
	p.Start()
	defer p.Close()
	defer close(g.release)

	go p.Submit(context.Background(), g.slow)
	<-g.started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	prime, err := p.Submit(ctx, 7)
	if err != nil {
		t.Fatalf("Second worker should answer while the first is busy: %v", err)
	}
	if !prime {
		t.Error("7 should be prime")
	}
}

func TestPool_AbandonedReplyDoesNotBlockWorker(t *testing.T) {
	g := newGatedChecker(1_000_003)
	p := NewPool(g, 1, 8)
	p.Start()
	defer p.Close()

	ctx, cancel := context.WithCancel(context.Background())
	abandoned := make(chan error, 1)
	go func() {
		_, err := p.Submit(ctx, g.slow)
		abandoned <- err
	}()
	<-g.started

	// The submitter leaves while its check is running.
	cancel()
	if err := <-abandoned; !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	close(g.release)

	prime, err := p.Submit(context.Background(), 13)
	if err != nil || !prime {
		t.Errorf("Worker should keep serving after a dropped reply: prime=%v err=%v", prime, err)
	}
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := NewPool(checkerFunc(func(int64) bool { return true }), 1, 1)
	p.Start()
	p.Close()

	if _, err := p.Submit(context.Background(), 7); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed, got %v", err)
	}
	// Close is idempotent.
	p.Close()
}

func TestPool_Defaults(t *testing.T) {
	p := NewPool(checkerFunc(func(int64) bool { return false }), 0, -1)
	if p.Workers() != 1 {
		t.Errorf("Expected worker count clamped to 1, got %d", p.Workers())
	}
	if p.QueueDepth() != 0 {
		t.Errorf("Expected empty queue, got %d", p.QueueDepth())
	}
}
