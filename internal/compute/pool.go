// Package compute runs primality checks on a fixed set of dedicated worker
// goroutines, fed from one shared ingress queue.
package compute

import (
	"context"
	"errors"
	"primetime/internal/logger"
	"primetime/internal/types"
	"sync"
)

// ErrPoolClosed is returned by Submit once Close has been called.
var ErrPoolClosed = errors.New("compute pool closed")

// Checker answers a single primality query. It may be slow; the pool never
// interrupts it.
type Checker interface {
	IsPrime(value int64) bool
}

// Pool owns a Checker and serves requests from connection handlers.
//
// With a single worker one slow fallback check delays every request queued
// behind it, from every connection. Widen the pool to bound that stall.
type Pool struct {
	checker  Checker
	workers  int
	requests chan types.PrimalityRequest

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewPool creates a pool with the given number of workers and ingress queue
// capacity. Workers do not run until Start.
func NewPool(checker Checker, workers, queueDepth int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueDepth < 0 {
		queueDepth = 0
	}
	return &Pool{
		checker:  checker,
		workers:  workers,
		requests: make(chan types.PrimalityRequest, queueDepth),
		done:     make(chan struct{}),
	}
}

// Start launches the workers.
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
	logger.Info("Compute pool started with %d worker(s), queue depth %d", p.workers, cap(p.requests))
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// QueueDepth returns the number of requests waiting for a worker.
func (p *Pool) QueueDepth() int {
	return len(p.requests)
}

// Submit enqueues value and waits for its answer. If ctx ends first the
// request is abandoned: a worker that already dequeued it still finishes the
// check and its reply is discarded.
func (p *Pool) Submit(ctx context.Context, value int64) (bool, error) {
	reply := make(chan bool, 1)
	req := types.PrimalityRequest{Value: value, Reply: reply}

	select {
	case <-p.done:
		return false, ErrPoolClosed
	default:
	}

	select {
	case p.requests <- req:
	case <-ctx.Done():
		return false, ctx.Err()
	case <-p.done:
		return false, ErrPoolClosed
	}

	select {
	case prime := <-reply:
		return prime, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-p.done:
		// A worker may have answered just before shutdown.
		select {
		case prime := <-reply:
			return prime, nil
		default:
			return false, ErrPoolClosed
		}
	}
}

// Close stops the workers after their current request and waits for them.
// Requests still queued are not served; their submitters get ErrPoolClosed.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	p.wg.Wait()
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			logger.Debug("Compute worker %d stopping", id)
			return
		case req := <-p.requests:
			prime := p.checker.IsPrime(req.Value)
			if !req.Deliver(prime) {
				logger.Debug("Compute worker %d: reply for %d dropped", id, req.Value)
			}
		}
	}
}
