package worker

import "sync"

// Pool runs functions with bounded parallelism. A buffered channel acts
// as the slot semaphore; the wait group tracks in-flight work so the
// owner can drain before shutting down.
type Pool struct {
	slots chan struct{}
	wg    sync.WaitGroup
}

// NewPool creates a pool with the given number of slots.
func NewPool(size int) *Pool {
	return &Pool{slots: make(chan struct{}, size)}
}

// Submit blocks until a slot is free, then runs fn on its own goroutine.
func (p *Pool) Submit(fn func()) {
	p.slots <- struct{}{}
	p.wg.Add(1)
	go func() {
		defer func() {
			<-p.slots
			p.wg.Done()
		}()
		fn()
	}()
}

// Wait blocks until every submitted function has returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// InFlight returns how many functions are currently running.
func (p *Pool) InFlight() int {
	return len(p.slots)
}
