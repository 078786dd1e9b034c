package campaign

import "sync"

// DefaultPoolSize comfortably exceeds the 23-bot starter fleet
const DefaultPoolSize = 64

// Pool is a fixed set of execution slots, one per running bot
type Pool struct {
	size           int
	available      int
	mu             sync.Mutex
	onSlotsChanged func(available int) // Callback when slots change
}

// NewPool creates a pool with the given capacity
func NewPool(size int) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	return &Pool{
		size:      size,
		available: size,
	}
}

// SetOnSlotsChanged sets a callback to be invoked when slot availability changes
func (p *Pool) SetOnSlotsChanged(callback func(available int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onSlotsChanged = callback
}

// AcquireN claims n slots at once. It claims nothing and returns false when
// fewer than n are free.
func (p *Pool) AcquireN(n int) bool {
	p.mu.Lock()
	if n <= 0 || p.available < n {
		p.mu.Unlock()
		return false
	}
	p.available -= n
	callback := p.onSlotsChanged
	available := p.available
	p.mu.Unlock()

	// Notify outside of lock to avoid deadlock
	if callback != nil {
		callback(available)
	}
	return true
}

// Release returns one slot to the pool
func (p *Pool) Release() {
	p.mu.Lock()
	if p.available < p.size {
		p.available++
	}
	callback := p.onSlotsChanged
	available := p.available
	p.mu.Unlock()

	if callback != nil {
		callback(available)
	}
}

// Available returns the number of free slots
func (p *Pool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.available
}

// Size returns the pool capacity
func (p *Pool) Size() int {
	return p.size
}
