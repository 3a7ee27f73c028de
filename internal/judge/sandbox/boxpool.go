package sandbox

import (
	"context"
	"fmt"
	"sync"

	appErr "judgebox/pkg/errors"
)

// BoxPool hands out isolate box ids with exclusive checkout.
// A live session owns its id until Return.
type BoxPool struct {
	slots chan int

	mu  sync.Mutex
	out map[int]struct{}
}

// NewBoxPool creates a pool over ids [first, first+size).
func NewBoxPool(first, size int) *BoxPool {
	if size <= 0 {
		size = 1
	}
	p := &BoxPool{
		slots: make(chan int, size),
		out:   make(map[int]struct{}, size),
	}
	for i := 0; i < size; i++ {
		p.slots <- first + i
	}
	return p
}

// Checkout blocks until a box id is free or ctx is done.
func (p *BoxPool) Checkout(ctx context.Context) (int, error) {
	select {
	case <-ctx.Done():
		return 0, appErr.Wrapf(ctx.Err(), appErr.SandboxAcquireFailed, "wait for box slot: %v", ctx.Err())
	case id := <-p.slots:
		p.mu.Lock()
		p.out[id] = struct{}{}
		p.mu.Unlock()
		return id, nil
	}
}

// Return gives id back. Returning an id that is not checked out is an error and changes nothing.
func (p *BoxPool) Return(id int) error {
	p.mu.Lock()
	if _, ok := p.out[id]; !ok {
		p.mu.Unlock()
		return fmt.Errorf("box %d is not checked out", id)
	}
	delete(p.out, id)
	p.mu.Unlock()
	p.slots <- id
	return nil
}

// Size is the total number of slots.
func (p *BoxPool) Size() int {
	return cap(p.slots)
}

// InUse is the number of checked out slots.
func (p *BoxPool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.out)
}
