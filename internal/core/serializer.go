package core

import "context"

type call struct {
	fn   func() error
	done chan error
}

// Serializer funnels externally triggered operations into a single
// goroutine, realizing the host's total order: each operation runs to
// completion with no interleaving. The engine itself is not locked;
// this is its only entry point in a running service.
type Serializer struct {
	calls chan call
}

func NewSerializer(depth int) *Serializer {
	return &Serializer{calls: make(chan call, depth)}
}

// Run executes queued operations until the context is cancelled.
func (s *Serializer) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-s.calls:
			c.done <- c.fn()
		}
	}
}

// Do submits an operation and waits for it to complete.
func (s *Serializer) Do(ctx context.Context, fn func() error) error {
	c := call{fn: fn, done: make(chan error, 1)}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case s.calls <- c:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-c.done:
		return err
	}
}
