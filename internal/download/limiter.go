package download

import "context"

// Limiter is a counted semaphore bounding concurrent fetches to a fixed
// width. Every
// acquisition is released in a guaranteed-exit finalizer by the caller.
type Limiter struct {
	tokens chan struct{}
}

// NewLimiter returns a Limiter of the given width. Width is clamped to a
// minimum of 1.
func NewLimiter(width int) *Limiter {
	if width < 1 {
		width = 1
	}
	return &Limiter{tokens: make(chan struct{}, width)}
}

// Acquire blocks until a slot is available or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.tokens <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot to the limiter.
func (l *Limiter) Release() {
	<-l.tokens
}
