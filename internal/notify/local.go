package notify

import "sync"

// Local is the same-process transport binding: published signals are handed
// straight to the handler on a buffered channel. When the buffer is full the
// signal is dropped — at most once, never queued indefinitely.
type Local struct {
	ch      chan Signal
	stopCh  chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewLocal creates the in-process transport and starts its delivery loop.
func NewLocal(h Handler) *Local {
	l := &Local{
		ch:      make(chan Signal, 16),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go func() {
		defer close(l.stopped)
		for {
			select {
			case <-l.stopCh:
				return
			case sig := <-l.ch:
				if h != nil {
					h(sig)
				}
			}
		}
	}()
	return l
}

// Publish delivers sig to the handler, dropping it when the buffer is full.
func (l *Local) Publish(sig Signal) error {
	select {
	case l.ch <- sig:
	case <-l.stopCh:
	default:
	}
	return nil
}

// Close stops the delivery loop.
func (l *Local) Close() error {
	l.once.Do(func() { close(l.stopCh) })
	<-l.stopped
	return nil
}
