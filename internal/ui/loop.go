package ui

import (
	"context"
	"log/slog"
	"sync"
)

// Loop is the single execution context that every state mutation runs on.
// Posted funcs run one at a time, in the order they were posted.
type Loop struct {
	tasks chan func()

	mutex   sync.RWMutex
	stopped bool
	done    chan struct{}
}

// NewLoop creates a loop whose queue holds up to buffer pending funcs
func NewLoop(buffer int) *Loop {
	if buffer <= 0 {
		buffer = 64
	}
	return &Loop{
		tasks: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
}

// Post queues fn. It reports false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	if l.stopped {
		return false
	}
	select {
	case l.tasks <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Run executes posted funcs until ctx is cancelled, then drains what is already queued
func (l *Loop) Run(ctx context.Context) error {
	slog.Debug("UI loop started")
	for {
		select {
		case fn := <-l.tasks:
			l.run(fn)
		case <-ctx.Done():
			close(l.done)
			l.mutex.Lock()
			l.stopped = true
			l.mutex.Unlock()
			l.drain()
			slog.Debug("UI loop stopped")
			return nil
		}
	}
}

func (l *Loop) drain() {
	for {
		select {
		case fn := <-l.tasks:
			l.run(fn)
		default:
			return
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("UI task panicked", "panic", r)
		}
	}()
	fn()
}
