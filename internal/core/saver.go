package core

import (
	"context"
	"sync"

	"github.com/valter-silva-au/todo/pkg/models"
)

// saver writes snapshots on a background goroutine. Pending snapshots are
// coalesced: only the latest is written, so the store converges to its
// current state once mutations settle.
type saver struct {
	persist  Persister
	onResult func(error)

	mu      sync.Mutex
	pending []models.Task
	queued  uint64 // sequence number of the latest enqueued snapshot
	written uint64 // sequence number of the latest completed write
	lastErr error
	settled chan struct{}
	closed  bool

	wake    chan struct{}
	quit    chan struct{}
	stopped chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
}

func newSaver(p Persister, onResult func(error)) *saver {
	ctx, cancel := context.WithCancel(context.Background())
	sv := &saver{
		persist:  p,
		onResult: onResult,
		settled:  make(chan struct{}),
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		stopped:  make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	go sv.run()
	return sv
}

func (sv *saver) enqueue(snapshot []models.Task) {
	sv.mu.Lock()
	if sv.closed {
		sv.mu.Unlock()
		return
	}
	sv.pending = snapshot
	sv.queued++
	sv.mu.Unlock()

	select {
	case sv.wake <- struct{}{}:
	default:
	}
}

func (sv *saver) run() {
	defer close(sv.stopped)
	for {
		select {
		case <-sv.quit:
			return
		case <-sv.wake:
		}

		sv.mu.Lock()
		snapshot, seq := sv.pending, sv.queued
		sv.pending = nil
		sv.mu.Unlock()
		if snapshot == nil {
			continue
		}

		err := sv.persist.SaveAll(sv.ctx, snapshot)
		if sv.onResult != nil {
			sv.onResult(err)
		}

		sv.mu.Lock()
		sv.written = seq
		sv.lastErr = err
		close(sv.settled)
		sv.settled = make(chan struct{})
		sv.mu.Unlock()
	}
}

// flush blocks until every snapshot enqueued before the call has been
// written, and returns the result of the latest write.
func (sv *saver) flush(ctx context.Context) error {
	sv.mu.Lock()
	target := sv.queued
	sv.mu.Unlock()
	for {
		sv.mu.Lock()
		if sv.written >= target {
			err := sv.lastErr
			sv.mu.Unlock()
			return err
		}
		ch := sv.settled
		sv.mu.Unlock()

		select {
		case <-ch:
		case <-sv.stopped:
			return sv.lastError()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (sv *saver) lastError() error {
	sv.mu.Lock()
	defer sv.mu.Unlock()
	return sv.lastErr
}

func (sv *saver) close() error {
	err := sv.flush(context.Background())
	sv.mu.Lock()
	if sv.closed {
		sv.mu.Unlock()
		return err
	}
	sv.closed = true
	sv.mu.Unlock()
	close(sv.quit)
	<-sv.stopped
	sv.cancel()
	return err
}
