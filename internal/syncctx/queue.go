// Package syncctx provides the privileged synchronization context: a single
// worker goroutine that owns every mutation of the object graph which must
// also touch the key store.
//
// Work enqueued with Perform receives a Privileged token. Functions that are
// only legal on the sync context take that token as a parameter, so calling
// them from anywhere else does not compile.
package syncctx

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Perform after Close.
var ErrClosed = errors.New("syncctx: queue closed")

// Privileged proves the holder runs on the sync context. The zero value is
// not a valid proof.
type Privileged struct {
	q *Queue
}

// MustBeValid panics if p was not handed out by a Queue.
func (p Privileged) MustBeValid() {
	if p.q == nil {
		panic("syncctx: operation requires the privileged sync context")
	}
}

type ctxKey struct{}

type outcome struct {
	err    error
	panicV any
}

type job struct {
	ctx    context.Context
	fn     func(context.Context, Privileged) error
	result chan outcome
}

// Queue serializes privileged work onto one goroutine.
type Queue struct {
	jobs    chan job
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// NewQueue starts the worker goroutine. Call Close to stop it.
func NewQueue() *Queue {
	q := &Queue{
		jobs:    make(chan job),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) run() {
	defer close(q.stopped)
	for {
		select {
		case j := <-q.jobs:
			j.result <- q.exec(j)
		case <-q.done:
			return
		}
	}
}

func (q *Queue) exec(j job) (o outcome) {
	defer func() {
		if r := recover(); r != nil {
			o.panicV = r
		}
	}()
	ctx := context.WithValue(j.ctx, ctxKey{}, q)
	o.err = j.fn(ctx, Privileged{q: q})
	return o
}

// Perform runs fn on the sync context and waits for it. When ctx already
// belongs to this queue's worker, fn runs inline. A panic inside fn is
// re-raised in the caller.
func (q *Queue) Perform(ctx context.Context, fn func(ctx context.Context, p Privileged) error) error {
	if owner, ok := ctx.Value(ctxKey{}).(*Queue); ok && owner == q {
		return fn(ctx, Privileged{q: q})
	}

	j := job{ctx: ctx, fn: fn, result: make(chan outcome, 1)}
	select {
	case q.jobs <- j:
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	o := <-j.result
	if o.panicV != nil {
		panic(fmt.Sprintf("syncctx: %v", o.panicV))
	}
	return o.err
}

// OnQueue reports whether ctx was handed out by this queue's worker.
func (q *Queue) OnQueue(ctx context.Context) bool {
	owner, ok := ctx.Value(ctxKey{}).(*Queue)
	return ok && owner == q
}

// Close stops the worker after the job in flight completes.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
	<-q.stopped
}
