// Package deferred provides Value, a chainable eventual result whose
// continuations run in the same turn of control when the value is already
// settled.
//
// Storage transactions stay open only while work is being issued against
// them, so a transaction body is written as a chain of Values rather than as
// goroutines and channels. A continuation registered on a settled Value runs
// before Next returns. A continuation registered on a pending Value runs on the
// goroutine that settles it, in registration order. Nothing in this package
// hands control to the scheduler. Await is the single exit back to ordinary
// blocking Go code and belongs at the outermost edge of a chain.
package deferred

import (
	"fmt"
	"sync"

	"github.com/pingcap/errors"
)

type state int

const (
	statePending state = iota
	stateFulfilled
	stateRejected
)

// Value is an eventual T or error. It moves from pending to fulfilled or
// rejected exactly once.
type Value[T any] struct {
	mu        sync.Mutex
	state     state
	result    T
	err       error
	callbacks []func()
}

// New returns a pending Value.
func New[T any]() *Value[T] {
	return &Value[T]{}
}

// Resolved returns a Value already fulfilled with v.
func Resolved[T any](v T) *Value[T] {
	return &Value[T]{state: stateFulfilled, result: v}
}

// Rejected returns a Value already rejected with err.
func Rejected[T any](err error) *Value[T] {
	return &Value[T]{state: stateRejected, err: normalize(err)}
}

// Void is the fulfilled value of steps that produce nothing.
func Void() *Value[struct{}] {
	return Resolved(struct{}{})
}

// Resolve fulfills a pending value. Calls after the first settlement are ignored.
func (p *Value[T]) Resolve(v T) {
	p.settle(stateFulfilled, v, nil)
}

// Reject rejects a pending value. Calls after the first settlement are ignored.
func (p *Value[T]) Reject(err error) {
	var zero T
	p.settle(stateRejected, zero, normalize(err))
}

// Settled reports whether the value is fulfilled or rejected.
func (p *Value[T]) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state != statePending
}

// Pending reports whether the value has not been settled yet.
func (p *Value[T]) Pending() bool {
	return !p.Settled()
}

// Catch registers a recovery step for a rejection. Fulfillment passes through.
func (p *Value[T]) Catch(onRejected func(error) *Value[T]) *Value[T] {
	return Next(p, Resolved[T], onRejected)
}

// Await blocks until the value settles and returns its outcome.
//
// Await must only be used at the outermost boundary. Calling it from inside a
// continuation of the same chain deadlocks.
func (p *Value[T]) Await() (T, error) {
	done := make(chan struct{})
	p.onSettled(func() { close(done) })
	<-done
	v, err, _ := p.peek()
	return v, err
}

func (p *Value[T]) settle(s state, v T, err error) {
	p.mu.Lock()
	if p.state != statePending {
		p.mu.Unlock()
		return
	}
	p.state, p.result, p.err = s, v, err
	callbacks := p.callbacks
	p.callbacks = nil
	p.mu.Unlock()

	for _, cb := range callbacks {
		cb()
	}
}

// onSettled runs fn now if p is settled, otherwise queues it.
func (p *Value[T]) onSettled(fn func()) {
	p.mu.Lock()
	if p.state == statePending {
		p.callbacks = append(p.callbacks, fn)
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	fn()
}

func (p *Value[T]) peek() (T, error, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.result, p.err, p.state != statePending
}

// Next chains continuations onto p. The returned Value adopts the outcome of
// whichever continuation runs. A nil onFulfilled yields U's zero value, a nil
// onRejected forwards the rejection, and a continuation returning nil counts as
// fulfilled with U's zero value. A panic inside a continuation rejects the
// returned Value.
func Next[T, U any](p *Value[T], onFulfilled func(T) *Value[U], onRejected func(error) *Value[U]) *Value[U] {
	out := New[U]()
	p.onSettled(func() {
		v, err, _ := p.peek()
		if err != nil {
			if onRejected == nil {
				out.Reject(err)
				return
			}
			adopt(out, invoke(func() *Value[U] { return onRejected(err) }))
			return
		}
		if onFulfilled == nil {
			var zero U
			out.Resolve(zero)
			return
		}
		adopt(out, invoke(func() *Value[U] { return onFulfilled(v) }))
	})
	return out
}

// Then maps a fulfilled value through a plain function.
func Then[T, U any](p *Value[T], fn func(T) (U, error)) *Value[U] {
	return Next(p, func(v T) *Value[U] {
		u, err := fn(v)
		if err != nil {
			return Rejected[U](err)
		}
		return Resolved(u)
	}, nil)
}

// Discard drops the fulfilled value, keeping only success or failure.
func Discard[T any](p *Value[T]) *Value[struct{}] {
	return Next(p, func(T) *Value[struct{}] { return Void() }, nil)
}

// Invoke calls fn, turning a panic into a rejected Value.
func Invoke[T any](fn func() *Value[T]) *Value[T] {
	return invoke(fn)
}

func invoke[T any](fn func() *Value[T]) (ret *Value[T]) {
	defer func() {
		if r := recover(); r != nil {
			ret = Rejected[T](RecoveredError(r))
		}
	}()
	ret = fn()
	if ret == nil {
		var zero T
		ret = Resolved(zero)
	}
	return ret
}

func adopt[T any](out, src *Value[T]) {
	src.onSettled(func() {
		v, err, _ := src.peek()
		if err != nil {
			out.Reject(err)
			return
		}
		out.Resolve(v)
	})
}

// PanicError is the rejection produced when a continuation panics with
// something that is not an error.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in deferred continuation: %v", e.Value)
}

// RecoveredError converts a recovered panic value into an error. Error values
// are returned unchanged.
func RecoveredError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &PanicError{Value: r}
}

var errNilRejection = errors.New("deferred: rejected with nil error")

func normalize(err error) error {
	if err == nil {
		return errNilRejection
	}
	return err
}
