// Package singleflight coalesces concurrent calls for the same key into a
// single execution whose result is shared by every caller.
package singleflight

import (
	"context"
	"sync"
)

// Group manages a set of in-flight calls. The zero value is not usable; use New.
type Group struct {
	mu sync.Mutex
	m  map[string]*call
}

// call represents an active or completed function call.
type call struct {
	done chan struct{}
	val  interface{}
	err  error
}

// New creates a new singleflight Group.
func New() *Group {
	return &Group{
		m: make(map[string]*call),
	}
}

// Do executes and returns the result of fn, making sure that only one
// execution is in flight for a given key at a time. Duplicate callers wait
// for the original call and receive the same result.
//
// fn runs on its own goroutine with a context detached from the initiating
// caller, so a caller that stops waiting (its ctx expires or is cancelled)
// returns ctx.Err() without aborting the shared execution: remaining waiters
// still receive the result.
func (g *Group) Do(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	g.mu.Lock()
	if c, ok := g.m[key]; ok {
		g.mu.Unlock()
		return c.wait(ctx)
	}

	c := &call{done: make(chan struct{})}
	g.m[key] = c
	g.mu.Unlock()

	go func() {
		c.val, c.err = fn(context.WithoutCancel(ctx))
		close(c.done)

		g.mu.Lock()
		if g.m[key] == c {
			delete(g.m, key)
		}
		g.mu.Unlock()
	}()

	return c.wait(ctx)
}

// Forget removes the key from the group's map, allowing the next Do call for
// the same key to execute even if a previous call is still in progress.
func (g *Group) Forget(key string) {
	g.mu.Lock()
	delete(g.m, key)
	g.mu.Unlock()
}

func (c *call) wait(ctx context.Context) (interface{}, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
