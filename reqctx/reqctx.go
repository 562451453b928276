// Package reqctx holds the per-application request-context stack.
//
// The stack is an explicit object owned by the application and shared by
// reference with the test client, so concurrent applications stay isolated.
// It is a cooperative structure: strict push/pop nesting is the caller's
// responsibility, and unawaited concurrent exchanges on one stack race.
package reqctx

import (
	"sync"

	"github.com/gustweb/gust/proto"
	"github.com/gustweb/gust/session"
)

// Context is one "current request" frame: the scope it was built from, the
// request body, and the session opened for it.
type Context struct {
	Scope   *proto.Scope
	Body    []byte
	Session *session.Session

	preserved bool
	releases  []func()
	released  bool
}

// New creates a context frame for the given scope and body.
func New(scope *proto.Scope, body []byte) *Context {
	return &Context{Scope: scope, Body: body}
}

// MarkPreserved flags the context as outliving its pop, so teardown is
// deferred until an explicit Release.
func (c *Context) MarkPreserved() {
	c.preserved = true
}

// Preserved reports whether the context is flagged as preserved.
func (c *Context) Preserved() bool {
	return c.preserved
}

// OnRelease registers a teardown hook, run once by Release in reverse
// registration order.
func (c *Context) OnRelease(fn func()) {
	c.releases = append(c.releases, fn)
}

// Release runs the teardown hooks. Safe to call more than once.
func (c *Context) Release() {
	if c.released {
		return
	}
	c.released = true
	for i := len(c.releases) - 1; i >= 0; i-- {
		c.releases[i]()
	}
}

// Stack is a LIFO of request contexts. Pop does not release the popped
// frame; preserved frames are released later by whoever retained them.
type Stack struct {
	mu     sync.Mutex
	frames []*Context
}

// NewStack creates an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// Push places ctx on top of the stack. Pushing nil is a no-op, matching a
// restore of an empty "previous top".
func (s *Stack) Push(ctx *Context) {
	if ctx == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, ctx)
}

// Pop removes and returns the top frame, or nil when empty.
func (s *Stack) Pop() *Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil
	}
	top := s.frames[len(s.frames)-1]
	s.frames = s.frames[:len(s.frames)-1]
	return top
}

// Top returns the top frame without removing it, or nil when empty.
func (s *Stack) Top() *Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		return nil
	}
	return s.frames[len(s.frames)-1]
}

// Depth returns the number of frames on the stack.
func (s *Stack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}
