// Package session defines the pluggable server-side session capability and a
// signed-cookie implementation of it.
package session

import (
	"context"
	"maps"

	"github.com/gustweb/gust/httpheader"
	"github.com/gustweb/gust/proto"
)

// Session is a mutable bag of values scoped to one client. Mutations flip
// the Modified flag, which the application uses to decide whether the
// session needs saving.
type Session struct {
	ID     string
	values map[string]any

	new      bool
	modified bool
	null     bool
}

// NewSession creates an empty, fresh session with the given ID.
func NewSession(id string) *Session {
	return &Session{
		ID:     id,
		values: make(map[string]any),
		new:    true,
	}
}

// NewNull creates a null session: usable for reads but representing
// "nothing worth persisting".
func NewNull() *Session {
	s := NewSession("")
	s.null = true
	return s
}

// Get returns the value stored under key, or nil.
func (s *Session) Get(key string) any {
	return s.values[key]
}

// Set stores value under key and marks the session modified.
func (s *Session) Set(key string, value any) {
	s.values[key] = value
	s.modified = true
}

// Delete removes key and marks the session modified if it was present.
func (s *Session) Delete(key string) {
	if _, ok := s.values[key]; !ok {
		return
	}
	delete(s.values, key)
	s.modified = true
}

// Len returns the number of stored values.
func (s *Session) Len() int {
	return len(s.values)
}

// Values returns a copy of the stored values.
func (s *Session) Values() map[string]any {
	return maps.Clone(s.values)
}

// New reports whether the session was created for this exchange rather than
// loaded from a cookie.
func (s *Session) New() bool {
	return s.new
}

// Modified reports whether the session changed since it was opened.
func (s *Session) Modified() bool {
	return s.modified
}

// Interface is the pluggable session capability: open a session for an
// incoming scope, save one into outgoing response headers, and recognize
// null sessions.
//
// Open returns (nil, nil) when the interface cannot produce sessions at all,
// for example when no secret key is configured. Callers treat that as a
// configuration error.
type Interface interface {
	Open(ctx context.Context, scope *proto.Scope) (*Session, error)
	Save(ctx context.Context, s *Session, headers *httpheader.Headers) error
	IsNull(s *Session) bool
}
