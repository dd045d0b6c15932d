// Package session tracks which narration request is currently authoritative.
//
// There is no queue of sessions and no cancellation signalling: starting a
// new session simply replaces the token, and every in-flight generation task
// is expected to call Checkpoint at defined points and abandon its work when
// its token no longer matches.
package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrSuperseded reports that a task's session token is no longer current.
// It is a cancellation outcome, not a failure; callers swallow it.
var ErrSuperseded = errors.New("session superseded")

// State holds the current session token. The token is only ever replaced
// wholesale, so readers take a snapshot and never hold the lock across
// blocking work.
type State struct {
	mu    sync.Mutex
	token string
}

func New() *State {
	return &State{}
}

// Start makes token the current session, superseding any prior one.
func (s *State) Start(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Begin starts a fresh session with a generated token and returns it.
func (s *State) Begin() string {
	token := uuid.NewString()
	s.Start(token)
	return token
}

// Current returns the current session token, or "" if none is active.
func (s *State) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Clear ends the current session without starting a new one.
func (s *State) Clear() {
	s.mu.Lock()
	s.token = ""
	s.mu.Unlock()
}

// Live reports whether token is still the current session.
func (s *State) Live(token string) bool {
	return token != "" && s.Current() == token
}

// Checkpoint is the liveness test generation tasks call before expensive
// work, after acquiring the engine, and immediately before publishing a
// result. It returns ErrSuperseded once the token has been replaced.
func (s *State) Checkpoint(token string) error {
	if !s.Live(token) {
		return ErrSuperseded
	}
	return nil
}
