package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Session is the process-wide authentication state.
// Invariant: Authenticated is true if and only if User is non-nil.
type Session struct {
	User          *UserProfile
	Authenticated bool
}

// Clone returns a deep copy so callers never share the stored profile.
func (s Session) Clone() Session {
	if s.User == nil {
		return Session{}
	}
	u := *s.User
	return Session{User: &u, Authenticated: s.Authenticated}
}

// Consistent reports whether the Authenticated/User invariant holds.
func (s Session) Consistent() bool {
	return s.Authenticated == (s.User != nil)
}

// PersistedStateVersion is the current layout of PersistedAuthState.
const PersistedStateVersion = 1

// ErrMalformedState reports persisted bytes that cannot be restored.
var ErrMalformedState = errors.New("domain: malformed persisted auth state")

// PersistedAuthState is the serialized subset of Session kept in durable
// client storage.
type PersistedAuthState struct {
	Version       int          `json:"v"`
	User          *UserProfile `json:"user"`
	Authenticated bool         `json:"authenticated"`
}

// EncodeSession serializes s for storage.
func EncodeSession(s Session) ([]byte, error) {
	b, err := json.Marshal(PersistedAuthState{
		Version:       PersistedStateVersion,
		User:          s.User,
		Authenticated: s.Authenticated,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return b, nil
}

// DecodeSession restores a Session. Unknown versions and records that
// break the Authenticated/User invariant are rejected with ErrMalformedState.
func DecodeSession(b []byte) (Session, error) {
	var st PersistedAuthState
	if err := json.Unmarshal(b, &st); err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrMalformedState, err)
	}
	if st.Version != PersistedStateVersion {
		return Session{}, fmt.Errorf("%w: unsupported version %d", ErrMalformedState, st.Version)
	}

	s := Session{User: st.User, Authenticated: st.Authenticated}
	if !s.Consistent() {
		return Session{}, fmt.Errorf("%w: authenticated=%t with user present=%t", ErrMalformedState, st.Authenticated, st.User != nil)
	}
	return s, nil
}
