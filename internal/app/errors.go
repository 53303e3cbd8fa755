package app

import (
	"errors"
	"fmt"
)

var (
	ErrAuth           = errors.New("authentication required")
	ErrNotParticipant = errors.New("conversation not found")
	ErrNotInRoom      = errors.New("not joined to conversation")
	ErrNotCallParty   = errors.New("not a participant of this call")
	ErrPeerOffline    = errors.New("user is offline")
	ErrUnknownCall    = errors.New("call not found")
	ErrCallNotRinging = errors.New("call is no longer ringing")
	ErrCallExists     = errors.New("call already exists")
	ErrPersistence    = errors.New("delivery failed")
	ErrBadRequest     = errors.New("bad payload")
)

// Kind groups errors by who must hear about them and how.
type Kind int

const (
	KindInternal Kind = iota
	KindAuth
	KindMembership
	KindOfflinePeer
	KindPersistence
	KindUnknownCall
	KindBadRequest
)

// Code is the stable identifier sent to clients.
func (k Kind) Code() string {
	switch k {
	case KindAuth:
		return "auth_error"
	case KindMembership:
		return "membership_error"
	case KindOfflinePeer:
		return "offline_peer"
	case KindPersistence:
		return "persistence_error"
	case KindUnknownCall:
		return "unknown_call"
	case KindBadRequest:
		return "bad_request"
	default:
		return "internal_error"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// persistenceError keeps the store cause for logs while clients only
// ever see ErrPersistence.
func persistenceError(op string, cause error) *Error {
	return newError(KindPersistence, op, fmt.Errorf("%w: %w", ErrPersistence, cause))
}

func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// PublicMessage is the text safe to show the acting client.
func PublicMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "internal error"
	}
	if e.Kind == KindPersistence {
		return ErrPersistence.Error()
	}
	for _, s := range []error{
		ErrAuth, ErrNotParticipant, ErrNotInRoom, ErrNotCallParty, ErrPeerOffline,
		ErrUnknownCall, ErrCallNotRinging, ErrCallExists, ErrBadRequest,
	} {
		if errors.Is(e.Err, s) {
			return s.Error()
		}
	}
	return e.Err.Error()
}
