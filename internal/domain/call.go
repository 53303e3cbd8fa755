package domain

import (
	"fmt"
	"time"
)

type CallID string

type CallKind string

const (
	CallAudio CallKind = "audio"
	CallVideo CallKind = "video"
)

func (k CallKind) Valid() bool {
	return k == CallAudio || k == CallVideo
}

// Label is the human form used in call history messages.
func (k CallKind) Label() string {
	if k == CallVideo {
		return "Video"
	}
	return "Audio"
}

type CallState int

const (
	CallRinging CallState = iota + 1
	CallOngoing
)

func (s CallState) String() string {
	switch s {
	case CallRinging:
		return "ringing"
	case CallOngoing:
		return "ongoing"
	default:
		return "idle"
	}
}

// CallStatus is the outcome stored with a call record.
type CallStatus string

const (
	CallAnswered CallStatus = "answered"
	CallMissed   CallStatus = "missed"
	CallDeclined CallStatus = "declined"
)

// Call is one in-flight call between two identities.
type Call struct {
	ID        CallID
	Caller    UserID
	Callee    UserID
	Kind      CallKind
	State     CallState
	CreatedAt time.Time
	StartedAt time.Time // zero until the callee accepts
}

// NewCallID derives the id from both parties and the creation time.
func NewCallID(caller, callee UserID, at time.Time) CallID {
	return CallID(fmt.Sprintf("%s-%s-%d", caller, callee, at.UnixNano()))
}

func (c *Call) Involves(id UserID) bool {
	return c.Caller == id || c.Callee == id
}

// Other returns the peer of id, or false if id is not on the call.
func (c *Call) Other(id UserID) (UserID, bool) {
	switch id {
	case c.Caller:
		return c.Callee, true
	case c.Callee:
		return c.Caller, true
	}
	return "", false
}

// Duration is zero for calls that never reached CallOngoing.
func (c *Call) Duration(now time.Time) time.Duration {
	if c.State != CallOngoing || c.StartedAt.IsZero() || now.Before(c.StartedAt) {
		return 0
	}
	return now.Sub(c.StartedAt)
}

// CallRecord is the audit entry persisted on every terminal transition.
type CallRecord struct {
	Caller          UserID
	Callee          UserID
	Kind            CallKind
	DurationSeconds int
	Status          CallStatus
}

func (c *Call) Record(status CallStatus, now time.Time) CallRecord {
	var secs int
	if status == CallAnswered {
		secs = int(c.Duration(now) / time.Second)
	}
	return CallRecord{
		Caller:          c.Caller,
		Callee:          c.Callee,
		Kind:            c.Kind,
		DurationSeconds: secs,
		Status:          status,
	}
}

// Summary is the content of the call message shown in the conversation history.
func (r CallRecord) Summary() string {
	return fmt.Sprintf("%s call - %s", r.Kind.Label(), r.Status)
}
