package app

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/domain"
	"github.com/dkeye/realm/internal/metrics"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRingTimeout    = 30 * time.Second
	defaultCleanupTimeout = 5 * time.Second

	ReasonDisconnected = "disconnected"
)

type incomingCall struct {
	CallID   domain.CallID   `json:"callId"`
	CallType domain.CallKind `json:"callType"`
	Signal   json.RawMessage `json:"signal,omitempty"`
	Caller   domain.Profile  `json:"caller"`
}

type callAccepted struct {
	CallID   domain.CallID   `json:"callId"`
	Signal   json.RawMessage `json:"signal,omitempty"`
	Accepter domain.Profile  `json:"accepter"`
}

type callRejected struct {
	CallID domain.CallID `json:"callId"`
	Reason string        `json:"reason"`
}

type callEnded struct {
	CallID domain.CallID `json:"callId"`
	Reason string        `json:"reason,omitempty"`
}

type callMissed struct {
	CallID domain.CallID `json:"callId"`
}

type iceCandidate struct {
	Candidate json.RawMessage `json:"candidate"`
	SenderID  domain.UserID   `json:"senderId"`
}

type activeCall struct {
	call  domain.Call
	timer *time.Timer
}

// CallSignaling owns the active-call table. Every transition takes the
// table lock, so for one call id the first transition to observe an entry
// wins and later ones see it gone or changed. Signaling payloads are
// relayed as opaque JSON.
//
// Terminal transitions remove the entry under the lock and then, outside
// it, relay the live event before persisting the call record.
type CallSignaling struct {
	Registry *Registry
	Records  core.CallRecordStore
	Out      *Dispatcher

	// RingTimeout arms a server-side timer per ringing call; zero disables it.
	RingTimeout    time.Duration
	CleanupTimeout time.Duration
	Now            func() time.Time

	mu    sync.Mutex
	calls map[domain.CallID]*activeCall
}

func NewCallSignaling(reg *Registry, records core.CallRecordStore, out *Dispatcher, ringTimeout time.Duration) *CallSignaling {
	return &CallSignaling{
		Registry:       reg,
		Records:        records,
		Out:            out,
		RingTimeout:    ringTimeout,
		CleanupTimeout: defaultCleanupTimeout,
		Now:            time.Now,
		calls:          make(map[domain.CallID]*activeCall),
	}
}

func (s *CallSignaling) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Initiate creates a ringing call and rings the callee. An offline callee
// leaves the table untouched.
func (s *CallSignaling) Initiate(
	ctx context.Context,
	caller core.MemberSession,
	callee domain.UserID,
	kind domain.CallKind,
	signal json.RawMessage,
) (domain.CallID, error) {
	const op = "call-initiate"
	if !kind.Valid() || callee == "" || callee == caller.Identity() {
		return "", newError(KindBadRequest, op, ErrBadRequest)
	}
	calleeSess, ok := s.Registry.Lookup(callee)
	if !ok {
		return "", newError(KindOfflinePeer, op, ErrPeerOffline)
	}

	now := s.now()
	call := domain.Call{
		ID:        domain.NewCallID(caller.Identity(), callee, now),
		Caller:    caller.Identity(),
		Callee:    callee,
		Kind:      kind,
		State:     domain.CallRinging,
		CreatedAt: now,
	}

	s.mu.Lock()
	if _, exists := s.calls[call.ID]; exists {
		s.mu.Unlock()
		return "", newError(KindBadRequest, op, ErrCallExists)
	}
	ac := &activeCall{call: call}
	if s.RingTimeout > 0 {
		id := call.ID
		ac.timer = time.AfterFunc(s.RingTimeout, func() { s.expire(id) })
	}
	s.calls[call.ID] = ac
	s.mu.Unlock()
	metrics.ActiveCalls.Inc()

	log.Info().Str("module", "app.calls").Str("call_id", string(call.ID)).Str("caller", string(call.Caller)).Str("callee", string(callee)).Str("kind", string(kind)).Msg("ringing")

	_ = s.Out.Send(calleeSess, core.EventIncomingCall, incomingCall{
		CallID:   call.ID,
		CallType: kind,
		Signal:   signal,
		Caller:   caller.Meta().User.Profile(),
	})
	return call.ID, nil
}

// Accept moves a ringing call to ongoing. Only the callee may accept.
func (s *CallSignaling) Accept(ctx context.Context, accepter core.MemberSession, id domain.CallID, signal json.RawMessage) error {
	const op = "call-accept"
	s.mu.Lock()
	ac, ok := s.calls[id]
	if !ok {
		s.mu.Unlock()
		return newError(KindUnknownCall, op, ErrUnknownCall)
	}
	if ac.call.Callee != accepter.Identity() {
		s.mu.Unlock()
		return newError(KindMembership, op, ErrNotCallParty)
	}
	if ac.call.State != domain.CallRinging {
		s.mu.Unlock()
		return newError(KindUnknownCall, op, ErrCallNotRinging)
	}
	ac.call.State = domain.CallOngoing
	ac.call.StartedAt = s.now()
	stopTimer(ac)
	call := ac.call
	s.mu.Unlock()

	log.Info().Str("module", "app.calls").Str("call_id", string(id)).Msg("accepted")
	s.sendTo(call.Caller, core.EventCallAccepted, callAccepted{
		CallID:   id,
		Signal:   signal,
		Accepter: accepter.Meta().User.Profile(),
	})
	return nil
}

// Reject declines a ringing call. Only the callee may reject.
func (s *CallSignaling) Reject(ctx context.Context, actor core.MemberSession, id domain.CallID, reason string) error {
	const op = "call-reject"
	if reason == "" {
		reason = string(domain.CallDeclined)
	}
	s.mu.Lock()
	ac, ok := s.calls[id]
	if !ok {
		s.mu.Unlock()
		return newError(KindUnknownCall, op, ErrUnknownCall)
	}
	if ac.call.Callee != actor.Identity() {
		s.mu.Unlock()
		return newError(KindMembership, op, ErrNotCallParty)
	}
	if ac.call.State != domain.CallRinging {
		s.mu.Unlock()
		return newError(KindUnknownCall, op, ErrCallNotRinging)
	}
	call := s.removeLocked(id)
	s.mu.Unlock()

	s.sendTo(call.Caller, core.EventCallRejected, callRejected{CallID: id, Reason: reason})

	status := domain.CallDeclined
	if reason == string(domain.CallMissed) {
		status = domain.CallMissed
	}
	s.finish(ctx, call, status, s.now())
	return nil
}

// End hangs up a call from either side. Unknown ids are ignored: the peer
// may have ended it first.
func (s *CallSignaling) End(ctx context.Context, actor core.MemberSession, id domain.CallID) error {
	const op = "call-end"
	s.mu.Lock()
	ac, ok := s.calls[id]
	if !ok {
		s.mu.Unlock()
		log.Debug().Str("module", "app.calls").Str("call_id", string(id)).Msg("end for unknown call")
		return nil
	}
	if !ac.call.Involves(actor.Identity()) {
		s.mu.Unlock()
		return newError(KindMembership, op, ErrNotCallParty)
	}
	call := s.removeLocked(id)
	now := s.now()
	s.mu.Unlock()

	other, _ := call.Other(actor.Identity())
	s.sendTo(other, core.EventCallEnded, callEnded{CallID: id})
	s.finish(ctx, call, domain.CallAnswered, now)
	return nil
}

// Timeout is the caller's no-answer signal. It only applies to calls still
// ringing; an accept that got there first wins.
func (s *CallSignaling) Timeout(ctx context.Context, actor core.MemberSession, id domain.CallID) error {
	s.mu.Lock()
	ac, ok := s.calls[id]
	if !ok || ac.call.State != domain.CallRinging {
		s.mu.Unlock()
		return nil
	}
	if ac.call.Caller != actor.Identity() {
		s.mu.Unlock()
		return newError(KindMembership, "call-timeout", ErrNotCallParty)
	}
	call := s.removeLocked(id)
	s.mu.Unlock()

	s.sendTo(call.Callee, core.EventCallMissed, callMissed{CallID: id})
	s.finish(ctx, call, domain.CallMissed, s.now())
	return nil
}

// expire is the server-side ring timer.
func (s *CallSignaling) expire(id domain.CallID) {
	s.mu.Lock()
	ac, ok := s.calls[id]
	if !ok || ac.call.State != domain.CallRinging {
		s.mu.Unlock()
		return
	}
	call := s.removeLocked(id)
	s.mu.Unlock()

	log.Info().Str("module", "app.calls").Str("call_id", string(id)).Msg("ring timeout")
	s.sendTo(call.Callee, core.EventCallMissed, callMissed{CallID: id})
	s.sendTo(call.Caller, core.EventCallMissed, callMissed{CallID: id})

	ctx, cancel := context.WithTimeout(context.Background(), s.cleanupTimeout())
	defer cancel()
	s.finish(ctx, call, domain.CallMissed, s.now())
}

// RelayICE forwards a candidate if the recipient is online and reports
// whether it did. Candidates for offline peers are dropped.
func (s *CallSignaling) RelayICE(sender core.MemberSession, recipient domain.UserID, candidate json.RawMessage) bool {
	sess, ok := s.Registry.Lookup(recipient)
	if !ok {
		log.Debug().Str("module", "app.calls").Str("recipient", string(recipient)).Msg("ice candidate for offline peer dropped")
		return false
	}
	return s.Out.Send(sess, core.EventICECandidate, iceCandidate{Candidate: candidate, SenderID: sender.Identity()}) == nil
}

// OnDisconnect ends every call involving id. Entries are removed under the
// lock first, then the snapshot is acted on.
func (s *CallSignaling) OnDisconnect(ctx context.Context, id domain.UserID) int {
	s.mu.Lock()
	var snapshot []domain.Call
	for cid, ac := range s.calls {
		if ac.call.Involves(id) {
			snapshot = append(snapshot, s.removeLockedEntry(cid, ac))
		}
	}
	now := s.now()
	s.mu.Unlock()

	for _, call := range snapshot {
		other, _ := call.Other(id)
		s.sendTo(other, core.EventCallEnded, callEnded{CallID: call.ID, Reason: ReasonDisconnected})

		status := domain.CallMissed
		if call.State == domain.CallOngoing {
			status = domain.CallAnswered
		}
		log.Info().Str("module", "app.calls").Str("call_id", string(call.ID)).Str("user", string(id)).Str("status", string(status)).Msg("ended by disconnect")
		s.finish(ctx, call, status, now)
	}
	return len(snapshot)
}

// Get returns a copy of the active call.
func (s *CallSignaling) Get(id domain.CallID) (domain.Call, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ac, ok := s.calls[id]
	if !ok {
		return domain.Call{}, false
	}
	return ac.call, true
}

func (s *CallSignaling) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *CallSignaling) removeLocked(id domain.CallID) domain.Call {
	return s.removeLockedEntry(id, s.calls[id])
}

func (s *CallSignaling) removeLockedEntry(id domain.CallID, ac *activeCall) domain.Call {
	stopTimer(ac)
	delete(s.calls, id)
	return ac.call
}

func stopTimer(ac *activeCall) {
	if ac.timer != nil {
		ac.timer.Stop()
		ac.timer = nil
	}
}

func (s *CallSignaling) sendTo(id domain.UserID, typ string, data any) {
	sess, ok := s.Registry.Lookup(id)
	if !ok {
		return
	}
	_ = s.Out.Send(sess, typ, data)
}

// finish records a terminal transition. Record failures are logged only:
// the live event has already gone out.
func (s *CallSignaling) finish(ctx context.Context, call domain.Call, status domain.CallStatus, now time.Time) {
	metrics.ActiveCalls.Dec()
	metrics.CallsTerminated.WithLabelValues(string(status)).Inc()
	if s.Records == nil {
		return
	}
	rec := call.Record(status, now)
	if err := s.Records.Save(ctx, rec); err != nil {
		metrics.CallRecordFailures.Inc()
		log.Error().Err(err).Str("module", "app.calls").Str("call_id", string(call.ID)).Str("status", string(status)).Msg("save call record")
	}
}

func (s *CallSignaling) cleanupTimeout() time.Duration {
	if s.CleanupTimeout > 0 {
		return s.CleanupTimeout
	}
	return defaultCleanupTimeout
}
