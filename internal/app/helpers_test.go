package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/domain"
)

var errFull = errors.New("queue full")

// fakeConn records every frame queued on it.
type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
	full   bool
	onSend func(core.Frame)
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("closed")
	}
	if c.full {
		return errFull
	}
	if c.onSend != nil {
		c.onSend(f)
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) envelopes(t *testing.T) []core.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.Envelope, 0, len(c.frames))
	for _, f := range c.frames {
		env, err := core.Decode(f)
		if err != nil {
			t.Fatalf("bad frame %s: %v", f, err)
		}
		out = append(out, env)
	}
	return out
}

// events returns the payloads of every frame of type typ.
func (c *fakeConn) events(t *testing.T, typ string) []json.RawMessage {
	t.Helper()
	var out []json.RawMessage
	for _, env := range c.envelopes(t) {
		if env.Type == typ {
			out = append(out, env.Data)
		}
	}
	return out
}

func (c *fakeConn) count(t *testing.T, typ string) int {
	t.Helper()
	return len(c.events(t, typ))
}

// only decodes the single event of type typ into v.
func (c *fakeConn) only(t *testing.T, typ string, v any) {
	t.Helper()
	evs := c.events(t, typ)
	if len(evs) != 1 {
		t.Fatalf("want exactly one %s, got %d", typ, len(evs))
	}
	if v == nil {
		return
	}
	if err := json.Unmarshal(evs[0], v); err != nil {
		t.Fatalf("decode %s: %v", typ, err)
	}
}

var sidSeq atomic.Int64

func newSession(id domain.UserID) (core.MemberSession, *fakeConn) {
	conn := &fakeConn{}
	user := &domain.User{ID: id, FirstName: string(id)}
	sid := core.SessionID(fmt.Sprintf("%s-%d", id, sidSeq.Add(1)))
	return core.NewMemberSession(sid, domain.NewMember(user, time.Now()), conn), conn
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// waitFor polls cond until it holds or a second passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
