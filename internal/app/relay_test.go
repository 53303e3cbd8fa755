package app

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dkeye/realm/internal/adapters/memory"
	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/core/mocks"
	"github.com/dkeye/realm/internal/domain"
	"go.uber.org/mock/gomock"
)

type relayFixture struct {
	store *memory.Store
	relay *MessageRelay
}

func newRelayFixture(notifier core.OfflineNotifier) *relayFixture {
	store := memory.New()
	store.CreateConversation("c1", "alice", "bob", "carol")
	store.CreateConversation("c2", "dave", "erin")
	out := NewDispatcher(KickPolicy{})
	reg := NewRegistry()
	if notifier == nil {
		notifier = core.NopNotifier{}
	}
	return &relayFixture{
		store: store,
		relay: &MessageRelay{
			Conversations: store,
			Messages:      store,
			Notifier:      notifier,
			Registry:      reg,
			Rooms:         NewRoomManager(out),
			Out:           out,
		},
	}
}

// connect registers a session and joins the given conversation rooms.
func (f *relayFixture) connect(id domain.UserID, convs ...domain.ConversationID) (core.MemberSession, *fakeConn) {
	sess, conn := newSession(id)
	f.relay.Registry.Register(sess)
	f.relay.Rooms.Join(domain.PersonalRoom(id), sess)
	for _, c := range convs {
		f.relay.Rooms.Join(domain.ConversationRoom(c), sess)
	}
	return sess, conn
}

func TestSendReachesRoomAndSkipsOutsiders(t *testing.T) {
	f := newRelayFixture(nil)
	alice, aConn := f.connect("alice", "c1")
	_, bConn := f.connect("bob", "c1")
	_, dConn := f.connect("dave", "c2")

	msg, err := f.relay.Send(context.Background(), alice, "c1", "hi", "")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Type != domain.MessageText || msg.Sender.ID != "alice" {
		t.Fatalf("unexpected formatted message %+v", msg)
	}

	var got domain.FormattedMessage
	bConn.only(t, core.EventNewMessage, &got)
	if got.Content != "hi" || got.ConversationID != "c1" {
		t.Fatalf("bob got %+v", got)
	}
	if aConn.count(t, core.EventNewMessage) != 1 {
		t.Fatalf("sender should see its own message once")
	}
	if len(dConn.envelopes(t)) != 0 {
		t.Fatalf("uninvolved user received %d frames", len(dConn.envelopes(t)))
	}
	if n := f.store.Unread("c1", "bob"); n != 0 {
		t.Fatalf("bob is in the room, unread should stay 0, got %d", n)
	}
	if last, ok := f.store.LastMessage("c1"); !ok || last != msg.ID {
		t.Fatalf("last message not advanced")
	}
}

func TestSendNotifiesParticipantsOutsideTheRoom(t *testing.T) {
	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockOfflineNotifier(ctrl)
	notifier.EXPECT().NotifyOffline(gomock.Any(), domain.UserID("carol"), gomock.Any()).Return(nil)

	f := newRelayFixture(notifier)
	alice, _ := f.connect("alice", "c1")
	_, bConn := f.connect("bob") // online, conversation not open

	if _, err := f.relay.Send(context.Background(), alice, "c1", "hello", domain.MessageText); err != nil {
		t.Fatalf("send: %v", err)
	}
	var got domain.FormattedMessage
	bConn.only(t, core.EventMessageNotification, &got)
	if got.Content != "hello" {
		t.Fatalf("unexpected notification %+v", got)
	}
	if bConn.count(t, core.EventNewMessage) != 0 {
		t.Fatalf("bob is not in the room")
	}
	if f.store.Unread("c1", "bob") != 1 || f.store.Unread("c1", "carol") != 1 {
		t.Fatalf("unread not bumped: bob=%d carol=%d", f.store.Unread("c1", "bob"), f.store.Unread("c1", "carol"))
	}
	if f.store.Unread("c1", "alice") != 0 {
		t.Fatalf("sender unread bumped")
	}
}

func TestSendRejectsNonParticipant(t *testing.T) {
	f := newRelayFixture(nil)
	dave, _ := f.connect("dave")
	_, err := f.relay.Send(context.Background(), dave, "c1", "hi", "")
	if KindOf(err) != KindMembership || !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("want membership error, got %v", err)
	}
	if len(f.store.Messages("c1")) != 0 {
		t.Fatalf("message persisted for a non-participant")
	}
}

func TestSendValidatesContent(t *testing.T) {
	f := newRelayFixture(nil)
	alice, _ := f.connect("alice", "c1")
	if _, err := f.relay.Send(context.Background(), alice, "c1", "", ""); KindOf(err) != KindBadRequest {
		t.Fatalf("empty content accepted: %v", err)
	}
	if _, err := f.relay.Send(context.Background(), alice, "c1", "x", "sticker"); KindOf(err) != KindBadRequest {
		t.Fatalf("unknown type accepted: %v", err)
	}
}

func TestPersistenceFailureAbortsFanOut(t *testing.T) {
	f := newRelayFixture(nil)
	alice, _ := f.connect("alice", "c1")
	_, bConn := f.connect("bob", "c1")
	f.store.FailNext(errors.New("disk full"))

	_, err := f.relay.Send(context.Background(), alice, "c1", "hi", "")
	if KindOf(err) != KindPersistence || PublicMessage(err) != "delivery failed" {
		t.Fatalf("want persistence error, got %v (%q)", err, PublicMessage(err))
	}
	if len(bConn.envelopes(t)) != 0 {
		t.Fatalf("fan-out happened after a failed write")
	}
	if f.store.Unread("c1", "carol") != 0 {
		t.Fatalf("counters touched after a failed write")
	}
}

// orderLog records store writes and deliveries in the order they happen.
type orderLog struct {
	mu     sync.Mutex
	events []string
}

func (l *orderLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *orderLog) index(e string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, x := range l.events {
		if x == e {
			return i
		}
	}
	return -1
}

type loggedMessages struct {
	core.MessageStore
	log *orderLog
}

func (s loggedMessages) Create(ctx context.Context, conv domain.ConversationID, sender domain.UserID, content string, typ domain.MessageType) (*domain.Message, error) {
	m, err := s.MessageStore.Create(ctx, conv, sender, content, typ)
	s.log.add("persist")
	return m, err
}

type loggedConversations struct {
	core.ConversationStore
	log *orderLog
}

func (s loggedConversations) IncrementUnread(ctx context.Context, conv domain.ConversationID, id domain.UserID) error {
	s.log.add("unread:" + string(id))
	return s.ConversationStore.IncrementUnread(ctx, conv, id)
}

func TestPersistBeforeCountersBeforeBroadcast(t *testing.T) {
	f := newRelayFixture(nil)
	l := &orderLog{}
	f.relay.Messages = loggedMessages{MessageStore: f.store, log: l}
	f.relay.Conversations = loggedConversations{ConversationStore: f.store, log: l}

	alice, _ := f.connect("alice", "c1")
	_, bConn := f.connect("bob", "c1")
	stored := -1
	bConn.onSend = func(core.Frame) {
		stored = len(f.store.Messages("c1"))
		l.add("broadcast")
	}

	if _, err := f.relay.Send(context.Background(), alice, "c1", "hi", ""); err != nil {
		t.Fatalf("send: %v", err)
	}
	if stored != 1 {
		t.Fatalf("message not retrievable when the broadcast arrived (found %d)", stored)
	}
	p, u, b := l.index("persist"), l.index("unread:carol"), l.index("broadcast")
	if p < 0 || u < 0 || b < 0 || !(p < u && u < b) {
		t.Fatalf("wrong order: %v", l.events)
	}
}

func TestMarkReadIsIdempotent(t *testing.T) {
	f := newRelayFixture(nil)
	ctx := context.Background()
	alice, aConn := f.connect("alice", "c1")
	bob, bConn := f.connect("bob")

	for i := 0; i < 3; i++ {
		if _, err := f.relay.Send(ctx, alice, "c1", "m", ""); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	f.relay.Rooms.Join(domain.ConversationRoom("c1"), bob)

	n, err := f.relay.MarkRead(ctx, bob, "c1")
	if err != nil || n != 3 {
		t.Fatalf("first mark: %d %v", n, err)
	}
	first := f.store.Messages("c1")
	n, err = f.relay.MarkRead(ctx, bob, "c1")
	if err != nil || n != 0 {
		t.Fatalf("second mark: %d %v", n, err)
	}
	second := f.store.Messages("c1")
	for i := range first {
		if len(first[i].ReadBy) != 2 || len(second[i].ReadBy) != 2 {
			t.Fatalf("read markers changed: %v -> %v", first[i].ReadBy, second[i].ReadBy)
		}
	}
	if f.store.Unread("c1", "bob") != 0 {
		t.Fatalf("unread not reset")
	}

	var ev struct {
		ConversationID string `json:"conversationId"`
		ReadBy         string `json:"readBy"`
	}
	evs := aConn.events(t, core.EventMessagesRead)
	if len(evs) != 2 {
		t.Fatalf("sender should see both read notices, got %d", len(evs))
	}
	if err := json.Unmarshal(evs[0], &ev); err != nil || ev.ReadBy != "bob" {
		t.Fatalf("unexpected read event %+v (%v)", ev, err)
	}
	if bConn.count(t, core.EventMessagesRead) != 0 {
		t.Fatalf("reader notified of its own read")
	}
}

func TestMarkReadRequiresParticipant(t *testing.T) {
	f := newRelayFixture(nil)
	dave, _ := f.connect("dave")
	if _, err := f.relay.MarkRead(context.Background(), dave, "c1"); KindOf(err) != KindMembership {
		t.Fatalf("want membership error, got %v", err)
	}
}

func TestTypingNeedsRoom(t *testing.T) {
	f := newRelayFixture(nil)
	alice, aConn := f.connect("alice", "c1")
	_, bConn := f.connect("bob", "c1")
	carol, _ := f.connect("carol")

	if err := f.relay.Typing(carol, "c1", true); KindOf(err) != KindMembership {
		t.Fatalf("typing outside the room accepted: %v", err)
	}
	if err := f.relay.Typing(alice, "c1", true); err != nil {
		t.Fatalf("typing: %v", err)
	}
	var ev struct {
		UserID   string `json:"userId"`
		UserName string `json:"userName"`
		IsTyping bool   `json:"isTyping"`
	}
	bConn.only(t, core.EventUserTyping, &ev)
	if ev.UserID != "alice" || ev.UserName != "alice" || !ev.IsTyping {
		t.Fatalf("unexpected typing event %+v", ev)
	}
	if aConn.count(t, core.EventUserTyping) != 0 {
		t.Fatalf("typist got its own event")
	}
}
