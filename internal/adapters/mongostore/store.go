package mongostore

import (
	"context"
	"time"

	"github.com/dkeye/realm/internal/core"
	"github.com/dkeye/realm/internal/domain"
	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Store implements every durable port on one database.
type Store struct {
	db  *mongo.Database
	Now func() time.Time
}

var (
	_ core.UserDirectory     = (*Store)(nil)
	_ core.ConversationStore = (*Store)(nil)
	_ core.MessageStore      = (*Store)(nil)
	_ core.CallRecordStore   = (*Store)(nil)
)

func New(db *mongo.Database) *Store {
	return &Store{db: db, Now: time.Now}
}

func (s *Store) users() *mongo.Collection         { return s.db.Collection(usersCollection) }
func (s *Store) conversations() *mongo.Collection { return s.db.Collection(conversationsCollection) }
func (s *Store) messages() *mongo.Collection      { return s.db.Collection(messagesCollection) }

func (s *Store) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// objectID maps an id that cannot exist in this database to ErrNotFound.
func objectID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, core.ErrNotFound
	}
	return oid, nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.ErrNotFound
	}
	return errors.Wrap(err, msg)
}

func (s *Store) Profile(ctx context.Context, id domain.UserID) (*domain.User, error) {
	oid, err := objectID(string(id))
	if err != nil {
		return nil, err
	}
	var doc userDoc
	opts := options.FindOne().SetProjection(bson.M{"firstName": 1, "lastName": 1, "avatar": 1})
	if err := s.users().FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&doc); err != nil {
		return nil, notFound(err, "find user")
	}
	return doc.toDomain(), nil
}

func (s *Store) Contacts(ctx context.Context, id domain.UserID) ([]domain.UserID, error) {
	oid, err := objectID(string(id))
	if err != nil {
		return nil, err
	}
	var doc userDoc
	opts := options.FindOne().SetProjection(bson.M{"friends": 1})
	if err := s.users().FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&doc); err != nil {
		return nil, notFound(err, "find contacts")
	}
	return hexIDs(doc.Friends), nil
}

func (s *Store) IsParticipant(ctx context.Context, id domain.UserID, conv domain.ConversationID) (bool, error) {
	uid, err := objectID(string(id))
	if err != nil {
		return false, nil
	}
	cid, err := objectID(string(conv))
	if err != nil {
		return false, nil
	}
	n, err := s.conversations().CountDocuments(ctx, bson.M{"_id": cid, "participants": uid}, options.Count().SetLimit(1))
	if err != nil {
		return false, errors.Wrap(err, "check participant")
	}
	return n > 0, nil
}

func (s *Store) Participants(ctx context.Context, conv domain.ConversationID) ([]domain.UserID, error) {
	cid, err := objectID(string(conv))
	if err != nil {
		return nil, err
	}
	var doc conversationDoc
	opts := options.FindOne().SetProjection(bson.M{"participants": 1})
	if err := s.conversations().FindOne(ctx, bson.M{"_id": cid}, opts).Decode(&doc); err != nil {
		return nil, notFound(err, "find participants")
	}
	return hexIDs(doc.Participants), nil
}

func (s *Store) updateConversation(ctx context.Context, conv domain.ConversationID, update bson.M, msg string) error {
	cid, err := objectID(string(conv))
	if err != nil {
		return err
	}
	res, err := s.conversations().UpdateOne(ctx, bson.M{"_id": cid}, update)
	if err != nil {
		return errors.Wrap(err, msg)
	}
	if res.MatchedCount == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) IncrementUnread(ctx context.Context, conv domain.ConversationID, id domain.UserID) error {
	return s.updateConversation(ctx, conv, bson.M{
		"$inc": bson.M{"unreadCount." + string(id): 1},
	}, "increment unread")
}

func (s *Store) ResetUnread(ctx context.Context, conv domain.ConversationID, id domain.UserID) error {
	return s.updateConversation(ctx, conv, bson.M{
		"$set": bson.M{"unreadCount." + string(id): 0},
	}, "reset unread")
}

func (s *Store) SetLastMessage(ctx context.Context, conv domain.ConversationID, msg domain.MessageID, at time.Time) error {
	mid, err := objectID(string(msg))
	if err != nil {
		return err
	}
	return s.updateConversation(ctx, conv, lastMessageUpdate(mid, at), "set last message")
}

// lastMessageUpdate advances lastMessageAt, the field conversation lists
// are sorted on.
func lastMessageUpdate(mid primitive.ObjectID, at time.Time) bson.M {
	return bson.M{
		"$set": bson.M{"lastMessage": mid, "lastMessageAt": at, "updatedAt": at},
	}
}

func (s *Store) FindOrCreate(ctx context.Context, a, b domain.UserID) (domain.ConversationID, error) {
	aid, err := objectID(string(a))
	if err != nil {
		return "", err
	}
	bid, err := objectID(string(b))
	if err != nil {
		return "", err
	}
	filter := bson.M{"participants": bson.M{"$all": bson.A{aid, bid}, "$size": 2}}
	var doc conversationDoc
	err = s.conversations().FindOne(ctx, filter).Decode(&doc)
	if err == nil {
		return domain.ConversationID(doc.ID.Hex()), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return "", errors.Wrap(err, "find conversation")
	}

	doc = newConversationDoc(aid, bid, s.now())
	if _, err := s.conversations().InsertOne(ctx, doc); err != nil {
		return "", errors.Wrap(err, "create conversation")
	}
	return domain.ConversationID(doc.ID.Hex()), nil
}

// newConversationDoc starts both unread counters at zero.
func newConversationDoc(a, b primitive.ObjectID, now time.Time) conversationDoc {
	return conversationDoc{
		ID:            primitive.NewObjectID(),
		Participants:  []primitive.ObjectID{a, b},
		LastMessageAt: now,
		UnreadCount:   map[string]int{a.Hex(): 0, b.Hex(): 0},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func (s *Store) Create(
	ctx context.Context,
	conv domain.ConversationID,
	sender domain.UserID,
	content string,
	typ domain.MessageType,
) (*domain.Message, error) {
	doc, err := s.newMessage(conv, sender, content, typ)
	if err != nil {
		return nil, err
	}
	if _, err := s.messages().InsertOne(ctx, doc); err != nil {
		return nil, errors.Wrap(err, "insert message")
	}
	return doc.toDomain(), nil
}

func (s *Store) newMessage(conv domain.ConversationID, sender domain.UserID, content string, typ domain.MessageType) (*messageDoc, error) {
	cid, err := objectID(string(conv))
	if err != nil {
		return nil, err
	}
	sid, err := objectID(string(sender))
	if err != nil {
		return nil, err
	}
	now := s.now()
	return &messageDoc{
		ID:             primitive.NewObjectID(),
		ConversationID: cid,
		Sender:         sid,
		Content:        content,
		MessageType:    string(typ),
		ReadBy:         []readMarker{{User: sid, ReadAt: now}},
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (s *Store) MarkReadExceptSender(ctx context.Context, conv domain.ConversationID, reader domain.UserID) (int, error) {
	cid, err := objectID(string(conv))
	if err != nil {
		return 0, err
	}
	rid, err := objectID(string(reader))
	if err != nil {
		return 0, err
	}
	filter := bson.M{
		"conversation": cid,
		"sender":       bson.M{"$ne": rid},
		"readBy.user":  bson.M{"$ne": rid},
	}
	update := bson.M{"$push": bson.M{"readBy": readMarker{User: rid, ReadAt: s.now()}}}
	res, err := s.messages().UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, errors.Wrap(err, "mark read")
	}
	return int(res.ModifiedCount), nil
}

// Save writes the call into the history of the two parties: a call
// message in their 1:1 conversation, sent by and read by the caller.
func (s *Store) Save(ctx context.Context, rec domain.CallRecord) error {
	conv, err := s.FindOrCreate(ctx, rec.Caller, rec.Callee)
	if err != nil {
		return err
	}
	doc, err := s.newMessage(conv, rec.Caller, rec.Summary(), domain.MessageCall)
	if err != nil {
		return err
	}
	doc.CallInfo = &callInfoDoc{
		Type:     string(rec.Kind),
		Duration: rec.DurationSeconds,
		Status:   string(rec.Status),
	}
	if _, err := s.messages().InsertOne(ctx, doc); err != nil {
		return errors.Wrap(err, "insert call message")
	}
	return s.SetLastMessage(ctx, conv, domain.MessageID(doc.ID.Hex()), doc.CreatedAt)
}
