// Package mongoconv implements store.ConversationStore on top of MongoDB,
// grounded on the teacher's features/session/mongo client/store split:
// documents are upserted per session, with messages/artifacts/summaries
// appended via $push so the collection stays append-only.
package mongoconv

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongodriver "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/codeforge/assistant/runtime/domain"
	"github.com/codeforge/assistant/runtime/store"
)

const (
	defaultCollection = "assistant_conversations"
	defaultOpTimeout  = 5 * time.Second
)

// Options configures the Mongo-backed ConversationStore.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements store.ConversationStore against a MongoDB collection.
type Store struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

// New returns a Store backed by the given, already-connected Mongo client.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongoconv: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongoconv: database name is required")
	}
	collName := opts.Collection
	if collName == "" {
		collName = defaultCollection
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultOpTimeout
	}
	coll := opts.Client.Database(opts.Database).Collection(collName)
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	idx := mongodriver.IndexModel{Keys: bson.D{{Key: "session_id", Value: 1}}, Options: options.Index().SetUnique(true)}
	if _, err := coll.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, err
	}
	return &Store{coll: coll, timeout: timeout}, nil
}

type conversationDocument struct {
	SessionID string                     `bson:"session_id"`
	CreatedAt time.Time                  `bson:"created_at"`
	UpdatedAt time.Time                  `bson:"updated_at"`
	Messages  []domain.ConversationTurn  `bson:"messages"`
	Artifacts []domain.Artifact          `bson:"artifacts"`
	Summaries []store.WorkflowSummary    `bson:"summaries"`
}

func (d conversationDocument) toRecord() store.ConversationRecord {
	return store.ConversationRecord{
		SessionID: domain.SessionID(d.SessionID),
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
		Messages:  d.Messages,
		Artifacts: d.Artifacts,
		Summaries: d.Summaries,
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Get(ctx context.Context, sessionID domain.SessionID) (store.ConversationRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc conversationDocument
	if err := s.coll.FindOne(ctx, bson.M{"session_id": string(sessionID)}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return store.ConversationRecord{}, store.ErrSessionNotFound
		}
		return store.ConversationRecord{}, err
	}
	return doc.toRecord(), nil
}

func (s *Store) List(ctx context.Context, limit int) ([]domain.SessionID, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	findOpts := options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}).SetProjection(bson.M{"session_id": 1})
	if limit > 0 {
		findOpts = findOpts.SetLimit(int64(limit))
	}
	cur, err := s.coll.Find(ctx, bson.M{}, findOpts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var ids []domain.SessionID
	for cur.Next(ctx) {
		var doc struct {
			SessionID string `bson:"session_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, domain.SessionID(doc.SessionID))
	}
	return ids, cur.Err()
}

func (s *Store) ensure(ctx context.Context, sessionID domain.SessionID, now time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"session_id": string(sessionID)}
	update := bson.M{
		"$setOnInsert": bson.M{"session_id": string(sessionID), "created_at": now},
		"$set":         bson.M{"updated_at": now},
	}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) AppendMessage(ctx context.Context, sessionID domain.SessionID, turn domain.ConversationTurn) error {
	now := domain.Now()
	if err := s.ensure(ctx, sessionID, now); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.coll.UpdateOne(ctx, bson.M{"session_id": string(sessionID)}, bson.M{
		"$push": bson.M{"messages": turn},
		"$set":  bson.M{"updated_at": now},
	})
	return err
}

func (s *Store) AppendArtifact(ctx context.Context, sessionID domain.SessionID, artifact domain.Artifact) error {
	now := domain.Now()
	if err := s.ensure(ctx, sessionID, now); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.coll.UpdateOne(ctx, bson.M{"session_id": string(sessionID)}, bson.M{
		"$push": bson.M{"artifacts": artifact},
		"$set":  bson.M{"updated_at": now},
	})
	return err
}

func (s *Store) AppendSummary(ctx context.Context, sessionID domain.SessionID, summary store.WorkflowSummary) error {
	now := domain.Now()
	if err := s.ensure(ctx, sessionID, now); err != nil {
		return err
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.coll.UpdateOne(ctx, bson.M{"session_id": string(sessionID)}, bson.M{
		"$push": bson.M{"summaries": summary},
		"$set":  bson.M{"updated_at": now},
	})
	return err
}

func (s *Store) Touch(ctx context.Context, sessionID domain.SessionID, t time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	res, err := s.coll.UpdateOne(ctx, bson.M{"session_id": string(sessionID)}, bson.M{"$set": bson.M{"updated_at": t}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

var _ store.ConversationStore = (*Store)(nil)
