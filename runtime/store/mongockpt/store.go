// Package mongockpt implements store.WorkflowCheckpoint on top of MongoDB,
// grounded on the teacher's features/memory/mongo run-snapshot store: the
// full domain.WorkflowState is upserted as one document per workflow, with a
// duplicated top-level "status" field so ListPending can query without
// decoding every document.
package mongockpt

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
	defaultCollection = "assistant_checkpoints"
	defaultOpTimeout  = 5 * time.Second
)

// terminalStatuses lists every domain.WorkflowStatus that Terminal() reports
// true for, duplicated here so ListPending's Mongo query can exclude them
// without loading every document.
var terminalStatuses = []domain.WorkflowStatus{
	domain.WorkflowCompleted,
	domain.WorkflowFailed,
	domain.WorkflowCancelled,
}

// Options configures the Mongo-backed WorkflowCheckpoint.
type Options struct {
	Client     *mongodriver.Client
	Database   string
	Collection string
	Timeout    time.Duration
}

// Store implements store.WorkflowCheckpoint against a MongoDB collection.
type Store struct {
	coll    *mongodriver.Collection
	timeout time.Duration
}

// New returns a Store backed by the given, already-connected Mongo client.
func New(opts Options) (*Store, error) {
	if opts.Client == nil {
		return nil, errors.New("mongockpt: client is required")
	}
	if opts.Database == "" {
		return nil, errors.New("mongockpt: database name is required")
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
	idx := mongodriver.IndexModel{Keys: bson.D{{Key: "workflow_id", Value: 1}}, Options: options.Index().SetUnique(true)}
	if _, err := coll.Indexes().CreateOne(ctx, idx); err != nil {
		return nil, err
	}
	return &Store{coll: coll, timeout: timeout}, nil
}

type checkpointDocument struct {
	WorkflowID string              `bson:"workflow_id"`
	Status     domain.WorkflowStatus `bson:"status"`
	State      domain.WorkflowState  `bson:"state"`
	UpdatedAt  time.Time             `bson:"updated_at"`
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *Store) Save(ctx context.Context, state domain.WorkflowState) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	filter := bson.M{"workflow_id": string(state.WorkflowID)}
	update := bson.M{
		"$set": bson.M{
			"workflow_id": string(state.WorkflowID),
			"status":      state.Status,
			"state":       state,
			"updated_at":  domain.Now(),
		},
	}
	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	return err
}

func (s *Store) Load(ctx context.Context, workflowID domain.WorkflowID) (domain.WorkflowState, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	var doc checkpointDocument
	if err := s.coll.FindOne(ctx, bson.M{"workflow_id": string(workflowID)}).Decode(&doc); err != nil {
		if errors.Is(err, mongodriver.ErrNoDocuments) {
			return domain.WorkflowState{}, false, nil
		}
		return domain.WorkflowState{}, false, err
	}
	return doc.State, true, nil
}

func (s *Store) Delete(ctx context.Context, workflowID domain.WorkflowID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	_, err := s.coll.DeleteOne(ctx, bson.M{"workflow_id": string(workflowID)})
	return err
}

func (s *Store) ListPending(ctx context.Context) ([]domain.WorkflowID, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	cur, err := s.coll.Find(ctx, bson.M{"status": bson.M{"$nin": terminalStatuses}}, options.Find().SetProjection(bson.M{"workflow_id": 1}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var ids []domain.WorkflowID
	for cur.Next(ctx) {
		var doc struct {
			WorkflowID string `bson:"workflow_id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, domain.WorkflowID(doc.WorkflowID))
	}
	return ids, cur.Err()
}

var _ store.WorkflowCheckpoint = (*Store)(nil)
