// Package mongostore keeps job configs and execution history in MongoDB.
// Configs are keyed by job name, execution records by their id.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"jobkeeper/internal/adapter/storage"
	"jobkeeper/internal/jobs"
	"jobkeeper/internal/platform/mongo"
	"jobkeeper/internal/shared"
)

// Collection names.
const (
	colConfigs    = "job_configs"
	colExecutions = "job_executions"
)

var _ storage.Store = (*Store)(nil)

type configDoc struct {
	JobName   string    `bson:"_id"`
	Schedule  string    `bson:"schedule"`
	Enabled   bool      `bson:"enabled"`
	UpdatedAt time.Time `bson:"updated_at"`
	UpdatedBy string    `bson:"updated_by,omitempty"`
}

type executionDoc struct {
	ID          string     `bson:"_id"`
	JobName     string     `bson:"job_name"`
	StartedAt   time.Time  `bson:"started_at"`
	CompletedAt *time.Time `bson:"completed_at,omitempty"`
	DurationMs  *int64     `bson:"duration_ms,omitempty"`
	Status      string     `bson:"status"`
	Error       string     `bson:"error"`
}

// Store implements storage.Store over a mongo database.
type Store struct {
	db     *mongod.Database
	client *mongod.Client
}

// New wraps db. The caller owns the client lifecycle.
func New(db *mongod.Database) *Store {
	return &Store{db: db}
}

// Open connects to uri, creates indexes and returns a store that
// disconnects the client on Close.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, uri, mongo.DefaultClientOptions())
	if err != nil {
		return nil, err
	}
	s := New(client.Database(database))
	if err := s.Migrate(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	s.client = client
	return s, nil
}

// Migrate creates the execution history indexes.
func (s *Store) Migrate(ctx context.Context) error {
	models := []mongod.IndexModel{
		{Keys: bson.D{{Key: "job_name", Value: 1}, {Key: "started_at", Value: -1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "started_at", Value: 1}}},
	}
	if _, err := s.db.Collection(colExecutions).Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("mongostore: migrate %s indexes: %w", colExecutions, err)
	}
	return nil
}

func (s *Store) FindJobConfig(ctx context.Context, name string) (jobs.PersistedJobConfig, bool, error) {
	var doc configDoc
	err := s.db.Collection(colConfigs).FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongod.ErrNoDocuments) {
		return jobs.PersistedJobConfig{}, false, nil
	}
	if err != nil {
		return jobs.PersistedJobConfig{}, false, fmt.Errorf("mongostore: find job config: %w", err)
	}
	return jobs.PersistedJobConfig{
		JobName:   doc.JobName,
		Schedule:  doc.Schedule,
		Enabled:   doc.Enabled,
		UpdatedAt: doc.UpdatedAt.UTC(),
		UpdatedBy: doc.UpdatedBy,
	}, true, nil
}

func (s *Store) CreateJobConfig(ctx context.Context, cfg jobs.PersistedJobConfig) (jobs.PersistedJobConfig, error) {
	doc := configDoc{
		JobName:   cfg.JobName,
		Schedule:  cfg.Schedule,
		Enabled:   cfg.Enabled,
		UpdatedAt: cfg.UpdatedAt.UTC(),
		UpdatedBy: cfg.UpdatedBy,
	}
	if _, err := s.db.Collection(colConfigs).InsertOne(ctx, doc); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return jobs.PersistedJobConfig{}, fmt.Errorf("job config %q: %w", cfg.JobName, shared.ErrConflict)
		}
		return jobs.PersistedJobConfig{}, fmt.Errorf("mongostore: create job config: %w", err)
	}
	return cfg, nil
}

// UpsertJobConfig sets the patched fields and seeds the rest on insert.
// $set and $setOnInsert never name the same field.
func (s *Store) UpsertJobConfig(ctx context.Context, name string, patch jobs.ConfigPatch, seed jobs.PersistedJobConfig) error {
	set := bson.M{"updated_at": patch.UpdatedAt.UTC()}
	if patch.UpdatedBy != "" {
		set["updated_by"] = patch.UpdatedBy
	}
	onInsert := bson.M{}
	if patch.Schedule != nil {
		set["schedule"] = *patch.Schedule
	} else {
		onInsert["schedule"] = seed.Schedule
	}
	if patch.Enabled != nil {
		set["enabled"] = *patch.Enabled
	} else {
		onInsert["enabled"] = seed.Enabled
	}

	update := bson.M{"$set": set}
	if len(onInsert) > 0 {
		update["$setOnInsert"] = onInsert
	}

	_, err := s.db.Collection(colConfigs).UpdateOne(ctx, bson.M{"_id": name}, update,
		options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongostore: upsert job config: %w", err)
	}
	return nil
}

func (s *Store) DeleteJobConfig(ctx context.Context, name string) error {
	if _, err := s.db.Collection(colConfigs).DeleteOne(ctx, bson.M{"_id": name}); err != nil {
		return fmt.Errorf("mongostore: delete job config: %w", err)
	}
	return nil
}

func (s *Store) CreateExecution(ctx context.Context, rec jobs.ExecutionRecord) error {
	doc := executionDoc{
		ID:        rec.ID,
		JobName:   rec.JobName,
		StartedAt: rec.StartedAt.UTC(),
		Status:    string(rec.Status),
	}
	if _, err := s.db.Collection(colExecutions).InsertOne(ctx, doc); err != nil {
		if mongod.IsDuplicateKeyError(err) {
			return fmt.Errorf("execution %s: %w", rec.ID, shared.ErrConflict)
		}
		return fmt.Errorf("mongostore: create execution: %w", err)
	}
	return nil
}

func (s *Store) UpdateExecution(ctx context.Context, id string, outcome jobs.ExecutionOutcome) error {
	if !outcome.Status.Terminal() {
		return shared.Validationf("execution %s: status %q is not terminal", id, outcome.Status)
	}

	col := s.db.Collection(colExecutions)
	res, err := col.UpdateOne(ctx,
		bson.M{"_id": id, "status": string(jobs.StatusRunning)},
		bson.M{"$set": bson.M{
			"status":       string(outcome.Status),
			"completed_at": outcome.CompletedAt.UTC(),
			"duration_ms":  outcome.DurationMs,
			"error":        outcome.Error,
		}},
	)
	if err != nil {
		return fmt.Errorf("mongostore: update execution: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	var doc executionDoc
	err = col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongod.ErrNoDocuments) {
		return fmt.Errorf("execution %s: %w", id, shared.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("mongostore: update execution: %w", err)
	}
	return fmt.Errorf("execution %s already %s: %w", id, doc.Status, shared.ErrConflict)
}

func (s *Store) ListExecutions(ctx context.Context, filter jobs.ExecutionFilter) ([]jobs.ExecutionRecord, error) {
	query := bson.M{}
	if filter.JobName != "" {
		query["job_name"] = filter.JobName
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "started_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		findOpts.SetLimit(int64(filter.Limit))
	}

	cursor, err := s.db.Collection(colExecutions).Find(ctx, query, findOpts)
	if err != nil {
		return nil, fmt.Errorf("mongostore: list executions: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []executionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: list executions decode: %w", err)
	}

	out := make([]jobs.ExecutionRecord, 0, len(docs))
	for _, d := range docs {
		rec := jobs.ExecutionRecord{
			ID:         d.ID,
			JobName:    d.JobName,
			StartedAt:  d.StartedAt.UTC(),
			DurationMs: d.DurationMs,
			Status:     jobs.Status(d.Status),
			Error:      d.Error,
		}
		if d.CompletedAt != nil {
			t := d.CompletedAt.UTC()
			rec.CompletedAt = &t
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) PruneExecutions(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.Collection(colExecutions).DeleteMany(ctx, bson.M{
		"status":     bson.M{"$ne": string(jobs.StatusRunning)},
		"started_at": bson.M{"$lt": before.UTC()},
	})
	if err != nil {
		return 0, fmt.Errorf("mongostore: prune executions: %w", err)
	}
	return res.DeletedCount, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return mongo.Ping(ctx, s.db.Client(), 5*time.Second)
}

// Close disconnects the client only when the store connected it.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}
