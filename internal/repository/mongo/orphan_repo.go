package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/listings/media-pipeline/internal/domain"
	"github.com/listings/media-pipeline/internal/repository"
)

const orphanCollectionName = "orphaned_media"

type mongoOrphanRepository struct {
	collection *mongo.Collection
}

// NewMongoOrphanRepository creates the ledger of objects left behind by failed
// compensating deletes.
func NewMongoOrphanRepository(db *mongo.Database) repository.OrphanRepository {
	return &mongoOrphanRepository{collection: db.Collection(orphanCollectionName)}
}

func (r *mongoOrphanRepository) RecordOrphan(ctx context.Context, rec domain.OrphanRecord) error {
	if rec.Prefix == "" && len(rec.Keys) == 0 {
		return errors.New("orphan record needs a prefix or keys")
	}
	if rec.ID == "" {
		rec.ID = primitive.NewObjectID().Hex()
	}
	_, err := r.collection.InsertOne(ctx, rec)
	return err
}

// ListPending returns unresolved records, oldest first.
func (r *mongoOrphanRepository) ListPending(ctx context.Context, limit int) ([]domain.OrphanRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"resolved": false}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var records []domain.OrphanRecord
	if err = cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.OrphanRecord{}
	}
	return records, nil
}

func (r *mongoOrphanRepository) MarkResolved(ctx context.Context, id string) error {
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"resolved": true, "lastError": ""}})
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkAttempt counts a failed sweep of the record.
func (r *mongoOrphanRepository) MarkAttempt(ctx context.Context, id string, lastErr string) error {
	update := bson.M{
		"$inc": bson.M{"attempts": 1},
		"$set": bson.M{"lastError": lastErr},
	}
	result, err := r.collection.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureOrphanIndexes creates the index the sweeper scans by.
func EnsureOrphanIndexes(ctx context.Context, collection *mongo.Collection) error {
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "resolved", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	return err
}
