package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/listings/media-pipeline/internal/domain"
	"github.com/listings/media-pipeline/internal/repository"
)

const listingCollectionName = "listings"

// mongoListingRepository implements repository.ListingRepository
type mongoListingRepository struct {
	collection *mongo.Collection
	now        func() time.Time
}

// NewMongoListingRepository creates a new Listing repository backed by MongoDB.
func NewMongoListingRepository(db *mongo.Database) repository.ListingRepository {
	return &mongoListingRepository{
		collection: db.Collection(listingCollectionName),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create inserts a new listing. A duplicate short id maps to ErrConflict.
func (r *mongoListingRepository) Create(ctx context.Context, listing *domain.Listing) error {
	if listing.ShortID == "" || listing.ScopeID == "" {
		return errors.New("listing requires shortId and scopeId")
	}

	listing.ID = primitive.NewObjectID()
	now := r.now()
	listing.CreatedAt = now
	listing.UpdatedAt = now
	listing.Version = 1

	if _, err := r.collection.InsertOne(ctx, listing); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrConflict
		}
		return err
	}
	return nil
}

// GetByShortID retrieves a listing by its public short id.
func (r *mongoListingRepository) GetByShortID(ctx context.Context, shortID string) (*domain.Listing, error) {
	var listing domain.Listing
	err := r.collection.FindOne(ctx, bson.M{"shortId": shortID}).Decode(&listing)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &listing, nil
}

// UpdateImages sets imagesUrls and thumbnail together, guarded by version.
func (r *mongoListingRepository) UpdateImages(ctx context.Context, shortID string, expectedVersion int64, gallery domain.Gallery) (int64, error) {
	images := gallery.ImagesURLs
	if images == nil {
		images = []string{} // keep the field an array, never null
	}

	filter := bson.M{"shortId": shortID, "version": expectedVersion}
	update := bson.M{
		"$set": bson.M{
			"imagesUrls": images,
			"thumbnail":  gallery.Thumbnail,
			"updatedAt":  r.now(),
		},
		"$inc": bson.M{"version": 1},
	}

	result, err := r.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	if result.MatchedCount == 0 {
		// Tell a missing listing apart from a concurrent edit.
		n, err := r.collection.CountDocuments(ctx, bson.M{"shortId": shortID})
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, repository.ErrNotFound
		}
		return 0, repository.ErrConflict
	}
	return expectedVersion + 1, nil
}

// Delete removes a listing by short id.
func (r *mongoListingRepository) Delete(ctx context.Context, shortID string) error {
	result, err := r.collection.DeleteOne(ctx, bson.M{"shortId": shortID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// EnsureListingIndexes creates necessary indexes for the listings collection.
func EnsureListingIndexes(ctx context.Context, collection *mongo.Collection) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "shortId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "postedBy", Value: 1}},
		},
		{
			// Coordinates are stored longitude first.
			Keys: bson.D{{Key: "coords", Value: "2dsphere"}},
		},
		{
			Keys:    bson.D{{Key: "scopeId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}
