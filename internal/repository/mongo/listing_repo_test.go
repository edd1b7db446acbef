package mongo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/listings/media-pipeline/internal/domain"
	"github.com/listings/media-pipeline/internal/repository"
)

func newListing() *domain.Listing {
	return &domain.Listing{
		ShortID:   "XYZ123A",
		ScopeID:   "XYZ123A",
		Kind:      domain.KindApartment,
		OwnerKind: domain.OwnerUser,
		PostedBy:  "u1",
		Title:     "Flat",
	}
}

func TestListingRepository_Create(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("sets version and timestamps", func(mt *mtest.T) {
		repo := NewMongoListingRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		l := newListing()
		require.NoError(mt, repo.Create(context.Background(), l))
		assert.False(mt, l.ID.IsZero())
		assert.Equal(mt, int64(1), l.Version)
		assert.False(mt, l.CreatedAt.IsZero())
	})

	mt.Run("duplicate short id is a conflict", func(mt *mtest.T) {
		repo := NewMongoListingRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateWriteErrorsResponse(mtest.WriteError{
			Index:   0,
			Code:    11000,
			Message: "duplicate key error",
		}))

		err := repo.Create(context.Background(), newListing())
		assert.ErrorIs(mt, err, repository.ErrConflict)
	})

	mt.Run("requires ids", func(mt *mtest.T) {
		repo := NewMongoListingRepository(mt.DB)
		err := repo.Create(context.Background(), &domain.Listing{})
		assert.Error(mt, err)
	})
}

func TestListingRepository_GetByShortID(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("found", func(mt *mtest.T) {
		repo := NewMongoListingRepository(mt.DB)
		ns := mt.DB.Name() + "." + listingCollectionName
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
			{Key: "shortId", Value: "XYZ123A"},
			{Key: "scopeId", Value: "XYZ123A"},
			{Key: "imagesUrls", Value: bson.A{"https://cdn/a.png"}},
			{Key: "thumbnail", Value: "https://cdn/a.png"},
			{Key: "version", Value: int64(3)},
		}))

		l, err := repo.GetByShortID(context.Background(), "XYZ123A")
		require.NoError(mt, err)
		assert.Equal(mt, "XYZ123A", l.ShortID)
		assert.Equal(mt, []string{"https://cdn/a.png"}, l.ImagesURLs)
		assert.Equal(mt, "https://cdn/a.png", l.Thumbnail)
		assert.Equal(mt, int64(3), l.Version)
	})

	mt.Run("not found", func(mt *mtest.T) {
		repo := NewMongoListingRepository(mt.DB)
		ns := mt.DB.Name() + "." + listingCollectionName
		mt.AddMockResponses(mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		_, err := repo.GetByShortID(context.Background(), "NOPE")
		assert.ErrorIs(mt, err, repository.ErrNotFound)
	})
}

func TestListingRepository_UpdateImages(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	gallery := domain.Gallery{ImagesURLs: []string{"https://cdn/b.png"}, Thumbnail: "https://cdn/b.png"}

	mt.Run("bumps version", func(mt *mtest.T) {
		repo := NewMongoListingRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(
			bson.E{Key: "n", Value: 1},
			bson.E{Key: "nModified", Value: 1},
		))

		v, err := repo.UpdateImages(context.Background(), "XYZ123A", 4, gallery)
		require.NoError(mt, err)
		assert.Equal(mt, int64(5), v)
	})

	mt.Run("stale version is a conflict", func(mt *mtest.T) {
		repo := NewMongoListingRepository(mt.DB)
		ns := mt.DB.Name() + "." + listingCollectionName
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{{Key: "n", Value: int32(1)}}),
		)

		_, err := repo.UpdateImages(context.Background(), "XYZ123A", 4, gallery)
		assert.ErrorIs(mt, err, repository.ErrConflict)
	})

	mt.Run("missing listing", func(mt *mtest.T) {
		repo := NewMongoListingRepository(mt.DB)
		ns := mt.DB.Name() + "." + listingCollectionName
		mt.AddMockResponses(
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}, bson.E{Key: "nModified", Value: 0}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch),
		)

		_, err := repo.UpdateImages(context.Background(), "XYZ123A", 4, gallery)
		assert.ErrorIs(mt, err, repository.ErrNotFound)
	})
}

func TestListingRepository_Delete(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("deleted", func(mt *mtest.T) {
		repo := NewMongoListingRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))
		assert.NoError(mt, repo.Delete(context.Background(), "XYZ123A"))
	})

	mt.Run("not found", func(mt *mtest.T) {
		repo := NewMongoListingRepository(mt.DB)
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))
		assert.ErrorIs(mt, repo.Delete(context.Background(), "XYZ123A"), repository.ErrNotFound)
	})
}
