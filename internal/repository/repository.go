package repository

import (
	"context"

	"github.com/listings/media-pipeline/internal/domain"
)

// Error constants for repository layer
var (
	ErrNotFound = RepositoryError("not found")
	// ErrConflict is a write that lost a race: a duplicate short id on insert or
	// a stale version on update.
	ErrConflict = RepositoryError("conflict")
)

// RepositoryError helps distinguish repository errors
type RepositoryError string

func (e RepositoryError) Error() string {
	return string(e)
}

// ListingRepository stores listing documents.
type ListingRepository interface {
	Create(ctx context.Context, listing *domain.Listing) error
	GetByShortID(ctx context.Context, shortID string) (*domain.Listing, error)
	// UpdateImages replaces the gallery in one atomic single-document update.
	// It applies only if the listing exists (ErrNotFound) and still has
	// expectedVersion (ErrConflict). It returns the new version.
	UpdateImages(ctx context.Context, shortID string, expectedVersion int64, gallery domain.Gallery) (int64, error)
	Delete(ctx context.Context, shortID string) error
}

// OrphanRepository is the ledger of store objects no record references.
type OrphanRepository interface {
	RecordOrphan(ctx context.Context, rec domain.OrphanRecord) error
	ListPending(ctx context.Context, limit int) ([]domain.OrphanRecord, error)
	MarkResolved(ctx context.Context, id string) error
	MarkAttempt(ctx context.Context, id string, lastErr string) error
}
