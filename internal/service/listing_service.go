package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/listings/media-pipeline/internal/domain"
	"github.com/listings/media-pipeline/internal/media"
	"github.com/listings/media-pipeline/internal/repository"
)

// --- Error Definitions ---
var (
	ErrListingNotFound = errors.New("listing not found")
	ErrAccessDenied    = errors.New("access denied to modify or delete this listing")
	// ErrEditConflict means the listing changed between read and write.
	ErrEditConflict = errors.New("listing was modified concurrently")
)

// DeletionError reports a listing removal that did not fully complete.
// RecordRemoved tells whether the record is already gone, in which case only
// the image cleanup is outstanding and has been recorded for a later sweep.
type DeletionError struct {
	ListingID     string
	RecordRemoved bool
	Err           error
}

func (e *DeletionError) Error() string {
	if e.RecordRemoved {
		return fmt.Sprintf("listing %s removed, image cleanup deferred: %v", e.ListingID, e.Err)
	}
	return fmt.Sprintf("delete listing %s: %v", e.ListingID, e.Err)
}

func (e *DeletionError) Unwrap() error { return e.Err }

// KeyResolver maps a public URL back to its object key. storage.BlobStore
// implementations satisfy it.
type KeyResolver interface {
	KeyFromURL(rawURL string) (string, bool)
}

// EditImagesInput is one change to a listing gallery.
type EditImagesInput struct {
	Files    []media.File
	Remove   []string
	Position media.Position
}

// --- Service Interface ---
type ListingService interface {
	SubmitNewListing(ctx context.Context, identity domain.Identity, fields domain.Listing, files []media.File) (*domain.Listing, error)
	GetListing(ctx context.Context, shortID string) (*domain.Listing, error)
	EditListingImages(ctx context.Context, identity domain.Identity, shortID string, input EditImagesInput) (*domain.Listing, error)
	DeleteListing(ctx context.Context, identity domain.Identity, shortID string) error
}

// --- Service Implementation ---

type listingService struct {
	listings   repository.ListingRepository
	supervisor *media.Supervisor
	urls       KeyResolver
	newID      func() (string, error)
	log        logrus.FieldLogger
}

// NewListingService creates a new instance of listingService.
func NewListingService(listings repository.ListingRepository, supervisor *media.Supervisor, urls KeyResolver, log logrus.FieldLogger) ListingService {
	return &listingService{
		listings:   listings,
		supervisor: supervisor,
		urls:       urls,
		newID:      media.NewID,
		log:        log,
	}
}

// SubmitNewListing validates the fields, stores the images under a fresh scope
// and creates the listing. On any failure nothing it wrote is left referenced.
func (s *listingService) SubmitNewListing(ctx context.Context, identity domain.Identity, fields domain.Listing, files []media.File) (*domain.Listing, error) {
	if !identity.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown owner kind %q", media.ErrInvalidInput, identity.Kind)
	}
	// Users propose listings; only admins publish curated kinds.
	if !identity.IsAdmin() && fields.Kind != domain.KindSubmitted {
		return nil, ErrAccessDenied
	}

	listing := fields
	listing.OwnerKind = identity.Kind
	listing.PostedBy = identity.UserID
	listing.Gallery = domain.Gallery{}
	if err := listing.Validate(); err != nil {
		return nil, err
	}

	shortID, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("generate listing id: %w", err)
	}
	listing.ShortID = shortID

	_, err = s.supervisor.Submit(ctx, files, identity.Kind, func(ctx context.Context, batch *media.Batch) (string, error) {
		listing.ScopeID = batch.Scope.ID
		media.UpdateReferences(&listing, media.Change{Add: batch.References()})
		if err := s.listings.Create(ctx, &listing); err != nil {
			return "", err
		}
		return listing.ShortID, nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"listing": listing.ShortID, "images": len(listing.ImagesURLs)}).Info("listing created")
	return &listing, nil
}

func (s *listingService) GetListing(ctx context.Context, shortID string) (*domain.Listing, error) {
	return s.load(ctx, shortID)
}

// EditListingImages adds and removes gallery images. New files go into the
// listing's existing scope; removed objects are deleted only after the record
// no longer references them.
func (s *listingService) EditListingImages(ctx context.Context, identity domain.Identity, shortID string, input EditImagesInput) (*domain.Listing, error) {
	if len(input.Files) == 0 && len(input.Remove) == 0 {
		return nil, fmt.Errorf("%w: nothing to change", media.ErrInvalidInput)
	}

	listing, err := s.load(ctx, shortID)
	if err != nil {
		return nil, err
	}
	if !identity.CanManage(listing) {
		return nil, ErrAccessDenied
	}
	scope, err := media.ExistingScope(listing.ScopeID, listing.OwnerKind)
	if err != nil {
		return nil, err
	}

	var removed []string
	apply := func(ctx context.Context, added []string) (string, error) {
		removed = media.UpdateReferences(listing, media.Change{Add: added, Position: input.Position, Remove: input.Remove})
		version, err := s.listings.UpdateImages(ctx, listing.ShortID, listing.Version, listing.Gallery)
		if err != nil {
			return "", err
		}
		listing.Version = version
		return listing.ShortID, nil
	}

	if len(input.Files) > 0 {
		_, err = s.supervisor.Extend(ctx, scope, listing.ShortID, input.Files, func(ctx context.Context, batch *media.Batch) (string, error) {
			return apply(ctx, batch.References())
		})
	} else {
		_, err = apply(ctx, nil)
	}
	if err != nil {
		return nil, mapRepositoryError(err)
	}

	if keys := s.ownedKeys(scope, removed); len(keys) > 0 {
		if err := s.supervisor.Release(ctx, listing.ShortID, keys); err != nil {
			// The record is already consistent; the ledger holds the leftovers.
			s.log.WithError(err).WithField("listing", listing.ShortID).Warn("removed images not deleted")
		}
	}
	return listing, nil
}

// DeleteListing removes the record, then every object under its scope.
func (s *listingService) DeleteListing(ctx context.Context, identity domain.Identity, shortID string) error {
	listing, err := s.load(ctx, shortID)
	if err != nil {
		return err
	}
	if !identity.CanManage(listing) {
		return ErrAccessDenied
	}

	if err := s.listings.Delete(ctx, shortID); err != nil {
		return &DeletionError{ListingID: shortID, Err: mapRepositoryError(err)}
	}

	scope, err := media.ExistingScope(listing.ScopeID, listing.OwnerKind)
	if err != nil {
		return &DeletionError{ListingID: shortID, RecordRemoved: true, Err: err}
	}
	n, err := s.supervisor.Discard(ctx, scope, shortID)
	if err != nil {
		return &DeletionError{ListingID: shortID, RecordRemoved: true, Err: err}
	}

	s.log.WithFields(logrus.Fields{"listing": shortID, "deleted": n}).Info("listing deleted")
	return nil
}

func (s *listingService) load(ctx context.Context, shortID string) (*domain.Listing, error) {
	listing, err := s.listings.GetByShortID(ctx, shortID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return listing, nil
}

// ownedKeys maps URLs back to object keys, keeping only keys of scope.
// URLs pointing anywhere else are never deleted.
func (s *listingService) ownedKeys(scope media.Scope, urls []string) []string {
	var keys []string
	for _, u := range urls {
		key, ok := s.urls.KeyFromURL(u)
		if !ok || !scope.Contains(key) {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

func mapRepositoryError(err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrListingNotFound, err)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %w", ErrEditConflict, err)
	}
	return err
}
