package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/listings/media-pipeline/internal/domain"
	"github.com/listings/media-pipeline/internal/repository"
	"github.com/listings/media-pipeline/internal/storage"
)

const testBaseURL = "https://cdn.example.com/listings"

// fakeListings is an in-memory ListingRepository.
type fakeListings struct {
	repository.ListingRepository

	mu        sync.Mutex
	byID      map[string]domain.Listing
	createErr error
	updateErr error
}

func newFakeListings() *fakeListings {
	return &fakeListings{byID: make(map[string]domain.Listing)}
}

func (f *fakeListings) Create(_ context.Context, l *domain.Listing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byID[l.ShortID]; ok {
		return repository.ErrConflict
	}
	l.Version = 1
	f.byID[l.ShortID] = clone(*l)
	return nil
}

func (f *fakeListings) GetByShortID(_ context.Context, id string) (*domain.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := clone(l)
	return &out, nil
}

func (f *fakeListings) UpdateImages(_ context.Context, id string, version int64, g domain.Gallery) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return 0, f.updateErr
	}
	l, ok := f.byID[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if l.Version != version {
		return 0, repository.ErrConflict
	}
	l.ImagesURLs = append([]string(nil), g.ImagesURLs...)
	l.Thumbnail = g.Thumbnail
	l.Version++
	f.byID[id] = l
	return l.Version, nil
}

func (f *fakeListings) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeListings) stored(id string) (domain.Listing, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.byID[id]
	return l, ok
}

func clone(l domain.Listing) domain.Listing {
	l.ImagesURLs = append([]string(nil), l.ImagesURLs...)
	l.Coords = append([]float64(nil), l.Coords...)
	return l
}

// fakeOrphanRepo is an in-memory OrphanRepository.
type fakeOrphanRepo struct {
	mu      sync.Mutex
	records []domain.OrphanRecord
	seq     int
	listErr error
}

func (f *fakeOrphanRepo) RecordOrphan(_ context.Context, rec domain.OrphanRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	rec.ID = fmt.Sprintf("orphan-%d", f.seq)
	f.records = append(f.records, rec)
	return nil
}

func (f *fakeOrphanRepo) ListPending(_ context.Context, limit int) ([]domain.OrphanRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []domain.OrphanRecord
	for _, r := range f.records {
		if !r.Resolved && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeOrphanRepo) MarkResolved(_ context.Context, id string) error {
	return f.update(id, func(r *domain.OrphanRecord) { r.Resolved = true })
}

func (f *fakeOrphanRepo) MarkAttempt(_ context.Context, id string, lastErr string) error {
	return f.update(id, func(r *domain.OrphanRecord) {
		r.Attempts++
		r.LastError = lastErr
	})
}

func (f *fakeOrphanRepo) update(id string, fn func(*domain.OrphanRecord)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.records {
		if f.records[i].ID == id {
			fn(&f.records[i])
			return nil
		}
	}
	return repository.ErrNotFound
}

func (f *fakeOrphanRepo) all() []domain.OrphanRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.OrphanRecord(nil), f.records...)
}

// flakyStore is a MemoryStore whose deletes can be made to fail.
type flakyStore struct {
	*storage.MemoryStore
	deletePrefixErr error
	deleteErr       error
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: storage.NewMemoryStore(testBaseURL)}
}

func (s *flakyStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	if s.deletePrefixErr != nil {
		return 0, s.deletePrefixErr
	}
	return s.MemoryStore.DeleteByPrefix(ctx, prefix)
}

func (s *flakyStore) DeleteObject(ctx context.Context, key string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	return s.MemoryStore.DeleteObject(ctx, key)
}

// sequentialIDs returns S000001, S000002, ...
func sequentialIDs(prefix string) func() (string, error) {
	var n atomic.Int32
	return func() (string, error) {
		return fmt.Sprintf("%s%06d", prefix, n.Add(1)), nil
	}
}
