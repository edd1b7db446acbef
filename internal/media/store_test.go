package media

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/listings/media-pipeline/internal/domain"
	"github.com/listings/media-pipeline/internal/storage"
)

const testBaseURL = "https://cdn.example.com/listings"

// hookStore is a MemoryStore with injectable failures.
type hookStore struct {
	*storage.MemoryStore
	beforePut       func(ctx context.Context, key string) error
	deletePrefixErr error
	deleteErr       func(key string) error

	puts          atomic.Int32
	mu            sync.Mutex
	prefixDeletes []string
}

func newHookStore() *hookStore {
	return &hookStore{MemoryStore: storage.NewMemoryStore(testBaseURL)}
}

func (h *hookStore) Put(ctx context.Context, key string, data []byte, contentType string) (storage.Object, error) {
	h.puts.Add(1)
	if h.beforePut != nil {
		if err := h.beforePut(ctx, key); err != nil {
			return storage.Object{}, &storage.StoreError{Op: "put", Key: key, Err: err}
		}
	}
	return h.MemoryStore.Put(ctx, key, data, contentType)
}

func (h *hookStore) DeleteByPrefix(ctx context.Context, prefix string) (int, error) {
	h.mu.Lock()
	h.prefixDeletes = append(h.prefixDeletes, prefix)
	h.mu.Unlock()
	if h.deletePrefixErr != nil {
		return 0, h.deletePrefixErr
	}
	return h.MemoryStore.DeleteByPrefix(ctx, prefix)
}

func (h *hookStore) DeleteObject(ctx context.Context, key string) error {
	if h.deleteErr != nil {
		if err := h.deleteErr(key); err != nil {
			return err
		}
	}
	return h.MemoryStore.DeleteObject(ctx, key)
}

type fakeOrphans struct {
	mu      sync.Mutex
	records []domain.OrphanRecord
	err     error
}

func (f *fakeOrphans) RecordOrphan(_ context.Context, rec domain.OrphanRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func fixedIDs(ids ...string) func() (string, error) {
	var i atomic.Int32
	return func() (string, error) {
		n := int(i.Add(1)) - 1
		return ids[n%len(ids)], nil
	}
}

func png(name string) File { return File{Name: name, Data: []byte("png:" + name), ContentType: "image/png"} }
func jpg(name string) File { return File{Name: name, Data: []byte("jpg:" + name), ContentType: "image/jpeg"} }
func gif(name string) File { return File{Name: name, Data: []byte("gif:" + name), ContentType: "image/gif"} }
