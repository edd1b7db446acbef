package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listings/media-pipeline/internal/domain"
	"github.com/listings/media-pipeline/internal/logging"
)

var testNow = time.UnixMilli(1700000000000)

func newTestCoordinator(store *hookStore, opts ...CoordinatorOption) *Coordinator {
	base := []CoordinatorOption{
		WithClock(func() time.Time { return testNow }),
		WithScopeIDs(fixedIDs("XYZ123A")),
		WithCoordinatorLogger(logging.Discard()),
	}
	return NewCoordinator(store, append(base, opts...)...)
}

func TestCoordinator_UploadPreservesInputOrder(t *testing.T) {
	store := newHookStore()
	files := []File{png("0.png"), jpg("1.jpg"), png("2.png"), jpg("3.jpg"), png("4.png")}

	// Each write waits for the next one, so they complete in reverse order.
	done := make([]chan struct{}, len(files))
	index := map[string]int{}
	for i, f := range files {
		done[i] = make(chan struct{})
		index[Scope{ID: "XYZ123A", Owner: domain.OwnerUser}.Key(testNow, f.Name)] = i
	}
	var mu sync.Mutex
	var order []int
	store.beforePut = func(ctx context.Context, key string) error {
		i := index[key]
		defer close(done[i])
		if i+1 < len(files) {
			select {
			case <-done[i+1]:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		mu.Lock()
		order = append(order, i)
		mu.Unlock()
		return nil
	}

	c := newTestCoordinator(store, WithMaxConcurrency(len(files)))
	batch, err := c.Upload(context.Background(), files, domain.OwnerUser)
	require.NoError(t, err)

	require.Len(t, batch.Files, len(files))
	for i, f := range files {
		want := "userProperties/XYZ123A/1700000000000_" + f.Name
		assert.Equal(t, want, batch.Files[i].Key)
		assert.Equal(t, testBaseURL+"/"+want, batch.References()[i])
	}
	assert.Equal(t, []int{4, 3, 2, 1, 0}, order, "writes should have finished in reverse")
}

func TestCoordinator_DropsNonImages(t *testing.T) {
	store := newHookStore()
	c := newTestCoordinator(store)

	batch, err := c.Upload(context.Background(), []File{png("a.png"), gif("c.gif"), jpg("b.jpg"),
		{Name: "doc.pdf", Data: []byte("%PDF"), ContentType: "application/pdf"},
		{Name: "x.jpg", Data: []byte("x"), ContentType: "IMAGE/JPG"},
	}, domain.OwnerAdmin)
	require.NoError(t, err)

	assert.Equal(t, []string{
		testBaseURL + "/adminProperties/XYZ123A/1700000000000_a.png",
		testBaseURL + "/adminProperties/XYZ123A/1700000000000_b.jpg",
		testBaseURL + "/adminProperties/XYZ123A/1700000000000_x.jpg",
	}, batch.References())
	assert.Equal(t, "image/jpg", batch.Files[2].ContentType)
	assert.Equal(t, int32(3), store.puts.Load())
}

func TestCoordinator_RejectsWithoutWrites(t *testing.T) {
	tests := []struct {
		name  string
		files []File
		want  error
	}{
		{"empty batch", nil, ErrInvalidInput},
		{"all invalid types", []File{gif("a.gif"), {Name: "b.txt", ContentType: "text/plain"}}, ErrNoValidFiles},
		{"oversize file", []File{png("a.png"), {Name: "big.png", Data: make([]byte, 65), ContentType: "image/png"}}, ErrInvalidInput},
		{"nameless file", []File{{Name: "", Data: []byte("x"), ContentType: "image/png"}}, ErrInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := newHookStore()
			c := newTestCoordinator(store, WithMaxFileSize(64))

			batch, err := c.Upload(context.Background(), tc.files, domain.OwnerUser)
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, batch)
			assert.Equal(t, int32(0), store.puts.Load())
			assert.Equal(t, 0, store.Len())
		})
	}
}

func TestCoordinator_UnknownOwner(t *testing.T) {
	c := newTestCoordinator(newHookStore())
	_, err := c.Upload(context.Background(), []File{png("a.png")}, "robot")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCoordinator_DuplicateNamesGetDistinctKeys(t *testing.T) {
	store := newHookStore()
	c := newTestCoordinator(store)

	batch, err := c.Upload(context.Background(), []File{png("a.png"), png("a.png"), png("a.png")}, domain.OwnerUser)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"userProperties/XYZ123A/1700000000000_a.png",
		"userProperties/XYZ123A/1700000000001_a.png",
		"userProperties/XYZ123A/1700000000002_a.png",
	}, batch.Keys)
	assert.Equal(t, 3, store.Len())
}

func TestCoordinator_PartialFailureWaitsForSiblings(t *testing.T) {
	store := newHookStore()
	boom := errors.New("network reset")

	var mu sync.Mutex
	finished := map[string]bool{}
	store.beforePut = func(ctx context.Context, key string) error {
		if p, _ := ParseKey(key); p.FileName == "b.png" {
			return boom
		}
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		finished[key] = true
		mu.Unlock()
		return nil
	}

	c := newTestCoordinator(store, WithMaxConcurrency(4))
	batch, err := c.Upload(context.Background(), []File{png("a.png"), png("b.png"), png("c.png")}, domain.OwnerUser)

	var partial *PartialUploadFailure
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "b.png", partial.File)
	assert.Equal(t, "userProperties/XYZ123A/1700000000000_b.png", partial.Key)
	assert.ErrorIs(t, err, boom)

	// Siblings were allowed to finish and nothing was cleaned up here.
	assert.Len(t, finished, 2)
	assert.Equal(t, 2, store.Len())
	require.NotNil(t, batch)
	assert.Len(t, batch.Keys, 3)
	assert.Empty(t, store.prefixDeletes)
}

func TestCoordinator_ReportsFirstFailureInInputOrder(t *testing.T) {
	store := newHookStore()
	store.beforePut = func(ctx context.Context, key string) error {
		p, _ := ParseKey(key)
		switch p.FileName {
		case "b.png":
			time.Sleep(30 * time.Millisecond)
			return fmt.Errorf("slow failure")
		case "c.png":
			return fmt.Errorf("fast failure")
		}
		return nil
	}

	c := newTestCoordinator(store, WithMaxConcurrency(3))
	_, err := c.Upload(context.Background(), []File{png("a.png"), png("b.png"), png("c.png")}, domain.OwnerUser)

	var partial *PartialUploadFailure
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, "b.png", partial.File)
}

func TestCoordinator_Timeout(t *testing.T) {
	store := newHookStore()
	store.beforePut = func(ctx context.Context, key string) error {
		if p, _ := ParseKey(key); p.FileName == "stall.png" {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	}

	c := newTestCoordinator(store, WithBatchTimeout(30*time.Millisecond))
	start := time.Now()
	batch, err := c.Upload(context.Background(), []File{png("ok.png"), png("stall.png")}, domain.OwnerAdmin)

	assert.ErrorIs(t, err, ErrUploadTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.NotNil(t, batch)
	assert.Equal(t, "adminProperties/XYZ123A/", batch.Scope.Prefix())
}

func TestCoordinator_UploadIntoExistingScope(t *testing.T) {
	store := newHookStore()
	c := newTestCoordinator(store)
	scope, err := ExistingScope("ABCDEFG", domain.OwnerUser)
	require.NoError(t, err)

	batch, err := c.UploadInto(context.Background(), scope, []File{jpg("new.jpg")})
	require.NoError(t, err)
	assert.Equal(t, []string{"userProperties/ABCDEFG/1700000000000_new.jpg"}, batch.Keys)
}
