package media

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/iter"

	"github.com/listings/media-pipeline/internal/domain"
	"github.com/listings/media-pipeline/internal/storage"
)

const (
	DefaultBatchTimeout   = 30 * time.Second
	DefaultMaxFileSize    = 7 * 1024 * 1024
	DefaultMaxConcurrency = 8
)

// acceptedTypes is the image filter applied to every batch.
var acceptedTypes = map[string]bool{
	"image/png":  true,
	"image/jpg":  true,
	"image/jpeg": true,
}

// File is one in-memory file submitted by a caller.
type File struct {
	Name        string
	Data        []byte
	ContentType string
}

// StoredFile is a file that was written to the blob store.
type StoredFile struct {
	Key         string
	ContentType string
	Size        int64
	URL         string
}

// Batch is the result of one upload call. On failure it still carries the
// scope and every key that was attempted so the caller can compensate.
type Batch struct {
	Scope Scope
	Files []StoredFile // input order, filtered
	Keys  []string     // attempted keys, input order
}

// References returns the public URLs in input order.
func (b *Batch) References() []string {
	refs := make([]string, len(b.Files))
	for i, f := range b.Files {
		refs[i] = f.URL
	}
	return refs
}

// Coordinator writes a batch of files into a scope concurrently.
// It never retries and never deletes; compensation belongs to the Supervisor.
type Coordinator struct {
	store          storage.BlobStore
	batchTimeout   time.Duration
	maxFileSize    int64
	maxConcurrency int
	now            func() time.Time
	newScopeID     func() (string, error)
	log            logrus.FieldLogger
}

type CoordinatorOption func(*Coordinator)

func WithBatchTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.batchTimeout = d
		}
	}
}

func WithMaxFileSize(n int64) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxFileSize = n
		}
	}
}

func WithMaxConcurrency(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxConcurrency = n
		}
	}
}

// WithClock replaces time.Now for key timestamps.
func WithClock(now func() time.Time) CoordinatorOption {
	return func(c *Coordinator) { c.now = now }
}

// WithScopeIDs replaces the random scope id generator.
func WithScopeIDs(gen func() (string, error)) CoordinatorOption {
	return func(c *Coordinator) { c.newScopeID = gen }
}

func WithCoordinatorLogger(log logrus.FieldLogger) CoordinatorOption {
	return func(c *Coordinator) { c.log = log }
}

func NewCoordinator(store storage.BlobStore, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:          store,
		batchTimeout:   DefaultBatchTimeout,
		maxFileSize:    DefaultMaxFileSize,
		maxConcurrency: DefaultMaxConcurrency,
		now:            time.Now,
		newScopeID:     NewID,
		log:            logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewScope creates a fresh scope for owner.
func (c *Coordinator) NewScope(owner domain.OwnerKind) (Scope, error) {
	if _, err := Namespace(owner); err != nil {
		return Scope{}, err
	}
	id, err := c.newScopeID()
	if err != nil {
		return Scope{}, fmt.Errorf("generate scope id: %w", err)
	}
	return Scope{ID: id, Owner: owner, CreatedAt: c.now().UTC()}, nil
}

// Upload stores files under a new scope for owner.
func (c *Coordinator) Upload(ctx context.Context, files []File, owner domain.OwnerKind) (*Batch, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files", ErrInvalidInput)
	}
	scope, err := c.NewScope(owner)
	if err != nil {
		return nil, err
	}
	return c.UploadInto(ctx, scope, files)
}

type uploadJob struct {
	name        string
	key         string
	contentType string
	data        []byte
}

// UploadInto stores files under an existing scope. Files whose type is not an
// accepted image are dropped; if none remain the call fails with
// ErrNoValidFiles before any write. Writes run concurrently and the call
// waits for all of them, even after one failed.
func (c *Coordinator) UploadInto(ctx context.Context, scope Scope, files []File) (*Batch, error) {
	jobs, err := c.plan(scope, files)
	if err != nil {
		return nil, err
	}

	batch := &Batch{Scope: scope, Keys: make([]string, len(jobs))}
	for i, j := range jobs {
		batch.Keys[i] = j.key
	}

	batchCtx, cancel := context.WithTimeout(ctx, c.batchTimeout)
	defer cancel()

	results := make([]storage.Object, len(jobs))
	errs := make([]error, len(jobs))
	iter.Iterator[uploadJob]{MaxGoroutines: c.maxConcurrency}.ForEachIdx(jobs, func(i int, j *uploadJob) {
		results[i], errs[i] = c.store.Put(batchCtx, j.key, j.data, j.contentType)
	})

	for i, err := range errs {
		if err == nil {
			continue
		}
		if errors.Is(batchCtx.Err(), context.DeadlineExceeded) {
			c.log.WithFields(logrus.Fields{"scope": scope.Prefix(), "timeout": c.batchTimeout}).Warn("upload batch timed out")
			return batch, fmt.Errorf("%w after %s: %w", ErrUploadTimeout, c.batchTimeout, err)
		}
		c.log.WithError(err).WithFields(logrus.Fields{"scope": scope.Prefix(), "file": jobs[i].name}).Warn("upload batch failed")
		return batch, &PartialUploadFailure{File: jobs[i].name, Key: jobs[i].key, Err: err}
	}

	batch.Files = make([]StoredFile, len(jobs))
	for i, obj := range results {
		batch.Files[i] = StoredFile{Key: obj.Key, ContentType: obj.ContentType, Size: obj.Size, URL: obj.URL}
	}
	c.log.WithFields(logrus.Fields{"scope": scope.Prefix(), "files": len(jobs)}).Info("upload batch stored")
	return batch, nil
}

// plan filters the batch and assigns keys. Nothing is written here.
func (c *Coordinator) plan(scope Scope, files []File) ([]uploadJob, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files", ErrInvalidInput)
	}

	now := c.now()
	used := make(map[string]bool, len(files))
	jobs := make([]uploadJob, 0, len(files))
	for _, f := range files {
		contentType := strings.ToLower(strings.TrimSpace(f.ContentType))
		if !acceptedTypes[contentType] {
			c.log.WithFields(logrus.Fields{"file": f.Name, "contentType": f.ContentType}).Info("dropping non-image file")
			continue
		}
		name := cleanFileName(f.Name)
		if name == "" {
			return nil, fmt.Errorf("%w: file without a name", ErrInvalidInput)
		}
		if int64(len(f.Data)) > c.maxFileSize {
			return nil, fmt.Errorf("%w: %q is larger than %d bytes", ErrInvalidInput, name, c.maxFileSize)
		}

		// Same name twice in one batch: bump the timestamp so keys stay unique
		// and still parse back into their parts.
		ts := now
		key := scope.Key(ts, name)
		for used[key] {
			ts = ts.Add(time.Millisecond)
			key = scope.Key(ts, name)
		}
		used[key] = true

		jobs = append(jobs, uploadJob{name: name, key: key, contentType: contentType, data: f.Data})
	}

	if len(jobs) == 0 {
		return nil, ErrNoValidFiles
	}
	return jobs, nil
}
