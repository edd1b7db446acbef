package media

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/listings/media-pipeline/internal/domain"
	"github.com/listings/media-pipeline/internal/storage"
)

const DefaultRollbackTimeout = 15 * time.Second

// State is a step of a supervised submission.
type State int

const (
	StateUploading State = iota
	StatePersisting
	StateCommitted
	StateRollingBack
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUploading:
		return "uploading"
	case StatePersisting:
		return "persisting"
	case StateCommitted:
		return "committed"
	case StateRollingBack:
		return "rolling back"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// PersistFunc performs the domain write for a stored batch and returns the
// persisted record id.
type PersistFunc func(ctx context.Context, batch *Batch) (string, error)

// OrphanRecorder keeps track of objects a compensating delete could not remove.
type OrphanRecorder interface {
	RecordOrphan(ctx context.Context, rec domain.OrphanRecord) error
}

// Outcome describes a committed submission.
type Outcome struct {
	Batch    *Batch
	RecordID string
	Trace    []State
}

// Supervisor runs upload + persist as one unit and compensates on failure.
// It is the only component that deletes by scope prefix.
type Supervisor struct {
	coordinator     *Coordinator
	store           storage.BlobStore
	orphans         OrphanRecorder
	rollbackTimeout time.Duration
	now             func() time.Time
	log             logrus.FieldLogger
}

type SupervisorOption func(*Supervisor)

func WithRollbackTimeout(d time.Duration) SupervisorOption {
	return func(s *Supervisor) {
		if d > 0 {
			s.rollbackTimeout = d
		}
	}
}

func WithSupervisorLogger(log logrus.FieldLogger) SupervisorOption {
	return func(s *Supervisor) { s.log = log }
}

func NewSupervisor(coordinator *Coordinator, store storage.BlobStore, orphans OrphanRecorder, opts ...SupervisorOption) *Supervisor {
	s := &Supervisor{
		coordinator:     coordinator,
		store:           store,
		orphans:         orphans,
		rollbackTimeout: DefaultRollbackTimeout,
		now:             time.Now,
		log:             logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Coordinator exposes the coordinator so callers can allocate scopes.
func (s *Supervisor) Coordinator() *Coordinator { return s.coordinator }

// run tracks the state machine of one submission.
type run struct {
	trace []State
	log   logrus.FieldLogger
}

func (r *run) to(st State) {
	r.trace = append(r.trace, st)
	r.log.WithField("state", st.String()).Debug("submission state")
}

// Submit uploads files into a new scope for owner and persists them.
// Any failure after a write may have happened deletes the whole scope.
func (s *Supervisor) Submit(ctx context.Context, files []File, owner domain.OwnerKind, persist PersistFunc) (*Outcome, error) {
	scope, err := s.coordinator.NewScope(owner)
	if err != nil {
		return nil, &SubmissionError{Stage: StateUploading, Err: err}
	}
	return s.supervise(ctx, scope, files, "", persist, func(ctx context.Context, b *Batch) (int, *RollbackFailure) {
		return s.rollbackPrefix(ctx, scope.Prefix(), "", "submission failed")
	})
}

// Extend uploads files into an existing listing scope. The scope already holds
// live images, so compensation deletes only the keys this call attempted.
func (s *Supervisor) Extend(ctx context.Context, scope Scope, listingID string, files []File, persist PersistFunc) (*Outcome, error) {
	return s.supervise(ctx, scope, files, listingID, persist, func(ctx context.Context, b *Batch) (int, *RollbackFailure) {
		return s.rollbackKeys(ctx, b.Keys, listingID, "edit failed")
	})
}

type compensateFunc func(ctx context.Context, b *Batch) (int, *RollbackFailure)

func (s *Supervisor) supervise(ctx context.Context, scope Scope, files []File, listingID string, persist PersistFunc, compensate compensateFunc) (*Outcome, error) {
	r := &run{log: s.log.WithFields(logrus.Fields{"scope": scope.Prefix(), "listing": listingID})}

	r.to(StateUploading)
	batch, err := s.coordinator.UploadInto(ctx, scope, files)
	if err != nil {
		subErr := &SubmissionError{Stage: StateUploading, Err: err}
		if batch != nil {
			// Some writes may have landed before the failure.
			r.to(StateRollingBack)
			subErr.RolledBack, subErr.Rollback = compensate(ctx, batch)
		}
		r.to(StateFailed)
		return nil, subErr
	}

	r.to(StatePersisting)
	recordID, err := persist(ctx, batch)
	if err != nil {
		r.log.WithError(err).Warn("persisting failed, rolling back uploads")
		r.to(StateRollingBack)
		subErr := &SubmissionError{Stage: StatePersisting, Err: &PersistError{Err: err}}
		subErr.RolledBack, subErr.Rollback = compensate(ctx, batch)
		r.to(StateFailed)
		return nil, subErr
	}

	r.to(StateCommitted)
	return &Outcome{Batch: batch, RecordID: recordID, Trace: r.trace}, nil
}

// Discard deletes every object of a scope. It is used when the owning
// listing is removed; a failure is recorded as an orphan before returning.
func (s *Supervisor) Discard(ctx context.Context, scope Scope, listingID string) (int, error) {
	n, rf := s.rollbackPrefix(ctx, scope.Prefix(), listingID, "listing removed")
	if rf != nil {
		return n, rf
	}
	return n, nil
}

// Release deletes objects whose references were dropped from a committed
// record. Failures are recorded as orphans and returned.
func (s *Supervisor) Release(ctx context.Context, listingID string, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	if _, rf := s.rollbackKeys(ctx, keys, listingID, "references removed"); rf != nil {
		return rf
	}
	return nil
}

// Compensate replays an orphan record. It does not record new orphans.
func (s *Supervisor) Compensate(ctx context.Context, rec domain.OrphanRecord) error {
	if rec.Prefix != "" {
		_, err := s.store.DeleteByPrefix(ctx, rec.Prefix)
		return err
	}
	var errs []error
	for _, k := range rec.Keys {
		if err := s.store.DeleteObject(ctx, k); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// detached keeps compensation running when the request context is already
// cancelled or past its deadline.
func (s *Supervisor) detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.rollbackTimeout)
}

func (s *Supervisor) rollbackPrefix(ctx context.Context, prefix, listingID, reason string) (int, *RollbackFailure) {
	rctx, cancel := s.detached(ctx)
	defer cancel()

	n, err := s.store.DeleteByPrefix(rctx, prefix)
	if err == nil {
		s.log.WithFields(logrus.Fields{"prefix": prefix, "deleted": n}).Info("deleted scope")
		return n, nil
	}

	rf := &RollbackFailure{Prefix: prefix, Err: err}
	s.recordOrphan(rctx, domain.OrphanRecord{Prefix: prefix, ListingID: listingID, Reason: reason, Cause: err.Error()}, rf)
	return n, rf
}

func (s *Supervisor) rollbackKeys(ctx context.Context, keys []string, listingID, reason string) (int, *RollbackFailure) {
	rctx, cancel := s.detached(ctx)
	defer cancel()

	deleted := 0
	var failed []string
	var errs []error
	for _, k := range keys {
		if err := s.store.DeleteObject(rctx, k); err != nil {
			failed = append(failed, k)
			errs = append(errs, err)
			continue
		}
		deleted++
	}
	if len(failed) == 0 {
		s.log.WithFields(logrus.Fields{"listing": listingID, "deleted": deleted}).Info("deleted objects")
		return deleted, nil
	}

	err := errors.Join(errs...)
	rf := &RollbackFailure{Keys: failed, Err: err}
	s.recordOrphan(rctx, domain.OrphanRecord{Keys: failed, ListingID: listingID, Reason: reason, Cause: err.Error()}, rf)
	return deleted, rf
}

func (s *Supervisor) recordOrphan(ctx context.Context, rec domain.OrphanRecord, rf *RollbackFailure) {
	log := s.log.WithError(rf.Err).WithFields(logrus.Fields{
		"prefix":  rec.Prefix,
		"keys":    rec.Keys,
		"listing": rec.ListingID,
		"reason":  rec.Reason,
	})
	log.Error("compensating delete failed, objects may be orphaned")

	if s.orphans == nil {
		return
	}
	rec.CreatedAt = s.now().UnixMilli()
	if err := s.orphans.RecordOrphan(ctx, rec); err != nil {
		log.WithField("recordError", err.Error()).Error("failed to record orphaned objects")
	}
}
