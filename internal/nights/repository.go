package nights

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"sleepstage-service/internal/sleepstage"
)

// Repository defines the concurrency-safe contract for accessing and mutating
// night state.
type Repository interface {
	// CreateNight registers an empty night. Creating an existing night is a
	// no-op.
	CreateNight(ctx context.Context, id NightID) error

	// AppendSamples merges a batch into an existing night and clears any
	// previous staging result. ErrNightNotFound is returned for unknown IDs.
	AppendSamples(ctx context.Context, id NightID, b SampleBatch) error

	// GetNight returns a snapshot of the night that callers may freely read
	// and modify.
	GetNight(ctx context.Context, id NightID) (*Night, error)

	// SaveSegments records the staging result for a night computed from the
	// given revision. ErrStaleRevision is returned, and nothing is stored,
	// when samples were appended after that revision was read.
	SaveSegments(ctx context.Context, id NightID, revision uint64, segments []sleepstage.Segment, stagedAt time.Time) error

	// ListNights returns snapshots of every stored night.
	ListNights(ctx context.Context) ([]*Night, error)

	// NightCount returns the number of stored nights. Used for metrics.
	NightCount(ctx context.Context) (int, error)
}

var (
	// ErrNightNotFound is returned when a night ID is unknown.
	ErrNightNotFound = errors.New("night not found")

	// ErrStaleRevision is returned by SaveSegments when the night changed
	// since the staging input was read.
	ErrStaleRevision = errors.New("night was modified during staging")
)

// StoreRepository is a concurrency-safe implementation of Repository.
// It uses a Store for persistence; by default that is an InMemoryStore.
type StoreRepository struct {
	mu    sync.RWMutex
	store Store
}

// NewInMemoryRepository constructs a repository with a default in-memory store.
func NewInMemoryRepository() *StoreRepository {
	return NewRepository(NewInMemoryStore())
}

// NewRepository constructs a repository that uses the given Store.
func NewRepository(store Store) *StoreRepository {
	return &StoreRepository{store: store}
}

// CreateNight implements Repository.CreateNight.
func (r *StoreRepository) CreateNight(ctx context.Context, id NightID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists, err := r.store.GetNight(ctx, id)
	if err != nil {
		return fmt.Errorf("load night %s: %w", id, err)
	}
	if exists {
		return nil
	}
	return r.store.SetNight(ctx, &Night{ID: id, CreatedAt: time.Now().UTC()})
}

// AppendSamples implements Repository.AppendSamples.
func (r *StoreRepository) AppendSamples(ctx context.Context, id NightID, b SampleBatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.getLocked(ctx, id)
	if err != nil {
		return err
	}
	n.append(b)
	return r.store.SetNight(ctx, n)
}

// GetNight implements Repository.GetNight.
func (r *StoreRepository) GetNight(ctx context.Context, id NightID) (*Night, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, err := r.getLocked(ctx, id)
	if err != nil {
		return nil, err
	}
	return n.clone(), nil
}

// SaveSegments implements Repository.SaveSegments.
func (r *StoreRepository) SaveSegments(ctx context.Context, id NightID, revision uint64, segments []sleepstage.Segment, stagedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.getLocked(ctx, id)
	if err != nil {
		return err
	}
	if n.Revision != revision {
		return ErrStaleRevision
	}
	n.Segments = append([]sleepstage.Segment(nil), segments...)
	n.StagedAt = &stagedAt
	return r.store.SetNight(ctx, n)
}

// ListNights implements Repository.ListNights.
func (r *StoreRepository) ListNights(ctx context.Context) ([]*Night, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, err := r.store.ListNightIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list nights: %w", err)
	}
	out := make([]*Night, 0, len(ids))
	for _, id := range ids {
		n, ok, err := r.store.GetNight(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load night %s: %w", id, err)
		}
		// Expired between listing and loading.
		if !ok {
			continue
		}
		out = append(out, n.clone())
	}
	return out, nil
}

// NightCount implements Repository.NightCount.
func (r *StoreRepository) NightCount(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids, err := r.store.ListNightIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list nights: %w", err)
	}
	return len(ids), nil
}

// getLocked loads a night or returns ErrNightNotFound.
// Caller must hold r.mu.
func (r *StoreRepository) getLocked(ctx context.Context, id NightID) (*Night, error) {
	n, ok, err := r.store.GetNight(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load night %s: %w", id, err)
	}
	if !ok {
		return nil, ErrNightNotFound
	}
	return n, nil
}

func (n *Night) clone() *Night {
	c := *n
	c.Samples.Annotations = append([]sleepstage.Annotation(nil), n.Samples.Annotations...)
	c.Samples.HeartRate = append([]sleepstage.Sample(nil), n.Samples.HeartRate...)
	c.Samples.HRV = append([]sleepstage.Sample(nil), n.Samples.HRV...)
	c.Samples.Motion = append([]sleepstage.MotionSample(nil), n.Samples.Motion...)
	c.Segments = append([]sleepstage.Segment(nil), n.Segments...)
	return &c
}
