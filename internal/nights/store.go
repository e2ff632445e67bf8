package nights

import (
	"context"
	"sort"
)

// Store is the persistence abstraction for night state.
// Implementations can be in-memory, Redis or Postgres.
// The Repository uses Store for all reads and writes; callers of Repository
// do not need to know which Store is used.
type Store interface {
	// GetNight returns the night with the given ID. ok is false when it does
	// not exist; err is reserved for backend failures.
	GetNight(ctx context.Context, id NightID) (n *Night, ok bool, err error)
	SetNight(ctx context.Context, n *Night) error
	ListNightIDs(ctx context.Context) ([]NightID, error)
}

// InMemoryStore is an in-memory implementation of Store. It is not safe for
// concurrent use on its own; Repository serializes access to it.
type InMemoryStore struct {
	nights map[NightID]*Night
}

// NewInMemoryStore returns a new empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		nights: make(map[NightID]*Night),
	}
}

// GetNight implements Store.GetNight.
func (s *InMemoryStore) GetNight(_ context.Context, id NightID) (*Night, bool, error) {
	n, ok := s.nights[id]
	return n, ok, nil
}

// SetNight implements Store.SetNight.
func (s *InMemoryStore) SetNight(_ context.Context, n *Night) error {
	s.nights[n.ID] = n
	return nil
}

// ListNightIDs implements Store.ListNightIDs. IDs are returned sorted.
func (s *InMemoryStore) ListNightIDs(_ context.Context) ([]NightID, error) {
	ids := make([]NightID, 0, len(s.nights))
	for id := range s.nights {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
