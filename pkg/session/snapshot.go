package session

import (
	"context"
	"sync"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// Snapshot is the serializable form of a session
type Snapshot struct {
	ID          string                  `json:"id"`
	State       State                   `json:"state"`
	SearchState SearchState             `json:"search_state,omitempty"`
	SearchText  string                  `json:"search_text,omitempty"`
	Fact        models.RawFact          `json:"fact"`
	Suggestions []models.MatchCandidate `json:"suggestions"`
	Manual      []models.MatchCandidate `json:"manual,omitempty"`
	Displayed   []models.MatchCandidate `json:"displayed"`
	Failures    []string                `json:"failed_strategies,omitempty"`
	CreatedAt   time.Time               `json:"created_at"`
}

// SnapshotStore keeps session snapshots between requests
type SnapshotStore interface {
	Save(ctx context.Context, snapshot Snapshot, ttl time.Duration) error
	// Load returns models.ErrNotFound for unknown or expired sessions
	Load(ctx context.Context, id string) (*Snapshot, error)
}

// Snapshot captures the session state
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Snapshot{
		ID:          s.id,
		State:       s.state,
		SearchState: s.searchState,
		SearchText:  s.searchText,
		Fact:        s.fact,
		Suggestions: append([]models.MatchCandidate{}, s.suggestions...),
		Manual:      append([]models.MatchCandidate(nil), s.manual...),
		Displayed:   s.displayed(),
		Failures:    append([]string(nil), s.failures...),
		CreatedAt:   s.createdAt,
	}
}

// MemorySnapshotStore keeps snapshots in process memory. Expired entries are dropped on read.
type MemorySnapshotStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	snapshot  Snapshot
	expiresAt time.Time
}

// NewMemorySnapshotStore creates an empty in-memory snapshot store
func NewMemorySnapshotStore() *MemorySnapshotStore {
	return &MemorySnapshotStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemorySnapshotStore) Save(_ context.Context, snapshot Snapshot, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}
	m.entries[snapshot.ID] = memoryEntry{snapshot: snapshot, expiresAt: expiresAt}
	return nil
}

func (m *MemorySnapshotStore) Load(_ context.Context, id string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	if !entry.expiresAt.IsZero() && m.now().After(entry.expiresAt) {
		delete(m.entries, id)
		return nil, models.ErrNotFound
	}
	snapshot := entry.snapshot
	return &snapshot, nil
}
