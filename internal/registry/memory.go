package registry

import (
	"context"
	"sync"
)

// MemoryStore is the in-process Store used by tests and single-node
// development. A single mutex covers all branches, which keeps the
// compare-and-set transitions trivially atomic.
type MemoryStore struct {
	mu       sync.Mutex
	nextID   int64
	byKey    map[string]*TrackedBranch
	byID     map[int64]*TrackedBranch
	attempts map[int64]map[string]LogEntry
}

// NewMemoryStore creates an empty in-memory registry.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID:   1,
		byKey:    make(map[string]*TrackedBranch),
		byID:     make(map[int64]*TrackedBranch),
		attempts: make(map[int64]map[string]LogEntry),
	}
}

func key(remote, name string) string {
	return remote + "\x00" + name
}

// Add registers a tracked branch and returns its stored copy with the ID
// assigned. Used to seed the registry.
func (s *MemoryStore) Add(branch TrackedBranch) *TrackedBranch {
	s.mu.Lock()
	defer s.mu.Unlock()

	branch.ID = s.nextID
	s.nextID++

	stored := branch
	s.byKey[key(branch.Remote, branch.Name)] = &stored
	s.byID[branch.ID] = &stored
	return &stored
}

// Lookup implements Store.
func (s *MemoryStore) Lookup(ctx context.Context, remote, name string) (*TrackedBranch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	branch, ok := s.byKey[key(remote, name)]
	if !ok {
		return nil, nil
	}

	copied := *branch
	return &copied, nil
}

// GetLogEntry implements Store.
func (s *MemoryStore) GetLogEntry(ctx context.Context, branchID int64, value string) (*LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.attempts[branchID][value]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// TriggerUpdate implements Store.
func (s *MemoryStore) TriggerUpdate(ctx context.Context, branchID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	branch, ok := s.byID[branchID]
	if !ok || branch.Disabled || branch.Pending || branch.Updating {
		return false, nil
	}

	branch.Pending = true
	return true, nil
}

// StartUpdate implements Store.
func (s *MemoryStore) StartUpdate(ctx context.Context, branchID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	branch, ok := s.byID[branchID]
	if !ok || !branch.Pending {
		return false, nil
	}

	branch.Pending = false
	branch.Updating = true
	return true, nil
}

// FinishUpdate implements Store.
func (s *MemoryStore) FinishUpdate(ctx context.Context, branchID int64, entry LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if branch, ok := s.byID[branchID]; ok {
		branch.Updating = false
	}

	entry.BranchID = branchID
	if s.attempts[branchID] == nil {
		s.attempts[branchID] = make(map[string]LogEntry)
	}
	s.attempts[branchID][entry.Value] = entry
	return nil
}
