package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testValue = "6dcd4ce23d88e2ee9568ba546c007c63d9131c1b"

func seed(s *MemoryStore) *TrackedBranch {
	return s.Add(TrackedBranch{
		Remote: "git.example.com:team/repo.git",
		Name:   "main",
		Branch: "tracked/main",
		Review: &Review{ID: 42, Summary: "r/42"},
	})
}

func TestLookup(t *testing.T) {
	store := NewMemoryStore()
	seeded := seed(store)

	branch, err := store.Lookup(context.Background(), "git.example.com:team/repo.git", "main")
	require.NoError(t, err)
	require.NotNil(t, branch)
	assert.Equal(t, seeded.ID, branch.ID)
	assert.Equal(t, "tracked/main", branch.Branch)

	// Unknown identities are a nil result, not an error.
	missing, err := store.Lookup(context.Background(), "git.example.com:team/repo.git", "dev")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestLookupReturnsCopy(t *testing.T) {
	store := NewMemoryStore()
	seeded := seed(store)

	branch, err := store.Lookup(context.Background(), seeded.Remote, seeded.Name)
	require.NoError(t, err)

	branch.Pending = true

	again, err := store.Lookup(context.Background(), seeded.Remote, seeded.Name)
	require.NoError(t, err)
	assert.False(t, again.Pending)
}

func TestUpdateLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	seeded := seed(store)

	claimed, err := store.TriggerUpdate(ctx, seeded.ID)
	require.NoError(t, err)
	assert.True(t, claimed)

	// Already pending: the second trigger loses.
	claimed, err = store.TriggerUpdate(ctx, seeded.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	started, err := store.StartUpdate(ctx, seeded.ID)
	require.NoError(t, err)
	assert.True(t, started)

	branch, err := store.Lookup(ctx, seeded.Remote, seeded.Name)
	require.NoError(t, err)
	assert.False(t, branch.Pending)
	assert.True(t, branch.Updating)

	// Updating blocks a new trigger too.
	claimed, err = store.TriggerUpdate(ctx, seeded.ID)
	require.NoError(t, err)
	assert.False(t, claimed)

	err = store.FinishUpdate(ctx, seeded.ID, LogEntry{
		Value:      testValue,
		HookOutput: "remote: accepted",
		Successful: true,
	})
	require.NoError(t, err)

	branch, err = store.Lookup(ctx, seeded.Remote, seeded.Name)
	require.NoError(t, err)
	assert.False(t, branch.Updating)

	entry, err := store.GetLogEntry(ctx, seeded.ID, testValue)
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, seeded.ID, entry.BranchID)
	assert.Equal(t, "remote: accepted", entry.HookOutput)
	assert.True(t, entry.Successful)

	// The next cycle can start fresh.
	claimed, err = store.TriggerUpdate(ctx, seeded.ID)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestTriggerUpdateDisabled(t *testing.T) {
	store := NewMemoryStore()
	branch := store.Add(TrackedBranch{
		Remote:   "git.example.com:team/repo.git",
		Name:     "main",
		Branch:   "tracked/main",
		Disabled: true,
	})

	claimed, err := store.TriggerUpdate(context.Background(), branch.ID)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestStartUpdateRequiresPending(t *testing.T) {
	store := NewMemoryStore()
	branch := seed(store)

	started, err := store.StartUpdate(context.Background(), branch.ID)
	require.NoError(t, err)
	assert.False(t, started)
}

func TestGetLogEntryMissing(t *testing.T) {
	store := NewMemoryStore()
	branch := seed(store)

	entry, err := store.GetLogEntry(context.Background(), branch.ID, testValue)
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestTriggerUpdateConcurrent(t *testing.T) {
	store := NewMemoryStore()
	branch := seed(store)

	const racers = 32
	var wg sync.WaitGroup
	wins := make(chan bool, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claimed, err := store.TriggerUpdate(context.Background(), branch.ID)
			assert.NoError(t, err)
			wins <- claimed
		}()
	}
	wg.Wait()
	close(wins)

	var winners int
	for claimed := range wins {
		if claimed {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}
