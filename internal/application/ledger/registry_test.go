package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/study-hub/internal/domain/progress"
	"github.com/alem-hub/study-hub/internal/domain/shared"
	"github.com/alem-hub/study-hub/internal/infrastructure/persistence/memory"
	"github.com/alem-hub/study-hub/pkg/timeutil"
)

func TestRegistry_EmptyAccountIsUnauthenticated(t *testing.T) {
	r := NewRegistry(memory.NewProgressRepository(), nil, testConfig(thursday()))
	defer r.Close(context.Background())

	_, err := r.Get(context.Background(), "")
	assert.True(t, shared.IsUnauthenticated(err))

	_, err = r.Get(context.Background(), "   ")
	assert.True(t, shared.IsUnauthenticated(err))
}

func TestRegistry_FirstAccessPersistsDefaults(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProgressRepository()
	r := NewRegistry(repo, nil, testConfig(thursday()))
	defer r.Close(ctx)

	l, err := r.Get(ctx, acc)
	require.NoError(t, err)
	assert.True(t, progress.Defaults().Equal(l.Snapshot()))

	require.NoError(t, r.Flush(ctx))
	stored, err := repo.Load(ctx, acc)
	require.NoError(t, err)
	assert.True(t, progress.Defaults().Equal(stored))
}

func TestRegistry_LoadsExistingState(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProgressRepository()
	last := timeutil.MustParseDate("2025-10-15")
	saved := progress.ProgressStats{TotalStudyMinutes: 90, TodayStudyMinutes: 30, Streak: 3, Points: 12, LastStudyDate: &last}
	repo.Put(acc, saved)

	r := NewRegistry(repo, nil, testConfig(thursday()))
	defer r.Close(ctx)

	l, err := r.Get(ctx, acc)
	require.NoError(t, err)
	assert.True(t, saved.Equal(l.Snapshot()))

	require.NoError(t, r.Flush(ctx))
	assert.Empty(t, repo.History(acc), "loading an existing account writes nothing")

	stats, _, err := l.AddStudyMinutes(15)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), stats.Streak)
}

func TestRegistry_OneLedgerPerAccount(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(memory.NewProgressRepository(), nil, testConfig(thursday()))
	defer r.Close(ctx)

	var wg sync.WaitGroup
	got := make([]*Ledger, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l, err := r.Get(ctx, acc)
			assert.NoError(t, err)
			got[i] = l
		}(i)
	}
	wg.Wait()

	for _, l := range got {
		assert.Same(t, got[0], l)
	}
	other, err := r.Get(ctx, "acc-2")
	require.NoError(t, err)
	assert.NotSame(t, got[0], other)
	assert.Len(t, r.Accounts(), 2)
}

func TestRegistry_CloseDrainsAndRejects(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewProgressRepository()
	r := NewRegistry(repo, nil, testConfig(thursday()))

	l, err := r.Get(ctx, acc)
	require.NoError(t, err)
	_, _, err = l.AddReward(30, 5, 1)
	require.NoError(t, err)

	require.NoError(t, r.Close(ctx))

	stored, err := repo.Load(ctx, acc)
	require.NoError(t, err)
	assert.Equal(t, uint32(30), stored.TotalStudyMinutes)
	assert.Equal(t, uint32(5), stored.Points)
	assert.Equal(t, uint32(1), stored.Coins)

	_, err = r.Get(ctx, acc)
	assert.ErrorIs(t, err, ErrRegistryClosed)
	assert.NoError(t, r.Close(ctx))
}
