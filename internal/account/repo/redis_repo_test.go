package repo

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-hostlink-go/internal/account/entity"
)

func setupRedisStore(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr := miniredis.RunT(t)
	c := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { c.Close() })
	return mr, NewRedisStore(c, "test:")
}

func seed(t *testing.T, s Store, id string, role entity.Role, mutate func(*entity.Account)) {
	t.Helper()
	a := entity.NewAccount(id, role, id+"@example.com", time.Now().UTC())
	if mutate != nil {
		mutate(a)
	}
	require.NoError(t, s.Create(context.Background(), a))
}

func TestRedisCreateGet(t *testing.T) {
	_, store := setupRedisStore(t)
	ctx := context.Background()
	seed(t, store, "h1", entity.RoleHost, func(a *entity.Account) {
		a.Profile.Name = "Ana"
		a.Profile.Starters = []string{"Ask me about Porto"}
	})

	a, err := store.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleHost, a.Role)
	assert.Equal(t, "Ana", a.Profile.Name)
	assert.True(t, a.Visible)
	assert.Empty(t, a.UnlockedTargets)

	err = store.Create(ctx, entity.NewAccount("h1", entity.RoleHost, "", time.Now()))
	assert.ErrorIs(t, err, ErrAlreadyExists)

	_, err = store.Get(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisConditionalAppend(t *testing.T) {
	_, store := setupRedisStore(t)
	ctx := context.Background()
	seed(t, store, "p1", entity.RoleParticipant, nil)

	res, err := store.ConditionalAppend(ctx, "p1", "h1")
	require.NoError(t, err)
	assert.Equal(t, Appended, res)

	res, err = store.ConditionalAppend(ctx, "p1", "h1")
	require.NoError(t, err)
	assert.Equal(t, AlreadyPresent, res)

	_, err = store.ConditionalAppend(ctx, "ghost", "h1")
	assert.ErrorIs(t, err, ErrNotFound)

	a, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"h1"}, a.UnlockedTargets)
	assert.NotNil(t, a.LastUnlockedAt)
}

func TestRedisConditionalAppend_ConcurrentDuplicates(t *testing.T) {
	_, store := setupRedisStore(t)
	ctx := context.Background()
	seed(t, store, "p1", entity.RoleParticipant, nil)

	const callers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		appended int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := store.ConditionalAppend(ctx, "p1", "h1")
			assert.NoError(t, err)
			if res == Appended {
				mu.Lock()
				appended++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, appended)
}

func TestRedisIncrementAndDelete(t *testing.T) {
	mr, store := setupRedisStore(t)
	ctx := context.Background()
	seed(t, store, "h1", entity.RoleHost, nil)

	require.NoError(t, store.IncrementUnlockCount(ctx, "h1"))
	require.NoError(t, store.IncrementUnlockCount(ctx, "h1"))
	a, err := store.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.UnlockCount)

	assert.ErrorIs(t, store.IncrementUnlockCount(ctx, "ghost"), ErrNotFound)

	require.NoError(t, store.Delete(ctx, "h1"))
	assert.False(t, mr.Exists("test:account:h1"))
	assert.False(t, mr.Exists("test:account:h1:unlock_count"))
	ok, err := mr.SIsMember("test:role:host", "h1")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, store.Delete(ctx, "h1"), ErrNotFound)
}

func TestRedisSetMerge_MovesRoleIndex(t *testing.T) {
	_, store := setupRedisStore(t)
	ctx := context.Background()
	seed(t, store, "u1", entity.RoleParticipant, nil)

	host := entity.RoleHost
	bio := "Exchange student mentor"
	require.NoError(t, store.SetMerge(ctx, "u1", entity.AccountPatch{Role: &host, Bio: &bio}))

	a, err := store.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, entity.RoleHost, a.Role)
	assert.Equal(t, bio, a.Profile.Bio)

	var hosts []string
	for a, err := range store.Query(ctx, ByRole(entity.RoleHost)) {
		require.NoError(t, err)
		hosts = append(hosts, a.ID)
	}
	assert.Equal(t, []string{"u1"}, hosts)

	for range store.Query(ctx, ByRole(entity.RoleParticipant)) {
		t.Fatal("participant index should be empty")
	}

	assert.ErrorIs(t, store.SetMerge(ctx, "ghost", entity.AccountPatch{Bio: &bio}), ErrNotFound)
}

func TestRedisQuery_FiltersVisibility(t *testing.T) {
	_, store := setupRedisStore(t)
	ctx := context.Background()
	seed(t, store, "h1", entity.RoleHost, nil)
	seed(t, store, "h2", entity.RoleHost, func(a *entity.Account) { a.Visible = false })
	seed(t, store, "p1", entity.RoleParticipant, nil)

	visible := true
	var ids []string
	for a, err := range store.Query(ctx, Filter{Visible: &visible}) {
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	sort.Strings(ids)
	assert.Equal(t, []string{"h1", "p1"}, ids)
}

func TestRedisQuery_StopsEarly(t *testing.T) {
	_, store := setupRedisStore(t)
	for _, id := range []string{"h1", "h2", "h3"} {
		seed(t, store, id, entity.RoleHost, nil)
	}
	n := 0
	for range store.Query(context.Background(), ByRole(entity.RoleHost)) {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestRedisCreate_IndexAndSideKeysTogether(t *testing.T) {
	mr, store := setupRedisStore(t)
	ctx := context.Background()
	seed(t, store, "p1", entity.RoleParticipant, func(a *entity.Account) {
		a.UnlockedTargets = []string{"h1", "h2"}
		a.UnlockCount = 3
	})

	ok, err := mr.SIsMember("test:role:participant", "p1")
	require.NoError(t, err)
	assert.True(t, ok)
	a, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	sort.Strings(a.UnlockedTargets)
	assert.Equal(t, []string{"h1", "h2"}, a.UnlockedTargets)
	assert.Equal(t, int64(3), a.UnlockCount)

	// a rejected create leaves the other role index alone
	err = store.Create(ctx, entity.NewAccount("p1", entity.RoleHost, "", time.Now()))
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.False(t, mr.Exists("test:role:host"))
}

func TestRedisConditionalAppend_LastUnlockedOnlyOnNewTarget(t *testing.T) {
	mr, store := setupRedisStore(t)
	ctx := context.Background()
	seed(t, store, "p1", entity.RoleParticipant, nil)

	_, err := store.ConditionalAppend(ctx, "p1", "h1")
	require.NoError(t, err)
	first, err := mr.Get("test:account:p1:last_unlocked")
	require.NoError(t, err)

	require.NoError(t, mr.Set("test:account:p1:last_unlocked", "1"))
	res, err := store.ConditionalAppend(ctx, "p1", "h1")
	require.NoError(t, err)
	assert.Equal(t, AlreadyPresent, res)
	again, err := mr.Get("test:account:p1:last_unlocked")
	require.NoError(t, err)
	assert.Equal(t, "1", again)
	assert.NotEqual(t, first, again)
}

func TestRedisWritesAfterDeleteLeaveNoOrphans(t *testing.T) {
	mr, store := setupRedisStore(t)
	ctx := context.Background()
	seed(t, store, "p1", entity.RoleParticipant, nil)
	require.NoError(t, store.Delete(ctx, "p1"))

	_, err := store.ConditionalAppend(ctx, "p1", "h1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.IncrementUnlockCount(ctx, "p1"), ErrNotFound)

	assert.False(t, mr.Exists("test:account:p1:unlocked"))
	assert.False(t, mr.Exists("test:account:p1:unlock_count"))
	assert.False(t, mr.Exists("test:account:p1:last_unlocked"))
}
