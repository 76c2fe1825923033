package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/assessment-archive/pkg/errors"
)

func newCacheRepo(t *testing.T) (*CacheRepository, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCacheRepository(client, nil), mr
}

func TestCacheRepositorySetNXFirstWriterWins(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	stored, err := repo.SetNX(ctx, "assessment_archive:scheduled:42_1", 2, time.Hour)
	require.NoError(t, err)
	require.True(t, stored)

	stored, err = repo.SetNX(ctx, "assessment_archive:scheduled:42_1", 0, time.Hour)
	require.NoError(t, err)
	require.False(t, stored)

	var status int
	require.NoError(t, repo.Get(ctx, "assessment_archive:scheduled:42_1", &status))
	require.Equal(t, 2, status)

	mr.FastForward(2 * time.Hour)
	err = repo.Get(ctx, "assessment_archive:scheduled:42_1", &status)
	require.True(t, errors.Is(err, appErrors.ErrCacheMiss))
}

func TestCacheRepositoryDeleteAndPattern(t *testing.T) {
	repo, mr := newCacheRepo(t)
	ctx := context.Background()

	for _, key := range []string{"assessment_archive:scheduled:42_1", "assessment_archive:scheduled:42_2", "assessment_archive:scheduled:43_1"} {
		stored, err := repo.SetNX(ctx, key, 2, time.Hour)
		require.NoError(t, err)
		require.True(t, stored)
	}

	require.NoError(t, repo.Delete(ctx, "assessment_archive:scheduled:42_1"))
	require.False(t, mr.Exists("assessment_archive:scheduled:42_1"))

	require.NoError(t, repo.DeleteByPattern(ctx, "assessment_archive:scheduled:42_*"))
	require.False(t, mr.Exists("assessment_archive:scheduled:42_2"))
	require.True(t, mr.Exists("assessment_archive:scheduled:43_1"))
}

func TestCacheRepositoryWithoutClient(t *testing.T) {
	repo := NewCacheRepository(nil, nil)
	var dest int
	require.True(t, errors.Is(repo.Get(context.Background(), "k", &dest), appErrors.ErrCacheMiss))
	stored, err := repo.SetNX(context.Background(), "k", 1, time.Minute)
	require.NoError(t, err)
	require.True(t, stored)
	require.NoError(t, repo.Delete(context.Background(), "k"))
}
