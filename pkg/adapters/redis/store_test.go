package redis_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bioseqio/clonepipe/pkg/adapters/redis"
	"github.com/bioseqio/clonepipe/pkg/domain"
)

func newTestStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	return redis.NewFromClient(client, opts...), mr
}

func TestStore_StatusRoundtrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	in := domain.RunStatus{
		RunID:   "run-1",
		Stage:   "clonality",
		Percent: 50,
		Message: "Running clonality analysis...",
	}
	require.NoError(t, store.SaveStatus(ctx, in))

	out, err := store.LoadStatus(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "clonality", out.Stage)
	assert.Equal(t, 50, out.Percent)
	assert.False(t, out.Done)
	assert.False(t, out.UpdatedAt.IsZero())
}

func TestStore_UnknownRun(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.LoadStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)

	_, err = store.LoadReport(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestStore_ReportRoundtrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	report := map[string]any{"total_public_clones": 3}
	require.NoError(t, store.SaveReport(ctx, "run-1", report))

	raw, err := store.LoadReport(ctx, "run-1")
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, float64(3), decoded["total_public_clones"])
}

func TestStore_TTL(t *testing.T) {
	store, mr := newTestStore(t, redis.WithTTL(time.Minute))
	ctx := context.Background()

	require.NoError(t, store.SaveStatus(ctx, domain.RunStatus{RunID: "run-1", Stage: "loading"}))

	_, err := store.LoadStatus(ctx, "run-1")
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = store.LoadStatus(ctx, "run-1")
	assert.ErrorIs(t, err, domain.ErrRunNotFound)
}

func TestStore_PrefixOverride(t *testing.T) {
	store, mr := newTestStore(t, redis.WithPrefix("custom:"))
	ctx := context.Background()

	require.NoError(t, store.SaveStatus(ctx, domain.RunStatus{RunID: "run-1"}))
	assert.True(t, mr.Exists("custom:run-1:status"))
}
