package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/crashd/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis spins up a Redis container and returns a connected RedisCache + cleanup.
func setupRedis(t *testing.T) *cache.RedisCache {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, container.Terminate(ctx)) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	redisURL := "redis://" + host + ":" + port.Port()
	rc, err := cache.NewRedisCache(redisURL)
	require.NoError(t, err)

	return rc
}

// --- Ping ---

func TestPing(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	err := rc.Ping(context.Background())
	assert.NoError(t, err)
}

// --- Set / Get roundtrip ---

func TestSetGet_Roundtrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	err := rc.Set(ctx, "test:key", []byte("hello"), 10*time.Second)
	require.NoError(t, err)

	val, found, err := rc.Get(ctx, "test:key")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("hello"), val)
}

func TestGet_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	val, found, err := rc.Get(context.Background(), "nonexistent:key")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)
}

func TestSet_TTLExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	err := rc.Set(ctx, "expiry:key", []byte("temp"), 1*time.Second)
	require.NoError(t, err)

	// Immediately should exist
	_, found, err := rc.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.True(t, found)

	// Wait for TTL to expire
	time.Sleep(1500 * time.Millisecond)

	_, found, err = rc.Get(ctx, "expiry:key")
	require.NoError(t, err)
	assert.False(t, found)
}

// --- Delete ---

func TestDelete(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()

	require.NoError(t, rc.Set(ctx, "del:key", []byte("bye"), 10*time.Second))

	err := rc.Delete(ctx, "del:key")
	require.NoError(t, err)

	_, found, err := rc.Get(ctx, "del:key")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete_NonExistent(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	err := rc.Delete(context.Background(), "does:not:exist")
	assert.NoError(t, err)
}

// --- Crash groups ---

func TestSetGetCrashGroup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	groupID := uuid.New()
	body := []byte(`{"id":"` + groupID.String() + `","status":"OPEN"}`)

	gen, err := rc.CrashGroupGeneration(ctx, groupID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), gen)

	stored, err := rc.SetCrashGroup(ctx, groupID, gen, body, 10*time.Second)
	require.NoError(t, err)
	assert.True(t, stored)

	got, found, err := rc.GetCrashGroup(ctx, groupID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.JSONEq(t, string(body), string(got))

	raw, found, err := rc.Get(ctx, cache.CrashGroupKey(groupID))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, body, raw)
}

func TestGetCrashGroup_NotFound(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	body, found, err := rc.GetCrashGroup(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, body)
}

func TestInvalidateCrashGroup(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	keep, drop := uuid.New(), uuid.New()

	_, err := rc.SetCrashGroup(ctx, keep, 0, []byte(`{}`), 10*time.Second)
	require.NoError(t, err)
	_, err = rc.SetCrashGroup(ctx, drop, 0, []byte(`{}`), 10*time.Second)
	require.NoError(t, err)

	require.NoError(t, rc.InvalidateCrashGroup(ctx, drop))

	_, found, err := rc.GetCrashGroup(ctx, drop)
	require.NoError(t, err)
	assert.False(t, found)

	gen, err := rc.CrashGroupGeneration(ctx, drop)
	require.NoError(t, err)
	assert.Equal(t, int64(1), gen)

	_, found, err = rc.GetCrashGroup(ctx, keep)
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSetCrashGroup_StaleGenerationRefused(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	ctx := context.Background()
	groupID := uuid.New()

	gen, err := rc.CrashGroupGeneration(ctx, groupID)
	require.NoError(t, err)

	// An ingest commits between the store read and the fill.
	require.NoError(t, rc.InvalidateCrashGroup(ctx, groupID))

	stored, err := rc.SetCrashGroup(ctx, groupID, gen, []byte(`{"occurrenceCount":1}`), 10*time.Second)
	require.NoError(t, err)
	assert.False(t, stored)

	_, found, err := rc.GetCrashGroup(ctx, groupID)
	require.NoError(t, err)
	assert.False(t, found)

	fresh, err := rc.CrashGroupGeneration(ctx, groupID)
	require.NoError(t, err)
	stored, err = rc.SetCrashGroup(ctx, groupID, fresh, []byte(`{"occurrenceCount":2}`), 10*time.Second)
	require.NoError(t, err)
	assert.True(t, stored)
}

func TestInvalidateCrashGroup_NotCached(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)

	assert.NoError(t, rc.InvalidateCrashGroup(context.Background(), uuid.New()))
}

func TestPing_ClosedClient(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	rc := setupRedis(t)
	require.NoError(t, rc.Close())

	assert.Error(t, rc.Ping(context.Background()))
}

// --- Cache Key Builders ---

func TestCrashGroupKey(t *testing.T) {
	groupID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	key := cache.CrashGroupKey(groupID)
	assert.Equal(t, "crash:group:22222222-2222-2222-2222-222222222222", key)
}

func TestCrashGroupKey_NonColliding(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	assert.NotEqual(t, cache.CrashGroupKey(a), cache.CrashGroupKey(b))
	assert.NotEqual(t, cache.CrashGroupKey(a), cache.CrashGroupGenerationKey(a))
}
