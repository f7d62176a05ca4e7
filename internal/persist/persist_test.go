package persist

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tempmail/web/internal/cache"
	"tempmail/web/internal/domain"
	"tempmail/web/internal/storage/redis"
)

func testAddress(now time.Time) *domain.TemporaryAddress {
	return &domain.TemporaryAddress{
		ID:           "addr-1",
		EmailAddress: "abc@temp.mail",
		CreatedAt:    now,
		ExpiresAt:    now.Add(time.Hour),
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, "tempEmail:b1", Key("b1"))
}

func TestMemory_SaveLoadRemove(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemory(cache.NewLocalCache(time.Hour, 0))
	store.now = func() time.Time { return now }

	_, err := store.Load(ctx, "b1")
	assert.ErrorIs(t, err, ErrNotFound)

	addr := testAddress(now)
	require.NoError(t, store.Save(ctx, "b1", addr))

	got, err := store.Load(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, addr, got, "保存后读取应完全一致")

	_, err = store.Load(ctx, "b2")
	assert.ErrorIs(t, err, ErrNotFound, "不同浏览器互不可见")

	require.NoError(t, store.Remove(ctx, "b1"))
	_, err = store.Load(ctx, "b1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_SaveExpiredRemoves(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store := NewMemory(cache.NewLocalCache(time.Hour, 0))
	store.now = func() time.Time { return now }

	require.NoError(t, store.Save(ctx, "b1", testAddress(now)))
	require.NoError(t, store.Save(ctx, "b1", testAddress(now.Add(-2*time.Hour))))

	_, err := store.Load(ctx, "b1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_SaveInvalid(t *testing.T) {
	store := NewMemory(cache.NewLocalCache(time.Hour, 0))
	err := store.Save(context.Background(), "b1", &domain.TemporaryAddress{ID: "x"})
	assert.ErrorIs(t, err, domain.ErrInvalidAddress)
}

type mockKV struct {
	mock.Mock
}

func (m *mockKV) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	args := m.Called(ctx, key, value, expiration)
	return args.Error(0)
}

func (m *mockKV) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *mockKV) Del(ctx context.Context, keys ...string) error {
	args := m.Called(ctx, keys)
	return args.Error(0)
}

func TestRedis_SaveUsesRemainingTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	kv := new(mockKV)
	store := &Redis{client: kv, now: func() time.Time { return now.Add(15 * time.Minute) }}

	addr := testAddress(now)
	data, err := encode(addr)
	require.NoError(t, err)

	kv.On("Set", ctx, "tempEmail:b1", data, 45*time.Minute).Return(nil)

	require.NoError(t, store.Save(ctx, "b1", addr))
	kv.AssertExpectations(t)
}

func TestRedis_SaveExpiredDeletes(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	kv := new(mockKV)
	store := &Redis{client: kv, now: func() time.Time { return now.Add(2 * time.Hour) }}

	kv.On("Del", ctx, []string{"tempEmail:b1"}).Return(nil)

	require.NoError(t, store.Save(ctx, "b1", testAddress(now)))
	kv.AssertExpectations(t)
	kv.AssertNotCalled(t, "Set", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRedis_Load(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("键不存在", func(t *testing.T) {
		kv := new(mockKV)
		kv.On("Get", ctx, "tempEmail:b1").Return(nil, redis.ErrNil)

		_, err := (&Redis{client: kv, now: time.Now}).Load(ctx, "b1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("读取成功", func(t *testing.T) {
		addr := testAddress(now)
		data, err := encode(addr)
		require.NoError(t, err)

		kv := new(mockKV)
		kv.On("Get", ctx, "tempEmail:b1").Return(data, nil)

		got, err := (&Redis{client: kv, now: time.Now}).Load(ctx, "b1")
		require.NoError(t, err)
		assert.True(t, addr.ExpiresAt.Equal(got.ExpiresAt))
		assert.Equal(t, addr.ID, got.ID)
	})

	t.Run("数据损坏", func(t *testing.T) {
		kv := new(mockKV)
		kv.On("Get", ctx, "tempEmail:b1").Return([]byte("{"), nil)

		_, err := (&Redis{client: kv, now: time.Now}).Load(ctx, "b1")
		assert.Error(t, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}
