package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tempmail/web/internal/domain"
	"tempmail/web/internal/inbox"
)

func TestStore_InsertAndList(t *testing.T) {
	ctx := context.Background()
	s := New()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	_, err := s.Insert(ctx, domain.Message{ID: "m1", TempEmailID: "a1", ReceivedAt: base})
	require.NoError(t, err)
	_, err = s.Insert(ctx, domain.Message{ID: "m3", TempEmailID: "a1", ReceivedAt: base.Add(2 * time.Second)})
	require.NoError(t, err)
	_, err = s.Insert(ctx, domain.Message{ID: "m2", TempEmailID: "a1", ReceivedAt: base.Add(time.Second)})
	require.NoError(t, err)
	_, err = s.Insert(ctx, domain.Message{ID: "x1", TempEmailID: "a2", ReceivedAt: base})
	require.NoError(t, err)

	list, err := s.ListByAddress(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"m3", "m2", "m1"}, []string{list[0].ID, list[1].ID, list[2].ID})

	empty, err := s.ListByAddress(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_InsertDefaults(t *testing.T) {
	s := New()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	msg, err := s.Insert(context.Background(), domain.Message{TempEmailID: "a1"})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, now, msg.ReceivedAt)

	_, err = s.Insert(context.Background(), domain.Message{ID: "m1"})
	assert.ErrorIs(t, err, ErrMissingAddress)
}

func TestStore_Get(t *testing.T) {
	s := New()
	_, err := s.Insert(context.Background(), domain.Message{ID: "m1", TempEmailID: "a1", Subject: "hi"})
	require.NoError(t, err)

	msg, err := s.Get(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "hi", msg.Subject)

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, inbox.ErrMessageNotFound)
}

func TestStore_SubscribeFiltersByAddress(t *testing.T) {
	ctx := context.Background()
	s := New()

	var mu sync.Mutex
	var got []string
	sub, err := s.Subscribe(ctx, "a1", func(m domain.Message) {
		mu.Lock()
		got = append(got, m.ID)
		mu.Unlock()
	})
	require.NoError(t, err)
	assert.Equal(t, 1, s.Subscribers("a1"))

	_, _ = s.Insert(ctx, domain.Message{ID: "m1", TempEmailID: "a1"})
	_, _ = s.Insert(ctx, domain.Message{ID: "x1", TempEmailID: "a2"})

	require.NoError(t, sub.Close())
	assert.Equal(t, 0, s.Subscribers("a1"))

	_, _ = s.Insert(ctx, domain.Message{ID: "m2", TempEmailID: "a1"})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"m1"}, got, "只推送本地址且取消订阅后不再推送")
}

func TestStore_DeleteByAddress(t *testing.T) {
	ctx := context.Background()
	s := New()
	_, _ = s.Insert(ctx, domain.Message{ID: "m1", TempEmailID: "a1"})
	_, _ = s.Insert(ctx, domain.Message{ID: "m2", TempEmailID: "a1"})

	assert.Equal(t, 2, s.DeleteByAddress("a1"))
	_, err := s.Get(ctx, "m1")
	assert.ErrorIs(t, err, inbox.ErrMessageNotFound)
}
