package poll

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"tempmail/web/internal/domain"
	"tempmail/web/internal/inbox/memory"
)

type collector struct {
	mu  sync.Mutex
	ids []string
}

func (c *collector) handle(m domain.Message) {
	c.mu.Lock()
	c.ids = append(c.ids, m.ID)
	c.mu.Unlock()
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.ids...)
}

func TestFeed_DeliversOnlyNewMessages(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := context.Background()
	store := memory.New()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	_, err := store.Insert(ctx, domain.Message{ID: "old", TempEmailID: "a1", ReceivedAt: base})
	require.NoError(t, err)

	feed := New(store, 10*time.Millisecond, nil)
	var got collector
	sub, err := feed.Subscribe(ctx, "a1", got.handle)
	require.NoError(t, err)

	_, _ = store.Insert(ctx, domain.Message{ID: "m2", TempEmailID: "a1", ReceivedAt: base.Add(2 * time.Second)})
	_, _ = store.Insert(ctx, domain.Message{ID: "m1", TempEmailID: "a1", ReceivedAt: base.Add(time.Second)})
	_, _ = store.Insert(ctx, domain.Message{ID: "other", TempEmailID: "a2", ReceivedAt: base.Add(time.Second)})

	require.Eventually(t, func() bool {
		return len(got.snapshot()) == 2
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, sub.Close())
	assert.Equal(t, []string{"m1", "m2"}, got.snapshot(), "按时间正序推送，不含订阅前已有邮件")
}

func TestPoller_Backoff(t *testing.T) {
	feed := New(memory.New(), time.Second, nil)
	p := &poller{feed: feed, interval: time.Second}

	p.backoff()
	assert.Equal(t, 1500*time.Millisecond, p.interval)

	for i := 0; i < 20; i++ {
		p.backoff()
	}
	assert.Equal(t, MaxBackoff, p.interval)

	w := p.wait()
	assert.GreaterOrEqual(t, w, MaxBackoff)
	assert.LessOrEqual(t, w, MaxBackoff+time.Duration(JitterFactor*float64(MaxBackoff)))
}
