// Package poll 通过定时查询 Source 模拟推送，用于不支持 LISTEN/NOTIFY 的后端。
package poll

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"tempmail/web/internal/domain"
	"tempmail/web/internal/inbox"
)

const (
	DefaultInterval   = 5 * time.Second
	MaxBackoff        = 30 * time.Second
	BackoffMultiplier = 1.5
	JitterFactor      = 0.3
)

// Feed 轮询推送
type Feed struct {
	source   inbox.Source
	interval time.Duration
	log      *zap.Logger
}

var _ inbox.Feed = (*Feed)(nil)

// New 创建轮询推送
func New(source inbox.Source, interval time.Duration, log *zap.Logger) *Feed {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Feed{source: source, interval: interval, log: log}
}

type poller struct {
	feed      *Feed
	addressID string
	handler   inbox.Handler
	seen      map[string]struct{}
	interval  time.Duration

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

// Subscribe 记录订阅时已有的邮件，之后只推送新出现的邮件
//
// 没有新邮件时轮询间隔按 BackoffMultiplier 递增，最多到 MaxBackoff；有新邮件时复位。
func (f *Feed) Subscribe(ctx context.Context, addressID string, h inbox.Handler) (inbox.Subscription, error) {
	existing, err := f.source.ListByAddress(ctx, addressID)
	if err != nil {
		return nil, err
	}

	p := &poller{
		feed:      f,
		addressID: addressID,
		handler:   h,
		seen:      make(map[string]struct{}, len(existing)),
		interval:  f.interval,
		done:      make(chan struct{}),
	}
	for _, m := range existing {
		p.seen[m.ID] = struct{}{}
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.loop(pollCtx)

	return p, nil
}

// Close 停止轮询并等待轮询协程退出
func (p *poller) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
	})
	<-p.done
	return nil
}

func (p *poller) loop(ctx context.Context) {
	defer close(p.done)

	timer := time.NewTimer(p.wait())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		p.poll(ctx)
		timer.Reset(p.wait())
	}
}

func (p *poller) poll(ctx context.Context) {
	list, err := p.feed.source.ListByAddress(ctx, p.addressID)
	if err != nil {
		if ctx.Err() == nil {
			p.feed.log.Warn("poll failed", zap.String("address_id", p.addressID), zap.Error(err))
		}
		p.backoff()
		return
	}

	// list 为倒序，按时间正序推送，保证最后推送的是最新的邮件
	var fresh []domain.Message
	for i := len(list) - 1; i >= 0; i-- {
		m := list[i]
		if _, ok := p.seen[m.ID]; ok {
			continue
		}
		p.seen[m.ID] = struct{}{}
		fresh = append(fresh, m)
	}

	if len(fresh) == 0 {
		p.backoff()
		return
	}
	p.interval = p.feed.interval

	for _, m := range fresh {
		if ctx.Err() != nil {
			return
		}
		if m.TempEmailID != p.addressID {
			continue
		}
		p.handler(m)
	}
}

func (p *poller) backoff() {
	next := time.Duration(float64(p.interval) * BackoffMultiplier)
	if next > MaxBackoff {
		next = MaxBackoff
	}
	if next < p.feed.interval {
		next = p.feed.interval
	}
	p.interval = next
}

func (p *poller) wait() time.Duration {
	jitter := time.Duration(rand.Float64() * JitterFactor * float64(p.interval))
	return p.interval + jitter
}
