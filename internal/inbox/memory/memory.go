// Package memory 进程内的邮件存储，同时实现 inbox.Source 和 inbox.Feed。
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"tempmail/web/internal/domain"
	"tempmail/web/internal/inbox"
)

// ErrMissingAddress 插入的邮件没有 temp_email_id
var ErrMissingAddress = errors.New("message has no temp_email_id")

// Store 内存邮件存储
type Store struct {
	now func() time.Time

	mu       sync.RWMutex
	messages map[string]domain.Message // id -> message
	byAddr   map[string][]string       // temp_email_id -> ids，按插入顺序
	subs     map[string]map[*subscription]struct{}
}

type subscription struct {
	store     *Store
	addressID string
	handler   inbox.Handler

	mu     sync.Mutex
	closed bool
}

var (
	_ inbox.Source = (*Store)(nil)
	_ inbox.Feed   = (*Store)(nil)
)

// New 创建内存邮件存储
func New() *Store {
	return &Store{
		now:      time.Now,
		messages: make(map[string]domain.Message),
		byAddr:   make(map[string][]string),
		subs:     make(map[string]map[*subscription]struct{}),
	}
}

// Insert 保存邮件并推送给订阅者，返回保存后的邮件
//
// id 为空时生成 uuid，received_at 为空时使用当前时间。
func (s *Store) Insert(ctx context.Context, msg domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	if msg.TempEmailID == "" {
		return domain.Message{}, ErrMissingAddress
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.now().UTC()
	}

	s.mu.Lock()
	if _, exists := s.messages[msg.ID]; !exists {
		s.byAddr[msg.TempEmailID] = append(s.byAddr[msg.TempEmailID], msg.ID)
	}
	s.messages[msg.ID] = msg
	subs := make([]*subscription, 0, len(s.subs[msg.TempEmailID]))
	for sub := range s.subs[msg.TempEmailID] {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(msg)
	}
	return msg, nil
}

// ListByAddress 返回地址下的全部邮件，按 received_at 倒序
func (s *Store) ListByAddress(ctx context.Context, addressID string) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	ids := s.byAddr[addressID]
	list := make([]domain.Message, 0, len(ids))
	for _, id := range ids {
		list = append(list, s.messages[id])
	}
	s.mu.RUnlock()

	sort.SliceStable(list, func(i, j int) bool {
		return list[i].ReceivedAt.After(list[j].ReceivedAt)
	})
	return list, nil
}

// Get 按 id 读取邮件
func (s *Store) Get(ctx context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	msg, ok := s.messages[id]
	s.mu.RUnlock()
	if !ok {
		return nil, inbox.ErrMessageNotFound
	}
	return &msg, nil
}

// DeleteByAddress 删除地址下的全部邮件，返回删除数量
func (s *Store) DeleteByAddress(addressID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byAddr[addressID]
	for _, id := range ids {
		delete(s.messages, id)
	}
	delete(s.byAddr, addressID)
	return len(ids)
}

// Ping 内存存储始终可用
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Subscribe 订阅地址的新邮件
func (s *Store) Subscribe(ctx context.Context, addressID string, h inbox.Handler) (inbox.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sub := &subscription{store: s, addressID: addressID, handler: h}

	s.mu.Lock()
	set, ok := s.subs[addressID]
	if !ok {
		set = make(map[*subscription]struct{})
		s.subs[addressID] = set
	}
	set[sub] = struct{}{}
	s.mu.Unlock()

	return sub, nil
}

// Subscribers 返回地址当前的订阅数
func (s *Store) Subscribers(addressID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs[addressID])
}

func (sub *subscription) deliver(msg domain.Message) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if sub.closed {
		return
	}
	sub.handler(msg)
}

// Close 取消订阅
func (sub *subscription) Close() error {
	sub.mu.Lock()
	sub.closed = true
	sub.mu.Unlock()

	s := sub.store
	s.mu.Lock()
	if set, ok := s.subs[sub.addressID]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(s.subs, sub.addressID)
		}
	}
	s.mu.Unlock()
	return nil
}
