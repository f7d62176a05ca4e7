package allocator

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tempmail/web/internal/domain"
)

const (
	localPartLength = 10
	localPartChars  = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// Memory 进程内分配器，用于开发环境
//
// 生成的地址同时登记在本地，开发用 SMTP 收信端据此判断收件人是否存在。
type Memory struct {
	domain string
	ttl    time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	addresses map[string]*domain.TemporaryAddress // email_address -> address
}

// NewMemory 创建进程内分配器
func NewMemory(mailDomain string, ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Memory{
		domain:    strings.ToLower(mailDomain),
		ttl:       ttl,
		now:       time.Now,
		addresses: make(map[string]*domain.TemporaryAddress),
	}
}

// Allocate 生成随机本地部分的地址
func (m *Memory) Allocate(ctx context.Context) (*domain.TemporaryAddress, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}

	local, err := randomLocalPart()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}

	now := m.now().UTC()
	addr := &domain.TemporaryAddress{
		ID:           uuid.NewString(),
		EmailAddress: local + "@" + m.domain,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
	}

	m.mu.Lock()
	m.addresses[addr.EmailAddress] = addr
	m.mu.Unlock()

	copied := *addr
	return &copied, nil
}

// Lookup 按邮箱地址查找未过期的已分配地址
func (m *Memory) Lookup(email string) (*domain.TemporaryAddress, bool) {
	m.mu.RLock()
	addr, ok := m.addresses[strings.ToLower(email)]
	m.mu.RUnlock()
	if !ok || !addr.Valid(m.now()) {
		return nil, false
	}
	copied := *addr
	return &copied, true
}

// Prune 清理已过期的地址，返回被清理地址的 id
func (m *Memory) Prune() []string {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for email, addr := range m.addresses {
		if !addr.Valid(now) {
			delete(m.addresses, email)
			removed = append(removed, addr.ID)
		}
	}
	return removed
}

func randomLocalPart() (string, error) {
	var b strings.Builder
	b.Grow(localPartLength)
	max := big.NewInt(int64(len(localPartChars)))
	for i := 0; i < localPartLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate local part: %w", err)
		}
		b.WriteByte(localPartChars[n.Int64()])
	}
	return b.String(), nil
}
