package allocator

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_Allocate(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory("Temp.Mail", time.Hour)
	m.now = func() time.Time { return now }

	addr, err := m.Allocate(context.Background())
	require.NoError(t, err)
	require.NoError(t, addr.Validate())

	assert.True(t, strings.HasSuffix(addr.EmailAddress, "@temp.mail"))
	assert.Len(t, strings.TrimSuffix(addr.EmailAddress, "@temp.mail"), localPartLength)
	assert.Equal(t, now, addr.CreatedAt)
	assert.Equal(t, now.Add(time.Hour), addr.ExpiresAt)

	other, err := m.Allocate(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, addr.ID, other.ID)
	assert.NotEqual(t, addr.EmailAddress, other.EmailAddress)
}

func TestMemory_LookupAndPrune(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory("temp.mail", time.Hour)
	m.now = func() time.Time { return now }

	addr, err := m.Allocate(context.Background())
	require.NoError(t, err)

	found, ok := m.Lookup(strings.ToUpper(addr.EmailAddress))
	require.True(t, ok)
	assert.Equal(t, addr.ID, found.ID)

	now = now.Add(61 * time.Minute)
	_, ok = m.Lookup(addr.EmailAddress)
	assert.False(t, ok, "过期地址不应被找到")
	assert.Equal(t, []string{addr.ID}, m.Prune())
	assert.Empty(t, m.Prune())
}

func TestMemory_Allocate_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMemory("temp.mail", 0).Allocate(ctx)
	assert.ErrorIs(t, err, ErrAllocation)
}
