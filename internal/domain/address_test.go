package domain

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemporaryAddress_Valid(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	addr := &TemporaryAddress{ID: "a1", EmailAddress: "x@temp.mail", ExpiresAt: now.Add(time.Hour)}

	assert.True(t, addr.Valid(now))
	assert.True(t, addr.Valid(now.Add(59*time.Minute)))
	assert.False(t, addr.Valid(now.Add(time.Hour)), "expires_at 时刻即视为过期")
	assert.False(t, addr.Valid(now.Add(61*time.Minute)))

	var nilAddr *TemporaryAddress
	assert.False(t, nilAddr.Valid(now))
}

func TestTemporaryAddress_Remaining(t *testing.T) {
	now := time.Now()
	addr := &TemporaryAddress{ExpiresAt: now.Add(30 * time.Minute)}

	assert.Equal(t, 30*time.Minute, addr.Remaining(now))
	assert.Equal(t, time.Duration(0), addr.Remaining(now.Add(2*time.Hour)))
}

func TestTemporaryAddress_Validate(t *testing.T) {
	ok := &TemporaryAddress{ID: "a1", EmailAddress: "x@temp.mail", ExpiresAt: time.Now()}
	assert.NoError(t, ok.Validate())

	cases := map[string]*TemporaryAddress{
		"nil":    nil,
		"缺少 id":  {EmailAddress: "x@temp.mail", ExpiresAt: time.Now()},
		"缺少地址":   {ID: "a1", ExpiresAt: time.Now()},
		"缺少过期时间": {ID: "a1", EmailAddress: "x@temp.mail"},
	}
	for name, addr := range cases {
		t.Run(name, func(t *testing.T) {
			err := addr.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidAddress))
		})
	}
}

func TestTemporaryAddress_JSONFieldNames(t *testing.T) {
	raw := `{"id":"a1","email_address":"x@temp.mail","created_at":"2025-01-01T12:00:00Z","expires_at":"2025-01-01T13:00:00Z"}`

	var addr TemporaryAddress
	require.NoError(t, json.Unmarshal([]byte(raw), &addr))

	assert.Equal(t, "a1", addr.ID)
	assert.Equal(t, "x@temp.mail", addr.EmailAddress)
	assert.Equal(t, time.Hour, addr.ExpiresAt.Sub(addr.CreatedAt))
}
