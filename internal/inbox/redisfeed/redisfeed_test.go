package redisfeed

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelName(t *testing.T) {
	assert.Equal(t, "received_emails:a1", ChannelName("a1"))
}

func TestDecode(t *testing.T) {
	testCases := []struct {
		name    string
		payload string
		ok      bool
	}{
		{"完整邮件", `{"id":"m1","temp_email_id":"a1","subject":"hi","received_at":"2024-01-01T00:00:00Z"}`, true},
		{"其他地址", `{"id":"m1","temp_email_id":"a2"}`, false},
		{"缺少 id", `{"temp_email_id":"a1"}`, false},
		{"格式错误", `{`, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg, ok := decode(tc.payload, "a1")
			assert.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, "hi", msg.Subject)
			}
		})
	}
}
