package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitEmail(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		local  string
		domain string
	}{
		{"plain", "user@example.com", "user", "example.com"},
		{"angle brackets", "<User@Temp.Mail>", "user", "temp.mail"},
		{"display name", "Sender <sender@mail.example.com>", "sender", "mail.example.com"},
		{"plus tag", "user+tag@example.com", "user+tag", "example.com"},
		{"dots", "user.name@example.com", "user.name", "example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			local, domain, err := SplitEmail(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.local, local)
			assert.Equal(t, tt.domain, domain)
		})
	}
}

func TestSplitEmail_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		err   error
	}{
		{"no at", "testexample.com", ErrInvalidEmail},
		{"no domain", "test@", ErrInvalidEmail},
		{"no local part", "@example.com", ErrInvalidEmail},
		{"empty", "", ErrInvalidEmail},
		{"bad local char", "te$t@example.com", ErrInvalidLocalPart},
		{"consecutive dots", "a..b@example.com", ErrInvalidLocalPart},
		{"bad domain", "user@-example.com", ErrInvalidDomain},
		{"local too long", strings.Repeat("a", 65) + "@example.com", ErrLocalPartTooLong},
		{"too long", strings.Repeat("a", 60) + "@" + strings.Repeat("b", 200) + ".com", ErrEmailTooLong},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := SplitEmail(tt.input)
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestValidateDomain_LabelLength(t *testing.T) {
	assert.NoError(t, ValidateDomain("temp.mail"))
	assert.ErrorIs(t, ValidateDomain(strings.Repeat("a", 64)+".com"), ErrInvalidDomain)
}
