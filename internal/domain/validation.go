package domain

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
)

// 地址校验错误
var (
	ErrInvalidEmail     = errors.New("invalid email format")
	ErrEmailTooLong     = errors.New("email address too long")
	ErrLocalPartTooLong = errors.New("local part too long (max 64 chars)")
	ErrDomainTooLong    = errors.New("domain too long (max 253 chars)")
	ErrInvalidLocalPart = errors.New("invalid local part format")
	ErrInvalidDomain    = errors.New("invalid domain format")
)

// RFC 5322 邮箱地址长度限制
const (
	MaxEmailLength     = 254
	MaxLocalPartLength = 64
	MaxDomainLength    = 253
)

var (
	localPartRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9._+-]*[a-z0-9]$|^[a-z0-9]$`)
	domainRegex    = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,61}[a-z0-9]?(\.[a-z0-9][a-z0-9-]{0,61}[a-z0-9]?)*$`)
)

// SplitEmail 规范化地址并拆分为本地部分和域名
//
// 接受 "Name <addr>" 与 "<addr>" 形式，结果统一为小写。
func SplitEmail(raw string) (local, domain string, err error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if parsed, perr := mail.ParseAddress(email); perr == nil {
		email = parsed.Address
	}
	email = strings.Trim(email, "<>")

	if len(email) > MaxEmailLength {
		return "", "", ErrEmailTooLong
	}
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", "", ErrInvalidEmail
	}

	local, domain = email[:at], email[at+1:]
	if err := ValidateLocalPart(local); err != nil {
		return "", "", err
	}
	if err := ValidateDomain(domain); err != nil {
		return "", "", err
	}
	return local, domain, nil
}

// ValidateLocalPart 验证邮箱本地部分
func ValidateLocalPart(local string) error {
	if local == "" {
		return ErrInvalidLocalPart
	}
	if len(local) > MaxLocalPartLength {
		return ErrLocalPartTooLong
	}
	if !localPartRegex.MatchString(local) || strings.Contains(local, "..") {
		return ErrInvalidLocalPart
	}
	return nil
}

// ValidateDomain 验证域名
func ValidateDomain(domain string) error {
	if domain == "" {
		return ErrInvalidDomain
	}
	if len(domain) > MaxDomainLength {
		return ErrDomainTooLong
	}
	if !domainRegex.MatchString(domain) {
		return ErrInvalidDomain
	}
	// 每个标签不超过 63 字符
	for _, label := range strings.Split(domain, ".") {
		if len(label) > 63 {
			return ErrInvalidDomain
		}
	}
	return nil
}
