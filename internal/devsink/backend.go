// Package devsink 是开发用的只收信 SMTP 服务器。
//
// 只在 memory 查询后端下启用：收件人必须是进程内分配器签发且未过期的地址，
// 邮件解析后写入内存收件箱，由收件箱推送给订阅的会话。
package devsink

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"strings"
	"time"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"tempmail/web/internal/domain"
)

const maxMessageBytes = 10 << 20 // 10MB

// ErrTooManyConnections 连接数或建连速率超限
var ErrTooManyConnections = &gosmtp.SMTPError{
	Code:         421,
	EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
	Message:      "too many connections, try again later",
}

// Recipients 查询有效的临时邮箱
type Recipients interface {
	Lookup(email string) (*domain.TemporaryAddress, bool)
}

// Inbox 保存收到的邮件
type Inbox interface {
	Insert(ctx context.Context, msg domain.Message) (domain.Message, error)
}

// Backend 实现 go-smtp 的 Backend 接口。
//
// 只接收发往本域名下有效临时邮箱的邮件，其他地址一律 550，不做任何中继。
type Backend struct {
	domain     string
	recipients Recipients
	inbox      Inbox
	limiter    *ConnectionLimiter
	log        *zap.Logger
	now        func() time.Time
}

// NewBackend 创建 SMTP Backend。limiter 为 nil 时不限制连接。
func NewBackend(mailDomain string, recipients Recipients, inbox Inbox, limiter *ConnectionLimiter, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{
		domain:     strings.ToLower(mailDomain),
		recipients: recipients,
		inbox:      inbox,
		limiter:    limiter,
		log:        log,
		now:        time.Now,
	}
}

// NewServer 按开发环境参数创建 SMTP 服务器
func NewServer(addr string, b *Backend) *gosmtp.Server {
	s := gosmtp.NewServer(b)
	s.Addr = addr
	s.Domain = b.domain
	s.ReadTimeout = 10 * time.Second
	s.WriteTimeout = 10 * time.Second
	s.MaxMessageBytes = maxMessageBytes
	s.MaxRecipients = 50
	return s
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(_ *gosmtp.Conn) (gosmtp.Session, error) {
	if b.limiter != nil && !b.limiter.Acquire() {
		b.log.Warn("smtp connection rejected by limiter")
		return nil, ErrTooManyConnections
	}
	return &session{backend: b}, nil
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []string // 临时邮箱 id
	released    bool
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, _ *gosmtp.MailOptions) error {
	s.fromAddress = normalizeAddress(from)
	return nil
}

// Rcpt 处理 RCPT 命令，只接受本域名下有效的临时邮箱。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	local, host, err := domain.SplitEmail(to)
	if err != nil {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}

	if host != s.backend.domain {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 7, 1},
			Message:      "relay access denied - domain not managed by this server",
		}
	}

	temp, ok := s.backend.recipients.Lookup(local + "@" + host)
	if !ok {
		return &gosmtp.SMTPError{
			Code:         550,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 1},
			Message:      "recipient mailbox not found",
		}
	}

	for _, id := range s.recipients {
		if id == temp.ID {
			return nil
		}
	}
	s.recipients = append(s.recipients, temp.ID)
	return nil
}

// Data 处理邮件内容。
func (s *session) Data(r io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(r, maxMessageBytes))
	if err != nil {
		return err
	}

	parsed, err := ParseEmail(raw)
	if err != nil {
		return &gosmtp.SMTPError{
			Code:         554,
			EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
			Message:      fmt.Sprintf("malformed message: %v", err),
		}
	}

	from := parsed.From
	if from == "" {
		from = s.fromAddress
	}
	receivedAt := s.backend.now().UTC()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, id := range s.recipients {
		msg, err := s.backend.inbox.Insert(ctx, domain.Message{
			TempEmailID: id,
			FromAddress: from,
			Subject:     parsed.Subject,
			BodyText:    parsed.Text,
			BodyHTML:    parsed.HTML,
			ReceivedAt:  receivedAt,
		})
		if err != nil {
			s.backend.log.Error("failed to store message", zap.String("temp_email_id", id), zap.Error(err))
			return errors.New("failed to store message")
		}
		s.backend.log.Info("message received",
			zap.String("id", msg.ID),
			zap.String("temp_email_id", id),
			zap.String("from", from),
		)
	}

	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束，释放连接许可。
func (s *session) Logout() error {
	if !s.released && s.backend.limiter != nil {
		s.backend.limiter.Release()
	}
	s.released = true
	return nil
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if parsed, err := mail.ParseAddress(addr); err == nil {
		addr = parsed.Address
	}
	addr = strings.Trim(addr, "<>")
	return strings.ToLower(addr)
}
