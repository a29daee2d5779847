package smtp

import (
	"errors"
	"io"

	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
)

// Ingestor 收件管线入口。
type Ingestor interface {
	Ingest(msg InboundMessage) error
}

// InboundMessage 一次 SMTP 投递产生的原始消息。
type InboundMessage struct {
	From string
	To   string
	Raw  []byte
	Size int64
}

// Backend 实现 go-smtp 的 Backend 接口。
//
// 【安全说明】
// 这是一个只接收邮件的 SMTP 服务器（Receiving-Only SMTP Server）。
// - 只接收发送到受理域名的邮件，其他投递在管线里静默丢弃
// - 不支持对外发送邮件（无邮件中继功能）
//
// 收件人地址不存在不会在 RCPT 阶段拒绝：邮箱按需创建，
// 外部探测无法通过 SMTP 响应枚举有效地址。
type Backend struct {
	ingestor Ingestor
	limiter  *ConnectionLimiter // 可为 nil
	maxSize  int64
	logger   *zap.Logger
}

// NewBackend 创建 SMTP Backend。
func NewBackend(ingestor Ingestor, limiter *ConnectionLimiter, maxSize int64, logger *zap.Logger) *Backend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxSize <= 0 {
		maxSize = 25 << 20
	}
	return &Backend{
		ingestor: ingestor,
		limiter:  limiter,
		maxSize:  maxSize,
		logger:   logger,
	}
}

// NewSession 创建新的 SMTP 会话。
func (b *Backend) NewSession(c *gosmtp.Conn) (gosmtp.Session, error) {
	if b.limiter != nil && !b.limiter.Acquire() {
		return nil, &gosmtp.SMTPError{
			Code:         421,
			EnhancedCode: gosmtp.EnhancedCode{4, 7, 0},
			Message:      "too many connections, try again later",
		}
	}
	return &session{backend: b}, nil
}

type session struct {
	backend     *Backend
	fromAddress string
	recipients  []string
	closed      bool
}

// Mail 处理 MAIL 命令。
func (s *session) Mail(from string, opts *gosmtp.MailOptions) error {
	s.fromAddress = from
	return nil
}

// Rcpt 处理 RCPT 命令。
//
// 只做语法检查。域名受理和邮箱生命周期的判定留在收件管线里
// 静默处理，SMTP 响应不泄露哪些地址有效。
func (s *session) Rcpt(to string, _ *gosmtp.RcptOptions) error {
	addr := domain.NormalizeAddress(to)
	if err := domain.ValidateAddress(addr); err != nil {
		return &gosmtp.SMTPError{
			Code:         501,
			EnhancedCode: gosmtp.EnhancedCode{5, 1, 3},
			Message:      "invalid recipient address",
		}
	}

	s.recipients = append(s.recipients, addr)
	return nil
}

// Data 处理邮件内容。
//
// 每个收件人独立走一遍收件管线。消息损坏拒收（554），
// 存储故障返回临时错误（451）让发送方稍后重试。
func (s *session) Data(r io.Reader) error {
	rawBytes, err := io.ReadAll(io.LimitReader(r, s.backend.maxSize))
	if err != nil {
		return err
	}

	for _, rcpt := range s.recipients {
		err := s.backend.ingestor.Ingest(InboundMessage{
			From: s.fromAddress,
			To:   rcpt,
			Raw:  rawBytes,
			Size: int64(len(rawBytes)),
		})
		if err == nil {
			continue
		}

		if errors.Is(err, ErrMalformedMessage) {
			return &gosmtp.SMTPError{
				Code:         554,
				EnhancedCode: gosmtp.EnhancedCode{5, 6, 0},
				Message:      "message content rejected",
			}
		}

		s.backend.logger.Error("ingest failed",
			zap.String("recipient", rcpt), zap.Error(err))
		return &gosmtp.SMTPError{
			Code:         451,
			EnhancedCode: gosmtp.EnhancedCode{4, 3, 0},
			Message:      "temporary local error, try again later",
		}
	}

	return nil
}

// AuthPlain 处理 PLAIN 认证（此处允许匿名）。
func (s *session) AuthPlain(username, password string) error {
	return nil
}

// Reset 重置状态。
func (s *session) Reset() {
	s.fromAddress = ""
	s.recipients = nil
}

// Logout 会话结束。
func (s *session) Logout() error {
	if !s.closed {
		s.closed = true
		if s.backend.limiter != nil {
			s.backend.limiter.Release()
		}
	}
	return nil
}
