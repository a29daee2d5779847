package storage

import (
	"errors"
	"time"

	"dropmail/backend/internal/domain"
)

var (
	// ErrMailboxNotFound 邮箱不存在错误
	ErrMailboxNotFound = errors.New("mailbox not found")
	// ErrEmailNotFound 邮件不存在错误
	ErrEmailNotFound = errors.New("email not found")
	// ErrAttachmentNotFound 附件不存在错误
	ErrAttachmentNotFound = errors.New("attachment not found")
	// ErrPushConfigNotFound 推送配置不存在错误
	ErrPushConfigNotFound = errors.New("push config not found")
	// ErrPushLogNotFound 推送日志不存在错误
	ErrPushLogNotFound = errors.New("push log not found")
	// ErrAddressTaken 地址唯一约束冲突：并发创建时由后到者收到，应重读后返回已有行。
	ErrAddressTaken = errors.New("mailbox address already taken")
)

// MailboxRepository 定义邮箱数据存取操作。
type MailboxRepository interface {
	// CreateMailbox 插入新邮箱；地址唯一约束冲突时返回 ErrAddressTaken。
	CreateMailbox(mailbox *domain.Mailbox) error
	GetMailbox(id string) (*domain.Mailbox, error)
	GetMailboxByAddress(address string) (*domain.Mailbox, error)
	UpdateMailbox(mailbox *domain.Mailbox) error
	// ListExpiredMailboxes 返回最多 limit 个 expiresAt < now 的邮箱，供清理任务分批处理。
	ListExpiredMailboxes(now time.Time, limit int) ([]domain.Mailbox, error)
	DeleteMailbox(id string) error
}

// EmailRepository 定义邮件数据存取操作。
type EmailRepository interface {
	SaveEmail(email *domain.Email) error
	ListEmails(mailboxID string) ([]domain.Email, error)
	GetEmail(mailboxID, emailID string) (*domain.Email, error)
	MarkEmailRead(mailboxID, emailID string) error
	DeleteEmail(mailboxID, emailID string) error
	// DeleteEmailsByMailbox 删除邮箱下所有邮件，返回删除数量。
	DeleteEmailsByMailbox(mailboxID string) (int, error)
}

// AttachmentRepository 定义附件元数据存取操作。
type AttachmentRepository interface {
	SaveAttachment(attachment *domain.Attachment) error
	GetAttachment(id string) (*domain.Attachment, error)
	ListAttachments(emailID string) ([]*domain.Attachment, error)
	ListAttachmentsByMailbox(mailboxID string) ([]*domain.Attachment, error)
	DeleteAttachmentsByEmail(emailID string) (int, error)
	DeleteAttachmentsByMailbox(mailboxID string) (int, error)
}

// PushConfigRepository 定义推送配置读取操作。
//
// 配置由管理后台写入；本核心只读，删除仅发生在邮箱级联清理时。
type PushConfigRepository interface {
	GetPushConfig(mailboxID string) (*domain.PushConfig, error)
	GetGlobalPushConfig() (*domain.GlobalPushConfig, error)
	SaveGlobalPushConfig(config *domain.GlobalPushConfig) error
	DeletePushConfig(mailboxID string) error
}

// PushLogRepository 定义推送日志存取操作。
type PushLogRepository interface {
	SavePushLog(log *domain.PushLog) error
	UpdatePushLog(log *domain.PushLog) error
	ListPushLogs(mailboxID string, limit int) ([]domain.PushLog, error)
	DeletePushLogsByMailbox(mailboxID string) (int, error)
}

// Store 定义完整的存储接口。
type Store interface {
	MailboxRepository
	EmailRepository
	AttachmentRepository
	PushConfigRepository
	PushLogRepository

	// 工具方法
	Close() error
	Health() error
}
