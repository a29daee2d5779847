package service

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/monitoring"
	"dropmail/backend/internal/smtp"
	"dropmail/backend/internal/storage"
)

// Notifier 新邮件推送扇出接口。
type Notifier interface {
	Notify(mailbox *domain.Mailbox, email *domain.Email)
}

// TaskPool 后台任务池（扇出任务经由它执行，满了就丢）。
type TaskPool interface {
	TrySubmit(task func()) bool
}

// IngestService 收件管线编排。
//
// 一封进来的邮件依次经过：域名受理门 → 邮箱解析/创建 →
// 生命周期门 → MIME 规范化 → 入库 → 附件卸载 → 推送扇出。
// 不受理的投递静默丢弃（返回 nil，发送方看不出区别）；
// 只有消息本身损坏或存储故障才向发送方报错。
type IngestService struct {
	mailboxes *MailboxService
	emails    storage.EmailRepository
	offloader *Offloader
	notifier  Notifier
	tasks     TaskPool // 可为 nil，扇出退化为同步执行
	reapKick  func()   // 可为 nil，碰到过期邮箱时敲一下回收器
	metrics   *monitoring.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewIngestService 创建收件管线。
func NewIngestService(
	mailboxes *MailboxService,
	emails storage.EmailRepository,
	offloader *Offloader,
	notifier Notifier,
	tasks TaskPool,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *IngestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestService{
		mailboxes: mailboxes,
		emails:    emails,
		offloader: offloader,
		notifier:  notifier,
		tasks:     tasks,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// SetReaperKick 设置回收器的提前触发回调。
func (s *IngestService) SetReaperKick(kick func()) {
	s.reapKick = kick
}

// Ingest 处理一次投递。
//
// 返回 nil 表示接受或静默丢弃；返回 smtp.ErrMalformedMessage
// 表示消息损坏应拒收；其他错误表示存储故障，应临时拒绝。
func (s *IngestService) Ingest(msg smtp.InboundMessage) error {
	address := domain.NormalizeAddress(msg.To)

	// 域名不受理：静默丢弃
	if !s.mailboxes.DomainAllowed(domain.AddressDomain(address)) {
		s.drop("domain", address)
		return nil
	}

	mailbox, _, err := s.mailboxes.ResolveOrCreate(address, nil)
	if err != nil {
		// 地址语法不合法也静默丢弃，不暴露内部校验规则
		if errors.Is(err, domain.ErrInvalidAddress) || errors.Is(err, ErrDomainNotAllowed) {
			s.drop("invalid_address", address)
			return nil
		}
		return err
	}

	now := s.now().UTC()
	if mailbox.Expired(now) {
		s.drop("expired", address)
		// 过期行还在，让回收器尽快处理
		if s.reapKick != nil {
			s.reapKick()
		}
		return nil
	}
	if !mailbox.IsActive {
		s.drop("inactive", address)
		return nil
	}

	parsed, err := smtp.ParseEmail(msg.Raw)
	if err != nil {
		if s.metrics != nil {
			s.metrics.EmailsRejected.WithLabelValues("malformed").Inc()
		}
		return err
	}

	email := &domain.Email{
		ID:         uuid.NewString(),
		MailboxID:  mailbox.ID,
		MessageID:  parsed.MessageID,
		From:       parsed.From,
		To:         mailbox.Address,
		Subject:    parsed.Subject,
		Text:       parsed.Text,
		HTML:       parsed.HTML,
		Raw:        msg.Raw,
		ReceivedAt: now,
		SizeBytes:  msg.Size,
	}

	if err := s.emails.SaveEmail(email); err != nil {
		if s.metrics != nil {
			s.metrics.EmailsRejected.WithLabelValues("store_error").Inc()
		}
		return err
	}

	// 附件卸载同步完成：单个失败只影响该附件，不影响入库结果
	failed := s.offloader.Offload(email, parsed.Attachments)
	if s.metrics != nil {
		s.metrics.AttachmentsUploaded.Add(float64(len(parsed.Attachments) - failed))
		s.metrics.AttachmentsFailed.Add(float64(failed))
		for _, att := range parsed.Attachments {
			s.metrics.AttachmentSizeBytes.Observe(float64(att.SizeBytes))
		}
		s.metrics.EmailsIngested.Inc()
	}
	email.Attachments = parsed.Attachments

	s.logger.Info("email ingested",
		zap.String("mailbox", mailbox.Address),
		zap.String("email_id", email.ID),
		zap.Int("attachments", len(parsed.Attachments)),
		zap.Int("attachments_failed", failed))

	s.fanOut(mailbox, email)

	return nil
}

// fanOut 把推送扇出丢进任务池，队列满时放弃而不是阻塞收件。
func (s *IngestService) fanOut(mailbox *domain.Mailbox, email *domain.Email) {
	if s.notifier == nil {
		return
	}

	task := func() { s.notifier.Notify(mailbox, email) }

	if s.tasks == nil {
		task()
		return
	}

	if !s.tasks.TrySubmit(task) {
		if s.metrics != nil {
			s.metrics.PushSkipped.Inc()
		}
		s.logger.Warn("push fan-out skipped, worker queue full",
			zap.String("email_id", email.ID))
	}
}

// drop 记录一次静默丢弃。
func (s *IngestService) drop(reason, address string) {
	if s.metrics != nil {
		s.metrics.EmailsDropped.WithLabelValues(reason).Inc()
	}
	s.logger.Debug("email dropped",
		zap.String("reason", reason),
		zap.String("address", address))
}
