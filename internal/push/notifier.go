package push

import (
	"errors"
	"fmt"
	"html"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/monitoring"
	"dropmail/backend/internal/storage"
)

const previewLimit = 500

// Notifier 新邮件推送扇出。
//
// 每封入库的邮件向两类通道扇出：邮箱自己配置的机器人通道，
// 和系统级的全局通道。两个通道互相隔离，任何一边失败都不
// 影响另一边，更不影响已经入库的邮件。每次投递尝试都留一条
// 推送日志，先记 pending，落定后改写为 success 或 failed。
type Notifier struct {
	configs storage.PushConfigRepository
	logs    storage.PushLogRepository
	sender  Sender
	metrics *monitoring.Metrics // 可为 nil
	logger  *zap.Logger
}

// NewNotifier 创建推送扇出器。
func NewNotifier(
	configs storage.PushConfigRepository,
	logs storage.PushLogRepository,
	sender Sender,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		configs: configs,
		logs:    logs,
		sender:  sender,
		metrics: metrics,
		logger:  logger,
	}
}

// Notify 对一封新邮件执行全部通道的推送。
//
// 设计为在后台协程池中执行，错误只记日志不向上传播。
func (n *Notifier) Notify(mailbox *domain.Mailbox, email *domain.Email) {
	text := n.render(mailbox, email)

	n.notifyMailboxChannel(mailbox, email, text)
	n.notifyGlobalChannel(mailbox, email, text)
}

// notifyMailboxChannel 投递邮箱级通道。
func (n *Notifier) notifyMailboxChannel(mailbox *domain.Mailbox, email *domain.Email, text string) {
	cfg, err := n.configs.GetPushConfig(mailbox.ID)
	if err != nil {
		if !errors.Is(err, storage.ErrPushConfigNotFound) {
			n.logger.Warn("failed to load mailbox push config",
				zap.String("mailbox_id", mailbox.ID), zap.Error(err))
		}
		return
	}
	if !cfg.Enabled || cfg.BotToken == "" || cfg.ChatID == "" {
		return
	}

	n.deliver(domain.PushChannelMailbox, mailbox.ID, email.ID, cfg.BotToken, cfg.ChatID, text)
}

// notifyGlobalChannel 投递全局通道。
func (n *Notifier) notifyGlobalChannel(mailbox *domain.Mailbox, email *domain.Email, text string) {
	cfg, err := n.configs.GetGlobalPushConfig()
	if err != nil {
		if !errors.Is(err, storage.ErrPushConfigNotFound) {
			n.logger.Warn("failed to load global push config", zap.Error(err))
		}
		return
	}
	if !cfg.Enabled || cfg.BotToken == "" || cfg.ChatID == "" {
		return
	}

	n.deliver(domain.PushChannelGlobal, mailbox.ID, email.ID, cfg.BotToken, cfg.ChatID, text)
}

// deliver 执行单次投递并落推送日志。
func (n *Notifier) deliver(channel domain.PushChannel, mailboxID, emailID, botToken, chatID, text string) {
	log := &domain.PushLog{
		ID:        uuid.NewString(),
		MailboxID: mailboxID,
		EmailID:   emailID,
		Channel:   channel,
		Status:    domain.PushStatusPending,
		CreatedAt: time.Now().UTC(),
	}
	if err := n.logs.SavePushLog(log); err != nil {
		n.logger.Warn("failed to save push log",
			zap.String("mailbox_id", mailboxID), zap.Error(err))
	}

	sendErr := n.sender.Send(botToken, chatID, text)
	if sendErr != nil {
		log.Status = domain.PushStatusFailed
		log.ErrorMessage = sendErr.Error()
		n.logger.Warn("push delivery failed",
			zap.String("channel", string(channel)),
			zap.String("mailbox_id", mailboxID),
			zap.Error(sendErr))
	} else {
		log.Status = domain.PushStatusSuccess
	}

	if n.metrics != nil {
		n.metrics.PushDeliveries.WithLabelValues(string(channel), string(log.Status)).Inc()
	}

	if err := n.logs.UpdatePushLog(log); err != nil {
		n.logger.Warn("failed to finalize push log",
			zap.String("push_log_id", log.ID), zap.Error(err))
	}
}

// render 生成推送文本：发件人、收件地址、主题和正文预览。
func (n *Notifier) render(mailbox *domain.Mailbox, email *domain.Email) string {
	preview := email.Text
	if preview == "" {
		preview = email.HTML
	}
	runes := []rune(preview)
	if len(runes) > previewLimit {
		preview = string(runes[:previewLimit]) + "..."
	}

	return fmt.Sprintf("📬 <b>%s</b>\n发件人: %s\n收件箱: %s\n\n%s",
		html.EscapeString(email.Subject),
		html.EscapeString(email.From),
		html.EscapeString(mailbox.Address),
		html.EscapeString(preview))
}
