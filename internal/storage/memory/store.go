package memory

import (
	"sort"
	"sync"
	"time"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/storage"
)

// Store 使用内存保存邮箱与邮件数据，主要用于开发验证与测试。
//
// 读路径不做过期过滤：过期但未清理的邮箱历史保持可见，
// 过期拦截只发生在入库编排器中。
type Store struct {
	mu          sync.RWMutex
	mailboxes   map[string]*domain.Mailbox
	byAddress   map[string]string                        // address -> mailboxID
	emails      map[string]map[string]*domain.Email      // mailboxID -> emailID -> email
	attachments map[string]*domain.Attachment            // attachmentID -> attachment
	byEmail     map[string][]string                      // emailID -> attachmentIDs
	pushConfigs map[string]*domain.PushConfig            // mailboxID -> config
	globalPush  *domain.GlobalPushConfig
	pushLogs    map[string][]*domain.PushLog // mailboxID -> logs
}

// NewStore 创建一个内存存储实例。
func NewStore() *Store {
	return &Store{
		mailboxes:   make(map[string]*domain.Mailbox),
		byAddress:   make(map[string]string),
		emails:      make(map[string]map[string]*domain.Email),
		attachments: make(map[string]*domain.Attachment),
		byEmail:     make(map[string][]string),
		pushConfigs: make(map[string]*domain.PushConfig),
		pushLogs:    make(map[string][]*domain.PushLog),
	}
}

// ========== Mailbox Repository ==========

// CreateMailbox 插入新邮箱，地址冲突时返回 ErrAddressTaken。
func (s *Store) CreateMailbox(mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byAddress[mailbox.Address]; exists {
		return storage.ErrAddressTaken
	}

	s.mailboxes[mailbox.ID] = mailbox
	s.byAddress[mailbox.Address] = mailbox.ID
	return nil
}

// GetMailbox 根据 ID 获取邮箱。
func (s *Store) GetMailbox(id string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mailbox, ok := s.mailboxes[id]
	if !ok {
		return nil, storage.ErrMailboxNotFound
	}
	copied := *mailbox
	return &copied, nil
}

// GetMailboxByAddress 根据完整地址获取邮箱。
func (s *Store) GetMailboxByAddress(address string) (*domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byAddress[address]
	if !ok {
		return nil, storage.ErrMailboxNotFound
	}
	mailbox, ok := s.mailboxes[id]
	if !ok {
		return nil, storage.ErrMailboxNotFound
	}
	copied := *mailbox
	return &copied, nil
}

// UpdateMailbox 更新邮箱（续期、启停）。
func (s *Store) UpdateMailbox(mailbox *domain.Mailbox) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.mailboxes[mailbox.ID]; !ok {
		return storage.ErrMailboxNotFound
	}
	s.mailboxes[mailbox.ID] = mailbox
	return nil
}

// ListExpiredMailboxes 返回最多 limit 个已过期的邮箱。
func (s *Store) ListExpiredMailboxes(now time.Time, limit int) ([]domain.Mailbox, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Mailbox, 0, limit)
	for _, mb := range s.mailboxes {
		if mb.Expired(now) {
			result = append(result, *mb)
		}
	}
	// map 遍历无序，按过期时间排序保证批次选取稳定
	sort.Slice(result, func(i, j int) bool {
		return result[i].ExpiresAt.Before(result[j].ExpiresAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// DeleteMailbox 删除邮箱行本身（级联删除由调用方按子到父顺序执行）。
func (s *Store) DeleteMailbox(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mb, ok := s.mailboxes[id]
	if !ok {
		return storage.ErrMailboxNotFound
	}
	delete(s.byAddress, mb.Address)
	delete(s.mailboxes, id)
	return nil
}

// ========== Email Repository ==========

// SaveEmail 保存邮件。不校验所属邮箱是否存在，与 SQL 后端保持一致：
// 外键约束由上层服务保证。
func (s *Store) SaveEmail(email *domain.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.emails[email.MailboxID]; !ok {
		s.emails[email.MailboxID] = make(map[string]*domain.Email)
	}
	s.emails[email.MailboxID][email.ID] = email
	return nil
}

// ListEmails 返回某个邮箱下的全部邮件，按接收时间倒序。
func (s *Store) ListEmails(mailboxID string) ([]domain.Email, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgMap := s.emails[mailboxID]
	result := make([]domain.Email, 0, len(msgMap))
	for _, e := range msgMap {
		result = append(result, *e)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].ReceivedAt.After(result[j].ReceivedAt)
	})
	return result, nil
}

// GetEmail 获取单封邮件。
func (s *Store) GetEmail(mailboxID, emailID string) (*domain.Email, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgMap, ok := s.emails[mailboxID]
	if !ok {
		return nil, storage.ErrEmailNotFound
	}
	email, ok := msgMap[emailID]
	if !ok {
		return nil, storage.ErrEmailNotFound
	}
	copied := *email
	return &copied, nil
}

// MarkEmailRead 将邮件标记为已读。
func (s *Store) MarkEmailRead(mailboxID, emailID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgMap, ok := s.emails[mailboxID]
	if !ok {
		return storage.ErrEmailNotFound
	}
	email, ok := msgMap[emailID]
	if !ok {
		return storage.ErrEmailNotFound
	}
	email.IsRead = true
	return nil
}

// DeleteEmail 删除指定邮件。
func (s *Store) DeleteEmail(mailboxID, emailID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	msgMap, ok := s.emails[mailboxID]
	if !ok {
		return storage.ErrEmailNotFound
	}
	if _, ok := msgMap[emailID]; !ok {
		return storage.ErrEmailNotFound
	}
	delete(msgMap, emailID)
	return nil
}

// DeleteEmailsByMailbox 删除邮箱下所有邮件，返回删除数量。
func (s *Store) DeleteEmailsByMailbox(mailboxID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.emails[mailboxID])
	delete(s.emails, mailboxID)
	return count, nil
}

// ========== Attachment Repository ==========

// SaveAttachment 保存附件元数据（不含内容字节）。
func (s *Store) SaveAttachment(attachment *domain.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *attachment
	stored.Content = nil
	s.attachments[attachment.ID] = &stored
	s.byEmail[attachment.EmailID] = append(s.byEmail[attachment.EmailID], attachment.ID)
	return nil
}

// GetAttachment 根据 ID 获取附件元数据。
func (s *Store) GetAttachment(id string) (*domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attachment, ok := s.attachments[id]
	if !ok {
		return nil, storage.ErrAttachmentNotFound
	}
	copied := *attachment
	return &copied, nil
}

// ListAttachments 返回邮件下的全部附件元数据。
func (s *Store) ListAttachments(emailID string) ([]*domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byEmail[emailID]
	result := make([]*domain.Attachment, 0, len(ids))
	for _, id := range ids {
		if att, ok := s.attachments[id]; ok {
			copied := *att
			result = append(result, &copied)
		}
	}
	return result, nil
}

// ListAttachmentsByMailbox 返回邮箱下的全部附件元数据。
func (s *Store) ListAttachmentsByMailbox(mailboxID string) ([]*domain.Attachment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Attachment, 0)
	for _, att := range s.attachments {
		if att.MailboxID == mailboxID {
			copied := *att
			result = append(result, &copied)
		}
	}
	return result, nil
}

// DeleteAttachmentsByEmail 删除邮件下的所有附件行，返回删除数量。
func (s *Store) DeleteAttachmentsByEmail(emailID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := s.byEmail[emailID]
	for _, id := range ids {
		delete(s.attachments, id)
	}
	delete(s.byEmail, emailID)
	return len(ids), nil
}

// DeleteAttachmentsByMailbox 删除邮箱下的所有附件行，返回删除数量。
func (s *Store) DeleteAttachmentsByMailbox(mailboxID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, att := range s.attachments {
		if att.MailboxID == mailboxID {
			delete(s.attachments, id)
			s.byEmail[att.EmailID] = nil
			count++
		}
	}
	return count, nil
}

// ========== PushConfig Repository ==========

// GetPushConfig 获取邮箱级推送配置。
func (s *Store) GetPushConfig(mailboxID string) (*domain.PushConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg, ok := s.pushConfigs[mailboxID]
	if !ok {
		return nil, storage.ErrPushConfigNotFound
	}
	copied := *cfg
	return &copied, nil
}

// SetPushConfig 写入邮箱级推送配置。
//
// 不属于核心接口：配置由管理后台写入，这里仅供开发环境与测试造数据。
func (s *Store) SetPushConfig(cfg *domain.PushConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushConfigs[cfg.MailboxID] = cfg
}

// GetGlobalPushConfig 获取全局推送配置。
func (s *Store) GetGlobalPushConfig() (*domain.GlobalPushConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.globalPush == nil {
		return nil, storage.ErrPushConfigNotFound
	}
	copied := *s.globalPush
	return &copied, nil
}

// SaveGlobalPushConfig 保存全局推送配置（单例）。
func (s *Store) SaveGlobalPushConfig(config *domain.GlobalPushConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	config.ID = 1
	config.UpdatedAt = time.Now().UTC()
	s.globalPush = config
	return nil
}

// DeletePushConfig 删除邮箱级推送配置。
func (s *Store) DeletePushConfig(mailboxID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pushConfigs, mailboxID)
	return nil
}

// ========== PushLog Repository ==========

// SavePushLog 追加一条推送日志。
func (s *Store) SavePushLog(log *domain.PushLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *log
	s.pushLogs[log.MailboxID] = append(s.pushLogs[log.MailboxID], &copied)
	return nil
}

// UpdatePushLog 更新推送日志的落定状态。
func (s *Store) UpdatePushLog(log *domain.PushLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for mailboxID, logs := range s.pushLogs {
		for i, existing := range logs {
			if existing.ID != log.ID {
				continue
			}
			existing.Status = log.Status
			existing.ErrorMessage = log.ErrorMessage
			s.pushLogs[mailboxID][i] = existing
			return nil
		}
	}
	return storage.ErrPushLogNotFound
}

// ListPushLogs 返回邮箱最近的推送日志，按创建时间倒序。
func (s *Store) ListPushLogs(mailboxID string, limit int) ([]domain.PushLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	logs := s.pushLogs[mailboxID]
	result := make([]domain.PushLog, 0, len(logs))
	for _, l := range logs {
		result = append(result, *l)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// DeletePushLogsByMailbox 删除邮箱下的全部推送日志，返回删除数量。
func (s *Store) DeletePushLogsByMailbox(mailboxID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := len(s.pushLogs[mailboxID])
	delete(s.pushLogs, mailboxID)
	return count, nil
}

// ========== 工具方法 ==========

// Close 关闭存储连接。
func (s *Store) Close() error {
	return nil
}

// Health 健康检查。
func (s *Store) Health() error {
	return nil
}
