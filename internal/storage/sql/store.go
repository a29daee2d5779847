package sql

import (
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/storage"
)

// Store SQL 数据库存储实现（支持 MySQL 5.7+ 和 PostgreSQL）。
type Store struct {
	db         *gorm.DB
	driverName string // "mysql" or "postgres"
}

// NewStore 创建 SQL 数据库存储。
func NewStore(
	driverName string,
	dsn string,
	maxOpenConns int,
	maxIdleConns int,
	connMaxLifetime time.Duration,
) (*Store, error) {
	gormConfig := &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	var db *gorm.DB
	var err error
	switch driverName {
	case "mysql":
		db, err = gorm.Open(mysql.Open(dsn), gormConfig)
	case "postgres":
		db, err = gorm.Open(postgres.Open(dsn), gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", driverName)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &Store{
		db:         db,
		driverName: driverName,
	}

	if err := store.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate 执行数据库迁移（使用 GORM AutoMigrate）。
func (s *Store) migrate() error {
	return s.db.AutoMigrate(
		&domain.Mailbox{},
		&domain.Email{},
		&domain.Attachment{},
		&domain.PushConfig{},
		&domain.GlobalPushConfig{},
		&domain.PushLog{},
	)
}

// Close 关闭数据库连接。
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health 检查数据库健康状态。
func (s *Store) Health() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// isDuplicateKey 判断错误是否为唯一约束冲突。
//
// gorm 的 TranslateError 覆盖大部分情况；不同驱动的原始错误串作为兜底。
func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key value")
}

// ========== Mailbox Repository ==========

// CreateMailbox 插入新邮箱，地址唯一约束冲突时返回 ErrAddressTaken。
func (s *Store) CreateMailbox(mailbox *domain.Mailbox) error {
	if err := s.db.Create(mailbox).Error; err != nil {
		if isDuplicateKey(err) {
			return storage.ErrAddressTaken
		}
		return err
	}
	return nil
}

// GetMailbox 根据 ID 获取邮箱。
func (s *Store) GetMailbox(id string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	if err := s.db.First(&mailbox, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMailboxNotFound
		}
		return nil, err
	}
	return &mailbox, nil
}

// GetMailboxByAddress 根据完整地址获取邮箱。
func (s *Store) GetMailboxByAddress(address string) (*domain.Mailbox, error) {
	var mailbox domain.Mailbox
	if err := s.db.First(&mailbox, "address = ?", address).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrMailboxNotFound
		}
		return nil, err
	}
	return &mailbox, nil
}

// UpdateMailbox 更新邮箱（续期、启停）。
func (s *Store) UpdateMailbox(mailbox *domain.Mailbox) error {
	result := s.db.Model(&domain.Mailbox{}).
		Where("id = ?", mailbox.ID).
		Updates(map[string]interface{}{
			"expires_at": mailbox.ExpiresAt,
			"is_active":  mailbox.IsActive,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrMailboxNotFound
	}
	return nil
}

// ListExpiredMailboxes 返回最多 limit 个已过期的邮箱，按过期时间升序。
func (s *Store) ListExpiredMailboxes(now time.Time, limit int) ([]domain.Mailbox, error) {
	var mailboxes []domain.Mailbox
	err := s.db.
		Where("expires_at < ?", now).
		Order("expires_at asc").
		Limit(limit).
		Find(&mailboxes).Error
	if err != nil {
		return nil, err
	}
	return mailboxes, nil
}

// DeleteMailbox 删除邮箱行本身。
func (s *Store) DeleteMailbox(id string) error {
	result := s.db.Delete(&domain.Mailbox{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrMailboxNotFound
	}
	return nil
}

// ========== Email Repository ==========

// SaveEmail 保存邮件。
func (s *Store) SaveEmail(email *domain.Email) error {
	return s.db.Create(email).Error
}

// ListEmails 返回某个邮箱下的全部邮件，按接收时间倒序。
func (s *Store) ListEmails(mailboxID string) ([]domain.Email, error) {
	var emails []domain.Email
	err := s.db.
		Where("mailbox_id = ?", mailboxID).
		Order("received_at desc").
		Find(&emails).Error
	if err != nil {
		return nil, err
	}
	return emails, nil
}

// GetEmail 获取单封邮件。
func (s *Store) GetEmail(mailboxID, emailID string) (*domain.Email, error) {
	var email domain.Email
	err := s.db.First(&email, "id = ? AND mailbox_id = ?", emailID, mailboxID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrEmailNotFound
		}
		return nil, err
	}
	return &email, nil
}

// MarkEmailRead 将邮件标记为已读。
func (s *Store) MarkEmailRead(mailboxID, emailID string) error {
	result := s.db.Model(&domain.Email{}).
		Where("id = ? AND mailbox_id = ?", emailID, mailboxID).
		Update("is_read", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrEmailNotFound
	}
	return nil
}

// DeleteEmail 删除指定邮件。
func (s *Store) DeleteEmail(mailboxID, emailID string) error {
	result := s.db.Delete(&domain.Email{}, "id = ? AND mailbox_id = ?", emailID, mailboxID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrEmailNotFound
	}
	return nil
}

// DeleteEmailsByMailbox 删除邮箱下所有邮件，返回删除数量。
func (s *Store) DeleteEmailsByMailbox(mailboxID string) (int, error) {
	result := s.db.Delete(&domain.Email{}, "mailbox_id = ?", mailboxID)
	return int(result.RowsAffected), result.Error
}

// ========== Attachment Repository ==========

// SaveAttachment 保存附件元数据。
func (s *Store) SaveAttachment(attachment *domain.Attachment) error {
	return s.db.Create(attachment).Error
}

// GetAttachment 根据 ID 获取附件元数据。
func (s *Store) GetAttachment(id string) (*domain.Attachment, error) {
	var attachment domain.Attachment
	if err := s.db.First(&attachment, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrAttachmentNotFound
		}
		return nil, err
	}
	return &attachment, nil
}

// ListAttachments 返回邮件下的全部附件元数据。
func (s *Store) ListAttachments(emailID string) ([]*domain.Attachment, error) {
	var attachments []*domain.Attachment
	err := s.db.Where("email_id = ?", emailID).Find(&attachments).Error
	if err != nil {
		return nil, err
	}
	return attachments, nil
}

// ListAttachmentsByMailbox 返回邮箱下的全部附件元数据。
func (s *Store) ListAttachmentsByMailbox(mailboxID string) ([]*domain.Attachment, error) {
	var attachments []*domain.Attachment
	err := s.db.Where("mailbox_id = ?", mailboxID).Find(&attachments).Error
	if err != nil {
		return nil, err
	}
	return attachments, nil
}

// DeleteAttachmentsByEmail 删除邮件下的所有附件行，返回删除数量。
func (s *Store) DeleteAttachmentsByEmail(emailID string) (int, error) {
	result := s.db.Delete(&domain.Attachment{}, "email_id = ?", emailID)
	return int(result.RowsAffected), result.Error
}

// DeleteAttachmentsByMailbox 删除邮箱下的所有附件行，返回删除数量。
func (s *Store) DeleteAttachmentsByMailbox(mailboxID string) (int, error) {
	result := s.db.Delete(&domain.Attachment{}, "mailbox_id = ?", mailboxID)
	return int(result.RowsAffected), result.Error
}

// ========== PushConfig Repository ==========

// GetPushConfig 获取邮箱级推送配置。
func (s *Store) GetPushConfig(mailboxID string) (*domain.PushConfig, error) {
	var cfg domain.PushConfig
	if err := s.db.First(&cfg, "mailbox_id = ?", mailboxID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrPushConfigNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// GetGlobalPushConfig 获取全局推送配置（单例，ID=1）。
func (s *Store) GetGlobalPushConfig() (*domain.GlobalPushConfig, error) {
	var cfg domain.GlobalPushConfig
	if err := s.db.First(&cfg, "id = ?", 1).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrPushConfigNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// SaveGlobalPushConfig 保存全局推送配置。
func (s *Store) SaveGlobalPushConfig(config *domain.GlobalPushConfig) error {
	config.ID = 1
	config.UpdatedAt = time.Now().UTC()
	return s.db.Save(config).Error
}

// DeletePushConfig 删除邮箱级推送配置。
func (s *Store) DeletePushConfig(mailboxID string) error {
	return s.db.Delete(&domain.PushConfig{}, "mailbox_id = ?", mailboxID).Error
}

// ========== PushLog Repository ==========

// SavePushLog 追加一条推送日志。
func (s *Store) SavePushLog(log *domain.PushLog) error {
	return s.db.Create(log).Error
}

// UpdatePushLog 更新推送日志的落定状态。
func (s *Store) UpdatePushLog(log *domain.PushLog) error {
	result := s.db.Model(&domain.PushLog{}).
		Where("id = ?", log.ID).
		Updates(map[string]interface{}{
			"status":        log.Status,
			"error_message": log.ErrorMessage,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return storage.ErrPushLogNotFound
	}
	return nil
}

// ListPushLogs 返回邮箱最近的推送日志，按创建时间倒序。
func (s *Store) ListPushLogs(mailboxID string, limit int) ([]domain.PushLog, error) {
	var logs []domain.PushLog
	query := s.db.Where("mailbox_id = ?", mailboxID).Order("created_at desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}

// DeletePushLogsByMailbox 删除邮箱下的全部推送日志，返回删除数量。
func (s *Store) DeletePushLogsByMailbox(mailboxID string) (int, error) {
	result := s.db.Delete(&domain.PushLog{}, "mailbox_id = ?", mailboxID)
	return int(result.RowsAffected), result.Error
}
