package service

import (
	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/storage"
)

// BlobStore 附件二进制内容的对象存储。
type BlobStore interface {
	Put(key string, contentType string, data []byte) error
	Get(key string) ([]byte, error)
	Delete(key string) error
}

// EmailService 封装邮件读取与管理操作。
type EmailService struct {
	emails      storage.EmailRepository
	attachments storage.AttachmentRepository
	blobs       BlobStore // 可为 nil
	logger      *zap.Logger
}

// NewEmailService 创建邮件业务服务。
func NewEmailService(
	emails storage.EmailRepository,
	attachments storage.AttachmentRepository,
	blobs BlobStore,
	logger *zap.Logger,
) *EmailService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmailService{
		emails:      emails,
		attachments: attachments,
		blobs:       blobs,
		logger:      logger,
	}
}

// List 返回邮箱下的全部邮件（含附件元数据），按接收时间倒序。
func (s *EmailService) List(mailboxID string) ([]domain.Email, error) {
	emails, err := s.emails.ListEmails(mailboxID)
	if err != nil {
		return nil, err
	}

	for i := range emails {
		atts, err := s.attachments.ListAttachments(emails[i].ID)
		if err != nil {
			s.logger.Warn("failed to list attachments",
				zap.String("email_id", emails[i].ID), zap.Error(err))
			continue
		}
		emails[i].Attachments = atts
	}

	return emails, nil
}

// Get 获取单封邮件及附件元数据。
func (s *EmailService) Get(mailboxID, emailID string) (*domain.Email, error) {
	email, err := s.emails.GetEmail(mailboxID, emailID)
	if err != nil {
		return nil, err
	}

	atts, err := s.attachments.ListAttachments(email.ID)
	if err == nil {
		email.Attachments = atts
	}

	return email, nil
}

// MarkRead 将邮件标记为已读。
func (s *EmailService) MarkRead(mailboxID, emailID string) error {
	return s.emails.MarkEmailRead(mailboxID, emailID)
}

// Delete 删除邮件及其附件行，附件对象尽力删除。
func (s *EmailService) Delete(mailboxID, emailID string) error {
	atts, err := s.attachments.ListAttachments(emailID)
	if err == nil && s.blobs != nil {
		for _, att := range atts {
			if att.UploadStatus != domain.UploadStatusUploaded || att.ObjectKey == "" {
				continue
			}
			if err := s.blobs.Delete(att.ObjectKey); err != nil {
				s.logger.Warn("failed to delete attachment object",
					zap.String("object_key", att.ObjectKey), zap.Error(err))
			}
		}
	}

	if _, err := s.attachments.DeleteAttachmentsByEmail(emailID); err != nil {
		return err
	}

	return s.emails.DeleteEmail(mailboxID, emailID)
}

// GetAttachment 获取附件元数据。
func (s *EmailService) GetAttachment(id string) (*domain.Attachment, error) {
	return s.attachments.GetAttachment(id)
}

// DownloadAttachment 获取附件元数据及其二进制内容。
//
// 内容获取是尽力而为：元数据始终返回，内容取不到时
// data 为 nil（上传失败的附件、对象存储不可用等情况）。
func (s *EmailService) DownloadAttachment(id string) (*domain.Attachment, []byte, error) {
	att, err := s.attachments.GetAttachment(id)
	if err != nil {
		return nil, nil, err
	}

	if s.blobs == nil || att.UploadStatus != domain.UploadStatusUploaded || att.ObjectKey == "" {
		return att, nil, nil
	}

	data, err := s.blobs.Get(att.ObjectKey)
	if err != nil {
		s.logger.Warn("failed to fetch attachment object",
			zap.String("object_key", att.ObjectKey), zap.Error(err))
		return att, nil, nil
	}

	return att, data, nil
}
