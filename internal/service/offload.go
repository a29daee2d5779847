package service

import (
	"go.uber.org/zap"

	"dropmail/backend/internal/domain"
	"dropmail/backend/internal/storage"
)

// KeyFunc 根据文件名生成对象键。
type KeyFunc func(filename string) string

// Offloader 负责把附件二进制内容卸载到对象存储。
//
// 每个附件独立处理：单个上传失败只影响该附件的状态，
// 元数据行无论成败都会落库，邮件本身照常可见。
type Offloader struct {
	attachments storage.AttachmentRepository
	blobs       BlobStore // 可为 nil，表示内容不落对象存储
	keyFunc     KeyFunc
	logger      *zap.Logger
}

// NewOffloader 创建附件卸载器。
func NewOffloader(
	attachments storage.AttachmentRepository,
	blobs BlobStore,
	keyFunc KeyFunc,
	logger *zap.Logger,
) *Offloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Offloader{
		attachments: attachments,
		blobs:       blobs,
		keyFunc:     keyFunc,
		logger:      logger,
	}
}

// Offload 处理一封邮件的全部附件，返回上传失败的数量。
//
// 附件的 EmailID/MailboxID 在这里补齐。对象存储未配置时
// 所有附件直接标记为失败，元数据仍然保留。
func (o *Offloader) Offload(email *domain.Email, attachments []*domain.Attachment) int {
	failed := 0

	for _, att := range attachments {
		att.EmailID = email.ID
		att.MailboxID = email.MailboxID
		att.CreatedAt = email.ReceivedAt

		if o.blobs == nil {
			att.UploadStatus = domain.UploadStatusFailed
			failed++
		} else {
			key := o.keyFunc(att.Filename)
			if err := o.blobs.Put(key, att.ContentType, att.Content); err != nil {
				o.logger.Warn("attachment upload failed",
					zap.String("email_id", email.ID),
					zap.String("filename", att.Filename),
					zap.Error(err))
				att.UploadStatus = domain.UploadStatusFailed
				failed++
			} else {
				att.ObjectKey = key
				att.UploadStatus = domain.UploadStatusUploaded
			}
		}

		// 内容不入库，只存元数据
		att.Content = nil

		if err := o.attachments.SaveAttachment(att); err != nil {
			o.logger.Error("failed to save attachment metadata",
				zap.String("email_id", email.ID),
				zap.String("filename", att.Filename),
				zap.Error(err))
		}
	}

	return failed
}
