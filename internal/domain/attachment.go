package domain

import "time"

// UploadStatus 表示附件内容转存对象存储的状态。
type UploadStatus string

const (
	UploadStatusPending  UploadStatus = "pending"  // 行已建，内容尚未上传
	UploadStatusUploaded UploadStatus = "uploaded" // 上传成功，ObjectKey 可取回内容
	UploadStatusFailed   UploadStatus = "failed"   // 上传失败，仅保留元数据
)

// Attachment 表示邮件附件。
//
// 元数据始终入库；二进制内容只存在对象存储中。
// UploadStatus = uploaded 时 ObjectKey 非空且内容可取回；
// UploadStatus = failed 时元数据仍在，内容不可用（尽力而为记录）。
type Attachment struct {
	ID           string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	EmailID      string       `json:"emailId" gorm:"type:varchar(36);index;not null"`
	MailboxID    string       `json:"mailboxId" gorm:"type:varchar(36);index;not null"`
	Filename     string       `json:"filename" gorm:"type:varchar(255)"`
	ContentType  string       `json:"contentType" gorm:"type:varchar(100)"`
	ContentID    string       `json:"contentId,omitempty" gorm:"type:varchar(255)"` // Content-ID 头，内嵌资源用
	IsInline     bool         `json:"isInline" gorm:"default:false"`
	SizeBytes    int64        `json:"sizeBytes"`
	ObjectKey    string       `json:"objectKey,omitempty" gorm:"type:varchar(500)"`
	UploadStatus UploadStatus `json:"uploadStatus" gorm:"type:varchar(16);default:pending"`
	CreatedAt    time.Time    `json:"createdAt"`

	// 附件内容（不存数据库，解析阶段携带、取回阶段从对象存储加载）
	Content []byte `json:"-" gorm:"-"`
}
