package domain

import "time"

// Email 表示一封已入库的邮件。
type Email struct {
	ID         string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailboxID  string    `json:"mailboxId" gorm:"type:varchar(36);index;not null"`
	MessageID  string    `json:"messageId,omitempty" gorm:"type:varchar(255)"` // 传输层 Message-ID 头（可选）
	From       string    `json:"from" gorm:"type:varchar(255)"`
	To         string    `json:"to" gorm:"type:varchar(255)"`
	Subject    string    `json:"subject" gorm:"type:varchar(500)"`
	Text       string    `json:"text,omitempty" gorm:"type:text"`
	HTML       string    `json:"html,omitempty" gorm:"type:text"`
	Raw        []byte    `json:"-"` // 原始报文字节，按收到的内容原样保存
	ReceivedAt time.Time `json:"receivedAt"`
	IsRead     bool      `json:"isRead" gorm:"default:false;index"`
	SizeBytes  int64     `json:"sizeBytes"`

	// 附件元数据，独立建表，不随邮件行存储
	Attachments []*Attachment `json:"attachments,omitempty" gorm:"-"`
}
