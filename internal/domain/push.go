package domain

import "time"

// PushChannel 标识一次推送走的通道。
type PushChannel string

const (
	PushChannelMailbox PushChannel = "mailbox" // 邮箱级配置
	PushChannelGlobal  PushChannel = "global"  // 全局（管理员）配置
)

// PushStatus 表示单次推送的结果状态。
type PushStatus string

const (
	PushStatusPending PushStatus = "pending"
	PushStatusSuccess PushStatus = "success"
	PushStatusFailed  PushStatus = "failed"
)

// PushConfig 邮箱级推送配置。
//
// 由管理后台（外部协作方）写入，本核心只读。
type PushConfig struct {
	MailboxID string    `json:"mailboxId" gorm:"primaryKey;type:varchar(36)"`
	BotToken  string    `json:"-" gorm:"type:varchar(255)"`
	ChatID    string    `json:"chatId" gorm:"type:varchar(64)"`
	Enabled   bool      `json:"enabled" gorm:"default:false"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// GlobalPushConfig 全局推送配置（单例，ID 固定为 1）。
type GlobalPushConfig struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	BotToken  string    `json:"-" gorm:"type:varchar(255)"`
	ChatID    string    `json:"chatId" gorm:"type:varchar(64)"`
	Enabled   bool      `json:"enabled" gorm:"default:false"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PushLog 记录一次推送尝试，只追加不修改（除状态落定）。
//
// 不是权威状态，仅供审计；保留期清理由外部任务负责。
type PushLog struct {
	ID           string      `json:"id" gorm:"primaryKey;type:varchar(36)"`
	MailboxID    string      `json:"mailboxId" gorm:"type:varchar(36);index"`
	EmailID      string      `json:"emailId" gorm:"type:varchar(36);index"`
	Channel      PushChannel `json:"channel" gorm:"type:varchar(16)"`
	Status       PushStatus  `json:"status" gorm:"type:varchar(16)"`
	ErrorMessage string      `json:"errorMessage,omitempty" gorm:"type:text"`
	CreatedAt    time.Time   `json:"createdAt"`
}
