package domain

import (
	"time"
)

// OwnerClass 表示邮箱的归属类型。
type OwnerClass string

const (
	// OwnerClassAnonymous 匿名邮箱：系统按需生成，生命周期短（默认 24 小时）。
	OwnerClassAnonymous OwnerClass = "anonymous"
	// OwnerClassOwned 归属邮箱：绑定注册用户，生命周期长（默认 1 年），可显式续期。
	OwnerClassOwned OwnerClass = "owned"
)

// Mailbox 表示一个一次性邮箱的业务实体。
//
// 邮箱在第一封入站邮件或用户首次申请时惰性创建；创建后除
// ExpiresAt 续期与 IsActive 开关外不再修改，删除只由清理任务执行。
type Mailbox struct {
	ID         string     `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Address    string     `json:"address" gorm:"type:varchar(255);uniqueIndex"`
	OwnerID    *string    `json:"ownerId,omitempty" gorm:"type:varchar(36);index"` // 关联的用户ID（匿名邮箱为nil）
	OwnerClass OwnerClass `json:"ownerClass" gorm:"type:varchar(16);default:anonymous"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt" gorm:"index"`
	IsActive   bool       `json:"isActive" gorm:"default:true"`
}

// Expired 判断邮箱在指定时刻是否已过期。
//
// 过期但尚未被清理的邮箱仍可读取历史，但拒绝接收新邮件。
func (m *Mailbox) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}
