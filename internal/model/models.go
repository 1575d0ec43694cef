package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Task 表示一条待办任务。
//
// 每个任务有且只有一个所有者，所有者在创建时确定，之后不可变更。
// User 仅作为查询时的反向引用，不参与任何级联写入。
type Task struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"` // 任务唯一标识 (UUIDv7)
	CreatedAt time.Time `gorm:"index"`                       // 创建时间（列表排序依据）
	UpdatedAt time.Time // 更新时间

	Body   string `gorm:"type:text;not null"`              // 任务内容
	UserID string `gorm:"type:varchar(36);not null;index"` // 所属用户 ID
	User   *User  `gorm:"foreignKey:UserID"`               // 所属用户（仅用于查询）
}

// BeforeCreate 在插入前生成 ID。
func (t *Task) BeforeCreate(tx *gorm.DB) error {
	if t.ID != "" {
		return nil
	}
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	t.ID = id.String()
	return nil
}

type taskJSON struct {
	ID        string       `json:"id"`
	Body      string       `json:"body"`
	UserID    string       `json:"userId"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
	User      *UserSummary `json:"user,omitempty"`
}

// MarshalJSON 输出任务，如已加载所有者则附带其摘要。
func (t Task) MarshalJSON() ([]byte, error) {
	out := taskJSON{
		ID:        t.ID,
		Body:      t.Body,
		UserID:    t.UserID,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
	if t.User != nil && t.User.ID != "" {
		summary := t.User.Summary()
		out.User = &summary
	}
	return json.Marshal(out)
}
