package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditEvent 领域事件落库记录, ID 由事件发布方生成, 重复投递时主键冲突即可去重
type AuditEvent struct {
	ID        int64          `gorm:"primaryKey;autoIncrement:false" json:"id,string"`
	Kind      string         `gorm:"not null;index" json:"kind"`
	GroupID   uint           `gorm:"not null;index" json:"group_id"`
	ActorID   uint           `json:"actor_id"`
	Payload   datatypes.JSON `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

func (AuditEvent) TableName() string {
	return "audit_events"
}
