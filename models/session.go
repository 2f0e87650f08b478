package models

import (
	"time"

	"gorm.io/datatypes"
)

// 导入会话状态，只能沿 pending -> processing -> completed|failed 推进
const (
	SessionPending    = "pending"
	SessionProcessing = "processing"
	SessionCompleted  = "completed"
	SessionFailed     = "failed"
)

// ImportSession 一次导入的进度与审计记录
// 独立于内存中的导入流程持久化，进程重启后仍可查询
type ImportSession struct {
	ID            int64  `gorm:"primaryKey;autoIncrement"`
	UID           string `gorm:"type:varchar(64);uniqueIndex"`
	DatasetUID    string `gorm:"type:varchar(64);index"`
	Filename      string `gorm:"type:varchar(512)"`
	FileType      string `gorm:"type:varchar(32)"`
	Status        string `gorm:"type:varchar(32);index"`
	TotalRows     int
	ProcessedRows int
	ErrorCount    int
	Errors        datatypes.JSON `gorm:"type:jsonb"` // [{row,error,data}]
	Mapping       datatypes.JSON `gorm:"type:jsonb"` // 字段映射快照
	FailReason    string         `gorm:"type:varchar(1024)"`
	StartedAt     time.Time
	CompletedAt   *time.Time
}

// Finished 终态判断，completed和failed不再迁移
func (s *ImportSession) Finished() bool {
	return s.Status == SessionCompleted || s.Status == SessionFailed
}
