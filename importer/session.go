package importer

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/GrainArc/GeoPorter/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// RowError 单行失败记录，带行号和出错的原始数据
type RowError struct {
	Row   int                    `json:"row"`
	Error string                 `json:"error"`
	Data  map[string]interface{} `json:"data"`
}

// SessionStore 导入会话的唯一写入口
// 状态只能沿pending→processing→completed|failed推进，终态不再迁移
// 读取方只拿快照，不共享可变引用
type SessionStore interface {
	Create(s *models.ImportSession) error
	MarkProcessing(uid string) error
	AttachDataset(uid string, datasetUID string) error
	UpdateProgress(uid string, processed int, errCount int, errs []RowError) error
	SetTotal(uid string, total int) error
	Finalize(uid string, status string, failReason string) error
	Get(uid string) (*models.ImportSession, error)
}

// GormSessionStore 会话持久化到侧库，独立于主库事务，进程重启后可查
type GormSessionStore struct {
	DB *gorm.DB
}

func NewSessionStore(db *gorm.DB) *GormSessionStore {
	return &GormSessionStore{DB: db}
}

func (st *GormSessionStore) Create(s *models.ImportSession) error {
	if s.Status == "" {
		s.Status = models.SessionPending
	}
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now()
	}
	return st.DB.Create(s).Error
}

func (st *GormSessionStore) MarkProcessing(uid string) error {
	result := st.DB.Model(&models.ImportSession{}).
		Where("uid = ? AND status = ?", uid, models.SessionPending).
		Update("status", models.SessionProcessing)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("会话%s不在pending状态，无法开始处理", uid)
	}
	return nil
}

func (st *GormSessionStore) AttachDataset(uid string, datasetUID string) error {
	return st.DB.Model(&models.ImportSession{}).
		Where("uid = ?", uid).
		Update("dataset_uid", datasetUID).Error
}

func (st *GormSessionStore) UpdateProgress(uid string, processed int, errCount int, errs []RowError) error {
	session, err := st.Get(uid)
	if err != nil {
		return err
	}
	// 已处理行数不回退也不超过总数
	if processed < session.ProcessedRows {
		processed = session.ProcessedRows
	}
	if session.TotalRows > 0 && processed > session.TotalRows {
		processed = session.TotalRows
	}
	errData, _ := json.Marshal(errs)
	return st.DB.Model(&models.ImportSession{}).
		Where("uid = ?", uid).
		Updates(map[string]interface{}{
			"processed_rows": processed,
			"error_count":    errCount,
			"errors":         datatypes.JSON(errData),
		}).Error
}

func (st *GormSessionStore) SetTotal(uid string, total int) error {
	return st.DB.Model(&models.ImportSession{}).
		Where("uid = ?", uid).
		Update("total_rows", total).Error
}

// Finalize 会话收尾，只执行一次，不允许离开终态
func (st *GormSessionStore) Finalize(uid string, status string, failReason string) error {
	if status != models.SessionCompleted && status != models.SessionFailed {
		return fmt.Errorf("非法的终态: %s", status)
	}
	now := time.Now()
	result := st.DB.Model(&models.ImportSession{}).
		Where("uid = ? AND status NOT IN ?", uid, []string{models.SessionCompleted, models.SessionFailed}).
		Updates(map[string]interface{}{
			"status":       status,
			"fail_reason":  failReason,
			"completed_at": &now,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("会话%s已是终态，不能再收尾", uid)
	}
	return nil
}

// Get 返回会话快照
func (st *GormSessionStore) Get(uid string) (*models.ImportSession, error) {
	var s models.ImportSession
	if err := st.DB.Where("uid = ?", uid).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}
