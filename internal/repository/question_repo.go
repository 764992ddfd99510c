package repository

import (
	"errors"
	"time"

	"github.com/complyon/backend/internal/model"
	"gorm.io/gorm"
)

type questionRepository struct {
	db *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) Create(question *model.Question) error {
	return r.db.Create(question).Error
}

func (r *questionRepository) CreateBatch(questions []model.Question) error {
	if len(questions) == 0 {
		return nil
	}
	return r.db.Create(&questions).Error
}

func (r *questionRepository) Get(id uint) (*model.Question, error) {
	var question model.Question
	err := r.db.First(&question, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &question, nil
}

func (r *questionRepository) GetByChecklist(checklistID uint) ([]model.Question, error) {
	var questions []model.Question
	err := r.db.Where("checklist_id = ?", checklistID).Order("position").Find(&questions).Error
	return questions, err
}

func (r *questionRepository) GetByVendor(vendorID uint) ([]model.Question, error) {
	var questions []model.Question
	err := r.db.Where("vendor_id = ?", vendorID).Order("checklist_id, position").Find(&questions).Error
	return questions, err
}

func (r *questionRepository) GetByStatus(vendorID uint, status string) ([]model.Question, error) {
	var questions []model.Question
	err := r.db.Where("vendor_id = ? AND status = ?", vendorID, status).Order("position").Find(&questions).Error
	return questions, err
}

func (r *questionRepository) Save(question *model.Question) error {
	return r.db.Save(question).Error
}

// ResetStuckInProgress 将停留在 in-progress 超时的问题回退为 pending
// 用于服务重启后恢复中断的生成调度
func (r *questionRepository) ResetStuckInProgress(timeout time.Duration) (int64, error) {
	cutoff := time.Now().Add(-timeout)
	result := r.db.Model(&model.Question{}).
		Where("status = ? AND updated_at < ?", "in-progress", cutoff).
		Update("status", "pending")
	return result.RowsAffected, result.Error
}
