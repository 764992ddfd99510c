package repository

import (
	"errors"

	"github.com/complyon/backend/internal/model"
	"gorm.io/gorm"
)

type checklistRepository struct {
	db *gorm.DB
}

func NewChecklistRepository(db *gorm.DB) ChecklistRepository {
	return &checklistRepository{db: db}
}

func (r *checklistRepository) Create(checklist *model.Checklist) error {
	return r.db.Create(checklist).Error
}

func (r *checklistRepository) List(vendorID uint) ([]model.Checklist, error) {
	var checklists []model.Checklist
	err := r.db.Where("vendor_id = ?", vendorID).Order("created_at desc").Find(&checklists).Error
	return checklists, err
}

// Get 获取清单及其有序问题集合
func (r *checklistRepository) Get(id uint) (*model.Checklist, error) {
	var checklist model.Checklist
	err := r.db.Preload("Questions", func(db *gorm.DB) *gorm.DB {
		return db.Order("position")
	}).First(&checklist, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &checklist, nil
}

// GetBasic 只取清单本体，不带问题集合
func (r *checklistRepository) GetBasic(id uint) (*model.Checklist, error) {
	var checklist model.Checklist
	err := r.db.First(&checklist, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &checklist, nil
}

func (r *checklistRepository) Save(checklist *model.Checklist) error {
	return r.db.Save(checklist).Error
}

// DeleteCascade 级联删除清单、问题以及问题挂接的证据文件记录
// 必须在一个事务内完成，避免出现可见的孤儿问题
func (r *checklistRepository) DeleteCascade(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var questionIDs []uint
		if err := tx.Model(&model.Question{}).Where("checklist_id = ?", id).Pluck("id", &questionIDs).Error; err != nil {
			return err
		}
		if len(questionIDs) > 0 {
			if err := tx.Where("question_id IN ?", questionIDs).Delete(&model.SupportingDocument{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("checklist_id = ?", id).Delete(&model.Question{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Checklist{}, id).Error
	})
}
