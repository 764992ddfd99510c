package repository

import (
	"errors"

	"github.com/complyon/backend/internal/model"
	"gorm.io/gorm"
)

type submissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Create(record *model.SubmissionRecord) error {
	return r.db.Create(record).Error
}

func (r *submissionRepository) Get(id uint) (*model.SubmissionRecord, error) {
	var record model.SubmissionRecord
	err := r.db.First(&record, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *submissionRepository) GetByVendor(vendorID uint) ([]model.SubmissionRecord, error) {
	var records []model.SubmissionRecord
	err := r.db.Where("vendor_id = ?", vendorID).Order("created_at desc").Find(&records).Error
	return records, err
}

// GetLineage 从根记录出发沿 parent_submission_id 向下收集跟进链
// 链条通常很短（个位数），逐层查询即可
func (r *submissionRepository) GetLineage(rootID uint) ([]model.SubmissionRecord, error) {
	root, err := r.Get(rootID)
	if err != nil {
		return nil, err
	}
	lineage := []model.SubmissionRecord{*root}
	frontier := []uint{rootID}
	for len(frontier) > 0 {
		var children []model.SubmissionRecord
		if err := r.db.Where("parent_submission_id IN ?", frontier).Order("created_at").Find(&children).Error; err != nil {
			return nil, err
		}
		frontier = frontier[:0]
		for _, c := range children {
			lineage = append(lineage, c)
			frontier = append(frontier, c.ID)
		}
	}
	return lineage, nil
}

func (r *submissionRepository) GetBySubjectChecklist(checklistID uint) ([]model.SubmissionRecord, error) {
	var records []model.SubmissionRecord
	err := r.db.Where("checklist_id = ?", checklistID).Order("created_at").Find(&records).Error
	return records, err
}
