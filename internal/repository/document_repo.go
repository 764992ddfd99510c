package repository

import (
	"errors"

	"github.com/complyon/backend/internal/model"
	"gorm.io/gorm"
)

type documentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(doc *model.SupportingDocument) error {
	return r.db.Create(doc).Error
}

func (r *documentRepository) Get(id uint) (*model.SupportingDocument, error) {
	var doc model.SupportingDocument
	err := r.db.First(&doc, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) GetByQuestion(questionID uint) ([]model.SupportingDocument, error) {
	var docs []model.SupportingDocument
	err := r.db.Where("question_id = ?", questionID).Order("created_at").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) GetByVendor(vendorID uint) ([]model.SupportingDocument, error) {
	var docs []model.SupportingDocument
	err := r.db.Where("vendor_id = ?", vendorID).Order("created_at").Find(&docs).Error
	return docs, err
}

func (r *documentRepository) Delete(id uint) error {
	return r.db.Delete(&model.SupportingDocument{}, id).Error
}
