package repository

import (
	"errors"
	"time"

	"github.com/complyon/backend/internal/model"
)

// ErrNotFound 记录不存在错误
var ErrNotFound = errors.New("record not found")

type ChecklistRepository interface {
	Create(checklist *model.Checklist) error
	List(vendorID uint) ([]model.Checklist, error)
	Get(id uint) (*model.Checklist, error)
	GetBasic(id uint) (*model.Checklist, error)
	Save(checklist *model.Checklist) error
	// DeleteCascade 删除清单及其问题与证据文件记录，单事务完成
	DeleteCascade(id uint) error
}

type QuestionRepository interface {
	Create(question *model.Question) error
	CreateBatch(questions []model.Question) error
	Get(id uint) (*model.Question, error)
	GetByChecklist(checklistID uint) ([]model.Question, error)
	GetByVendor(vendorID uint) ([]model.Question, error)
	GetByStatus(vendorID uint, status string) ([]model.Question, error)
	Save(question *model.Question) error
	// ResetStuckInProgress 启动时将长时间停留在 in-progress 的问题回退为 pending
	// 问题不提供单独的删除入口，只随清单级联删除
	ResetStuckInProgress(timeout time.Duration) (int64, error)
}

type DocumentRepository interface {
	Create(doc *model.SupportingDocument) error
	Get(id uint) (*model.SupportingDocument, error)
	GetByQuestion(questionID uint) ([]model.SupportingDocument, error)
	GetByVendor(vendorID uint) ([]model.SupportingDocument, error)
	Delete(id uint) error
}

type SubmissionRepository interface {
	Create(record *model.SubmissionRecord) error
	Get(id uint) (*model.SubmissionRecord, error)
	GetByVendor(vendorID uint) ([]model.SubmissionRecord, error)
	// GetLineage 返回某条提交记录的跟进链，按创建时间排列
	GetLineage(rootID uint) ([]model.SubmissionRecord, error)
	GetBySubjectChecklist(checklistID uint) ([]model.SubmissionRecord, error)
}
