package model

import (
	"time"
)

// Checklist 一份上传的合规清单，抽取后持有有序的问题集合
type Checklist struct {
	ID                uint       `json:"id" gorm:"primaryKey"`
	VendorID          uint       `json:"vendor_id" gorm:"index;not null"`
	Name              string     `json:"name" gorm:"size:255;not null"`
	SourceFilename    string     `json:"source_filename" gorm:"size:255;not null"`
	ExtractionStatus  string     `json:"extraction_status" gorm:"size:50;default:uploading"` // uploading, extracting, completed, error
	ErrorMsg          string     `json:"error_msg" gorm:"size:1000"`
	SentToTrustPortal bool       `json:"sent_to_trust_portal" gorm:"default:false"`
	SubmittedAt       *time.Time `json:"submitted_at"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	Questions         []Question `json:"questions,omitempty" gorm:"foreignKey:ChecklistID"`
}

// Question 单个合规问题
// ChecklistID 为空表示手工录入的问题，不属于任何清单
// Status 表示 AI 生成进度，IsDone 表示人工确认，两者语义不同不可合并
type Question struct {
	ID                  uint       `json:"id" gorm:"primaryKey"`
	ChecklistID         *uint      `json:"checklist_id" gorm:"index"`
	VendorID            uint       `json:"vendor_id" gorm:"index;not null"`
	Text                string     `json:"text" gorm:"type:text;not null"`
	Position            int        `json:"position" gorm:"default:0"`
	Status              string     `json:"status" gorm:"size:50;default:pending"` // pending, in-progress, completed, done, needs-support
	Answer              string     `json:"answer" gorm:"type:text"`
	Confidence          *float64   `json:"confidence"` // 0..1
	RequiresDocument    bool       `json:"requires_document" gorm:"default:false"`
	DocumentDescription string     `json:"document_description" gorm:"size:1000"`
	IsDone              bool       `json:"is_done" gorm:"default:false"`
	Category            string     `json:"category" gorm:"size:100"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// SupportingDocument 挂在问题上的证据文件
// QuestionID 为空表示厂商级的通用文件
type SupportingDocument struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	QuestionID  *uint     `json:"question_id" gorm:"index"`
	VendorID    uint      `json:"vendor_id" gorm:"index;not null"`
	Filename    string    `json:"filename" gorm:"size:255;not null"`
	ContentType string    `json:"content_type" gorm:"size:100"`
	Size        int64     `json:"size"`
	StorageKey  string    `json:"storage_key" gorm:"size:500;not null"`
	StorageURL  string    `json:"storage_url" gorm:"size:1000"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SubmissionRecord 提交到外部评审门户的不可变快照
// ChecklistID/QuestionID/DocumentID 三者有且仅有一个非空
// 追加修订不改旧记录，而是新建记录并通过 ParentSubmissionID 串成链
type SubmissionRecord struct {
	ID                 uint      `json:"id" gorm:"primaryKey"`
	Reference          string    `json:"reference" gorm:"size:64;uniqueIndex"` // UUID
	ChecklistID        *uint     `json:"checklist_id" gorm:"index"`
	QuestionID         *uint     `json:"question_id" gorm:"index"`
	DocumentID         *uint     `json:"document_id" gorm:"index"`
	VendorID           uint      `json:"vendor_id" gorm:"index;not null"`
	Title              string    `json:"title" gorm:"size:255;not null"`
	Content            string    `json:"content" gorm:"type:text"` // 序列化后的提交快照
	IsFollowUp         bool      `json:"is_follow_up" gorm:"default:false"`
	FollowUpType       string    `json:"follow_up_type" gorm:"size:50;default:initial"` // initial, follow_up, resubmission, clarification, additional_docs
	FollowUpReason     string    `json:"follow_up_reason" gorm:"size:1000"`
	ParentSubmissionID *uint     `json:"parent_submission_id" gorm:"index"`
	PortalID           string    `json:"portal_id" gorm:"size:255"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// ManualChecklistID 手工问题分组在投影里使用的合成分组ID
const ManualChecklistID uint = 0
