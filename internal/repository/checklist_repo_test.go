package repository

import (
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/complyon/backend/internal/model"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db error: %v", err)
	}
	if err := db.AutoMigrate(&model.Checklist{}, &model.Question{}, &model.SupportingDocument{}, &model.SubmissionRecord{}); err != nil {
		t.Fatalf("migrate error: %v", err)
	}
	return db
}

func TestChecklistRepositoryGetOrdersQuestions(t *testing.T) {
	db := setupTestDB(t)
	checklistRepo := NewChecklistRepository(db)
	questionRepo := NewQuestionRepository(db)

	checklist := &model.Checklist{VendorID: 1, Name: "SOC2 问卷", SourceFilename: "soc2.xlsx"}
	if err := checklistRepo.Create(checklist); err != nil {
		t.Fatalf("create checklist error: %v", err)
	}

	// 乱序写入，读取时必须按 position 排序
	for _, pos := range []int{3, 1, 2} {
		q := &model.Question{ChecklistID: &checklist.ID, VendorID: 1, Text: "q", Position: pos}
		if err := questionRepo.Create(q); err != nil {
			t.Fatalf("create question error: %v", err)
		}
	}

	got, err := checklistRepo.Get(checklist.ID)
	if err != nil {
		t.Fatalf("get checklist error: %v", err)
	}
	if len(got.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(got.Questions))
	}
	for i, q := range got.Questions {
		if q.Position != i+1 {
			t.Fatalf("expected position %d at index %d, got %d", i+1, i, q.Position)
		}
	}
}

func TestChecklistRepositoryDeleteCascade(t *testing.T) {
	db := setupTestDB(t)
	checklistRepo := NewChecklistRepository(db)
	questionRepo := NewQuestionRepository(db)
	docRepo := NewDocumentRepository(db)

	checklist := &model.Checklist{VendorID: 1, Name: "ISO 27001", SourceFilename: "iso.pdf"}
	if err := checklistRepo.Create(checklist); err != nil {
		t.Fatalf("create checklist error: %v", err)
	}
	question := &model.Question{ChecklistID: &checklist.ID, VendorID: 1, Text: "加密策略?", Position: 1}
	if err := questionRepo.Create(question); err != nil {
		t.Fatalf("create question error: %v", err)
	}
	doc := &model.SupportingDocument{QuestionID: &question.ID, VendorID: 1, Filename: "policy.pdf", StorageKey: "evidence/1/a.pdf"}
	if err := docRepo.Create(doc); err != nil {
		t.Fatalf("create document error: %v", err)
	}

	// 不在被删清单里的问题必须保留
	other := &model.Question{VendorID: 1, Text: "手工问题", Position: 0}
	if err := questionRepo.Create(other); err != nil {
		t.Fatalf("create manual question error: %v", err)
	}

	if err := checklistRepo.DeleteCascade(checklist.ID); err != nil {
		t.Fatalf("cascade delete error: %v", err)
	}

	if _, err := checklistRepo.Get(checklist.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for checklist, got %v", err)
	}
	if _, err := questionRepo.Get(question.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for question, got %v", err)
	}
	if _, err := docRepo.Get(doc.ID); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for document, got %v", err)
	}
	if _, err := questionRepo.Get(other.ID); err != nil {
		t.Fatalf("manual question should survive cascade: %v", err)
	}
}
