package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/complyon/backend/internal/domain"
	"github.com/complyon/backend/internal/model"
	"github.com/complyon/backend/internal/pkg/portal"
	"github.com/complyon/backend/internal/repository"
	"github.com/complyon/backend/internal/service/completion"
	"github.com/complyon/backend/internal/service/statemachine"
)

// SubmissionService 负责向外部评审门户提交清单、单问题或证据文件
//
// 每次提交都走完整的阶段机：draft -> awaiting_follow_up_decision -> submitted
// 跟进决定必须显式给出：isFollowUp 为真时必须有父提交，为假时不得有父提交
type SubmissionService struct {
	checklistRepo  repository.ChecklistRepository
	questionRepo   repository.QuestionRepository
	docRepo        repository.DocumentRepository
	submissionRepo repository.SubmissionRepository
	portal         portal.Service
	stateMachine   *statemachine.SubmissionStateMachine
}

func NewSubmissionService(
	checklistRepo repository.ChecklistRepository,
	questionRepo repository.QuestionRepository,
	docRepo repository.DocumentRepository,
	submissionRepo repository.SubmissionRepository,
	portalSvc portal.Service,
) *SubmissionService {
	return &SubmissionService{
		checklistRepo:  checklistRepo,
		questionRepo:   questionRepo,
		docRepo:        docRepo,
		submissionRepo: submissionRepo,
		portal:         portalSvc,
		stateMachine:   statemachine.NewSubmissionStateMachine(),
	}
}

// questionSnapshot 提交快照里的单个问题条目
type questionSnapshot struct {
	Text       string   `json:"text"`
	Answer     string   `json:"answer"`
	Confidence *float64 `json:"confidence,omitempty"`
	Category   string   `json:"category,omitempty"`
	Source     string   `json:"source"` // checklist 或 manual
}

// checklistSnapshot 清单提交的完整快照，落库后不再变化
type checklistSnapshot struct {
	ChecklistName string             `json:"checklist_name"`
	Items         []questionSnapshot `json:"items"`
	SubmittedAt   string             `json:"submitted_at"` // RFC 3339
}

// SubmitChecklist 整单提交
// 手工分组没有可提交的清单实体，直接拒绝
// 未完成的清单返回结构化的 IncompleteChecklistFailure，不触发门户调用
func (s *SubmissionService) SubmitChecklist(ctx context.Context, checklistID uint, decision *domain.FollowUpDecision) (*model.SubmissionRecord, error) {
	if checklistID == model.ManualChecklistID {
		return nil, &domain.ValidationFailure{Field: "checklist", Reason: "manual questions cannot be submitted as a checklist"}
	}

	checklist, err := s.checklistRepo.GetBasic(checklistID)
	if err != nil {
		return nil, fmt.Errorf("获取清单失败: %w", err)
	}
	questions, err := s.questionRepo.GetByChecklist(checklistID)
	if err != nil {
		return nil, fmt.Errorf("获取清单问题失败: %w", err)
	}
	docs, err := s.docRepo.GetByVendor(checklist.VendorID)
	if err != nil {
		return nil, fmt.Errorf("获取证据文件失败: %w", err)
	}

	// 提交时基于当前数据全量重算完成度，不信任任何缓存的结论
	verdict := completion.Evaluate(questions, docs)
	if !verdict.IsComplete {
		unanswered, missingDocs := verdict.MissingCounts()
		return nil, &domain.IncompleteChecklistFailure{
			ChecklistID:         checklistID,
			UnansweredQuestions: unanswered,
			MissingDocuments:    missingDocs,
		}
	}

	items := make([]questionSnapshot, 0, len(questions))
	for _, q := range questions {
		items = append(items, questionSnapshot{
			Text:       q.Text,
			Answer:     q.Answer,
			Confidence: q.Confidence,
			Category:   q.Category,
			Source:     "checklist",
		})
	}
	snapshot := checklistSnapshot{
		ChecklistName: checklist.Name,
		Items:         items,
		SubmittedAt:   time.Now().UTC().Format(time.RFC3339),
	}
	content, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("序列化提交快照失败: %w", err)
	}

	record := &model.SubmissionRecord{
		Reference:   uuid.NewString(),
		ChecklistID: &checklistID,
		VendorID:    checklist.VendorID,
		Title:       checklist.Name,
		Content:     string(content),
	}
	if err := s.finalize(ctx, record, decision); err != nil {
		return nil, err
	}

	// 整单提交成功后标记清单已送审
	now := time.Now()
	checklist.SentToTrustPortal = true
	checklist.SubmittedAt = &now
	if err := s.checklistRepo.Save(checklist); err != nil {
		klog.Errorf("标记清单已送审失败: checklistID=%d, error=%v", checklistID, err)
	}

	return record, nil
}

// SubmitQuestion 单问题提交，只要有答案即可，不要求整单完成
func (s *SubmissionService) SubmitQuestion(ctx context.Context, questionID uint, decision *domain.FollowUpDecision) (*model.SubmissionRecord, error) {
	question, err := s.questionRepo.Get(questionID)
	if err != nil {
		return nil, fmt.Errorf("获取问题失败: %w", err)
	}
	if strings.TrimSpace(question.Answer) == "" {
		return nil, &domain.ValidationFailure{Field: "answer", Reason: "cannot submit a question without an answer"}
	}

	source := "manual"
	if question.ChecklistID != nil {
		source = "checklist"
	}
	snapshot := questionSnapshot{
		Text:       question.Text,
		Answer:     question.Answer,
		Confidence: question.Confidence,
		Category:   question.Category,
		Source:     source,
	}
	content, err := json.Marshal(struct {
		Question    questionSnapshot `json:"question"`
		SubmittedAt string           `json:"submitted_at"`
	}{snapshot, time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return nil, fmt.Errorf("序列化提交快照失败: %w", err)
	}

	record := &model.SubmissionRecord{
		Reference:  uuid.NewString(),
		QuestionID: &questionID,
		VendorID:   question.VendorID,
		Title:      truncateTitle(question.Text),
		Content:    string(content),
	}
	if err := s.finalize(ctx, record, decision); err != nil {
		return nil, err
	}
	return record, nil
}

// SubmitDocument 单文件提交，不做完成度校验
func (s *SubmissionService) SubmitDocument(ctx context.Context, documentID uint, decision *domain.FollowUpDecision) (*model.SubmissionRecord, error) {
	doc, err := s.docRepo.Get(documentID)
	if err != nil {
		return nil, fmt.Errorf("获取文件记录失败: %w", err)
	}

	content, err := json.Marshal(struct {
		Filename    string `json:"filename"`
		ContentType string `json:"content_type"`
		Size        int64  `json:"size"`
		StorageKey  string `json:"storage_key"`
		SubmittedAt string `json:"submitted_at"`
	}{doc.Filename, doc.ContentType, doc.Size, doc.StorageKey, time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return nil, fmt.Errorf("序列化提交快照失败: %w", err)
	}

	record := &model.SubmissionRecord{
		Reference:  uuid.NewString(),
		DocumentID: &documentID,
		VendorID:   doc.VendorID,
		Title:      doc.Filename,
		Content:    string(content),
	}
	if err := s.finalize(ctx, record, decision); err != nil {
		return nil, err
	}
	return record, nil
}

// finalize 走完提交阶段机：校验跟进决定、推送门户、落库记录
// 决定校验失败发生在任何网络调用之前
func (s *SubmissionService) finalize(ctx context.Context, record *model.SubmissionRecord, decision *domain.FollowUpDecision) error {
	phase := statemachine.SubmissionPhaseDraft
	if err := s.stateMachine.Transition(phase, statemachine.SubmissionPhaseAwaitingDecision, record.Reference); err != nil {
		return err
	}
	phase = statemachine.SubmissionPhaseAwaitingDecision

	if err := s.validateDecision(record, decision); err != nil {
		return err
	}
	record.IsFollowUp = decision.IsFollowUp
	record.FollowUpType = string(decision.Type)
	record.FollowUpReason = decision.Reason
	record.ParentSubmissionID = decision.ParentSubmissionID

	if err := s.stateMachine.Transition(phase, statemachine.SubmissionPhaseSubmitted, record.Reference); err != nil {
		return err
	}

	portalID, err := s.portal.CreateSubmission(ctx, record)
	if err != nil {
		return fmt.Errorf("推送评审门户失败: %w", err)
	}
	record.PortalID = portalID

	if err := s.submissionRepo.Create(record); err != nil {
		return fmt.Errorf("保存提交记录失败: %w", err)
	}

	klog.V(6).Infof("提交已完成: reference=%s, portalID=%s, followUp=%v",
		record.Reference, portalID, record.IsFollowUp)
	return nil
}

// validateDecision 跟进决定的完整性校验
// isFollowUp 与 parentSubmissionID 必须同真同假
func (s *SubmissionService) validateDecision(record *model.SubmissionRecord, decision *domain.FollowUpDecision) error {
	if decision == nil {
		return &domain.ValidationFailure{Field: "decision", Reason: "a follow-up decision is required before submitting"}
	}
	if decision.Type == "" {
		if decision.IsFollowUp {
			return &domain.ValidationFailure{Field: "decision.type", Reason: "follow-up submissions must carry a follow-up type"}
		}
		decision.Type = domain.FollowUpInitial
	}
	if !domain.ValidFollowUpType(decision.Type) {
		return &domain.ValidationFailure{Field: "decision.type", Reason: fmt.Sprintf("unknown follow-up type %q", decision.Type)}
	}

	if decision.IsFollowUp {
		if decision.ParentSubmissionID == nil {
			return &domain.ValidationFailure{Field: "decision.parent", Reason: "follow-up submissions must reference a parent submission"}
		}
		if decision.Type == domain.FollowUpInitial {
			return &domain.ValidationFailure{Field: "decision.type", Reason: "follow-up submissions cannot use type initial"}
		}
		parent, err := s.submissionRepo.Get(*decision.ParentSubmissionID)
		if err != nil {
			return &domain.ValidationFailure{Field: "decision.parent", Reason: fmt.Sprintf("parent submission %d not found", *decision.ParentSubmissionID)}
		}
		if parent.VendorID != record.VendorID {
			return &domain.ValidationFailure{Field: "decision.parent", Reason: "parent submission belongs to a different vendor"}
		}
		// 跟进链必须挂在同一提交对象上，不允许跨清单/问题/文件接链
		if !sameSubject(parent, record) {
			return &domain.ValidationFailure{Field: "decision.parent", Reason: "parent submission refers to a different subject"}
		}
		return nil
	}

	if decision.ParentSubmissionID != nil {
		return &domain.ValidationFailure{Field: "decision.parent", Reason: "initial submissions must not reference a parent submission"}
	}
	if decision.Type != domain.FollowUpInitial {
		return &domain.ValidationFailure{Field: "decision.type", Reason: "non-follow-up submissions must use type initial"}
	}
	return nil
}

// EvaluateChecklist 计算清单当前的可提交性结论
func (s *SubmissionService) EvaluateChecklist(checklistID uint) (*completion.Verdict, error) {
	checklist, err := s.checklistRepo.GetBasic(checklistID)
	if err != nil {
		return nil, fmt.Errorf("获取清单失败: %w", err)
	}
	questions, err := s.questionRepo.GetByChecklist(checklistID)
	if err != nil {
		return nil, fmt.Errorf("获取清单问题失败: %w", err)
	}
	docs, err := s.docRepo.GetByVendor(checklist.VendorID)
	if err != nil {
		return nil, fmt.Errorf("获取证据文件失败: %w", err)
	}
	return completion.Evaluate(questions, docs), nil
}

func (s *SubmissionService) Get(id uint) (*model.SubmissionRecord, error) {
	return s.submissionRepo.Get(id)
}

func (s *SubmissionService) ListByVendor(vendorID uint) ([]model.SubmissionRecord, error) {
	return s.submissionRepo.GetByVendor(vendorID)
}

// Lineage 返回一条提交记录及其全部跟进链
func (s *SubmissionService) Lineage(rootID uint) ([]model.SubmissionRecord, error) {
	return s.submissionRepo.GetLineage(rootID)
}

func sameSubject(a, b *model.SubmissionRecord) bool {
	return eqUintPtr(a.ChecklistID, b.ChecklistID) &&
		eqUintPtr(a.QuestionID, b.QuestionID) &&
		eqUintPtr(a.DocumentID, b.DocumentID)
}

func eqUintPtr(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func truncateTitle(text string) string {
	const maxLen = 255
	text = strings.TrimSpace(text)
	if len(text) <= maxLen {
		return text
	}
	// 按 rune 边界截断，避免切开多字节字符
	cut := maxLen - 3
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut] + "..."
}
