package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/complyon/backend/config"
	"github.com/complyon/backend/internal/domain"
	"github.com/complyon/backend/internal/model"
	"github.com/complyon/backend/internal/pkg/extractor"
	"github.com/complyon/backend/internal/pkg/storage"
	"github.com/complyon/backend/internal/repository"
	"github.com/complyon/backend/internal/service/statemachine"
)

// ChecklistService 负责清单实体的全生命周期：上传抽取、手工加题、级联删除
type ChecklistService struct {
	cfg                *config.Config
	checklistRepo      repository.ChecklistRepository
	questionRepo       repository.QuestionRepository
	docRepo            repository.DocumentRepository
	extractor          extractor.Service
	store              storage.Storage
	checklistStateMach *statemachine.ChecklistStateMachine
}

func NewChecklistService(
	cfg *config.Config,
	checklistRepo repository.ChecklistRepository,
	questionRepo repository.QuestionRepository,
	docRepo repository.DocumentRepository,
	ext extractor.Service,
	store storage.Storage,
) *ChecklistService {
	return &ChecklistService{
		cfg:                cfg,
		checklistRepo:      checklistRepo,
		questionRepo:       questionRepo,
		docRepo:            docRepo,
		extractor:          ext,
		store:              store,
		checklistStateMach: statemachine.NewChecklistStateMachine(),
	}
}

// CreateFromUpload 接收上传文件并驱动抽取流程
// 状态流转: uploading -> extracting -> completed/error
// 抽取失败不影响系统其他部分：清单保留在 error 状态供重试或排查
func (s *ChecklistService) CreateFromUpload(ctx context.Context, vendorID uint, name, filename string, file io.Reader) (*model.Checklist, error) {
	if vendorID == 0 {
		return nil, &domain.ValidationFailure{Field: "vendor", Reason: "vendor is required"}
	}
	if strings.TrimSpace(filename) == "" {
		return nil, &domain.ValidationFailure{Field: "filename", Reason: "filename is required"}
	}
	if strings.TrimSpace(name) == "" {
		name = filename
	}

	checklist := &model.Checklist{
		VendorID:         vendorID,
		Name:             name,
		SourceFilename:   filename,
		ExtractionStatus: string(statemachine.ExtractionStatusUploading),
	}
	if err := s.checklistRepo.Create(checklist); err != nil {
		return nil, fmt.Errorf("创建清单失败: %w", err)
	}
	klog.V(6).Infof("清单已创建: checklistID=%d, filename=%s", checklist.ID, filename)

	// 状态迁移: uploading -> extracting
	if err := s.transition(checklist, statemachine.ExtractionStatusExtracting, ""); err != nil {
		return nil, err
	}

	extracted, err := s.extractor.Extract(ctx, filename, file)
	if err != nil {
		// 抽取失败，清单进入 error 态，保留记录供重试
		_ = s.transition(checklist, statemachine.ExtractionStatusError, err.Error())
		return checklist, &domain.ExtractionFailure{ChecklistID: checklist.ID, Reason: "extractor call failed", Err: err}
	}

	// 零问题抽取按失败处理，避免产生一份永远无法提交的空清单
	if len(extracted) == 0 {
		_ = s.transition(checklist, statemachine.ExtractionStatusError, "no questions extracted")
		return checklist, &domain.ExtractionFailure{ChecklistID: checklist.ID, Reason: "no questions extracted"}
	}

	questions := make([]model.Question, 0, len(extracted))
	for i, eq := range extracted {
		checklistID := checklist.ID
		questions = append(questions, model.Question{
			ChecklistID:         &checklistID,
			VendorID:            vendorID,
			Text:                eq.Text,
			Position:            i + 1,
			Status:              string(statemachine.QuestionStatusPending),
			RequiresDocument:    eq.RequiresDocument,
			DocumentDescription: eq.DocumentDescription,
			Category:            eq.Category,
		})
	}
	if err := s.questionRepo.CreateBatch(questions); err != nil {
		_ = s.transition(checklist, statemachine.ExtractionStatusError, err.Error())
		return checklist, fmt.Errorf("保存抽取问题失败: %w", err)
	}

	if err := s.transition(checklist, statemachine.ExtractionStatusCompleted, ""); err != nil {
		return checklist, err
	}

	klog.V(6).Infof("清单抽取完成: checklistID=%d, questions=%d", checklist.ID, len(questions))
	checklist.Questions = questions
	return checklist, nil
}

// RetryExtraction 对 error 状态的清单重新发起抽取
func (s *ChecklistService) RetryExtraction(ctx context.Context, checklistID uint, file io.Reader) (*model.Checklist, error) {
	checklist, err := s.checklistRepo.GetBasic(checklistID)
	if err != nil {
		return nil, fmt.Errorf("获取清单失败: %w", err)
	}

	if err := s.transition(checklist, statemachine.ExtractionStatusExtracting, ""); err != nil {
		return nil, err
	}

	extracted, err := s.extractor.Extract(ctx, checklist.SourceFilename, file)
	if err != nil {
		_ = s.transition(checklist, statemachine.ExtractionStatusError, err.Error())
		return checklist, &domain.ExtractionFailure{ChecklistID: checklist.ID, Reason: "extractor call failed", Err: err}
	}
	if len(extracted) == 0 {
		_ = s.transition(checklist, statemachine.ExtractionStatusError, "no questions extracted")
		return checklist, &domain.ExtractionFailure{ChecklistID: checklist.ID, Reason: "no questions extracted"}
	}

	questions := make([]model.Question, 0, len(extracted))
	for i, eq := range extracted {
		id := checklist.ID
		questions = append(questions, model.Question{
			ChecklistID:         &id,
			VendorID:            checklist.VendorID,
			Text:                eq.Text,
			Position:            i + 1,
			Status:              string(statemachine.QuestionStatusPending),
			RequiresDocument:    eq.RequiresDocument,
			DocumentDescription: eq.DocumentDescription,
			Category:            eq.Category,
		})
	}
	if err := s.questionRepo.CreateBatch(questions); err != nil {
		_ = s.transition(checklist, statemachine.ExtractionStatusError, err.Error())
		return checklist, fmt.Errorf("保存抽取问题失败: %w", err)
	}
	if err := s.transition(checklist, statemachine.ExtractionStatusCompleted, ""); err != nil {
		return checklist, err
	}
	return checklist, nil
}

// AddManualQuestion 手工新增问题
// checklistID 为空时问题进入手工分组，不属于任何清单
func (s *ChecklistService) AddManualQuestion(vendorID uint, checklistID *uint, text string, requiresDocument bool, docDescription string) (*model.Question, error) {
	if vendorID == 0 {
		return nil, &domain.ValidationFailure{Field: "vendor", Reason: "vendor is required"}
	}
	if strings.TrimSpace(text) == "" {
		return nil, &domain.ValidationFailure{Field: "text", Reason: "question text is required"}
	}

	position := 0
	if checklistID != nil {
		existing, err := s.questionRepo.GetByChecklist(*checklistID)
		if err != nil {
			return nil, fmt.Errorf("获取清单问题失败: %w", err)
		}
		for _, q := range existing {
			if q.Position > position {
				position = q.Position
			}
		}
		position++
	}

	question := &model.Question{
		ChecklistID:         checklistID,
		VendorID:            vendorID,
		Text:                strings.TrimSpace(text),
		Position:            position,
		Status:              string(statemachine.QuestionStatusPending),
		RequiresDocument:    requiresDocument,
		DocumentDescription: docDescription,
	}
	if err := s.questionRepo.Create(question); err != nil {
		return nil, fmt.Errorf("创建问题失败: %w", err)
	}

	klog.V(6).Infof("手工问题已创建: questionID=%d, checklist=%v", question.ID, checklistID)
	return question, nil
}

func (s *ChecklistService) Get(id uint) (*model.Checklist, error) {
	return s.checklistRepo.Get(id)
}

func (s *ChecklistService) List(vendorID uint) ([]model.Checklist, error) {
	return s.checklistRepo.List(vendorID)
}

// Delete 删除清单：先清理对象存储里的证据文件，再单事务级联删除记录
// 事务保证不会出现可见的孤儿问题
func (s *ChecklistService) Delete(ctx context.Context, checklistID uint) error {
	questions, err := s.questionRepo.GetByChecklist(checklistID)
	if err != nil {
		return fmt.Errorf("获取清单问题失败: %w", err)
	}

	for _, q := range questions {
		docs, err := s.docRepo.GetByQuestion(q.ID)
		if err != nil {
			return fmt.Errorf("获取证据文件失败: %w", err)
		}
		for _, d := range docs {
			if s.store == nil {
				continue
			}
			// 对象清理失败不阻塞删除，记录日志即可
			if err := s.store.Delete(ctx, d.StorageKey); err != nil {
				klog.Warningf("删除存储对象失败: key=%s, error=%v", d.StorageKey, err)
			}
		}
	}

	if err := s.checklistRepo.DeleteCascade(checklistID); err != nil {
		return fmt.Errorf("级联删除清单失败: %w", err)
	}

	klog.V(6).Infof("清单已删除: checklistID=%d, questions=%d", checklistID, len(questions))
	return nil
}

// QuestionGroup 按清单分组后的问题投影，手工问题归入合成分组
type QuestionGroup struct {
	ChecklistID   uint             `json:"checklist_id"` // ManualChecklistID 表示手工分组
	ChecklistName string           `json:"checklist_name"`
	Questions     []model.Question `json:"questions"`
}

// GroupedByChecklist 按需从问题集合计算分组投影
// 不维护单独的分组缓存，避免改写后读到漂移数据
func (s *ChecklistService) GroupedByChecklist(vendorID uint) ([]QuestionGroup, error) {
	checklists, err := s.checklistRepo.List(vendorID)
	if err != nil {
		return nil, fmt.Errorf("获取清单失败: %w", err)
	}
	questions, err := s.questionRepo.GetByVendor(vendorID)
	if err != nil {
		return nil, fmt.Errorf("获取问题失败: %w", err)
	}

	byChecklist := make(map[uint][]model.Question)
	var manual []model.Question
	for _, q := range questions {
		if q.ChecklistID == nil {
			manual = append(manual, q)
			continue
		}
		byChecklist[*q.ChecklistID] = append(byChecklist[*q.ChecklistID], q)
	}

	groups := make([]QuestionGroup, 0, len(checklists)+1)
	for _, c := range checklists {
		groups = append(groups, QuestionGroup{
			ChecklistID:   c.ID,
			ChecklistName: c.Name,
			Questions:     byChecklist[c.ID],
		})
	}
	if len(manual) > 0 {
		groups = append(groups, QuestionGroup{
			ChecklistID:   model.ManualChecklistID,
			ChecklistName: "Manual Questions",
			Questions:     manual,
		})
	}
	return groups, nil
}

// transition 执行清单状态迁移并落库
func (s *ChecklistService) transition(checklist *model.Checklist, to statemachine.ExtractionStatus, errMsg string) error {
	from := statemachine.ExtractionStatus(checklist.ExtractionStatus)
	if err := s.checklistStateMach.Transition(from, to, checklist.ID); err != nil {
		return fmt.Errorf("清单状态迁移失败: %w", err)
	}
	checklist.ExtractionStatus = string(to)
	checklist.ErrorMsg = errMsg
	checklist.UpdatedAt = time.Now()
	if err := s.checklistRepo.Save(checklist); err != nil {
		return fmt.Errorf("更新清单状态失败: %w", err)
	}
	return nil
}
