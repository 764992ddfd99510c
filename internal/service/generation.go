package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"k8s.io/klog/v2"

	"github.com/complyon/backend/config"
	"github.com/complyon/backend/internal/domain"
	"github.com/complyon/backend/internal/eventbus"
	"github.com/complyon/backend/internal/model"
	"github.com/complyon/backend/internal/pkg/aiclient"
	"github.com/complyon/backend/internal/repository"
	"github.com/complyon/backend/internal/service/statemachine"
)

// ErrGenerationInFlight 同一问题已有生成调用在途
var ErrGenerationInFlight = errors.New("generation already in flight for question")

// GenerationService 负责 AI 答案生成：单问同步生成与批量轮询
//
// 并发约束：同一问题同一时刻只允许一个有效的生成调用，
// 派发前置为 in-progress，在途期间拒绝第二次派发；
// Regenerate 是唯一的超越通道，通过序号递增让旧调用的迟到响应作废
type GenerationService struct {
	cfg           *config.Config
	questionRepo  repository.QuestionRepository
	checklistRepo repository.ChecklistRepository
	docRepo       repository.DocumentRepository
	ai            aiclient.AnswerService
	stateMachine  *statemachine.QuestionStateMachine
	questionBus   *eventbus.QuestionEventBus

	mu       sync.Mutex
	seq      map[uint]uint64 // questionID -> 最新调用序号，last-write-wins
	inFlight map[uint]bool   // 批量任务占用的问题，阻止并发单问派发
}

func NewGenerationService(
	cfg *config.Config,
	questionRepo repository.QuestionRepository,
	checklistRepo repository.ChecklistRepository,
	docRepo repository.DocumentRepository,
	ai aiclient.AnswerService,
	questionBus *eventbus.QuestionEventBus,
) *GenerationService {
	return &GenerationService{
		cfg:           cfg,
		questionRepo:  questionRepo,
		checklistRepo: checklistRepo,
		docRepo:       docRepo,
		ai:            ai,
		stateMachine:  statemachine.NewQuestionStateMachine(),
		questionBus:   questionBus,
		seq:           make(map[uint]uint64),
		inFlight:      make(map[uint]bool),
	}
}

// GenerateAnswer 对单个问题发起同步生成
// 问题在途（in-progress 或被批量任务占用）时拒绝派发
func (s *GenerationService) GenerateAnswer(ctx context.Context, questionID uint) (*model.Question, error) {
	question, err := s.questionRepo.Get(questionID)
	if err != nil {
		return nil, fmt.Errorf("获取问题失败: %w", err)
	}

	status := statemachine.QuestionStatus(question.Status)
	if !statemachine.IsDispatchable(status) {
		return nil, fmt.Errorf("%w: questionID=%d", ErrGenerationInFlight, questionID)
	}

	s.mu.Lock()
	if s.inFlight[questionID] {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: questionID=%d (batch)", ErrGenerationInFlight, questionID)
	}
	s.mu.Unlock()

	return s.dispatch(ctx, question)
}

// Regenerate 重新生成答案
// 与 GenerateAnswer 不同，允许在 in-progress 时超越在途调用：
// 序号递增后旧调用的响应到达时被视为过期并丢弃，最终落库的是新调用的答案
func (s *GenerationService) Regenerate(ctx context.Context, questionID uint) (*model.Question, error) {
	question, err := s.questionRepo.Get(questionID)
	if err != nil {
		return nil, fmt.Errorf("获取问题失败: %w", err)
	}
	return s.dispatch(ctx, question)
}

// dispatch 标记 in-progress、调用 AI、按序号仲裁写回
func (s *GenerationService) dispatch(ctx context.Context, question *model.Question) (*model.Question, error) {
	if err := s.requireExtracted(question); err != nil {
		return nil, err
	}

	status := statemachine.QuestionStatus(question.Status)
	if status != statemachine.QuestionStatusInProgress {
		if err := s.stateMachine.Transition(status, statemachine.QuestionStatusInProgress, question.ID); err != nil {
			return nil, err
		}
		question.Status = string(statemachine.QuestionStatusInProgress)
		question.IsDone = false
		question.UpdatedAt = time.Now()
		if err := s.questionRepo.Save(question); err != nil {
			return nil, fmt.Errorf("标记生成中失败: %w", err)
		}
	}

	seq := s.nextSeq(question.ID)
	klog.V(6).Infof("开始生成答案: questionID=%d, seq=%d", question.ID, seq)

	genCtx, err := s.buildContext(question)
	if err != nil {
		klog.Warningf("构建生成上下文失败: questionID=%d, error=%v", question.ID, err)
	}

	result, genErr := s.ai.Generate(ctx, aiclient.GenerationRequest{
		QuestionID: question.ID,
		Question:   question.Text,
		Context:    genCtx,
	})

	// 响应到达时校验序号：期间若有新调用超越，本次结果作废
	if !s.isLatest(question.ID, seq) {
		klog.V(6).Infof("丢弃过期生成响应: questionID=%d, seq=%d", question.ID, seq)
		return s.questionRepo.Get(question.ID)
	}

	if genErr != nil {
		s.markNeedsSupport(question.ID, genErr)
		return nil, &domain.GenerationFailure{QuestionID: question.ID, Err: genErr}
	}

	return s.applyResult(ctx, question.ID, result.Answer, &result.Confidence)
}

// BatchScope 批量生成范围：指定清单或整个厂商
type BatchScope struct {
	VendorID    uint
	ChecklistID *uint
}

// BatchProgress 单次轮询后的进度快照
type BatchProgress struct {
	Completed       int    `json:"completed"`
	Total           int    `json:"total"`
	NextPendingText string `json:"next_pending_text,omitempty"`
}

// BatchResult 批量生成的最终结果
// TimedOut 为软超时：轮询预算用尽，未完成的问题保持 pending，后台任务可能仍在推进
type BatchResult struct {
	JobID        string `json:"job_id"`
	Completed    int    `json:"completed"`
	Total        int    `json:"total"`
	StillPending []uint `json:"still_pending,omitempty"`
	TimedOut     bool   `json:"timed_out"`
}

// GenerateBatch 将范围内全部 pending 问题作为一个任务提交，有界轮询直到完成或预算用尽
// 轮询次数与间隔来自配置，预算用尽不是错误：剩余问题保持 pending
func (s *GenerationService) GenerateBatch(ctx context.Context, scope BatchScope, onProgress func(BatchProgress)) (*BatchResult, error) {
	questions, err := s.pendingInScope(scope)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		klog.V(6).Infof("批量生成无待处理问题: vendorID=%d", scope.VendorID)
		return &BatchResult{}, nil
	}

	batchQuestions := make([]aiclient.BatchQuestion, 0, len(questions))
	ids := make([]uint, 0, len(questions))
	for _, q := range questions {
		batchQuestions = append(batchQuestions, aiclient.BatchQuestion{QuestionID: q.ID, Text: q.Text})
		ids = append(ids, q.ID)
	}

	// 占位，阻止批量期间对同一问题的单问派发
	s.setInFlight(ids, true)
	defer s.setInFlight(ids, false)

	jobID, err := s.ai.GenerateBatch(ctx, aiclient.BatchRequest{Questions: batchQuestions})
	if err != nil {
		return nil, fmt.Errorf("提交批量任务失败: %w", err)
	}
	klog.V(6).Infof("批量任务已提交: jobID=%s, questions=%d", jobID, len(ids))

	result := &BatchResult{JobID: jobID, Total: len(ids)}
	interval := s.cfg.Generation.PollInterval
	maxAttempts := s.cfg.Generation.MaxPollAttempts

	applied := make(map[uint]bool)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(interval):
		}

		items, err := s.ai.PollBatch(ctx, jobID)
		if err != nil {
			// 单次轮询失败不终止循环，下一轮重试
			klog.Warningf("轮询批量任务失败: jobID=%s, attempt=%d, error=%v", jobID, attempt, err)
			continue
		}

		for _, item := range items {
			if applied[item.QuestionID] {
				continue
			}
			switch item.Status {
			case "completed":
				if _, err := s.applyBatchAnswer(ctx, item); err != nil {
					klog.Errorf("写回批量答案失败: questionID=%d, error=%v", item.QuestionID, err)
					continue
				}
				applied[item.QuestionID] = true
			case "failed":
				s.markBatchFailed(ctx, item.QuestionID)
				applied[item.QuestionID] = true
			}
		}

		// 每轮基于问题集合全量重算进度，不依赖上一轮的计数
		progress := s.snapshotProgress(scope, ids)
		result.Completed = progress.Completed
		if onProgress != nil {
			onProgress(progress)
		}

		if progress.Completed >= len(ids) || len(s.stillPending(ids)) == 0 {
			klog.V(6).Infof("批量任务完成: jobID=%s, attempts=%d", jobID, attempt)
			result.StillPending = nil
			return result, nil
		}
	}

	result.StillPending = s.stillPending(ids)
	result.TimedOut = true
	klog.V(6).Infof("批量任务轮询预算用尽: jobID=%s, stillPending=%d", jobID, len(result.StillPending))
	return result, nil
}

// pendingInScope 收集范围内的 pending 问题，清单范围要求抽取已完成
func (s *GenerationService) pendingInScope(scope BatchScope) ([]model.Question, error) {
	var questions []model.Question
	var err error
	if scope.ChecklistID != nil {
		checklist, cerr := s.checklistRepo.GetBasic(*scope.ChecklistID)
		if cerr != nil {
			return nil, fmt.Errorf("获取清单失败: %w", cerr)
		}
		if !statemachine.IsExtracted(statemachine.ExtractionStatus(checklist.ExtractionStatus)) {
			return nil, &domain.ValidationFailure{Field: "checklist", Reason: "checklist extraction is not completed"}
		}
		questions, err = s.questionRepo.GetByChecklist(*scope.ChecklistID)
		if err != nil {
			return nil, fmt.Errorf("获取问题失败: %w", err)
		}
		var pending []model.Question
		for _, q := range questions {
			if statemachine.QuestionStatus(q.Status) == statemachine.QuestionStatusPending {
				pending = append(pending, q)
			}
		}
		return pending, nil
	}

	questions, err = s.questionRepo.GetByStatus(scope.VendorID, string(statemachine.QuestionStatusPending))
	if err != nil {
		return nil, fmt.Errorf("获取问题失败: %w", err)
	}
	// 厂商范围同样只收录抽取已完成的清单，手工问题不受此限
	extracted := make(map[uint]bool)
	var pending []model.Question
	for _, q := range questions {
		if q.ChecklistID == nil {
			pending = append(pending, q)
			continue
		}
		ok, seen := extracted[*q.ChecklistID]
		if !seen {
			checklist, cerr := s.checklistRepo.GetBasic(*q.ChecklistID)
			if cerr != nil {
				return nil, fmt.Errorf("获取清单失败: %w", cerr)
			}
			ok = statemachine.IsExtracted(statemachine.ExtractionStatus(checklist.ExtractionStatus))
			extracted[*q.ChecklistID] = ok
		}
		if ok {
			pending = append(pending, q)
		}
	}
	return pending, nil
}

// applyBatchAnswer 将批量结果写回单个问题，途经完整的状态迁移
func (s *GenerationService) applyBatchAnswer(ctx context.Context, item aiclient.BatchItemStatus) (*model.Question, error) {
	question, err := s.questionRepo.Get(item.QuestionID)
	if err != nil {
		return nil, err
	}
	status := statemachine.QuestionStatus(question.Status)
	if status == statemachine.QuestionStatusPending {
		if err := s.stateMachine.Transition(status, statemachine.QuestionStatusInProgress, question.ID); err != nil {
			return nil, err
		}
		question.Status = string(statemachine.QuestionStatusInProgress)
		question.IsDone = false
		question.UpdatedAt = time.Now()
		if err := s.questionRepo.Save(question); err != nil {
			return nil, fmt.Errorf("标记生成中失败: %w", err)
		}
	}
	return s.applyResult(ctx, item.QuestionID, item.Answer, item.Confidence)
}

func (s *GenerationService) markBatchFailed(ctx context.Context, questionID uint) {
	question, err := s.questionRepo.Get(questionID)
	if err != nil {
		klog.Errorf("获取问题失败: questionID=%d, error=%v", questionID, err)
		return
	}
	status := statemachine.QuestionStatus(question.Status)
	if err := s.stateMachine.Transition(status, statemachine.QuestionStatusNeedsSupport, questionID); err != nil {
		return
	}
	question.Status = string(statemachine.QuestionStatusNeedsSupport)
	question.UpdatedAt = time.Now()
	if err := s.questionRepo.Save(question); err != nil {
		klog.Errorf("标记 needs-support 失败: questionID=%d, error=%v", questionID, err)
	}
}

// snapshotProgress 全量重读问题集合计算进度
func (s *GenerationService) snapshotProgress(scope BatchScope, ids []uint) BatchProgress {
	progress := BatchProgress{Total: len(ids)}
	idSet := make(map[uint]bool, len(ids))
	for _, id := range ids {
		idSet[id] = true
	}

	questions, err := s.questionRepo.GetByVendor(scope.VendorID)
	if err != nil {
		klog.Warningf("读取进度失败: vendorID=%d, error=%v", scope.VendorID, err)
		return progress
	}
	for _, q := range questions {
		if !idSet[q.ID] {
			continue
		}
		if statemachine.IsAnswered(statemachine.QuestionStatus(q.Status)) {
			progress.Completed++
		} else if progress.NextPendingText == "" &&
			statemachine.QuestionStatus(q.Status) == statemachine.QuestionStatusPending {
			progress.NextPendingText = q.Text
		}
	}
	return progress
}

// stillPending 返回集合内仍为 pending 的问题 ID
func (s *GenerationService) stillPending(ids []uint) []uint {
	var pending []uint
	for _, id := range ids {
		q, err := s.questionRepo.Get(id)
		if err != nil {
			continue
		}
		if statemachine.QuestionStatus(q.Status) == statemachine.QuestionStatusPending {
			pending = append(pending, id)
		}
	}
	return pending
}

// applyResult 生成成功的统一写回路径：in-progress -> completed
func (s *GenerationService) applyResult(ctx context.Context, questionID uint, answer string, confidence *float64) (*model.Question, error) {
	if strings.TrimSpace(answer) == "" {
		err := fmt.Errorf("empty answer from generation")
		s.markNeedsSupport(questionID, err)
		return nil, &domain.GenerationFailure{QuestionID: questionID, Err: err}
	}

	// 重读落库前的最新记录，避免覆盖期间的人工修改
	question, err := s.questionRepo.Get(questionID)
	if err != nil {
		return nil, fmt.Errorf("获取问题失败: %w", err)
	}
	status := statemachine.QuestionStatus(question.Status)
	if err := s.stateMachine.Transition(status, statemachine.QuestionStatusCompleted, questionID); err != nil {
		return nil, err
	}

	question.Answer = strings.TrimSpace(answer)
	question.Confidence = confidence
	question.Status = string(statemachine.QuestionStatusCompleted)
	question.IsDone = false
	question.UpdatedAt = time.Now()
	if err := s.questionRepo.Save(question); err != nil {
		return nil, fmt.Errorf("保存生成答案失败: %w", err)
	}

	if s.questionBus != nil {
		if err := s.questionBus.Publish(ctx, eventbus.QuestionEventAnswered, eventbus.QuestionEvent{
			Type:        eventbus.QuestionEventAnswered,
			QuestionID:  question.ID,
			ChecklistID: question.ChecklistID,
			VendorID:    question.VendorID,
		}); err != nil {
			klog.Errorf("发布问题事件失败: questionID=%d, error=%v", question.ID, err)
		}
	}

	klog.V(6).Infof("生成答案已写回: questionID=%d, confidence=%v", questionID, confidence)
	return question, nil
}

// markNeedsSupport 生成失败时转入 needs-support，等待人工介入
func (s *GenerationService) markNeedsSupport(questionID uint, cause error) {
	question, err := s.questionRepo.Get(questionID)
	if err != nil {
		klog.Errorf("获取问题失败: questionID=%d, error=%v", questionID, err)
		return
	}
	status := statemachine.QuestionStatus(question.Status)
	if err := s.stateMachine.Transition(status, statemachine.QuestionStatusNeedsSupport, questionID); err != nil {
		klog.Errorf("转入 needs-support 失败: questionID=%d, error=%v", questionID, err)
		return
	}
	question.Status = string(statemachine.QuestionStatusNeedsSupport)
	question.UpdatedAt = time.Now()
	if err := s.questionRepo.Save(question); err != nil {
		klog.Errorf("保存 needs-support 状态失败: questionID=%d, error=%v", questionID, err)
		return
	}
	klog.V(6).Infof("问题转入 needs-support: questionID=%d, cause=%v", questionID, cause)
}

// buildContext 组装请求级生成上下文：清单名称 + 厂商证据文件描述
// 只随请求传递，不持久化
func (s *GenerationService) buildContext(question *model.Question) (string, error) {
	var parts []string
	if question.ChecklistID != nil {
		checklist, err := s.checklistRepo.GetBasic(*question.ChecklistID)
		if err != nil {
			return "", err
		}
		parts = append(parts, fmt.Sprintf("Questionnaire: %s", checklist.Name))
	}
	if question.Category != "" {
		parts = append(parts, fmt.Sprintf("Category: %s", question.Category))
	}
	docs, err := s.docRepo.GetByVendor(question.VendorID)
	if err != nil {
		return strings.Join(parts, "\n"), err
	}
	if len(docs) > 0 {
		var names []string
		for _, d := range docs {
			names = append(names, d.Filename)
		}
		parts = append(parts, fmt.Sprintf("Available evidence documents: %s", strings.Join(names, ", ")))
	}
	return strings.Join(parts, "\n"), nil
}

// requireExtracted 清单问题必须等抽取完成才能生成
func (s *GenerationService) requireExtracted(question *model.Question) error {
	if question.ChecklistID == nil {
		return nil
	}
	checklist, err := s.checklistRepo.GetBasic(*question.ChecklistID)
	if err != nil {
		return fmt.Errorf("获取清单失败: %w", err)
	}
	if !statemachine.IsExtracted(statemachine.ExtractionStatus(checklist.ExtractionStatus)) {
		return &domain.ValidationFailure{Field: "checklist", Reason: "checklist extraction is not completed"}
	}
	return nil
}

func (s *GenerationService) nextSeq(questionID uint) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq[questionID]++
	return s.seq[questionID]
}

func (s *GenerationService) isLatest(questionID uint, seq uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq[questionID] == seq
}

func (s *GenerationService) setInFlight(ids []uint, v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if v {
			s.inFlight[id] = true
		} else {
			delete(s.inFlight, id)
		}
	}
}
