package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"k8s.io/klog/v2"

	"github.com/complyon/backend/internal/domain"
	"github.com/complyon/backend/internal/eventbus"
	"github.com/complyon/backend/internal/model"
	"github.com/complyon/backend/internal/repository"
	"github.com/complyon/backend/internal/service/statemachine"
)

// QuestionService 负责问题生命周期里的人工操作：编辑、保存、确认
type QuestionService struct {
	questionRepo repository.QuestionRepository
	stateMachine *statemachine.QuestionStateMachine
	questionBus  *eventbus.QuestionEventBus
}

func NewQuestionService(questionRepo repository.QuestionRepository, questionBus *eventbus.QuestionEventBus) *QuestionService {
	return &QuestionService{
		questionRepo: questionRepo,
		stateMachine: statemachine.NewQuestionStateMachine(),
		questionBus:  questionBus,
	}
}

func (s *QuestionService) Get(id uint) (*model.Question, error) {
	return s.questionRepo.Get(id)
}

func (s *QuestionService) GetByChecklist(checklistID uint) ([]model.Question, error) {
	return s.questionRepo.GetByChecklist(checklistID)
}

// ToggleEdit 进入或退出编辑模式
// completed/done -> in-progress 进入编辑并清除确认标记
// in-progress -> completed 再次调用视为放弃编辑，答案不变
func (s *QuestionService) ToggleEdit(ctx context.Context, questionID uint) (*model.Question, error) {
	question, err := s.questionRepo.Get(questionID)
	if err != nil {
		return nil, fmt.Errorf("获取问题失败: %w", err)
	}

	from := statemachine.QuestionStatus(question.Status)
	switch from {
	case statemachine.QuestionStatusCompleted, statemachine.QuestionStatusDone:
		if err := s.stateMachine.Transition(from, statemachine.QuestionStatusInProgress, questionID); err != nil {
			return nil, err
		}
		question.Status = string(statemachine.QuestionStatusInProgress)
		// 编辑总是撤销先前的确认
		question.IsDone = false
	case statemachine.QuestionStatusInProgress:
		// 重入即退出，不保存任何修改
		// 答案为空说明 in-progress 来自生成在途而非编辑态，没有可退回的已完成答案
		if strings.TrimSpace(question.Answer) == "" {
			return nil, &domain.ValidationFailure{Field: "answer", Reason: "question has no answer to return to"}
		}
		if err := s.stateMachine.Transition(from, statemachine.QuestionStatusCompleted, questionID); err != nil {
			return nil, err
		}
		question.Status = string(statemachine.QuestionStatusCompleted)
	default:
		return nil, &domain.ValidationFailure{Field: "status", Reason: fmt.Sprintf("question in status %s is not editable", from)}
	}

	question.UpdatedAt = time.Now()
	if err := s.questionRepo.Save(question); err != nil {
		return nil, fmt.Errorf("保存问题失败: %w", err)
	}

	klog.V(6).Infof("问题编辑状态切换: questionID=%d, %s -> %s", questionID, from, question.Status)
	return question, nil
}

// SaveAnswer 保存人工编辑的答案，编辑态直接进入 done
func (s *QuestionService) SaveAnswer(ctx context.Context, questionID uint, answer string) (*model.Question, error) {
	if strings.TrimSpace(answer) == "" {
		return nil, &domain.ValidationFailure{Field: "answer", Reason: "answer must not be empty"}
	}

	question, err := s.questionRepo.Get(questionID)
	if err != nil {
		return nil, fmt.Errorf("获取问题失败: %w", err)
	}

	from := statemachine.QuestionStatus(question.Status)
	if from != statemachine.QuestionStatusInProgress {
		return nil, &domain.ValidationFailure{Field: "status", Reason: fmt.Sprintf("question in status %s cannot save answer", from)}
	}
	if err := s.stateMachine.Transition(from, statemachine.QuestionStatusDone, questionID); err != nil {
		return nil, err
	}

	question.Answer = strings.TrimSpace(answer)
	question.Status = string(statemachine.QuestionStatusDone)
	question.IsDone = true
	// 人工答案不带模型置信度
	question.Confidence = nil
	question.UpdatedAt = time.Now()
	if err := s.questionRepo.Save(question); err != nil {
		return nil, fmt.Errorf("保存答案失败: %w", err)
	}

	s.publish(ctx, eventbus.QuestionEventConfirmed, question)
	klog.V(6).Infof("人工答案已保存: questionID=%d", questionID)
	return question, nil
}

// MarkDone 人工确认生成答案，completed -> done
// 没有答案的问题不允许确认
func (s *QuestionService) MarkDone(ctx context.Context, questionID uint) (*model.Question, error) {
	question, err := s.questionRepo.Get(questionID)
	if err != nil {
		return nil, fmt.Errorf("获取问题失败: %w", err)
	}

	if strings.TrimSpace(question.Answer) == "" {
		return nil, &domain.ValidationFailure{Field: "answer", Reason: "cannot mark a question done without an answer"}
	}

	from := statemachine.QuestionStatus(question.Status)
	if err := s.stateMachine.Transition(from, statemachine.QuestionStatusDone, questionID); err != nil {
		return nil, err
	}

	question.Status = string(statemachine.QuestionStatusDone)
	question.IsDone = true
	question.UpdatedAt = time.Now()
	if err := s.questionRepo.Save(question); err != nil {
		return nil, fmt.Errorf("保存问题失败: %w", err)
	}

	s.publish(ctx, eventbus.QuestionEventConfirmed, question)
	klog.V(6).Infof("问题已确认: questionID=%d", questionID)
	return question, nil
}

func (s *QuestionService) publish(ctx context.Context, eventType eventbus.QuestionEventType, question *model.Question) {
	if s.questionBus == nil {
		return
	}
	if err := s.questionBus.Publish(ctx, eventType, eventbus.QuestionEvent{
		Type:        eventType,
		QuestionID:  question.ID,
		ChecklistID: question.ChecklistID,
		VendorID:    question.VendorID,
	}); err != nil {
		klog.Errorf("发布问题事件失败: questionID=%d, type=%s, error=%v", question.ID, eventType, err)
	}
}
