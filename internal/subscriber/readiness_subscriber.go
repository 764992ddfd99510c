package subscriber

import (
	"context"

	"k8s.io/klog/v2"

	"github.com/complyon/backend/internal/eventbus"
	"github.com/complyon/backend/internal/repository"
	"github.com/complyon/backend/internal/service/completion"
)

// ReadinessSubscriber 监听问题与证据事件，重算清单完成度
// 事件发生后基于当前数据全量重算，不缓存上一次的结论
type ReadinessSubscriber struct {
	checklistRepo repository.ChecklistRepository
	questionRepo  repository.QuestionRepository
	docRepo       repository.DocumentRepository
}

func NewReadinessSubscriber(
	checklistRepo repository.ChecklistRepository,
	questionRepo repository.QuestionRepository,
	docRepo repository.DocumentRepository,
) *ReadinessSubscriber {
	return &ReadinessSubscriber{
		checklistRepo: checklistRepo,
		questionRepo:  questionRepo,
		docRepo:       docRepo,
	}
}

func (s *ReadinessSubscriber) RegisterQuestionBus(bus *eventbus.QuestionEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.QuestionEventAnswered, s.handleQuestionEvent)
	bus.Subscribe(eventbus.QuestionEventConfirmed, s.handleQuestionEvent)
}

func (s *ReadinessSubscriber) RegisterEvidenceBus(bus *eventbus.EvidenceEventBus) {
	if bus == nil {
		return
	}
	bus.Subscribe(eventbus.EvidenceEventUploaded, s.handleEvidenceEvent)
	bus.Subscribe(eventbus.EvidenceEventDeleted, s.handleEvidenceEvent)
}

func (s *ReadinessSubscriber) handleQuestionEvent(ctx context.Context, event eventbus.QuestionEvent) error {
	if event.ChecklistID == nil {
		// 手工问题不属于任何清单，没有整单完成度可算
		return nil
	}
	s.recompute(*event.ChecklistID)
	return nil
}

func (s *ReadinessSubscriber) handleEvidenceEvent(ctx context.Context, event eventbus.EvidenceEvent) error {
	if event.QuestionID == nil {
		return nil
	}
	question, err := s.questionRepo.Get(*event.QuestionID)
	if err != nil {
		klog.Errorf("获取问题失败: questionID=%d, error=%v", *event.QuestionID, err)
		return err
	}
	if question.ChecklistID == nil {
		return nil
	}
	s.recompute(*question.ChecklistID)
	return nil
}

// recompute 重算清单完成度，已送审的清单不再提示
func (s *ReadinessSubscriber) recompute(checklistID uint) {
	checklist, err := s.checklistRepo.GetBasic(checklistID)
	if err != nil {
		klog.Errorf("获取清单失败: checklistID=%d, error=%v", checklistID, err)
		return
	}
	if checklist.SentToTrustPortal {
		return
	}

	questions, err := s.questionRepo.GetByChecklist(checklistID)
	if err != nil {
		klog.Errorf("获取清单问题失败: checklistID=%d, error=%v", checklistID, err)
		return
	}
	docs, err := s.docRepo.GetByVendor(checklist.VendorID)
	if err != nil {
		klog.Errorf("获取证据文件失败: checklistID=%d, error=%v", checklistID, err)
		return
	}

	verdict := completion.Evaluate(questions, docs)
	if verdict.IsComplete {
		klog.Infof("清单已就绪可提交: checklistID=%d, name=%s, questions=%d",
			checklistID, checklist.Name, verdict.TotalQuestions)
	} else {
		klog.V(6).Infof("清单完成度更新: checklistID=%d, completed=%d/%d",
			checklistID, verdict.CompletedQuestions, verdict.TotalQuestions)
	}
}
