package statemachine

import (
	"k8s.io/klog/v2"
)

// ExtractionStatus 定义清单抽取流程的所有可能状态
type ExtractionStatus string

const (
	ExtractionStatusUploading  ExtractionStatus = "uploading"  // 文件已接收，尚未调用抽取服务
	ExtractionStatusExtracting ExtractionStatus = "extracting" // 抽取服务处理中
	ExtractionStatusCompleted  ExtractionStatus = "completed"  // 抽取完成，问题已入库
	ExtractionStatusError      ExtractionStatus = "error"      // 抽取失败，保留现场供重试
)

// ExtractionTransition 定义抽取状态迁移
type ExtractionTransition struct {
	From ExtractionStatus
	To   ExtractionStatus
}

// ChecklistStateMachine 清单抽取状态机
type ChecklistStateMachine struct {
	allowedTransitions map[ExtractionTransition]bool
}

// NewChecklistStateMachine 创建新的清单抽取状态机
func NewChecklistStateMachine() *ChecklistStateMachine {
	sm := &ChecklistStateMachine{
		allowedTransitions: make(map[ExtractionTransition]bool),
	}

	// uploading -> extracting -> completed/error
	// error -> extracting（重试）
	transitions := []ExtractionTransition{
		{ExtractionStatusUploading, ExtractionStatusExtracting},
		{ExtractionStatusExtracting, ExtractionStatusCompleted},
		{ExtractionStatusExtracting, ExtractionStatusError},
		{ExtractionStatusError, ExtractionStatusExtracting},
	}

	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}

	return sm
}

// CanTransition 检查状态迁移是否合法
func (sm *ChecklistStateMachine) CanTransition(from, to ExtractionStatus) bool {
	if from == to {
		return false
	}
	return sm.allowedTransitions[ExtractionTransition{From: from, To: to}]
}

// ValidateTransition 验证状态迁移并返回错误
func (sm *ChecklistStateMachine) ValidateTransition(from, to ExtractionStatus) error {
	if !sm.CanTransition(from, to) {
		return &InvalidStateTransitionError{
			Entity: "checklist",
			From:   string(from),
			To:     string(to),
		}
	}
	return nil
}

// Transition 执行状态迁移（带日志）
func (sm *ChecklistStateMachine) Transition(from, to ExtractionStatus, checklistID uint) error {
	if err := sm.ValidateTransition(from, to); err != nil {
		klog.V(6).Infof("清单状态迁移被拒绝: checklistID=%d, %s -> %s, error=%v",
			checklistID, from, to, err)
		return err
	}

	klog.V(6).Infof("清单状态迁移成功: checklistID=%d, %s -> %s", checklistID, from, to)
	return nil
}

// IsExtracted 抽取完成后问题才允许进入生成流程
func IsExtracted(status ExtractionStatus) bool {
	return status == ExtractionStatusCompleted
}
