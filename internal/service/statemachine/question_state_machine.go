package statemachine

import (
	"fmt"

	"k8s.io/klog/v2"
)

// QuestionStatus 定义问题的所有可能状态
type QuestionStatus string

const (
	QuestionStatusPending      QuestionStatus = "pending"       // 等待生成（初始态）
	QuestionStatusInProgress   QuestionStatus = "in-progress"   // 生成中 / 人工编辑中
	QuestionStatusCompleted    QuestionStatus = "completed"     // AI 生成完成
	QuestionStatusDone         QuestionStatus = "done"          // 人工确认完成
	QuestionStatusNeedsSupport QuestionStatus = "needs-support" // 生成失败，等待人工介入
)

// QuestionTransition 定义问题状态迁移
type QuestionTransition struct {
	From QuestionStatus
	To   QuestionStatus
}

// QuestionStateMachine 问题状态机
// completed 由系统在生成成功后赋予，done 必须由人确认，两条语义都保留
type QuestionStateMachine struct {
	allowedTransitions map[QuestionTransition]bool
}

// NewQuestionStateMachine 创建新的问题状态机
func NewQuestionStateMachine() *QuestionStateMachine {
	sm := &QuestionStateMachine{
		allowedTransitions: make(map[QuestionTransition]bool),
	}

	// 合法迁移路径
	// pending -> in-progress -> completed -> done
	// pending/in-progress -> needs-support（生成失败）
	// completed/done -> in-progress（人工编辑，清除 isDone）
	// needs-support -> in-progress（人工重试生成）
	// in-progress -> done（编辑后直接确认保存）
	transitions := []QuestionTransition{
		{QuestionStatusPending, QuestionStatusInProgress},
		{QuestionStatusInProgress, QuestionStatusCompleted},
		{QuestionStatusCompleted, QuestionStatusDone},
		{QuestionStatusInProgress, QuestionStatusDone},

		{QuestionStatusPending, QuestionStatusNeedsSupport},
		{QuestionStatusInProgress, QuestionStatusNeedsSupport},

		{QuestionStatusCompleted, QuestionStatusInProgress},
		{QuestionStatusDone, QuestionStatusInProgress},
		{QuestionStatusNeedsSupport, QuestionStatusInProgress},
	}

	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}

	return sm
}

// CanTransition 检查状态迁移是否合法
func (sm *QuestionStateMachine) CanTransition(from, to QuestionStatus) bool {
	if from == to {
		return false // 不允许状态不变
	}
	return sm.allowedTransitions[QuestionTransition{From: from, To: to}]
}

// ValidateTransition 验证状态迁移并返回错误
func (sm *QuestionStateMachine) ValidateTransition(from, to QuestionStatus) error {
	if !sm.CanTransition(from, to) {
		return &InvalidStateTransitionError{
			Entity: "question",
			From:   string(from),
			To:     string(to),
		}
	}
	return nil
}

// Transition 执行状态迁移（带日志）
func (sm *QuestionStateMachine) Transition(from, to QuestionStatus, questionID uint) error {
	if err := sm.ValidateTransition(from, to); err != nil {
		klog.V(6).Infof("问题状态迁移被拒绝: questionID=%d, %s -> %s, error=%v",
			questionID, from, to, err)
		return err
	}

	klog.V(6).Infof("问题状态迁移成功: questionID=%d, %s -> %s", questionID, from, to)
	return nil
}

// InvalidStateTransitionError 无效的状态迁移错误
type InvalidStateTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid %s state transition: %s -> %s", e.Entity, e.From, e.To)
}

// IsAnswered 判断状态是否属于"已有答案"（completed 与 done 在提交口径上等价）
func IsAnswered(status QuestionStatus) bool {
	return status == QuestionStatusCompleted || status == QuestionStatusDone
}

// IsDispatchable 判断问题当前是否允许发起生成
// in-progress 的问题禁止并发派发
func IsDispatchable(status QuestionStatus) bool {
	return status != QuestionStatusInProgress
}
