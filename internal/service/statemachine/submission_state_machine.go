package statemachine

import (
	"k8s.io/klog/v2"
)

// SubmissionPhase 定义提交草稿的所有可能阶段
type SubmissionPhase string

const (
	SubmissionPhaseDraft            SubmissionPhase = "draft"                      // 草稿，尚未确定跟进方式
	SubmissionPhaseAwaitingDecision SubmissionPhase = "awaiting_follow_up_decision" // 等待显式的跟进决定
	SubmissionPhaseSubmitted        SubmissionPhase = "submitted"                  // 已推送门户
)

// SubmissionTransition 定义提交阶段迁移
type SubmissionTransition struct {
	From SubmissionPhase
	To   SubmissionPhase
}

// SubmissionStateMachine 提交阶段状态机
// 没有显式决定绝不放行到 submitted，缺失决定不等于首次提交
type SubmissionStateMachine struct {
	allowedTransitions map[SubmissionTransition]bool
}

// NewSubmissionStateMachine 创建新的提交阶段状态机
func NewSubmissionStateMachine() *SubmissionStateMachine {
	sm := &SubmissionStateMachine{
		allowedTransitions: make(map[SubmissionTransition]bool),
	}

	// draft -> awaiting_follow_up_decision -> submitted
	// awaiting_follow_up_decision -> draft（放弃决定）
	transitions := []SubmissionTransition{
		{SubmissionPhaseDraft, SubmissionPhaseAwaitingDecision},
		{SubmissionPhaseAwaitingDecision, SubmissionPhaseSubmitted},
		{SubmissionPhaseAwaitingDecision, SubmissionPhaseDraft},
	}

	for _, t := range transitions {
		sm.allowedTransitions[t] = true
	}

	return sm
}

// CanTransition 检查阶段迁移是否合法
func (sm *SubmissionStateMachine) CanTransition(from, to SubmissionPhase) bool {
	if from == to {
		return false
	}
	return sm.allowedTransitions[SubmissionTransition{From: from, To: to}]
}

// ValidateTransition 验证阶段迁移并返回错误
func (sm *SubmissionStateMachine) ValidateTransition(from, to SubmissionPhase) error {
	if !sm.CanTransition(from, to) {
		return &InvalidStateTransitionError{
			Entity: "submission",
			From:   string(from),
			To:     string(to),
		}
	}
	return nil
}

// Transition 执行阶段迁移（带日志）
func (sm *SubmissionStateMachine) Transition(from, to SubmissionPhase, reference string) error {
	if err := sm.ValidateTransition(from, to); err != nil {
		klog.V(6).Infof("提交阶段迁移被拒绝: reference=%s, %s -> %s, error=%v",
			reference, from, to, err)
		return err
	}

	klog.V(6).Infof("提交阶段迁移成功: reference=%s, %s -> %s", reference, from, to)
	return nil
}
