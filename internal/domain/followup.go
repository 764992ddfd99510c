package domain

// FollowUpType 提交类型：首次提交或某种追加提交
type FollowUpType string

const (
	FollowUpInitial        FollowUpType = "initial"
	FollowUpFollowUp       FollowUpType = "follow_up"
	FollowUpResubmission   FollowUpType = "resubmission"
	FollowUpClarification  FollowUpType = "clarification"
	FollowUpAdditionalDocs FollowUpType = "additional_docs"
)

// ValidFollowUpType 校验提交类型取值
func ValidFollowUpType(t FollowUpType) bool {
	switch t {
	case FollowUpInitial, FollowUpFollowUp, FollowUpResubmission, FollowUpClarification, FollowUpAdditionalDocs:
		return true
	}
	return false
}

// FollowUpDecision 提交前必须显式做出的跟进决定
// 没有决定不等于首次提交，缺失决定是校验错误
type FollowUpDecision struct {
	IsFollowUp         bool
	Type               FollowUpType
	Reason             string
	ParentSubmissionID *uint
}
