package domain

import "fmt"

// 错误分类：抽取失败、生成失败、校验失败、清单未完成、网络失败
// 校验失败在本地就地解决，绝不落库；其余错误携带定位信息，支持定向重试

// ExtractionFailure 清单抽取失败，清单进入 error 状态，可重新上传重试
type ExtractionFailure struct {
	ChecklistID uint
	Reason      string
	Err         error
}

func (e *ExtractionFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("checklist %d extraction failed: %s: %v", e.ChecklistID, e.Reason, e.Err)
	}
	return fmt.Sprintf("checklist %d extraction failed: %s", e.ChecklistID, e.Reason)
}

func (e *ExtractionFailure) Unwrap() error { return e.Err }

// GenerationFailure 答案生成失败，问题进入 needs-support，可重新发起生成
type GenerationFailure struct {
	QuestionID uint
	Err        error
}

func (e *GenerationFailure) Error() string {
	return fmt.Sprintf("answer generation failed for question %d: %v", e.QuestionID, e.Err)
}

func (e *GenerationFailure) Unwrap() error { return e.Err }

// ValidationFailure 请求未通过本地校验，不触发任何网络或存储调用
type ValidationFailure struct {
	Field  string
	Reason string
}

func (e *ValidationFailure) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("validation failed: %s", e.Reason)
}

// IncompleteChecklistFailure 清单未达到可提交状态
// 携带结构化的未完成计数，而不是一个裸布尔
type IncompleteChecklistFailure struct {
	ChecklistID         uint
	UnansweredQuestions int
	MissingDocuments    int
}

func (e *IncompleteChecklistFailure) Error() string {
	return fmt.Sprintf("checklist %d is not complete: %d unanswered questions, %d missing documents",
		e.ChecklistID, e.UnansweredQuestions, e.MissingDocuments)
}

// NetworkFailure 外部调用往返失败，Op 标明发起操作便于定向重试
type NetworkFailure struct {
	Op  string
	Err error
}

func (e *NetworkFailure) Error() string {
	return fmt.Sprintf("network failure during %s: %v", e.Op, e.Err)
}

func (e *NetworkFailure) Unwrap() error { return e.Err }
