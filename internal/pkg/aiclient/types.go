package aiclient

import "context"

// GenerationRequest 单问题答案生成请求
// Context 为请求级的补充上下文（清单名称、可用证据文件描述），只随请求传递，不落库
type GenerationRequest struct {
	QuestionID uint
	Question   string
	Context    string
}

// GenerationResult 单问题生成结果
type GenerationResult struct {
	Answer     string  `json:"answer"`
	Confidence float64 `json:"confidence"` // 0..1
}

// BatchRequest 批量生成任务请求
type BatchRequest struct {
	Questions []BatchQuestion `json:"questions"`
	Context   string          `json:"context,omitempty"`
}

type BatchQuestion struct {
	QuestionID uint   `json:"question_id"`
	Text       string `json:"text"`
}

// BatchItemStatus 批量任务中单个问题的当前状态
type BatchItemStatus struct {
	QuestionID uint     `json:"question_id"`
	Status     string   `json:"status"` // pending, completed, failed
	Answer     string   `json:"answer,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// AnswerService 外部 AI 答案服务契约
// 同步单问生成 + 异步批量任务（提交后轮询）
type AnswerService interface {
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)
	GenerateBatch(ctx context.Context, req BatchRequest) (string, error)
	PollBatch(ctx context.Context, jobID string) ([]BatchItemStatus, error)
}
