package eventbus

// 证据文件事件：上传或删除都会使该问题的文档要求满足状态失效
// 订阅方必须基于事件之后的文档集合重新计算，不得复用旧结果

type EvidenceEventType string

const (
	EvidenceEventUploaded EvidenceEventType = "EvidenceUploaded"
	EvidenceEventDeleted  EvidenceEventType = "EvidenceDeleted"
)

type EvidenceEvent struct {
	Type       EvidenceEventType
	DocumentID uint
	QuestionID *uint // 为空表示厂商级通用文件
	VendorID   uint
}

type EvidenceEventHandler = Handler[EvidenceEvent]
type EvidenceEventBus = Bus[EvidenceEventType, EvidenceEvent]

func NewEvidenceEventBus() *EvidenceEventBus {
	return NewBus[EvidenceEventType, EvidenceEvent]()
}
