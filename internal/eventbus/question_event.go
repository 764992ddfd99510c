package eventbus

type QuestionEventType string

const (
	QuestionEventAnswered  QuestionEventType = "Answered"  // 生成成功，状态进入 completed
	QuestionEventConfirmed QuestionEventType = "Confirmed" // 人工确认，isDone 置位
)

type QuestionEvent struct {
	Type        QuestionEventType
	QuestionID  uint
	ChecklistID *uint // 为空表示手工问题
	VendorID    uint
}

type QuestionEventHandler = Handler[QuestionEvent]
type QuestionEventBus = Bus[QuestionEventType, QuestionEvent]

func NewQuestionEventBus() *QuestionEventBus {
	return NewBus[QuestionEventType, QuestionEvent]()
}
