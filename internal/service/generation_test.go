package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/complyon/backend/internal/domain"
	"github.com/complyon/backend/internal/eventbus"
	"github.com/complyon/backend/internal/model"
	"github.com/complyon/backend/internal/pkg/aiclient"
	"github.com/complyon/backend/internal/repository"
)

type generationFixture struct {
	svc           *GenerationService
	questionRepo  repository.QuestionRepository
	checklistRepo repository.ChecklistRepository
	ai            *fakeAnswerService
	bus           *eventbus.QuestionEventBus
}

func newGenerationFixture(t *testing.T) *generationFixture {
	t.Helper()
	db := setupTestDB(t)
	questionRepo := repository.NewQuestionRepository(db)
	checklistRepo := repository.NewChecklistRepository(db)
	docRepo := repository.NewDocumentRepository(db)
	ai := &fakeAnswerService{}
	bus := eventbus.NewQuestionEventBus()
	svc := NewGenerationService(testConfig(), questionRepo, checklistRepo, docRepo, ai, bus)
	return &generationFixture{svc: svc, questionRepo: questionRepo, checklistRepo: checklistRepo, ai: ai, bus: bus}
}

func (f *generationFixture) seedChecklist(t *testing.T, status string) *model.Checklist {
	t.Helper()
	c := &model.Checklist{VendorID: 1, Name: "问卷", SourceFilename: "a.xlsx", ExtractionStatus: status}
	if err := f.checklistRepo.Create(c); err != nil {
		t.Fatalf("seed checklist error: %v", err)
	}
	return c
}

func (f *generationFixture) seedQuestion(t *testing.T, checklistID *uint, status string) *model.Question {
	t.Helper()
	q := &model.Question{ChecklistID: checklistID, VendorID: 1, Text: "备份策略?", Status: status}
	if err := f.questionRepo.Create(q); err != nil {
		t.Fatalf("seed question error: %v", err)
	}
	return q
}

func TestGenerateAnswerSuccess(t *testing.T) {
	f := newGenerationFixture(t)
	q := f.seedQuestion(t, nil, "pending")

	f.ai.generateFn = func(req aiclient.GenerationRequest) (*aiclient.GenerationResult, error) {
		return &aiclient.GenerationResult{Answer: "每日增量备份，每周全量", Confidence: 0.92}, nil
	}

	var answered []eventbus.QuestionEvent
	f.bus.Subscribe(eventbus.QuestionEventAnswered, func(ctx context.Context, e eventbus.QuestionEvent) error {
		answered = append(answered, e)
		return nil
	})

	got, err := f.svc.GenerateAnswer(context.Background(), q.ID)
	if err != nil {
		t.Fatalf("generate error: %v", err)
	}

	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, "每日增量备份，每周全量", got.Answer)
	assert.InDelta(t, 0.92, *got.Confidence, 1e-9)
	assert.False(t, got.IsDone)
	assert.Len(t, answered, 1)
}

func TestGenerateAnswerFailureMarksNeedsSupport(t *testing.T) {
	f := newGenerationFixture(t)
	q := f.seedQuestion(t, nil, "pending")

	f.ai.generateFn = func(req aiclient.GenerationRequest) (*aiclient.GenerationResult, error) {
		return nil, errors.New("model overloaded")
	}

	_, err := f.svc.GenerateAnswer(context.Background(), q.ID)

	var genErr *domain.GenerationFailure
	if !errors.As(err, &genErr) {
		t.Fatalf("expected GenerationFailure, got %v", err)
	}
	assert.Equal(t, q.ID, genErr.QuestionID)

	stored, _ := f.questionRepo.Get(q.ID)
	assert.Equal(t, "needs-support", stored.Status)

	// needs-support 允许人工重试生成
	f.ai.generateFn = nil
	got, err := f.svc.GenerateAnswer(context.Background(), q.ID)
	if err != nil {
		t.Fatalf("retry error: %v", err)
	}
	assert.Equal(t, "completed", got.Status)
}

func TestGenerateAnswerRejectsSecondDispatch(t *testing.T) {
	f := newGenerationFixture(t)
	q := f.seedQuestion(t, nil, "in-progress")

	_, err := f.svc.GenerateAnswer(context.Background(), q.ID)
	if !errors.Is(err, ErrGenerationInFlight) {
		t.Fatalf("expected ErrGenerationInFlight, got %v", err)
	}
}

func TestGenerateAnswerRequiresExtractedChecklist(t *testing.T) {
	f := newGenerationFixture(t)
	c := f.seedChecklist(t, "extracting")
	q := f.seedQuestion(t, &c.ID, "pending")

	_, err := f.svc.GenerateAnswer(context.Background(), q.ID)

	var validationErr *domain.ValidationFailure
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationFailure, got %v", err)
	}
}

// 旧调用的迟到响应必须作废，最终落库的是新调用的答案
func TestRegenerateSupersedesStaleResponse(t *testing.T) {
	f := newGenerationFixture(t)
	q := f.seedQuestion(t, nil, "pending")

	firstStarted := make(chan struct{})
	releaseFirst := make(chan struct{})
	var callMu sync.Mutex
	calls := 0

	f.ai.generateFn = func(req aiclient.GenerationRequest) (*aiclient.GenerationResult, error) {
		callMu.Lock()
		calls++
		n := calls
		callMu.Unlock()
		if n == 1 {
			close(firstStarted)
			<-releaseFirst
			return &aiclient.GenerationResult{Answer: "过期答案A", Confidence: 0.5}, nil
		}
		return &aiclient.GenerationResult{Answer: "最新答案B", Confidence: 0.9}, nil
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// 第一次调用挂起在外部服务上
		_, _ = f.svc.GenerateAnswer(context.Background(), q.ID)
	}()

	<-firstStarted
	// 用户放弃等待，发起重新生成
	got, err := f.svc.Regenerate(context.Background(), q.ID)
	if err != nil {
		t.Fatalf("regenerate error: %v", err)
	}
	assert.Equal(t, "最新答案B", got.Answer)

	// 旧调用此时才返回，其结果必须被丢弃
	close(releaseFirst)
	wg.Wait()

	stored, _ := f.questionRepo.Get(q.ID)
	assert.Equal(t, "最新答案B", stored.Answer)
	assert.Equal(t, "completed", stored.Status)
}

func TestGenerateBatchCompletesEarly(t *testing.T) {
	f := newGenerationFixture(t)
	c := f.seedChecklist(t, "completed")
	q1 := f.seedQuestion(t, &c.ID, "pending")
	q2 := f.seedQuestion(t, &c.ID, "pending")
	conf := 0.8

	f.ai.pollResults = [][]aiclient.BatchItemStatus{
		{
			{QuestionID: q1.ID, Status: "completed", Answer: "答案一", Confidence: &conf},
			{QuestionID: q2.ID, Status: "pending"},
		},
		{
			{QuestionID: q1.ID, Status: "completed", Answer: "答案一", Confidence: &conf},
			{QuestionID: q2.ID, Status: "completed", Answer: "答案二", Confidence: &conf},
		},
	}

	var progress []BatchProgress
	result, err := f.svc.GenerateBatch(context.Background(), BatchScope{VendorID: 1, ChecklistID: &c.ID}, func(p BatchProgress) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("batch error: %v", err)
	}

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Completed)
	assert.False(t, result.TimedOut)
	assert.Empty(t, result.StillPending)
	// 两轮轮询，两次进度回调
	assert.Len(t, progress, 2)
	assert.Equal(t, 1, progress[0].Completed)

	for _, id := range []uint{q1.ID, q2.ID} {
		stored, _ := f.questionRepo.Get(id)
		assert.Equal(t, "completed", stored.Status)
		assert.NotEmpty(t, stored.Answer)
	}
}

// 轮询预算用尽是软超时：未完成的问题保持 pending，不报错
func TestGenerateBatchSoftTimeout(t *testing.T) {
	f := newGenerationFixture(t)
	c := f.seedChecklist(t, "completed")
	q1 := f.seedQuestion(t, &c.ID, "pending")
	q2 := f.seedQuestion(t, &c.ID, "pending")

	f.ai.pollResults = [][]aiclient.BatchItemStatus{
		{
			{QuestionID: q1.ID, Status: "pending"},
			{QuestionID: q2.ID, Status: "pending"},
		},
	}

	result, err := f.svc.GenerateBatch(context.Background(), BatchScope{VendorID: 1, ChecklistID: &c.ID}, nil)
	if err != nil {
		t.Fatalf("batch error: %v", err)
	}

	assert.True(t, result.TimedOut)
	assert.ElementsMatch(t, []uint{q1.ID, q2.ID}, result.StillPending)
	// 预算内轮询次数受配置约束
	assert.Equal(t, testConfig().Generation.MaxPollAttempts, f.ai.pollCalls)

	for _, id := range []uint{q1.ID, q2.ID} {
		stored, _ := f.questionRepo.Get(id)
		assert.Equal(t, "pending", stored.Status)
	}
}

func TestGenerateBatchFailedItemNeedsSupport(t *testing.T) {
	f := newGenerationFixture(t)
	c := f.seedChecklist(t, "completed")
	q1 := f.seedQuestion(t, &c.ID, "pending")
	conf := 0.7
	q2 := f.seedQuestion(t, &c.ID, "pending")

	f.ai.pollResults = [][]aiclient.BatchItemStatus{
		{
			{QuestionID: q1.ID, Status: "failed"},
			{QuestionID: q2.ID, Status: "completed", Answer: "答案", Confidence: &conf},
		},
	}

	result, err := f.svc.GenerateBatch(context.Background(), BatchScope{VendorID: 1, ChecklistID: &c.ID}, nil)
	if err != nil {
		t.Fatalf("batch error: %v", err)
	}

	assert.False(t, result.TimedOut)
	stored1, _ := f.questionRepo.Get(q1.ID)
	assert.Equal(t, "needs-support", stored1.Status)
	stored2, _ := f.questionRepo.Get(q2.ID)
	assert.Equal(t, "completed", stored2.Status)
}

func TestGenerateBatchNoPendingQuestions(t *testing.T) {
	f := newGenerationFixture(t)
	c := f.seedChecklist(t, "completed")
	f.seedQuestion(t, &c.ID, "completed")

	result, err := f.svc.GenerateBatch(context.Background(), BatchScope{VendorID: 1, ChecklistID: &c.ID}, nil)
	if err != nil {
		t.Fatalf("batch error: %v", err)
	}
	assert.Equal(t, 0, result.Total)
	assert.Equal(t, 0, f.ai.pollCalls)
}

// 厂商范围只收录抽取完成清单下的问题，手工问题不受此限
func TestGenerateBatchVendorScopeSkipsUnextractedChecklists(t *testing.T) {
	f := newGenerationFixture(t)
	ready := f.seedChecklist(t, "completed")
	broken := f.seedChecklist(t, "error")
	qReady := f.seedQuestion(t, &ready.ID, "pending")
	f.seedQuestion(t, &broken.ID, "pending")
	qManual := f.seedQuestion(t, nil, "pending")
	conf := 0.8

	f.ai.pollResults = [][]aiclient.BatchItemStatus{
		{
			{QuestionID: qReady.ID, Status: "completed", Answer: "答案", Confidence: &conf},
			{QuestionID: qManual.ID, Status: "completed", Answer: "答案", Confidence: &conf},
		},
	}

	result, err := f.svc.GenerateBatch(context.Background(), BatchScope{VendorID: 1}, nil)
	if err != nil {
		t.Fatalf("batch error: %v", err)
	}

	assert.Equal(t, 2, result.Total)
	var dispatched []uint
	for _, bq := range f.ai.batchRequests[0].Questions {
		dispatched = append(dispatched, bq.QuestionID)
	}
	assert.ElementsMatch(t, []uint{qReady.ID, qManual.ID}, dispatched)
}

func TestGenerateBatchRejectsUnextractedChecklist(t *testing.T) {
	f := newGenerationFixture(t)
	c := f.seedChecklist(t, "error")
	f.seedQuestion(t, &c.ID, "pending")

	_, err := f.svc.GenerateBatch(context.Background(), BatchScope{VendorID: 1, ChecklistID: &c.ID}, nil)

	var validationErr *domain.ValidationFailure
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationFailure, got %v", err)
	}
}
