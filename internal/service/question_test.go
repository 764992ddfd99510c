package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/complyon/backend/internal/domain"
	"github.com/complyon/backend/internal/eventbus"
	"github.com/complyon/backend/internal/model"
	"github.com/complyon/backend/internal/repository"
)

func newQuestionService(t *testing.T) (*QuestionService, repository.QuestionRepository, *eventbus.QuestionEventBus) {
	t.Helper()
	db := setupTestDB(t)
	questionRepo := repository.NewQuestionRepository(db)
	bus := eventbus.NewQuestionEventBus()
	return NewQuestionService(questionRepo, bus), questionRepo, bus
}

func seedQuestion(t *testing.T, repo repository.QuestionRepository, status, answer string, isDone bool) *model.Question {
	t.Helper()
	q := &model.Question{VendorID: 1, Text: "数据保留多久?", Status: status, Answer: answer, IsDone: isDone}
	if err := repo.Create(q); err != nil {
		t.Fatalf("seed question error: %v", err)
	}
	return q
}

func TestToggleEditEntersEditMode(t *testing.T) {
	svc, repo, _ := newQuestionService(t)
	q := seedQuestion(t, repo, "done", "保留 90 天", true)

	got, err := svc.ToggleEdit(context.Background(), q.ID)
	if err != nil {
		t.Fatalf("toggle edit error: %v", err)
	}

	assert.Equal(t, "in-progress", got.Status)
	// 编辑必须撤销先前的人工确认
	assert.False(t, got.IsDone)
	// 答案本身不被清除
	assert.Equal(t, "保留 90 天", got.Answer)
}

// 重入编辑即退出，不保存修改
func TestToggleEditReentrantExitsWithoutSaving(t *testing.T) {
	svc, repo, _ := newQuestionService(t)
	q := seedQuestion(t, repo, "completed", "保留 90 天", false)

	if _, err := svc.ToggleEdit(context.Background(), q.ID); err != nil {
		t.Fatalf("first toggle error: %v", err)
	}
	got, err := svc.ToggleEdit(context.Background(), q.ID)
	if err != nil {
		t.Fatalf("second toggle error: %v", err)
	}

	assert.Equal(t, "completed", got.Status)
	assert.Equal(t, "保留 90 天", got.Answer)
}

// 生成在途的 in-progress 没有可退回的答案，不允许切成 completed
func TestToggleEditRejectsInProgressWithoutAnswer(t *testing.T) {
	svc, repo, _ := newQuestionService(t)
	q := seedQuestion(t, repo, "in-progress", "", false)

	_, err := svc.ToggleEdit(context.Background(), q.ID)

	var validationErr *domain.ValidationFailure
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationFailure, got %v", err)
	}
	stored, _ := repo.Get(q.ID)
	assert.Equal(t, "in-progress", stored.Status)
	assert.Empty(t, stored.Answer)
}

func TestToggleEditRejectsPending(t *testing.T) {
	svc, repo, _ := newQuestionService(t)
	q := seedQuestion(t, repo, "pending", "", false)

	_, err := svc.ToggleEdit(context.Background(), q.ID)

	var validationErr *domain.ValidationFailure
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationFailure, got %v", err)
	}
}

func TestSaveAnswerFromEdit(t *testing.T) {
	svc, repo, bus := newQuestionService(t)
	q := seedQuestion(t, repo, "completed", "旧答案", false)

	var events []eventbus.QuestionEvent
	bus.Subscribe(eventbus.QuestionEventConfirmed, func(ctx context.Context, e eventbus.QuestionEvent) error {
		events = append(events, e)
		return nil
	})

	if _, err := svc.ToggleEdit(context.Background(), q.ID); err != nil {
		t.Fatalf("toggle edit error: %v", err)
	}
	got, err := svc.SaveAnswer(context.Background(), q.ID, "新答案")
	if err != nil {
		t.Fatalf("save answer error: %v", err)
	}

	assert.Equal(t, "done", got.Status)
	assert.True(t, got.IsDone)
	assert.Equal(t, "新答案", got.Answer)
	assert.Nil(t, got.Confidence)
	assert.Len(t, events, 1)
}

func TestSaveAnswerRejectsEmpty(t *testing.T) {
	svc, repo, _ := newQuestionService(t)
	q := seedQuestion(t, repo, "in-progress", "", false)

	_, err := svc.SaveAnswer(context.Background(), q.ID, "   ")

	var validationErr *domain.ValidationFailure
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationFailure, got %v", err)
	}
}

func TestMarkDone(t *testing.T) {
	svc, repo, _ := newQuestionService(t)
	q := seedQuestion(t, repo, "completed", "已有答案", false)

	got, err := svc.MarkDone(context.Background(), q.ID)
	if err != nil {
		t.Fatalf("mark done error: %v", err)
	}
	assert.Equal(t, "done", got.Status)
	assert.True(t, got.IsDone)
}

func TestMarkDoneRequiresAnswer(t *testing.T) {
	svc, repo, _ := newQuestionService(t)
	q := seedQuestion(t, repo, "completed", "  ", false)

	_, err := svc.MarkDone(context.Background(), q.ID)

	var validationErr *domain.ValidationFailure
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationFailure, got %v", err)
	}
}
