package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeExecutor struct {
	err   error
	block chan struct{}
	calls int32
}

func (f *fakeExecutor) ExecuteGeneration(ctx context.Context, questionID uint) error {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return f.err
}

func TestTryDispatchMaxRetriesExhausted(t *testing.T) {
	executor := &fakeExecutor{}
	o, _ := NewOrchestrator(1, executor)
	o.retryTicker.Stop()
	defer o.pool.Release()

	job := &Job{
		QuestionID: 1,
		RetryCount: 1,
		MaxRetries: 1,
		Timeout:    10 * time.Millisecond,
	}

	o.tryDispatch(job)

	if got := o.retryQueue.Len(); got != 0 {
		t.Fatalf("retry queue should be empty, got %d", got)
	}
	if atomic.LoadInt32(&executor.calls) != 0 {
		t.Fatalf("executor should not be called, got %d", executor.calls)
	}
	if job.RetryCount != 1 {
		t.Fatalf("retry count should remain 1, got %d", job.RetryCount)
	}
}

func TestTryDispatchExecutesOnce(t *testing.T) {
	executor := &fakeExecutor{}
	o, _ := NewOrchestrator(1, executor)
	o.retryTicker.Stop()
	defer o.pool.Release()

	job := &Job{
		QuestionID: 2,
		RetryCount: 0,
		MaxRetries: 1,
		Timeout:    10 * time.Millisecond,
	}

	o.tryDispatch(job)

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&executor.calls) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := o.retryQueue.Len(); got != 0 {
		t.Fatalf("retry queue should be empty, got %d", got)
	}
	if atomic.LoadInt32(&executor.calls) != 1 {
		t.Fatalf("executor should be called once, got %d", executor.calls)
	}
}

func TestExecuteJobStopsOnTimeout(t *testing.T) {
	executor := &fakeExecutor{err: context.DeadlineExceeded}
	o, _ := NewOrchestrator(1, executor)
	o.retryTicker.Stop()
	defer o.pool.Release()

	job := &Job{
		QuestionID: 3,
		RetryCount: 0,
		MaxRetries: 3,
		Timeout:    50 * time.Millisecond,
	}

	start := time.Now()
	o.executeJob(job)
	elapsed := time.Since(start)

	if atomic.LoadInt32(&executor.calls) != 1 {
		t.Fatalf("executor should be called once, got %d", executor.calls)
	}
	if elapsed > 500*time.Millisecond {
		t.Fatalf("executeJob took too long: %v", elapsed)
	}
}

// 同一问题在途时第二次入队必须被拒绝
func TestEnqueueRejectsBusyQuestion(t *testing.T) {
	executor := &fakeExecutor{block: make(chan struct{})}
	o, _ := NewOrchestrator(1, executor)
	o.retryTicker.Stop()
	defer func() {
		close(executor.block)
		o.pool.Release()
	}()

	first := NewGenerationJob(7)
	go o.executeJob(first)

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if o.isActive(7) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !o.isActive(7) {
		t.Fatal("expected question 7 to be registered as active")
	}

	err := o.EnqueueJob(NewGenerationJob(7))
	if !errors.Is(err, ErrQuestionBusy) {
		t.Fatalf("expected ErrQuestionBusy, got %v", err)
	}

	// 其他问题不受影响
	if err := o.EnqueueJob(NewGenerationJob(8)); err != nil {
		t.Fatalf("unexpected error for other question: %v", err)
	}
}

// 任务结束后在途登记必须释放，后续入队不再被拒绝
func TestActiveQuestionReleasedAfterCompletion(t *testing.T) {
	executor := &fakeExecutor{}
	o, _ := NewOrchestrator(1, executor)
	o.retryTicker.Stop()
	defer o.pool.Release()

	o.executeJob(NewGenerationJob(9))

	if o.isActive(9) {
		t.Fatal("expected question 9 to be released after completion")
	}
	if err := o.EnqueueJob(NewGenerationJob(9)); err != nil {
		t.Fatalf("unexpected error after release: %v", err)
	}
}
