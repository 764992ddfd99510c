package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"k8s.io/klog/v2"
)

// -----------------------------
// Job 定义
// -----------------------------
type Job struct {
	QuestionID uint
	EnqueuedAt time.Time
	RetryCount int
	MaxRetries int
	Timeout    time.Duration
}

// -----------------------------
// GenerationExecutor 接口
// -----------------------------
type GenerationExecutor interface {
	ExecuteGeneration(ctx context.Context, questionID uint) error
}

// -----------------------------
// Orchestrator
// -----------------------------
// 异步生成编排器：协程池 + 主队列 + 重试队列
// 同一问题同一时刻只允许一个在途任务
type Orchestrator struct {
	jobQueue    *jobQueue
	retryQueue  *jobQueue
	retryTicker *time.Ticker

	pool *ants.Pool

	executor GenerationExecutor

	ctx      context.Context
	cancel   context.CancelFunc
	stopOnce sync.Once

	activeQuestions map[uint]struct{}
	activeMutex     sync.Mutex
}

// -----------------------------
// 错误定义
// -----------------------------
var (
	ErrOrchestratorStopped = errors.New("orchestrator is stopped")
	ErrQueueFull           = errors.New("job queue is full")
	ErrQuestionBusy        = errors.New("question already has a generation in flight")
)

// NewGenerationJob
// 说明：创建一个新的生成任务对象，初始化重试次数与超时
// 参数：questionID 问题ID
// 返回：*Job 初始化后的任务对象
func NewGenerationJob(questionID uint) *Job {
	return &Job{
		QuestionID: questionID,
		EnqueuedAt: time.Now(),
		RetryCount: 0,
		MaxRetries: 3,
		Timeout:    5 * time.Minute,
	}
}

// -----------------------------
// 构造函数
// -----------------------------
func NewOrchestrator(maxWorkers int, executor GenerationExecutor) (*Orchestrator, error) {
	ctx, cancel := context.WithCancel(context.Background())

	jobQ := newJobQueue(200)
	retryQ := newJobQueue(200)

	pool, err := ants.NewPool(maxWorkers,
		ants.WithNonblocking(false),
		ants.WithMaxBlockingTasks(1000),
		ants.WithExpiryDuration(5*time.Minute),
	)
	if err != nil {
		klog.Errorf("ants pool initialization failed: %v", err)
		cancel()
		return nil, err
	}

	return &Orchestrator{
		jobQueue:        jobQ,
		retryQueue:      retryQ,
		retryTicker:     time.NewTicker(500 * time.Millisecond),
		pool:            pool,
		activeQuestions: make(map[uint]struct{}),
		executor:        executor,
		ctx:             ctx,
		cancel:          cancel,
	}, nil
}

// -----------------------------
// 启动
// -----------------------------
func (o *Orchestrator) Start() {
	go o.dispatchLoop()
	go o.processRetryQueue()
}

// -----------------------------
// 停止
// -----------------------------
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() {
		klog.V(6).Infof("Orchestrator stopping...")

		// 1. 停止接收新任务，关闭队列
		o.cancel()
		o.jobQueue.Close()
		o.retryQueue.Close()

		// 2. 等待队列中待执行的任务全部分发完毕
		for {
			if o.jobQueue.Len() == 0 && o.retryQueue.Len() == 0 {
				break
			}
			time.Sleep(100 * time.Millisecond)
			klog.V(6).Infof("Waiting for queues to empty: main=%d, retry=%d", o.jobQueue.Len(), o.retryQueue.Len())
		}

		// 3. 等待正在执行的生成调用完成
		running := o.pool.Running()
		if running > 0 {
			klog.V(6).Infof("Waiting for %d running generations to complete (timeout: 6min)", running)
		}

		// ReleaseTimeout 阻塞直到所有任务完成或超时，超时覆盖单任务上限
		timeout := 6 * time.Minute
		rErr := o.pool.ReleaseTimeout(timeout)
		if rErr == nil {
			klog.V(6).Infof("All running generations completed before timeout")
		} else {
			klog.Warningf("Timeout after %v: some running generations may be forced to stop", timeout)
		}

		klog.V(6).Infof("Orchestrator stopped completely")
	})
}

// -----------------------------
// 入队任务
// -----------------------------
func (o *Orchestrator) EnqueueJob(job *Job) error {
	select {
	case <-o.ctx.Done():
		return ErrOrchestratorStopped
	default:
	}

	// 同一问题在途时直接拒绝，而不是排队等待
	if o.isActive(job.QuestionID) {
		return fmt.Errorf("%w: questionID=%d", ErrQuestionBusy, job.QuestionID)
	}

	if err := o.jobQueue.Enqueue(job); err != nil {
		if errors.Is(err, ErrQueueFull) {
			klog.Warningf("Job queue full: questionID=%d", job.QuestionID)
		}
		return err
	}
	klog.V(6).Infof("Generation job enqueued: questionID=%d", job.QuestionID)
	return nil
}

func (o *Orchestrator) EnqueueBatch(jobs []*Job) error {
	var failedJobs []*Job
	for _, job := range jobs {
		if err := o.EnqueueJob(job); err != nil {
			klog.Warningf("Batch enqueue failed for questionID=%d: %v", job.QuestionID, err)
			failedJobs = append(failedJobs, job)
		}
	}
	if len(failedJobs) > 0 {
		return fmt.Errorf("failed to enqueue %d jobs (total %d)", len(failedJobs), len(jobs))
	}
	return nil
}

// -----------------------------
// 在途登记
// -----------------------------
func (o *Orchestrator) registerActive(questionID uint) bool {
	o.activeMutex.Lock()
	defer o.activeMutex.Unlock()
	if _, exists := o.activeQuestions[questionID]; exists {
		return false
	}
	o.activeQuestions[questionID] = struct{}{}
	return true
}

func (o *Orchestrator) unregisterActive(questionID uint) {
	o.activeMutex.Lock()
	defer o.activeMutex.Unlock()
	delete(o.activeQuestions, questionID)
}

func (o *Orchestrator) isActive(questionID uint) bool {
	o.activeMutex.Lock()
	defer o.activeMutex.Unlock()
	_, exists := o.activeQuestions[questionID]
	return exists
}

// -----------------------------
// Dispatch Loop
// -----------------------------
func (o *Orchestrator) dispatchLoop() {
	for {
		select {
		case <-o.ctx.Done():
			return
		default:
			job, ok := o.jobQueue.Dequeue()
			if !ok {
				continue
			}
			o.tryDispatch(job)
		}
	}
}

// -----------------------------
// Retry Queue Loop
// -----------------------------
func (o *Orchestrator) processRetryQueue() {
	defer o.retryTicker.Stop()
	// 协程级Panic防护，避免循环退出
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("Retry queue loop panic recovered: %v", r)
		}
	}()
	for {
		select {
		case <-o.ctx.Done():
			return
		case <-o.retryTicker.C:
			for range 10 {
				job, ok := o.retryQueue.Dequeue()
				if !ok {
					break
				}
				// 单个任务Panic不影响整个循环
				func() {
					defer func() {
						if r := recover(); r != nil {
							klog.Errorf("Retry dispatch panic: questionID=%d, err=%v",
								job.QuestionID, r)
						}
					}()
					o.tryDispatch(job)
				}()
			}
		}
	}
}

// -----------------------------
// Try Dispatch
// -----------------------------
// tryDispatch 只负责分发；池提交失败时按重试上限重新入队
func (o *Orchestrator) tryDispatch(job *Job) {
	if job.MaxRetries <= 0 || job.RetryCount >= job.MaxRetries {
		klog.Warningf("任务重试已达上限，放弃入队: questionID=%d, retry=%d/%d", job.QuestionID, job.RetryCount, job.MaxRetries)
		return
	}
	if err := o.pool.Submit(func() {
		o.executeJob(job)
	}); err == nil {
		return
	} else {
		klog.Errorf("提交任务到协程池失败: questionID=%d, err=%v", job.QuestionID, err)
	}

	job.RetryCount++
	if err := o.retryQueue.Enqueue(job); err != nil {
		klog.Errorf("任务重试入队失败: questionID=%d, err=%v", job.QuestionID, err)
	}
}

// executeJob 统一控制重试与在途登记
func (o *Orchestrator) executeJob(job *Job) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("Generation panic recovered: questionID=%d, err=%v", job.QuestionID, r)
			o.unregisterActive(job.QuestionID)
		}
	}()

	timeout := job.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(o.ctx, timeout)
	defer cancel()

	if !o.registerActive(job.QuestionID) {
		klog.Warningf("问题已有在途生成，丢弃任务: questionID=%d", job.QuestionID)
		return
	}
	defer o.unregisterActive(job.QuestionID)

	for i := job.RetryCount; i < job.MaxRetries; i++ {
		job.RetryCount = i

		err := o.executor.ExecuteGeneration(ctx, job.QuestionID)
		if err == nil {
			klog.V(6).Infof("Generation completed: questionID=%d", job.QuestionID)
			return
		}

		backoff := time.Second << i
		if backoff > 2*time.Minute {
			backoff = 2 * time.Minute
		}

		klog.Warningf("生成重试失败: questionID=%d, retry=%d/%d, err=%v, backoff=%v",
			job.QuestionID, i+1, job.MaxRetries, err, backoff)

		select {
		case <-ctx.Done():
			klog.Warningf("生成被取消或超时: questionID=%d", job.QuestionID)
			return
		case <-time.After(backoff):
		}
	}

	klog.Errorf("生成执行失败且超过重试上限: questionID=%d", job.QuestionID)
}

// -----------------------------
// Queue Status
// -----------------------------
type QueueStatus struct {
	QueueLength     int `json:"queue_length"`
	ActiveWorkers   int `json:"active_workers"`
	ActiveQuestions int `json:"active_questions"`
}

func (o *Orchestrator) GetQueueStatus() *QueueStatus {
	o.activeMutex.Lock()
	active := len(o.activeQuestions)
	o.activeMutex.Unlock()
	return &QueueStatus{
		QueueLength:     o.jobQueue.Len(),
		ActiveWorkers:   o.pool.Running(),
		ActiveQuestions: active,
	}
}

// -----------------------------
// JobQueue (Ring Buffer) + Reject New
// -----------------------------
type jobQueue struct {
	maxSize int
	items   []*Job
	mutex   sync.Mutex
	cond    *sync.Cond
	closed  bool
}

func newJobQueue(maxSize int) *jobQueue {
	q := &jobQueue{
		maxSize: maxSize,
		items:   make([]*Job, 0, maxSize),
	}
	q.cond = sync.NewCond(&q.mutex)
	return q
}

func (q *jobQueue) Enqueue(job *Job) error {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	if q.closed {
		return ErrOrchestratorStopped
	}
	if q.maxSize > 0 && len(q.items) >= q.maxSize {
		return ErrQueueFull // Reject New
	}
	q.items = append(q.items, job)
	q.cond.Signal()
	return nil
}

func (q *jobQueue) Dequeue() (*Job, bool) {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	job := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return job, true
}

func (q *jobQueue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return len(q.items)
}

func (q *jobQueue) Close() {
	q.mutex.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mutex.Unlock()
}

// -------------------- Global Orchestrator --------------------
var (
	globalOrchestrator *Orchestrator
	orchestratorOnce   sync.Once
)

func InitGlobalOrchestrator(maxWorkers int, executor GenerationExecutor) error {
	var initErr error
	orchestratorOnce.Do(func() {
		orch, err := NewOrchestrator(maxWorkers, executor)
		if err != nil {
			initErr = err
			return
		}
		globalOrchestrator = orch
		globalOrchestrator.Start()
		klog.V(6).Infof("Global orchestrator initialized: maxWorkers=%d", maxWorkers)
	})
	return initErr
}

func GetGlobalOrchestrator() *Orchestrator {
	return globalOrchestrator
}

func ShutdownGlobalOrchestrator() {
	if globalOrchestrator != nil {
		globalOrchestrator.Stop()
		klog.V(6).Infof("Global orchestrator shutdown")
	}
}
