package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/complyon/backend/config"
	"github.com/complyon/backend/internal/model"
	"github.com/complyon/backend/internal/pkg/aiclient"
	"github.com/complyon/backend/internal/pkg/extractor"
	"github.com/complyon/backend/internal/pkg/storage"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db error: %v", err)
	}
	if err := db.AutoMigrate(&model.Checklist{}, &model.Question{}, &model.SupportingDocument{}, &model.SubmissionRecord{}); err != nil {
		t.Fatalf("migrate error: %v", err)
	}
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Generation: config.GenerationConfig{
			PollInterval:    time.Millisecond,
			MaxPollAttempts: 5,
			MaxWorkers:      2,
		},
	}
}

// fakeExtractor 可编程的抽取服务替身
type fakeExtractor struct {
	questions []extractor.ExtractedQuestion
	err       error
	calls     int
}

func (f *fakeExtractor) Extract(ctx context.Context, filename string, file io.Reader) ([]extractor.ExtractedQuestion, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.questions, nil
}

// fakeAnswerService 可编程的 AI 答案服务替身
type fakeAnswerService struct {
	mu sync.Mutex

	generateFn func(req aiclient.GenerationRequest) (*aiclient.GenerationResult, error)

	batchJobID    string
	batchErr      error
	batchRequests []aiclient.BatchRequest
	// pollResults 按轮询次数给出返回，超出后重复最后一组
	pollResults [][]aiclient.BatchItemStatus
	pollCalls   int
}

func (f *fakeAnswerService) Generate(ctx context.Context, req aiclient.GenerationRequest) (*aiclient.GenerationResult, error) {
	if f.generateFn != nil {
		return f.generateFn(req)
	}
	return &aiclient.GenerationResult{Answer: "默认答案", Confidence: 0.8}, nil
}

func (f *fakeAnswerService) GenerateBatch(ctx context.Context, req aiclient.BatchRequest) (string, error) {
	f.mu.Lock()
	f.batchRequests = append(f.batchRequests, req)
	f.mu.Unlock()
	if f.batchErr != nil {
		return "", f.batchErr
	}
	if f.batchJobID == "" {
		return "job-1", nil
	}
	return f.batchJobID, nil
}

func (f *fakeAnswerService) PollBatch(ctx context.Context, jobID string) ([]aiclient.BatchItemStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pollResults) == 0 {
		return nil, nil
	}
	idx := f.pollCalls
	if idx >= len(f.pollResults) {
		idx = len(f.pollResults) - 1
	}
	f.pollCalls++
	return f.pollResults[idx], nil
}

// fakeStorage 内存对象存储替身
type fakeStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
	delErr  error
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (f *fakeStorage) Put(ctx context.Context, key string, r io.Reader, opts storage.PutOptions) (storage.ObjectInfo, error) {
	if f.putErr != nil {
		return storage.ObjectInfo{}, f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	f.mu.Lock()
	f.objects[key] = data
	f.mu.Unlock()
	return storage.ObjectInfo{Key: key, Size: int64(len(data)), URL: "http://storage.local/" + key}, nil
}

func (f *fakeStorage) Get(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error) {
	f.mu.Lock()
	data, ok := f.objects[key]
	f.mu.Unlock()
	if !ok {
		return nil, storage.ObjectInfo{}, fmt.Errorf("object not found: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), storage.ObjectInfo{Size: int64(len(data))}, nil
}

func (f *fakeStorage) Delete(ctx context.Context, key string) error {
	if f.delErr != nil {
		return f.delErr
	}
	f.mu.Lock()
	delete(f.objects, key)
	f.mu.Unlock()
	return nil
}

func (f *fakeStorage) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "http://storage.local/" + key, nil
}

func (f *fakeStorage) has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok
}

// fakePortal 评审门户替身
type fakePortal struct {
	mu        sync.Mutex
	submitted []*model.SubmissionRecord
	err       error
}

func (f *fakePortal) CreateSubmission(ctx context.Context, record *model.SubmissionRecord) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, record)
	n := len(f.submitted)
	f.mu.Unlock()
	return fmt.Sprintf("portal-%d", n), nil
}

func (f *fakePortal) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.submitted)
}
