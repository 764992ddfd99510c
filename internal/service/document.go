package service

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/complyon/backend/internal/domain"
	"github.com/complyon/backend/internal/eventbus"
	"github.com/complyon/backend/internal/model"
	"github.com/complyon/backend/internal/pkg/storage"
	"github.com/complyon/backend/internal/repository"
)

// DocumentService 负责证据文件：对象存储写入、元数据记录、事件广播
type DocumentService struct {
	docRepo      repository.DocumentRepository
	questionRepo repository.QuestionRepository
	store        storage.Storage
	evidenceBus  *eventbus.EvidenceEventBus
}

func NewDocumentService(
	docRepo repository.DocumentRepository,
	questionRepo repository.QuestionRepository,
	store storage.Storage,
	evidenceBus *eventbus.EvidenceEventBus,
) *DocumentService {
	return &DocumentService{
		docRepo:      docRepo,
		questionRepo: questionRepo,
		store:        store,
		evidenceBus:  evidenceBus,
	}
}

// Upload 上传证据文件并挂接到问题（questionID 为空时为厂商级通用文件）
// 先写对象存储再写记录，保证记录存在时对象一定可取
func (s *DocumentService) Upload(ctx context.Context, vendorID uint, questionID *uint, filename, contentType string, size int64, r io.Reader) (*model.SupportingDocument, error) {
	if vendorID == 0 {
		return nil, &domain.ValidationFailure{Field: "vendor", Reason: "vendor is required"}
	}
	if strings.TrimSpace(filename) == "" {
		return nil, &domain.ValidationFailure{Field: "filename", Reason: "filename is required"}
	}
	if questionID != nil {
		if _, err := s.questionRepo.Get(*questionID); err != nil {
			return nil, fmt.Errorf("获取挂接问题失败: %w", err)
		}
	}

	key := fmt.Sprintf("evidence/%d/%s%s", vendorID, uuid.NewString(), path.Ext(filename))
	info, err := s.store.Put(ctx, key, r, storage.PutOptions{Size: size, ContentType: contentType})
	if err != nil {
		return nil, fmt.Errorf("写入对象存储失败: %w", err)
	}

	doc := &model.SupportingDocument{
		VendorID:    vendorID,
		QuestionID:  questionID,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		StorageKey:  key,
		StorageURL:  info.URL,
	}
	if err := s.docRepo.Create(doc); err != nil {
		// 记录失败时回收已写入的对象，避免悬空
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			klog.Warningf("回收存储对象失败: key=%s, error=%v", key, delErr)
		}
		return nil, fmt.Errorf("创建文件记录失败: %w", err)
	}

	s.publish(ctx, eventbus.EvidenceEventUploaded, doc)
	klog.V(6).Infof("证据文件已上传: documentID=%d, question=%v, key=%s", doc.ID, questionID, key)
	return doc, nil
}

// Delete 删除证据文件
// 对象与记录都删除成功后才发事件，订阅方看到事件时删除已经生效
func (s *DocumentService) Delete(ctx context.Context, documentID uint) error {
	doc, err := s.docRepo.Get(documentID)
	if err != nil {
		return fmt.Errorf("获取文件记录失败: %w", err)
	}

	if err := s.store.Delete(ctx, doc.StorageKey); err != nil {
		return fmt.Errorf("删除存储对象失败: %w", err)
	}
	if err := s.docRepo.Delete(documentID); err != nil {
		return fmt.Errorf("删除文件记录失败: %w", err)
	}

	s.publish(ctx, eventbus.EvidenceEventDeleted, doc)
	klog.V(6).Infof("证据文件已删除: documentID=%d, key=%s", documentID, doc.StorageKey)
	return nil
}

func (s *DocumentService) Get(id uint) (*model.SupportingDocument, error) {
	return s.docRepo.Get(id)
}

func (s *DocumentService) GetByQuestion(questionID uint) ([]model.SupportingDocument, error) {
	return s.docRepo.GetByQuestion(questionID)
}

func (s *DocumentService) GetByVendor(vendorID uint) ([]model.SupportingDocument, error) {
	return s.docRepo.GetByVendor(vendorID)
}

// DownloadURL 生成限时下载链接
func (s *DocumentService) DownloadURL(ctx context.Context, documentID uint, expiry time.Duration) (string, error) {
	doc, err := s.docRepo.Get(documentID)
	if err != nil {
		return "", fmt.Errorf("获取文件记录失败: %w", err)
	}
	url, err := s.store.PresignGet(ctx, doc.StorageKey, expiry)
	if err != nil {
		return "", fmt.Errorf("生成下载链接失败: %w", err)
	}
	return url, nil
}

func (s *DocumentService) publish(ctx context.Context, eventType eventbus.EvidenceEventType, doc *model.SupportingDocument) {
	if s.evidenceBus == nil {
		return
	}
	if err := s.evidenceBus.Publish(ctx, eventType, eventbus.EvidenceEvent{
		Type:       eventType,
		DocumentID: doc.ID,
		QuestionID: doc.QuestionID,
		VendorID:   doc.VendorID,
	}); err != nil {
		klog.Errorf("发布证据事件失败: documentID=%d, type=%s, error=%v", doc.ID, eventType, err)
	}
}
