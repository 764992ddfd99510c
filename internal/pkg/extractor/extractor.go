package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"k8s.io/klog/v2"

	"github.com/complyon/backend/config"
	"github.com/complyon/backend/internal/domain"
)

// ExtractedQuestion 抽取服务返回的单个问题
type ExtractedQuestion struct {
	Text                string `json:"text"`
	RequiresDocument    bool   `json:"requires_document"`
	DocumentDescription string `json:"document_description"`
	Category            string `json:"category"`
}

// Service 清单抽取服务契约：上传文件，返回有序问题列表
type Service interface {
	Extract(ctx context.Context, filename string, file io.Reader) ([]ExtractedQuestion, error)
}

// Client 抽取服务 HTTP 客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Extractor.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Extractor.Timeout,
		},
	}
}

// Extract 上传清单文件并取回抽取出的问题列表
func (c *Client) Extract(ctx context.Context, filename string, file io.Reader) ([]ExtractedQuestion, error) {
	klog.V(6).Infof("清单抽取请求: filename=%s", filename)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("failed to copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/extract", &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &domain.NetworkFailure{Op: "extract", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &domain.NetworkFailure{Op: "extract", Err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, &domain.NetworkFailure{Op: "extract", Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))}
	}

	var parsed struct {
		Questions []ExtractedQuestion `json:"questions"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("failed to unmarshal extraction response: %w", err)
	}

	klog.V(6).Infof("清单抽取完成: filename=%s, questions=%d", filename, len(parsed.Questions))
	return parsed.Questions, nil
}
