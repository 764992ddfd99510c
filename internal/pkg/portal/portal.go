package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"k8s.io/klog/v2"

	"github.com/complyon/backend/config"
	"github.com/complyon/backend/internal/domain"
	"github.com/complyon/backend/internal/model"
)

// Service 评审门户契约：创建一条提交，返回门户侧ID
type Service interface {
	CreateSubmission(ctx context.Context, record *model.SubmissionRecord) (string, error)
}

// Client 评审门户 HTTP 客户端
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.Portal.BaseURL, "/"),
		apiKey:  cfg.Portal.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Portal.Timeout,
		},
	}
}

// CreateSubmission 推送提交快照到门户
func (c *Client) CreateSubmission(ctx context.Context, record *model.SubmissionRecord) (string, error) {
	klog.V(6).Infof("门户提交请求: reference=%s, title=%s, followUp=%v", record.Reference, record.Title, record.IsFollowUp)

	payload := map[string]any{
		"reference":        record.Reference,
		"title":            record.Title,
		"content":          record.Content,
		"is_follow_up":     record.IsFollowUp,
		"follow_up_type":   record.FollowUpType,
		"follow_up_reason": record.FollowUpReason,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal submission: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/submissions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &domain.NetworkFailure{Op: "createSubmission", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.NetworkFailure{Op: "createSubmission", Err: err}
	}
	if resp.StatusCode >= 400 {
		return "", &domain.NetworkFailure{Op: "createSubmission", Err: fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))}
	}

	var parsed struct {
		PortalID string `json:"portal_id"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal portal response: %w", err)
	}

	klog.V(6).Infof("门户提交完成: reference=%s, portalID=%s", record.Reference, parsed.PortalID)
	return parsed.PortalID, nil
}
