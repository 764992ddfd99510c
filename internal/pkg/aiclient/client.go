package aiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"k8s.io/klog/v2"

	"github.com/complyon/backend/config"
	"github.com/complyon/backend/internal/domain"
	"github.com/complyon/backend/internal/utils"
)

const answerSystemPrompt = `You are a compliance analyst answering security questionnaire items on behalf of a vendor.
Answer the question concisely and factually based on the provided context.
Respond with a single JSON object: {"answer": "<answer text>", "confidence": <number between 0 and 1>}.
Do not include any text outside the JSON object.`

// Client 外部 AI 答案服务客户端
// 单问生成走 ChatModel，批量任务走专用的 job 接口
type Client struct {
	chatModel    model.ToolCallingChatModel
	batchBaseURL string
	httpClient   *http.Client
}

// NewClient 创建答案服务客户端
func NewClient(cfg *config.Config) (*Client, error) {
	klog.V(6).Infof("创建 AI 答案客户端: model=%s, baseURL=%s", cfg.AI.Model, cfg.AI.APIURL)

	mcfg := &openai.ChatModelConfig{
		APIKey: cfg.AI.APIKey,
		Model:  cfg.AI.Model,
	}
	if cfg.AI.APIURL != "" {
		mcfg.BaseURL = cfg.AI.APIURL
	}
	if cfg.AI.MaxTokens > 0 {
		maxTokens := cfg.AI.MaxTokens
		mcfg.MaxTokens = &maxTokens
	}

	chatModel, err := openai.NewChatModel(context.Background(), mcfg)
	if err != nil {
		klog.Errorf("创建 ChatModel 失败: %v", err)
		return nil, err
	}

	batchBaseURL := cfg.AI.BatchBaseURL
	if batchBaseURL == "" {
		batchBaseURL = cfg.AI.APIURL
	}

	return &Client{
		chatModel:    chatModel,
		batchBaseURL: strings.TrimRight(batchBaseURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}, nil
}

// Generate 同步生成单个问题的答案
func (c *Client) Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error) {
	klog.V(6).Infof("单问生成请求: questionID=%d, contextLength=%d", req.QuestionID, len(req.Context))

	userPrompt := req.Question
	if req.Context != "" {
		userPrompt = fmt.Sprintf("Context:\n%s\n\nQuestion:\n%s", req.Context, req.Question)
	}

	resp, err := c.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(answerSystemPrompt),
		schema.UserMessage(userPrompt),
	})
	if err != nil {
		return nil, &domain.NetworkFailure{Op: "generate", Err: err}
	}

	var result GenerationResult
	if err := json.Unmarshal([]byte(utils.ExtractJSON(resp.Content)), &result); err != nil {
		return nil, fmt.Errorf("解析生成结果失败: %w", err)
	}
	if result.Answer == "" {
		return nil, fmt.Errorf("生成结果缺少答案内容")
	}
	if result.Confidence < 0 {
		result.Confidence = 0
	}
	if result.Confidence > 1 {
		result.Confidence = 1
	}

	klog.V(6).Infof("单问生成完成: questionID=%d, answerLength=%d, confidence=%.2f",
		req.QuestionID, len(result.Answer), result.Confidence)
	return &result, nil
}

// GenerateBatch 提交批量生成任务，返回任务句柄
func (c *Client) GenerateBatch(ctx context.Context, req BatchRequest) (string, error) {
	klog.V(6).Infof("批量生成请求: questions=%d", len(req.Questions))

	var resp struct {
		JobID string `json:"job_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, c.batchBaseURL+"/batch", req, &resp); err != nil {
		return "", &domain.NetworkFailure{Op: "generateBatch", Err: err}
	}
	if resp.JobID == "" {
		return "", &domain.NetworkFailure{Op: "generateBatch", Err: fmt.Errorf("batch service returned empty job id")}
	}

	klog.V(6).Infof("批量任务已提交: jobID=%s", resp.JobID)
	return resp.JobID, nil
}

// PollBatch 查询批量任务中每个问题的状态
func (c *Client) PollBatch(ctx context.Context, jobID string) ([]BatchItemStatus, error) {
	var resp struct {
		Items []BatchItemStatus `json:"items"`
	}
	if err := c.doJSON(ctx, http.MethodGet, c.batchBaseURL+"/batch/"+jobID, nil, &resp); err != nil {
		return nil, &domain.NetworkFailure{Op: "pollStatus", Err: err}
	}
	return resp.Items, nil
}

func (c *Client) doJSON(ctx context.Context, method, url string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(data))
	}

	if err := json.Unmarshal(data, respBody); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
