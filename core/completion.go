package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"notebooker/models"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrInvalidRequest 非法请求参数，直接拒绝，不会发往上游
var ErrInvalidRequest = errors.New("invalid completion request")

// FailureKind 单次尝试的失败分类
type FailureKind int

const (
	FailureAuth     FailureKind = iota // 401，凭证无效
	FailureProvider                    // 其他非 200 状态码
	FailureNetwork                     // 超时/DNS/连接中断
	FailureProtocol                    // 200 但响应体无法解析
)

func (k FailureKind) String() string {
	switch k {
	case FailureAuth:
		return "auth_error"
	case FailureProvider:
		return "provider_error"
	case FailureNetwork:
		return "network_error"
	case FailureProtocol:
		return "protocol_error"
	default:
		return "unknown_error"
	}
}

// AttemptError 单次上游调用的失败结果
type AttemptError struct {
	Kind   FailureKind
	Status int
	Detail string
}

func (e *AttemptError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// CompletionRequest 一次文本生成请求，按调用创建，不落库
type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// CompletionClient 对上游 chat-completions 接口的单次调用
// 不做任何重试——重试与兜底策略完全属于 Dispatcher
type CompletionClient interface {
	Complete(ctx context.Context, credential, model string, req CompletionRequest, timeout time.Duration) (string, error)
}

// OpenRouterClient OpenRouter chat-completions 客户端
type OpenRouterClient struct {
	baseURL          string
	referer          string
	title            string
	maxTokensCeiling int
	client           *http.Client
	logger           *logrus.Logger
}

// NewOpenRouterClient 创建客户端
// 不设置全局超时，单次调用的超时由 Complete 的 Context 控制
func NewOpenRouterClient(baseURL string, maxTokensCeiling int, logger *logrus.Logger) *OpenRouterClient {
	return &OpenRouterClient{
		baseURL:          strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		referer:          "https://notebooker.app",
		title:            "Notebooker",
		maxTokensCeiling: maxTokensCeiling,
		logger:           logger,
		client: &http.Client{
			Timeout: 0,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				ForceAttemptHTTP2:     true,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: 1 * time.Second,
				ResponseHeaderTimeout: 60 * time.Second,
			},
		},
	}
}

// Complete 执行恰好一次上游调用并对结果分类
//   - 200 且响应体至少含一个 choice → 成功，返回去除首尾空白的内容
//   - 401 → FailureAuth（凭证坏了，调度器据此只换凭证不换模型）
//   - 其他非 200 → FailureProvider，附状态码与响应体节选
//   - 传输层错误 → FailureNetwork
//   - 200 但解析失败 → FailureProtocol
func (c *OpenRouterClient) Complete(ctx context.Context, credential, model string, req CompletionRequest, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		return "", fmt.Errorf("%w: timeout must be positive", ErrInvalidRequest)
	}
	if req.MaxTokens <= 0 || req.MaxTokens > c.maxTokensCeiling {
		return "", fmt.Errorf("%w: max_tokens must be in (0, %d]", ErrInvalidRequest, c.maxTokensCeiling)
	}

	payload := models.ChatCompletionRequest{
		Model: model,
		Messages: []models.ChatMessage{
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", &AttemptError{Kind: FailureProtocol, Detail: "marshal request: " + err.Error()}
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", &AttemptError{Kind: FailureNetwork, Detail: err.Error()}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+credential)
	httpReq.Header.Set("HTTP-Referer", c.referer)
	httpReq.Header.Set("X-Title", c.title)
	httpReq.Header.Set("User-Agent", "Notebooker/2.0")

	c.logger.Debugf("POST %s/chat/completions model=%s max_tokens=%d", c.baseURL, model, req.MaxTokens)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", &AttemptError{Kind: FailureNetwork, Detail: err.Error()}
	}
	defer resp.Body.Close()

	// 限制读取长度，防御异常膨胀的响应体
	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &AttemptError{Kind: FailureNetwork, Detail: "read response: " + err.Error()}
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		var completion models.ChatCompletionResponse
		if err := json.Unmarshal(respBody, &completion); err != nil {
			return "", &AttemptError{Kind: FailureProtocol, Detail: "unmarshal response: " + err.Error()}
		}
		if len(completion.Choices) == 0 {
			return "", &AttemptError{Kind: FailureProtocol, Detail: "response has no choices"}
		}
		return strings.TrimSpace(completion.Choices[0].Message.Content), nil

	case resp.StatusCode == http.StatusUnauthorized:
		return "", &AttemptError{Kind: FailureAuth, Status: 401, Detail: bodyExcerpt(respBody)}

	default:
		return "", &AttemptError{Kind: FailureProvider, Status: resp.StatusCode, Detail: bodyExcerpt(respBody)}
	}
}

// bodyExcerpt 截取响应体前 200 字节用于日志和错误详情
func bodyExcerpt(body []byte) string {
	s := string(body)
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
