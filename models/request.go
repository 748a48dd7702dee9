package models

import "time"

// ChatCompletionRequest 发往上游 chat-completions 接口的请求体
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

// ChatMessage 聊天消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionResponse 上游 chat-completions 响应
// 显式类型化，字段缺失按协议错误处理，不做动态取值
type ChatCompletionResponse struct {
	ID      string                 `json:"id"`
	Object  string                 `json:"object"`
	Created int64                  `json:"created"`
	Model   string                 `json:"model"`
	Choices []ChatCompletionChoice `json:"choices"`
	Usage   *ChatCompletionUsage   `json:"usage,omitempty"`
}

// ChatCompletionChoice 响应中的一个候选
type ChatCompletionChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// ChatCompletionUsage token 用量统计
type ChatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail 错误详情
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Models    int    `json:"models"`
	Timestamp int64  `json:"timestamp"`
}

// --- 认证相关 ---

// RegisterRequest 注册请求
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse 注册/登录成功响应
type AuthResponse struct {
	UserID       uint   `json:"user_id"`
	Username     string `json:"username"`
	SessionToken string `json:"session_token"`
}

// --- 笔记本相关 ---

// SectionRequest 创建/更新章节请求
type SectionRequest struct {
	Name    string   `json:"name" binding:"required"`
	Title   string   `json:"title"`
	Content string   `json:"content"`
	Tags    []string `json:"tags"`
}

// DraftRequest 起草章节的用户输入（原 planning 表单字段）
type DraftRequest struct {
	Title            string `json:"title"`
	Overview         string `json:"overview"`
	TechnicalDetails string `json:"technical_details"`
	Implementation   string `json:"implementation"`
	Testing          string `json:"testing"`
	Results          string `json:"results"`
	Improvements     string `json:"improvements"`
	Tags             string `json:"tags"`
	Comment          string `json:"comment"`
}

// RewriteRequest 重写章节请求
type RewriteRequest struct {
	Focus string `json:"improvement_focus"`
}

// AnalyzeContentRequest 内容分析请求
type AnalyzeContentRequest struct {
	Content string `json:"content" binding:"required"`
}

// PlanningUpdateRequest 更新规划表请求
type PlanningUpdateRequest struct {
	SectionName string   `json:"section_name" binding:"required"`
	Status      string   `json:"status" binding:"omitempty,oneof=draft in_review final"`
	Content     string   `json:"content"`
	Questions   []string `json:"questions"`
	Decisions   []string `json:"decisions"`
}

// ProjectRequest 创建/更新项目请求
type ProjectRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

// SwitchModelRequest 切换模型请求
type SwitchModelRequest struct {
	ModelIndex int `json:"model_index"`
}

// UserStats 用户统计概览
type UserStats struct {
	SectionsCount     int64 `json:"sections_count"`
	PlanningCount     int64 `json:"planning_sections_count"`
	InteractionsCount int64 `json:"llm_interactions_count"`
	TotalTokensUsed   int64 `json:"total_tokens_used"`
	DegradedCount     int64 `json:"degraded_responses"`
}

// APIResponse 通用API响应
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(message string, data interface{}) *APIResponse {
	return &APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(message string) *APIResponse {
	return &APIResponse{
		Success:   false,
		Message:   message,
		Timestamp: time.Now().Unix(),
	}
}

// MaskAPIKey 脱敏API Key
func MaskAPIKey(key string) string {
	if key == "" {
		return "***"
	}

	if len(key) <= 4 {
		return key[:1] + "***"
	}

	if len(key) <= 8 {
		return key[:2] + "***" + key[len(key)-2:]
	}

	return key[:3] + "***" + key[len(key)-4:]
}
