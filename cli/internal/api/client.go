// Package api 封装与网关的 HTTP API 交互
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// 各类请求的超时时间
const (
	DefaultTimeout = 30 * time.Second
	ChatTimeout    = 100 * time.Second
	ImageTimeout   = 120 * time.Second
	CSVTimeout     = 120 * time.Second
)

// Client API 客户端
// baseURL: 例如 http://localhost:8000
// token: 网关开启认证时使用的 Bearer Token，可以为空
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient 创建 API 客户端
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// APIResponse 通用响应
type APIResponse struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// APIError 网关返回的错误
type APIError struct {
	Status  int    // HTTP 状态码
	Code    int    // 业务状态码
	Message string // 错误信息
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("API 错误: HTTP %d", e.Status)
	}
	return fmt.Sprintf("API 错误 (HTTP %d): %s", e.Status, e.Message)
}

// IsNotFound 判断是否为 404
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// IsUnauthorized 判断是否为 401
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

// --- 健康检查 ---

// Health 健康检查结果
type Health struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

// Health 查询网关健康状态
// 依赖不可用时网关返回 503，此时仍然返回已解析的结果
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	var apiResp APIResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, decodeError(resp.StatusCode, body)
	}
	var health Health
	if len(apiResp.Data) == 0 || json.Unmarshal(apiResp.Data, &health) != nil || health.Status == "" {
		return nil, decodeError(resp.StatusCode, body)
	}
	return &health, nil
}

// --- 认证 ---

// TokenResponse Token 响应
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

// IssueToken 使用访问密钥换取 Token
func (c *Client) IssueToken(ctx context.Context, accessKey, clientID string) (*TokenResponse, error) {
	body := map[string]string{
		"access_key": accessKey,
		"client_id":  clientID,
	}
	var result TokenResponse
	if err := c.call(ctx, http.MethodPost, "/api/v1/auth/token", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Logout 让当前 Token 失效
func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/api/v1/auth/logout", nil, nil)
}

// --- 会话 ---

// Session 会话
type Session struct {
	SessionID string    `json:"session_id"`
	Name      string    `json:"name"`
	Mode      string    `json:"mode"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// ListSessions 获取会话列表，按创建时间倒序
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := c.call(ctx, http.MethodGet, "/api/v1/sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// SessionDetail 单个会话的信息
type SessionDetail struct {
	SessionID    string    `json:"session_id"`
	Name         string    `json:"name"`
	Mode         string    `json:"mode"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int64     `json:"message_count"`
}

// GetSession 获取单个会话，不存在时返回 404 错误
func (c *Client) GetSession(ctx context.Context, sessionID string) (*SessionDetail, error) {
	var detail SessionDetail
	if err := c.call(ctx, http.MethodGet, "/api/v1/sessions/"+url.PathEscape(sessionID), nil, &detail); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CreateSession 创建会话，sessionID 为空时由网关生成
func (c *Client) CreateSession(ctx context.Context, sessionID, name, mode string) (*Session, error) {
	body := map[string]string{
		"session_id": sessionID,
		"name":       name,
		"mode":       mode,
	}
	var session Session
	if err := c.call(ctx, http.MethodPost, "/api/v1/sessions", body, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// DeleteSession 删除会话及其消息、文件
func (c *Client) DeleteSession(ctx context.Context, sessionID string) error {
	return c.call(ctx, http.MethodDelete, "/api/v1/sessions/"+url.PathEscape(sessionID), nil, nil)
}

// --- 消息 ---

// Message 会话消息
type Message struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	Role        string    `json:"role"`
	Content     string    `json:"content"`
	MessageType string    `json:"message_type"`
	Timestamp   time.Time `json:"timestamp"`
}

// GetMessages 获取会话消息，按时间正序
func (c *Client) GetMessages(ctx context.Context, sessionID string) ([]Message, error) {
	var messages []Message
	path := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/messages"
	if err := c.call(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// GetRecentMessages 获取会话最新的 limit 条消息，按时间正序
func (c *Client) GetRecentMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	var messages []Message
	path := fmt.Sprintf("/api/v1/sessions/%s/messages?limit=%d", url.PathEscape(sessionID), limit)
	if err := c.call(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// AddMessage 向会话追加一条消息
func (c *Client) AddMessage(ctx context.Context, sessionID, role, content, messageType string) (*Message, error) {
	body := map[string]interface{}{
		"role":         role,
		"content":      content,
		"message_type": messageType,
		"timestamp":    time.Now().UTC(),
	}
	var message Message
	path := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/messages"
	if err := c.call(ctx, http.MethodPost, path, body, &message); err != nil {
		return nil, err
	}
	return &message, nil
}

// --- 文件 ---

// SessionFile 会话文件
type SessionFile struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	FileType  string          `json:"file_type"`
	FileName  *string         `json:"file_name,omitempty"`
	FileData  json.RawMessage `json:"file_data"`
	CreatedAt time.Time       `json:"created_at"`
}

// SaveFile 保存会话文件，data 会被编码为 JSON 对象
func (c *Client) SaveFile(ctx context.Context, sessionID, fileType, fileName string, data interface{}) (*SessionFile, error) {
	body := map[string]interface{}{
		"file_type": fileType,
		"file_data": data,
	}
	if fileName != "" {
		body["file_name"] = fileName
	}
	var file SessionFile
	path := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/files"
	if err := c.call(ctx, http.MethodPost, path, body, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// GetFile 获取会话中某类型的最新文件
func (c *Client) GetFile(ctx context.Context, sessionID, fileType string) (*SessionFile, error) {
	var file SessionFile
	path := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/files/" + url.PathEscape(fileType)
	if err := c.call(ctx, http.MethodGet, path, nil, &file); err != nil {
		return nil, err
	}
	return &file, nil
}

// DeleteFile 删除会话中某类型的全部文件
func (c *Client) DeleteFile(ctx context.Context, sessionID, fileType string) error {
	path := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/files/" + url.PathEscape(fileType)
	return c.call(ctx, http.MethodDelete, path, nil, nil)
}

// --- CSV 分析 ---

// Plot plotly 图表
type Plot struct {
	Data   json.RawMessage `json:"data"`
	Layout json.RawMessage `json:"layout"`
}

// CSVResult CSV 分析结果
type CSVResult struct {
	Content string `json:"content"`
	Plots   []Plot `json:"plots"`
}

// AnalyzeCSV 发送 CSV 分析请求
// csvData 为完整的 CSV 文本，大文件只有元数据时传空字符串
func (c *Client) AnalyzeCSV(ctx context.Context, enhancedQuery, csvData, sessionID string) (*CSVResult, error) {
	ctx, cancel := context.WithTimeout(ctx, CSVTimeout)
	defer cancel()

	body := map[string]string{
		"enhanced_query": enhancedQuery,
		"csv_data":       csvData,
		"session_id":     sessionID,
	}
	var result CSVResult
	if err := c.call(ctx, http.MethodPost, "/api/v1/ai/chat/csv", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPlots 获取会话最近一次分析的图表
func (c *Client) GetPlots(ctx context.Context, sessionID string) ([]Plot, error) {
	var plots []Plot
	path := "/api/v1/sessions/" + url.PathEscape(sessionID) + "/plots"
	if err := c.call(ctx, http.MethodGet, path, nil, &plots); err != nil {
		return nil, err
	}
	return plots, nil
}

// --- 通用请求封装 ---

// call 发送请求并把 data 解析到 out，out 为 nil 时忽略 data
// ctx 没有截止时间时使用 DefaultTimeout
func (c *Client) call(ctx context.Context, method, path string, body, out interface{}) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultTimeout)
		defer cancel()
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("解析响应数据失败: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(jsonBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (*APIResponse, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, decodeError(resp.StatusCode, respBody)
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}
	if apiResp.Code != 0 {
		return nil, &APIError{Status: resp.StatusCode, Code: apiResp.Code, Message: apiResp.Message}
	}
	return &apiResp, nil
}

// decodeError 从错误响应体中取出业务状态码和错误信息
func decodeError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	var apiResp APIResponse
	if err := json.Unmarshal(body, &apiResp); err == nil {
		apiErr.Code = apiResp.Code
		apiErr.Message = apiResp.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
