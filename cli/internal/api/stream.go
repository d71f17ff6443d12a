package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

// ChatMessage 历史消息
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// DeltaFunc 收到一段增量文本时调用
type DeltaFunc func(delta string)

// StreamChat 文本对话，增量写给 onDelta，返回完整回复
func (c *Client) StreamChat(ctx context.Context, userInput string, history []ChatMessage, onDelta DeltaFunc) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ChatTimeout)
	defer cancel()

	body := map[string]interface{}{
		"user_input":   userInput,
		"chat_history": nonNil(history),
	}
	return c.stream(ctx, "/api/v1/ai/chat", body, onDelta)
}

// StreamImageChat 图片对话，imageData 为 base64 编码的图片
func (c *Client) StreamImageChat(ctx context.Context, userInput, imageData string, history []ChatMessage, onDelta DeltaFunc) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ImageTimeout)
	defer cancel()

	body := map[string]interface{}{
		"user_input":   userInput,
		"image_data":   imageData,
		"chat_history": nonNil(history),
	}
	return c.stream(ctx, "/api/v1/ai/chat/image", body, onDelta)
}

// stream 读取 text/plain 分块响应
// 第一个分块之前的错误是 JSON 包装，直接返回 APIError
func (c *Client) stream(ctx context.Context, path string, body interface{}, onDelta DeltaFunc) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/plain")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", decodeError(resp.StatusCode, respBody)
	}

	var (
		full    strings.Builder
		pending []byte
		buf     = make([]byte, 4096)
	)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			// 分块可能截断多字节字符，只输出完整的部分
			pending = append(pending, buf[:n]...)
			cut := validPrefix(pending)
			if cut > 0 {
				delta := string(pending[:cut])
				pending = append(pending[:0], pending[cut:]...)
				full.WriteString(delta)
				if onDelta != nil {
					onDelta(delta)
				}
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return full.String(), fmt.Errorf("读取流式响应失败: %w", readErr)
		}
	}
	if len(pending) > 0 {
		full.Write(pending)
		if onDelta != nil {
			onDelta(string(pending))
		}
	}
	return full.String(), nil
}

// validPrefix 返回 b 中以完整 UTF-8 字符结尾的最长前缀长度
func validPrefix(b []byte) int {
	end := len(b)
	// 一个 UTF-8 字符最多 4 字节，只需检查末尾 3 字节
	for i := 1; i <= 3 && i <= len(b); i++ {
		c := b[len(b)-i]
		if c < utf8.RuneSelf {
			break
		}
		if utf8.RuneStart(c) {
			if !utf8.FullRune(b[len(b)-i:]) {
				end = len(b) - i
			}
			break
		}
	}
	return end
}

func nonNil(history []ChatMessage) []ChatMessage {
	if history == nil {
		return []ChatMessage{}
	}
	return history
}
