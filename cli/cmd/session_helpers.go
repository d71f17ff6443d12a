package cmd

import (
	"context"
	"strings"
	"unicode/utf8"

	"chat-gateway/cli/internal/api"
	"chat-gateway/cli/internal/config"
	"chat-gateway/cli/internal/render"
)

// 会话模式
const (
	modeText  = "text"
	modeImage = "image"
	modeCSV   = "csv"
)

// sessionName 按首条消息生成会话名称
func sessionName(mode, input string) string {
	input = strings.TrimSpace(input)
	switch mode {
	case modeImage:
		return "Image: " + truncate(input, 30) + "..."
	case modeCSV:
		return "CSV: " + truncate(input, 30) + "..."
	}
	if input == "" {
		return "New Chat"
	}
	if utf8.RuneCountInString(input) > 40 {
		return truncate(input, 40) + "…"
	}
	return input
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// resolveSession 确定本次对话使用的会话
// 优先使用 --session，其次是当前会话；都没有时创建新会话并设为当前会话
// 参数:
//   - forceNew: 忽略当前会话，总是创建新会话
//
// 返回:
//   - string: 会话 ID
//   - bool: 是否新建
func resolveSession(ctx context.Context, client *api.Client, mode, firstInput string, forceNew bool) (string, bool, error) {
	if id := sessionFlag(); id != "" && !forceNew {
		return id, false, nil
	}
	if id := config.GetCurrentSession(); id != "" && !forceNew {
		return id, false, nil
	}

	session, err := client.CreateSession(ctx, "", sessionName(mode, firstInput), mode)
	if err != nil {
		return "", false, explain(err)
	}
	if sessionFlag() == "" {
		if err := config.SaveCurrentSession(session.SessionID); err != nil {
			render.Warnf("保存当前会话失败: %v", err)
		}
	}
	return session.SessionID, true, nil
}

// loadHistory 读取会话历史，会话不存在时返回空
func loadHistory(ctx context.Context, client *api.Client, sessionID string) ([]api.Message, error) {
	messages, err := client.GetMessages(ctx, sessionID)
	if err != nil {
		if api.IsNotFound(err) {
			return nil, nil
		}
		return nil, explain(err)
	}
	return messages, nil
}

// sessionHistory 新建的会话没有历史，不再请求
func sessionHistory(ctx context.Context, client *api.Client, sessionID string, created bool) ([]api.Message, error) {
	if created {
		return nil, nil
	}
	return loadHistory(ctx, client, sessionID)
}

// recentHistory 只读取最新的 limit 条消息，会话不存在时返回空
func recentHistory(ctx context.Context, client *api.Client, sessionID string, created bool, limit int) ([]api.Message, error) {
	if created {
		return nil, nil
	}
	messages, err := client.GetRecentMessages(ctx, sessionID, limit)
	if err != nil {
		if api.IsNotFound(err) {
			return nil, nil
		}
		return nil, explain(err)
	}
	return messages, nil
}

// toChatHistory 转换为模型需要的历史格式
func toChatHistory(messages []api.Message) []api.ChatMessage {
	history := make([]api.ChatMessage, 0, len(messages))
	for _, m := range messages {
		history = append(history, api.ChatMessage{Role: m.Role, Content: m.Content})
	}
	return history
}

// persistTurn 保存一轮对话，失败只提示不中断
func persistTurn(ctx context.Context, client *api.Client, sessionID, userInput, answer, messageType string) {
	if _, err := client.AddMessage(ctx, sessionID, "user", userInput, messageType); err != nil {
		render.Warnf("保存用户消息失败: %v", err)
		return
	}
	if _, err := client.AddMessage(ctx, sessionID, "assistant", answer, "text"); err != nil {
		render.Warnf("保存回复失败: %v", err)
	}
}
