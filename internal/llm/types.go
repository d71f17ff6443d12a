package llm

// 消息角色，与 model 包中的存储角色一致，另外多了工具结果
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message 发给模型的一轮对话
type Message struct {
	Role       string
	Content    string
	Images     []Image    // 仅 user 消息使用
	ToolCalls  []ToolCall // assistant 发起的工具调用
	ToolCallID string     // tool 消息对应的调用
	Name       string     // tool 消息对应的函数名
}

// Image 内联图片
type Image struct {
	MIMEType string
	Data     []byte
}

// Tool 可供模型调用的函数
// Parameters 是 JSON Schema
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// ToolCall 模型请求的一次函数调用
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]interface{}
}

// Request 一次模型调用
type Request struct {
	Model       string
	Messages    []Message
	Tools       []Tool
	Temperature float64
	MaxTokens   int
}

// Response 模型的完整响应
type Response struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Model        string
	TokensUsed   int
}

// StreamChunk 流式输出的一个增量
type StreamChunk struct {
	Delta        string
	FinishReason string
}
