package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"chat-gateway/cli/internal/api"
	"chat-gateway/cli/internal/config"
	"chat-gateway/cli/internal/render"
	"chat-gateway/cli/internal/websocket"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "文本对话",
	Long: `与模型进行文本对话，回复以流式输出。

带消息参数时只问一次；不带参数时进入交互模式，输入 /exit 退出，/new 开始新会话。
用户消息和回复都会保存到会话中。--ws 通过 WebSocket 连接对话，交互模式下复用同一连接。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		forceNew, _ := cmd.Flags().GetBool("new")
		useWS, _ := cmd.Flags().GetBool("ws")

		ask, closeFn, err := newAnswerer(ctx, useWS)
		if err != nil {
			return err
		}
		defer closeFn()

		if len(args) == 0 {
			return runInteractiveChatWith(ctx, ask, forceNew)
		}
		return runSingleChat(ctx, ask, strings.Join(args, " "), forceNew)
	},
}

func init() {
	chatCmd.Flags().BoolP("new", "n", false, "在新会话中对话")
	chatCmd.Flags().Bool("ws", false, "通过 WebSocket 流式对话")
	rootCmd.AddCommand(chatCmd)
}

// answerFunc 发送一次文本对话，增量写给 onDelta
type answerFunc func(ctx context.Context, input string, history []api.ChatMessage, onDelta func(string)) (string, error)

// newAnswerer 选择 HTTP 流式接口或 WebSocket
func newAnswerer(ctx context.Context, useWS bool) (answerFunc, func(), error) {
	if !useWS {
		client := newClient()
		return func(ctx context.Context, input string, history []api.ChatMessage, onDelta func(string)) (string, error) {
			return client.StreamChat(ctx, input, history, onDelta)
		}, func() {}, nil
	}

	conn, err := websocket.Dial(ctx, websocket.BuildURL(config.Get().Server.WSURL, config.GetToken()))
	if err != nil {
		return nil, nil, err
	}
	return func(ctx context.Context, input string, history []api.ChatMessage, onDelta func(string)) (string, error) {
		req := &websocket.ChatRequest{Mode: modeText, UserInput: input}
		for _, m := range history {
			req.ChatHistory = append(req.ChatHistory, websocket.ChatMessage{Role: m.Role, Content: m.Content})
		}
		return conn.Chat(ctx, req, onDelta)
	}, conn.Close, nil
}

// runSingleChat 发送一条消息并保存这一轮对话
func runSingleChat(ctx context.Context, ask answerFunc, input string, forceNew bool) error {
	input = strings.TrimSpace(input)
	if input == "" {
		return fmt.Errorf("消息不能为空")
	}

	client := newClient()
	sessionID, created, err := resolveSession(ctx, client, modeText, input, forceNew)
	if err != nil {
		return err
	}

	history, err := sessionHistory(ctx, client, sessionID, created)
	if err != nil {
		return err
	}

	answer, err := streamAnswer(ctx, ask, input, toChatHistory(history))
	if err != nil {
		return explain(err)
	}
	persistTurn(ctx, client, sessionID, input, answer, "text")
	return nil
}

func runInteractiveChat(ctx context.Context) error {
	ask, closeFn, err := newAnswerer(ctx, false)
	if err != nil {
		return err
	}
	defer closeFn()
	return runInteractiveChatWith(ctx, ask, false)
}

// runInteractiveChatWith 交互式对话循环
func runInteractiveChatWith(ctx context.Context, ask answerFunc, forceNew bool) error {
	client := newClient()
	reader := bufio.NewReader(os.Stdin)

	var (
		sessionID string
		history   []api.ChatMessage
	)

	// 已有会话时先加载历史
	if !forceNew {
		if id := sessionFlag(); id != "" {
			sessionID = id
		} else {
			sessionID = config.GetCurrentSession()
		}
	}
	if sessionID != "" {
		messages, err := loadHistory(ctx, client, sessionID)
		if err != nil {
			return err
		}
		history = toChatHistory(messages)
		render.TitleColor.Printf("💬 会话 %s（%d 条历史消息）\n", sessionID, len(messages))
	} else {
		render.TitleColor.Println("💬 新对话")
	}
	fmt.Println("   输入 /exit 退出，/new 开始新会话")
	render.Separator(os.Stdout)

	for {
		render.PromptColor.Print("You> ")
		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			fmt.Println()
			return nil
		}
		input := strings.TrimSpace(line)

		switch input {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		case "/new":
			sessionID, history = "", nil
			forceNew = true
			render.Successf("下一条消息将开始新会话")
			continue
		}

		if sessionID == "" {
			sessionID, _, err = resolveSession(ctx, client, modeText, input, forceNew)
			if err != nil {
				return err
			}
			forceNew = false
		}

		answer, err := streamAnswer(ctx, ask, input, history)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			render.Errorf("%v", explain(err))
			continue
		}
		persistTurn(ctx, client, sessionID, input, answer, "text")
		history = append(history,
			api.ChatMessage{Role: "user", Content: input},
			api.ChatMessage{Role: "assistant", Content: answer},
		)
	}
}

// streamAnswer 流式输出回复并返回完整内容
func streamAnswer(ctx context.Context, ask answerFunc, input string, history []api.ChatMessage) (string, error) {
	render.AIColor.Println("🤖 Assistant")
	answer, err := ask(ctx, input, history, func(delta string) {
		fmt.Print(delta)
	})
	if answer != "" {
		fmt.Println()
		fmt.Println()
	}
	return answer, err
}
