package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"chat-gateway/cli/internal/config"
	"chat-gateway/cli/internal/render"
)

var historyCmd = &cobra.Command{
	Use:   "history [session-id]",
	Short: "显示会话消息",
	Long:  `按时间顺序显示会话中的消息，Markdown 按终端宽度渲染。默认显示当前会话。`,
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := sessionFlag()
		if len(args) == 1 {
			sessionID = args[0]
		}
		if sessionID == "" {
			sessionID = config.GetCurrentSession()
		}
		if sessionID == "" {
			return fmt.Errorf("没有当前会话，请指定会话 ID 或运行 'chatctl sessions use'")
		}

		client := newClient()
		messages, err := loadHistory(cmd.Context(), client, sessionID)
		if err != nil {
			return err
		}
		if len(messages) == 0 {
			fmt.Println("会话中还没有消息")
			return nil
		}

		renderer, err := render.NewRenderer(0)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, m := range messages {
			renderer.Message(out, m.Role, m.Content, m.Timestamp)
		}

		plots, err := client.GetPlots(cmd.Context(), sessionID)
		if err == nil && len(plots) > 0 {
			printPlots(plots)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
