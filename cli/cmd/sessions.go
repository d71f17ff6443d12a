package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"chat-gateway/cli/internal/api"
	"chat-gateway/cli/internal/config"
	"chat-gateway/cli/internal/render"
)

var sessionsCmd = &cobra.Command{
	Use:     "sessions",
	Aliases: []string{"session"},
	Short:   "管理会话",
}

var sessionsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "列出所有会话（最新的在前）",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessions, err := newClient().ListSessions(cmd.Context())
		if err != nil {
			return explain(err)
		}
		if len(sessions) == 0 {
			fmt.Println("还没有会话，运行 'chatctl chat' 开始对话")
			return nil
		}

		current := config.GetCurrentSession()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "\tID\tMODE\tMESSAGES\tCREATED\tNAME")
		for _, s := range sessions {
			marker := ""
			if s.SessionID == current {
				marker = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
				marker, s.SessionID, s.Mode, len(s.Messages),
				s.CreatedAt.Local().Format("2006-01-02 15:04"), s.Name)
		}
		return w.Flush()
	},
}

var sessionsNewCmd = &cobra.Command{
	Use:   "new [name]",
	Short: "创建新会话并设为当前会话",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		name := "New Chat"
		if len(args) == 1 {
			name = args[0]
		}
		session, err := newClient().CreateSession(cmd.Context(), "", name, mode)
		if err != nil {
			return explain(err)
		}
		if err := config.SaveCurrentSession(session.SessionID); err != nil {
			return fmt.Errorf("保存当前会话失败: %w", err)
		}
		render.Successf("已创建会话 %s (%s)", session.SessionID, session.Mode)
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:     "delete <session-id>",
	Aliases: []string{"rm"},
	Short:   "删除会话及其消息和文件",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			confirm := false
			prompt := &survey.Confirm{
				Message: fmt.Sprintf("确定删除会话 %s 吗？消息和文件都会被删除", sessionID),
			}
			if err := survey.AskOne(prompt, &confirm); err != nil {
				return err
			}
			if !confirm {
				fmt.Println("已取消")
				return nil
			}
		}

		if err := newClient().DeleteSession(cmd.Context(), sessionID); err != nil {
			return explain(err)
		}
		if config.GetCurrentSession() == sessionID {
			if err := config.SaveCurrentSession(""); err != nil {
				render.Warnf("清除当前会话失败: %v", err)
			}
		}
		render.Successf("会话已删除")
		return nil
	},
}

var sessionsUseCmd = &cobra.Command{
	Use:   "use [session-id]",
	Short: "切换当前会话，不带参数时交互选择",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var sessionID string
		if len(args) == 1 {
			sessionID = args[0]
		} else {
			sessions, err := newClient().ListSessions(cmd.Context())
			if err != nil {
				return explain(err)
			}
			if len(sessions) == 0 {
				fmt.Println("还没有会话")
				return nil
			}
			options := make([]string, len(sessions))
			for i, s := range sessions {
				options[i] = fmt.Sprintf("%s  [%s] %s", s.SessionID, s.Mode, s.Name)
			}
			index := 0
			if err := survey.AskOne(&survey.Select{Message: "选择会话:", Options: options}, &index); err != nil {
				return err
			}
			sessionID = sessions[index].SessionID
		}

		detail, err := newClient().GetSession(cmd.Context(), sessionID)
		if err != nil {
			if api.IsNotFound(err) {
				return fmt.Errorf("会话不存在: %s", sessionID)
			}
			return explain(err)
		}
		if err := config.SaveCurrentSession(sessionID); err != nil {
			return fmt.Errorf("保存当前会话失败: %w", err)
		}
		render.Successf("当前会话: %s [%s] %s (%d 条消息)", detail.SessionID, detail.Mode, detail.Name, detail.MessageCount)
		return nil
	},
}

func init() {
	sessionsNewCmd.Flags().StringP("mode", "m", modeText, "会话模式: text / image / csv")
	sessionsDeleteCmd.Flags().BoolP("yes", "y", false, "跳过确认")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsNewCmd, sessionsDeleteCmd, sessionsUseCmd)
	rootCmd.AddCommand(sessionsCmd)
}
