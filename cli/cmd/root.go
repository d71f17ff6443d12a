// Package cmd 实现 CLI 命令
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"chat-gateway/cli/internal/api"
	"chat-gateway/cli/internal/config"
	"chat-gateway/cli/internal/render"
)

var rootCmd = &cobra.Command{
	Use:   "chatctl",
	Short: "Chat Gateway 终端客户端",
	Long: `Chat Gateway CLI 客户端

在终端里完成网页端能做的事：文本对话、图片问答、CSV 数据分析，
会话和消息保存在网关，网页端和终端可以继续同一个会话。

直接运行进入交互式对话。`,
	SilenceUsage: true,
}

// Execute 执行根命令
// Ctrl+C 会取消正在进行的请求
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		render.Errorf("%v", err)
		os.Exit(1)
	}
}

func init() {
	// RunE 在 init 中设置，避免 rootCmd 与 sessionFlag 之间的初始化循环
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return runInteractiveChat(cmd.Context())
	}

	cobra.OnInitialize(initConfig)

	// 全局参数
	rootCmd.PersistentFlags().StringP("server", "s", "", "服务器地址 (默认: http://localhost:8000)")
	rootCmd.PersistentFlags().StringP("session", "S", "", "使用指定会话，不修改当前会话")
}

func initConfig() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "初始化配置失败: %v\n", err)
		os.Exit(1)
	}

	// 如果指定了服务器地址，更新配置
	if server, _ := rootCmd.PersistentFlags().GetString("server"); server != "" {
		config.SetServerURL(server)
	}
}

// newClient 使用当前配置创建 API 客户端
func newClient() *api.Client {
	return api.NewClient(config.GetServerURL(), config.GetToken())
}

// sessionFlag 返回 --session 指定的会话
func sessionFlag() string {
	s, _ := rootCmd.PersistentFlags().GetString("session")
	return s
}

// explain 把 401 转换为提示用户登录的错误
func explain(err error) error {
	if api.IsUnauthorized(err) {
		return fmt.Errorf("%w\n请先运行 'chatctl login' 登录", err)
	}
	return err
}
