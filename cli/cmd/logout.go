package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"chat-gateway/cli/internal/config"
	"chat-gateway/cli/internal/render"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "登出并清除本地凭证",
	Long: `让当前 Token 在网关失效，并清除本地保存的 Token。

登出后需要重新运行 'chatctl login' 才能访问开启了认证的网关。`,
	Args: cobra.NoArgs,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	// 检查是否已登录
	if !config.IsLoggedIn() {
		fmt.Println("当前未登录")
		return nil
	}

	// 网关不可达时仍然清除本地凭证
	if err := newClient().Logout(cmd.Context()); err != nil {
		render.Warnf("网关登出失败: %v", err)
	}

	if err := config.ClearToken(); err != nil {
		return fmt.Errorf("清除凭证失败: %w", err)
	}

	render.Successf("已登出并清除本地凭证")
	return nil
}
