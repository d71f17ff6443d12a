package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"chat-gateway/cli/internal/config"
	"chat-gateway/cli/internal/render"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "显示当前状态",
	Long: `显示网关健康状态和本地配置信息。

包括：
- 服务器地址和各依赖的健康状态
- 登录状态
- 当前会话`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	render.TitleColor.Println("Chat Gateway 状态信息")
	render.Separator(cmd.OutOrStdout())

	fmt.Printf("  服务器: %s\n", config.GetServerURL())
	fmt.Printf("  配置文件: %s\n", config.Path())

	health, err := newClient().Health(cmd.Context())
	if err != nil {
		render.ErrorColor.Printf("  网关状态: ✗ 无法连接 (%v)\n", err)
	} else {
		if health.Status == "healthy" {
			render.SuccessColor.Printf("  网关状态: ✓ %s\n", health.Status)
		} else {
			render.WarnColor.Printf("  网关状态: ✗ %s\n", health.Status)
		}
		names := make([]string, 0, len(health.Components))
		for name := range health.Components {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("    - %s: %s\n", name, health.Components[name])
		}
	}

	if config.IsLoggedIn() {
		fmt.Println("  登录状态: ✓ 已登录")
	} else {
		fmt.Println("  登录状态: 未登录（网关未开启认证时无需登录）")
	}

	if current := config.GetCurrentSession(); current != "" {
		fmt.Printf("  当前会话: %s\n", current)
	} else {
		fmt.Println("  当前会话: 无")
	}

	render.Separator(cmd.OutOrStdout())
	return nil
}
