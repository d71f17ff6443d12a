package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"chat-gateway/cli/internal/config"
	"chat-gateway/cli/internal/render"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "使用访问密钥登录",
	Long: `使用网关管理员分发的访问密钥换取 Token，并保存到本地配置。

密钥输入时不会回显。`,
	Args: cobra.NoArgs,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().String("client-id", "", "调用方标识，默认使用主机名")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	clientID, _ := cmd.Flags().GetString("client-id")
	if clientID == "" {
		clientID = hostname()
	}

	fmt.Print("请输入访问密钥: ")
	keyBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("读取密钥失败: %w", err)
	}
	accessKey := strings.TrimSpace(string(keyBytes))
	if accessKey == "" {
		return fmt.Errorf("密钥不能为空")
	}

	fmt.Println("🔐 正在登录...")
	result, err := newClient().IssueToken(cmd.Context(), accessKey, clientID)
	if err != nil {
		return fmt.Errorf("登录失败: %w", err)
	}

	if err := config.SaveToken(result.AccessToken); err != nil {
		return fmt.Errorf("保存登录信息失败: %w", err)
	}

	render.Successf("登录成功，Token 有效期 %d 分钟", result.ExpiresIn/60)
	return nil
}

func hostname() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return "chatctl"
	}
	return name
}
