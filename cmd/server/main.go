// Package main 是网关服务端的入口点
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	// 注册模型 Provider
	_ "chat-gateway/internal/llm/gemini"
	_ "chat-gateway/internal/llm/openai"
)

const version = "1.0.0"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "chat-gateway",
		Short:         "多模态聊天网关 (文本 / 图片 / CSV 分析)",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./configs", "配置文件目录")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "启动 HTTP 服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "执行数据库迁移后退出",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(configPath)
		},
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "hash-key [access-key]",
		Short: "生成访问密钥的 bcrypt 哈希，填入 auth.access_key_hash",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHashKey(cmd, args)
		},
	})

	var clientID string
	tokenCmd := &cobra.Command{
		Use:   "token",
		Short: "用配置中的 jwt_secret 直接签发 Token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(cmd, configPath, clientID)
		},
	}
	tokenCmd.Flags().StringVar(&clientID, "client-id", "cli", "调用方标识")
	rootCmd.AddCommand(tokenCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "chat-gateway v%s\n", version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
