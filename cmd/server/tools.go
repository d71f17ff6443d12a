package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"chat-gateway/internal/config"
	"chat-gateway/internal/database"
	"chat-gateway/internal/logger"
	"chat-gateway/pkg/jwt"
	"chat-gateway/pkg/util"
)

// runMigrate 只执行数据库迁移
func runMigrate(configPath string) error {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, _, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: "console"})
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := database.Open(cfg, log)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Info("数据库迁移完成")
	return nil
}

// runHashKey 输出访问密钥的 bcrypt 哈希
// 未传参数时从终端读取，输入不回显
func runHashKey(cmd *cobra.Command, args []string) error {
	var key string
	if len(args) == 1 {
		key = args[0]
	} else {
		fmt.Fprint(cmd.ErrOrStderr(), "Access key: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return fmt.Errorf("read access key: %w", err)
		}
		key = string(raw)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("access key must not be empty")
	}

	hash, err := util.HashKey(key)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

// runToken 签发 Token，用于运维调试
func runToken(cmd *cobra.Command, configPath, clientID string) error {
	cfg, _, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 characters")
	}
	token, expireAt, err := jwt.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.AccessExpire).GenerateAccessToken(clientID)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expireAt.Format("2006-01-02 15:04:05"))
	return nil
}
