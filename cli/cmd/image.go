package cmd

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"chat-gateway/cli/internal/render"
)

// 图片大小上限，与网页端上传限制一致
const maxImageSize = 10 << 20

var imageCmd = &cobra.Command{
	Use:   "image <file> [question]",
	Short: "图片问答",
	Long: `上传一张图片并提问，回复以流式输出。

图片会保存到会话文件中，问题为空时让模型描述图片。`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImage,
}

func init() {
	imageCmd.Flags().BoolP("new", "n", false, "在新会话中对话")
	rootCmd.AddCommand(imageCmd)
}

func runImage(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	filename := args[0]
	question := strings.TrimSpace(strings.Join(args[1:], " "))
	forceNew, _ := cmd.Flags().GetBool("new")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("读取图片失败: %w", err)
	}
	if len(data) > maxImageSize {
		return fmt.Errorf("图片超过 %d MB", maxImageSize>>20)
	}
	if ct := http.DetectContentType(data); !strings.HasPrefix(ct, "image/") {
		return fmt.Errorf("不是图片文件: %s", ct)
	}
	imageData := base64.StdEncoding.EncodeToString(data)
	name := filepath.Base(filename)

	client := newClient()
	sessionID, created, err := resolveSession(ctx, client, modeImage, question, forceNew)
	if err != nil {
		return err
	}

	fileData := map[string]interface{}{
		"image_data": imageData,
		"file_type":  "image_base64",
		"format":     "base64",
		"metadata": map[string]interface{}{
			"file_name":  name,
			"size_bytes": len(data),
			"size_mb":    float64(len(data)) / (1024 * 1024),
		},
		"has_full_data": true,
	}
	if _, err := client.SaveFile(ctx, sessionID, "image", name, fileData); err != nil {
		render.Warnf("保存图片失败: %v", explain(err))
	}

	history, err := sessionHistory(ctx, client, sessionID, created)
	if err != nil {
		return err
	}

	render.AIColor.Println("🤖 Assistant")
	answer, err := client.StreamImageChat(ctx, question, imageData, toChatHistory(history), func(delta string) {
		fmt.Print(delta)
	})
	if answer != "" {
		fmt.Println()
		fmt.Println()
	}
	if err != nil {
		return explain(err)
	}

	userInput := question
	if userInput == "" {
		userInput = "Describe this image."
	}
	persistTurn(ctx, client, sessionID, fmt.Sprintf("🖼️ %s\n\n%s", name, userInput), answer, "image")
	return nil
}
