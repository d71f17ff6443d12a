package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"chat-gateway/cli/internal/api"
	"chat-gateway/cli/internal/dataset"
	"chat-gateway/cli/internal/render"
)

// defaultCSVQuestion 没有提问时的默认问题
const defaultCSVQuestion = "Give me an overview of this dataset."

var csvCmd = &cobra.Command{
	Use:   "csv [file|url] [question]",
	Short: "CSV 数据分析",
	Long: `加载本地 CSV 文件或 URL 并提问，模型会分析数据并按需生成图表。

小于 10 MB 且不超过 1000 行的文件会完整保存到会话中，之后可以用 --reuse
继续对同一份数据提问；更大的文件只保存元数据。`,
	RunE: runCSV,
}

func init() {
	csvCmd.Flags().BoolP("new", "n", false, "在新会话中分析")
	csvCmd.Flags().BoolP("reuse", "r", false, "使用会话中已保存的数据，所有参数都作为问题")
	rootCmd.AddCommand(csvCmd)
}

func runCSV(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	forceNew, _ := cmd.Flags().GetBool("new")
	reuse, _ := cmd.Flags().GetBool("reuse")
	client := newClient()

	var (
		data     *dataset.Dataset
		question string
	)
	if reuse {
		question = strings.Join(args, " ")
	} else {
		if len(args) == 0 {
			return fmt.Errorf("请指定 CSV 文件或 URL，或使用 --reuse")
		}
		source := args[0]
		question = strings.Join(args[1:], " ")

		fmt.Println("🔍 正在读取数据...")
		loaded, err := dataset.Load(ctx, source)
		if err != nil {
			return err
		}
		data = loaded
		printDatasetInfo(&data.Info)
	}
	question = strings.TrimSpace(question)
	if question == "" {
		question = defaultCSVQuestion
	}

	sessionID, created, err := resolveSession(ctx, client, modeCSV, question, forceNew)
	if err != nil {
		return err
	}

	var csvData string
	if data != nil {
		saveDataset(ctx, client, sessionID, data)
		csvData = data.Raw
	} else {
		if csvData, err = storedCSV(ctx, client, sessionID); err != nil {
			return err
		}
	}

	history, err := recentHistory(ctx, client, sessionID, created, dataset.HistoryWindow)
	if err != nil {
		return err
	}
	turns := make([]dataset.Turn, len(history))
	for i, m := range history {
		turns[i] = dataset.Turn{Role: m.Role, Content: m.Content}
	}

	fmt.Println("🤔 正在分析数据...")
	result, err := client.AnalyzeCSV(ctx, dataset.EnhancedQuery(question, turns), csvData, sessionID)
	if err != nil {
		return explain(err)
	}

	renderer, err := render.NewRenderer(0)
	if err != nil {
		return err
	}
	render.AIColor.Println("🤖 Assistant")
	fmt.Println(renderer.Markdown(result.Content))
	fmt.Println()
	printPlots(result.Plots)

	persistTurn(ctx, client, sessionID, question, result.Content, "csv")
	return nil
}

// saveDataset 保存 csv_info，小文件同时保存 csv_data
func saveDataset(ctx context.Context, client *api.Client, sessionID string, data *dataset.Dataset) {
	info := map[string]interface{}{
		"file_type":     "csv_info",
		"metadata":      data.Info,
		"has_full_data": false,
	}
	if _, err := client.SaveFile(ctx, sessionID, "csv_info", data.Info.Filename+"_info", info); err != nil {
		render.Warnf("保存文件信息失败: %v", explain(err))
		return
	}

	stored := data.StoredData()
	if stored == nil {
		render.Warnf("数据集较大 (%.1f MB, %d 行)，只保存元数据，之后需要重新提供文件",
			data.Info.SizeMB, data.Info.Rows)
		// 旧的 csv_data 属于之前的数据集，不能再被复用
		if err := client.DeleteFile(ctx, sessionID, "csv_data"); err != nil && !api.IsNotFound(err) {
			render.Warnf("清理旧数据失败: %v", explain(err))
		}
		return
	}
	full := map[string]interface{}{
		"file_type":     "csv_full",
		"csv_string":    stored.CSVString,
		"rows":          stored.Rows,
		"columns":       stored.Columns,
		"file_name":     stored.FileName,
		"has_full_data": true,
	}
	if _, err := client.SaveFile(ctx, sessionID, "csv_data", data.Info.Filename+"_data", full); err != nil {
		render.Warnf("保存数据失败: %v", explain(err))
	}
}

// storedCSV 读取会话中保存的完整数据
func storedCSV(ctx context.Context, client *api.Client, sessionID string) (string, error) {
	file, err := client.GetFile(ctx, sessionID, "csv_data")
	if err != nil {
		if api.IsNotFound(err) {
			return "", fmt.Errorf("会话中没有保存的数据（大文件只保存元数据），请重新指定 CSV 文件")
		}
		return "", explain(err)
	}
	var payload struct {
		CSVString string `json:"csv_string"`
	}
	if err := json.Unmarshal(file.FileData, &payload); err != nil || payload.CSVString == "" {
		return "", fmt.Errorf("会话中保存的数据无法解析")
	}
	return payload.CSVString, nil
}

func printDatasetInfo(info *dataset.Info) {
	fmt.Printf("📁 %s (%.2f MB, %d rows, %d columns)\n", info.Filename, info.SizeMB, info.Rows, info.Columns)
	cols := info.ColumnsList
	more := ""
	if len(cols) > 10 {
		cols = cols[:10]
		more = fmt.Sprintf(" … (+%d)", len(info.ColumnsList)-10)
	}
	render.SeparatorColor.Printf("   columns: %s%s\n", strings.Join(cols, ", "), more)
}

// printPlots 终端无法显示 plotly 图表，只输出摘要
func printPlots(plots []api.Plot) {
	if len(plots) == 0 {
		return
	}
	render.TitleColor.Println("📊 Visualizations")
	for i, p := range plots {
		fmt.Printf("  %d. %s\n", i+1, plotSummary(p))
	}
	fmt.Println()
}

// plotSummary 标题加上每条 trace 的类型和名称
func plotSummary(p api.Plot) string {
	var layout struct {
		Title json.RawMessage `json:"title"`
	}
	_ = json.Unmarshal(p.Layout, &layout)
	title := plotTitle(layout.Title)
	if title == "" {
		title = "(untitled)"
	}

	var traces []struct {
		Type string `json:"type"`
		Name string `json:"name"`
	}
	_ = json.Unmarshal(p.Data, &traces)
	parts := make([]string, 0, len(traces))
	for _, t := range traces {
		kind := t.Type
		if kind == "" {
			kind = "scatter"
		}
		if t.Name != "" {
			kind += " " + t.Name
		}
		parts = append(parts, kind)
	}
	if len(parts) == 0 {
		return title
	}
	return fmt.Sprintf("%s [%s]", title, strings.Join(parts, ", "))
}

// plotTitle 兼容 "title": "x" 和 "title": {"text": "x"} 两种写法
func plotTitle(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Text
	}
	return ""
}
