// Package dataset 准备 CSV 分析需要的数据和上下文
package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"chat-gateway/internal/dataframe"
)

// 大文件阈值，超过任一项只保存元数据
const (
	LargeFileMB   = 10.0
	LargeFileRows = 1000
)

// 下载超时和大小上限
const (
	downloadTimeout = 30 * time.Second
	maxDownloadSize = 200 << 20
)

// ErrInvalidURL URL 缺少 scheme 或 host
var ErrInvalidURL = errors.New("invalid URL format, please enter a complete URL including http:// or https://")

// Info csv_info 元数据，字段名与网页端保持一致
type Info struct {
	Filename        string   `json:"filename"`
	SizeBytes       int64    `json:"size_bytes"`
	SizeMB          float64  `json:"size_mb"`
	Rows            int      `json:"rows"`
	Columns         int      `json:"columns"`
	ColumnsList     []string `json:"columns_list"`
	Encoding        string   `json:"encoding"`
	UploadTimestamp string   `json:"upload_timestamp"`
	URL             string   `json:"url,omitempty"`
}

// IsLarge 是否超过永久保存的阈值
func (i *Info) IsLarge() bool {
	return i.SizeMB >= LargeFileMB || i.Rows > LargeFileRows
}

// Data csv_data 文件内容，只有小文件才保存
type Data struct {
	FileType  string `json:"file_type"`
	CSVString string `json:"csv_string"`
	Rows      int    `json:"rows"`
	Columns   int    `json:"columns"`
	FileName  string `json:"file_name"`
}

// Dataset 一份已加载的 CSV
type Dataset struct {
	Info Info
	Raw  string
}

// StoredData 返回需要保存为 csv_data 的内容，大文件返回 nil
func (d *Dataset) StoredData() *Data {
	if d.Info.IsLarge() {
		return nil
	}
	return &Data{
		FileType:  "csv_data",
		CSVString: d.Raw,
		Rows:      d.Info.Rows,
		Columns:   d.Info.Columns,
		FileName:  d.Info.Filename,
	}
}

// IsURL 判断参数是否像一个 URL
func IsURL(s string) bool {
	return strings.Contains(s, "://")
}

// ValidateURL 检查 URL 是否包含 scheme 和 host
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, ErrInvalidURL
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, ErrInvalidURL
	}
	return u, nil
}

// Load 从本地文件或 URL 加载 CSV
func Load(ctx context.Context, source string) (*Dataset, error) {
	if IsURL(source) {
		return LoadURL(ctx, source)
	}
	return LoadFile(source)
}

// LoadFile 读取本地 CSV 文件
func LoadFile(filename string) (*Dataset, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	return FromBytes(filepath.Base(filename), data, "")
}

// LoadURL 下载 CSV 文件
func LoadURL(ctx context.Context, raw string) (*Dataset, error) {
	u, err := ValidateURL(raw)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, downloadTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; CSV-Analyzer)")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("下载失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("下载失败: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadSize+1))
	if err != nil {
		return nil, fmt.Errorf("下载失败: %w", err)
	}
	if len(data) > maxDownloadSize {
		return nil, fmt.Errorf("文件超过 %d MB", maxDownloadSize>>20)
	}

	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "downloaded_data.csv"
	}
	return FromBytes(name, data, u.String())
}

// FromBytes 解析 CSV 并生成元数据
func FromBytes(filename string, data []byte, sourceURL string) (*Dataset, error) {
	frame, err := dataframe.ParseCSV(strings.NewReader(string(data)))
	if err != nil {
		return nil, err
	}
	defer frame.Release()

	if frame.Rows() == 0 {
		return nil, fmt.Errorf("%w: CSV file appears to be empty", dataframe.ErrCSVParse)
	}

	columns := frame.Columns()
	size := int64(len(data))
	return &Dataset{
		Info: Info{
			Filename:        filename,
			SizeBytes:       size,
			SizeMB:          float64(size) / (1024 * 1024),
			Rows:            frame.Rows(),
			Columns:         len(columns),
			ColumnsList:     columns,
			Encoding:        "utf-8",
			UploadTimestamp: time.Now().Format("2006-01-02T15:04:05.000000"),
			URL:             sourceURL,
		},
		Raw: string(data),
	}, nil
}

// Turn 一条历史消息
type Turn struct {
	Role    string
	Content string
}

// HistoryWindow 构造上下文时保留的最近消息数
const HistoryWindow = 20

// EnhancedQuery 把历史对话和当前问题包装成分析提示词
func EnhancedQuery(userInput string, history []Turn) string {
	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}

	lines := make([]string, 0, len(history))
	for _, t := range history {
		switch t.Role {
		case "user":
			lines = append(lines, "User: "+t.Content)
		case "assistant":
			lines = append(lines, "Assistant: "+t.Content)
		}
	}
	chatHistory := "No previous conversation."
	if len(lines) > 0 {
		chatHistory = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(enhancedQueryTemplate, chatHistory, userInput)
}

const enhancedQueryTemplate = `
You are a smart data analysis assistant that helps users explore and understand CSV datasets.

DATA CONTEXT:
The user has uploaded a CSV dataset. You can perform operations such as summarizing, describing, and reasoning over its contents.

PLOTTING CAPABILITIES:
You have access to plotting tools that can create visualizations. When appropriate:
- Use plotChart tool to create charts from plotly figure data
- Create visualizations to help users understand patterns and trends
- Always explain what the visualization shows

PREVIOUS CONVERSATION:
%s

CURRENT QUESTION:
%s

Instructions:
1. Analyze the dataset based on the user's question
2. When visualization would help understanding, create appropriate charts
3. Provide clear explanations of both the data analysis and any visualizations
4. Be concise and data-driven in your responses

Now analyze the dataset and provide the most relevant, data-driven answer:
`
