package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"chat-gateway/internal/dataframe"
	"chat-gateway/internal/llm"
	"chat-gateway/internal/model"
)

const (
	noDatasetMessage   = "❌ No dataset available. Please upload a CSV file first."
	plotSuccessMessage = "Chart created successfully and will be displayed to the user."
	iterationLimitText = "Agent stopped due to iteration limit or time limit."
	plotToolName       = "plotChart"
)

const csvSystemPrompt = `You are a data analyst working with a tabular dataset.
You are given a summary of every column and a sample of rows. Answer the user's question from that information and state any assumption you make.
When a chart would help, call the plotChart tool with a complete Plotly figure serialized as a JSON string: an object with "data" (a list of traces) and an optional "layout". Put the actual values into the traces.`

const finalAnswerPrompt = "Please provide your final answer to the question now, without calling any more tools."

var plotChartTool = llm.Tool{
	Name:        plotToolName,
	Description: "Plots json data using plotly Figure. Use it only for plotting charts and graphs.",
	Parameters: map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"data": map[string]interface{}{
				"type":        "string",
				"description": `Plotly figure JSON, e.g. {"data":[{"type":"bar","x":["a","b"],"y":[1,2]}],"layout":{"title":{"text":"..."}}}`,
			},
		},
		"required": []string{"data"},
	},
}

// CSVAnalysisRequest CSV 分析请求
// csv_data 可以是 CSV 文本、对象数组或列字典
type CSVAnalysisRequest struct {
	EnhancedQuery string          `json:"enhanced_query"`
	CSVData       json.RawMessage `json:"csv_data"`
	SessionID     string          `json:"session_id"`
}

// CSVAnalysisResponse CSV 分析结果
type CSVAnalysisResponse struct {
	Content string       `json:"content"`
	Plots   []model.Plot `json:"plots"`
}

// AnalyzeCSV 分析 CSV 数据
// 模型最多调用 csv.max_iterations 轮，每轮可以通过 plotChart 生成图表
// 模型调用失败时错误信息作为回复内容返回
// 返回:
//   - error: ErrEmptyInput / dataframe.ErrCSVParse / ctx 错误
func (s *AIService) AnalyzeCSV(ctx context.Context, req *CSVAnalysisRequest) (*CSVAnalysisResponse, error) {
	if strings.TrimSpace(req.EnhancedQuery) == "" {
		return nil, ErrEmptyInput
	}

	frame, err := loadFrame(req.CSVData)
	if err != nil {
		return nil, err
	}
	if frame == nil {
		return &CSVAnalysisResponse{Content: noDatasetMessage, Plots: []model.Plot{}}, nil
	}
	defer frame.Release()

	if req.SessionID != "" {
		if err := s.plots.ClearPlots(ctx, req.SessionID); err != nil {
			s.log.Warn("清除图表失败", zap.String("session_id", req.SessionID), zap.Error(err))
		}
	}

	start := time.Now()
	content, plots, err := s.runCSVAgent(ctx, frame, req.EnhancedQuery)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.log.Warn("CSV 分析失败", zap.Error(err), zap.Duration("latency", time.Since(start)))
		content = "❌ Error analyzing CSV data: " + err.Error()
	}

	if req.SessionID != "" && len(plots) > 0 {
		if err := s.plots.SetPlots(ctx, req.SessionID, plots); err != nil {
			s.log.Warn("保存图表失败", zap.String("session_id", req.SessionID), zap.Error(err))
		}
	}

	s.log.Info("CSV 分析完成",
		zap.Int("rows", frame.Rows()),
		zap.Int("columns", len(frame.Columns())),
		zap.Int("plots", len(plots)),
		zap.Duration("latency", time.Since(start)))
	return &CSVAnalysisResponse{Content: content, Plots: plots}, nil
}

func (s *AIService) runCSVAgent(ctx context.Context, frame *dataframe.Frame, query string) (string, []model.Plot, error) {
	plots := []model.Plot{}
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: csvSystemPrompt},
		{Role: llm.RoleUser, Content: frame.Describe(s.csvCfg.SampleRows) + "\n\n" + query},
	}
	tools := []llm.Tool{plotChartTool}

	iterations := s.csvCfg.MaxIterations
	if iterations < 1 {
		iterations = 1
	}
	for i := 0; i < iterations; i++ {
		resp, err := s.generate(ctx, messages, tools)
		if err != nil {
			return "", plots, err
		}
		if len(resp.ToolCalls) == 0 {
			return resp.Content, plots, nil
		}

		messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			result := s.callTool(call, &plots)
			s.log.Debug("工具调用", zap.String("tool", call.Name), zap.Int("iteration", i+1), zap.String("result", result))
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Name:       call.Name,
				ToolCallID: call.ID,
				Content:    result,
			})
		}
	}

	// 轮数用完，再请求一次最终回答
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: finalAnswerPrompt})
	resp, err := s.generate(ctx, messages, tools)
	if err != nil {
		return "", plots, err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return iterationLimitText, plots, nil
	}
	return resp.Content, plots, nil
}

func (s *AIService) callTool(call llm.ToolCall, plots *[]model.Plot) string {
	if call.Name != plotToolName {
		return fmt.Sprintf("Error: unknown tool %q", call.Name)
	}
	plot, err := parseFigure(call.Arguments["data"])
	if err != nil {
		return fmt.Sprintf("Error plotting chart: %v", err)
	}
	*plots = append(*plots, *plot)
	return plotSuccessMessage
}

// parseFigure 解析 plotly figure，data 必须是 trace 数组
func parseFigure(arg interface{}) (*model.Plot, error) {
	var raw []byte
	switch v := arg.(type) {
	case nil:
		return nil, errors.New("missing data argument")
	case string:
		raw = []byte(v)
	default:
		// 有的模型直接传对象
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		raw = b
	}

	var fig map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fig); err != nil {
		return nil, fmt.Errorf("invalid figure JSON: %v", err)
	}
	data, ok := fig["data"]
	if !ok {
		return nil, errors.New(`figure has no "data" field`)
	}
	if d := bytes.TrimSpace(data); len(d) == 0 || d[0] != '[' {
		return nil, errors.New(`figure "data" must be a list of traces`)
	}
	layout, ok := fig["layout"]
	if !ok || string(bytes.TrimSpace(layout)) == "null" {
		layout = json.RawMessage(`{}`)
	}
	return &model.Plot{Data: data, Layout: layout}, nil
}

// loadFrame 解析 csv_data，没有数据时返回 nil
func loadFrame(raw json.RawMessage) (*dataframe.Frame, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", dataframe.ErrCSVParse, err)
	}

	switch data := v.(type) {
	case string:
		if strings.TrimSpace(data) == "" {
			return nil, nil
		}
		return dataframe.ParseCSV(strings.NewReader(data))

	case []interface{}:
		if len(data) == 0 {
			return nil, nil
		}
		records := make([]map[string]interface{}, len(data))
		for i, item := range data {
			rec, ok := item.(map[string]interface{})
			if !ok {
				return nil, fmt.Errorf("%w: row %d is not an object", dataframe.ErrCSVParse, i)
			}
			records[i] = rec
		}
		return dataframe.FromRecords(records)

	case map[string]interface{}:
		if len(data) == 0 {
			return nil, nil
		}
		columns := make(map[string][]interface{}, len(data))
		for name, col := range data {
			columns[name] = columnValues(col)
		}
		return dataframe.FromColumns(columns)

	default:
		return nil, fmt.Errorf("%w: unsupported csv_data type %T", dataframe.ErrCSVParse, v)
	}
}

// columnValues 把列字典中的一列转成切片
// 支持 list 和 {index: value} 两种形式，后者按索引排序
func columnValues(col interface{}) []interface{} {
	switch c := col.(type) {
	case []interface{}:
		return c
	case map[string]interface{}:
		keys := make([]string, 0, len(c))
		for k := range c {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			a, errA := strconv.Atoi(keys[i])
			b, errB := strconv.Atoi(keys[j])
			if errA == nil && errB == nil {
				return a < b
			}
			return keys[i] < keys[j]
		})
		out := make([]interface{}, len(keys))
		for i, k := range keys {
			out[i] = c[k]
		}
		return out
	default:
		return []interface{}{c}
	}
}
