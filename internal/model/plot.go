package model

import "encoding/json"

// Plot 一张 plotly 图表，data 和 layout 原样透传给前端
// 不落库，只在 Redis 中保留最近一次分析的结果
type Plot struct {
	Data   json.RawMessage `json:"data"`
	Layout json.RawMessage `json:"layout"`
}
