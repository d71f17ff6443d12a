package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"chat-gateway/cli/internal/api"
)

func TestSessionName(t *testing.T) {
	assert.Equal(t, "New Chat", sessionName(modeText, "  "))
	assert.Equal(t, "hello", sessionName(modeText, " hello "))

	long := strings.Repeat("字", 45)
	assert.Equal(t, strings.Repeat("字", 40)+"…", sessionName(modeText, long))
	assert.Equal(t, "Image: "+strings.Repeat("字", 30)+"...", sessionName(modeImage, long))
	assert.Equal(t, "CSV: sales...", sessionName(modeCSV, "sales"))
}

func TestPlotSummary(t *testing.T) {
	p := api.Plot{
		Data:   json.RawMessage(`[{"type":"bar","name":"2024"},{"x":[1]}]`),
		Layout: json.RawMessage(`{"title":{"text":"Revenue"}}`),
	}
	assert.Equal(t, "Revenue [bar 2024, scatter]", plotSummary(p))

	p = api.Plot{Data: json.RawMessage(`[]`), Layout: json.RawMessage(`{"title":"Plain"}`)}
	assert.Equal(t, "Plain", plotSummary(p))

	p = api.Plot{Data: json.RawMessage(`[{"type":"pie"}]`)}
	assert.Equal(t, "(untitled) [pie]", plotSummary(p))
}

func TestToChatHistory(t *testing.T) {
	history := toChatHistory([]api.Message{
		{Role: "user", Content: "a"},
		{Role: "assistant", Content: "b"},
	})
	assert.Equal(t, []api.ChatMessage{{Role: "user", Content: "a"}, {Role: "assistant", Content: "b"}}, history)
	assert.NotNil(t, toChatHistory(nil))
}
