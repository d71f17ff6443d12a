package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"chat-gateway/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", handler)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	p, err := New(llm.Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestBuildRequestWithImage(t *testing.T) {
	req, err := buildRequest(&llm.Request{
		Model: "gpt-4o",
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "sys"},
			{Role: llm.RoleUser, Content: "what is this", Images: []llm.Image{{MIMEType: "image/jpeg", Data: []byte("abc")}}},
		},
		Tools: []llm.Tool{{Name: "plotChart"}},
	})
	require.NoError(t, err)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "sys", req.Messages[0].Content)

	user := req.Messages[1]
	assert.Empty(t, user.Content)
	require.Len(t, user.MultiContent, 2)
	assert.Equal(t, "what is this", user.MultiContent[0].Text)
	assert.Equal(t, "data:image/jpeg;base64,YWJj", user.MultiContent[1].ImageURL.URL)

	require.Len(t, req.Tools, 1)
	assert.Equal(t, "plotChart", req.Tools[0].Function.Name)
}

func TestGenerateWithToolCall(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"id":    "chatcmpl-1",
			"model": "gpt-4o",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "tool_calls",
				"message": map[string]interface{}{
					"role": "assistant",
					"tool_calls": []map[string]interface{}{{
						"id":       "call_1",
						"type":     "function",
						"function": map[string]interface{}{"name": "plotChart", "arguments": `{"data":"{}"}`},
					}},
				},
			}},
			"usage": map[string]int{"total_tokens": 9},
		})
	})

	resp, err := p.Generate(context.Background(), &llm.Request{Model: "gpt-4o", Messages: []llm.Message{{Role: llm.RoleUser, Content: "plot"}}})
	require.NoError(t, err)
	assert.Equal(t, "tool_calls", resp.FinishReason)
	assert.Equal(t, 9, resp.TokensUsed)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "call_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "{}", resp.ToolCalls[0].Arguments["data"])
}

func TestStream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, delta := range []string{"Hel", "lo"} {
			fmt.Fprintf(w, "data: {\"id\":\"1\",\"model\":\"gpt-4o\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", delta)
		}
		fmt.Fprint(w, "data: {\"id\":\"1\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	ch := make(chan llm.StreamChunk, 8)
	resp, err := p.Stream(context.Background(), &llm.Request{Model: "gpt-4o"}, ch)
	require.NoError(t, err)
	close(ch)

	var text string
	for c := range ch {
		text += c.Delta
	}
	assert.Equal(t, "Hello", text)
	assert.Equal(t, "Hello", resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, "gpt-4o", resp.Model)
}

func TestAPIErrorIsMapped(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	})

	_, err := p.Generate(context.Background(), &llm.Request{Model: "gpt-4o"})
	require.Error(t, err)
	assert.True(t, llm.IsRateLimited(err))
}
