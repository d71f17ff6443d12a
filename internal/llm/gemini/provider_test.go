package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"chat-gateway/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := New(llm.Config{APIKey: "test-key", BaseURL: srv.URL, StreamIdleTimeout: time.Second}, zap.NewNop())
	require.NoError(t, err)
	return p
}

func TestBuildRequest(t *testing.T) {
	req := &llm.Request{
		Temperature: 0.3,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: "be brief"},
			{Role: llm.RoleUser, Content: "describe", Images: []llm.Image{{MIMEType: "image/png", Data: []byte{1, 2, 3}}}},
			{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{{Name: "plotChart", Arguments: map[string]interface{}{"data": "{}"}}}},
			{Role: llm.RoleTool, Name: "plotChart", Content: "ok"},
		},
		Tools: []llm.Tool{{Name: "plotChart", Description: "plot"}},
	}

	out := buildRequest(req)
	require.NotNil(t, out.SystemInstruction)
	assert.Equal(t, "be brief", out.SystemInstruction.Parts[0].Text)
	require.Len(t, out.Contents, 3)

	user := out.Contents[0]
	assert.Equal(t, "user", user.Role)
	require.Len(t, user.Parts, 2)
	assert.Equal(t, "image/png", user.Parts[0].InlineData.MimeType)
	assert.Equal(t, "AQID", user.Parts[0].InlineData.Data)
	assert.Equal(t, "describe", user.Parts[1].Text)

	assert.Equal(t, "model", out.Contents[1].Role)
	assert.Equal(t, "plotChart", out.Contents[1].Parts[0].FunctionCall.Name)
	assert.Equal(t, "plotChart", out.Contents[2].Parts[0].FunctionResponse.Name)

	require.Len(t, out.Tools, 1)
	assert.Equal(t, "object", out.Tools[0].FunctionDeclarations[0].Parameters["type"])
	assert.Equal(t, 0.3, *out.GenerationConfig.Temperature)
}

func TestGenerate(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))

		var body apiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hi", body.Contents[0].Parts[0].Text)

		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"hel"},{"text":"lo"},{"functionCall":{"name":"plotChart","args":{"data":"{}"}}}]},"finishReason":"STOP"}],"usageMetadata":{"totalTokenCount":12},"modelVersion":"gemini-2.5-flash"}`)
	})

	resp, err := p.Generate(context.Background(), &llm.Request{
		Model:    "models/gemini-2.5-flash",
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Content)
	assert.Equal(t, "STOP", resp.FinishReason)
	assert.Equal(t, 12, resp.TokensUsed)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "plotChart", resp.ToolCalls[0].Name)
	assert.Equal(t, "{}", resp.ToolCalls[0].Arguments["data"])
}

func TestGenerateAPIError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"quota exceeded"}}`)
	})

	_, err := p.Generate(context.Background(), &llm.Request{Model: "gemini-2.5-flash"})
	require.Error(t, err)
	assert.True(t, llm.IsRateLimited(err))
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestStream(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hello\"}]}}]}\n\n")
		fmt.Fprint(w, "data: not-json\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"thinking\",\"thought\":true}]}}]}\n\n")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\" world\"}]},\"finishReason\":\"STOP\"}],\"usageMetadata\":{\"promptTokenCount\":3,\"candidatesTokenCount\":2}}\n\n")
	})

	ch := make(chan llm.StreamChunk, 16)
	resp, err := p.Stream(context.Background(), &llm.Request{Model: "gemini-2.5-flash"}, ch)
	require.NoError(t, err)
	close(ch)

	var deltas []string
	var finish string
	for c := range ch {
		if c.Delta != "" {
			deltas = append(deltas, c.Delta)
		}
		if c.FinishReason != "" {
			finish = c.FinishReason
		}
	}
	assert.Equal(t, []string{"Hello", " world"}, deltas)
	assert.Equal(t, "STOP", finish)
	assert.Equal(t, "Hello world", resp.Content)
	assert.Equal(t, 5, resp.TokensUsed)
}

func TestStreamIdleTimeout(t *testing.T) {
	release := make(chan struct{})
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	p.idleTimeout = 100 * time.Millisecond

	ch := make(chan llm.StreamChunk, 1)
	_, err := p.Stream(context.Background(), &llm.Request{Model: "gemini-2.5-flash"}, ch)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrStreamStalled)
}

func TestStreamStallAfterPartialOutput(t *testing.T) {
	release := make(chan struct{})
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"candidates\":[{\"content\":{\"parts\":[{\"text\":\"Hello\"}]}}]}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	p.idleTimeout = 100 * time.Millisecond

	ch := make(chan llm.StreamChunk, 4)
	resp, err := p.Stream(context.Background(), &llm.Request{Model: "gemini-2.5-flash"}, ch)
	assert.ErrorIs(t, err, llm.ErrStreamStalled)
	require.NotNil(t, resp)
	assert.Equal(t, "Hello", resp.Content)
	assert.Empty(t, resp.FinishReason)

	close(ch)
	var deltas []string
	for c := range ch {
		assert.Empty(t, c.FinishReason)
		if c.Delta != "" {
			deltas = append(deltas, c.Delta)
		}
	}
	assert.Equal(t, []string{"Hello"}, deltas)
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(llm.Config{}, zap.NewNop())
	assert.Error(t, err)
}
