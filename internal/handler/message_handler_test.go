package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-gateway/internal/llm/llmtest"
	"chat-gateway/internal/model"
	"chat-gateway/pkg/response"
)

func createSession(t *testing.T, srv *testServer, id string) {
	t.Helper()
	w := srv.do(http.MethodPost, "/api/v1/sessions", map[string]string{"session_id": id})
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestMessages(t *testing.T) {
	srv := newTestServer(t, llmtest.New())
	createSession(t, srv, "s1")

	w := srv.do(http.MethodPost, "/api/v1/sessions/missing/messages", map[string]string{"role": "user", "content": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(http.MethodPost, "/api/v1/sessions/s1/messages", map[string]string{"role": "bot", "content": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(http.MethodPost, "/api/v1/sessions/s1/messages", map[string]string{"role": "user", "content": "**hi**"})
	require.Equal(t, http.StatusOK, w.Code)
	var msg model.Message
	decode(t, w, &msg)
	assert.Equal(t, "s1", msg.SessionID)
	assert.Equal(t, "text", msg.MessageType)

	w = srv.do(http.MethodPost, "/api/v1/sessions/s1/messages", map[string]string{
		"role": "assistant", "content": "later", "timestamp": "2030-01-01T00:00:00Z",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = srv.do(http.MethodGet, "/api/v1/sessions/s1/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var msgs []model.Message
	decode(t, w, &msgs)
	require.Len(t, msgs, 2)
	assert.Equal(t, "**hi**", msgs[0].Content)
	assert.Equal(t, "later", msgs[1].Content)
	assert.NotContains(t, w.Body.String(), "content_html")

	w = srv.do(http.MethodGet, "/api/v1/sessions/s1/messages?format=html", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rendered []map[string]interface{}
	decode(t, w, &rendered)
	require.Len(t, rendered, 2)
	assert.Contains(t, rendered[0]["content_html"], "<strong>hi</strong>")
	assert.Equal(t, "**hi**", rendered[0]["content"])

	w = srv.do(http.MethodGet, "/api/v1/sessions/s1/messages?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &msgs)
	require.Len(t, msgs, 1)
	assert.Equal(t, "later", msgs[0].Content)

	w = srv.do(http.MethodGet, "/api/v1/sessions/s1/messages?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMessagesUnknownSessionIsEmpty(t *testing.T) {
	srv := newTestServer(t, llmtest.New())
	w := srv.do(http.MethodGet, "/api/v1/sessions/nope/messages", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var msgs []model.Message
	decode(t, w, &msgs)
	assert.Empty(t, msgs)
}

func TestFiles(t *testing.T) {
	srv := newTestServer(t, llmtest.New())
	createSession(t, srv, "s1")

	info := map[string]interface{}{
		"file_type": "csv_info",
		"file_data": map[string]interface{}{"filename": "a.csv", "rows": 3},
		"file_name": "a.csv",
	}
	w := srv.do(http.MethodPost, "/api/v1/sessions/missing/files", info)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = srv.do(http.MethodPost, "/api/v1/sessions/s1/files", info)
	require.Equal(t, http.StatusOK, w.Code)

	w = srv.do(http.MethodGet, "/api/v1/sessions/s1/files/csv_info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var file model.SessionFile
	decode(t, w, &file)
	assert.Equal(t, "csv_info", file.FileType)
	assert.JSONEq(t, `{"filename":"a.csv","rows":3}`, string(file.FileData))

	w = srv.do(http.MethodGet, "/api/v1/sessions/s1/files/image", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeFileNotFound, decode(t, w, nil).Code)

	big := make([]byte, 5000)
	for i := range big {
		big[i] = 'a'
	}
	w = srv.do(http.MethodPost, "/api/v1/sessions/s1/files", map[string]interface{}{
		"file_type": "csv_data",
		"file_data": map[string]string{"csv_data": string(big)},
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = srv.do(http.MethodPost, "/api/v1/sessions/s1/files", map[string]interface{}{
		"file_type": "csv_data",
		"file_data": "not an object",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(http.MethodDelete, "/api/v1/sessions/s1/files/csv_info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = srv.do(http.MethodGet, "/api/v1/sessions/s1/files/csv_info", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = srv.do(http.MethodDelete, "/api/v1/sessions/s1/files/csv_info", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeFileNotFound, decode(t, w, nil).Code)
}

func TestGetPlots(t *testing.T) {
	srv := newTestServer(t, llmtest.New())

	w := srv.do(http.MethodGet, "/api/v1/sessions/s1/plots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, string(decode(t, w, nil).Data))

	require.NoError(t, srv.cache.SetPlots(context.Background(), "s1", []model.Plot{
		{Data: json.RawMessage(`[{"type":"bar"}]`), Layout: json.RawMessage(`{}`)},
	}))
	w = srv.do(http.MethodGet, "/api/v1/sessions/s1/plots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var plots []model.Plot
	decode(t, w, &plots)
	require.Len(t, plots, 1)
	assert.JSONEq(t, `[{"type":"bar"}]`, string(plots[0].Data))
}
