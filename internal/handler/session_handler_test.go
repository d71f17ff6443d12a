package handler

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chat-gateway/internal/llm/llmtest"
	"chat-gateway/internal/model"
	"chat-gateway/pkg/response"
)

func TestSessionLifecycle(t *testing.T) {
	srv := newTestServer(t, llmtest.New())

	w := srv.do(http.MethodPost, "/api/v1/sessions", map[string]string{"session_id": "s1", "name": "Sales", "mode": "csv"})
	require.Equal(t, http.StatusCreated, w.Code)
	var created model.Session
	decode(t, w, &created)
	assert.Equal(t, "s1", created.SessionID)
	assert.Equal(t, "csv", created.Mode)
	assert.Contains(t, w.Body.String(), `"messages":[]`)

	w = srv.do(http.MethodPost, "/api/v1/sessions", map[string]string{"session_id": "s1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.CodeSessionExists, decode(t, w, nil).Code)

	w = srv.do(http.MethodPost, "/api/v1/sessions", map[string]string{"mode": "video"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(http.MethodPost, "/api/v1/sessions", `{bad json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = srv.do(http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sessions []model.Session
	decode(t, w, &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Sales", sessions[0].Name)

	w = srv.do(http.MethodGet, "/api/v1/sessions/s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail map[string]interface{}
	decode(t, w, &detail)
	assert.Equal(t, "Sales", detail["name"])
	assert.Equal(t, float64(0), detail["message_count"])
	assert.NotContains(t, detail, "messages")

	w = srv.do(http.MethodDelete, "/api/v1/sessions/s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var deleted map[string]string
	decode(t, w, &deleted)
	assert.Equal(t, "Session deleted successfully", deleted["message"])

	w = srv.do(http.MethodDelete, "/api/v1/sessions/s1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.CodeSessionNotFound, decode(t, w, nil).Code)

	w = srv.do(http.MethodGet, "/api/v1/sessions/s1", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSessionGeneratesID(t *testing.T) {
	srv := newTestServer(t, llmtest.New())
	w := srv.do(http.MethodPost, "/api/v1/sessions", map[string]string{})
	require.Equal(t, http.StatusCreated, w.Code)
	var created model.Session
	decode(t, w, &created)
	assert.Len(t, created.SessionID, 36)
	assert.Equal(t, "New Chat", created.Name)
	assert.Equal(t, model.SessionModeText, created.Mode)
}
