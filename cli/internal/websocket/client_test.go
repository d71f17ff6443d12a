package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway 收到 chat 后按 user_input 回复
//   - "fail": 返回 error
//   - "hang": 不回复，等待 chat:cancel
//   - 其他: 两段 delta 加 done
func fakeGateway(t *testing.T, cancelled chan<- string) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws/chat", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		write := func(msgType, id string, payload interface{}) {
			_ = conn.WriteJSON(map[string]interface{}{"type": msgType, "message_id": id, "payload": payload})
		}
		for {
			var msg struct {
				Type      string          `json:"type"`
				MessageID string          `json:"message_id"`
				Payload   json.RawMessage `json:"payload"`
			}
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			switch msg.Type {
			case TypeChatCancel:
				cancelled <- msg.MessageID
			case TypeChat:
				var req ChatRequest
				assert.NoError(t, json.Unmarshal(msg.Payload, &req))
				switch req.UserInput {
				case "fail":
					write(TypeError, msg.MessageID, map[string]interface{}{"code": 1501, "message": "model error"})
				case "hang":
				default:
					// 其他对话的消息应被忽略
					write(TypeChatDelta, "other", map[string]string{"content": "noise"})
					write(TypeChatDelta, msg.MessageID, map[string]string{"content": "Hello "})
					write(TypeChatDelta, msg.MessageID, map[string]string{"content": strings.ToUpper(req.UserInput)})
					write(TypeChatDone, msg.MessageID, map[string]string{"content": "Hello " + strings.ToUpper(req.UserInput)})
				}
			}
		}
	}))
}

func dialFake(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	wsBase := "ws" + strings.TrimPrefix(srv.URL, "http")
	c, err := Dial(context.Background(), BuildURL(wsBase, "tok"))
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestChatStreamsDeltas(t *testing.T) {
	srv := fakeGateway(t, make(chan string, 1))
	defer srv.Close()
	c := dialFake(t, srv)

	var deltas []string
	answer, err := c.Chat(context.Background(), &ChatRequest{Mode: "text", UserInput: "bob"}, func(d string) {
		deltas = append(deltas, d)
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello BOB", answer)
	assert.Equal(t, []string{"Hello ", "BOB"}, deltas)

	// 同一连接可以继续对话
	answer, err = c.Chat(context.Background(), &ChatRequest{Mode: "text", UserInput: "amy"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello AMY", answer)
}

func TestChatServerError(t *testing.T) {
	srv := fakeGateway(t, make(chan string, 1))
	defer srv.Close()
	c := dialFake(t, srv)

	_, err := c.Chat(context.Background(), &ChatRequest{UserInput: "fail"}, nil)
	var serverErr *ServerError
	require.ErrorAs(t, err, &serverErr)
	assert.Equal(t, 1501, serverErr.Code)
	assert.Equal(t, "model error", serverErr.Message)
}

func TestChatCancelNotifiesGateway(t *testing.T) {
	cancelled := make(chan string, 1)
	srv := fakeGateway(t, cancelled)
	defer srv.Close()
	c := dialFake(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.Chat(ctx, &ChatRequest{UserInput: "hang"}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	select {
	case id := <-cancelled:
		assert.NotEmpty(t, id)
	case <-time.After(2 * time.Second):
		t.Fatal("gateway did not receive chat:cancel")
	}
}

func TestChatAfterClose(t *testing.T) {
	srv := fakeGateway(t, make(chan string, 1))
	defer srv.Close()
	c := dialFake(t, srv)
	c.Close()

	_, err := c.Chat(context.Background(), &ChatRequest{UserInput: "x"}, nil)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestBuildURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8000/ws/chat", BuildURL("ws://localhost:8000/", ""))
	assert.Equal(t, "wss://h/ws/chat?token=a%2Bb", BuildURL("wss://h", "a+b"))
}
