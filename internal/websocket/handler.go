package websocket

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"chat-gateway/internal/middleware"
	"chat-gateway/pkg/jwt"
	"chat-gateway/pkg/response"
	"chat-gateway/pkg/util"
)

// Handler 处理 WebSocket 连接
type Handler struct {
	hub        *Hub
	jwtService *jwt.JWTService         // 为 nil 时不做认证
	blacklist  middleware.TokenBlacklist // 可以为 nil
	upgrader   websocket.Upgrader
	log        *zap.Logger
}

// NewHandler 创建 WebSocket Handler
// 参数:
//   - hub: 连接管理器
//   - jwtService: 认证关闭时传 nil
//   - blacklist: Token 黑名单，可以为 nil
//   - origins: 允许的 Origin，为空或包含 * 时不检查
func NewHandler(hub *Hub, jwtService *jwt.JWTService, blacklist middleware.TokenBlacklist, origins []string, log *zap.Logger) *Handler {
	return &Handler{
		hub:        hub,
		jwtService: jwtService,
		blacklist:  blacklist,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(origins),
		},
		log: log,
	}
}

// HandleChatWS 处理对话 WebSocket 连接
// 路由: GET /ws/chat
// 参数: token (query parameter) - 认证开启时必填
func (h *Handler) HandleChatWS(c *gin.Context) {
	clientID := "anonymous"
	if h.jwtService != nil {
		token := c.Query("token")
		if token == "" {
			response.Unauthorized(c, "authentication required")
			return
		}
		claims, err := h.jwtService.ValidateToken(token)
		if err != nil {
			response.Unauthorized(c, "invalid or expired token")
			return
		}
		if h.blacklist != nil && h.blacklist.IsTokenBlacklisted(c.Request.Context(), util.HashToken(token)) {
			response.Unauthorized(c, "token has been revoked")
			return
		}
		clientID = claims.ClientID
	}

	// 升级 HTTP 连接为 WebSocket
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("WebSocket 升级失败", zap.Error(err))
		return
	}

	client := NewClient(h.hub, conn, clientID, h.log)
	h.hub.Register(client)

	// 启动读写协程
	go client.WritePump()
	go client.ReadPump()
}

// RegisterRoutes 注册 WebSocket 路由
// WebSocket 路由不经过 AuthMiddleware（token 在 query 中验证）
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	ws := r.Group("/ws")
	{
		ws.GET("/chat", h.HandleChatWS)
	}
}

func checkOrigin(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		allowed[o] = true
	}
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// 非浏览器客户端不带 Origin
		return origin == "" || allowed[origin]
	}
}
