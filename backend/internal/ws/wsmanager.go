package ws

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"workspaceServer/backend/internal/cache"
	"workspaceServer/backend/internal/events"
)

// 允许本地开发环境的来源；一些环境不发送 Origin，或为 "null"
var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || origin == "null" {
		return true
	}
	allowedPrefixes := []string{
		"http://localhost",
		"http://127.0.0.1",
		"https://localhost",
		"https://127.0.0.1",
	}
	for _, p := range allowedPrefixes {
		if strings.HasPrefix(origin, p) {
			return true
		}
	}
	return false
}}

type Manager struct {
	h          *Hub
	presence   cache.PresenceCache
	dispatcher *events.KafkaDispatcher
}

func NewManager(h *Hub, presence cache.PresenceCache, dispatcher *events.KafkaDispatcher) *Manager {
	return &Manager{h: h, presence: presence, dispatcher: dispatcher}
}

// WebSocketConnect 升级连接并进入读循环。身份已由鉴权中间件写入 gin.Context。
func (m *Manager) WebSocketConnect(c *gin.Context) {
	userID := c.GetString("userId")
	email := c.GetString("email")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v (origin=%s)", err, c.Request.Header.Get("Origin"))
		return
	}
	defer conn.Close()

	wsConn := NewConn(conn, m.h, userID, email, m.presence, m.dispatcher)

	// 先启动写循环，确保后续写入 send 通道的消息可以被及时发送
	go wsConn.writeLoop()
	wsConn.Enqueue(ServerMessage{Type: EventWelcome, Content: "connected"})

	// 读循环阻塞至连接关闭
	wsConn.readLoop(c.Request.Context())
}
