package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second    // 允许写入消息到对端的最大时间
	pongWait       = 60 * time.Second    // 允许读取下一个 pong 消息的最大时间
	pingPeriod     = (pongWait * 9) / 10 // 发送 ping 到对端的周期。必须小于 pongWait
	maxMessageSize = 512                 // 允许来自对端的最大消息大小
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// GroupResolver 返回用户能看到的群组 ID 列表
type GroupResolver interface {
	VisibleGroupIDs(ctx context.Context, userID uint, role string) ([]uint, error)
}

// Client 代表一个看板的 WebSocket 连接, 只接收推送
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan *BroadcastMessage // 缓冲通道，用于发送消息
	userID   uint
	groupIDs []uint // 订阅的群组
}

func newClient(hub *Hub, conn *websocket.Conn, userID uint, groupIDs []uint) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan *BroadcastMessage, 256),
		userID:   userID,
		groupIDs: groupIDs,
	}
}

// readPump 只负责心跳和断开检测, 客户端发来的内容直接丢弃
func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("websocket closed unexpectedly", zap.Uint("user_id", c.userID), zap.Error(err))
			}
			return
		}
	}
}

// writePump 泵送来自 Hub 的消息到 WebSocket 连接
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub 关闭了通道
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}

			// 客户端根据 group_id 判断是哪个群组的事件
			enc := json.NewEncoder(w)
			enc.Encode(msg)

			// 添加队列中的其他消息（如果有）
			n := len(c.send)
			for range n {
				enc.Encode(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs 处理 WebSocket 请求, 需要先经过鉴权中间件
func ServeWs(hub *Hub, groups GroupResolver, c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	uID := userID.(uint)
	role := c.GetString("role")

	// 先查订阅列表, 失败时还能返回普通 HTTP 错误
	groupIDs, err := groups.VisibleGroupIDs(c.Request.Context(), uID, role)
	if err != nil {
		hub.log.ErrorContext(c.Request.Context(), "failed to resolve dashboard groups", zap.Uint("user_id", uID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve groups"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		hub.log.WarnContext(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(hub, conn, uID, groupIDs)
	if !hub.Register(client) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	go client.writePump()
	go client.readPump()
}
