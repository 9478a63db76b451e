package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	logger "github.com/Gopher0727/ProfDash/middleware/log"
)

const redisChannelName = "profdash:dashboard:broadcast"

// Hub 维护活跃的看板连接, 按群组分房间广播事件
type Hub struct {
	// 注册的客户端
	clients map[*Client]bool

	// 房间 GroupID -> Client -> bool
	rooms map[uint]map[*Client]bool

	// 互斥锁，保护 map 的并发读写
	mu sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	// run 退出后关闭, 之后的注册/注销/广播都直接放弃
	done chan struct{}

	// Redis 客户端，用于多实例之间广播, 为 nil 时只做本地广播
	redis *redis.Client

	log *logger.Logger
}

// BroadcastMessage 广播消息结构
type BroadcastMessage struct {
	GroupID uint `json:"group_id"`
	Message any  `json:"message"`
}

func NewHub(redisClient *redis.Client, log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		rooms:      make(map[uint]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		redis:      redisClient,
		log:        log,
	}
}

// Start 订阅 Redis 频道 (若启用) 并启动分发循环, ctx 结束时退出
func (h *Hub) Start(ctx context.Context) error {
	if h.redis != nil {
		pubsub := h.redis.Subscribe(ctx, redisChannelName)
		// 等待订阅确认, 保证 Start 返回后发布的消息不会丢
		if _, err := pubsub.Receive(ctx); err != nil {
			_ = pubsub.Close()
			return fmt.Errorf("subscribe %s: %w", redisChannelName, err)
		}
		go h.forward(ctx, pubsub)
	}
	go h.run(ctx)
	return nil
}

func (h *Hub) run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.removeLocked(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			for _, groupID := range client.groupIDs {
				if _, ok := h.rooms[groupID]; !ok {
					h.rooms[groupID] = make(map[*Client]bool)
				}
				h.rooms[groupID][client] = true
			}
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(client)
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			// 收集需要关闭的客户端，避免在 RLock 中修改 map
			var slow []*Client
			for client := range h.rooms[msg.GroupID] {
				select {
				case client.send <- msg:
				default:
					slow = append(slow, client)
				}
			}
			h.mu.RUnlock()

			if len(slow) > 0 {
				h.mu.Lock()
				for _, client := range slow {
					h.removeLocked(client)
				}
				h.mu.Unlock()
			}
		}
	}
}

// removeLocked 必须持有写锁
func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)
	for _, groupID := range client.groupIDs {
		if room, ok := h.rooms[groupID]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, groupID)
			}
		}
	}
}

func (h *Hub) forward(ctx context.Context, pubsub *redis.PubSub) {
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var bm BroadcastMessage
			if err := json.Unmarshal([]byte(msg.Payload), &bm); err != nil {
				h.log.Warn("invalid broadcast payload", zap.Error(err))
				continue
			}
			// 不能再 Publish 回 Redis, 直接交给本地分发
			h.deliver(ctx, &bm)
		}
	}
}

func (h *Hub) deliver(ctx context.Context, msg *BroadcastMessage) {
	select {
	case h.broadcast <- msg:
	case <-ctx.Done():
	case <-h.done:
	}
}

// Register 把客户端加入它订阅的房间, Hub 已停止时返回 false
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister 移除客户端, Hub 已停止时客户端早已被清理
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastToGroup 发送消息到指定群组的所有看板
func (h *Hub) BroadcastToGroup(groupID uint, message any) {
	msg := &BroadcastMessage{GroupID: groupID, Message: message}

	if h.redis != nil {
		// 发布到 Redis，让所有实例（包括自己）通过订阅收到消息
		payload, err := json.Marshal(msg)
		if err != nil {
			h.log.Warn("failed to encode broadcast", zap.Uint("group_id", groupID), zap.Error(err))
			return
		}
		if err := h.redis.Publish(context.Background(), redisChannelName, payload).Err(); err != nil {
			h.log.Warn("redis publish failed, delivering locally", zap.Error(err))
			h.deliver(context.Background(), msg)
		}
		return
	}
	h.deliver(context.Background(), msg)
}

// RoomSize 当前连接到某个群组房间的客户端数
func (h *Hub) RoomSize(groupID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[groupID])
}
