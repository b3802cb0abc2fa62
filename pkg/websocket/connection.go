package websocket

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Connection 表示一个WebSocket连接
type Connection struct {
	ID       string
	UserID   string
	Conn     *websocket.Conn
	Send     chan []byte
	Hub      *Hub
	LastPing time.Time
	IsAlive  bool
	mu       sync.RWMutex
}

// ConnID 连接唯一标识（供在线登记表反向匹配）
func (c *Connection) ConnID() string {
	return c.ID
}

// lastPingTime 带锁读取最近心跳时间
func (c *Connection) lastPingTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LastPing
}

// newUpgrader 根据配置创建WebSocket升级器
func newUpgrader(cfg *Config) websocket.Upgrader {
	up := websocket.Upgrader{
		ReadBufferSize:  cfg.ReadBufferSize,
		WriteBufferSize: cfg.WriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			// 在生产环境中应该检查Origin
			return true
		},
		EnableCompression: cfg.EnableCompression,
	}
	return up
}

// HandleWebSocket 处理WebSocket连接
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request, userID string) {
	// 升级HTTP连接为WebSocket
	upgrader := newUpgrader(hub.config)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.Errorf("WebSocket升级失败: %v", err)
		return
	}

	// 压缩设置
	if hub.config.EnableCompression {
		conn.EnableWriteCompression(true)
		if hub.config.CompressionLevel != 0 {
			_ = conn.SetCompressionLevel(hub.config.CompressionLevel)
		}
	}

	// 创建连接实例
	connection := &Connection{
		ID:       generateConnectionID(),
		UserID:   userID,
		Conn:     conn,
		Send:     make(chan []byte, hub.config.MessageBufferSize),
		Hub:      hub,
		LastPing: time.Now(),
		IsAlive:  true,
	}

	// 注册连接到Hub
	hub.register <- connection

	// 启动读写协程
	go connection.writePump()
	go connection.readPump()
}

// generateConnectionID 生成唯一的连接ID
func generateConnectionID() string {
	return fmt.Sprintf("conn_%d", time.Now().UnixNano())
}

// readPump 读取消息的协程
func (c *Connection) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(int64(c.Hub.config.MaxMessageSize))
	c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.LastPing = time.Now()
		c.mu.Unlock()
		c.Conn.SetReadDeadline(time.Now().Add(c.Hub.config.ConnectionTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket读取错误: %v", err)
			}
			break
		}

		// 处理接收到的消息
		c.handleMessage(message)
	}
}

// writePump 发送消息的协程
func (c *Connection) writePump() {
	interval := c.Hub.config.HeartbeatInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(time.Duration(float64(interval) * 0.9))
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			_, _ = w.Write(message)

			// 将队列中的其他消息也一起发送
			n := len(c.Send)
			for i := 0; i < n; i++ {
				_, _ = w.Write([]byte{'\n'})
				_, _ = w.Write(<-c.Send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleMessage 处理接收到的消息
func (c *Connection) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		logrus.Errorf("消息解析失败: %v", err)
		return
	}

	switch msg.Type {
	case MessageTypePing:
		c.handlePing()
	case MessageTypeRegisterHelper:
		c.handleRegisterHelper(msg)
	default:
		logrus.Warnf("未知的消息类型: %s", msg.Type)
	}
}

// handlePing 处理ping消息
func (c *Connection) handlePing() {
	c.mu.Lock()
	c.LastPing = time.Now()
	c.mu.Unlock()

	// 发送pong响应
	response := Message{
		Type:      MessageTypePong,
		Timestamp: time.Now().Unix(),
	}

	data, _ := json.Marshal(response)
	select {
	case c.Send <- data:
	default:
		logrus.Warnf("连接 %s 发送缓冲区已满", c.ID)
	}
}

// handleRegisterHelper 处理响应者登记消息。
// 身份取自客户端声明的字符串，与连接认证身份未做绑定（保留原始行为）。
func (c *Connection) handleRegisterHelper(msg Message) {
	identityID, ok := msg.Data.(string)
	if !ok || identityID == "" {
		logrus.Warnf("无效的登记身份: %v", msg.Data)
		return
	}

	if c.Hub.OnHelperRegister != nil {
		c.Hub.OnHelperRegister(identityID, c)
	}
}

// SendMessage 发送消息给当前连接
func (c *Connection) SendMessage(message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	select {
	case c.Send <- data:
		return nil
	default:
		return fmt.Errorf("发送缓冲区已满")
	}
}
