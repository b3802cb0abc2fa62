package websocket

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Message 定义WebSocket消息结构
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// Hub 管理所有WebSocket连接。
// 广播是无目标的全量扇出：不按角色、在线状态或距离过滤，
// 投递尽力而为，断连方错过的事件需调用方自行回查。
type Hub struct {
	// 注册的连接
	connections map[string]*Connection
	// 广播消息通道
	broadcast chan *Message
	// 注册连接通道
	register chan *Connection
	// 注销连接通道
	unregister chan *Connection
	// 连接计数
	connectionCount int64
	// 配置
	config *Config
	// 互斥锁
	mu sync.RWMutex
	// 上下文
	ctx    context.Context
	cancel context.CancelFunc

	// shards and locks to reduce contention when fanout
	shardCount int
	shardConns []map[string]*Connection
	shardLocks []sync.RWMutex

	// broadcast worker pool
	broadcastJobs chan broadcastJob

	// OnHelperRegister 客户端声明身份（register-helper）时回调
	OnHelperRegister func(identityID string, conn *Connection)
	// OnDisconnect 连接注销后回调（用于清理在线登记表）
	OnDisconnect func(conn *Connection)
}

const (
	_broadcastAll = iota
)

type broadcastJob struct {
	kind  int
	shard int
	data  []byte
}

// NewHub 创建新的Hub实例
func NewHub(config *Config) *Hub {
	if config == nil {
		config = DefaultConfig()
	}

	ctx, cancel := context.WithCancel(context.Background())

	hub := &Hub{
		connections: make(map[string]*Connection),
		broadcast:   make(chan *Message, config.MessageQueueSize),
		register:    make(chan *Connection, 1000),
		unregister:  make(chan *Connection, 1000),
		config:      config,
		ctx:         ctx,
		cancel:      cancel,
	}

	// init shards
	if hub.config.ShardCount <= 0 {
		hub.config.ShardCount = 1
	}
	hub.shardCount = hub.config.ShardCount
	hub.shardConns = make([]map[string]*Connection, hub.shardCount)
	hub.shardLocks = make([]sync.RWMutex, hub.shardCount)
	for i := 0; i < hub.shardCount; i++ {
		hub.shardConns[i] = make(map[string]*Connection)
	}

	// init broadcast workers
	if hub.config.BroadcastWorkerCount <= 0 {
		hub.config.BroadcastWorkerCount = 1
	}
	hub.broadcastJobs = make(chan broadcastJob, hub.config.MessageQueueSize)
	for i := 0; i < hub.config.BroadcastWorkerCount; i++ {
		go hub.broadcastWorker()
	}

	go hub.run()
	return hub
}

// Broadcast 向所有当前连接投递事件，入队失败只记日志不报错
func (h *Hub) Broadcast(event string, data interface{}) {
	message := &Message{Type: event, Data: data}
	select {
	case h.broadcast <- message:
	default:
		logrus.Warnf("广播队列已满，事件被丢弃: %s", event)
	}
}

// run Hub主循环
func (h *Hub) run() {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case conn := <-h.register:
			h.registerConnection(conn)
		case conn := <-h.unregister:
			h.unregisterConnection(conn)
		case message := <-h.broadcast:
			// 单次序列化减少重复开销
			if message.Timestamp == 0 {
				message.Timestamp = time.Now().Unix()
			}
			data, err := json.Marshal(message)
			if err != nil {
				logrus.Errorf("消息序列化失败: %v", err)
				continue
			}
			h.enqueueBroadcastAll(data)
		case <-ticker.C:
			h.checkHeartbeats()
		}
	}
}

// registerConnection 注册连接
func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 检查最大连接数
	if atomic.LoadInt64(&h.connectionCount) >= h.config.MaxConnections {
		conn.Conn.Close()
		logrus.Warnf("达到最大连接数限制: %d", h.config.MaxConnections)
		return
	}

	h.connections[conn.ID] = conn
	atomic.AddInt64(&h.connectionCount, 1)

	// 放入分片
	sh := h.shardIndex(conn.ID)
	h.shardLocks[sh].Lock()
	h.shardConns[sh][conn.ID] = conn
	h.shardLocks[sh].Unlock()

	logrus.Infof("WebSocket连接已注册: %s, 用户: %s, 当前连接数: %d",
		conn.ID, conn.UserID, atomic.LoadInt64(&h.connectionCount))
}

// unregisterConnection 注销连接
func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()

	_, exists := h.connections[conn.ID]
	if exists {
		delete(h.connections, conn.ID)
		atomic.AddInt64(&h.connectionCount, -1)

		// 从分片移除
		sh := h.shardIndex(conn.ID)
		h.shardLocks[sh].Lock()
		delete(h.shardConns[sh], conn.ID)
		h.shardLocks[sh].Unlock()

		close(conn.Send)
		logrus.Infof("WebSocket连接已注销: %s, 当前连接数: %d",
			conn.ID, atomic.LoadInt64(&h.connectionCount))
	}
	h.mu.Unlock()

	if exists && h.OnDisconnect != nil {
		h.OnDisconnect(conn)
	}
}

// checkHeartbeats 检查心跳
func (h *Hub) checkHeartbeats() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := time.Now()
	for _, conn := range h.connections {
		// LastPing 由pong处理协程并发写，读取须持连接锁
		if now.Sub(conn.lastPingTime()) > h.config.ConnectionTimeout {
			logrus.Warnf("连接 %s 心跳超时，准备关闭", conn.ID)
			conn.IsAlive = false
			conn.Conn.Close()
		}
	}
}

// GetConnectionCount 获取当前连接数
func (h *Hub) GetConnectionCount() int64 {
	return atomic.LoadInt64(&h.connectionCount)
}

// Close 关闭Hub
func (h *Hub) Close() {
	h.cancel()

	// 关闭所有连接
	h.mu.Lock()
	for _, conn := range h.connections {
		conn.Conn.Close()
	}
	h.mu.Unlock()

	logrus.Info("WebSocket Hub已关闭")
}

// shardIndex 计算分片索引
func (h *Hub) shardIndex(id string) int {
	if h.shardCount <= 1 {
		return 0
	}
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(id))
	return int(hasher.Sum32() % uint32(h.shardCount))
}

// enqueueBroadcastAll 将广播任务按分片入队
func (h *Hub) enqueueBroadcastAll(data []byte) {
	for i := 0; i < h.shardCount; i++ {
		select {
		case h.broadcastJobs <- broadcastJob{kind: _broadcastAll, shard: i, data: data}:
		default:
			logrus.Warnf("广播作业队列已满，消息被丢弃")
		}
	}
}

// broadcastWorker 广播worker
func (h *Hub) broadcastWorker() {
	for job := range h.broadcastJobs {
		switch job.kind {
		case _broadcastAll:
			h.shardLocks[job.shard].RLock()
			for _, conn := range h.shardConns[job.shard] {
				if conn.IsAlive {
					h.trySend(conn, job.data, func() { logrus.Debugf("连接 %s 发送缓冲区满，已按策略处理", conn.ID) })
				}
			}
			h.shardLocks[job.shard].RUnlock()
		}
	}
}

// trySend 背压策略
func (h *Hub) trySend(conn *Connection, data []byte, onDrop func()) {
	if h.config.DropOnFull {
		select {
		case conn.Send <- data:
		default:
			onDrop()
			if h.config.CloseOnBackpressure {
				conn.Conn.Close()
			}
		}
		return
	}
	// 非丢弃模式：限定等待时长
	timeout := h.config.SendTimeout
	if timeout <= 0 {
		timeout = 50 * time.Millisecond
	}
	select {
	case conn.Send <- data:
	case <-time.After(timeout):
		onDrop()
		if h.config.CloseOnBackpressure {
			conn.Conn.Close()
		}
	}
}
