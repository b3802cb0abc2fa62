package presence

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Handle 一条实时连接的抽象，注册表只需要可比较的身份
type Handle interface {
	// ConnID 连接唯一标识
	ConnID() string
}

// Registry 进程内的在线登记表：用户ID -> 实时连接句柄。
// 不持久化，进程重启后从零重建。
// 注意：register-helper 的身份是客户端声明的，这里不做二次校验，
// 绑定已认证连接身份是后续的加固点。
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Handle
}

// NewRegistry 创建登记表
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Handle)}
}

// Register 无条件登记。同一身份重复登记时后者覆盖前者，
// 旧句柄不做额外清理。
func (r *Registry) Register(identityID string, h Handle) {
	if identityID == "" || h == nil {
		return
	}
	r.mu.Lock()
	r.entries[identityID] = h
	r.mu.Unlock()
	logrus.Infof("helper registered: %s -> %s", identityID, h.ConnID())
}

// Unregister 连接关闭时反向扫描，移除句柄匹配的所有条目。
// 对重复登记具备防御性；小规模下 O(n) 扫描可接受。
func (r *Registry) Unregister(h Handle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	for id, entry := range r.entries {
		if entry.ConnID() == h.ConnID() {
			delete(r.entries, id)
			logrus.Infof("helper unregistered: %s (conn %s)", id, h.ConnID())
		}
	}
	r.mu.Unlock()
}

// Snapshot 返回当前映射的拷贝（用户ID -> 连接ID），用于诊断
func (r *Registry) Snapshot() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.entries))
	for id, h := range r.entries {
		out[id] = h.ConnID()
	}
	return out
}

// Count 当前登记条目数
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
