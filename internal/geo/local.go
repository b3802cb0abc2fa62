package geo

import (
	"context"
	"sort"
	"sync"
)

// localIndex 进程内地理索引，开发与测试用。
// 线性扫描 + Haversine 排序，规模小时足够。
type localIndex struct {
	mu     sync.RWMutex
	points map[string]Point
}

// NewLocalIndex 创建本地地理索引
func NewLocalIndex() Index {
	return &localIndex{points: make(map[string]Point)}
}

// Upsert 写入或更新成员位置
func (l *localIndex) Upsert(_ context.Context, id string, p Point) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.points[id] = p
	return nil
}

// Remove 移除成员
func (l *localIndex) Remove(_ context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.points, id)
	return nil
}

// Search 距离升序的半径查询；半径为闭区间，与 Redis 实现语义一致
func (l *localIndex) Search(_ context.Context, center Point, radiusMeters float64) ([]Member, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	members := make([]Member, 0)
	for id, p := range l.points {
		d := Haversine(center, p)
		if d <= radiusMeters {
			members = append(members, Member{ID: id, Location: p, Distance: d})
		}
	}

	sort.Slice(members, func(i, j int) bool {
		if members[i].Distance == members[j].Distance {
			return members[i].ID < members[j].ID
		}
		return members[i].Distance < members[j].Distance
	})
	return members, nil
}

// Close 无底层资源
func (l *localIndex) Close() error {
	return nil
}
