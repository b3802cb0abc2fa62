package geo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig Redis地理索引配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string // GEO集合键名
}

// redisIndex 基于 Redis GEO 命令的球面索引实现
type redisIndex struct {
	client *redis.Client
	key    string
}

// NewRedisIndex 创建Redis地理索引
func NewRedisIndex(config RedisConfig) (Index, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	key := config.Key
	if key == "" {
		key = "lifeline:geo:users"
	}
	return &redisIndex{client: client, key: key}, nil
}

// Upsert 写入或更新成员位置（GEOADD 对已有成员即为更新）
func (r *redisIndex) Upsert(ctx context.Context, id string, p Point) error {
	return r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Name:      id,
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

// Remove 移除成员（GEO集合底层是有序集合）
func (r *redisIndex) Remove(ctx context.Context, id string) error {
	return r.client.ZRem(ctx, r.key, id).Err()
}

// Search 距离升序的半径查询，半径闭区间由 GEOSEARCH 保证
func (r *redisIndex) Search(ctx context.Context, center Point, radiusMeters float64) ([]Member, error) {
	locations, err := r.client.GeoSearchLocation(ctx, r.key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  center.Lng,
			Latitude:   center.Lat,
			Radius:     radiusMeters,
			RadiusUnit: "m",
			Sort:       "ASC",
		},
		WithCoord: true,
		WithDist:  true,
	}).Result()
	if err != nil {
		return nil, err
	}

	members := make([]Member, 0, len(locations))
	for _, loc := range locations {
		members = append(members, Member{
			ID:       loc.Name,
			Location: Point{Lng: loc.Longitude, Lat: loc.Latitude},
			Distance: loc.Dist,
		})
	}
	return members, nil
}

// Close 关闭Redis连接
func (r *redisIndex) Close() error {
	return r.client.Close()
}
