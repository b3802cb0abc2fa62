package geo

import "fmt"

// NewIndex 根据配置创建地理索引
// backend: "redis" 或 "local"
func NewIndex(backend string, redisConfig RedisConfig) (Index, error) {
	switch backend {
	case "redis":
		return NewRedisIndex(redisConfig)
	case "local", "":
		return NewLocalIndex(), nil
	default:
		return nil, fmt.Errorf("unsupported geo backend: %s", backend)
	}
}
