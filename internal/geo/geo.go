package geo

import (
	"context"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"math"
)

// Point 系统内部唯一的坐标类型。
// 持久化与 GeoJSON 一致采用 [经度, 纬度] 顺序；HTTP 边界使用 {lat, lng}，
// 两种形态的转换只发生在各自的边界函数里。
type Point struct {
	Lng float64 `json:"lng"`
	Lat float64 `json:"lat"`
}

// NewPoint 从请求边界的 lat/lng 构造内部坐标
func NewPoint(lat, lng float64) Point {
	return Point{Lng: lng, Lat: lat}
}

// Valid 校验坐标取值范围
func (p Point) Valid() bool {
	return p.Lng >= -180 && p.Lng <= 180 && p.Lat >= -90 && p.Lat <= 90
}

// Value 实现 driver.Valuer，持久化为 JSON 数组 [lng, lat]
func (p Point) Value() (driver.Value, error) {
	return json.Marshal([2]float64{p.Lng, p.Lat})
}

// Scan 实现 sql.Scanner
func (p *Point) Scan(src interface{}) error {
	if src == nil {
		*p = Point{}
		return nil
	}
	var raw []byte
	switch v := src.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("geo: cannot scan %T into Point", src)
	}
	var coords [2]float64
	if err := json.Unmarshal(raw, &coords); err != nil {
		return fmt.Errorf("geo: malformed point %q: %w", raw, err)
	}
	p.Lng, p.Lat = coords[0], coords[1]
	return nil
}

// Member 近邻查询结果中的一个成员，按距离升序返回
type Member struct {
	ID       string
	Location Point
	Distance float64 // 米
}

// Index 球面近邻索引。半径为闭区间：恰好位于 radius 上的成员会被返回，
// 与 Redis GEOSEARCH 的语义一致。
type Index interface {
	// Upsert 写入或更新成员位置
	Upsert(ctx context.Context, id string, p Point) error

	// Remove 移除成员
	Remove(ctx context.Context, id string) error

	// Search 返回以 center 为圆心、radiusMeters 内的成员，距离升序
	Search(ctx context.Context, center Point, radiusMeters float64) ([]Member, error)

	// Close 释放底层资源
	Close() error
}

const earthRadiusMeters = 6372797.560856 // 与 Redis GEO 使用的地球半径一致

// Haversine 计算两点间大圆距离（米）
func Haversine(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}
