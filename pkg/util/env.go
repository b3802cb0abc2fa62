package util

import (
	"bufio"
	"os"
	"strings"

	"github.com/spf13/cast"
)

// LoadEnv 根据环境名加载 .env 文件（如 .env.development）
// 已存在的环境变量优先，文件中的值不覆盖
func LoadEnv(env string) error {
	filename := ".env." + env
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		filename = ".env"
	}

	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if _, exists := os.LookupEnv(key); !exists {
			_ = os.Setenv(key, value)
		}
	}
	return scanner.Err()
}

// GetEnv 获取环境变量字符串值
func GetEnv(key string) string {
	return os.Getenv(key)
}

// GetEnvDefault 获取环境变量，缺失时返回默认值
func GetEnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetIntEnv 获取环境变量整数值
func GetIntEnv(key string) int64 {
	return cast.ToInt64(os.Getenv(key))
}

// GetIntEnvDefault 获取环境变量整数值，缺失或非法时返回默认值
func GetIntEnvDefault(key string, def int64) int64 {
	v, err := cast.ToInt64E(os.Getenv(key))
	if err != nil || os.Getenv(key) == "" {
		return def
	}
	return v
}

// GetBoolEnv 获取环境变量布尔值
func GetBoolEnv(key string) bool {
	return cast.ToBool(os.Getenv(key))
}

// GetFloatEnv 获取环境变量浮点值
func GetFloatEnv(key string) float64 {
	return cast.ToFloat64(os.Getenv(key))
}
