package config

import (
	"log"
	"os"

	"Lifeline/pkg/logger"
	"Lifeline/pkg/util"
)

// config/config.go
type Config struct {
	DBDriver           string `env:"DB_DRIVER"`
	DSN                string `env:"DSN"`
	Log                logger.LogConfig
	Addr               string `env:"ADDR"`
	Mode               string `env:"MODE"`
	JWTSecret          string `env:"JWT_SECRET"`
	TokenExpireHours   int64  `env:"TOKEN_EXPIRE_HOURS"`
	RedisAddr          string `env:"REDIS_ADDR"`
	RedisPassword      string `env:"REDIS_PASSWORD"`
	RedisDB            int64  `env:"REDIS_DB"`
	GeoBackend         string `env:"GEO_BACKEND"` // "redis" 或 "local"
	SOSCooldownMinutes int64  `env:"SOS_COOLDOWN_MINUTES"`
	RateLimit          string `env:"RATE_LIMIT"`
	BackupSchedule     string `env:"BACKUP_SCHEDULE"` // cron 表达式，空则关闭
	BackupPath         string `env:"BACKUP_PATH"`
}

var GlobalConfig *Config

func Load() error {
	// 1. 根据环境加载 .env 文件
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development" // 默认使用开发环境
	}
	err := util.LoadEnv(env)
	if err != nil {
		log.Printf("Failed to load .env file: %v", err)
	}

	// 2. 加载全局配置
	GlobalConfig = &Config{
		DBDriver:         util.GetEnvDefault("DB_DRIVER", "sqlite"),
		DSN:              util.GetEnvDefault("DSN", "lifeline.db"),
		Addr:             util.GetEnvDefault("ADDR", ":5000"),
		Mode:             util.GetEnvDefault("MODE", "debug"),
		JWTSecret:        util.GetEnv("JWT_SECRET"),
		TokenExpireHours: util.GetIntEnvDefault("TOKEN_EXPIRE_HOURS", 72),
		Log: logger.LogConfig{
			Level:      util.GetEnv("LOG_LEVEL"),
			Filename:   util.GetEnv("LOG_FILENAME"),
			MaxSize:    int(util.GetIntEnv("LOG_MAX_SIZE")),
			MaxAge:     int(util.GetIntEnv("LOG_MAX_AGE")),
			MaxBackups: int(util.GetIntEnv("LOG_MAX_BACKUPS")),
		},
		RedisAddr:          util.GetEnvDefault("REDIS_ADDR", "localhost:6379"),
		RedisPassword:      util.GetEnv("REDIS_PASSWORD"),
		RedisDB:            util.GetIntEnv("REDIS_DB"),
		GeoBackend:         util.GetEnvDefault("GEO_BACKEND", "local"),
		SOSCooldownMinutes: util.GetIntEnvDefault("SOS_COOLDOWN_MINUTES", 15),
		RateLimit:          util.GetEnvDefault("RATE_LIMIT", "100-M"),
		BackupSchedule:     util.GetEnv("BACKUP_SCHEDULE"),
		BackupPath:         util.GetEnvDefault("BACKUP_PATH", "backups"),
	}
	return nil
}
