package config

import (
	"os"
	"strconv"

	"safeindustech-ingest/pkg/config"
)

// Config 采集服务配置
type Config struct {
	Database config.DatabaseConfig
	Redis    config.RedisConfig
	MQTT     config.MQTTConfig

	// 采集管道特定配置
	Ingest struct {
		Topic     string  // 传感器数据主题，如 "iot_safeindustech/sensors/#"
		Threshold float64 // 温度报警阈值（°C）

		// Redis 缓存配置
		Cache struct {
			LatestKeyPrefix string // 最新读数缓存键前缀，如 "safeindustech:datastream:"
			LatestSuffix    string // 最新读数缓存键后缀，如 ":latest"
			LatestTTL       int    // 最新读数 TTL（秒）
			ZoneKeyPrefix   string // 区域绑定缓存键前缀
			ZoneSuffix      string // 区域绑定缓存键后缀，如 ":zone"
			ZoneTTL         int    // 区域绑定 TTL（秒），绑定关系变化缓慢
		}
	}

	// 周期巡检配置（兜底路径，补偿实时路径漏掉的消息）
	Sweep struct {
		DatastreamID string // 巡检的数据流ID
		Interval     int    // 巡检间隔（秒）
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
// 共享段（DB/Redis/MQTT）先填默认值，再由各自的 LoadFromEnv 从环境变量覆盖；
// 采集管道特有的键直接从环境变量读取
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database = config.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "iot_safeindustech",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = config.RedisConfig{
		Addr: "localhost:6379",
	}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = config.MQTTConfig{
		Host:     "localhost",
		Port:     1883,
		ClientID: "safeindustech-ingest",
		QoS:      1,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	// 采集管道配置
	cfg.Ingest.Topic = getEnv("INGEST_TOPIC", "iot_safeindustech/sensors/#")
	cfg.Ingest.Threshold = getEnvFloat("TEMP_THRESHOLD", 70)

	cfg.Ingest.Cache.LatestKeyPrefix = getEnv("CACHE_LATEST_PREFIX", "safeindustech:datastream:")
	cfg.Ingest.Cache.LatestSuffix = ":latest"
	cfg.Ingest.Cache.LatestTTL = 300
	cfg.Ingest.Cache.ZoneKeyPrefix = getEnv("CACHE_ZONE_PREFIX", "safeindustech:datastream:")
	cfg.Ingest.Cache.ZoneSuffix = ":zone"
	cfg.Ingest.Cache.ZoneTTL = 300

	// 巡检配置
	cfg.Sweep.DatastreamID = getEnv("TEMP_DATASTREAM_ID", "11111111-1111-1111-1111-111111111111")
	cfg.Sweep.Interval = getEnvInt("SWEEP_INTERVAL", 10)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
