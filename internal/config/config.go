package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MaxIdle  int    `yaml:"max_idle"`
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MQTTConfig MQTT配置（实时事件桥接）
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	QoS         byte   `yaml:"qos"`
	TopicPrefix string `yaml:"topic_prefix"` // 如 "owl-restaurant"，最终 topic: {prefix}/{tenant}/{branch}/{event}
}

// PaymentConfig 支付网关配置
type PaymentConfig struct {
	WebhookSecret  string        `yaml:"webhook_secret"`   // Webhook HMAC 共享密钥
	GatewayURL     string        `yaml:"gateway_url"`      // 网关 API 地址（verify 使用）
	GatewayKeyID   string        `yaml:"gateway_key_id"`   // Basic Auth 用户名
	GatewayKeySec  string        `yaml:"gateway_key_secret"`
	GatewayTimeout time.Duration `yaml:"gateway_timeout"`
}

// Config owl-restaurant（HTTP API）配置
type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	DBEnabled    bool           `yaml:"db_enabled"`
	Database     DatabaseConfig `yaml:"database"`
	RedisEnabled bool           `yaml:"redis_enabled"`
	Redis        RedisConfig    `yaml:"redis"`
	Log          struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Cache struct {
		Backend  string `yaml:"backend"`  // memory | redis
		Capacity     int           `yaml:"capacity"` // memory 后端的最大条目数
		DashboardTTL time.Duration `yaml:"dashboard_ttl"`
		AnalyticsTTL time.Duration `yaml:"analytics_ttl"`
	} `yaml:"cache"`

	Sequence struct {
		Backend string `yaml:"backend"` // postgres | redis | memory
	} `yaml:"sequence"`

	Table struct {
		ReservationTimeout time.Duration `yaml:"reservation_timeout"` // 预订超时（软锁过期）
		SweepInterval      time.Duration `yaml:"sweep_interval"`      // 后台扫描间隔
	} `yaml:"table"`

	Notification struct {
		Retention time.Duration `yaml:"retention"` // 通知保留时长（过期自动清理）
	} `yaml:"notification"`

	Effects struct {
		Workers   int `yaml:"workers"`    // 异步副作用 worker 数
		QueueSize int `yaml:"queue_size"` // 副作用队列长度（满时丢弃并记录日志）
	} `yaml:"effects"`

	EventStream struct {
		Enabled bool   `yaml:"enabled"`
		Name    string `yaml:"name"`
		MaxLen  int64  `yaml:"max_len"`
	} `yaml:"event_stream"`

	Payment PaymentConfig `yaml:"payment"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
}

// Load 加载配置：默认值 -> CONFIG_FILE（YAML，可选） -> 环境变量
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = ":8080"

	cfg.DBEnabled = true
	cfg.Database = DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "owl_restaurant",
		SSLMode:  "disable",
		MaxConns: 20,
		MaxIdle:  5,
	}
	cfg.RedisEnabled = true
	cfg.Redis = RedisConfig{Addr: "localhost:6379"}
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	cfg.Cache.Backend = "memory"
	cfg.Cache.Capacity = 500
	cfg.Cache.DashboardTTL = 15 * time.Second
	cfg.Cache.AnalyticsTTL = 120 * time.Second
	cfg.Sequence.Backend = "postgres"

	cfg.Table.ReservationTimeout = 15 * time.Minute
	cfg.Table.SweepInterval = time.Minute
	cfg.Notification.Retention = 7 * 24 * time.Hour

	cfg.Effects.Workers = 4
	cfg.Effects.QueueSize = 1024

	cfg.EventStream.Name = "owl-restaurant:events"
	cfg.EventStream.MaxLen = 10000

	cfg.Payment.GatewayURL = "https://api.razorpay.com/v1"
	cfg.Payment.GatewayTimeout = 10 * time.Second

	cfg.MQTT = MQTTConfig{
		Broker:      "tcp://localhost:1883",
		ClientID:    "owl-restaurant",
		QoS:         1,
		TopicPrefix: "owl-restaurant",
	}
	return cfg
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)

	cfg.DBEnabled = getBool("DB_ENABLED", cfg.DBEnabled)
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = parseInt(getEnv("DB_PORT", ""), cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Database = getEnv("DB_NAME", cfg.Database.Database)
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", ""), cfg.Database.MaxConns)

	cfg.RedisEnabled = getBool("REDIS_ENABLED", cfg.RedisEnabled)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", ""), cfg.Redis.DB)

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	cfg.Cache.Backend = getEnv("CACHE_BACKEND", cfg.Cache.Backend)
	cfg.Cache.Capacity = parseInt(getEnv("CACHE_CAPACITY", ""), cfg.Cache.Capacity)
	cfg.Cache.DashboardTTL = parseDuration(getEnv("DASHBOARD_CACHE_TTL", ""), cfg.Cache.DashboardTTL)
	cfg.Cache.AnalyticsTTL = parseDuration(getEnv("ANALYTICS_CACHE_TTL", ""), cfg.Cache.AnalyticsTTL)
	cfg.Sequence.Backend = getEnv("SEQUENCE_BACKEND", cfg.Sequence.Backend)

	cfg.Table.ReservationTimeout = parseDuration(getEnv("RESERVATION_TIMEOUT", ""), cfg.Table.ReservationTimeout)
	cfg.Table.SweepInterval = parseDuration(getEnv("RESERVATION_SWEEP_INTERVAL", ""), cfg.Table.SweepInterval)
	cfg.Notification.Retention = parseDuration(getEnv("NOTIFICATION_RETENTION", ""), cfg.Notification.Retention)

	cfg.Effects.Workers = parseInt(getEnv("EFFECT_WORKERS", ""), cfg.Effects.Workers)
	cfg.Effects.QueueSize = parseInt(getEnv("EFFECT_QUEUE_SIZE", ""), cfg.Effects.QueueSize)

	cfg.EventStream.Enabled = getBool("EVENT_STREAM_ENABLED", cfg.EventStream.Enabled)
	cfg.EventStream.Name = getEnv("EVENT_STREAM_NAME", cfg.EventStream.Name)

	cfg.Payment.WebhookSecret = getEnv("PAYMENT_WEBHOOK_SECRET", cfg.Payment.WebhookSecret)
	cfg.Payment.GatewayURL = getEnv("PAYMENT_GATEWAY_URL", cfg.Payment.GatewayURL)
	cfg.Payment.GatewayKeyID = getEnv("PAYMENT_GATEWAY_KEY_ID", cfg.Payment.GatewayKeyID)
	cfg.Payment.GatewayKeySec = getEnv("PAYMENT_GATEWAY_KEY_SECRET", cfg.Payment.GatewayKeySec)

	cfg.MQTT.Enabled = getBool("MQTT_ENABLED", cfg.MQTT.Enabled)
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", cfg.MQTT.Broker)
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", cfg.MQTT.ClientID)
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", cfg.MQTT.Username)
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", cfg.MQTT.Password)
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", cfg.MQTT.TopicPrefix)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v == "true" || v == "1"
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
