// Package config 负责服务配置：YAML/ENV 加载，优先级固定。
package config

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config 服务根配置。
// 来源优先级：
//  1. 显式传入的路径；
//  2. 环境变量 CONFIG_PATH；
//  3. 工作目录下的 ./local.yaml；
//  4. 仅环境变量。
type Config struct {
	Env      string         `yaml:"env" env:"ENV" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	MySQL    MySQLConfig    `yaml:"mysql"`
	Redis    RedisConfig    `yaml:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	JWT      JWTConfig      `yaml:"jwt"`
	Features Features       `yaml:"features"`
	Timeline TimelineConfig `yaml:"timeline"`
	Jobs     JobsConfig     `yaml:"jobs"`
}

type HTTPConfig struct {
	Host            string        `yaml:"host" env:"HTTP_HOST" env-default:"0.0.0.0"`
	Port            string        `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"5s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"HTTP_SHUTDOWN_TIMEOUT" env-default:"10s"`
}

// Addr 返回 host:port。
func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, h.Port)
}

type MySQLConfig struct {
	DSN          string        `yaml:"dsn" env:"MYSQL_DSN" env-required:"true"`
	MaxOpenConns int           `yaml:"max_open_conns" env:"MYSQL_MAX_OPEN_CONNS" env-default:"20"`
	MaxIdleConns int           `yaml:"max_idle_conns" env:"MYSQL_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLife  time.Duration `yaml:"conn_max_life" env:"MYSQL_CONN_MAX_LIFE" env-default:"30m"`
	AutoMigrate  bool          `yaml:"auto_migrate" env:"MYSQL_AUTO_MIGRATE" env-default:"false"`
}

type RedisConfig struct {
	Addr         string `yaml:"addr" env:"REDIS_ADDR" env-default:"127.0.0.1:6379"`
	Password     string `yaml:"password" env:"REDIS_PASSWORD"`
	DB           int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	PoolSize     int    `yaml:"pool_size" env:"REDIS_POOL_SIZE" env-default:"10"`
	MinIdleConns int    `yaml:"min_idle_conns" env:"REDIS_MIN_IDLE_CONNS" env-default:"2"`
}

type KafkaConfig struct {
	Brokers     []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:"," env-default:"127.0.0.1:9092"`
	OutboxTopic string   `yaml:"outbox_topic" env:"KAFKA_OUTBOX_TOPIC" env-default:"social-events"`
	IndexTopic  string   `yaml:"index_topic" env:"KAFKA_INDEX_TOPIC" env-default:"status-index"`
}

type JWTConfig struct {
	Secret    string        `yaml:"secret" env:"JWT_SECRET" env-required:"true"`
	AccessTTL time.Duration `yaml:"access_ttl" env:"JWT_ACCESS_TTL" env-default:"30m"`
}

// Features 全局开关，启动后只读，通过构造函数向下传递。
type Features struct {
	// 开启后非管理员的公开状态先进入 PENDING，审核通过后才扇出。
	ModerationEnabled bool `yaml:"moderation_enabled" env:"MODERATION_ENABLED" env-default:"false"`
	// 开启后关注需要双方确认（好友请求）。
	MutualConsent bool `yaml:"mutual_consent" env:"MUTUAL_CONSENT" env-default:"false"`
}

type TimelineConfig struct {
	DefaultPageSize int `yaml:"default_page_size" env:"TIMELINE_DEFAULT_PAGE_SIZE" env-default:"20"`
	MaxPageSize     int `yaml:"max_page_size" env:"TIMELINE_MAX_PAGE_SIZE" env-default:"100"`
	// 自愈清理的最大重试次数
	MaxResolveAttempts int `yaml:"max_resolve_attempts" env:"TIMELINE_MAX_RESOLVE_ATTEMPTS" env-default:"3"`
	// 删除用户时并发删除状态的 worker 数
	DeleteWorkers  int    `yaml:"delete_workers" env:"TIMELINE_DELETE_WORKERS" env-default:"2"`
	HashtagDefault string `yaml:"hashtag_default" env:"TIMELINE_HASHTAG_DEFAULT" env-default:"welcome"`
}

type JobsConfig struct {
	OutboxInterval    time.Duration `yaml:"outbox_interval" env:"JOBS_OUTBOX_INTERVAL" env-default:"1s"`
	OutboxBatch       int           `yaml:"outbox_batch" env:"JOBS_OUTBOX_BATCH" env-default:"200"`
	ReconcileInterval time.Duration `yaml:"reconcile_interval" env:"JOBS_RECONCILE_INTERVAL" env-default:"5m"`
	ReconcileBatch    int           `yaml:"reconcile_batch" env:"JOBS_RECONCILE_BATCH" env-default:"500"`
	PurgeInterval     time.Duration `yaml:"purge_interval" env:"JOBS_PURGE_INTERVAL" env-default:"1h"`
	PurgeBatch        int           `yaml:"purge_batch" env:"JOBS_PURGE_BATCH" env-default:"1000"`
}

// MustLoad Load 的包装，出错直接 panic。
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load 按优先级加载配置：显式路径 > CONFIG_PATH > ./local.yaml > ENV。
// 读取文件后再用环境变量覆盖。
func Load(path string) (*Config, error) {
	var cfg Config

	readFile := func(p string) error {
		if _, err := os.Stat(p); err != nil {
			return fmt.Errorf("config file %q stat failed: %w", p, err)
		}
		if err := cleanenv.ReadConfig(p, &cfg); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return fmt.Errorf("failed to overlay env: %w", err)
		}
		return nil
	}

	switch {
	case path != "":
		if err := readFile(path); err != nil {
			return nil, err
		}
	case os.Getenv("CONFIG_PATH") != "":
		if err := readFile(os.Getenv("CONFIG_PATH")); err != nil {
			return nil, err
		}
	default:
		if _, err := os.Stat("local.yaml"); err == nil {
			if err := readFile("local.yaml"); err != nil {
				return nil, err
			}
		} else if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("config not found: provide --config, CONFIG_PATH, local.yaml or env vars: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.MySQL.DSN == "" {
		return fmt.Errorf("mysql.dsn is required")
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers must not be empty")
	}
	if c.Timeline.DefaultPageSize <= 0 || c.Timeline.MaxPageSize <= 0 {
		return fmt.Errorf("timeline page sizes must be > 0")
	}
	if c.Timeline.DefaultPageSize > c.Timeline.MaxPageSize {
		return fmt.Errorf("timeline.default_page_size must be <= timeline.max_page_size")
	}
	if c.Timeline.MaxResolveAttempts < 1 || c.Timeline.MaxResolveAttempts > 10 {
		return fmt.Errorf("timeline.max_resolve_attempts must be in [1,10]")
	}
	if c.Timeline.DeleteWorkers < 1 {
		return fmt.Errorf("timeline.delete_workers must be >= 1")
	}
	return nil
}
