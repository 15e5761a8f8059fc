package server

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/rushteam/recallkit/core"
	"github.com/rushteam/recallkit/feast"
	"github.com/rushteam/recallkit/feature"
	"github.com/rushteam/recallkit/logging"
	"github.com/rushteam/recallkit/store"
	"github.com/rushteam/recallkit/vector"
)

// EnvPrefix 是环境变量前缀：RECALLKIT_REDIS__ADDR -> redis.addr。
const EnvPrefix = "RECALLKIT_"

// Config 是服务配置。
type Config struct {
	Logging  logging.Config    `koanf:"logging"`
	Redis    store.RedisConfig `koanf:"redis"`
	Feast    FeastConfig       `koanf:"feast"`
	Cache    CacheConfig       `koanf:"cache"`
	Ann      vector.AnnConfig  `koanf:"ann"`
	Recall   RecallConfig      `koanf:"recall"`
	Strategy StrategyConfig    `koanf:"strategy"`
	Ranker   RankerConfig      `koanf:"ranker"`
	Metrics  MetricsConfig     `koanf:"metrics"`

	// ShutdownTimeout 是停止时等待后台服务退出的上限
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// FeastConfig 开启后，物品统计特征缺失时从 Feast 在线存储补齐。
type FeastConfig struct {
	Enabled bool                      `koanf:"enabled"`
	Client  feast.Config              `koanf:"client"`
	Statis  feature.FeastStatisConfig `koanf:"statis"`
}

// CacheConfig 是本地特征缓存配置。
type CacheConfig struct {
	BucketCount       int `koanf:"bucket_count"`
	InvertBucketCount int `koanf:"invert_bucket_count"`
	// RefreshInterval 全量刷新周期（倒排索引、ANN、策略文件）
	RefreshInterval time.Duration `koanf:"refresh_interval"`
	// RefreshIncrInterval 增量刷新周期（特征缓存逐桶轮转）
	RefreshIncrInterval time.Duration `koanf:"refresh_incr_interval"`
	RefreshTimeout      time.Duration `koanf:"refresh_timeout"`
}

type RecallConfig struct {
	ChannelTimeout time.Duration `koanf:"channel_timeout"`
	MaxConcurrent  int           `koanf:"max_concurrent"`
	// ExprCacheSize 是 CEL 程序缓存容量
	ExprCacheSize int `koanf:"expr_cache_size"`
}

type StrategyConfig struct {
	Path string `koanf:"path"`
	// ReloadInterval 检查策略文件变化的周期
	ReloadInterval time.Duration `koanf:"reload_interval"`
}

// RankerConfig 配置后注册 rank.model 节点。
type RankerConfig struct {
	Endpoint string        `koanf:"endpoint"`
	Timeout  time.Duration `koanf:"timeout"`
	Model    string        `koanf:"model"`
}

type MetricsConfig struct {
	// Addr 为空时不启动 HTTP 服务
	Addr string `koanf:"addr"`
}

// DefaultConfig 返回默认配置。
func DefaultConfig() Config {
	return Config{
		Logging: logging.Config{Level: "info", Format: "json"},
		Redis: store.RedisConfig{
			Addr:         "127.0.0.1:6379",
			PoolSize:     64,
			DialTimeout:  time.Second,
			ReadTimeout:  200 * time.Millisecond,
			WriteTimeout: 200 * time.Millisecond,
			ScanCount:    1000,
		},
		Feast: FeastConfig{Statis: feature.DefaultFeastStatisConfig()},
		Cache: CacheConfig{
			BucketCount:         10000,
			InvertBucketCount:   64,
			RefreshInterval:     time.Minute,
			RefreshIncrInterval: 50 * time.Millisecond,
			RefreshTimeout:      30 * time.Second,
		},
		Ann: vector.AnnConfig{
			Grace:       vector.DefaultGrace,
			Dimension:   64,
			SearchK:     -1,
			Parallelism: 4,
		},
		Recall: RecallConfig{
			ChannelTimeout: 100 * time.Millisecond,
			MaxConcurrent:  16,
			ExprCacheSize:  1024,
		},
		Strategy:        StrategyConfig{Path: "strategy.yaml", ReloadInterval: 10 * time.Second},
		Metrics:         MetricsConfig{Addr: ":9090"},
		ShutdownTimeout: 10 * time.Second,
	}
}

// Validate 校验配置，错误为 CONFIG_ERROR。
func (c *Config) Validate() error {
	if c.Strategy.Path == "" {
		return core.ConfigError(core.ModuleService, "strategy.path is required")
	}
	if c.Cache.BucketCount <= 0 {
		return core.ConfigError(core.ModuleService, "cache.bucket_count must be > 0, got %d", c.Cache.BucketCount)
	}
	if c.Feast.Enabled && c.Feast.Client.Endpoint == "" {
		return core.ConfigError(core.ModuleService, "feast.client.endpoint is required when feast is enabled")
	}
	return nil
}

// LoadConfig 分层加载配置：默认值 < YAML 文件（可选）< RECALLKIT_ 环境变量。
func LoadConfig(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return nil, fmt.Errorf("load config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envKey 转换环境变量名：双下划线分隔层级，单下划线保留。
//
//	RECALLKIT_REDIS__ADDR            -> redis.addr
//	RECALLKIT_CACHE__REFRESH_INTERVAL -> cache.refresh_interval
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}
