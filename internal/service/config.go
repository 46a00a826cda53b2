// internal/service/config.go
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingCredential 缺少必要凭证，启动阶段即为致命错误
var ErrMissingCredential = errors.New("missing credential")

type Config struct {
	Tradier     TradierConfig     `mapstructure:"Tradier"`
	Market      MarketConfig      `mapstructure:"Market"`
	Scheduler   SchedulerConfig   `mapstructure:"Scheduler"`
	Stream      StreamConfig      `mapstructure:"Stream"`
	Storage     StorageConfig     `mapstructure:"Storage"`
	Influx      InfluxConfig      `mapstructure:"Influx"`
	Mongo       MongoConfig       `mapstructure:"Mongo"`
	Backfill    BackfillConfig    `mapstructure:"Backfill"`
	Expirations ExpirationsConfig `mapstructure:"Expirations"`
	Chains      ChainsConfig      `mapstructure:"Chains"`
	Log         LogConfig         `mapstructure:"Log"`
}

// TradierConfig 定义了券商 REST / 推送接口的连接信息
type TradierConfig struct {
	BaseURL   string
	StreamURL string
	Token     string
	Timeout   time.Duration
}

// MarketConfig 定义了交易时段与轮询参数
type MarketConfig struct {
	Symbols         []string
	Timezone        string
	CalendarCheckAt string // "HH:MM"，按 Timezone 计算
	PollInterval    time.Duration
	Tag             string
	Destination     string
}

type SchedulerConfig struct {
	TickInterval time.Duration
}

// StreamConfig 定义了推送流订阅参数
type StreamConfig struct {
	Enabled        bool
	Symbols        []string
	ReconnectDelay time.Duration
	Database       string
	Collection     string
}

// StorageConfig.Backend 为 "influx" 或 "mongo"，决定轮询数据的落地位置
type StorageConfig struct {
	Backend string
}

// InfluxConfig 中不配置 bucket，各任务的 Destination 即为 bucket
type InfluxConfig struct {
	URL   string
	Token string
	Org   string
}

type MongoConfig struct {
	URI      string
	Database string
}

// BackfillConfig 启动时一次性补齐历史日线
type BackfillConfig struct {
	Enabled     bool
	Days        int
	Destination string
}

// ExpirationsConfig 每日采集期权到期日
type ExpirationsConfig struct {
	Enabled     bool
	At          string
	Destination string
}

// ChainsConfig 每日采集最近 Depth 个到期日的期权链
type ChainsConfig struct {
	Enabled     bool
	At          string
	Depth       int
	Destination string
}

type LogConfig struct {
	Level string
}

// Location 返回市场时区
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Market.Timezone)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("Tradier.BaseURL", "https://api.tradier.com")
	v.SetDefault("Tradier.StreamURL", "wss://ws.tradier.com/v1/markets/events")
	v.SetDefault("Tradier.Timeout", 10*time.Second)

	v.SetDefault("Market.Symbols", []string{"AAPL", "GOOG", "TSLA", "BAC", "DIS"})
	v.SetDefault("Market.Timezone", "America/New_York")
	v.SetDefault("Market.CalendarCheckAt", "09:00")
	v.SetDefault("Market.PollInterval", time.Minute)
	v.SetDefault("Market.Tag", "stock_runs")
	v.SetDefault("Market.Destination", "stocks")

	v.SetDefault("Scheduler.TickInterval", time.Second)

	v.SetDefault("Stream.Enabled", false)
	v.SetDefault("Stream.Symbols", []string{"AAPL", "TSLA"})
	v.SetDefault("Stream.ReconnectDelay", 10*time.Second)
	v.SetDefault("Stream.Database", "stocks")
	v.SetDefault("Stream.Collection", "streaming_data")

	v.SetDefault("Storage.Backend", "influx")
	v.SetDefault("Influx.URL", "http://localhost:8086")
	v.SetDefault("Influx.Org", "markets")
	v.SetDefault("Mongo.URI", "mongodb://localhost:27017")
	v.SetDefault("Mongo.Database", "stocks")

	v.SetDefault("Backfill.Enabled", false)
	v.SetDefault("Backfill.Days", 30)
	v.SetDefault("Backfill.Destination", "historical_stocks")

	v.SetDefault("Expirations.Enabled", false)
	v.SetDefault("Expirations.At", "08:00")
	v.SetDefault("Expirations.Destination", "options")

	v.SetDefault("Chains.Enabled", false)
	v.SetDefault("Chains.At", "08:05")
	v.SetDefault("Chains.Depth", 1)
	v.SetDefault("Chains.Destination", "options")

	v.SetDefault("Log.Level", "info")
}

// LoadConfig 读取 configPath 下的 config.yaml 并叠加环境变量
// 配置文件不存在时只使用默认值与环境变量
func LoadConfig(configPath string) (*Config, error) {
	// .env 可选
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("Tradier.Token", "TRADIER_AUTH_TOKEN")
	_ = v.BindEnv("Influx.Token", "INFLUX_TOKEN")
	_ = v.BindEnv("Mongo.URI", "MONGODB_URI")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 检查启动所需的最小配置
func (c *Config) Validate() error {
	if c.Tradier.Token == "" {
		return fmt.Errorf("%w: TRADIER_AUTH_TOKEN", ErrMissingCredential)
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("market timezone: %w", err)
	}
	if _, _, err := ParseClock(c.Market.CalendarCheckAt); err != nil {
		return fmt.Errorf("market calendar check: %w", err)
	}
	if c.Market.PollInterval <= 0 {
		return fmt.Errorf("market poll interval must be positive, got %s", c.Market.PollInterval)
	}
	switch c.Storage.Backend {
	case "influx", "mongo":
	default:
		return fmt.Errorf("unsupported storage backend: %q", c.Storage.Backend)
	}
	return nil
}
