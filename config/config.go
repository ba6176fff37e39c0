package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Log       LogConfig       `mapstructure:"log"`
	Premium   PremiumConfig   `mapstructure:"premium"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql, postgres, sqlite
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	SSLMode      string `mapstructure:"ssl_mode"`
	Path         string `mapstructure:"path"` // sqlite 文件路径
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, text
}

type PremiumConfig struct {
	// TestMode 使用模拟校验器，所有收据都视为有效。
	TestMode bool `mapstructure:"test_mode"`
	// AllowTestModeInRelease 必须显式打开才允许 release 模式下使用模拟校验器
	AllowTestModeInRelease bool          `mapstructure:"allow_test_mode_in_release"`
	VerifyTimeout          time.Duration `mapstructure:"verify_timeout"`
	ValidationInterval     time.Duration `mapstructure:"validation_interval"`
	TrialDays              int           `mapstructure:"trial_days"`
	ReceiptHashKey         string        `mapstructure:"receipt_hash_key"`
	StoreRequestsPerSecond float64       `mapstructure:"store_requests_per_second"`
	StoreBurst             int           `mapstructure:"store_burst"`
	Apple                  AppleConfig   `mapstructure:"apple"`
	Google                 GoogleConfig  `mapstructure:"google"`
}

type AppleConfig struct {
	APIBase      string `mapstructure:"api_base"`
	IssuerID     string `mapstructure:"issuer_id"`
	KeyID        string `mapstructure:"key_id"`
	PrivateKey   string `mapstructure:"private_key"` // PKCS#8 PEM (.p8)
	BundleID     string `mapstructure:"bundle_id"`
	RootCertPath string `mapstructure:"root_cert_path"`
	RootCertPEM  string `mapstructure:"root_cert_pem"`
}

type GoogleConfig struct {
	APIBase               string `mapstructure:"api_base"`
	PackageName           string `mapstructure:"package_name"`
	ServiceAccountJSON    string `mapstructure:"service_account_json"`
	ServiceAccountKeyPath string `mapstructure:"service_account_key_path"`
}

type RateLimitConfig struct {
	Backend string                   `mapstructure:"backend"` // memory, redis
	Rules   map[string]RateLimitRule `mapstructure:"rules"`
}

type RateLimitRule struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type SweeperConfig struct {
	Interval time.Duration `mapstructure:"interval"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// IsRelease 是否为生产模式
func (c *Config) IsRelease() bool {
	return c.Server.Mode == "release"
}

// Rule 返回某个接口的限流规则，没有配置时回退到 default
func (c RateLimitConfig) Rule(endpoint string) RateLimitRule {
	if r, ok := c.Rules[endpoint]; ok && r.Limit > 0 && r.Window > 0 {
		return r
	}
	if r, ok := c.Rules["default"]; ok && r.Limit > 0 && r.Window > 0 {
		return r
	}
	return RateLimitRule{Limit: 60, Window: time.Minute}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("redis.port", 6379)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("premium.verify_timeout", 10*time.Second)
	v.SetDefault("premium.validation_interval", 5*time.Minute)
	v.SetDefault("premium.trial_days", 7)
	v.SetDefault("premium.store_requests_per_second", 20.0)
	v.SetDefault("premium.store_burst", 10)
	v.SetDefault("premium.apple.api_base", "https://api.storekit.itunes.apple.com")
	v.SetDefault("premium.google.api_base", "https://androidpublisher.googleapis.com")
	v.SetDefault("ratelimit.backend", "memory")
	v.SetDefault("sweeper.interval", time.Hour)
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func Load(configPath string) (*Config, error) {
	// .env 只用于本地开发，不存在时忽略
	_ = godotenv.Load()

	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// 环境变量覆盖
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
