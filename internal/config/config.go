// Package config loads service settings from defaults, an optional YAML file
// named by CONFIG_FILE, and environment variables (HTTP_PORT, MONGO_URI, ...).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/harshees/storefront/internal/pricing"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	HTTP     HTTPConfig              `mapstructure:"http"`
	Mongo    MongoConfig             `mapstructure:"mongo"`
	Redis    RedisConfig             `mapstructure:"redis"`
	Postgres PostgresConfig          `mapstructure:"postgres"`
	Kafka    KafkaConfig             `mapstructure:"kafka"`
	Cart     CartConfig              `mapstructure:"cart"`
	Orders   OrdersConfig            `mapstructure:"orders"`
	Pricing  PricingConfig           `mapstructure:"pricing"`
	Coupons  map[string]CouponConfig `mapstructure:"coupons"`
	Log      LogConfig               `mapstructure:"log"`
	Breaker  BreakerConfig           `mapstructure:"breaker"`
}

type HTTPConfig struct {
	Port               string        `mapstructure:"port"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	MaxRequestBodySize int64         `mapstructure:"max_request_body_size"`
}

type MongoConfig struct {
	URI            string        `mapstructure:"uri"`
	Database       string        `mapstructure:"database"`
	MaxPoolSize    uint64        `mapstructure:"max_pool_size"`
	MinPoolSize    uint64        `mapstructure:"min_pool_size"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// RedisConfig leaves the cart cache disabled when Addr is empty.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	DBName         string `mapstructure:"dbname"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

// KafkaConfig leaves cart clearing in-process when Brokers is empty.
type KafkaConfig struct {
	Brokers        string `mapstructure:"brokers"`
	CartClearTopic string `mapstructure:"cart_clear_topic"`
	GroupID        string `mapstructure:"group_id"`
}

func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type CartConfig struct {
	IdleTTL      time.Duration `mapstructure:"idle_ttl"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type OrdersConfig struct {
	Currency           string        `mapstructure:"currency"`
	CatalogTimeout     time.Duration `mapstructure:"catalog_timeout"`
	PersistenceTimeout time.Duration `mapstructure:"persistence_timeout"`
	StrictTransitions  bool          `mapstructure:"strict_transitions"`
}

type PricingConfig struct {
	FreeShippingThresholdMinor int64  `mapstructure:"free_shipping_threshold_minor"`
	ShippingFeeMinor           int64  `mapstructure:"shipping_fee_minor"`
	TaxRate                    string `mapstructure:"tax_rate"`
	DiscountThresholdMinor     int64  `mapstructure:"discount_threshold_minor"`
	DiscountRate               string `mapstructure:"discount_rate"`
}

type CouponConfig struct {
	ThresholdMinor int64  `mapstructure:"threshold_minor"`
	Rate           string `mapstructure:"rate"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type BreakerConfig struct {
	MaxFailures uint32        `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.port", "8080")
	v.SetDefault("http.request_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("http.max_request_body_size", 1<<20)

	v.SetDefault("mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "storefront")
	v.SetDefault("mongo.max_pool_size", 100)
	v.SetDefault("mongo.min_pool_size", 5)
	v.SetDefault("mongo.connect_timeout", 10*time.Second)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.cache_ttl", 15*time.Minute)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "postgres")
	v.SetDefault("postgres.password", "postgres")
	v.SetDefault("postgres.dbname", "storefront")
	v.SetDefault("postgres.migrations_path", "./internal/repository/migrations")

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.cart_clear_topic", "cart-clear-requests")
	v.SetDefault("kafka.group_id", "storefront-cart")

	v.SetDefault("cart.idle_ttl", 30*time.Minute)
	v.SetDefault("cart.write_timeout", 3*time.Second)

	v.SetDefault("orders.currency", "INR")
	v.SetDefault("orders.catalog_timeout", 3*time.Second)
	v.SetDefault("orders.persistence_timeout", 5*time.Second)
	v.SetDefault("orders.strict_transitions", false)

	rules := pricing.DefaultRules()
	v.SetDefault("pricing.free_shipping_threshold_minor", rules.FreeShippingThresholdMinor)
	v.SetDefault("pricing.shipping_fee_minor", rules.ShippingFeeMinor)
	v.SetDefault("pricing.tax_rate", rules.TaxRate.String())
	v.SetDefault("pricing.discount_threshold_minor", rules.Discount.ThresholdMinor)
	v.SetDefault("pricing.discount_rate", rules.Discount.Rate.String())

	v.SetDefault("coupons", map[string]any{})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file_path", "logs/storefront.log")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 10)
	v.SetDefault("log.max_age_days", 30)
	v.SetDefault("log.compress", true)

	v.SetDefault("breaker.max_failures", 5)
	v.SetDefault("breaker.open_timeout", 30*time.Second)
}

// Load reads configuration. A CONFIG_FILE that cannot be read is an error;
// without one, defaults and environment variables apply.
func Load() (*Config, error) {
	return load(viper.New(), os.Getenv("CONFIG_FILE"))
}

func load(v *viper.Viper, path string) (*Config, error) {
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// names the previous deployment used for the order database
	_ = v.BindEnv("postgres.host", "POSTGRES_HOST", "DB_HOST")
	_ = v.BindEnv("postgres.port", "POSTGRES_PORT", "DB_PORT")
	_ = v.BindEnv("postgres.user", "POSTGRES_USER", "DB_USER")
	_ = v.BindEnv("postgres.password", "POSTGRES_PASSWORD", "DB_PASSWORD")
	_ = v.BindEnv("postgres.dbname", "POSTGRES_DBNAME", "DB_NAME")
	_ = v.BindEnv("postgres.migrations_path", "POSTGRES_MIGRATIONS_PATH", "MIGRATIONS_PATH")

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// PricingRules parses and validates the configured rules.
func (c *Config) PricingRules() (pricing.Rules, error) {
	tax, err := decimal.NewFromString(c.Pricing.TaxRate)
	if err != nil {
		return pricing.Rules{}, fmt.Errorf("%w: tax_rate %q: %v", pricing.ErrInvalidRules, c.Pricing.TaxRate, err)
	}
	discount, err := decimal.NewFromString(c.Pricing.DiscountRate)
	if err != nil {
		return pricing.Rules{}, fmt.Errorf("%w: discount_rate %q: %v", pricing.ErrInvalidRules, c.Pricing.DiscountRate, err)
	}

	rules := pricing.Rules{
		FreeShippingThresholdMinor: c.Pricing.FreeShippingThresholdMinor,
		ShippingFeeMinor:           c.Pricing.ShippingFeeMinor,
		TaxRate:                    tax,
		Discount: pricing.DiscountRule{
			ThresholdMinor: c.Pricing.DiscountThresholdMinor,
			Rate:           discount,
		},
	}
	if err := rules.Validate(); err != nil {
		return pricing.Rules{}, err
	}
	return rules, nil
}

// CouponRules returns the coupon table keyed by upper-cased code.
func (c *Config) CouponRules() (map[string]pricing.DiscountRule, error) {
	out := make(map[string]pricing.DiscountRule, len(c.Coupons))
	for code, coupon := range c.Coupons {
		rate, err := decimal.NewFromString(coupon.Rate)
		if err != nil {
			return nil, fmt.Errorf("%w: coupon %s rate %q: %v", pricing.ErrInvalidRules, code, coupon.Rate, err)
		}
		rule := pricing.DiscountRule{ThresholdMinor: coupon.ThresholdMinor, Rate: rate}
		if err := rule.Validate(); err != nil {
			return nil, fmt.Errorf("coupon %s: %w", code, err)
		}
		out[strings.ToUpper(code)] = rule
	}
	return out, nil
}
