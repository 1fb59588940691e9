package config

import (
	"fmt"
	"log"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StorageMemory = "memory"
	StorageSQL    = "sql"

	// SlugColumnSize is the width of the slug columns in the SQL schema
	SlugColumnSize = 64

	defaultJWTSecret = "change-me"
)

// Config holds all the configuration for the application.
type Config struct {
	Env          string `yaml:"env" env:"ENV" env-default:"production"`
	HTTPServer   `yaml:"http_server"`
	Storage      `yaml:"storage"`
	Database     `yaml:"database"`
	URLShortener `yaml:"url_shortener"`
	Auth         `yaml:"auth"`
	QR           `yaml:"qr"`
	Analytics    `yaml:"analytics"`
	Cache        `yaml:"cache"`
	RateLimit    `yaml:"rate_limit"`
	Log          `yaml:"log"`
}

// HTTPServer holds HTTP listener configuration.
type HTTPServer struct {
	Address      string        `yaml:"address" env:"HTTP_ADDRESS" env-default:":8080"`
	ReadTimeout  time.Duration `yaml:"read_timeout" env:"HTTP_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"HTTP_WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
	CORSOrigins  []string      `yaml:"cors_origins" env:"HTTP_CORS_ORIGINS" env-separator:"," env-default:"http://localhost:3000,http://localhost:5173"`
	// TrustedProxies are IPs or CIDRs allowed to set X-Forwarded-For and X-Real-IP
	TrustedProxies []string `yaml:"trusted_proxies" env:"HTTP_TRUSTED_PROXIES" env-separator:","`
}

// TrustedPrefixes parses TrustedProxies; a bare address becomes a single-host prefix.
func (h HTTPServer) TrustedPrefixes() ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(h.TrustedProxies))
	for _, raw := range h.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", raw, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// Storage selects the link store backend.
type Storage struct {
	Kind string `yaml:"kind" env:"STORAGE_KIND" env-default:"sql"`
}

// Database holds gorm connection settings. DSN, when set, wins over the discrete fields.
type Database struct {
	Driver          string `yaml:"driver" env:"DB_DRIVER" env-default:"postgres"`
	DSN             string `yaml:"dsn" env:"DB_DSN"`
	Host            string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port            int    `yaml:"port" env:"DB_PORT" env-default:"5432"`
	User            string `yaml:"user" env:"DB_USER" env-default:"postgres"`
	Password        string `yaml:"password" env:"DB_PASSWORD"`
	DBName          string `yaml:"dbname" env:"DB_NAME" env-default:"qrlinks"`
	SSLMode         string `yaml:"sslmode" env:"DB_SSLMODE" env-default:"disable"`
	Timezone        string `yaml:"timezone" env:"DB_TIMEZONE" env-default:"UTC"`
	MaxIdleConns    int    `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	MaxOpenConns    int    `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"20"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"1h"`
	AutoMigrate     bool   `yaml:"auto_migrate" env:"DB_AUTO_MIGRATE" env-default:"true"`
	LogQueries      bool   `yaml:"log_queries" env:"DB_LOG_QUERIES" env-default:"false"`
}

// URLShortener holds service-specific configuration.
type URLShortener struct {
	BaseURL            string `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:8080"`
	SlugLength         int    `yaml:"slug_length" env:"SLUG_LENGTH" env-default:"7"`
	MaxSlugLength      int    `yaml:"max_slug_length" env:"MAX_SLUG_LENGTH" env-default:"64"`
	MaxGenerateRetries int    `yaml:"max_generate_retries" env:"MAX_GENERATE_RETRIES" env-default:"5"`
	MultiTenant        bool   `yaml:"multi_tenant" env:"MULTI_TENANT" env-default:"true"`
	ScanPageSize       int    `yaml:"scan_page_size" env:"SCAN_PAGE_SIZE" env-default:"100"`
}

// Auth holds token and password hashing settings.
type Auth struct {
	JWTSecret       string        `yaml:"jwt_secret" env:"JWT_SECRET" env-default:"change-me"`
	Issuer          string        `yaml:"issuer" env:"JWT_ISSUER" env-default:"QRLinks-Backend"`
	AccessTokenTTL  time.Duration `yaml:"access_token_ttl" env:"JWT_ACCESS_TTL" env-default:"15m"`
	RefreshTokenTTL time.Duration `yaml:"refresh_token_ttl" env:"JWT_REFRESH_TTL" env-default:"168h"`
	BcryptCost      int           `yaml:"bcrypt_cost" env:"BCRYPT_COST" env-default:"12"`
}

// QR holds rendering defaults.
type QR struct {
	Size         int           `yaml:"size" env:"QR_SIZE" env-default:"280"`
	BorderWidth  int           `yaml:"border_width" env:"QR_BORDER_WIDTH" env-default:"8"`
	LogoRatio    float64       `yaml:"logo_ratio" env:"QR_LOGO_RATIO" env-default:"0.22"`
	LogoTimeout  time.Duration `yaml:"logo_timeout" env:"QR_LOGO_TIMEOUT" env-default:"3s"`
	LogoMaxBytes int64         `yaml:"logo_max_bytes" env:"QR_LOGO_MAX_BYTES" env-default:"1048576"`
}

// Analytics holds scan processor settings.
type Analytics struct {
	Async           bool          `yaml:"async" env:"ANALYTICS_ASYNC" env-default:"true"`
	Workers         int           `yaml:"workers" env:"ANALYTICS_WORKERS" env-default:"3"`
	BufferSize      int           `yaml:"buffer_size" env:"ANALYTICS_BUFFER_SIZE" env-default:"1000"`
	RetryAttempts   int           `yaml:"retry_attempts" env:"ANALYTICS_RETRY_ATTEMPTS" env-default:"3"`
	RetryDelay      time.Duration `yaml:"retry_delay" env:"ANALYTICS_RETRY_DELAY" env-default:"500ms"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"ANALYTICS_SHUTDOWN_TIMEOUT" env-default:"10s"`
	RegexesPath     string        `yaml:"regexes_path" env:"UA_REGEXES_PATH"`
}

// Cache holds the redis destination cache settings.
type Cache struct {
	Enabled  bool          `yaml:"enabled" env:"CACHE_ENABLED" env-default:"false"`
	Addr     string        `yaml:"addr" env:"CACHE_ADDR" env-default:"localhost:6379"`
	Password string        `yaml:"password" env:"CACHE_PASSWORD"`
	DB       int           `yaml:"db" env:"CACHE_DB" env-default:"0"`
	TTL      time.Duration `yaml:"ttl" env:"CACHE_TTL" env-default:"10m"`
}

// RateLimit holds per-client request limits.
type RateLimit struct {
	Enabled bool    `yaml:"enabled" env:"RATE_LIMIT_ENABLED" env-default:"false"`
	RPS     float64 `yaml:"rps" env:"RATE_LIMIT_RPS" env-default:"20"`
	Burst   int     `yaml:"burst" env:"RATE_LIMIT_BURST" env-default:"40"`
}

// Log holds optional file sink settings.
type Log struct {
	File       string `yaml:"file" env:"LOG_FILE"`
	MaxSizeMB  int    `yaml:"max_size_mb" env:"LOG_MAX_SIZE_MB" env-default:"10"`
	MaxBackups int    `yaml:"max_backups" env:"LOG_MAX_BACKUPS" env-default:"5"`
	MaxAgeDays int    `yaml:"max_age_days" env:"LOG_MAX_AGE_DAYS" env-default:"30"`
}

// MustLoad loads the application configuration.
func MustLoad() *Config {
	// Try to load .env file (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment variables")
	}

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/local.yml"
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

// Load reads the config file at path, or the environment alone when the file is missing.
func Load(path string) (*Config, error) {
	var cfg Config

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("read config from environment: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Kind {
	case StorageMemory, StorageSQL:
	default:
		return fmt.Errorf("unknown storage kind %q", c.Storage.Kind)
	}
	if c.URLShortener.SlugLength < 7 {
		return fmt.Errorf("slug_length must be at least 7, got %d", c.URLShortener.SlugLength)
	}
	if c.URLShortener.MaxSlugLength < c.URLShortener.SlugLength {
		return fmt.Errorf("max_slug_length (%d) is shorter than slug_length (%d)", c.URLShortener.MaxSlugLength, c.URLShortener.SlugLength)
	}
	if c.URLShortener.MaxSlugLength > SlugColumnSize {
		return fmt.Errorf("max_slug_length must be at most %d, got %d", SlugColumnSize, c.URLShortener.MaxSlugLength)
	}
	if c.URLShortener.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.Env == "production" && (c.Auth.JWTSecret == "" || c.Auth.JWTSecret == defaultJWTSecret) {
		return fmt.Errorf("jwt_secret must be set in production")
	}
	if _, err := c.HTTPServer.TrustedPrefixes(); err != nil {
		return err
	}
	return nil
}
