package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvConfigPath names the environment variable holding the config file path.
const EnvConfigPath = "BLOCKWIKI_CONFIG"

type Config struct {
	Addr          string `toml:"addr"`
	PublicURL     string `toml:"public_url"`
	DatabaseURL   string `toml:"database_url"` // empty selects the in-memory store
	MigrationsDir string `toml:"migrations_dir"`
	ReposDir      string `toml:"repos_dir"`
	CORSOrigin    string `toml:"cors_origin"`

	Database DatabaseConfig `toml:"database"`
	Log      LogConfig      `toml:"log"`
	Search   SearchConfig   `toml:"search"`
	Lock     LockConfig     `toml:"lock"`
	Media    MediaConfig    `toml:"media"`
}

type DatabaseConfig struct {
	MaxOpenConns int `toml:"max_open_conns"`
	MaxIdleConns int `toml:"max_idle_conns"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"` // "json" or "console"
}

type SearchConfig struct {
	MeiliURL       string `toml:"meili_url"` // empty disables Meilisearch
	MeiliMasterKey string `toml:"meili_master_key"`
}

// LockConfig selects the shared storage and broadcast channel behind the
// edit lock. This uses a tagged union pattern: Backend determines which
// other fields are relevant.
type LockConfig struct {
	Backend   string        `toml:"backend"`   // "memory", "redis" or "file"
	RedisURL  string        `toml:"redis_url"` // backend=redis
	FilePath  string        `toml:"file_path"` // backend=file
	TTL       time.Duration `toml:"ttl"`
	Heartbeat time.Duration `toml:"heartbeat"` // zero means TTL/2
	Retention time.Duration `toml:"retention"` // redis key expiry
}

// MediaConfig points uploads at an S3-compatible bucket. An empty Endpoint
// keeps uploads in memory.
type MediaConfig struct {
	Endpoint  string `toml:"endpoint"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	UseSSL    bool   `toml:"use_ssl"`
	PublicURL string `toml:"public_url"`
	MaxBytes  int64  `toml:"max_bytes"`
}

func Defaults() Config {
	return Config{
		Addr:          ":8787",
		PublicURL:     "http://localhost:8787",
		MigrationsDir: "./db/migrations",
		ReposDir:      "./data/repos",
		CORSOrigin:    "*",
		Database:      DatabaseConfig{MaxOpenConns: 20, MaxIdleConns: 10},
		Log:           LogConfig{Level: "info", Format: "json"},
		Lock: LockConfig{
			Backend:   "memory",
			FilePath:  "./data/locks.json",
			TTL:       2 * time.Minute,
			Retention: 24 * time.Hour,
		},
		Media: MediaConfig{Bucket: "blockwiki-media", MaxBytes: 25 << 20},
	}
}

// Load builds the configuration from defaults, then the TOML file at path
// (or $BLOCKWIKI_CONFIG when path is empty), then environment variables.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return Config{}, fmt.Errorf("open config file: %w", err)
		}
		err = Read(f, &cfg)
		f.Close()
		if err != nil {
			return Config{}, fmt.Errorf("reading config from %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read decodes TOML from r over cfg. Unknown keys are an error.
func Read(r io.Reader, cfg *Config) error {
	md, err := toml.NewDecoder(r).Decode(cfg)
	if err != nil {
		return fmt.Errorf("decode config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Lock.Backend {
	case "memory", "redis", "file":
	default:
		return fmt.Errorf("lock.backend must be memory, redis or file, got %q", c.Lock.Backend)
	}
	if c.Lock.Backend == "redis" && c.Lock.RedisURL == "" {
		return fmt.Errorf("lock.redis_url is required for the redis backend")
	}
	if c.Lock.Backend == "file" && c.Lock.FilePath == "" {
		return fmt.Errorf("lock.file_path is required for the file backend")
	}
	if c.Lock.TTL <= 0 {
		return fmt.Errorf("lock.ttl must be positive")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

func applyEnv(c *Config) {
	c.Addr = getenv("API_ADDR", c.Addr)
	c.PublicURL = getenv("BLOCKWIKI_PUBLIC_URL", c.PublicURL)
	c.DatabaseURL = getenv("DATABASE_URL", c.DatabaseURL)
	c.MigrationsDir = getenv("BLOCKWIKI_MIGRATIONS_DIR", c.MigrationsDir)
	c.ReposDir = getenv("BLOCKWIKI_REPOS_DIR", c.ReposDir)
	c.CORSOrigin = getenv("BLOCKWIKI_CORS_ORIGIN", c.CORSOrigin)

	c.Database.MaxOpenConns = getenvInt("BLOCKWIKI_DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getenvInt("BLOCKWIKI_DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)

	c.Log.Level = getenv("BLOCKWIKI_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getenv("BLOCKWIKI_LOG_FORMAT", c.Log.Format)

	c.Search.MeiliURL = getenv("MEILI_URL", c.Search.MeiliURL)
	c.Search.MeiliMasterKey = getenv("MEILI_MASTER_KEY", c.Search.MeiliMasterKey)

	c.Lock.Backend = getenv("BLOCKWIKI_LOCK_BACKEND", c.Lock.Backend)
	c.Lock.RedisURL = getenv("REDIS_URL", c.Lock.RedisURL)
	c.Lock.FilePath = getenv("BLOCKWIKI_LOCK_FILE", c.Lock.FilePath)
	c.Lock.TTL = getenvDuration("BLOCKWIKI_LOCK_TTL", c.Lock.TTL)
	c.Lock.Heartbeat = getenvDuration("BLOCKWIKI_LOCK_HEARTBEAT", c.Lock.Heartbeat)
	c.Lock.Retention = getenvDuration("BLOCKWIKI_LOCK_RETENTION", c.Lock.Retention)

	c.Media.Endpoint = getenv("MEDIA_ENDPOINT", c.Media.Endpoint)
	c.Media.AccessKey = getenv("MEDIA_ACCESS_KEY", c.Media.AccessKey)
	c.Media.SecretKey = getenv("MEDIA_SECRET_KEY", c.Media.SecretKey)
	c.Media.Bucket = getenv("MEDIA_BUCKET", c.Media.Bucket)
	c.Media.Region = getenv("MEDIA_REGION", c.Media.Region)
	c.Media.UseSSL = getenvBool("MEDIA_USE_SSL", c.Media.UseSSL)
	c.Media.PublicURL = getenv("MEDIA_PUBLIC_URL", c.Media.PublicURL)
	c.Media.MaxBytes = int64(getenvInt("MEDIA_MAX_BYTES", int(c.Media.MaxBytes)))
}

func getenv(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// getenvDuration accepts Go durations ("90s") or a bare number of seconds.
func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func getenvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}
