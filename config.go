package chronikcache

import (
	"fmt"
	"os"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FailoverOptions configures the retry envelope.
type FailoverOptions struct {
	MaxRetries         uint64        `toml:"maxRetries"`
	RetryDelay         time.Duration `toml:"retryDelay"`
	ExponentialBackoff bool          `toml:"exponentialBackoff"`
}

// Config mirrors the construction options
type Config struct {
	MaxTxLimit      int           `toml:"maxTxLimit"`
	MaxCacheSize    int64         `toml:"maxCacheSize"`
	WSTimeout       time.Duration `toml:"wsTimeout"`
	WSExtendTimeout time.Duration `toml:"wsExtendTimeout"`
	EnableLogging   bool          `toml:"enableLogging"`
	EnableTimer     bool          `toml:"enableTimer"`

	FailoverOptions FailoverOptions `toml:"failoverOptions"`

	// MaxSubscriptions caps live notification subscriptions per
	// namespace. Not in the source option table but
	// documented there as a default of 30.
	MaxSubscriptions int `toml:"maxSubscriptions"`

	// MaxItemsPerKey is the chunking threshold for durable subject
	// storage, default 10000.
	MaxItemsPerKey int `toml:"maxItemsPerKey"`

	// ThrottleThreshold is the |txMap| size above which the build loop
	// only persists every 10th iteration, default 2000.
	ThrottleThreshold int `toml:"throttleThreshold"`

	// HashCheckProbability is the chance (0..1) that page serving
	// recomputes and compares the content hash, default 0.5; a tunable,
	// not a contract.
	HashCheckProbability float64 `toml:"hashCheckProbability"`

	// GlobalMetadataCacheLimit bounds the in-memory metadata LRU, default
	// 10000.
	GlobalMetadataCacheLimit int `toml:"globalMetadataCacheLimit"`

	// AddressPrefix is used by the default script resolver, default
	// "ecash:".
	AddressPrefix string `toml:"addressPrefix"`

	// DataDir is the durable store's on-disk location.
	DataDir string `toml:"dataDir"`
}

// DefaultConfig returns the documented defaults, with the additional
// tunables this expansion introduces filled in.
func DefaultConfig() Config {
	return Config{
		MaxTxLimit:      10_000,
		MaxCacheSize:    512 * 1024 * 1024,
		WSTimeout:       12 * time.Hour,
		WSExtendTimeout: 30 * time.Minute,
		EnableLogging:   false,
		EnableTimer:     false,
		FailoverOptions: FailoverOptions{
			MaxRetries:         3,
			RetryDelay:         1500 * time.Millisecond,
			ExponentialBackoff: true,
		},
		MaxSubscriptions:         30,
		MaxItemsPerKey:           10_000,
		ThrottleThreshold:        2000,
		HashCheckProbability:     0.5,
		GlobalMetadataCacheLimit: 10_000,
		AddressPrefix:            "ecash:",
		DataDir:                  "chronikcache-data",
	}
}

// applyDefaults fills zero-valued numeric, duration and string fields of
// cfg with DefaultConfig's values, so a caller-supplied Config{} literal
// behaves sensibly. Boolean fields are left as given, so a Config{} literal
// has FailoverOptions.ExponentialBackoff false.
func applyDefaults(cfg Config) Config {
	d := DefaultConfig()
	if cfg.MaxTxLimit == 0 {
		cfg.MaxTxLimit = d.MaxTxLimit
	}
	if cfg.MaxCacheSize == 0 {
		cfg.MaxCacheSize = d.MaxCacheSize
	}
	if cfg.WSTimeout == 0 {
		cfg.WSTimeout = d.WSTimeout
	}
	if cfg.WSExtendTimeout == 0 {
		cfg.WSExtendTimeout = d.WSExtendTimeout
	}
	if cfg.FailoverOptions.MaxRetries == 0 {
		cfg.FailoverOptions.MaxRetries = d.FailoverOptions.MaxRetries
	}
	if cfg.FailoverOptions.RetryDelay == 0 {
		cfg.FailoverOptions.RetryDelay = d.FailoverOptions.RetryDelay
	}
	if cfg.MaxSubscriptions == 0 {
		cfg.MaxSubscriptions = d.MaxSubscriptions
	}
	if cfg.MaxItemsPerKey == 0 {
		cfg.MaxItemsPerKey = d.MaxItemsPerKey
	}
	if cfg.ThrottleThreshold == 0 {
		cfg.ThrottleThreshold = d.ThrottleThreshold
	}
	if cfg.HashCheckProbability == 0 {
		cfg.HashCheckProbability = d.HashCheckProbability
	}
	if cfg.GlobalMetadataCacheLimit == 0 {
		cfg.GlobalMetadataCacheLimit = d.GlobalMetadataCacheLimit
	}
	if cfg.AddressPrefix == "" {
		cfg.AddressPrefix = d.AddressPrefix
	}
	if cfg.DataDir == "" {
		cfg.DataDir = d.DataDir
	}
	return cfg
}

// LoadConfig reads a TOML config file, applying DefaultConfig for any
// field left at its zero value.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("chronikcache: read config %s: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("chronikcache: parse config %s: %w", path, err)
	}
	return applyDefaults(cfg), nil
}
