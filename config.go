package pimsync

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

// Cache backend names
const (
	CacheBackendFilesystem = "filesystem"
	CacheBackendS3         = "s3"
	CacheBackendRedis      = "redis"
	CacheBackendPostgres   = "postgres"
)

// Watermark backend names
const (
	WatermarkBackendCache    = "cache"
	WatermarkBackendPostgres = "postgres"
)

// Model import types
const (
	ModelImportMasterVariation      = "master-variation"
	ModelImportMasterGroupVariation = "master-group-variation"
)

// Association import types
const (
	AssociationRecommendations = "product-recommendations"
	AssociationLinks           = "product-links"
	AssociationNone            = "none"
)

// Config consolidates every setting a job step needs
type Config struct {
	PIM       PIMConfig       `json:"pim" yaml:"pim"`
	Cache     CacheConfig     `json:"cache" yaml:"cache"`
	Import    ImportConfig    `json:"import" yaml:"import"`
	Watermark WatermarkConfig `json:"watermark" yaml:"watermark"`
	Debug     DebugConfig     `json:"debug" yaml:"debug"`
	Logging   LoggingConfig   `json:"logging" yaml:"logging"`
}

// PIMConfig contains the remote API connection settings
type PIMConfig struct {
	BaseURL           string        `json:"baseUrl" yaml:"base_url" env:"PIM_BASE_URL"`
	ClientID          string        `json:"clientId" yaml:"client_id" env:"PIM_CLIENT_ID"`
	ClientSecret      string        `json:"-" yaml:"-" env:"PIM_CLIENT_SECRET"`
	Username          string        `json:"username" yaml:"username" env:"PIM_USERNAME"`
	Password          string        `json:"-" yaml:"-" env:"PIM_PASSWORD"`
	PageSize          int           `json:"pageSize" yaml:"page_size" env:"PIM_PAGE_SIZE" env-default:"50"`
	RetryLimit        int           `json:"retryLimit" yaml:"retry_limit" env:"PIM_RETRY_LIMIT" env-default:"5"`
	TokenSafetyWindow time.Duration `json:"tokenSafetyWindow" yaml:"token_safety_window" env:"PIM_TOKEN_SAFETY_WINDOW" env-default:"10m"`
	RequestsPerSecond float64       `json:"requestsPerSecond" yaml:"requests_per_second" env:"PIM_REQUESTS_PER_SECOND" env-default:"10"`
	Timeout           time.Duration `json:"timeout" yaml:"timeout" env:"PIM_TIMEOUT" env-default:"60s"`
	BreakerThreshold  int           `json:"breakerThreshold" yaml:"breaker_threshold" env:"PIM_BREAKER_THRESHOLD" env-default:"3"`
	BreakerWindow     time.Duration `json:"breakerWindow" yaml:"breaker_window" env:"PIM_BREAKER_WINDOW" env-default:"1m"`
	BreakerCooldown   time.Duration `json:"breakerCooldown" yaml:"breaker_cooldown" env:"PIM_BREAKER_COOLDOWN" env-default:"30s"`
}

// CacheConfig selects and configures the cache backing medium
type CacheConfig struct {
	Backend        string         `json:"backend" yaml:"backend" env:"CACHE_BACKEND" env-default:"filesystem"`
	BaseDir        string         `json:"baseDir" yaml:"base_dir" env:"CACHE_BASE_DIR" env-default:"."`
	ShardThreshold int            `json:"shardThreshold" yaml:"shard_threshold" env:"CACHE_SHARD_THRESHOLD" env-default:"1000000"`
	S3             S3Config       `json:"s3" yaml:"s3"`
	Redis          RedisConfig    `json:"redis" yaml:"redis"`
	Postgres       PostgresConfig `json:"postgres" yaml:"postgres"`
}

// S3Config contains object storage settings for the s3 backend
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket" env:"CACHE_S3_BUCKET"`
	Prefix       string `json:"prefix" yaml:"prefix" env:"CACHE_S3_PREFIX" env-default:"customcache"`
	Region       string `json:"region" yaml:"region" env:"CACHE_S3_REGION"`
	Endpoint     string `json:"endpoint" yaml:"endpoint" env:"CACHE_S3_ENDPOINT"`
	AccessKey    string `json:"-" yaml:"-" env:"AWS_ACCESS_KEY_ID"`
	SecretKey    string `json:"-" yaml:"-" env:"AWS_SECRET_ACCESS_KEY"`
	UsePathStyle bool   `json:"usePathStyle" yaml:"use_path_style" env:"CACHE_S3_PATH_STYLE"`
}

// RedisConfig contains settings for the redis backend
type RedisConfig struct {
	Host      string `json:"host" yaml:"host" env:"REDIS_HOST"`
	Port      int    `json:"port" yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password  string `json:"-" yaml:"-" env:"REDIS_PASSWORD"`
	DB        int    `json:"db" yaml:"db" env:"REDIS_DB" env-default:"0"`
	KeyPrefix string `json:"keyPrefix" yaml:"key_prefix" env:"REDIS_KEY_PREFIX" env-default:"pimsync"`
}

// PostgresConfig contains settings shared by the postgres cache backend and watermark store
type PostgresConfig struct {
	Host           string        `json:"host" yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int           `json:"port" yaml:"port" env:"PGPORT" env-default:"5432"`
	Database       string        `json:"database" yaml:"database" env:"PGDATABASE" env-default:"pimsync"`
	Username       string        `json:"username" yaml:"username" env:"PGUSER" env-default:"postgres"`
	Password       string        `json:"-" yaml:"-" env:"PGPASSWORD"`
	SSLMode        string        `json:"sslMode" yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	UseIAM         bool          `json:"useIam" yaml:"use_iam" env:"PG_USE_IAM"`
	Region         string        `json:"region" yaml:"region" env:"PG_REGION"`
	MaxConnections int           `json:"maxConnections" yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"5"`
	Timeout        time.Duration `json:"timeout" yaml:"timeout" env:"PG_TIMEOUT" env-default:"10s"`
	CacheTable     string        `json:"cacheTable" yaml:"cache_table" env:"PG_CACHE_TABLE" env-default:"pim_cache_entries"`
	WatermarkTable string        `json:"watermarkTable" yaml:"watermark_table" env:"PG_WATERMARK_TABLE" env-default:"pim_import_runtime"`
}

// ImportConfig contains the catalog mapping settings
type ImportConfig struct {
	Scope                string            `json:"scope" yaml:"scope" env:"IMPORT_SCOPE"`
	CatalogID            string            `json:"catalogId" yaml:"catalog_id" env:"IMPORT_CATALOG_ID"`
	ColorKey             string            `json:"colorKey" yaml:"color_key" env:"IMPORT_COLOR_KEY" env-default:"color"`
	RefinementColorKey   string            `json:"refinementColorKey" yaml:"refinement_color_key" env:"IMPORT_REFINEMENT_COLOR_KEY" env-default:"refinementColor"`
	MappingFile          string            `json:"mappingFile" yaml:"mapping_file" env:"IMPORT_MAPPING_FILE"`
	SystemMappings       map[string]string `json:"systemMappings" yaml:"system_mappings"`
	CustomMappings       map[string]string `json:"customMappings" yaml:"custom_mappings"`
	ProductSearch        string            `json:"productSearch" yaml:"product_search" env:"IMPORT_PRODUCT_SEARCH"`
	ProductModelSearch   string            `json:"productModelSearch" yaml:"product_model_search" env:"IMPORT_PRODUCT_MODEL_SEARCH"`
	Categories           []string          `json:"categories" yaml:"categories" env:"IMPORT_CATEGORIES" env-separator:","`
	ModelImportType      string            `json:"modelImportType" yaml:"model_import_type" env:"IMPORT_MODEL_TYPE" env-default:"master-variation"`
	AdvancedAttributes   []string          `json:"advancedAttributes" yaml:"advanced_attributes" env:"IMPORT_ADVANCED_ATTRIBUTES" env-separator:","`
	CatalogRuntimeObject string            `json:"catalogRuntimeObject" yaml:"catalog_runtime_object" env:"IMPORT_CATALOG_RUNTIME" env-default:"AkeneoCatalogRunTime"`

	// Category tree and assignments
	WriteCategories  bool     `json:"writeCategories" yaml:"write_categories" env:"IMPORT_WRITE_CATEGORIES" env-default:"true"`
	TopLevelCategory string   `json:"topLevelCategory" yaml:"top_level_category" env:"IMPORT_TOP_LEVEL_CATEGORY"`
	MainCatalogs     []string `json:"mainCatalogs" yaml:"main_catalogs" env:"IMPORT_MAIN_CATALOGS" env-separator:","`
	CategoryOnline   bool     `json:"categoryOnline" yaml:"category_online" env:"IMPORT_CATEGORY_ONLINE"`
	PrimaryFlag      bool     `json:"primaryFlag" yaml:"primary_flag" env:"IMPORT_PRIMARY_FLAG" env-default:"true"`

	// AssociationType selects how associations are written; AssociationMappings
	// maps a PIM association type to the target recommendation or link type.
	AssociationType     string            `json:"associationType" yaml:"association_type" env:"IMPORT_ASSOCIATION_TYPE" env-default:"product-recommendations"`
	AssociationMappings map[string]string `json:"associationMappings" yaml:"association_mappings"`

	// PriceAttribute is the price collection written to the list price books
	PriceAttribute string `json:"priceAttribute" yaml:"price_attribute" env:"IMPORT_PRICE_ATTRIBUTE" env-default:"price"`
}

// WatermarkConfig selects where last-import timestamps are kept
type WatermarkConfig struct {
	Backend string `json:"backend" yaml:"backend" env:"WATERMARK_BACKEND" env-default:"cache"`
}

// DebugConfig contains the pagination cut-off used while testing against large catalogs
type DebugConfig struct {
	BreakOnLimit bool `json:"breakOnLimit" yaml:"break_on_limit" env:"DEBUG_BREAK_ON_LIMIT"`
	PageLimit    int  `json:"pageLimit" yaml:"page_limit" env:"DEBUG_PAGE_LIMIT" env-default:"2"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level    string `json:"level" yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Encoding string `json:"encoding" yaml:"encoding" env:"LOG_ENCODING" env-default:"console"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		PIM: PIMConfig{
			PageSize:          50,
			RetryLimit:        5,
			TokenSafetyWindow: 600000 * time.Millisecond,
			RequestsPerSecond: 10,
			Timeout:           60 * time.Second,
			BreakerThreshold:  3,
			BreakerWindow:     1 * time.Minute,
			BreakerCooldown:   30 * time.Second,
		},
		Cache: CacheConfig{
			Backend:        CacheBackendFilesystem,
			BaseDir:        ".",
			ShardThreshold: 1000000,
			S3: S3Config{
				Prefix: "customcache",
			},
			Redis: RedisConfig{
				Port:      6379,
				KeyPrefix: "pimsync",
			},
			Postgres: PostgresConfig{
				Host:           "localhost",
				Port:           5432,
				Database:       "pimsync",
				Username:       "postgres",
				SSLMode:        "disable",
				MaxConnections: 5,
				Timeout:        10 * time.Second,
				CacheTable:     "pim_cache_entries",
				WatermarkTable: "pim_import_runtime",
			},
		},
		Import: ImportConfig{
			ColorKey:             "color",
			RefinementColorKey:   "refinementColor",
			SystemMappings:       map[string]string{},
			CustomMappings:       map[string]string{},
			ModelImportType:      ModelImportMasterVariation,
			CatalogRuntimeObject: "AkeneoCatalogRunTime",
			WriteCategories:      true,
			PrimaryFlag:          true,
			AssociationType:      AssociationRecommendations,
			AssociationMappings:  map[string]string{},
			PriceAttribute:       "price",
		},
		Watermark: WatermarkConfig{
			Backend: WatermarkBackendCache,
		},
		Debug: DebugConfig{
			PageLimit: 2,
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "console",
		},
	}
}

// LoadConfig reads a YAML file with environment overrides. An empty path reads the environment only.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if cfg.Import.MappingFile != "" {
		mappings, err := LoadMappings(cfg.Import.MappingFile)
		if err != nil {
			return nil, err
		}
		cfg.Import.merge(mappings)
	}
	return cfg, nil
}

// AttributeMappings overrides the generated target ids of PIM attribute codes
type AttributeMappings struct {
	System map[string]string `yaml:"system"`
	Custom map[string]string `yaml:"custom"`
}

// LoadMappings parses a YAML mapping file with "system" and "custom" sections.
func LoadMappings(path string) (*AttributeMappings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping file: %w", err)
	}
	var m AttributeMappings
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parse mapping file %s: %w", path, err)
	}
	return &m, nil
}

func (c *ImportConfig) merge(m *AttributeMappings) {
	if c.SystemMappings == nil {
		c.SystemMappings = make(map[string]string, len(m.System))
	}
	if c.CustomMappings == nil {
		c.CustomMappings = make(map[string]string, len(m.Custom))
	}
	for k, v := range m.System {
		c.SystemMappings[k] = v
	}
	for k, v := range m.Custom {
		c.CustomMappings[k] = v
	}
}

// Validate validates the configuration. It runs before any network call.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.PIM.BaseURL) == "" {
		return &ConfigError{Field: "pim.baseUrl", Message: "is required"}
	}
	if u, err := url.Parse(c.PIM.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return &ConfigError{Field: "pim.baseUrl", Message: "must be an absolute URL"}
	}
	if c.PIM.ClientID == "" || c.PIM.ClientSecret == "" {
		return &ConfigError{Field: "pim.clientId", Message: "client id and secret are required"}
	}
	if c.PIM.Username == "" {
		return &ConfigError{Field: "pim.username", Message: "is required"}
	}
	if c.PIM.PageSize <= 0 || c.PIM.PageSize > 100 {
		return &ConfigError{Field: "pim.pageSize", Message: "must be between 1 and 100"}
	}
	if c.PIM.RetryLimit <= 0 {
		return &ConfigError{Field: "pim.retryLimit", Message: "must be greater than 0"}
	}
	if c.Import.CatalogID == "" {
		return &ConfigError{Field: "import.catalogId", Message: "is required"}
	}
	switch c.Import.ModelImportType {
	case ModelImportMasterVariation, ModelImportMasterGroupVariation:
	default:
		return &ConfigError{Field: "import.modelImportType", Message: "must be master-variation or master-group-variation"}
	}
	switch c.Import.AssociationType {
	case AssociationRecommendations, AssociationLinks, AssociationNone:
	default:
		return &ConfigError{Field: "import.associationType", Message: "must be product-recommendations, product-links or none"}
	}
	if c.Cache.ShardThreshold <= 0 {
		return &ConfigError{Field: "cache.shardThreshold", Message: "must be greater than 0"}
	}

	switch c.Cache.Backend {
	case CacheBackendFilesystem:
		if c.Cache.BaseDir == "" {
			return &ConfigError{Field: "cache.baseDir", Message: "is required for the filesystem backend"}
		}
	case CacheBackendS3:
		if c.Cache.S3.Bucket == "" {
			return &ConfigError{Field: "cache.s3.bucket", Message: "is required for the s3 backend"}
		}
		if (c.Cache.S3.AccessKey == "") != (c.Cache.S3.SecretKey == "") {
			return &ConfigError{Field: "cache.s3.accessKey", Message: "access key and secret key must be set together"}
		}
	case CacheBackendRedis:
		if c.Cache.Redis.Host == "" {
			return &ConfigError{Field: "cache.redis.host", Message: "is required for the redis backend"}
		}
	case CacheBackendPostgres:
		if err := c.Cache.Postgres.validate("cache.postgres"); err != nil {
			return err
		}
	default:
		return &ConfigError{Field: "cache.backend", Message: fmt.Sprintf("unsupported backend %q", c.Cache.Backend)}
	}

	switch c.Watermark.Backend {
	case WatermarkBackendCache:
	case WatermarkBackendPostgres:
		if err := c.Cache.Postgres.validate("cache.postgres"); err != nil {
			return err
		}
	default:
		return &ConfigError{Field: "watermark.backend", Message: fmt.Sprintf("unsupported backend %q", c.Watermark.Backend)}
	}
	return nil
}

func (p PostgresConfig) validate(prefix string) error {
	if p.Host == "" {
		return &ConfigError{Field: prefix + ".host", Message: "is required"}
	}
	if p.Port <= 0 || p.Port > 65535 {
		return &ConfigError{Field: prefix + ".port", Message: "must be a valid TCP port"}
	}
	if p.MaxConnections <= 0 {
		return &ConfigError{Field: prefix + ".maxConnections", Message: "must be greater than 0"}
	}
	return nil
}

// DSN builds a pgx connection string. password overrides the configured one when non-empty.
func (p PostgresConfig) DSN(password string) string {
	if password == "" {
		password = p.Password
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.Username, password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=" + p.SSLMode,
	}
	return u.String()
}

// ConfigError represents a configuration validation error
type ConfigError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigError) Error() string {
	return "config validation error for field '" + e.Field + "': " + e.Message
}

// AsSyncError converts the validation failure into the configuration error type of the taxonomy.
func (e *ConfigError) AsSyncError() *SyncError {
	return NewConfigurationError(e.Field, e.Message)
}
