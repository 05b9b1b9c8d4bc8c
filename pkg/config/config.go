package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	GCP          GCPConfig
	Storage      StorageConfig
	GCS          GCSConfig
	S3           S3Config
	Pipeline     PipelineConfig
	PubSub       PubSubConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
		return nil, err
	}
	if err := cfg.Storage.validate(cfg.GCS, cfg.S3); err != nil {
		return nil, err
	}
	if err := cfg.Cron.validate(cfg.Pipeline); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"MAGAZINES_APP_ENV" required:"true"`
	Port         string   `envconfig:"MAGAZINES_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"MAGAZINES_LOG_LEVEL" default:"info"`
	LogFormat    string   `envconfig:"MAGAZINES_LOG_FORMAT" default:"json"`
	LogWarnStack bool     `envconfig:"MAGAZINES_LOG_WARN_STACK" default:"false"`
	CORSOrigins  []string `envconfig:"MAGAZINES_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MAGAZINES_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"MAGAZINES_DB_DSN"`

	Host     string `envconfig:"MAGAZINES_DB_HOST"`
	Port     int    `envconfig:"MAGAZINES_DB_PORT" default:"5432"`
	User     string `envconfig:"MAGAZINES_DB_USER"`
	Password string `envconfig:"MAGAZINES_DB_PASSWORD"`
	Name     string `envconfig:"MAGAZINES_DB_NAME"`
	SSLMode  string `envconfig:"MAGAZINES_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"MAGAZINES_SQLITE_PATH" default:"magazines.db"`

	MaxOpenConns    int           `envconfig:"MAGAZINES_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MAGAZINES_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MAGAZINES_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MAGAZINES_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MAGAZINES_REDIS_URL"`
	Address      string        `envconfig:"MAGAZINES_REDIS_ADDR"`
	Password     string        `envconfig:"MAGAZINES_REDIS_PASSWORD"`
	DB           int           `envconfig:"MAGAZINES_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MAGAZINES_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MAGAZINES_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MAGAZINES_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MAGAZINES_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MAGAZINES_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether a Redis endpoint is configured. Without one the API
// falls back to in-process ingestion locks.
func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != "" || strings.TrimSpace(r.Address) != ""
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MAGAZINES_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MAGAZINES_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MAGAZINES_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MAGAZINES_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MAGAZINES_GOOGLE_APPLICATION_CREDENTIALS"`
}

type StorageConfig struct {
	Provider      string        `envconfig:"MAGAZINES_STORAGE_PROVIDER" default:"s3"`
	PublicBaseURL string        `envconfig:"MAGAZINES_STORAGE_PUBLIC_BASE_URL"`
	UploadTimeout time.Duration `envconfig:"MAGAZINES_STORAGE_UPLOAD_TIMEOUT" default:"60s"`
}

func (s StorageConfig) validate(gcs GCSConfig, s3 S3Config) error {
	switch strings.ToLower(strings.TrimSpace(s.Provider)) {
	case StorageProviderGCS:
		if gcs.BucketName == "" {
			return fmt.Errorf("%s is required for the gcs provider", EnvGCSBucket)
		}
	case StorageProviderS3:
		if s3.Bucket == "" {
			return fmt.Errorf("%s is required for the s3 provider", EnvS3Bucket)
		}
	default:
		return fmt.Errorf("unsupported storage provider %q", s.Provider)
	}
	if s.UploadTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvStorageUploadTimeout)
	}
	return nil
}

type GCSConfig struct {
	BucketName string `envconfig:"MAGAZINES_GCS_BUCKET_NAME"`
}

type S3Config struct {
	Bucket       string `envconfig:"MAGAZINES_S3_BUCKET"`
	Region       string `envconfig:"MAGAZINES_S3_REGION" default:"ap-south-1"`
	Endpoint     string `envconfig:"MAGAZINES_S3_ENDPOINT"`
	UsePathStyle bool   `envconfig:"MAGAZINES_S3_USE_PATH_STYLE" default:"false"`
}

type PipelineConfig struct {
	PDFToPPMPath    string        `envconfig:"MAGAZINES_PDFTOPPM_PATH" default:"pdftoppm"`
	RenderDPI       int           `envconfig:"MAGAZINES_RENDER_DPI" default:"180"`
	RenderTimeout   time.Duration `envconfig:"MAGAZINES_RENDER_TIMEOUT" default:"5m"`
	MaxWidth        int           `envconfig:"MAGAZINES_PAGE_MAX_WIDTH" default:"1600"`
	Quality         int           `envconfig:"MAGAZINES_PAGE_QUALITY" default:"82"`
	Format          string        `envconfig:"MAGAZINES_PAGE_FORMAT" default:"webp"`
	PageConcurrency int           `envconfig:"MAGAZINES_PAGE_CONCURRENCY" default:"4"`
	RunTimeout      time.Duration `envconfig:"MAGAZINES_RUN_TIMEOUT" default:"30m"`
	ScratchDir      string        `envconfig:"MAGAZINES_SCRATCH_DIR"`
	MaxUploadMB     int           `envconfig:"MAGAZINES_MAX_UPLOAD_MB" default:"90"`
}

// LockTTL is how long an ingestion lock outlives the run it guards.
func (p PipelineConfig) LockTTL() time.Duration {
	return p.RunTimeout + LockTTLSlack
}

// MaxUploadBytes returns the multipart upload ceiling in bytes.
func (p PipelineConfig) MaxUploadBytes() int64 {
	if p.MaxUploadMB <= 0 {
		return 90 << 20
	}
	return int64(p.MaxUploadMB) << 20
}

type PubSubConfig struct {
	MagazineTopic string `envconfig:"MAGAZINES_PUBSUB_MAGAZINE_TOPIC"`
}

type CronConfig struct {
	Interval   time.Duration `envconfig:"MAGAZINES_CRON_INTERVAL" default:"10m"`
	StaleAfter time.Duration `envconfig:"MAGAZINES_CRON_STALE_AFTER" default:"1h"`
	JobTimeout time.Duration `envconfig:"MAGAZINES_CRON_JOB_TIMEOUT" default:"5m"`
}

// validate keeps the stale reaper and scratch sweeper away from runs that may
// still be live.
func (c CronConfig) validate(p PipelineConfig) error {
	if p.RunTimeout <= 0 {
		return fmt.Errorf("%s must be positive", EnvRunTimeout)
	}
	if c.StaleAfter <= p.LockTTL() {
		return fmt.Errorf("%s (%s) must exceed %s plus %s of lock slack (%s)",
			EnvCronStaleAfter, c.StaleAfter, EnvRunTimeout, LockTTLSlack, p.LockTTL())
	}
	return nil
}

func (db *DBConfig) ensureDSN(useSQLite bool) error {
	if useSQLite {
		if db.SQLitePath == "" {
			return fmt.Errorf("%s is required when sqlite is enabled", EnvSQLitePath)
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range splitDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
