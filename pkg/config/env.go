package config

import "time"

// EnvPrefix is handed to envconfig; every field carries an explicit tag so the
// prefix only matters for untagged fields.
const EnvPrefix = "MAGAZINES"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

// LockTTLSlack is added to the run timeout to size ingestion locks.
const LockTTLSlack = 5 * time.Minute

const (
	StorageProviderGCS = "gcs"
	StorageProviderS3  = "s3"
)

const (
	EnvAppEnv               = "MAGAZINES_APP_ENV"
	EnvPort                 = "MAGAZINES_APP_PORT"
	EnvDBDSN                = "MAGAZINES_DB_DSN"
	EnvDBHost               = "MAGAZINES_DB_HOST"
	EnvDBUser               = "MAGAZINES_DB_USER"
	EnvDBName               = "MAGAZINES_DB_NAME"
	EnvSQLitePath           = "MAGAZINES_SQLITE_PATH"
	EnvUseSQLite            = "MAGAZINES_USE_SQLITE"
	EnvRedisURL             = "MAGAZINES_REDIS_URL"
	EnvStorageProvider      = "MAGAZINES_STORAGE_PROVIDER"
	EnvStorageUploadTimeout = "MAGAZINES_STORAGE_UPLOAD_TIMEOUT"
	EnvGCSBucket            = "MAGAZINES_GCS_BUCKET_NAME"
	EnvS3Bucket             = "MAGAZINES_S3_BUCKET"
	EnvS3Region             = "MAGAZINES_S3_REGION"
	EnvRenderDPI            = "MAGAZINES_RENDER_DPI"
	EnvPageConcurrency      = "MAGAZINES_PAGE_CONCURRENCY"
	EnvRunTimeout           = "MAGAZINES_RUN_TIMEOUT"
	EnvCronStaleAfter       = "MAGAZINES_CRON_STALE_AFTER"
)

var splitDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
