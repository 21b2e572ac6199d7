package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "masterbook"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = 1 * time.Minute
	DefaultRateLimitBurst    = 10

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 * 1024 * 1024 // 1MB

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100

	DefaultSlotGranularityMin = 15
	DefaultLeadTime           = 30 * time.Minute
	DefaultBufferMinutes      = 0
	DefaultTimeZone           = "UTC"

	DefaultPersistenceRetries      = 3
	DefaultPersistenceRetryBackoff = 50 * time.Millisecond
	DefaultProviderLockTTL         = 10 * time.Second
	DefaultProviderLockWait        = 3 * time.Second

	DefaultRedisDB  = 0
	DefaultCacheTTL = 5 * time.Minute
)
