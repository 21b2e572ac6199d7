package config

import (
	"testing"
	"time"

	"masterbook/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		MongoURI:                DefaultMongoURI,
		MongoDatabaseName:       DefaultMongoDatabaseName,
		MongoConnTimeout:        DefaultMongoConnTimeout,
		Port:                    DefaultPort,
		RateLimitRequests:       DefaultRateLimitRequests,
		RateLimitWindow:         DefaultRateLimitWindow,
		RateLimitBurst:          DefaultRateLimitBurst,
		RequestTimeout:          DefaultRequestTimeout,
		IdempotencyTTL:          DefaultIdempotencyTTL,
		MaxRequestSize:          DefaultMaxRequestSize,
		ReadTimeout:             DefaultReadTimeout,
		WriteTimeout:            DefaultWriteTimeout,
		IdleTimeout:             DefaultIdleTimeout,
		ShutdownTimeout:         DefaultShutdownTimeout,
		SlotGranularityMin:      DefaultSlotGranularityMin,
		LeadTime:                DefaultLeadTime,
		DefaultBufferMin:        DefaultBufferMinutes,
		DefaultTimeZone:         DefaultTimeZone,
		PersistenceRetries:      DefaultPersistenceRetries,
		PersistenceRetryBackoff: DefaultPersistenceRetryBackoff,
		ProviderLockTTL:         DefaultProviderLockTTL,
		ProviderLockWait:        DefaultProviderLockWait,
		CacheTTL:                DefaultCacheTTL,
		Log:                     logger.New(logger.Config{Level: "error", Service: "test"}),
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Port = "99999" }, wantErr: "Port must be between"},
		{name: "bad mongo scheme", mutate: func(c *Config) { c.MongoURI = "postgres://localhost" }, wantErr: "MongoURI must start"},
		{name: "zero granularity", mutate: func(c *Config) { c.SlotGranularityMin = 0 }, wantErr: "SlotGranularityMin"},
		{name: "negative lead time", mutate: func(c *Config) { c.LeadTime = -time.Minute }, wantErr: "LeadTime cannot be negative"},
		{name: "unknown zone", mutate: func(c *Config) { c.DefaultTimeZone = "Mars/Olympus" }, wantErr: "DefaultTimeZone"},
		{name: "too many retries", mutate: func(c *Config) { c.PersistenceRetries = 50 }, wantErr: "PersistenceRetries"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRedactMongoURI(t *testing.T) {
	assert.Equal(t, "mongodb://***:***@db:27017", redactMongoURI("mongodb://admin:s3cret@db:27017"))
	assert.Equal(t, "mongodb://localhost:27017", redactMongoURI("mongodb://localhost:27017"))
}

func TestGetEnv(t *testing.T) {
	t.Setenv(EnvSlotGranularityMin, "10")
	t.Setenv(EnvLeadTime, "45m")
	t.Setenv(EnvPersistenceRetries, "not-a-number")

	assert.Equal(t, 10, getEnvNum(EnvSlotGranularityMin, DefaultSlotGranularityMin))
	assert.Equal(t, 45*time.Minute, getEnvDuration(EnvLeadTime, DefaultLeadTime))
	assert.Equal(t, DefaultPersistenceRetries, getEnvNum(EnvPersistenceRetries, DefaultPersistenceRetries))
}

func TestNormalizePagination(t *testing.T) {
	assert.Equal(t, 10, NormalizePaginationLimit(0))
	assert.Equal(t, DefaultPaginationLimit, NormalizePaginationLimit(10_000))
	assert.Equal(t, int64(0), NormalizeOffset(-5))
}
