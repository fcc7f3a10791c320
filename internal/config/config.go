// internal/config/config.go
package config

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/andresuchdata/demand-recovery/internal/recovery"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Database DatabaseConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Log      LogConfig
	Recovery RecoveryConfig
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// DSN returns the connection string, preferring DATABASE_URL when set.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

type CacheConfig struct {
	Enabled           bool
	RedisURL          string
	RedisHost         string
	RedisPort         string
	RedisPassword     string
	RedisDB           int
	ProfileTTLSeconds int
}

// StorageConfig points at the S3-compatible bucket holding run reports.
type StorageConfig struct {
	Enabled   bool
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	Prefix    string
}

type LogConfig struct {
	Level string
	File  string
}

type RecoveryConfig struct {
	ZeroThreshold    float64
	Tolerance        float64
	MaxDeficitPeriod int
	DefaultLagDays   float64
	Seed             uint64
	Workers          int
	MinTrainingRows  int

	PoissonAlpha   float64
	PoissonMaxIter int

	BoostEstimators    int
	BoostLearningRate  float64
	BoostNumLeaves     int
	BoostMinDataInLeaf int

	HistoryDays         int
	UnmatchedPairPolicy string
	ActiveWindowDays    int
	MinTotalSales       int
}

// EngineConfig maps the environment settings onto the engine configuration.
func (c RecoveryConfig) EngineConfig() recovery.Config {
	cfg := recovery.DefaultConfig()
	cfg.ZeroThreshold = c.ZeroThreshold
	cfg.Tolerance = c.Tolerance
	cfg.MaxDeficitPeriod = c.MaxDeficitPeriod
	cfg.DefaultLagDays = c.DefaultLagDays
	cfg.Seed = c.Seed
	cfg.Workers = c.Workers
	cfg.MinTrainingRows = c.MinTrainingRows
	cfg.PoissonAlpha = c.PoissonAlpha
	cfg.PoissonMaxIter = c.PoissonMaxIter
	cfg.Boosting.Estimators = c.BoostEstimators
	cfg.Boosting.LearningRate = c.BoostLearningRate
	cfg.Boosting.NumLeaves = c.BoostNumLeaves
	cfg.Boosting.MinDataInLeaf = c.BoostMinDataInLeaf
	cfg.UnmatchedPairs = recovery.UnmatchedPairPolicy(c.UnmatchedPairPolicy)
	return cfg
}

var (
	once     sync.Once
	instance *Config
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "demand_recovery")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 10)

	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_PROFILE_TTL_SECONDS", 3600)

	v.SetDefault("STORAGE_ENABLED", false)
	v.SetDefault("STORAGE_ENDPOINT", "localhost:9000")
	v.SetDefault("STORAGE_ACCESS_KEY", "")
	v.SetDefault("STORAGE_SECRET_KEY", "")
	v.SetDefault("STORAGE_BUCKET", "recovery-reports")
	v.SetDefault("STORAGE_REGION", "")
	v.SetDefault("STORAGE_USE_SSL", false)
	v.SetDefault("STORAGE_PREFIX", "runs")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FILE", "")

	v.SetDefault("RECOVERY_POISSON_ZERO_THRESHOLD", 0.95)
	v.SetDefault("RECOVERY_POISSON_TOLERANCE", 0.20)
	v.SetDefault("RECOVERY_MAX_DEFICIT_PERIOD", 14)
	v.SetDefault("RECOVERY_DEFAULT_LAG_DAYS", 2.0)
	v.SetDefault("RECOVERY_SEED", 42)
	v.SetDefault("RECOVERY_WORKERS", runtime.NumCPU())
	v.SetDefault("RECOVERY_MIN_TRAINING_ROWS", 1)
	v.SetDefault("RECOVERY_POISSON_ALPHA", 0.5)
	v.SetDefault("RECOVERY_POISSON_MAX_ITER", 100)
	v.SetDefault("RECOVERY_BOOST_ESTIMATORS", 100)
	v.SetDefault("RECOVERY_BOOST_LEARNING_RATE", 0.05)
	v.SetDefault("RECOVERY_BOOST_NUM_LEAVES", 31)
	v.SetDefault("RECOVERY_BOOST_MIN_DATA_IN_LEAF", 20)
	v.SetDefault("RECOVERY_HISTORY_DAYS", 30)
	v.SetDefault("RECOVERY_UNMATCHED_PAIR_POLICY", string(recovery.PolicyDrop))
	v.SetDefault("RECOVERY_ACTIVE_WINDOW_DAYS", 365)
	v.SetDefault("RECOVERY_MIN_TOTAL_SALES", 6)
}

// Load reads .env and the environment once and returns the shared config.
func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		v := viper.GetViper()
		setDefaults(v)
		v.AutomaticEnv()

		instance = fromViper(v)
	})

	return instance
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
			MaxConns: v.GetInt("DB_MAX_CONNS"),
		},
		Cache: CacheConfig{
			Enabled:           v.GetBool("CACHE_ENABLED"),
			RedisURL:          v.GetString("REDIS_URL"),
			RedisHost:         v.GetString("REDIS_HOST"),
			RedisPort:         v.GetString("REDIS_PORT"),
			RedisPassword:     v.GetString("REDIS_PASSWORD"),
			RedisDB:           v.GetInt("REDIS_DB"),
			ProfileTTLSeconds: v.GetInt("CACHE_PROFILE_TTL_SECONDS"),
		},
		Storage: StorageConfig{
			Enabled:   v.GetBool("STORAGE_ENABLED"),
			Endpoint:  v.GetString("STORAGE_ENDPOINT"),
			AccessKey: v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: v.GetString("STORAGE_SECRET_KEY"),
			Bucket:    v.GetString("STORAGE_BUCKET"),
			Region:    v.GetString("STORAGE_REGION"),
			UseSSL:    v.GetBool("STORAGE_USE_SSL"),
			Prefix:    v.GetString("STORAGE_PREFIX"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
			File:  v.GetString("LOG_FILE"),
		},
		Recovery: RecoveryConfig{
			ZeroThreshold:       v.GetFloat64("RECOVERY_POISSON_ZERO_THRESHOLD"),
			Tolerance:           v.GetFloat64("RECOVERY_POISSON_TOLERANCE"),
			MaxDeficitPeriod:    v.GetInt("RECOVERY_MAX_DEFICIT_PERIOD"),
			DefaultLagDays:      v.GetFloat64("RECOVERY_DEFAULT_LAG_DAYS"),
			Seed:                v.GetUint64("RECOVERY_SEED"),
			Workers:             v.GetInt("RECOVERY_WORKERS"),
			MinTrainingRows:     v.GetInt("RECOVERY_MIN_TRAINING_ROWS"),
			PoissonAlpha:        v.GetFloat64("RECOVERY_POISSON_ALPHA"),
			PoissonMaxIter:      v.GetInt("RECOVERY_POISSON_MAX_ITER"),
			BoostEstimators:     v.GetInt("RECOVERY_BOOST_ESTIMATORS"),
			BoostLearningRate:   v.GetFloat64("RECOVERY_BOOST_LEARNING_RATE"),
			BoostNumLeaves:      v.GetInt("RECOVERY_BOOST_NUM_LEAVES"),
			BoostMinDataInLeaf:  v.GetInt("RECOVERY_BOOST_MIN_DATA_IN_LEAF"),
			HistoryDays:         v.GetInt("RECOVERY_HISTORY_DAYS"),
			UnmatchedPairPolicy: v.GetString("RECOVERY_UNMATCHED_PAIR_POLICY"),
			ActiveWindowDays:    v.GetInt("RECOVERY_ACTIVE_WINDOW_DAYS"),
			MinTotalSales:       v.GetInt("RECOVERY_MIN_TOTAL_SALES"),
		},
	}
}
