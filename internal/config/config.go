package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

// StorageConfig selects and configures the blob store driver.
type StorageConfig struct {
	Driver        string      `mapstructure:"driver"` // "s3", "minio" or "memory"
	PublicBaseURL string      `mapstructure:"public_base_url"`
	S3            S3Config    `mapstructure:"s3"`
	Minio         MinioConfig `mapstructure:"minio"`
}

type S3Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

type MinioConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

// UploadConfig bounds a single upload batch.
type UploadConfig struct {
	BatchTimeout    time.Duration `mapstructure:"batch_timeout"`
	RollbackTimeout time.Duration `mapstructure:"rollback_timeout"`
	MaxFileSize     int64         `mapstructure:"max_file_size"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
}

// RedisConfig is optional. An empty address keeps the sweeper lock in-process.
type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SweeperConfig struct {
	Interval  time.Duration `mapstructure:"interval"`
	BatchSize int           `mapstructure:"batch_size"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "text"
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// storage.s3.bucket_name -> STORAGE_S3_BUCKET_NAME
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	setDefaults(v)

	err = v.ReadInConfig()
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		// Env vars and defaults are enough to run.
		err = nil
	} else if err != nil {
		return
	}

	if err = v.Unmarshal(&config); err != nil {
		return
	}

	if err = config.validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.name", "listings")

	v.SetDefault("storage.driver", "s3")
	v.SetDefault("storage.public_base_url", "")
	v.SetDefault("storage.s3.endpoint", "")
	v.SetDefault("storage.s3.region", "us-east-1")
	v.SetDefault("storage.s3.access_key_id", "")
	v.SetDefault("storage.s3.secret_access_key", "")
	v.SetDefault("storage.s3.bucket_name", "")
	v.SetDefault("storage.s3.use_ssl", true)
	v.SetDefault("storage.minio.endpoint", "")
	v.SetDefault("storage.minio.access_key", "")
	v.SetDefault("storage.minio.secret_key", "")
	v.SetDefault("storage.minio.bucket_name", "")
	v.SetDefault("storage.minio.use_ssl", false)

	v.SetDefault("upload.batch_timeout", "30s")
	v.SetDefault("upload.rollback_timeout", "15s")
	v.SetDefault("upload.max_file_size", 7*1024*1024)
	v.SetDefault("upload.max_concurrency", 8)

	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("sweeper.interval", "5m")
	v.SetDefault("sweeper.batch_size", 50)

	v.SetDefault("jwt.secret", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

func (c Config) validate() error {
	switch c.Storage.Driver {
	case "s3":
		if c.Storage.S3.BucketName == "" {
			return errors.New("storage.s3.bucket_name is required for the s3 driver")
		}
	case "minio":
		if c.Storage.Minio.Endpoint == "" || c.Storage.Minio.BucketName == "" {
			return errors.New("storage.minio.endpoint and storage.minio.bucket_name are required for the minio driver")
		}
	case "memory":
	default:
		return errors.New("storage.driver must be one of s3, minio, memory")
	}
	if c.Storage.PublicBaseURL == "" {
		return errors.New("storage.public_base_url is required")
	}
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required")
	}
	if c.Upload.BatchTimeout <= 0 {
		return errors.New("upload.batch_timeout must be positive")
	}
	return nil
}
