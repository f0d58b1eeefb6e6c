package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// AppConfig holds the application-level configuration
type AppConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port" validate:"gte=1,lte=65535"`
	PeerHost string `mapstructure:"peer_host" validate:"required"`

	StoragePath    string `mapstructure:"storage_path" validate:"required"`
	CompressAtRest bool   `mapstructure:"compress_at_rest"`
	EncryptAtRest  bool   `mapstructure:"encrypt_at_rest"`
	MetadataPath   string `mapstructure:"metadata_path"`

	CodeMin         int `mapstructure:"code_min" validate:"gte=1024,ltfield=CodeMax"`
	CodeMax         int `mapstructure:"code_max" validate:"lte=65535"`
	MaxCodeAttempts int `mapstructure:"max_code_attempts" validate:"gte=1"`

	AcceptTimeout  time.Duration `mapstructure:"accept_timeout" validate:"gte=0"`
	DialTimeout    time.Duration `mapstructure:"dial_timeout" validate:"gt=0"`
	ChunkSize      int           `mapstructure:"chunk_size" validate:"gte=512"`
	MaxUploadBytes int64         `mapstructure:"max_upload_bytes" validate:"gt=0"`
	MaxConnections int           `mapstructure:"max_connections" validate:"gte=0"`
	SpoolDownloads bool          `mapstructure:"spool_downloads"`

	Debug bool `mapstructure:"debug"`
}

var Config *AppConfig

// Addr is the listen address of the HTTP gateway.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("host", "")
	v.SetDefault("port", 8080)
	v.SetDefault("peer_host", "localhost")
	v.SetDefault("storage_path", filepath.Join(os.TempDir(), "peerlink-uploads"))
	v.SetDefault("compress_at_rest", false)
	v.SetDefault("encrypt_at_rest", false)
	v.SetDefault("metadata_path", "")
	v.SetDefault("code_min", 49152)
	v.SetDefault("code_max", 65535)
	v.SetDefault("max_code_attempts", 1000)
	v.SetDefault("accept_timeout", 30*time.Minute)
	v.SetDefault("dial_timeout", 10*time.Second)
	v.SetDefault("chunk_size", 4096)
	v.SetDefault("max_upload_bytes", int64(512<<20))
	v.SetDefault("max_connections", 0)
	v.SetDefault("spool_downloads", false)
	v.SetDefault("debug", false)
}

// LoadConfig reads config.yaml from path, overlays PEERLINK_* environment
// variables and validates the result. A missing file is not an error.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.SetEnvPrefix("peerlink")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		log.Printf("⚠️ Could not read config file, using defaults: %v", err)
	}

	var appConfig AppConfig
	if err := v.Unmarshal(&appConfig); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := validator.New().Struct(&appConfig); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	Config = &appConfig
	return &appConfig, nil
}
