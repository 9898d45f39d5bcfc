package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/EternisAI/vconnector/internal/api/http"
	"github.com/EternisAI/vconnector/internal/auth"
	"github.com/EternisAI/vconnector/internal/db"
	"github.com/EternisAI/vconnector/internal/vsphere"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log      LogConfig `mapstructure:"log"`
	Http     http.Config
	Grpc     GrpcConfig
	Database db.Config      `mapstructure:"database"`
	Auth     auth.Config    `mapstructure:"auth"`
	Vsphere  vsphere.Config `mapstructure:"vsphere"`
	Session  SessionConfig  `mapstructure:"session"`
	// EncryptionKey seals stored passwords; empty stores them in clear.
	EncryptionKey string `mapstructure:"encryption_key" json:"-"`
}

type GrpcConfig struct {
	Port int       `mapstructure:"port"`
	TLS  TLSConfig `mapstructure:"tls"`
	// StoreCheckInterval is how often the store health status is refreshed.
	StoreCheckInterval time.Duration `mapstructure:"store_check_interval"`
}

type TLSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	CAFile     string `mapstructure:"ca_file"`
	ClientAuth string `mapstructure:"client_auth"`
	// AutoCertDir, when set, generates missing cert/key/CA files there and
	// overrides the file paths above.
	AutoCertDir string   `mapstructure:"auto_cert_dir"`
	DomainNames []string `mapstructure:"domain_names"`
}

type SessionConfig struct {
	LockDir string        `mapstructure:"lock_dir"`
	Timeout time.Duration `mapstructure:"timeout"`
}

var config Config

func InitConfig() {
	var err error

	_ = godotenv.Load()

	viper.SetConfigName("application")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./cmd/vconnector-server")
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.BindEnv("auth.jwt_secret", "VCONNECTOR_JWT_SECRET")
	_ = viper.BindEnv("encryption_key", "VCONNECTOR_ENCRYPTION_KEY")

	if err := viper.ReadInConfig(); err != nil {
		panic(err)
	}

	err = viper.Unmarshal(&config)
	if err != nil {
		panic(err)
	}

	// Initialize logger with configured log level
	initLogger(config.Log)

	// Pretty print config as JSON (only at DEBUG level)
	if strings.ToUpper(config.Log.Level) == LOG_LEVEL_DEBUG {
		redacted := config
		redacted.Auth.JWTSecret = ""
		configJSON, err := json.MarshalIndent(redacted, "", "  ")
		if err == nil {
			fmt.Println("Config loaded:")
			fmt.Println(string(configJSON))
		}
	}
}
