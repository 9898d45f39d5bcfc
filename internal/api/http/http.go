package http

import "github.com/EternisAI/vconnector/internal/api/http/handler"

type Config struct {
	Port        uint                `mapstructure:"port"`
	CORSOrigins []string            `mapstructure:"cors_origins"`
	Cache       handler.CacheConfig `mapstructure:"cache"`
}
