package internal

import (
	"fmt"
	"strings"
	"time"
)

type Config struct {
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	Host                 string        `env:"HOST,default=0.0.0.0"`
	Port                 int           `env:"PORT,required=true"`
	GrpcPort             int           `env:"GRPC_PORT,required=true"`
	DebugPort            int           `env:"DEBUG_PORT"`
	WsPath               string        `env:"WS_PATH,default=/ws"`
	BadgerFilepath       string        `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath        string        `env:"BLUGE_FILEPATH,required=true"`
	StoreTimeout         time.Duration `env:"STORE_TIMEOUT,default=5s"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	IndexBufferSize      int           `env:"INDEX_BUFFER_SIZE,default=1024"`
	HistoryLimit         int           `env:"HISTORY_LIMIT,default=50"`
	SearchLimit          int           `env:"SEARCH_LIMIT,default=20"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=1s"`
	ReportInterval       time.Duration `env:"REPORT_INTERVAL,default=1m"`
	MaxMessageSize       int64         `env:"MAX_MESSAGE_SIZE,default=8192"`
	RateLimitBurst       int           `env:"RATE_LIMIT_BURST,default=20"`
	RateLimitWindow      time.Duration `env:"RATE_LIMIT_WINDOW,default=1s"`
	AllowedOrigins       string        `env:"ALLOWED_ORIGINS"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`
}

// Validate rejects sizes and intervals the relay cannot run with.
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value int64
	}{
		{"HISTORY_LIMIT", int64(c.HistoryLimit)},
		{"SEARCH_LIMIT", int64(c.SearchLimit)},
		{"CONNECTION_BUFFER_SIZE", int64(c.ConnectionBufferSize)},
		{"MAX_MESSAGE_SIZE", c.MaxMessageSize},
		{"STORE_TIMEOUT", int64(c.StoreTimeout)},
		{"REPORT_INTERVAL", int64(c.ReportInterval)},
		{"SHUTDOWN_TIMEOUT", int64(c.ShutdownTimeout)},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%s must be positive, got %d", p.name, p.value)
		}
	}
	return nil
}

// Origins splits ALLOWED_ORIGINS on commas. An empty list allows every origin.
func (c Config) Origins() []string {
	var origins []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
