package config

import (
	"fmt"
	"time"
)

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Remote    RemoteConfig    `mapstructure:"remote"`
	NPS       NPSConfig       `mapstructure:"nps"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=sqlite mysql postgres"`
	Path     string `mapstructure:"path" validate:"required_if=Driver sqlite"` // For SQLite
	Host     string `mapstructure:"host" validate:"required_unless=Driver sqlite"`
	Port     int    `mapstructure:"port" validate:"min=0,max=65535"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name" validate:"required_unless=Driver sqlite"`
	SSLMode  string `mapstructure:"sslmode"`
	Debug    bool   `mapstructure:"debug"`
}

// RemoteConfig carries the SurveyMonkey credentials. Only the remote client
// receives it.
type RemoteConfig struct {
	BaseURL            string        `mapstructure:"base_url" validate:"required,url"`
	Token              string        `mapstructure:"token"`
	APIKey             string        `mapstructure:"api_key"`
	Timeout            time.Duration `mapstructure:"timeout" validate:"min=0"`
	MatchPolicy        string        `mapstructure:"match_policy" validate:"oneof=first exact unique"`
	ResponsesBatchSize int           `mapstructure:"responses_batch_size" validate:"min=1"`
}

// NPSConfig drives which remote questions are flagged as Net Promoter Score
// questions during detail sync.
type NPSConfig struct {
	HeadingKeywords []string `mapstructure:"heading_keywords"`
	MinWeight       int      `mapstructure:"min_weight"`
	MaxWeight       int      `mapstructure:"max_weight" validate:"gtefield=MinWeight"`
}

type SchedulerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Interval string `mapstructure:"interval" validate:"required_if=Enabled true"`
	// Surveys synced in parallel by one scheduled run.
	Workers int `mapstructure:"workers" validate:"min=1"`
}

type ServerConfig struct {
	Port         int           `mapstructure:"port" validate:"min=1,max=65535"`
	Host         string        `mapstructure:"host"`
	AuthToken    string        `mapstructure:"auth_token"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	CorsOrigins  []string      `mapstructure:"cors_origins"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}
