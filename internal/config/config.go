package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix                  = "PROSEVAULT"
	defaultDatabasePath        = "prosevault.db"
	defaultBackupDir           = "backups"
	defaultLogLevel            = "info"
	defaultMaxBackupsToKeep    = 10
	defaultIncrementalFallback = 24 * time.Hour
	defaultSchedule            = "0 3 * * *"
)

// AppConfig captures runtime configuration for the store and its backup
// tooling.
type AppConfig struct {
	DatabasePath        string
	BackupDir           string
	Compress            bool
	IncludeProse        bool
	EngineSnapshot      bool
	MaxBackupsToKeep    int
	IncrementalFallback time.Duration
	Schedule            string
	LogLevel            string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("backup.dir", defaultBackupDir)
	configViper.SetDefault("backup.compress", false)
	configViper.SetDefault("backup.include_prose", true)
	configViper.SetDefault("backup.engine_snapshot", false)
	configViper.SetDefault("backup.max_to_keep", defaultMaxBackupsToKeep)
	configViper.SetDefault("backup.incremental_fallback", defaultIncrementalFallback)
	configViper.SetDefault("backup.schedule", defaultSchedule)
	configViper.SetDefault("log.level", defaultLogLevel)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabasePath:        configViper.GetString("database.path"),
		BackupDir:           configViper.GetString("backup.dir"),
		Compress:            configViper.GetBool("backup.compress"),
		IncludeProse:        configViper.GetBool("backup.include_prose"),
		EngineSnapshot:      configViper.GetBool("backup.engine_snapshot"),
		MaxBackupsToKeep:    configViper.GetInt("backup.max_to_keep"),
		IncrementalFallback: configViper.GetDuration("backup.incremental_fallback"),
		Schedule:            configViper.GetString("backup.schedule"),
		LogLevel:            configViper.GetString("log.level"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if strings.TrimSpace(c.BackupDir) == "" {
		return fmt.Errorf("backup.dir is required")
	}
	if c.MaxBackupsToKeep < 0 {
		return fmt.Errorf("backup.max_to_keep cannot be negative")
	}
	if c.IncrementalFallback <= 0 {
		return fmt.Errorf("backup.incremental_fallback must be positive")
	}
	return nil
}
