// Package config loads server settings from an optional YAML file and CARDSHOP_* env vars
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type server struct {
	Port  int  `mapstructure:"port"`
	Debug bool `mapstructure:"debug"`
}

type database struct {
	Path string `mapstructure:"path"`
}

type catalog struct {
	Path string `mapstructure:"path"`
}

type directory struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	CacheSize int           `mapstructure:"cache_size"`
}

type sync struct {
	Debounce time.Duration `mapstructure:"debounce"`
	Topic    string        `mapstructure:"topic"`
}

type cors struct {
	Origins []string `mapstructure:"origins"`
}

// Config is the configuration struct
type Config struct {
	Server    server    `mapstructure:"server"`
	DB        database  `mapstructure:"db"`
	Catalog   catalog   `mapstructure:"catalog"`
	Directory directory `mapstructure:"directory"`
	Sync      sync      `mapstructure:"sync"`
	CORS      cors      `mapstructure:"cors"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.debug", false)
	v.SetDefault("db.path", "./cardshop.db")
	v.SetDefault("catalog.path", "")
	v.SetDefault("directory.base_url", "https://db.ygoprodeck.com/api/v7")
	v.SetDefault("directory.timeout", 20*time.Second)
	v.SetDefault("directory.cache_size", 512)
	v.SetDefault("sync.debounce", 500*time.Millisecond)
	v.SetDefault("sync.topic", "card-modifications")
	v.SetDefault("cors.origins", []string{"http://localhost:5173", "http://localhost:3000"})
}

func (c *Config) verify() error {
	switch {
	case c.Server.Port <= 0 || c.Server.Port > 65535:
		return fmt.Errorf("config: invalid server port %d", c.Server.Port)
	case c.DB.Path == "":
		return fmt.Errorf("config: db path must be set")
	case c.Directory.Timeout <= 0:
		return fmt.Errorf("config: directory timeout must be positive")
	case c.Directory.CacheSize <= 0:
		return fmt.Errorf("config: directory cache size must be positive")
	case c.Sync.Debounce <= 0:
		return fmt.Errorf("config: sync debounce must be positive")
	case c.Sync.Topic == "":
		return fmt.Errorf("config: sync topic must be set")
	}
	c.Directory.BaseURL = strings.TrimRight(c.Directory.BaseURL, "/")
	return nil
}

// Load reads the config file at path (optional) and overlays CARDSHOP_* env vars,
// e.g. CARDSHOP_DB_PATH or CARDSHOP_SYNC_DEBOUNCE=1s
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("cardshop")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %v", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal: %v", err)
	}
	if err := c.verify(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Addr is the listen address of the HTTP server
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
