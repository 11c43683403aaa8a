// Package config loads runtime settings from webditor.yaml, a .env file and
// WEBDITOR_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Backend BackendConfig `mapstructure:"backend"`
	Tileset TilesetConfig `mapstructure:"tileset"`
	Map     MapConfig     `mapstructure:"map"`
	Assets  AssetsConfig  `mapstructure:"assets"`
	SSH     SSHConfig     `mapstructure:"ssh"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Render  RenderConfig  `mapstructure:"render"`
	Cache   CacheConfig   `mapstructure:"cache"`
	Log     LogConfig     `mapstructure:"log"`
}

type BackendConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type TilesetConfig struct {
	Name string `mapstructure:"name"`
}

// MapConfig selects the document to edit. File wins over Name when both are set.
type MapConfig struct {
	Name string `mapstructure:"name"`
	File string `mapstructure:"file"`
}

// AssetsConfig points at a local asset tree. When Dir is empty assets are
// fetched from the backend.
type AssetsConfig struct {
	Dir   string `mapstructure:"dir"`
	Watch bool   `mapstructure:"watch"`
}

type SSHConfig struct {
	Addr    string `mapstructure:"addr"`
	HostKey string `mapstructure:"host_key"`
}

type HTTPConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type RenderConfig struct {
	FrameRate    int    `mapstructure:"frame_rate"`
	CellScale    int    `mapstructure:"cell_scale"`
	PaletteFile  string `mapstructure:"palette_file"`
	ImageVersion string `mapstructure:"image_version"`
}

type CacheConfig struct {
	MaxBytes int64 `mapstructure:"max_bytes"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.url", "http://localhost:8000")
	v.SetDefault("backend.timeout", 30*time.Second)
	v.SetDefault("tileset.name", "badlands")
	v.SetDefault("map.name", "")
	v.SetDefault("map.file", "")
	v.SetDefault("assets.dir", "")
	v.SetDefault("assets.watch", true)
	v.SetDefault("ssh.addr", ":2222")
	v.SetDefault("ssh.host_key", "host_key")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.cors_origins", []string{"*"})
	v.SetDefault("render.frame_rate", 60)
	v.SetDefault("render.cell_scale", 4)
	v.SetDefault("render.palette_file", "")
	v.SetDefault("render.image_version", "sd")
	v.SetDefault("cache.max_bytes", int64(256<<20))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 5)
}

// Load reads configuration. An explicit path must exist; otherwise
// webditor.yaml is searched in the working directory and $HOME/.webditor and
// may be absent.
func Load(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("WEBDITOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("webditor")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.webditor")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the renderer cannot work with.
func (c *Config) Validate() error {
	if c.Render.FrameRate <= 0 {
		return fmt.Errorf("render.frame_rate must be positive, got %d", c.Render.FrameRate)
	}
	if c.Render.CellScale <= 0 {
		return fmt.Errorf("render.cell_scale must be positive, got %d", c.Render.CellScale)
	}
	switch c.Render.ImageVersion {
	case "sd", "hd":
	default:
		return fmt.Errorf("render.image_version must be sd or hd, got %q", c.Render.ImageVersion)
	}
	if c.Assets.Dir == "" && c.Backend.URL == "" {
		return errors.New("either assets.dir or backend.url must be set")
	}
	return nil
}
