package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// fileKeys maps config file keys to the environment variable that overrides
// them and the field they set.
var fileKeys = []struct {
	key string
	env string
	set func(*Config, *viper.Viper, string)
}{
	{"root", "LECTERN_ROOT", func(c *Config, v *viper.Viper, k string) { c.Root = v.GetString(k) }},
	{"backend", "LECTERN_BACKEND", func(c *Config, v *viper.Viper, k string) { c.Backend = v.GetString(k) }},
	{"sqlite_path", "LECTERN_SQLITE_PATH", func(c *Config, v *viper.Viper, k string) { c.SQLitePath = v.GetString(k) }},
	{"default_author", "LECTERN_DEFAULT_AUTHOR", func(c *Config, v *viper.Viper, k string) { c.DefaultAuthor = v.GetString(k) }},
	{"default_device", "LECTERN_DEFAULT_DEVICE", func(c *Config, v *viper.Viper, k string) { c.DefaultDevice = v.GetString(k) }},
	{"repair_on_read", "LECTERN_REPAIR_ON_READ", func(c *Config, v *viper.Viper, k string) { c.RepairOnRead = v.GetBool(k) }},
	{"log_level", "LECTERN_LOG_LEVEL", func(c *Config, v *viper.Viper, k string) { c.LogLevel = v.GetString(k) }},
}

// LoadFile parses the environment, then applies settings from the config
// file at path (TOML, YAML or JSON by extension). Environment variables take
// precedence over the file. The result is not validated so callers can apply
// flag overrides first.
func LoadFile(path string) (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}
	for _, fk := range fileKeys {
		if _, ok := os.LookupEnv(fk.env); ok || !v.IsSet(fk.key) {
			continue
		}
		fk.set(&cfg, v, fk.key)
	}
	return cfg, nil
}
