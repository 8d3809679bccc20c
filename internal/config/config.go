// Package config loads client settings from defaults, a YAML file and
// MEMEX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/systemshift/memex-object/internal/dag"
	"github.com/systemshift/memex-object/internal/kubo"
)

// Keys understood by Load.
const (
	KeyAPIURL       = "api.url"
	KeyAPITimeout   = "api.timeout"
	KeyCacheDir     = "cache.dir"
	KeyDataEncoding = "object.data_encoding"
	KeyVerifyPut    = "object.verify_put"
	KeyLogLevel     = "log.level"
)

// Settings is the resolved client configuration.
type Settings struct {
	APIURL       string
	APITimeout   time.Duration
	CacheDir     string
	DataEncoding dag.DataEncoding
	VerifyPut    bool
	LogLevel     string
}

// Load returns a viper instance with defaults set, the environment bound and
// the config file read. cfgFile overrides the search path. A missing config
// file is not an error; a malformed one is.
func Load(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".memex"))
		}
		v.SetConfigType("yaml")
		v.SetConfigName("object")
	}

	v.SetEnvPrefix("MEMEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyAPIURL, kubo.DefaultAPIURL)
	v.SetDefault(KeyAPITimeout, 30*time.Second)
	v.SetDefault(KeyCacheDir, "")
	v.SetDefault(KeyDataEncoding, dag.DataEncodingText.String())
	v.SetDefault(KeyVerifyPut, false)
	v.SetDefault(KeyLogLevel, "warn")
}

// Resolve reads Settings out of v.
func Resolve(v *viper.Viper) (*Settings, error) {
	enc, err := dag.ParseDataEncoding(v.GetString(KeyDataEncoding))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", KeyDataEncoding, err)
	}
	timeout := v.GetDuration(KeyAPITimeout)
	if timeout < 0 {
		return nil, fmt.Errorf("%s: negative timeout %s", KeyAPITimeout, timeout)
	}
	return &Settings{
		APIURL:       v.GetString(KeyAPIURL),
		APITimeout:   timeout,
		CacheDir:     v.GetString(KeyCacheDir),
		DataEncoding: enc,
		VerifyPut:    v.GetBool(KeyVerifyPut),
		LogLevel:     v.GetString(KeyLogLevel),
	}, nil
}
