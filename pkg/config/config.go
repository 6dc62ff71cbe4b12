package config

import (
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/zurb/foundation-apps/build-tools/pkg/devserver"
)

// DefaultFile is loaded from the working directory if it exists.
const DefaultFile = "buildtools.toml"

// Config describes all configuration options
type Config struct {
	Log struct {
		Level string `default:"info" toml:"level" usage:"Minimum level of logged messages (debug, info, warn or error)"`
		File  string `toml:"file" usage:"Write the log to this file instead of stderr"`
		JSON  bool   `default:"false" toml:"json" usage:"Output JSONND instead of pretty console messages"`
	} `toml:"log"`
	Script string `default:"tasks.star" toml:"script" usage:"Name of the task script"`
	Cache  string `default:".tasks.cache" toml:"cache" usage:"Location of the parsed task cache, relative to the project root"`
	Jobs   int    `default:"1" toml:"jobs" usage:"Maximum number of tasks that run at the same time"`
	HTTP   struct {
		Address  string   `default:"127.0.0.1:8080" toml:"address" usage:"Address the dev server listens on"`
		Root     string   `default:"build" toml:"root" usage:"Directory served by the dev server"`
		Rewrites []string `toml:"rewrites" usage:"Rewrite rules for the dev server"`
	} `toml:"http"`
	Watch struct {
		Debounce time.Duration `default:"300ms" toml:"debounce" usage:"Time to wait for further changes before rebuilding"`
	} `toml:"watch"`
}

var logLevels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object. Flags are
// handled by the CLI so only files and the environment are read.
func Loader(files ...string) (*Config, *aconfig.Loader) {
	if len(files) == 0 {
		files = []string{DefaultFile}
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		EnvPrefix: "FOUNDATION",
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads the configuration from files and the environment and validates it.
func Load(files ...string) (*Config, error) {
	cfg, loader := Loader(files...)
	err := loader.Load()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load configuration")
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	_, ok := logLevels[cfg.Log.Level]
	if !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	if cfg.Jobs < 1 {
		return eris.Errorf(`Invalid value for jobs: %d (must be at least 1)`, cfg.Jobs)
	}

	if cfg.Watch.Debounce < 0 {
		return eris.Errorf(`Invalid value for watch.debounce: %s`, cfg.Watch.Debounce)
	}

	_, err := devserver.ParseRules(cfg.HTTP.Rewrites)
	if err != nil {
		return eris.Wrap(err, `Invalid value for http.rewrites`)
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}
