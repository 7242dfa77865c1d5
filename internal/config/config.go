// Package config loads the autosig server configuration.
//
// Configuration values are resolved in 3 steps:
//  1. Default values
//  2. YAML configuration file, keys that the file sets replace the defaults
//  3. AUTOSIG_* environment variables, eg AUTOSIG_STORE_DSN for store.dsn
//
// The resulting Config is validated before use.
package config

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"code.autosig.org/golang/pkg/digest"
	"code.autosig.org/golang/pkg/keypair"
	"code.autosig.org/golang/pkg/wxsession"
)

// EnvPrefix prefixes the environment variables that override configuration keys.
const EnvPrefix = "AUTOSIG_"

// Supported store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverBolt     = "bolt"
)

var drivers = []string{DriverMemory, DriverPostgres, DriverSQLite, DriverBolt}

// Config holds the autosig server configuration.
type Config struct {
	// Listen is the server listening address, eg ":8080".
	Listen string `yaml:"listen"`

	// TraceIdHeader names the request header that carries trace ids.
	// Requests without it are assigned a random trace id.
	TraceIdHeader string `yaml:"trace_id_header"`

	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Keys     KeysConfig     `yaml:"keys"`
	Digest   DigestConfig   `yaml:"digest"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	WeChat   WeChatConfig   `yaml:"wechat"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig selects the credential store.
// Dsn is a postgres connection string, or a file path for the sqlite & bolt drivers.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	Dsn    string `yaml:"dsn"`
	Schema string `yaml:"schema"`
}

type KeysConfig struct {
	Bits int `yaml:"bits"`
}

type DigestConfig struct {
	Algorithm string `yaml:"algorithm"`
}

type TimeoutsConfig struct {
	Store    time.Duration `yaml:"store"`
	Exchange time.Duration `yaml:"exchange"`
	Shutdown time.Duration `yaml:"shutdown"`
}

// WeChatConfig configures the mini program login exchange.
// The exchange is disabled when AppId is empty.
type WeChatConfig struct {
	AppId           string        `yaml:"app_id"`
	Secret          string        `yaml:"secret"`
	Endpoint        string        `yaml:"endpoint"`
	SessionLifetime time.Duration `yaml:"session_lifetime"`
}

// Enabled returns true if the WeChat login exchange is configured.
func (self WeChatConfig) Enabled() bool {
	return "" != self.AppId
}

// LogValue implements slog.LogValuer, the Secret is not logged.
func (self WeChatConfig) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("app_id", self.AppId),
		slog.String("endpoint", self.Endpoint),
		slog.Duration("session_lifetime", self.SessionLifetime),
	)
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Default returns the default Config.
func Default() Config {
	return Config{
		Listen: ":8080",
		Log:    LogConfig{Level: "info", Format: "text"},
		Store:  StoreConfig{Driver: DriverMemory, Schema: "autosig"},
		Keys:   KeysConfig{Bits: keypair.DefaultBits},
		Digest: DigestConfig{Algorithm: digest.DefaultAlgorithm},
		Timeouts: TimeoutsConfig{
			Store:    3 * time.Second,
			Exchange: 5 * time.Second,
			Shutdown: 10 * time.Second,
		},
		WeChat: WeChatConfig{
			Endpoint:        wxsession.DefaultEndpoint,
			SessionLifetime: wxsession.DefaultLifetime,
		},
		Metrics: MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// Load returns the validated Config resulting from the defaults, the YAML file at path and
// the environment. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if "" != path {
		srzcfg, err := os.ReadFile(path)
		if nil != err {
			return cfg, wrapError(err, "failed reading configuration file")
		}
		err = cfg.Merge(srzcfg)
		if nil != err {
			return cfg, wrapError(err, "failed loading %s", path)
		}
	}
	err := cfg.ApplyEnv(os.LookupEnv)
	if nil != err {
		return cfg, err
	}
	err = cfg.Validate()
	if nil != err {
		return cfg, err
	}

	return cfg, nil
}

// Merge overwrites the Config values with the keys present in the srzcfg YAML document.
// Unknown keys are rejected.
func (self *Config) Merge(srzcfg []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(srzcfg))
	dec.KnownFields(true)
	err := dec.Decode(self)
	if nil != err && !errors.Is(err, io.EOF) {
		return wrapFlagError(ErrValidation, err, "invalid yaml configuration")
	}
	return nil
}

// LookupFunc has the signature of os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overwrites the Config values with the AUTOSIG_* variables that lookup finds.
func (self *Config) ApplyEnv(lookup LookupFunc) error {
	vars := []struct {
		name string
		set  func(string) error
	}{
		{"LISTEN", setString(&self.Listen)},
		{"TRACE_ID_HEADER", setString(&self.TraceIdHeader)},
		{"LOG_LEVEL", setString(&self.Log.Level)},
		{"LOG_FORMAT", setString(&self.Log.Format)},
		{"STORE_DRIVER", setString(&self.Store.Driver)},
		{"STORE_DSN", setString(&self.Store.Dsn)},
		{"STORE_SCHEMA", setString(&self.Store.Schema)},
		{"KEYS_BITS", setInt(&self.Keys.Bits)},
		{"DIGEST_ALGORITHM", setString(&self.Digest.Algorithm)},
		{"TIMEOUTS_STORE", setDuration(&self.Timeouts.Store)},
		{"TIMEOUTS_EXCHANGE", setDuration(&self.Timeouts.Exchange)},
		{"TIMEOUTS_SHUTDOWN", setDuration(&self.Timeouts.Shutdown)},
		{"WECHAT_APP_ID", setString(&self.WeChat.AppId)},
		{"WECHAT_SECRET", setString(&self.WeChat.Secret)},
		{"WECHAT_ENDPOINT", setString(&self.WeChat.Endpoint)},
		{"WECHAT_SESSION_LIFETIME", setDuration(&self.WeChat.SessionLifetime)},
		{"METRICS_ENABLED", setBool(&self.Metrics.Enabled)},
		{"METRICS_PATH", setString(&self.Metrics.Path)},
	}
	for _, v := range vars {
		value, found := lookup(EnvPrefix + v.name)
		if !found {
			continue
		}
		err := v.set(strings.TrimSpace(value))
		if nil != err {
			return wrapFlagError(ErrValidation, err, "invalid %s%s value", EnvPrefix, v.name)
		}
	}

	return nil
}

// Validate returns an ErrValidation error if the Config can not be used.
func (self Config) Validate() error {
	if "" == self.Listen {
		return raiseError(ErrValidation, "empty listen address")
	}
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(self.Log.Level))
	if nil != err {
		return wrapFlagError(ErrValidation, err, "invalid log.level")
	}
	if !slices.Contains([]string{"text", "json"}, strings.ToLower(self.Log.Format)) {
		return raiseError(ErrValidation, "invalid log.format %q", self.Log.Format)
	}

	if !slices.Contains(drivers, self.Store.Driver) {
		return raiseError(ErrValidation, "invalid store.driver %q, supported drivers are %v", self.Store.Driver, drivers)
	}
	if DriverMemory != self.Store.Driver && "" == self.Store.Dsn {
		return raiseError(ErrValidation, "store.dsn is required by %s driver", self.Store.Driver)
	}
	if DriverPostgres == self.Store.Driver && "" == self.Store.Schema {
		return raiseError(ErrValidation, "empty store.schema")
	}

	if self.Keys.Bits < keypair.MinBits {
		return raiseError(ErrValidation, "keys.bits %d below %d", self.Keys.Bits, keypair.MinBits)
	}
	_, err = digest.New(self.Digest.Algorithm)
	if nil != err {
		return wrapFlagError(ErrValidation, err, "invalid digest.algorithm")
	}

	if self.Timeouts.Store <= 0 || self.Timeouts.Exchange <= 0 || self.Timeouts.Shutdown <= 0 {
		return raiseError(ErrValidation, "timeouts must be positive")
	}

	if self.WeChat.Enabled() {
		if "" == self.WeChat.Secret {
			return raiseError(ErrValidation, "wechat.secret is required when wechat.app_id is set")
		}
		if "" == self.WeChat.Endpoint {
			return raiseError(ErrValidation, "empty wechat.endpoint")
		}
		if self.WeChat.SessionLifetime <= 0 {
			return raiseError(ErrValidation, "wechat.session_lifetime must be positive")
		}
	}

	if self.Metrics.Enabled && !strings.HasPrefix(self.Metrics.Path, "/") {
		return raiseError(ErrValidation, "invalid metrics.path %q", self.Metrics.Path)
	}

	return nil
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if nil != err {
			return err
		}
		*dst = n
		return nil
	}
}

func setDuration(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if nil != err {
			return err
		}
		*dst = d
		return nil
	}
}

func setBool(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if nil != err {
			return err
		}
		*dst = b
		return nil
	}
}
