package config

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hovercast/hovercast-coordinator/globals"
	"github.com/hovercast/hovercast-coordinator/types"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	defaultEntryTTLMinutes       = 1440
	defaultSilenceTimeoutSeconds = 300
	defaultTokenTTLSeconds       = 60
	defaultGatewayTimeoutSeconds = 5
	defaultFloodMessages         = 10
	defaultFloodIntervalSeconds  = 5
	defaultHandleMaxLength       = 16
	defaultSanitizeCronSpec      = "@every 5m"
	defaultPushTimeoutSeconds    = 5
)

// Config is the global configuration object which is filled via the
// configuration file, environment (HOVERCAST_*) and command-line flags.
type Config struct {
	PersistenceConfig PersistenceConfig `mapstructure:"persistence"`
	PresenceConfig    PresenceConfig    `mapstructure:"presence"`
	GatewayConfig     GatewayConfig     `mapstructure:"gateway"`
	LimitsConfig      LimitsConfig      `mapstructure:"limits"`
	SanitizeConfig    SanitizeConfig    `mapstructure:"sanitize"`
	PushConfig        PushConfig        `mapstructure:"push"`
	OIDCConfigs       []OIDCConfig      `mapstructure:"oidc"`
	AdminUsers        []string          `mapstructure:"admin_users"`
	SiteModerators    []string          `mapstructure:"site_moderators"`
	LogLevel          string            `mapstructure:"log_level"`
	AdminToken        string            `mapstructure:"admin_token"` // guards the admin HTTP API
}

// SiteRole resolves an account's site-wide role: the admin_users and
// site_moderators lists take precedence over the role stored on the
// account record.
func (c *Config) SiteRole(accountId, stored string) string {
	for _, id := range c.AdminUsers {
		if id == accountId {
			return types.RoleAdmin
		}
	}
	for _, id := range c.SiteModerators {
		if id == accountId {
			return types.RoleSiteMod
		}
	}
	return stored
}

// PersistenceConfig configures the durable room store. Type is "sqlite" or
// "postgres".
type PersistenceConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// PresenceConfig configures the ephemeral presence cache. An empty Path
// opens an in-memory store.
type PresenceConfig struct {
	Path                  string `mapstructure:"path"`
	EntryTTLMinutes       int    `mapstructure:"entry_ttl_minutes"`
	SilenceTimeoutSeconds int    `mapstructure:"silence_timeout_seconds"`
}

func (c PresenceConfig) EntryTTL() time.Duration {
	if c.EntryTTLMinutes <= 0 {
		return defaultEntryTTLMinutes * time.Minute
	}
	return time.Duration(c.EntryTTLMinutes) * time.Minute
}

func (c PresenceConfig) SilenceTimeout() time.Duration {
	if c.SilenceTimeoutSeconds <= 0 {
		return defaultSilenceTimeoutSeconds * time.Second
	}
	return time.Duration(c.SilenceTimeoutSeconds) * time.Second
}

// GatewayConfig configures the external WebRTC media gateway: the admin
// API endpoint used for room/broadcast teardown and the secret the signed
// access tokens are minted with.
type GatewayConfig struct {
	AdminUrl        string   `mapstructure:"admin_url"`
	AdminSecret     string   `mapstructure:"admin_secret"`
	TokenSecret     string   `mapstructure:"token_secret"`
	Realm           string   `mapstructure:"realm"`
	AllowedPlugins  []string `mapstructure:"allowed_plugins"`
	TokenTTLSeconds int      `mapstructure:"token_ttl_seconds"`
	TimeoutSeconds  int      `mapstructure:"timeout_seconds"`
}

func (c GatewayConfig) TokenTTL() time.Duration {
	if c.TokenTTLSeconds <= 0 {
		return defaultTokenTTLSeconds * time.Second
	}
	return time.Duration(c.TokenTTLSeconds) * time.Second
}

func (c GatewayConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultGatewayTimeoutSeconds * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LimitsConfig configures the per-connection flood gate and the handle
// rules.
type LimitsConfig struct {
	FloodMessages        int `mapstructure:"flood_messages"`
	FloodIntervalSeconds int `mapstructure:"flood_interval_seconds"`
	HandleMaxLength      int `mapstructure:"handle_max_length"`
}

func (c LimitsConfig) FloodLimit() int {
	if c.FloodMessages <= 0 {
		return defaultFloodMessages
	}
	return c.FloodMessages
}

func (c LimitsConfig) FloodInterval() time.Duration {
	if c.FloodIntervalSeconds <= 0 {
		return defaultFloodIntervalSeconds * time.Second
	}
	return time.Duration(c.FloodIntervalSeconds) * time.Second
}

func (c LimitsConfig) HandleMaxLen() int {
	if c.HandleMaxLength <= 0 {
		return defaultHandleMaxLength
	}
	return c.HandleMaxLength
}

// SanitizeConfig schedules the roster reconciliation sweep.
type SanitizeConfig struct {
	CronSpec string `mapstructure:"cron_spec"`
}

func (c SanitizeConfig) Spec() string {
	if c.CronSpec == "" {
		return defaultSanitizeCronSpec
	}
	return c.CronSpec
}

// PushConfig configures the webhook push-notification sender.
type PushConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

func (c PushConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultPushTimeoutSeconds * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// An OIDCConfig object configures an OpenID Connect provider used to
// authenticate account holders. Clients provide an ID token and the name
// of the provider.
type OIDCConfig struct {
	Name        string `mapstructure:"name"`
	ClientId    string `mapstructure:"client_id"`
	ProviderUrl string `mapstructure:"provider_url"`
}

func GetFlagSet() *pflag.FlagSet {
	flagSet := pflag.NewFlagSet("configuration", pflag.ContinueOnError)
	flagSet.String("admin-token", "", "token guarding the admin HTTP API")
	flagSet.String("log-level", "", "log level (TRACE/DEBUG/INFO/WARN/ERROR)")
	return flagSet
}

// wordSepNormalizeFunc allows for normalization of the flag names (which use - as a separator)
func wordSepNormalizeFunc(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.Replace(name, "-", "_", -1))
}

// ReadConfiguration reads and parses the configuration located at
// configPath, which can either point to a single TOML file or to a
// directory, in which case all *.toml files in this directory are
// concatenated. It returns a Config object.
func ReadConfiguration(configPath string, flagSet *pflag.FlagSet) (*Config, error) {
	cfg := Config{}
	flagSet.SetNormalizeFunc(wordSepNormalizeFunc)
	viper.SetDefault("log_level", "INFO")
	err := viper.BindPFlags(flagSet)
	if err != nil {
		globals.AppLogger.Error("could not bind flags (ignored)", "error", err)
	}
	viper.SetEnvPrefix("HOVERCAST")
	viper.AutomaticEnv()
	if configPath != "" {
		fi, err := os.Stat(configPath)
		if err != nil {
			return nil, err
		}
		contents := make([]byte, 0)
		files := []string{configPath}
		if fi.IsDir() {
			files, err = filepath.Glob(filepath.Join(configPath, "*.toml"))
			if err != nil {
				return nil, err
			}
		}
		for _, configFile := range files {
			fileContents, err := ioutil.ReadFile(configFile)
			if err != nil {
				return nil, err
			}
			contents = append(contents, fileContents...)
			contents = append(contents, '\n')
		}
		viper.SetConfigType("toml")
		err = viper.ReadConfig(bytes.NewBuffer(contents))
		if err != nil {
			globals.AppLogger.Error("could not read config:", "error", err)
		}
	}
	err = viper.Unmarshal(&cfg)
	if err != nil {
		globals.AppLogger.Error("could not unmarshal config:", "error", err)
	}

	return &cfg, nil
}
