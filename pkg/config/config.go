// Package config provides a reusable loader for blobengine configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/hoku-labs/blobengine/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a blobengine node. It mirrors the
// structure of the YAML files under cmd/blobengined/config.
type Config struct {
	Genesis struct {
		// Capacity is the subnet's total storage capacity in bytes, fixed at
		// construction time.
		Capacity uint64 `mapstructure:"capacity" json:"capacity"`
		// CreditDebitRate is the byte-blocks-per-atto-token rate, fixed at
		// genesis and never changed afterward.
		CreditDebitRate uint64 `mapstructure:"credit_debit_rate" json:"credit_debit_rate"`
	} `mapstructure:"genesis" json:"genesis"`

	Blobs struct {
		// MinTTLEpochs is the configured minimum time-to-live for add_blob,
		// in epochs. Defaults to 3600 (one hour at one epoch per second). It
		// is loaded but not applied: the ledger always enforces
		// core.DefaultMinTTL.
		MinTTLEpochs int64 `mapstructure:"min_ttl_epochs" json:"min_ttl_epochs"`
		// DefaultTTLEpochs is the configured ttl for an add_blob that omits
		// one. It is loaded but not applied: add_blob uses core.DefaultTTL.
		DefaultTTLEpochs int64 `mapstructure:"default_ttl_epochs" json:"default_ttl_epochs"`
	} `mapstructure:"blobs" json:"blobs"`

	Resolver struct {
		// Addr identifies the off-chain resolver network (e.g. an Iroh RPC
		// address). The engine never dials it directly; this is surfaced for
		// operators wiring up the out-of-band resolver process.
		Addr string `mapstructure:"addr" json:"addr"`
		// QueueLimit is the configured page size for GetAddedBlobs/
		// GetPendingBlobs. It is loaded but not applied: queue page sizes
		// come from each request.
		QueueLimit uint32 `mapstructure:"queue_limit" json:"queue_limit"`
		// PollIntervalSeconds is how often the local resolver worker sweeps
		// the added queue. Only meaningful when no out-of-band resolver
		// process is wired up and cmd/blobengined drives resolution itself.
		PollIntervalSeconds int64 `mapstructure:"poll_interval_seconds" json:"poll_interval_seconds"`
	} `mapstructure:"resolver" json:"resolver"`

	// Epoch configures the standalone binary's own logical clock, used only
	// when no host chain is driving DebitAccounts externally.
	Epoch struct {
		TickSeconds int64 `mapstructure:"tick_seconds" json:"tick_seconds"`
	} `mapstructure:"epoch" json:"epoch"`

	Server struct {
		ListenAddr         string `mapstructure:"listen_addr" json:"listen_addr"`
		CallbackListenAddr string `mapstructure:"callback_listen_addr" json:"callback_listen_addr"`
		MetricsAddr        string `mapstructure:"metrics_addr" json:"metrics_addr"`
	} `mapstructure:"server" json:"server"`

	Storage struct {
		SnapshotPath string `mapstructure:"snapshot_path" json:"snapshot_path"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/blobengined/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("BLOBENGINE")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the BLOBENGINE_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("BLOBENGINE_ENV", ""))
}
