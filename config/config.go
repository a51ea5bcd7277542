// Package config loads the qjazzd/qjazz-gateway process configuration
// from a TOML file with environment-variable overrides, grounded on
// arkeep-io-arkeep's cobra flag+env wiring (envOrDefault) generalized
// to a structured file format via github.com/BurntSushi/toml.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// EnvPrefix is prepended to every dotted config key when checking for
// an environment override: "worker.service_name" becomes
// "QJAZZ_WORKER_SERVICE_NAME".
const EnvPrefix = "QJAZZ_"

// WorkerConfig mirrors spec §6's worker configuration keys.
type WorkerConfig struct {
	ServiceName          string        `toml:"service_name"`
	Title                string        `toml:"title"`
	Description          string        `toml:"description"`
	WorkDir              string        `toml:"work_dir"`
	Concurrency          int           `toml:"concurrency"`
	QueueSize            int           `toml:"queue_size"`
	CleanupInterval      time.Duration `toml:"cleanup_interval"`
	ReloadMonitor        string        `toml:"reload_monitor"`
	HidePresenceVersions bool          `toml:"hide_presence_versions"`
	CleanupLockTimeout   time.Duration `toml:"cleanup_lock_timeout"`
	ProgressFlushInterval time.Duration `toml:"progress_flush_interval"`
}

// ExecutorConfig mirrors spec §6's executor configuration keys.
type ExecutorConfig struct {
	MessageExpirationTimeout time.Duration `toml:"message_expiration_timeout"`
	UpdateInterval           time.Duration `toml:"update_interval"`
	DismissTimeout           time.Duration `toml:"dismiss_timeout"`
	RevokeTimeout            time.Duration `toml:"revoke_timeout"`
	InspectTimeout           time.Duration `toml:"inspect_timeout"`
}

// BrokerConfig configures the broker transport. The TOML section is
// named "celery" for wire-compatibility documentation with the
// original deployment tooling, even though the Go field is Broker.
type BrokerConfig struct {
	Kind          string        `toml:"kind"`
	URL           string        `toml:"url"`
	ResultExpires time.Duration `toml:"result_expires"`
	QueueSize     int           `toml:"queue_size"`
}

// HTTPConfig mirrors spec §6's gateway configuration keys.
type HTTPConfig struct {
	Listen       string        `toml:"listen"`
	TLSCertFile  string        `toml:"tls_cert_file"`
	TLSKeyFile   string        `toml:"tls_key_file"`
	CrossOrigin  []string      `toml:"cross_origin"`
	Proxy        string        `toml:"proxy"`
	UpdateInterval time.Duration `toml:"update_interval"`
	Timeout      time.Duration `toml:"timeout"`
}

// JobRealmConfig mirrors spec §4.4 "Realm".
type JobRealmConfig struct {
	Enabled     bool     `toml:"enabled"`
	AdminTokens []string `toml:"admin_tokens"`
}

// AccessPolicyConfig mirrors spec's Design Note §9 access-policy
// selection.
type AccessPolicyConfig struct {
	PolicyClass string            `toml:"policy_class"`
	Config      map[string]string `toml:"config"`
}

// StorageConfig selects and configures a storage.Storage
// implementation by kind (tagged-config pattern per Design Note §9).
type StorageConfig struct {
	Kind       string            `toml:"kind"`
	Config     map[string]string `toml:"config"`
}

// CallbacksConfig maps a subscriber URL scheme to the callback.Handler
// kind that serves it.
type CallbacksConfig map[string]string

// Config is the top-level structure loaded from the TOML file.
type Config struct {
	Worker       WorkerConfig       `toml:"worker"`
	Executor     ExecutorConfig     `toml:"executor"`
	Broker       BrokerConfig       `toml:"celery"`
	HTTP         HTTPConfig         `toml:"http"`
	JobRealm     JobRealmConfig     `toml:"job_realm"`
	AccessPolicy AccessPolicyConfig `toml:"access_policy"`
	Storage      StorageConfig      `toml:"storage"`
	Callbacks    CallbacksConfig    `toml:"callbacks"`
	LogLevel     string             `toml:"log_level"`
}

// Default returns the built-in defaults, applied before the TOML file
// and environment overrides.
func Default() Config {
	return Config{
		Worker: WorkerConfig{
			ServiceName:           "default",
			Concurrency:           4,
			QueueSize:             256,
			CleanupInterval:       5 * time.Minute,
			CleanupLockTimeout:    10 * time.Second,
			ProgressFlushInterval: 250 * time.Millisecond,
		},
		Executor: ExecutorConfig{
			MessageExpirationTimeout: 10 * time.Minute,
			UpdateInterval:           30 * time.Second,
			DismissTimeout:           20 * time.Second,
			RevokeTimeout:            5 * time.Second,
			InspectTimeout:           2 * time.Second,
		},
		Broker: BrokerConfig{
			Kind:          "local",
			ResultExpires: time.Hour,
			QueueSize:     256,
		},
		HTTP: HTTPConfig{
			Listen:         ":8080",
			UpdateInterval: 30 * time.Second,
			Timeout:        30 * time.Second,
		},
		Storage: StorageConfig{
			Kind:   "local",
			Config: map[string]string{"root": "./data/storage"},
		},
		LogLevel: "info",
	}
}

// Load reads path (when non-empty) into Default()'s result, then
// applies QJAZZ_-prefixed environment overrides for the leaf fields
// every cmd entry point actually needs to tweak without a file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decoding %s: %w", path, err)
		}
	}
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString("worker.service_name", &cfg.Worker.ServiceName)
	overrideString("worker.work_dir", &cfg.Worker.WorkDir)
	overrideInt("worker.concurrency", &cfg.Worker.Concurrency)
	overrideString("http.listen", &cfg.HTTP.Listen)
	overrideString("celery.url", &cfg.Broker.URL)
	overrideString("celery.kind", &cfg.Broker.Kind)
	overrideBool("job_realm.enabled", &cfg.JobRealm.Enabled)
	overrideString("log_level", &cfg.LogLevel)
}

func envKey(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

func overrideString(key string, dst *string) {
	if v, ok := os.LookupEnv(envKey(key)); ok {
		*dst = v
	}
}

func overrideInt(key string, dst *int) {
	if v, ok := os.LookupEnv(envKey(key)); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func overrideBool(key string, dst *bool) {
	if v, ok := os.LookupEnv(envKey(key)); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
