package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Settings holds the deployment configuration, loaded from the environment
// with the LOGVAULT prefix. Everything request-independent lives here; the
// project/module registry itself is reloaded from disk on every request.
type Settings struct {
	ListenAddr      string `envconfig:"LISTEN_ADDR" default:":8000"`
	RegistryPath    string `envconfig:"REGISTRY_PATH" default:"config.xml"`
	CredentialsPath string `envconfig:"CREDENTIALS_PATH" default:"credentials.xml"`
	TempDir         string `envconfig:"TEMP_DIR" default:"temp_downloads"`
	LogPath         string `envconfig:"LOG_PATH" default:"logs/app.log"`
	ActivityDBPath  string `envconfig:"ACTIVITY_DB_PATH" default:"data/activity.db"`

	// Remote retrieval settings
	LocateStrategy string        `envconfig:"LOCATE_STRATEGY" default:"sftp"`
	ConnectTimeout time.Duration `envconfig:"CONNECT_TIMEOUT" default:"30s"`
	ZipThresholdMB int64         `envconfig:"ZIP_THRESHOLD_MB" default:"20"`

	// Authentication settings. SSHKeyPath points at a private key used when
	// a project has no password configured. AuthPreference decides which
	// method wins when both a password and a key are available.
	SSHKeyPath     string `envconfig:"SSH_KEY_PATH" default:""`
	AuthPreference string `envconfig:"AUTH_PREFERENCE" default:"password"`

	// Housekeeping settings
	AuditRetentionDays int           `envconfig:"AUDIT_RETENTION_DAYS" default:"90"`
	SweepSchedule      string        `envconfig:"SWEEP_SCHEDULE" default:"@hourly"`
	TempMaxAge         time.Duration `envconfig:"TEMP_MAX_AGE" default:"6h"`
}

// ZipThresholdBytes returns the archive threshold in bytes.
func (s Settings) ZipThresholdBytes() int64 {
	return s.ZipThresholdMB * 1024 * 1024
}

// PreferKeyAuth reports whether key auth should win over a configured
// password when both are available.
func (s Settings) PreferKeyAuth() bool {
	return s.AuthPreference == "key"
}

// Load reads settings from the environment.
func Load() (Settings, error) {
	var s Settings
	if err := envconfig.Process("LOGVAULT", &s); err != nil {
		return Settings{}, fmt.Errorf("load config: %w", err)
	}
	if s.AuthPreference != "password" && s.AuthPreference != "key" {
		return Settings{}, fmt.Errorf("load config: invalid AUTH_PREFERENCE %q (want password or key)", s.AuthPreference)
	}
	return s, nil
}
