package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"
)

// Settings holds the runtime configuration loaded from the YAML settings file.
// Zero values fall back to the defaults defined in this package.
type Settings struct {
	Source struct {
		Mode     string `yaml:"mode"` // SourceModeLocal or SourceModeWeb
		Path     string `yaml:"path"` // Absolute path to the .vcf file (local mode)
		URL      string `yaml:"url"`  // CardDAV or WebDAV URL (web mode)
		Username string `yaml:"username"`
		Password string `yaml:"password"` // Empty: looked up in the OS keyring
	} `yaml:"source"`

	Store struct {
		Path string `yaml:"path"`
		// HardDelete removes rows absent from the source instead of
		// deactivating them. Deactivation is the default because the delete
		// has no audit trail.
		HardDelete bool `yaml:"hard_delete"`
	} `yaml:"store"`

	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Sync struct {
		IntervalMinutes      int `yaml:"interval_minutes"`
		Concurrency          int `yaml:"concurrency"`
		RecordTimeoutSeconds int `yaml:"record_timeout_seconds"`
		YearMetFloor         int `yaml:"year_met_floor"`
	} `yaml:"sync"`

	Report struct {
		Language   string `yaml:"language"`
		Channel    string `yaml:"channel"`
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"report"`

	Reminder struct {
		Trigger string `yaml:"trigger"` // ISO8601 duration string (e.g., "-P1D")
	} `yaml:"reminder"`
}

// LoadSettings reads and parses the settings file, applying defaults for
// anything left unset. A missing file is not an error: defaults apply.
func LoadSettings(path string) (*Settings, error) {
	s := &Settings{}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		slog.Warn(ErrSettingsRead,
			LogKeyComponent, CompSettings,
			LogKeyFile, path,
			LogKeyError, err,
		)
	case err != nil:
		return nil, fmt.Errorf("%s: %w", ErrSettingsRead, err)
	default:
		if err := yaml.Unmarshal(data, s); err != nil {
			return nil, fmt.Errorf("%s: %w", ErrSettingsParse, err)
		}
	}

	s.applyDefaults()
	s.resolveSecrets()
	return s, nil
}

func (s *Settings) applyDefaults() {
	if s.Source.Mode == "" {
		s.Source.Mode = SourceModeLocal
	}
	if s.Store.Path == "" {
		s.Store.Path = DefaultDBFile
	}
	if s.Server.Port == "" {
		s.Server.Port = DefaultPort
	}
	if p, err := strconv.Atoi(s.Server.Port); err != nil || p < MinPort || p > MaxPort {
		slog.Warn(MsgBadPort,
			LogKeyComponent, CompSettings,
			LogKeyPort, s.Server.Port,
		)
		s.Server.Port = DefaultPort
	}
	if s.Sync.IntervalMinutes <= 0 {
		s.Sync.IntervalMinutes = DefaultRefreshMin
	}
	if s.Sync.Concurrency <= 0 {
		s.Sync.Concurrency = DefaultApplyConcurrency
	}
	if s.Sync.RecordTimeoutSeconds <= 0 {
		s.Sync.RecordTimeoutSeconds = int(DefaultRecordTimeout / time.Second)
	}
	if s.Sync.YearMetFloor <= 0 {
		s.Sync.YearMetFloor = YearMetFloor
	}
	if s.Report.Language == "" {
		s.Report.Language = DefaultLanguage
	}
}

// resolveSecrets fills the source password from the OS keyring when the
// settings file leaves it empty. Keeping secrets out of the YAML file is the
// expected configuration for web sources.
func (s *Settings) resolveSecrets() {
	if s.Source.Password != "" || s.Source.Username == "" {
		return
	}

	pass, err := keyring.Get(KeyringService, s.Source.Username)
	if err != nil {
		slog.Debug(MsgPassFail,
			LogKeyComponent, CompSettings,
			LogKeyUser, s.Source.Username,
			LogKeyError, err,
		)
		return
	}
	s.Source.Password = pass
}

// Interval returns the sync interval as a duration.
func (s *Settings) Interval() time.Duration {
	return time.Duration(s.Sync.IntervalMinutes) * time.Minute
}

// RecordTimeout returns the per-record apply timeout as a duration.
func (s *Settings) RecordTimeout() time.Duration {
	return time.Duration(s.Sync.RecordTimeoutSeconds) * time.Second
}
