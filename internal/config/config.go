package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/goccy/go-yaml"
)

// Config holds all runtime settings. Detection tuning parameters can be
// overridden from a YAML file; deployment settings (credentials, URLs,
// schedule) come from environment variables.
type Config struct {
	// Sentinel-1 catalog settings.
	Collection     string `yaml:"collection"`
	InstrumentMode string `yaml:"instrument_mode"`
	Polarization   string `yaml:"polarization"`

	// Change detection tuning.
	SpeckleRadiusPx    int     `yaml:"speckle_radius_px"`
	ChangeThresholdDB  float64 `yaml:"change_threshold_db"`
	MinChangeAreaSqKm  float64 `yaml:"min_change_area_sqkm"`
	CheckIntervalHours int     `yaml:"check_interval_hours"`
	BaselineDaysBack   int     `yaml:"baseline_days_back"`
	MaxTimeseriesSize  int     `yaml:"max_timeseries_images"`

	// Deployment settings, environment only.
	Port       string `yaml:"-"`
	BaseURL    string `yaml:"-"`
	WebhookURL string `yaml:"-"`
	EEEndpoint string `yaml:"-"`
	EEProject  string `yaml:"-"`
	EEToken    string `yaml:"-"`
}

// Default returns the built-in settings, matching Sentinel-1 GRD
// interferometric wide swath imagery at 10 m resolution.
func Default() Config {
	return Config{
		Collection:         "COPERNICUS/S1_GRD",
		InstrumentMode:     "IW",
		Polarization:       "VV",
		SpeckleRadiusPx:    3,
		ChangeThresholdDB:  3.0,
		MinChangeAreaSqKm:  0.01,
		CheckIntervalHours: 6,
		BaselineDaysBack:   30,
		MaxTimeseriesSize:  50,
		Port:               "5050",
		BaseURL:            "http://localhost:5050",
		EEEndpoint:         "https://earthengine.googleapis.com",
	}
}

// Load builds the configuration: defaults, then the YAML tuning file if
// it exists, then environment overrides. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, err
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.WebhookURL = v
	}
	if v := os.Getenv("EE_ENDPOINT"); v != "" {
		c.EEEndpoint = v
	}
	if v := os.Getenv("EE_PROJECT_ID"); v != "" {
		c.EEProject = v
	}
	if v := os.Getenv("EE_TOKEN"); v != "" {
		c.EEToken = v
	}
	if v := os.Getenv("CHECK_INTERVAL_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.CheckIntervalHours = n
		}
	}
	if v := os.Getenv("CHANGE_THRESHOLD_DB"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.ChangeThresholdDB = f
		}
	}
}

// Validate checks required settings. A missing webhook only disables
// notifications, so it is reported by the caller, not failed here.
func (c Config) Validate() error {
	if c.EEProject == "" {
		return fmt.Errorf("EE_PROJECT_ID is required")
	}
	return nil
}
