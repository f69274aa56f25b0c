package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProgConfig defines program configuration
type ProgConfig struct {
	OutputDirectory            string  `yaml:"OutputDirectory"`
	InputDirectory             string  `yaml:"InputDirectory"`
	CacheDirectory             string  `yaml:"CacheDirectory"`
	CacheTTLHours              int     `yaml:"CacheTTLHours"`
	CacheEvictionDays          int     `yaml:"CacheEvictionDays"`
	OverlayPixelThreshold      int64   `yaml:"OverlayPixelThreshold"`
	MaxFileSizeMB              float64 `yaml:"MaxFileSizeMB"`
	DownloadTimeoutSeconds     int     `yaml:"DownloadTimeoutSeconds"`
	AvailabilityTimeoutSeconds int     `yaml:"AvailabilityTimeoutSeconds"`
	LogDirectory               string  `yaml:"LogDirectory"`
	LogLevel                   string  `yaml:"LogLevel"`
}

// progConfig represents program configuration
var progConfig ProgConfig

/*
loadProgConfig loads program configuration from YAML file and applies defaults.
*/
func loadProgConfig(filename string) (ProgConfig, error) {
	var config ProgConfig

	source, err := os.ReadFile(filename)
	if err != nil {
		return config, fmt.Errorf("error [%w] at os.ReadFile(), file = [%s]", err, filename)
	}
	err = yaml.Unmarshal(source, &config)
	if err != nil {
		return config, fmt.Errorf("error [%w] at yaml.Unmarshal(), file = [%s]", err, filename)
	}

	applyConfigDefaults(&config)
	return config, nil
}

/*
applyConfigDefaults fills unset configuration values.
*/
func applyConfigDefaults(config *ProgConfig) {
	if config.OutputDirectory == "" {
		config.OutputDirectory = "./output"
	}
	if config.InputDirectory == "" {
		config.InputDirectory = "./input"
	}
	if config.CacheDirectory == "" {
		config.CacheDirectory = "./cache"
	}
	if config.CacheTTLHours <= 0 {
		config.CacheTTLHours = 24
	}
	if config.CacheEvictionDays <= 0 {
		config.CacheEvictionDays = 7
	}
	if config.OverlayPixelThreshold <= 0 {
		config.OverlayPixelThreshold = 25_000_000
	}
	if config.MaxFileSizeMB <= 0 {
		config.MaxFileSizeMB = 500
	}
	if config.DownloadTimeoutSeconds <= 0 {
		config.DownloadTimeoutSeconds = 300
	}
	if config.AvailabilityTimeoutSeconds <= 0 {
		config.AvailabilityTimeoutSeconds = 30
	}
	if config.LogDirectory == "" {
		config.LogDirectory = "."
	}
}

/*
DownloadTimeout returns the per-adapter download timeout.
*/
func (c ProgConfig) DownloadTimeout() time.Duration {
	return time.Duration(c.DownloadTimeoutSeconds) * time.Second
}

/*
AvailabilityTimeout returns the availability check timeout.
*/
func (c ProgConfig) AvailabilityTimeout() time.Duration {
	return time.Duration(c.AvailabilityTimeoutSeconds) * time.Second
}

/*
CacheTTL returns the cache entry time-to-live.
*/
func (c ProgConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// Credentials represents external API credentials (flat struct, read once at startup).
// Missing credentials degrade to best effort, they never terminate the program.
type Credentials struct {
	OpenTopographyAPIKey string
	OpenTopoUsername     string
	OpenTopoPassword     string
	CDSEToken            string
	CDSEClientID         string
	CDSEClientSecret     string
	EarthdataUsername    string
}

/*
loadCredentials reads all external API credentials from the environment.
OPENTOPOGRAPHY_API_KEY has the legacy aliases OPENTOPO_KEY and OPENTOPO_API_KEY.
*/
func loadCredentials() Credentials {
	apiKey := os.Getenv("OPENTOPOGRAPHY_API_KEY")
	if apiKey == "" {
		apiKey = os.Getenv("OPENTOPO_KEY")
	}
	if apiKey == "" {
		apiKey = os.Getenv("OPENTOPO_API_KEY")
	}

	return Credentials{
		OpenTopographyAPIKey: apiKey,
		OpenTopoUsername:     os.Getenv("OPENTOPO_USERNAME"),
		OpenTopoPassword:     os.Getenv("OPENTOPO_PASSWORD"),
		CDSEToken:            os.Getenv("CDSE_TOKEN"),
		CDSEClientID:         os.Getenv("CDSE_CLIENT_ID"),
		CDSEClientSecret:     os.Getenv("CDSE_CLIENT_SECRET"),
		EarthdataUsername:    os.Getenv("EARTHDATA_USERNAME"),
	}
}
