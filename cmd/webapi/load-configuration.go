package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ardanlabs/conf"
	"gopkg.in/yaml.v2"
)

// WebAPIConfiguration describes the web API configuration. This structure is automatically parsed by
// loadConfiguration and values from flags, environment variables or configuration file will be loaded.
type WebAPIConfiguration struct {
	Config struct {
		Path string `conf:"default:/conf/config.yml"`
	}
	Web struct {
		APIHost         string        `conf:"default:0.0.0.0:3000"`
		ReadTimeout     time.Duration `conf:"default:5s"`
		WriteTimeout    time.Duration `conf:"default:60s"`
		ShutdownTimeout time.Duration `conf:"default:5s"`
		AllowedOrigins  []string      `conf:"default:http://localhost:3000"`
	}
	Debug   bool
	SiteURL string `conf:"default:http://localhost:3000"`
	// SecureCookies must be enabled whenever the site is served over HTTPS
	SecureCookies bool
	DB            struct {
		Driver string `conf:"default:sqlite3"`
		DSN    string `conf:"default:/tmp/selah.db"`
	}
	LLM struct {
		Provider string `conf:"default:openai"`
		APIKey   string `conf:"noprint"`
		Model    string
		// BaseURL is empty for the provider's own endpoint
		BaseURL  string
		Timeout  time.Duration `conf:"default:30s"`
	}
	Bible struct {
		APIKey  string        `conf:"noprint"`
		// BaseURL is the provider's passage endpoint, accepting bearer keys; it must be configured
		BaseURL string
		Timeout time.Duration `conf:"default:10s"`
	}
	Auth struct {
		URL     string
		AnonKey string        `conf:"noprint"`
		Timeout time.Duration `conf:"default:10s"`
	}
	Commentary struct {
		// Fallback serves a canned commentary when the model fails
		Fallback bool `conf:"default:true"`
	}
}

// loadConfiguration creates a WebAPIConfiguration starting from flags, environment variables and configuration file.
// It works this way: flags and environment variables (prefixed by SELAH_) are parsed first, then, if a file
// exists at Config.Path, its YAML values override them.
func loadConfiguration() (WebAPIConfiguration, error) {
	var cfg WebAPIConfiguration

	// try to load configuration from environment variables and command line switches
	if err := conf.Parse(os.Args[1:], "SELAH", &cfg); err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			usage, err := conf.Usage("SELAH", &cfg)
			if err != nil {
				return cfg, fmt.Errorf("generating config usage: %w", err)
			}
			fmt.Println(usage) //nolint:forbidigo
			return cfg, conf.ErrHelpWanted
		}
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	// override values from YAML if specified and if it exists (useful in k8s/compose)
	if err := applyConfigFile(cfg.Config.Path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// applyConfigFile overlays the YAML file at path onto cfg; a missing file leaves cfg untouched.
func applyConfigFile(path string, cfg *WebAPIConfiguration) error {
	fp, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return fmt.Errorf("can't read the config file, while it exists: %w", err)
	}
	defer fp.Close()

	yamlFile, err := io.ReadAll(fp)
	if err != nil {
		return fmt.Errorf("can't read config file: %w", err)
	}
	if err = yaml.Unmarshal(yamlFile, cfg); err != nil {
		return fmt.Errorf("can't unmarshal config file: %w", err)
	}
	return nil
}
