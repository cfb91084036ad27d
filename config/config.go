package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every runtime setting read from the environment.
const EnvPrefix = "SCRAPER"

// ErrConfig indicates a missing or malformed configuration.
type ErrConfig struct {
	Err error
}

func (e ErrConfig) Error() string {
	return fmt.Errorf("config: %w", e.Err).Error()
}

func (e ErrConfig) Unwrap() error {
	return e.Err
}

// Config holds scraper configuration. The store fields come from the JSON
// config file; the rest are runtime settings with defaults that the
// environment and flags may override.
type Config struct {
	City         string `ignored:"true"`
	Category     string `ignored:"true"`
	StoreAddress string `ignored:"true"`
	OutputFile   string `ignored:"true"`

	BaseURL          string        `envconfig:"BASE_URL"`
	CataloguePath    string        `envconfig:"CATALOGUE_PATH"`
	APIPath          string        `envconfig:"API_PATH"`
	Headless         bool          `envconfig:"HEADLESS"`
	PageTimeout      time.Duration `envconfig:"PAGE_TIMEOUT"`
	Timeout          time.Duration `envconfig:"REQUEST_TIMEOUT"`
	Delay            time.Duration `envconfig:"REQUEST_DELAY"`
	RandomDelay      time.Duration `envconfig:"REQUEST_RANDOM_DELAY"`
	NavigationRate   float64       `envconfig:"NAVIGATION_RATE"`
	DetailsCacheSize int           `envconfig:"DETAILS_CACHE_SIZE"`
	OutputFormat     string        `envconfig:"OUTPUT_FORMAT"` // csv, json, or dual
	UserAgent        string        `envconfig:"USER_AGENT"`
	Accept           string        `envconfig:"ACCEPT"`
	Referer          string        `envconfig:"REFERER"`
	MetricsAddr      string        `envconfig:"METRICS_ADDR"`
	Verbose          bool          `envconfig:"VERBOSE"`
	RespectRobotsTxt bool          `envconfig:"RESPECT_ROBOTS_TXT"`
}

// fileConfig mirrors the JSON config file. Pointers let Load tell a missing
// key from an empty value.
type fileConfig struct {
	City         *string `json:"city"`
	Category     *string `json:"category"`
	StoreAddress *string `json:"store_address"`
	InfoFilePath *string `json:"info_file_path"`
}

// DefaultConfig returns defaults for the bethowen.ru catalogue.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:          "https://www.bethowen.ru",
		CataloguePath:    "/catalogue/",
		APIPath:          "/api/local/v1/catalog",
		Headless:         true,
		PageTimeout:      10 * time.Second,
		Timeout:          30 * time.Second,
		Delay:            0,
		RandomDelay:      0,
		NavigationRate:   0,
		DetailsCacheSize: 256,
		OutputFile:       "output/products.csv",
		OutputFormat:     "csv",
		UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36 OPR/109.0.0.0",
		Accept:           "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
		Referer:          "https://www.bethowen.ru/iwaf-captcha",
		Verbose:          false,
		RespectRobotsTxt: false,
	}
}

// Load reads the JSON config file at path on top of DefaultConfig, then
// applies SCRAPER_* environment overrides (a .env file is honoured).
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if _, statErr := os.Stat(".env"); statErr == nil {
			slog.Warn(".env file found but could not be loaded", slog.Any("error", err))
		}
	}

	cfg := DefaultConfig()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, ErrConfig{Err: fmt.Errorf("environment: %w", err)}
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ErrConfig{Err: fmt.Errorf("read %s: %w", path, err)}
	}

	var fc fileConfig
	if err := json.Unmarshal(data, &fc); err != nil {
		return ErrConfig{Err: fmt.Errorf("decode %s: %w", path, err)}
	}

	var missing []string
	if fc.City == nil {
		missing = append(missing, "city")
	}
	if fc.Category == nil {
		missing = append(missing, "category")
	}
	if fc.StoreAddress == nil {
		missing = append(missing, "store_address")
	}
	if fc.InfoFilePath == nil {
		missing = append(missing, "info_file_path")
	}
	if len(missing) > 0 {
		return ErrConfig{Err: fmt.Errorf("%s: missing keys: %s", path, strings.Join(missing, ", "))}
	}

	c.City = *fc.City
	c.Category = *fc.Category
	c.StoreAddress = *fc.StoreAddress
	c.OutputFile = *fc.InfoFilePath
	return nil
}

// TargetAddress is matched against store addresses to pick the store whose
// stock decides availability.
func (c *Config) TargetAddress() string {
	return fmt.Sprintf("%s, %s", c.City, c.StoreAddress)
}

// CatalogueURL is the category index page.
func (c *Config) CatalogueURL() string {
	return strings.TrimSuffix(c.BaseURL, "/") + c.CataloguePath
}

// APIURL joins the API prefix and the given path segments.
func (c *Config) APIURL(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	return strings.TrimSuffix(c.BaseURL, "/") + c.APIPath + "/" + strings.Join(escaped, "/")
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return ErrConfig{Err: err}
	}
	return nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.City) == "" {
		return errors.New("city cannot be empty")
	}
	if strings.TrimSpace(c.StoreAddress) == "" {
		return errors.New("store address cannot be empty")
	}

	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	parsedURL, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base URL: %w", err)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("base URL must include a host")
	}
	if !strings.HasPrefix(c.CataloguePath, "/") {
		return fmt.Errorf("catalogue path must start with /")
	}
	if !strings.HasPrefix(c.APIPath, "/") {
		return fmt.Errorf("API path must start with /")
	}

	if c.PageTimeout <= 0 {
		return fmt.Errorf("page timeout must be positive")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.NavigationRate < 0 {
		return fmt.Errorf("navigation rate cannot be negative")
	}
	if c.DetailsCacheSize < 0 {
		return fmt.Errorf("details cache size cannot be negative")
	}
	if c.OutputFile == "" {
		return fmt.Errorf("output file cannot be empty")
	}
	if c.OutputFormat != "csv" && c.OutputFormat != "json" && c.OutputFormat != "dual" {
		return fmt.Errorf("output format must be csv, json, or dual")
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	return nil
}
