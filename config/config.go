package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds scraper configuration.
type Config struct {
	BaseURL          string            `yaml:"base_url"`
	SiteOrigin       string            `yaml:"site_origin"`
	APIBaseURL       string            `yaml:"api_base_url"`
	APICityCode      string            `yaml:"api_city_code"`
	APIClientID      string            `yaml:"api_client_id"`
	APISuccessCode   int               `yaml:"api_success_code"`
	MaxPageIndex     int               `yaml:"max_page_index"`
	MaxCategories    int               `yaml:"max_categories"`
	CategoryWorkers  int               `yaml:"category_workers"`
	ProductWorkers   int               `yaml:"product_workers"`
	Parallelism      int               `yaml:"parallelism"`
	Delay            time.Duration     `yaml:"delay"`
	RandomDelay      time.Duration     `yaml:"random_delay"`
	Timeout          time.Duration     `yaml:"timeout"`
	MaxRetries       int               `yaml:"max_retries"`
	RetryBackoff     time.Duration     `yaml:"retry_backoff"`
	RetryBackoffMax  time.Duration     `yaml:"retry_backoff_max"`
	Headers          map[string]string `yaml:"headers"`
	Cookies          map[string]string `yaml:"cookies"`
	UserAgent        string            `yaml:"user_agent"`
	OutputFile       string            `yaml:"output_file"`
	OutputFormat     string            `yaml:"output_format"` // mongo, json, csv, or dual
	MongoURI         string            `yaml:"mongo_uri"`
	MongoDatabase    string            `yaml:"mongo_database"`
	MongoCollection  string            `yaml:"mongo_collection"`
	StoreTimeout     time.Duration     `yaml:"store_timeout"`
	PipelineBuffer   int               `yaml:"pipeline_buffer"`
	BatchSize        int               `yaml:"batch_size"`
	DedupeMaxSize    int               `yaml:"dedupe_max_size"`
	MetricsAddr      string            `yaml:"metrics_addr"`
	Verbose          bool              `yaml:"verbose"`
	RespectRobotsTxt bool              `yaml:"respect_robots_txt"`
}

// DefaultConfig returns defaults for the Petrovich Moscow catalog.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:         "https://moscow.petrovich.ru/catalog/",
		SiteOrigin:      "https://moscow.petrovich.ru",
		APIBaseURL:      "https://api.petrovich.ru/catalog/v5/products",
		APICityCode:     "msk",
		APIClientID:     "pet_site",
		APISuccessCode:  20001,
		MaxPageIndex:    1000,
		MaxCategories:   0,
		CategoryWorkers: 2,
		ProductWorkers:  8,
		Parallelism:     4,
		Delay:           0,
		RandomDelay:     0,
		Timeout:         30 * time.Second,
		MaxRetries:      2,
		RetryBackoff:    200 * time.Millisecond,
		RetryBackoffMax: 2 * time.Second,
		Headers: map[string]string{
			"Accept":           "application/json, text/plain, */*",
			"Accept-Language":  "ru,en;q=0.9",
			"Origin":           "https://moscow.petrovich.ru",
			"Referer":          "https://moscow.petrovich.ru/",
			"Sec-Fetch-Dest":   "empty",
			"Sec-Fetch-Mode":   "cors",
			"Sec-Fetch-Site":   "same-site",
			"X-Requested-With": "XmlHttpRequest",
		},
		Cookies: map[string]string{
			"u__typeDevice":  "desktop",
			"u__geoCityCode": "msk",
		},
		UserAgent:       "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36",
		OutputFile:      "output/products.jsonl",
		OutputFormat:    "mongo",
		MongoURI:        "mongodb://127.0.0.1:27017/",
		MongoDatabase:   "Petrovich",
		MongoCollection: "products",
		StoreTimeout:    15 * time.Second,
		PipelineBuffer:  512,
		BatchSize:       64,
		DedupeMaxSize:   100000,
		MetricsAddr:     "",
	}
}

// LoadFile overlays the YAML document at path onto c. Keys absent from the
// file keep their current values.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %q: %w", path, err)
	}
	return nil
}

// Validate ensures all configuration values are coherent.
func (c *Config) Validate() error {
	for name, raw := range map[string]string{
		"base URL":     c.BaseURL,
		"site origin":  c.SiteOrigin,
		"API base URL": c.APIBaseURL,
	} {
		if err := validateURL(name, raw); err != nil {
			return err
		}
	}

	if c.APISuccessCode <= 0 {
		return fmt.Errorf("API success code must be positive")
	}
	if c.MaxPageIndex <= 0 {
		return fmt.Errorf("max page index must be positive")
	}
	if c.MaxCategories < 0 {
		return fmt.Errorf("max categories cannot be negative")
	}
	if c.CategoryWorkers <= 0 {
		return fmt.Errorf("category workers must be positive")
	}
	if c.ProductWorkers <= 0 {
		return fmt.Errorf("product workers must be positive")
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive")
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay cannot be negative")
	}
	if c.RandomDelay < 0 {
		return fmt.Errorf("random delay cannot be negative")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	if c.RetryBackoff < 0 {
		return fmt.Errorf("retry backoff cannot be negative")
	}
	if c.RetryBackoffMax < 0 {
		return fmt.Errorf("retry backoff max cannot be negative")
	}
	if c.RetryBackoffMax > 0 && c.RetryBackoff > c.RetryBackoffMax {
		return fmt.Errorf("retry backoff (%s) cannot exceed retry backoff max (%s)", c.RetryBackoff, c.RetryBackoffMax)
	}
	if c.UserAgent == "" {
		return fmt.Errorf("user agent cannot be empty")
	}

	switch c.OutputFormat {
	case "mongo":
		if c.MongoURI == "" {
			return fmt.Errorf("mongo URI cannot be empty")
		}
		if c.MongoDatabase == "" || c.MongoCollection == "" {
			return fmt.Errorf("mongo database and collection cannot be empty")
		}
		if c.StoreTimeout <= 0 {
			return fmt.Errorf("store timeout must be positive")
		}
	case "json", "csv", "dual":
		if c.OutputFile == "" {
			return fmt.Errorf("output file cannot be empty")
		}
	default:
		return fmt.Errorf("output format must be mongo, json, csv, or dual")
	}

	if c.PipelineBuffer <= 0 {
		return fmt.Errorf("pipeline buffer must be positive")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive")
	}
	if c.DedupeMaxSize <= 0 {
		return fmt.Errorf("dedupe max size must be positive")
	}

	return nil
}

func validateURL(name, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("%s must include a host", name)
	}
	return nil
}

// EnvString returns the trimmed value of key when it is set and non-empty.
func EnvString(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}

// EnvInt parses key as an integer when set.
func EnvInt(key string) (int, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, true, nil
}

// EnvDuration parses key as a time.Duration (e.g. "30s") when set.
func EnvDuration(key string) (time.Duration, bool, error) {
	value, ok := EnvString(key)
	if !ok {
		return 0, false, nil
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s: %w", key, err)
	}
	return parsed, true, nil
}
