// Package config builds the process-wide configuration once at startup.
// Components receive the sections they need by parameter.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/models"
	"github.com/ctwangwang/COVID-19-Data-Engineering-Pipeline/internal/ratelimit"
)

const (
	defaultBaseURL    = "https://disease.sh/v3/covid-19"
	defaultDataSource = "disease.sh API"
	defaultAuditDir   = "raw_data"
	defaultSQLiteDSN  = "file:covid.db"
	defaultDAGID      = "covid_data_pipeline"
	defaultTimeout    = 30 * time.Second
	defaultUserAgent  = "covid-pipeline/1.0"

	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	ExchangeMemory   = "memory"
	ExchangeDatabase = "database"

	ProjectionLenient = "lenient"
	ProjectionStrict  = "strict"
)

// Config is the whole pipeline configuration.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Audit     AuditConfig     `yaml:"audit"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Notify    NotifyConfig    `yaml:"notify"`
}

// SourceConfig configures the statistics API client and normalization.
type SourceConfig struct {
	BaseURL    string            `yaml:"base_url"`
	Endpoints  map[string]string `yaml:"endpoints"`
	Timeout    time.Duration     `yaml:"timeout"`
	UserAgent  string            `yaml:"user_agent"`
	DataSource string            `yaml:"data_source"`
	Projection string            `yaml:"projection"`
	RateLimit  ratelimit.Config  `yaml:"rate_limit"`
}

// AuditConfig configures where raw payloads are kept.
type AuditConfig struct {
	Dir string `yaml:"dir"`
}

// WarehouseConfig configures the relational store.
type WarehouseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
	Debug  bool   `yaml:"debug"`
}

// PipelineConfig configures the driver.
type PipelineConfig struct {
	DAGID    string                 `yaml:"dag_id"`
	Kind     string                 `yaml:"kind"`
	Exchange string                 `yaml:"exchange"`
	MinRows  int                    `yaml:"min_rows"`
	Steps    map[string]RetryPolicy `yaml:"steps"`
}

// RetryPolicy is the per-step retry and timeout setting.
type RetryPolicy struct {
	Retries int           `yaml:"retries"`
	Delay   time.Duration `yaml:"retry_delay"`
	Timeout time.Duration `yaml:"timeout"`
}

// NotifyConfig configures failure notifications.
type NotifyConfig struct {
	SlackWebhookURL string `yaml:"slack_webhook_url"`
}

// Default returns the reference configuration.
func Default() Config {
	return Config{
		Source: SourceConfig{
			BaseURL: defaultBaseURL,
			Endpoints: map[string]string{
				"countries":  "/countries",
				"global":     "/all",
				"historical": "/historical",
			},
			Timeout:    defaultTimeout,
			UserAgent:  defaultUserAgent,
			DataSource: defaultDataSource,
			Projection: ProjectionLenient,
			RateLimit:  ratelimit.DefaultConfig(),
		},
		Audit: AuditConfig{Dir: defaultAuditDir},
		Warehouse: WarehouseConfig{
			Driver: DriverSQLite,
			DSN:    defaultSQLiteDSN,
			Table:  models.DailyStatsTable,
		},
		Pipeline: PipelineConfig{
			DAGID:    defaultDAGID,
			Kind:     "countries",
			Exchange: ExchangeMemory,
			MinRows:  1,
			Steps: map[string]RetryPolicy{
				"extract_data":  {Retries: 1, Delay: 5 * time.Minute, Timeout: 5 * time.Minute},
				"process_data":  {Retries: 1},
				"validate_data": {Retries: 1},
				"store_data":    {Retries: 1},
			},
		},
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// any), then environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings no component can honour.
func (c Config) Validate() error {
	var errs []error
	if _, err := url.ParseRequestURI(c.Source.BaseURL); err != nil {
		errs = append(errs, fmt.Errorf("source.base_url: %w", err))
	}
	switch c.Source.Projection {
	case ProjectionLenient, ProjectionStrict:
	default:
		errs = append(errs, fmt.Errorf("source.projection: unknown mode %q", c.Source.Projection))
	}
	if err := c.Source.RateLimit.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("source.rate_limit: %w", err))
	}
	if strings.TrimSpace(c.Audit.Dir) == "" {
		errs = append(errs, errors.New("audit.dir is required"))
	}
	switch c.Warehouse.Driver {
	case DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("warehouse.driver: unknown driver %q", c.Warehouse.Driver))
	}
	if strings.TrimSpace(c.Warehouse.DSN) == "" {
		errs = append(errs, errors.New("warehouse.dsn is required"))
	}
	if strings.TrimSpace(c.Warehouse.Table) == "" {
		errs = append(errs, errors.New("warehouse.table is required"))
	}
	switch c.Pipeline.Exchange {
	case ExchangeMemory, ExchangeDatabase:
	default:
		errs = append(errs, fmt.Errorf("pipeline.exchange: unknown exchange %q", c.Pipeline.Exchange))
	}
	if _, ok := c.Source.Endpoints[c.Pipeline.Kind]; !ok {
		errs = append(errs, fmt.Errorf("pipeline.kind: no endpoint configured for %q", c.Pipeline.Kind))
	}
	for step, p := range c.Pipeline.Steps {
		if p.Retries < 0 || p.Delay < 0 || p.Timeout < 0 {
			errs = append(errs, fmt.Errorf("pipeline.steps.%s: negative values are not allowed", step))
		}
	}
	return errors.Join(errs...)
}

// Policy returns the retry policy for step; unknown steps get no retries.
func (p PipelineConfig) Policy(step string) RetryPolicy {
	return p.Steps[step]
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	setString(lookup, "COVID_SOURCE_BASE_URL", &c.Source.BaseURL)
	setString(lookup, "COVID_SOURCE_PROJECTION", &c.Source.Projection)
	setString(lookup, "COVID_AUDIT_DIR", &c.Audit.Dir)
	setString(lookup, "COVID_DB_DRIVER", &c.Warehouse.Driver)
	setString(lookup, "COVID_DB_DSN", &c.Warehouse.DSN)
	setString(lookup, "COVID_DB_TABLE", &c.Warehouse.Table)
	setString(lookup, "COVID_PIPELINE_EXCHANGE", &c.Pipeline.Exchange)
	setString(lookup, "COVID_SLACK_WEBHOOK_URL", &c.Notify.SlackWebhookURL)

	if v, ok := lookup("COVID_SOURCE_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("COVID_SOURCE_TIMEOUT: %w", err)
		}
		c.Source.Timeout = d
	}
	if v, ok := lookup("COVID_DB_DEBUG"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("COVID_DB_DEBUG: %w", err)
		}
		c.Warehouse.Debug = b
	}

	// POSTGRES_* builds the DSN when none was given explicitly.
	if _, ok := lookup("COVID_DB_DSN"); !ok && c.Warehouse.Driver == DriverPostgres {
		if _, hasHost := lookup("POSTGRES_HOST"); hasHost || c.Warehouse.DSN == defaultSQLiteDSN {
			c.Warehouse.DSN = postgresDSN(lookup)
		}
	}
	return nil
}

func postgresDSN(lookup lookupFunc) string {
	get := func(key, def string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return def
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(get("POSTGRES_USER", "admin"), get("POSTGRES_PASSWORD", "admin")),
		Host:     get("POSTGRES_HOST", "localhost") + ":" + get("POSTGRES_PORT", "5432"),
		Path:     "/" + get("POSTGRES_DB", "covid_db"),
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

func setString(lookup lookupFunc, key string, dst *string) {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		*dst = strings.TrimSpace(v)
	}
}
