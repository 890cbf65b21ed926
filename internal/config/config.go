package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/robfig/cron/v3"
	"golang.org/x/text/language"

	"github.com/couchcryptid/flood-extent-service/internal/domain"
)

// Defaults that other packages also fall back to.
const (
	DefaultSourcePattern = "Agua_{stage}_Tabasco_{year}.geojson"
	DefaultStageTokens   = "before=Antes,during=Durante,after=Después,comparative=Comparativo"
	DefaultMapStyle      = "mapbox://styles/mapbox/dark-v11"
	DefaultCommandTopic  = "flood-view-commands"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Dataset source.
	DataSource      string
	SourcePattern   string
	StageTokens     map[domain.Stage]string
	FoldAccents     bool
	SourceTimeout   time.Duration
	SourceRate      float64
	SourceCacheSize int

	CatalogFile string
	SummaryRef  string
	BoundaryRef string
	Region      domain.Region

	DiscoveryConcurrency int
	RetainGeometry       bool
	RefreshSchedule      string
	TransitionFade       time.Duration

	// Initial view.
	DefaultYear  int
	DefaultStage domain.Stage
	MapStyle     string
	Locale       language.Tag

	// Command sinks. An empty broker list disables Kafka.
	KafkaBrokers      []string
	KafkaCommandTopic string
	CommandBuffer     int

	ArchivePath string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	tokens, err := ParseStageTokens(sharedcfg.EnvOrDefault("SOURCE_STAGE_TOKENS", DefaultStageTokens))
	collect(err)
	stage, err := domain.ParseStage(sharedcfg.EnvOrDefault("DEFAULT_STAGE", "during"))
	collect(prefix("DEFAULT_STAGE", err))
	locale, err := language.Parse(sharedcfg.EnvOrDefault("DISPLAY_LOCALE", "es-MX"))
	collect(prefix("DISPLAY_LOCALE", err))

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		DataSource:      sharedcfg.EnvOrDefault("DATA_SOURCE", "./data"),
		SourcePattern:   sharedcfg.EnvOrDefault("SOURCE_PATTERN", DefaultSourcePattern),
		StageTokens:     tokens,
		FoldAccents:     parseBool("SOURCE_FOLD_ACCENTS", false, collect),
		SourceTimeout:   parseDuration("SOURCE_TIMEOUT", "10s", collect),
		SourceRate:      parseFloat("SOURCE_RATE", 0, collect),
		SourceCacheSize: parseInt("SOURCE_CACHE_SIZE", 64, collect),

		CatalogFile: os.Getenv("CATALOG_FILE"),
		SummaryRef:  os.Getenv("SUMMARY_REF"),
		BoundaryRef: os.Getenv("BOUNDARY_REF"),
		Region: domain.Region{
			Name:             sharedcfg.EnvOrDefault("REGION_NAME", "Tabasco"),
			ReferenceAreaKm2: parseFloat("REGION_AREA_KM2", 24738, collect),
			MeanDepthM:       parseFloat("MEAN_DEPTH_M", 0.5, collect),
		},

		DiscoveryConcurrency: parseInt("DISCOVERY_CONCURRENCY", 0, collect),
		RetainGeometry:       parseBool("DISCOVERY_RETAIN_GEOMETRY", true, collect),
		RefreshSchedule:      os.Getenv("REFRESH_SCHEDULE"),
		TransitionFade:       parseDuration("TRANSITION_FADE", "300ms", collect),

		DefaultYear:  parseInt("DEFAULT_YEAR", 2020, collect),
		DefaultStage: stage,
		MapStyle:     sharedcfg.EnvOrDefault("MAP_STYLE", DefaultMapStyle),
		Locale:       locale,

		KafkaBrokers:      sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaCommandTopic: sharedcfg.EnvOrDefault("KAFKA_COMMAND_TOPIC", DefaultCommandTopic),
		CommandBuffer:     parseInt("COMMAND_BUFFER", 256, collect),

		ArchivePath: os.Getenv("ARCHIVE_PATH"),
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DataSource == "" {
		return errors.New("DATA_SOURCE is required")
	}
	if !strings.Contains(c.SourcePattern, "{year}") || !strings.Contains(c.SourcePattern, "{stage}") {
		return errors.New("SOURCE_PATTERN must contain {year} and {stage}")
	}
	if c.SourceTimeout <= 0 {
		return errors.New("invalid SOURCE_TIMEOUT: must be a positive duration")
	}
	if c.SourceRate < 0 {
		return errors.New("invalid SOURCE_RATE: must not be negative")
	}
	if c.SourceCacheSize < 1 {
		return errors.New("invalid SOURCE_CACHE_SIZE: must be at least 1")
	}
	if c.Region.ReferenceAreaKm2 <= 0 {
		return errors.New("invalid REGION_AREA_KM2: must be positive")
	}
	if c.Region.MeanDepthM < 0 {
		return errors.New("invalid MEAN_DEPTH_M: must not be negative")
	}
	if c.DiscoveryConcurrency < 0 {
		return errors.New("invalid DISCOVERY_CONCURRENCY: must not be negative")
	}
	if c.TransitionFade < 0 {
		return errors.New("invalid TRANSITION_FADE: must not be negative")
	}
	if c.DefaultYear <= 0 {
		return errors.New("invalid DEFAULT_YEAR: must be positive")
	}
	if c.CommandBuffer < 1 {
		return errors.New("invalid COMMAND_BUFFER: must be at least 1")
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaCommandTopic == "" {
		return errors.New("KAFKA_COMMAND_TOPIC is required when KAFKA_BROKERS is set")
	}
	if c.RefreshSchedule != "" {
		if _, err := cron.ParseStandard(c.RefreshSchedule); err != nil {
			return fmt.Errorf("invalid REFRESH_SCHEDULE: %w", err)
		}
	}
	return nil
}

// KafkaEnabled reports whether command batches are published to Kafka.
func (c *Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// ParseStageTokens parses "stage=token" pairs separated by commas, e.g.
// "before=Antes,during=Durante". Stages left out keep no token.
func ParseStageTokens(value string) (map[domain.Stage]string, error) {
	tokens := make(map[domain.Stage]string)
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, token, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(token) == "" {
			return nil, fmt.Errorf("invalid SOURCE_STAGE_TOKENS entry %q", pair)
		}
		stage, err := domain.ParseStage(name)
		if err != nil {
			return nil, fmt.Errorf("invalid SOURCE_STAGE_TOKENS: %w", err)
		}
		tokens[stage] = strings.TrimSpace(token)
	}
	return tokens, nil
}

func prefix(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("invalid %s: %w", key, err)
}

func parseDuration(key, fallback string, collect func(error)) time.Duration {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, fallback))
	if err != nil {
		collect(prefix(key, err))
	}
	return d
}

func parseInt(key string, fallback int, collect func(error)) int {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		collect(prefix(key, err))
	}
	return n
}

func parseFloat(key string, fallback float64, collect func(error)) float64 {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		collect(prefix(key, err))
	}
	return f
}

func parseBool(key string, fallback bool, collect func(error)) bool {
	s := os.Getenv(key)
	if s == "" {
		return fallback
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		collect(prefix(key, err))
	}
	return b
}
