package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// DryRun skips PostgreSQL entirely and persists to an in-memory store.
	DryRun bool

	// Search partitioning: one search call per county in StateCode.
	StateCode string
	Counties  []string

	BaseURL     string
	SearchLimit int
	DaysOld     int

	FetchDetails   bool
	MaxConcurrency int
	RequestRPS     float64
	PartitionDelay time.Duration
	RunTimeout     time.Duration

	// NotifyWindowHours limits which new septic/well listings are handed to
	// the notifier: only those whose list date falls within the last N hours.
	// Zero disables the window filter.
	NotifyWindowHours int
}

// regionsFile is the YAML shape accepted via REGIONS_FILE.
type regionsFile struct {
	StateCode string   `yaml:"state_code"`
	Counties  []string `yaml:"counties"`
}

// defaultCounties are the southeast Wisconsin counties the scraper targets
// when no regions file or COUNTIES override is given.
var defaultCounties = []string{"Kenosha", "Milwaukee", "Racine", "Walworth", "Waukesha"}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "scraper"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "scraper123"),
		PostgresDB:       getEnv("POSTGRES_DB", "realtor_db"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		DryRun: getEnvBool("DRY_RUN", false),

		StateCode: getEnv("STATE_CODE", "WI"),
		Counties:  splitList(getEnv("COUNTIES", "")),

		BaseURL:     getEnv("REALTOR_BASE_URL", "https://www.realtor.com"),
		SearchLimit: getEnvInt("SEARCH_LIMIT", 200),
		DaysOld:     getEnvInt("DAYS_OLD", 1),

		FetchDetails:   getEnvBool("FETCH_DETAILS", true),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 10),
		RequestRPS:     getEnvFloat("REQUEST_RPS", 2.0),
		PartitionDelay: time.Duration(getEnvInt("PARTITION_DELAY_MS", 500)) * time.Millisecond,
		RunTimeout:     time.Duration(getEnvInt("RUN_TIMEOUT_MIN", 30)) * time.Minute,

		NotifyWindowHours: getEnvInt("NOTIFY_WINDOW_HOURS", 0),
	}

	if path := getEnv("REGIONS_FILE", ""); path != "" {
		if err := cfg.loadRegions(path); err != nil {
			log.Printf("[config] Could not load regions file %s: %v", path, err)
		}
	}

	if len(cfg.Counties) == 0 {
		cfg.Counties = defaultCounties
	}

	return cfg
}

// loadRegions overrides the county partitions from a YAML file.
func (c *Config) loadRegions(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var rf regionsFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return fmt.Errorf("parse regions yaml: %w", err)
	}

	if rf.StateCode != "" {
		c.StateCode = rf.StateCode
	}
	if len(rf.Counties) > 0 {
		c.Counties = rf.Counties
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
