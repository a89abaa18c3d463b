package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath    string
	OutputDir string
	IssuesDir string
	LogMode   string

	TabularPrimaryPath       string
	TabularSupplementaryPath string
	MarcDir                  string
	OnixSourceAPath          string
	OnixSourceAName          string
	OnixSourceBPath          string
	OnixSourceBName          string

	PipelineParallel bool
	ExportIssuesXLSX bool

	APIAddr      string
	APIPageLimit int

	FeedSources      map[string]string
	FeedDir          string
	FeedRateLimitRPS int
	FeedTimeoutMs    int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "library.db")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "data")),
		IssuesDir: getEnv("ISSUES_DIR", filepath.Join(cwd, "issues")),
		LogMode:   getEnv("LOG_MODE", "dev"),

		TabularPrimaryPath:       getEnv("TABULAR_PRIMARY_PATH", filepath.Join(cwd, "CSV-Excel", "primary.xlsx")),
		TabularSupplementaryPath: getEnv("TABULAR_SUPPLEMENTARY_PATH", filepath.Join(cwd, "CSV-Excel", "supplementary.xlsx")),
		MarcDir:                  getEnv("MARC_DIR", filepath.Join(cwd, "MARC")),
		OnixSourceAPath:          getEnv("ONIX_SOURCE_A_PATH", filepath.Join(cwd, "ONIX", "source_a.xml")),
		OnixSourceAName:          getEnv("ONIX_SOURCE_A_NAME", "LEEANDLOW"),
		OnixSourceBPath:          getEnv("ONIX_SOURCE_B_PATH", filepath.Join(cwd, "ONIX", "source_b.xml")),
		OnixSourceBName:          getEnv("ONIX_SOURCE_B_NAME", "LERNER"),

		PipelineParallel: getEnvBool("PIPELINE_PARALLEL", true),
		ExportIssuesXLSX: getEnvBool("EXPORT_ISSUES_XLSX", false),

		APIAddr:      getEnv("API_ADDR", ":8080"),
		APIPageLimit: getEnvInt("API_PAGE_LIMIT", 20),

		FeedSources:      getEnvMap("FEED_SOURCES"),
		FeedDir:          getEnv("FEED_DIR", filepath.Join(cwd, "feeds")),
		FeedRateLimitRPS: getEnvInt("FEED_RATE_LIMIT_RPS", 2),
		FeedTimeoutMs:    getEnvInt("FEED_TIMEOUT_MS", 60000),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}

// getEnvMap parses "name=value,name2=value2". Malformed pairs are ignored.
func getEnvMap(key string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(getEnv(key, ""), ",") {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if !ok || name == "" || value == "" {
			continue
		}
		out[name] = value
	}
	return out
}
