package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Crawl     Crawl     `yaml:"crawl"`
	Dedup     Dedup     `yaml:"dedup"`
	Score     Score     `yaml:"score"`
	Embedding Embedding `yaml:"embedding"`
	Vectors   Vectors   `yaml:"vectors"`
	Sources   Sources   `yaml:"sources"`
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
	Logging   Logging   `yaml:"logging"`
}

type Crawl struct {
	Source          string `yaml:"source"`
	Display         int    `yaml:"display"`
	MaxStart        int    `yaml:"max_start"`
	MaxPages        int    `yaml:"max_pages"`
	MaxRetries      int    `yaml:"max_retries"`
	MinDelayMs      int    `yaml:"min_delay_ms"`
	MaxDelayMs      int    `yaml:"max_delay_ms"`
	ClientIDEnv     string `yaml:"client_id_env"`
	ClientSecretEnv string `yaml:"client_secret_env"`
}

type Dedup struct {
	WindowDays int    `yaml:"window_days"`
	Policy     string `yaml:"policy"`
	Mode       string `yaml:"mode"`
}

type Score struct {
	Threshold float64 `yaml:"threshold"`
	// TextColumn forces the text column; empty means auto-detect.
	TextColumn string `yaml:"text_column"`
}

type Embedding struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	OllamaURL   string `yaml:"ollama_url"`
	GeminiModel string `yaml:"gemini_model"`
	APIKeyEnv   string `yaml:"api_key_env"`
	VectorsPath string `yaml:"vectors_path"`
}

type Vectors struct {
	Dir    string `yaml:"dir"`
	Metric string `yaml:"metric"`
}

type Sources struct {
	Feeds []Feed `yaml:"feeds"`
}

type Feed struct {
	URL  string `yaml:"url"`
	Name string `yaml:"name"`
}

type Output struct {
	DataDir   string `yaml:"data_dir"`
	SheetName string `yaml:"sheet_name"`
}

type Server struct {
	Port int `yaml:"port"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for newsdesk.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "newsdesk")
}

// DataDir returns the XDG data directory for newsdesk.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "newsdesk")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > $NEWSDESK_CONFIG > ~/.config/newsdesk/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	if envPath := os.Getenv("NEWSDESK_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("config file not found: %s (from NEWSDESK_CONFIG)", envPath)
		}
		return envPath, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'newsdesk init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// LoadDotEnv loads a .env file from the working directory when one exists,
// so Naver and Gemini credentials can live next to the input workbooks.
func LoadDotEnv() {
	_ = godotenv.Load()
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Crawl: Crawl{
			Source:          "api",
			Display:         100,
			MaxStart:        1000,
			MaxPages:        10,
			MaxRetries:      5,
			MinDelayMs:      100,
			MaxDelayMs:      300,
			ClientIDEnv:     "NAVER_CLIENT_ID",
			ClientSecretEnv: "NAVER_CLIENT_SECRET",
		},
		Dedup: Dedup{
			WindowDays: 30,
			Policy:     "earliest",
			Mode:       "rolling_window",
		},
		Score: Score{Threshold: 0.5},
		Embedding: Embedding{
			Provider:    "ollama",
			Model:       "nomic-embed-text",
			OllamaURL:   "http://localhost:11434",
			GeminiModel: "text-embedding-004",
			APIKeyEnv:   "GEMINI_API_KEY",
		},
		Vectors: Vectors{Metric: "cosine"},
		Output:  Output{SheetName: "output"},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DBPath returns the SQLite database path under the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "newsdesk.db")
}

// ModelDir returns the directory scanned for .vec word vector models.
func (c *Config) ModelDir() string {
	if c.Vectors.Dir != "" {
		return c.Vectors.Dir
	}
	return filepath.Join(c.GetDataDir(), "models")
}

// NaverCredentials reads the Open API credentials from the environment.
func (c *Config) NaverCredentials() (id, secret string, err error) {
	id = os.Getenv(c.Crawl.ClientIDEnv)
	secret = os.Getenv(c.Crawl.ClientSecretEnv)
	if id == "" || secret == "" {
		return "", "", fmt.Errorf("set %s and %s in the environment or a .env file",
			c.Crawl.ClientIDEnv, c.Crawl.ClientSecretEnv)
	}
	return id, secret, nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
