package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	// defaultMaxItemBytes is the ceiling above which an item is never pushed.
	defaultMaxItemBytes = 50 * 1024 * 1024

	// minSyncInterval guards against a periodic trigger that hammers the
	// remote store's rate limit.
	minSyncInterval = time.Minute
)

// Config holds all environment-based configuration for session-sync.
type Config struct {
	// Remote store credentials and location.
	GitHubToken  string `env:"GITHUB_TOKEN"`
	GitHubAPIURL string `env:"GITHUB_API_URL" envDefault:"https://api.github.com"`

	// Repository name, or owner/name. When no owner is given the
	// authenticated account owns the repository.
	Repo string `env:"SYNC_REPO" envDefault:"copilot-chat-sync"`

	// Encryption passphrase. Empty leaves the orchestrator in the
	// setup-required state until `session-sync setup` is run.
	Passphrase string `env:"SYNC_PASSPHRASE"`

	// Root of the local session store. Defaults to the platform's editor
	// workspaceStorage directory.
	SessionsDir string `env:"SESSIONS_DIR"`

	// Path of the bbolt state database. Defaults to ~/.session-sync/state.db.
	StatePath string `env:"STATE_PATH"`

	// Sync behaviour.
	Interval          time.Duration `env:"SYNC_INTERVAL" envDefault:"15m"`
	RecentDays        int           `env:"SYNC_RECENT_DAYS" envDefault:"0"`
	MaxItemBytes      int64         `env:"SYNC_MAX_ITEM_BYTES" envDefault:"52428800"`
	ExcludeWorkspaces []string      `env:"SYNC_EXCLUDE_WORKSPACES" envSeparator:","`
	Watch             bool          `env:"SYNC_WATCH" envDefault:"true"`
	HashWorkers       int           `env:"SYNC_HASH_WORKERS" envDefault:"8"`

	// Serve MCP tools on stdio alongside the daemon.
	EnableMCP bool `env:"ENABLE_MCP" envDefault:"false"`

	// Environment controls log format
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogFile     string `env:"LOG_FILE"`
}

// warnInsecureEnvFile checks whether the .env file (if present) has
// overly permissive permissions. On Unix systems, group or world
// readable files risk exposing the token and passphrase to other users.
func warnInsecureEnvFile() {
	if runtime.GOOS == "windows" {
		return
	}

	info, err := os.Stat(".env")
	if err != nil {
		return // file does not exist, nothing to check
	}

	mode := info.Mode().Perm()
	if mode&0o077 != 0 {
		log.Printf("WARNING: .env file has insecure permissions %04o; recommended 0600", mode)
	}
}

// Load reads configuration from environment variables.
// It first attempts to load a .env file if present, then parses env vars.
func Load() (*Config, error) {
	_ = godotenv.Load()

	warnInsecureEnvFile()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.ExcludeWorkspaces = trimAll(cfg.ExcludeWorkspaces)

	if cfg.MaxItemBytes <= 0 {
		cfg.MaxItemBytes = defaultMaxItemBytes
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	if cfg.SessionsDir == "" {
		dir, err := DefaultSessionsDir()
		if err != nil {
			return nil, err
		}

		cfg.SessionsDir = dir
	}

	absDir, err := filepath.Abs(cfg.SessionsDir)
	if err != nil {
		return nil, fmt.Errorf("resolving sessions dir to absolute path: %w", err)
	}

	cfg.SessionsDir = absDir

	if cfg.StatePath == "" {
		p, err := DefaultStatePath()
		if err != nil {
			return nil, err
		}

		cfg.StatePath = p
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.GitHubToken == "" {
		return fmt.Errorf("GITHUB_TOKEN is required")
	}

	if _, _, err := c.RepoOwnerAndName(""); err != nil {
		return err
	}

	if c.Interval < minSyncInterval {
		return fmt.Errorf("SYNC_INTERVAL must be at least %s", minSyncInterval)
	}

	if c.RecentDays < 0 {
		return fmt.Errorf("SYNC_RECENT_DAYS must not be negative")
	}

	if c.HashWorkers < 1 {
		return fmt.Errorf("SYNC_HASH_WORKERS must be at least 1")
	}

	return nil
}

// RepoOwnerAndName splits SYNC_REPO into owner and name. A bare name is
// owned by defaultOwner, which may be empty until authentication has
// resolved the account login.
func (c *Config) RepoOwnerAndName(defaultOwner string) (string, string, error) {
	repo := strings.Trim(strings.TrimSpace(c.Repo), "/")
	if repo == "" {
		return "", "", fmt.Errorf("SYNC_REPO must not be empty")
	}

	owner, name, found := strings.Cut(repo, "/")
	if !found {
		return defaultOwner, repo, nil
	}

	if owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("invalid SYNC_REPO %q: expected name or owner/name", c.Repo)
	}

	return owner, name, nil
}

// IsProduction returns true when the environment is set to production.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// DefaultStatePath returns ~/.session-sync/state.db.
func DefaultStatePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	return filepath.Join(home, ".session-sync", "state.db"), nil
}

// DefaultSessionsDir returns the editor's workspaceStorage directory for
// the current platform.
func DefaultSessionsDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}

	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Code", "User", "workspaceStorage"), nil
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "Code", "User", "workspaceStorage"), nil
		}

		return filepath.Join(home, "AppData", "Roaming", "Code", "User", "workspaceStorage"), nil
	default:
		return filepath.Join(home, ".config", "Code", "User", "workspaceStorage"), nil
	}
}

func trimAll(values []string) []string {
	var out []string

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" {
			out = append(out, v)
		}
	}

	return out
}
