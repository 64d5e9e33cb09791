package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// RepoDirName is the name of the repo-local configuration directory.
const RepoDirName = ".tablesnap"

// Source describes the database that snapshots are extracted from.
type Source struct {
	// Driver is one of "mysql", "postgres", "pgx", "sqlite".
	Driver string `json:"driver,omitempty"`

	// DSN is a complete driver-specific connection string. Takes precedence over
	// DSNEnv and the individual connection fields.
	DSN string `json:"dsn,omitempty"`

	// DSNEnv names an environment variable holding the DSN. Keeps secrets out of
	// config.json; the variable may come from the env file.
	DSNEnv string `json:"dsn_env,omitempty"`

	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Database string `json:"database,omitempty"`
	SSLMode  string `json:"sslmode,omitempty"`

	// PasswordEnv names an environment variable holding the password used when
	// the DSN is built from the individual fields.
	PasswordEnv string `json:"password_env,omitempty"`
}

// Config holds application configuration.
type Config struct {
	// SnapshotDir is the root directory for captures (one subdirectory per label).
	// Empty means <base dir>/snapshots.
	SnapshotDir string `json:"snapshot_dir,omitempty"`

	// Tables restricts snapshot and compare to these tables. Empty means all tables.
	Tables []string `json:"tables,omitempty"`

	// UseCursor reads tables with keyset pagination on the key column instead of
	// a single full SELECT.
	UseCursor bool `json:"use_cursor,omitempty"`

	// UseHashing stores and compares row fingerprints instead of full rows.
	UseHashing bool `json:"use_hashing,omitempty"`

	// PageSize is the keyset pagination batch size.
	PageSize int `json:"page_size,omitempty"`

	// KeyColumn is the column used as the reconciliation key.
	KeyColumn string `json:"key_column,omitempty"`

	// Workers bounds how many tables are diffed concurrently.
	Workers int `json:"workers,omitempty"`

	// Source is the database snapshots are taken from.
	Source Source `json:"source,omitempty"`

	// DBMaxOpenConns limits open connections to the history database.
	// 0 means use sql.DB default.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits idle connections to the history database.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool type names to disable entirely.
	// Known types: "snapshot", "run".
	DisabledTypes []string `json:"disabled_types,omitempty"`

	// LogFile receives a copy of every log line. Empty disables file logging.
	LogFile string `json:"log_file,omitempty"`

	// EnvFile is a dotenv file loaded before resolving DSNEnv and PasswordEnv.
	EnvFile string `json:"env_file,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		PageSize:  1000,
		KeyColumn: "id",
		Workers:   4,
	}
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both the global base directory and the
// nearest repo-local .tablesnap/config.json found walking upward from startDir.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repo, err := loadFileRaw(FindRepoConfig(startDir))
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .tablesnap/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, RepoDirName, "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ResolveSnapshotDir returns the capture root for this config.
func (c *Config) ResolveSnapshotDir(baseDir string) string {
	if c.SnapshotDir == "" {
		return filepath.Join(baseDir, "snapshots")
	}
	return c.SnapshotDir
}

// LoadEnvFile loads variables from a dotenv file without overriding variables
// already set in the process environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{}

	result.SnapshotDir = firstString(overlay.SnapshotDir, base.SnapshotDir)
	result.KeyColumn = firstString(overlay.KeyColumn, base.KeyColumn)
	result.LogFile = firstString(overlay.LogFile, base.LogFile)
	result.EnvFile = firstString(overlay.EnvFile, base.EnvFile)

	result.PageSize = firstInt(overlay.PageSize, base.PageSize)
	result.Workers = firstInt(overlay.Workers, base.Workers)
	result.DBMaxOpenConns = firstInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns)
	result.DBMaxIdleConns = firstInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns)

	// The source is replaced as a unit; mixing fields of two databases is never wanted.
	result.Source = base.Source
	if overlay.Source != (Source{}) {
		result.Source = overlay.Source
	}

	// Booleans: overlay wins if true, else base
	result.UseCursor = base.UseCursor || overlay.UseCursor
	result.UseHashing = base.UseHashing || overlay.UseHashing

	result.Tables = mergeStringSlice(base.Tables, overlay.Tables)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func firstString(overlay, base string) string {
	if overlay != "" {
		return overlay
	}
	return base
}

func firstInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range a {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}
	for _, s := range b {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
