package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hpungsan/tablesnap/internal/config"
	"github.com/hpungsan/tablesnap/internal/db"
	"github.com/hpungsan/tablesnap/internal/logging"
	"github.com/hpungsan/tablesnap/internal/ops"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"snapshot": true, "compare": true, "watch": true,
	"captures": true, "clear": true,
	"runs": true, "run": true, "purge": true,
	"serve": true, "mcp": true, "help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	// Global flags, --help and --version → CLI
	if len(arg) > 1 && arg[0] == '-' {
		return true
	}
	return false
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
   _        _     _                        
  | |_ __ _| |__ | | ___  ___ _ __   __ _ _ __
  | __/ _' | '_ \| |/ _ \/ __| '_ \ / _' | '_ \
  | || (_| | |_) | |  __/\__ \ | | | (_| | |_) |
   \__\__,_|_.__/|_|\___||___/_| |_|\__,_| .__/
                                         |_|
  Table snapshot diffs

  Usage: tablesnap <command> [options]
         tablesnap --help

  MCP server mode requires piped input.`)
}

// defaultBaseDir returns $TABLESNAP_HOME, or ~/.tablesnap.
func defaultBaseDir() string {
	if dir := os.Getenv("TABLESNAP_HOME"); dir != "" {
		return dir
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".tablesnap"
	}
	return filepath.Join(homeDir, ".tablesnap")
}

// setup loads configuration, opens the history database and wires the
// operation environment. The returned func releases everything setup opened.
func setup(baseDir string, verbose bool) (*ops.Env, func(), error) {
	wd, err := os.Getwd()
	if err != nil {
		wd = ""
	}
	cfg, err := config.LoadWithRepo(baseDir, wd)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.LoadEnvFile(cfg.EnvFile); err != nil {
		return nil, nil, fmt.Errorf("failed to load env file: %w", err)
	}

	logger, closeLog, err := logging.New(logging.Options{File: cfg.LogFile, Verbose: verbose})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		_ = closeLog()
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, cfg)

	cleanup := func() {
		database.Close()
		_ = closeLog()
	}
	return ops.NewEnv(database, cfg, baseDir, logger), cleanup, nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	if isCLIMode() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'tablesnap --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	env, cleanup, err := setup(defaultBaseDir(), false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := runMCP(env); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
