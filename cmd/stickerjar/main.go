package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/hpungsan/stickerjar/internal/analysis"
	"github.com/hpungsan/stickerjar/internal/archive"
	"github.com/hpungsan/stickerjar/internal/blob"
	"github.com/hpungsan/stickerjar/internal/config"
	"github.com/hpungsan/stickerjar/internal/db"
	"github.com/hpungsan/stickerjar/internal/jar"
	"github.com/hpungsan/stickerjar/internal/lifecycle"
	"github.com/hpungsan/stickerjar/internal/logging"
	"github.com/hpungsan/stickerjar/internal/mcp"
	"github.com/hpungsan/stickerjar/internal/metrics"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// Default scene size for headless use, a phone-sized portrait view.
const (
	defaultWidth  = 390
	defaultHeight = 600
)

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"add": true, "list": true, "show": true,
	"foreground": true, "archive": true,
	"jars": true, "jar": true,
	"simulate": true, "serve": true,
	"help": true,
}

// appEnv is everything a command needs, opened once per process.
type appEnv struct {
	cfg     *config.Config
	log     *logrus.Logger
	store   *db.Store
	blobs   *blob.FileStore
	metrics *metrics.Metrics
	jar     *jar.Jar
}

// openApp opens the database, blob store and live jar under baseDir.
// The returned close function waits for in-flight sticker work.
func openApp(ctx context.Context, baseDir string, cfg *config.Config) (*appEnv, func(), error) {
	log := logging.New(cfg.LogLevel, os.Stderr)

	database, err := db.Init(baseDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	db.ConfigurePool(database, cfg)

	blobs, err := blob.NewFileStore(db.BlobsDir(baseDir))
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	store := db.NewStore(database, cfg.UserID)
	m := metrics.New()

	var analyzer lifecycle.Analyzer = analysis.Offline{}
	if cfg.AnalyzerURL != "" {
		analyzer = analysis.NewClient(cfg.AnalyzerURL, cfg.RemoteTimeout())
	}
	var reporter archive.Reporter = analysis.LocalReporter{}
	if cfg.ReportURL != "" {
		reporter = analysis.NewReportClient(cfg.ReportURL, cfg.RemoteTimeout())
	}

	j, err := jar.New(jar.Deps{
		Config:   cfg,
		Store:    store,
		Blobs:    blobs,
		Analyzer: analyzer,
		Reporter: reporter,
		Metrics:  m,
		Logger:   log,
	})
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	j.Resize(defaultWidth, defaultHeight)
	if _, err := j.Load(ctx); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load jar: %w", err)
	}

	env := &appEnv{cfg: cfg, log: log, store: store, blobs: blobs, metrics: m, jar: j}
	closeFn := func() {
		j.Close()
		database.Close()
	}
	return env, closeFn, nil
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
	// --help or --version → CLI
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
       _   _      _                _
   ___| |_(_) ___| | _____ _ __   (_) __ _ _ __
  / __| __| |/ __| |/ / _ \ '__|  | |/ _' | '__|
  \__ \ |_| | (__|   <  __/ |     | | (_| | |
  |___/\__|_|\___|_|\_\___|_|    _/ |\__,_|_|
                                |__/
  A jar for your food stickers

  Usage: stickerjar <command> [options]
         stickerjar --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't open the jar)
	if !isCLIMode() && len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'stickerjar --help' for usage.\n")
		os.Exit(1)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}
	baseDir := filepath.Join(homeDir, ".stickerjar")

	cwd, err := os.Getwd()
	if err != nil {
		cwd = baseDir
	}
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	env, closeApp, err := openApp(context.Background(), baseDir, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer closeApp()

	if isCLIMode() {
		app := newCLIApp(env)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			closeApp()
			os.Exit(1)
		}
		return
	}

	// MCP server mode (default)
	for _, name := range mcp.ValidateDisabledTools(cfg.DisabledTools) {
		env.log.WithField("tool", name).Warn("unknown tool in disabled_tools")
	}
	for _, name := range mcp.ValidateDisabledTypes(cfg.DisabledTypes) {
		env.log.WithField("type", name).Warn("unknown type in disabled_types")
	}
	if err := mcp.Run(env.jar, env.store, cfg, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		closeApp()
		os.Exit(1)
	}
}
