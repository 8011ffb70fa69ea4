// Package main is the shiori CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/shiori/internal/cli"
	"github.com/hyperjump/shiori/internal/config"
	"github.com/hyperjump/shiori/internal/models"
	"github.com/hyperjump/shiori/internal/rag"
	"github.com/hyperjump/shiori/internal/server"
	"github.com/hyperjump/shiori/internal/watcher"
	"github.com/hyperjump/shiori/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/shiori/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory takes precedence; when neither exists the built-in
// defaults are used. Returns the config and the path actually loaded ("" for
// built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", config.Validate(cfg)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// Optional .env with API keys; a missing file is not an error.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "query":
		runQuery()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("shiori version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config and creates the logger shared by every command.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, string) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug || debugFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return cfg, logger, resolved
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, resolved := setup(*configPath, *debug)
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolved), zap.Bool("debug", cfg.Debug || *debug))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	srv := server.NewServer(components.Pipeline, components.Catalog, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			cancel()
		}
	}()

	var watch *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		watch = watcher.New(cfg.Watch.Directories, cfg.Watch.RecursiveOrDefault(), components.Ingester,
			watcher.WithLogger(logger))
		if err := watch.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		// The initial sync can take a while; it stops when the watcher does.
		go watch.SyncExisting()
	}

	<-ctx.Done()
	logger.Info("Shutting down...")
	if watch != nil {
		watch.Stop()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if err := components.Pipeline.Save(cfg.Storage.IndexPath); err != nil {
		logger.Error("index save failed", zap.String("path", cfg.Storage.IndexPath), zap.Error(err))
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	recursive := fs.Bool("recursive", true, "descend into subdirectories")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: shiori ingest [flags] <file-or-directory>...\n\n")
		fmt.Fprintf(fs.Output(), "Ingests files into the saved index directly; stop a running server first or it will overwrite the index on shutdown.\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, logger, _ := setup(*configPath, false)
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer components.Close()

	failed := false
	for _, path := range fs.Args() {
		if err := ingestPath(ctx, components, path, *recursive, format); err != nil {
			fmt.Fprintf(os.Stderr, "Ingest %s failed: %v\n", path, err)
			failed = true
			if ctx.Err() != nil {
				break
			}
		}
	}
	if err := components.Pipeline.Save(cfg.Storage.IndexPath); err != nil {
		fmt.Fprintf(os.Stderr, "Saving index failed: %v\n", err)
		os.Exit(1)
	}
	if failed {
		os.Exit(1)
	}
}

func ingestPath(ctx context.Context, c *Components, path string, recursive bool, format cli.OutputFormat) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		sum, err := c.Ingester.IngestDirectory(ctx, path, recursive)
		if err != nil {
			return err
		}
		return cli.WriteSummary(os.Stdout, path, sum, format)
	}
	res, err := c.Ingester.IngestFile(ctx, path)
	if err != nil {
		return err
	}
	return cli.WriteFileResult(os.Stdout, res, format)
}

// queryArgsReorder moves flags given after the query text to the front so
// "shiori query who made python -top-k 5" parses.
func queryArgsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runQuery() {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = query the saved index directly)")
	topK := fs.Int("top-k", -1, "number of results (default from config)")
	mode := fs.String("mode", string(models.QueryModeSemantic), "ranking: semantic or hybrid")
	outputFormat := fs.String("output", "text", "output format: text, compact, json or context")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: shiori query [flags] <question>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(queryArgsReorder(os.Args[2:]))

	text := buildQuery(fs.Args())
	if text == "" {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	req := &models.QueryRequest{
		Query:          text,
		Mode:           models.QueryMode(*mode),
		IncludeContext: format == cli.OutputContext,
	}
	if *topK >= 0 {
		req.TopK = topK
	}

	var resp *models.QueryResponse
	if *serverURL != "" {
		resp, err = queryViaHTTP(*serverURL, req)
	} else {
		resp, err = queryDirect(*configPath, req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteResults(os.Stdout, resp, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func queryDirect(configPath string, req *models.QueryRequest) (*models.QueryResponse, error) {
	cfg, logger, _ := setup(configPath, false)
	defer logger.Sync()
	if err := req.Validate(cfg.Retrieval.DefaultTopK, cfg.Retrieval.MaxTopK); err != nil {
		return nil, err
	}

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer components.Close()

	start := time.Now()
	var results []*models.AttributedResult
	if req.Mode == models.QueryModeHybrid {
		results, err = components.Pipeline.HybridQuery(ctx, req.Query, *req.TopK)
	} else {
		results, err = components.Pipeline.Query(ctx, req.Query, *req.TopK)
	}
	if err != nil {
		return nil, err
	}
	resp := &models.QueryResponse{
		Query:     req.Query,
		Mode:      req.Mode,
		Results:   results,
		QueryTime: time.Since(start).Milliseconds(),
	}
	if req.IncludeContext {
		resp.Context = rag.FormatContext(results)
	}
	return resp, nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the saved index directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var (
		status *statusResponse
		err    error
	)
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
	} else {
		status, err = statusDirect(*configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := writeStatus(os.Stdout, status, *outputFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`shiori - document indexing and retrieval for RAG

Usage:
  shiori server [flags]                    Start the HTTP server (and drop-folder watcher)
  shiori ingest [flags] <path>...          Ingest files or directories into the saved index
  shiori query [flags] <question>          Retrieve the chunks most relevant to a question
  shiori status [flags]                    Show index and catalog status
  shiori version                           Show version
  shiori help                              Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/shiori/config.yaml)

Server Flags:
  --debug            Enable debug logging

Ingest Flags:
  --recursive        Descend into subdirectories (default: true)
  --output string    text or json

Query Flags:
  --server string    Server URL (default: http://localhost:8080); "" queries the saved index directly
  --top-k int        Number of results (default from config)
  --mode string      semantic or hybrid (default: semantic)
  --output string    text, compact, json or context

Status Flags:
  --server string    Server URL; "" reads the saved index directly
  --output string    text or json

Examples:
  shiori server
  shiori ingest ~/Documents/manuals
  shiori query "how long does brewing take"
  shiori query --mode hybrid --output context "who created python"
  shiori status --output json`)
}
