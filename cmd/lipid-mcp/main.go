package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ironsheep/lipid-tools-mcp/internal/config"
	"github.com/ironsheep/lipid-tools-mcp/internal/imaging"
	"github.com/ironsheep/lipid-tools-mcp/internal/pipeline"
	"github.com/ironsheep/lipid-tools-mcp/internal/report"
	"github.com/ironsheep/lipid-tools-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func usage() {
	fmt.Println("lipid-tools-mcp - MCP server for lipid droplet quantification")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  lipid-tools-mcp                          Serve MCP over stdin/stdout")
	fmt.Println("  lipid-tools-mcp batch <dir> [out-dir]    Analyse every image under dir and write a report")
	fmt.Println("  lipid-tools-mcp init-config <path>       Write the default configuration file")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version, -v    Print version information")
	fmt.Println("  --help, -h       Print this help message")
	fmt.Println()
	fmt.Println("Environment variables:")
	fmt.Println("  LIPID_MCP_LOG_LEVEL=debug    Enable debug logging")
	fmt.Println("  LIPID_MCP_CONFIG=<path>      YAML configuration file")
	fmt.Println()
	fmt.Println("In batch mode the first folder below <dir> names each image's group.")
}

func main() {
	// Handle --version and -v flags
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v", "version":
			fmt.Printf("lipid-tools-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
			return
		case "--help", "-h", "help":
			usage()
			return
		}
	}

	// Configure logging to stderr (stdout is for MCP protocol)
	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)

	debug := os.Getenv("LIPID_MCP_LOG_LEVEL") == "debug"
	if debug {
		log.Printf("Lipid MCP Server v%s (built %s, commit %s)", Version, BuildTime, GitCommit)
	}

	if len(os.Args) > 1 && os.Args[1] == "init-config" {
		if len(os.Args) < 3 {
			log.Fatal("init-config requires a path")
		}
		if err := config.CreateDefaultConfigFile(os.Args[2]); err != nil {
			log.Fatalf("Config error: %v", err)
		}
		fmt.Printf("Wrote %s\n", os.Args[2])
		return
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if debug {
		if path := os.Getenv(config.EnvConfigPath); path != "" {
			log.Printf("Loaded configuration from %s", path)
		}
	}

	if len(os.Args) > 1 && os.Args[1] == "batch" {
		if err := runBatch(cfg, os.Args[2:]); err != nil {
			log.Fatalf("Batch error: %v", err)
		}
		return
	}

	srv, err := server.NewWithConfig(cfg)
	if err != nil {
		log.Fatalf("Config error: %v", err)
	}
	if err := srv.Run(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// runBatch analyses a directory tree and writes the report, stopping
// between images on SIGINT or SIGTERM.
func runBatch(cfg *config.Config, args []string) error {
	if len(args) < 1 {
		return errors.New("batch requires a directory")
	}
	outDir := cfg.Report.OutputDir
	if len(args) > 1 {
		outDir = args[1]
	}

	analyzer, err := pipeline.NewAnalyzer(cfg.AnalyzerOptions())
	if err != nil {
		return err
	}
	files, err := imaging.ScanDirectory(args[0], imaging.ScanOptions{
		Extensions:          cfg.Batch.Extensions,
		GroupBySubdirectory: true,
		Cache:               imaging.NewImageCache(),
		Convert:             cfg.ConvertOptions(),
	})
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no images found under %s", args[0])
	}
	sources := make([]pipeline.Source, len(files))
	for i, f := range files {
		sources[i] = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := pipeline.BatchOptions{
		Workers: cfg.Batch.Workers,
		Logger:  log.Default(),
		Progress: func(p pipeline.Progress) {
			log.Printf("[%d/%d] %s", p.Done, p.Total, p.ID)
		},
	}
	if cfg.Report.WriteOverlays {
		hook, err := report.OverlayWriter(filepath.Join(outDir, "overlays"), cfg.Report.OverlayOpacity, log.Default())
		if err != nil {
			return err
		}
		opts.OnResult = hook
	}

	summary, runErr := analyzer.RunBatch(ctx, sources, opts)
	written, err := report.WriteAll(outDir, summary, report.Options{BoxPlot: cfg.Report.WriteBoxPlot})
	if err != nil {
		return err
	}

	fmt.Printf("Run %s: %d succeeded, %d failed\n", summary.RunID, summary.Succeeded, summary.Failed)
	for _, line := range report.FailureLines(summary) {
		fmt.Printf("  %s\n", line)
	}
	for _, path := range written {
		fmt.Printf("Wrote %s\n", path)
	}
	return runErr
}
