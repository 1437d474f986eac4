package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/config"
	"github.com/Priyansh-03/url-pagination-bucket-detection/internal/runner"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML configuration file (optional)")
	input := flag.String("input", "", "Input CSV file with one URL per row")
	output := flag.String("output", "", "Output CSV file")
	workers := flag.Int("workers", 0, "Number of parallel workers")
	reprocess := flag.Bool("reprocess", false, "Reclassify rows that already have a result")
	visible := flag.Bool("visible", false, "Run browsers with a visible window")
	flag.Parse()

	var cfg *config.Config
	if *cfgPath != "" {
		loaded, err := config.Load(*cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	} else {
		defaults := config.Default()
		cfg = &defaults
	}

	if *input != "" {
		cfg.Input = *input
	}
	if *output != "" {
		cfg.Output = *output
	}
	if *workers > 0 {
		cfg.Worker.Count = *workers
	}
	if *reprocess {
		cfg.Worker.Reprocess = true
	}
	if *visible {
		cfg.Browser.Headless = false
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	engine, err := runner.NewEngine(*cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise engine: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := engine.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "classifier stopped with error: %v\n", err)
		os.Exit(1)
	}
}
