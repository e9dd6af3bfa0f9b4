package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"drivestore/internal/app"
	"drivestore/internal/config"
	models "drivestore/internal/domain/models/namespace"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func main() {
	ownerID := flag.String("owner", "", "Owner id to check (required)")
	repair := flag.Bool("repair", false, "Recount the quota ledger from active files")
	format := flag.String("format", "yaml", "Report format: yaml or json")
	flag.Parse()

	if *ownerID == "" {
		log.Fatalf("--owner is required")
	}
	if *format != "yaml" && *format != "json" {
		log.Fatalf("unknown format %q (want yaml or json)", *format)
	}

	_ = godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if cfg.Environment == "prod" && *repair {
		log.Printf("WARNING: repairing usage for %s in production", *ownerID)
	}

	// Reports go to stdout, logs to stderr
	logger := cfg.NewLogger(os.Stderr)

	ctx := context.Background()
	backends, err := app.SetupBackends(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("Failed to setup backends: %v", err)
	}
	defer backends.Close()

	services := app.SetupServices(backends, cfg, logger)

	var report *models.CheckReport
	if *repair {
		report, err = services.Checker.RepairUsage(ctx, *ownerID)
	} else {
		report, err = services.Checker.Check(ctx, *ownerID)
	}
	if err != nil {
		log.Fatalf("Check failed: %v", err)
	}

	if err := writeReport(report, *format); err != nil {
		log.Fatalf("Failed to write report: %v", err)
	}

	if !report.OK() {
		backends.Close()
		os.Exit(1)
	}
}

func writeReport(report *models.CheckReport, format string) error {
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	out, err := yaml.Marshal(report)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(os.Stdout, string(out))
	return err
}
