package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"RateCast/internal/di"
	"RateCast/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	mode := flag.String("mode", "serve", "serve: HTTP, consumer and scheduler; run: one pipeline run, then exit")
	entities := flag.String("entities", "", "comma-separated entities for -mode=run (default: configured)")
	flag.Parse()

	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("dotenv: %v", err)
	}

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("env=%s mode=%s source=%s models=%s", cfg.Environment, *mode, cfg.Storage.PriceSource, cfg.Storage.ModelStore)

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}
	defer cleanup()

	ctx := context.Background()
	switch *mode {
	case "run":
		var list []string
		if *entities != "" {
			list = strings.Split(*entities, ",")
		}
		report, err := app.RunOnce(ctx, list)
		if err != nil {
			log.Printf("run error: %v", err)
			cleanup()
			os.Exit(1)
		}
		log.Printf("run %s: %d entities, %d failed", report.RunID, len(report.Outcomes), report.Failed())
		if report.Failed() == len(report.Outcomes) && len(report.Outcomes) > 0 {
			cleanup()
			os.Exit(1)
		}
	case "serve":
		if err := app.Serve(ctx); err != nil {
			log.Printf("app error: %v", err)
			cleanup()
			os.Exit(1)
		}
	default:
		log.Fatalf("unknown mode %q", *mode)
	}
}
