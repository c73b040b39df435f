// Command packager is run_pack (spec.md §6): a single entrypoint with no
// required flags. All behavior comes from YAML configuration plus the
// secrets/operational env overlay; see internal/config.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"packager/internal/config"
	"packager/internal/orchestrate"
	"packager/internal/statusserver"
)

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	flag.StringVar(&configPath, "config", os.Getenv("PACKAGER_CONFIG"), "path to packager config YAML (optional)")
	flag.Parse()

	logger := log.New(os.Stdout, "packager ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Printf("config error: %v", err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eventsDir := filepath.Join(os.TempDir(), "packager-events")
	if err := os.MkdirAll(eventsDir, 0o755); err != nil {
		logger.Printf("prepare event log dir: %v", err)
		return 1
	}
	eventsPath := filepath.Join(eventsDir, cfg.Packager.ManifestPaths.EventsFilename)

	if cfg.Packager.StatusAddr != "" {
		srv := statusserver.New(cfg.Packager.StatusAddr, eventsPath)
		srv.Start(ctx)
		logger.Printf("status server listening on %s", cfg.Packager.StatusAddr)
	}

	logger.Printf("starting run: mode=%s source_root=%s", cfg.Packager.Publish.Mode, cfg.Packager.SourceRoot)
	result := orchestrate.Run(ctx, cfg, eventsPath)
	if result.Err != nil {
		logger.Printf("run %s failed: %v", result.RunID, result.Err)
	} else {
		logger.Printf("run %s completed", result.RunID)
	}
	return result.ExitCode
}
