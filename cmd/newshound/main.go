package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"newshound/internal/app"
	"newshound/internal/config"
	"newshound/internal/logger"
	"newshound/internal/metrics"
	"newshound/internal/schedule"
	"newshound/internal/timeutil"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "path to config.yaml")
	once := flag.Bool("once", false, "run the pipeline once and exit, ignoring the scheduler")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	logger.Init(cfg.Debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	if cfg.Monitor.Enabled || os.Getenv("ENABLE_HTTP_MONITORING") == "true" {
		go startMonitoringServer(cfg.Monitor.Addr)
	}

	schedulerCfg := cfg.Scheduler
	if *once {
		schedulerCfg.Enabled = false
	}
	scheduler, err := schedule.New(schedulerCfg, timeutil.NewHelper(cfg.Timezone))
	if err != nil {
		slog.Error("scheduler config invalid", "error", err)
		os.Exit(1)
	}

	if err := scheduler.Run(ctx, application.RunOnce); err != nil && err != context.Canceled {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func startMonitoringServer(addr string) {
	if addr == "" {
		addr = ":8080"
		if port := os.Getenv("MONITORING_PORT"); port != "" {
			addr = ":" + port
		}
	}

	http.HandleFunc("/health", healthHandler)
	http.HandleFunc("/metrics", metricsHandler)

	slog.Info("monitoring server listening", "addr", addr)
	if err := http.ListenAndServe(addr, nil); err != nil {
		slog.Error("monitoring server error", "error", err)
	}
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	stats := metrics.Global.GetStats()

	status := "ok"
	if !stats["is_healthy"].(bool) {
		status = "error"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	response := map[string]interface{}{
		"status":     status,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

func metricsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(metrics.Global.GetStats())
}
