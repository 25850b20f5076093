package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agri-platform/internal/app"
	"agri-platform/internal/config"
	"agri-platform/internal/handlers"
	"agri-platform/internal/insight"
	"agri-platform/internal/llm"
	"agri-platform/internal/services"
	"agri-platform/internal/voice"
	"agri-platform/pkg/logging"
	"agri-platform/pkg/metrics"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.ValidateForServer(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "agri-api")

	ctx := context.Background()
	logger.Info(ctx, "[STARTUP] Starting agricultural insights API server", logging.Fields{
		"version":     app.Version,
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_enabled":  cfg.Database.Enabled,
		"model":       cfg.LLM.Model,
	})

	metricsCollector := metrics.NewCollector("agri_platform")

	db, repo, err := app.OpenRepository(ctx, cfg, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to connect to database", logging.Fields{}, err)
	}
	if db != nil {
		defer db.Close()
	}

	// A missing dataset degrades the API instead of stopping it.
	ds, err := app.LoadDataset(ctx, cfg, repo, logger, metricsCollector)
	if err != nil {
		logger.Warn(ctx, "[STARTUP_NO_DATASET] Merged dataset unavailable, serving without data", logging.Fields{
			"path":  cfg.Data.Path(cfg.Data.Merged),
			"error": err.Error(),
		})
		metricsCollector.SetDataset(false, 0)
		ds = nil
	}

	insightOpts, err := app.InsightOptions(cfg)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Invalid insight options", logging.Fields{}, err)
	}
	var analyzer *insight.Analyzer
	if ds != nil {
		analyzer = insight.NewAnalyzer(ds, insightOpts)
	}

	gen, err := app.NewGenerator(ctx, cfg, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to create LLM client", logging.Fields{}, err)
	}
	defer gen.Close()

	explorer := services.NewExplorerService(ds, analyzer, repo, logger, metricsCollector)
	qa := services.NewQAService(analyzer, gen, cfg.LLM.Timeout, logger, metricsCollector)

	var assistant *voice.Assistant
	if cfg.Voice.Enabled {
		var transcriber llm.Transcriber = gen
		var synth voice.Synthesizer
		if cs, err := voice.NewCommandSynthesizer(cfg.Voice.TTSCommand, cfg.Voice.TTSMime); err != nil {
			logger.Warn(ctx, "[STARTUP_NO_TTS] Text to speech unavailable", logging.Fields{
				"command": cfg.Voice.TTSCommand,
				"error":   err.Error(),
			})
		} else {
			synth = cs
		}
		assistant = voice.NewAssistant(transcriber, synth, voice.NewCache(cfg.Voice.CacheSize), cfg.LLM.Timeout)
		caps := assistant.Capabilities()
		logger.Info(ctx, "[STARTUP_VOICE] Voice features detected", logging.Fields{
			"speech_to_text": caps.SpeechToText,
			"text_to_speech": caps.TextToSpeech,
			"engine":         caps.Engine,
		})
	}

	apiHandler := handlers.NewAPIHandler(explorer, qa, assistant, cfg.Voice.MaxUpload, logger, metricsCollector)
	chartHandler := handlers.NewChartHandler(explorer, logger, metricsCollector)
	dashboardHandler := handlers.NewDashboardHandler(explorer, assistant, logger, metricsCollector)
	router := handlers.NewRouter(apiHandler, chartHandler, dashboardHandler, logger, metricsCollector)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal(ctx, "[SERVER_ERROR] Server failed", logging.Fields{}, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server forced to shutdown", logging.Fields{}, err)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
