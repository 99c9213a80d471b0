package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Ed2902/ColectorAW/internal/aggregator"
	"github.com/Ed2902/ColectorAW/internal/client"
	"github.com/Ed2902/ColectorAW/internal/config"
	"github.com/Ed2902/ColectorAW/internal/delivery"
	"github.com/Ed2902/ColectorAW/internal/history"
	"github.com/Ed2902/ColectorAW/internal/logger"
	"github.com/Ed2902/ColectorAW/internal/pending"
	"github.com/Ed2902/ColectorAW/internal/service"

	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/local.yaml", "Path to configuration file")
	sendToday := flag.Bool("send-today", false, "Send today's report and exit")
	sendYesterday := flag.Bool("send-yesterday", false, "Send yesterday's full report and exit")
	resend := flag.Bool("resend", false, "Resend all pending submissions and exit")
	photoPath := flag.String("photo", "", "Submit an attendance photo and exit")
	tipo := flag.String("tipo", "entrada", "Attendance type: entrada or salida")
	umbral := flag.Float64("umbral", -1, "Face match threshold for -photo (negative uses the configured default)")
	historyN := flag.Int("history", 0, "Show the N most recent submission attempts and exit")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting ColectorAW",
		zap.String("env", cfg.Env),
		zap.String("config_path", *configPath),
	)

	if err := cfg.Storage.EnsureDirs(); err != nil {
		log.Fatal("Failed to prepare storage directories", zap.Error(err))
	}

	// Submission history is an audit aid, not a requirement; run without it
	// if the database cannot be opened.
	hist, err := history.New(cfg.Storage.HistoryPath(), log.Logger)
	if err != nil {
		log.Warn("Submission history unavailable", zap.Error(err))
		hist = nil
	} else {
		defer func() {
			if err := hist.Close(); err != nil {
				log.Error("Failed to close history database", zap.Error(err))
			}
		}()
	}

	awClient := client.New(cfg.Tracker, log.Logger)
	agg := aggregator.New(awClient, cfg.Report, log.Logger)
	reportQueue := pending.NewReportQueue(cfg.Storage.PendingDir(), log.Logger)
	photoQueue := pending.NewPhotoQueue(cfg.Storage.PendingPhotosDir(), cfg.Storage.PendingPhotoFilesDir(), log.Logger)
	deliverer := delivery.New(cfg, reportQueue, photoQueue, hist, log.Logger)
	svc := service.New(agg, deliverer, cfg, log.Logger)

	switch {
	case *sendToday:
		os.Exit(runSendReport(svc, log, service.WindowToday, *tipo))
	case *sendYesterday:
		os.Exit(runSendReport(svc, log, service.WindowYesterday, *tipo))
	case *photoPath != "":
		var threshold *float64
		if *umbral >= 0 {
			threshold = umbral
		}
		os.Exit(runMarkAttendance(svc, log, *photoPath, *tipo, threshold))
	case *resend:
		os.Exit(runResend(svc, log))
	case *historyN > 0:
		os.Exit(runHistory(hist, log, *historyN))
	}

	// Long-running mode: scheduled resend sweeps, optional tray menu
	svc.Start()

	if cfg.Tray.Enabled {
		runTray(svc, log)
	} else {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	log.Info("Shutting down ColectorAW...")
	svc.Stop()

	if hist != nil {
		if err := hist.Cleanup(90 * 24 * time.Hour); err != nil {
			log.Error("Failed to cleanup submission history", zap.Error(err))
		}
	}

	log.Info("ColectorAW stopped")
}

func runSendReport(svc *service.CollectorService, log *logger.Logger, window service.Window, tipo string) int {
	result, err := svc.SendDailyReport(window, tipo)
	if err != nil {
		log.Error("Report submission failed", zap.Error(err))
		return 1
	}
	log.Info("Report submission finished",
		zap.Bool("success", result.Success),
		zap.String("message", result.Message),
	)
	if !result.Success {
		return 1
	}
	return 0
}

func runMarkAttendance(svc *service.CollectorService, log *logger.Logger, photoPath, tipo string, umbral *float64) int {
	result, err := svc.MarkAttendance(photoPath, tipo, umbral)
	if err != nil {
		log.Error("Attendance marking failed", zap.Error(err))
		return 1
	}
	log.Info("Attendance marking finished",
		zap.String("correlation_id", result.CorrelationID),
		zap.Bool("photo_success", result.Photo.Success),
		zap.String("photo_message", result.Photo.Message),
	)
	if result.Report != nil {
		log.Info("Accompanying report",
			zap.Bool("success", result.Report.Success),
			zap.String("message", result.Report.Message),
		)
	}
	if !result.Photo.Success || (result.Report != nil && !result.Report.Success) {
		return 1
	}
	return 0
}

func runHistory(hist *history.Store, log *logger.Logger, limit int) int {
	if hist == nil {
		log.Error("Submission history unavailable")
		return 1
	}
	entries, err := hist.Recent(limit)
	if err != nil {
		log.Error("Failed to read submission history", zap.Error(err))
		return 1
	}
	for _, e := range entries {
		fmt.Printf("%s  %-6s  resend=%-5t  success=%-5t  status=%-3d  %s  %s\n",
			e.CreatedAt.Format("2006-01-02 15:04:05"),
			e.Kind, e.Resend, e.Success, e.StatusCode, e.Endpoint, e.Message)
	}
	log.Info("Submission history listed", zap.Int("entries", len(entries)))
	return 0
}

func runResend(svc *service.CollectorService, log *logger.Logger) int {
	results, err := svc.ResendPending()
	if err != nil {
		log.Error("Resend sweep failed", zap.Error(err))
		return 1
	}
	failed := 0
	for _, r := range results {
		if r.Success {
			log.Info("Pending entry resent", zap.String("entry", r.Entry), zap.String("message", r.Message))
		} else {
			failed++
			log.Warn("Pending entry still failing", zap.String("entry", r.Entry), zap.String("message", r.Message))
		}
	}
	log.Info("Resend sweep finished",
		zap.Int("total", len(results)),
		zap.Int("failed", failed),
	)
	if failed > 0 {
		return 1
	}
	return 0
}
