package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/app"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/config"
	"github.com/eltadmin/LinuxCloudReportServer-sub001/internal/logger"
)

func main() {
	logger.Init()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialize app", map[string]any{
			"error": err.Error(),
		})
	}

	go func() {
		if err := application.Run(); err != nil {
			logger.Fatal("server failed", map[string]any{
				"error": err.Error(),
			})
		}
	}()

	logger.Info("report server started", map[string]any{
		"http_port": cfg.HTTPPort,
		"tcp_port":  cfg.TCPPort,
	})

	<-ctx.Done() // wait for Ctrl+C

	logger.Info("shutdown signal received", nil)

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("graceful shutdown failed", map[string]any{
			"error": err.Error(),
		})
	}

	logger.Info("report server stopped cleanly", nil)
}
