package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"safeindustech-ingest/internal/config"
	"safeindustech-ingest/internal/service"
	"safeindustech-ingest/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "safeindustech-ingest")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting safeindustech-ingest service",
		zap.String("mqtt_broker", cfg.MQTT.BrokerURL()),
		zap.String("topic", cfg.Ingest.Topic),
		zap.Float64("threshold", cfg.Ingest.Threshold),
	)

	// 创建服务
	ingestService, err := service.NewIngestService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create ingest service", zap.Error(err))
	}

	// 启动服务（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serviceErrChan := make(chan error, 1)
	go func() {
		if err := ingestService.Start(ctx); err != nil {
			serviceErrChan <- err
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		zapLogger.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
		cancel()
	case err := <-serviceErrChan:
		zapLogger.Error("Service error", zap.Error(err))
		cancel()
	}

	if err := ingestService.Stop(context.Background()); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}
}
