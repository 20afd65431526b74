package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/IDASLab/InTec-Framework/internal/config"
	"github.com/IDASLab/InTec-Framework/internal/logger"
	"github.com/IDASLab/InTec-Framework/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zapLogger, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, "edge-analysis")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting edge analysis pipeline",
		zap.String("client_id", cfg.ClientID),
		zap.String("sensor_broker", cfg.Sensor.Broker.URL()),
		zap.String("cloud_broker", cfg.Cloud.Broker.URL()),
	)

	// 创建服务
	edgeService, err := service.NewEdgeService(cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create edge service", zap.Error(err))
	}

	// 启动服务
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := edgeService.Start(ctx); err != nil {
		zapLogger.Fatal("Failed to start edge service", zap.Error(err))
	}

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭：给进行中的同步周期留出收尾时间
	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer stopCancel()
	if err := edgeService.Stop(stopCtx); err != nil {
		zapLogger.Error("Error during shutdown", zap.Error(err))
	}

	zapLogger.Info("Service stopped")
}
