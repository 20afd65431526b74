package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/IDASLab/InTec-Framework/internal/config"
	"github.com/IDASLab/InTec-Framework/internal/logger"
	mqttclient "github.com/IDASLab/InTec-Framework/internal/mqtt"
	"github.com/IDASLab/InTec-Framework/internal/scorer"
	"github.com/IDASLab/InTec-Framework/internal/sensor"
)

func main() {
	name := getEnv("SENSOR_NAME", "sensor01")
	simCfg := &sensor.Config{
		Name:         name,
		DataDir:      getEnv("SENSOR_DATA_DIR", "data"),
		Topic:        getEnv("SENSOR_MQTT_TOPIC", "prediction"),
		WindowSize:   getEnvInt("SLIDING_WINDOW_SIZE", 25),
		SamplingRate: getEnvInt("SENSOR_SAMPLING_RATE", 50),
		WorkTime:     time.Duration(getEnvInt("SENSOR_WORK_TIME", 60)) * time.Minute,
	}
	modelDir := getEnv("MODEL_DIR", "model")

	zapLogger, err := logger.NewLogger(getEnv("LOG_LEVEL", "info"), getEnv("LOG_FORMAT", "json"), "edge-sensor")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("Starting sensor simulator",
		zap.String("device", simCfg.Name),
		zap.String("data_dir", simCfg.DataDir),
		zap.String("topic", simCfg.Topic),
		zap.Int("window_size", simCfg.WindowSize),
		zap.Int("sampling_rate", simCfg.SamplingRate),
	)

	// 模拟器的缩放器与分类器是启动必需项，缺失直接退出
	scaler, err := scorer.LoadScaler(modelDir)
	if err != nil {
		zapLogger.Fatal("Failed to load scaler model", zap.Error(err))
	}
	classifier, err := scorer.LoadClassifier(modelDir, getEnv("SENSOR_MODEL", "model"))
	if err != nil {
		zapLogger.Fatal("Failed to load inference model", zap.Error(err))
	}

	brokerCfg := &config.BrokerConfig{
		Host:     getEnv("SENSOR_MQTT_BROKER", "localhost"),
		Port:     getEnvInt("SENSOR_MQTT_PORT", 1883),
		ClientID: name,
		QoS:      1,
	}
	client := mqttclient.NewClient(brokerCfg, zapLogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		zapLogger.Info("Received signal, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := client.ConnectWithRetry(ctx); err != nil {
		zapLogger.Fatal("Failed to connect to MQTT broker", zap.Error(err))
	}
	defer client.Disconnect()

	simulator, err := sensor.NewSimulator(simCfg, client, scaler, classifier, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create simulator", zap.Error(err))
	}

	if err := simulator.Run(ctx); err != nil {
		zapLogger.Fatal("Simulator failed", zap.Error(err))
	}

	zapLogger.Info("Sensor simulator stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
