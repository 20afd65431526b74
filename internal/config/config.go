package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// BrokerConfig MQTT代理配置
type BrokerConfig struct {
	Host     string
	Port     int
	ClientID string
	Username string
	Password string
	QoS      byte
}

// URL 获取代理连接地址
func (c *BrokerConfig) URL() string {
	return fmt.Sprintf("tcp://%s:%d", c.Host, c.Port)
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	Table    string
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Config 边缘分析服务配置
type Config struct {
	// 边缘节点标识
	ClientID string

	// 滑动窗口大小（每个窗口的采样数）
	WindowSize int

	// 模型参数文件目录
	ModelDir string

	// 推理模块配置
	Inference struct {
		Enabled bool
		Model   string // 可选: CNN, LSTM, CNN_LSTM, FFNN
	}

	// 异常检测模块配置
	Outlier struct {
		Enabled  bool
		Model    string // 可选: IsolationForest, EllipticEnvelope
		DropRate int    // 有效样本百分比阈值
	}

	// 降维模块配置
	Reduction struct {
		Enabled bool
		Model   string // 可选: PCA, AE
	}

	// 传感器侧MQTT代理（接收传感器数据）
	Sensor struct {
		Broker BrokerConfig
		Topic  string
	}

	// 云侧MQTT代理（发布训练数据）
	Cloud struct {
		Broker        BrokerConfig
		TrainingTopic string
	}

	// 云同步周期
	SyncPeriod time.Duration

	// 本地记录存储
	Database DatabaseConfig

	// 实时记录流（可选）
	Redis struct {
		Enabled  bool
		Addr     string
		Password string
		DB       int
		Stream   string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.ClientID = getEnv("CLIENT_ID", "Edge_UB01")
	cfg.WindowSize = getEnvInt("SLIDING_WINDOW_SIZE", 25)
	cfg.ModelDir = getEnv("MODEL_DIR", "models")

	cfg.Inference.Enabled = getEnvBool("INFERENCE_ENABLE", false)
	cfg.Inference.Model = getEnv("INFERENCE_MODEL", "CNN_LSTM")

	cfg.Outlier.Enabled = getEnvBool("OUTLIER_ENABLE", true)
	cfg.Outlier.Model = getEnv("OUTLIER_MODEL", "IsolationForest")
	cfg.Outlier.DropRate = getEnvInt("OUTLIER_DROP_RATE", 80)

	cfg.Reduction.Enabled = getEnvBool("REDUCTION_ENABLE", true)
	cfg.Reduction.Model = getEnv("REDUCTION_MODEL", "PCA")

	cfg.Sensor.Broker.Host = getEnv("SENSOR_MQTT_BROKER", "localhost")
	cfg.Sensor.Broker.Port = getEnvInt("SENSOR_MQTT_PORT", 1883)
	cfg.Sensor.Broker.ClientID = cfg.ClientID + "_Subscriber"
	cfg.Sensor.Broker.Username = getEnv("SENSOR_MQTT_USERNAME", "")
	cfg.Sensor.Broker.Password = getEnv("SENSOR_MQTT_PASSWORD", "")
	cfg.Sensor.Broker.QoS = 1
	cfg.Sensor.Topic = getEnv("SENSOR_MQTT_TOPIC", "prediction")

	cfg.Cloud.Broker.Host = getEnv("CLOUD_MQTT_BROKER", "localhost")
	cfg.Cloud.Broker.Port = getEnvInt("CLOUD_MQTT_PORT", 1883)
	cfg.Cloud.Broker.ClientID = cfg.ClientID + "_Publisher"
	cfg.Cloud.Broker.Username = getEnv("CLOUD_MQTT_USERNAME", "")
	cfg.Cloud.Broker.Password = getEnv("CLOUD_MQTT_PASSWORD", "")
	cfg.Cloud.Broker.QoS = 1
	cfg.Cloud.TrainingTopic = getEnv("TRAINING_MQTT_TOPIC", "cloud/training_data")

	// 同步周期（分钟）
	cfg.SyncPeriod = time.Duration(getEnvInt("CLOUD_SYNC_PERIOD", 1)) * time.Minute

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "edge")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.Table = getEnv("DB_TABLE", "sensor_records")

	cfg.Redis.Enabled = getEnvBool("REDIS_ENABLE", false)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)
	cfg.Redis.Stream = getEnv("REDIS_STREAM", "edge:records:stream")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	if cfg.WindowSize <= 0 {
		return nil, fmt.Errorf("invalid SLIDING_WINDOW_SIZE: %d", cfg.WindowSize)
	}
	if cfg.Outlier.DropRate < 0 || cfg.Outlier.DropRate > 100 {
		return nil, fmt.Errorf("invalid OUTLIER_DROP_RATE: %d", cfg.Outlier.DropRate)
	}

	return cfg, nil
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

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true"
	}
	return defaultValue
}
