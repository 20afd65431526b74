package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Edge_UB01", cfg.ClientID)
	assert.Equal(t, 25, cfg.WindowSize)
	assert.False(t, cfg.Inference.Enabled)
	assert.True(t, cfg.Outlier.Enabled)
	assert.Equal(t, "IsolationForest", cfg.Outlier.Model)
	assert.Equal(t, 80, cfg.Outlier.DropRate)
	assert.Equal(t, "PCA", cfg.Reduction.Model)
	assert.Equal(t, "prediction", cfg.Sensor.Topic)
	assert.Equal(t, "cloud/training_data", cfg.Cloud.TrainingTopic)
	assert.Equal(t, time.Minute, cfg.SyncPeriod)
	assert.Equal(t, "sensor_records", cfg.Database.Table)
	assert.False(t, cfg.Redis.Enabled)

	// 双端客户端标识从CLIENT_ID派生
	assert.Equal(t, "Edge_UB01_Subscriber", cfg.Sensor.Broker.ClientID)
	assert.Equal(t, "Edge_UB01_Publisher", cfg.Cloud.Broker.ClientID)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CLIENT_ID", "Edge_Test")
	t.Setenv("SLIDING_WINDOW_SIZE", "50")
	t.Setenv("OUTLIER_ENABLE", "false")
	t.Setenv("REDUCTION_MODEL", "AE")
	t.Setenv("CLOUD_SYNC_PERIOD", "5")
	t.Setenv("SENSOR_MQTT_BROKER", "sensor-broker")
	t.Setenv("SENSOR_MQTT_PORT", "8883")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "Edge_Test", cfg.ClientID)
	assert.Equal(t, 50, cfg.WindowSize)
	assert.False(t, cfg.Outlier.Enabled)
	assert.Equal(t, "AE", cfg.Reduction.Model)
	assert.Equal(t, 5*time.Minute, cfg.SyncPeriod)
	assert.Equal(t, "tcp://sensor-broker:8883", cfg.Sensor.Broker.URL())
}

func TestLoad_InvalidWindowSize(t *testing.T) {
	t.Setenv("SLIDING_WINDOW_SIZE", "-1")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_InvalidDropRate(t *testing.T) {
	t.Setenv("OUTLIER_DROP_RATE", "150")

	_, err := Load()
	require.Error(t, err)
}
