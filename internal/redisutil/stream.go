// Package redisutil Redis客户端与实时记录流
package redisutil

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/IDASLab/InTec-Framework/internal/models"
)

// NewClient 创建Redis客户端
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Ping 测试Redis连接
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// Close 关闭Redis连接
func Close(client *redis.Client) error {
	return client.Close()
}

// RecordStream 已入库记录的实时流出口，供边缘本地消费者订阅
type RecordStream struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewRecordStream 创建记录流出口
func NewRecordStream(client *redis.Client, stream string, logger *zap.Logger) *RecordStream {
	return &RecordStream{
		client: client,
		stream: stream,
		logger: logger,
	}
}

// Publish 将记录摘要以XADD写入流
func (s *RecordStream) Publish(ctx context.Context, record *models.Record) error {
	summary := map[string]interface{}{
		"record_id":   record.RecordID,
		"device_id":   record.DeviceID,
		"recorded_at": record.RecordedAt.Format(time.RFC3339),
		"validation":  record.Validation,
	}
	if record.Label != nil {
		summary["label"] = *record.Label
	}

	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal record summary: %w", err)
	}

	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.stream,
		Values: map[string]interface{}{
			"data":      string(payload),
			"timestamp": time.Now().Unix(),
		},
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to stream %s: %w", s.stream, err)
	}

	s.logger.Debug("Published record to live stream",
		zap.String("stream", s.stream),
		zap.String("stream_id", id),
		zap.String("record_id", record.RecordID),
	)
	return nil
}
