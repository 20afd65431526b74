// Package uplink 周期性地将未转发记录降维、打包并发布到云端训练主题
package uplink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/IDASLab/InTec-Framework/internal/models"
	"github.com/IDASLab/InTec-Framework/internal/pipeline"
	"github.com/IDASLab/InTec-Framework/internal/repository"
)

// Publisher 上行消息发布接口
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Synchronizer 周期同步任务
// 单个循环串行执行同步周期，周期之间为纯时间等待，只能被进程关闭取消；
// 进行中的周期不会被中途打断，避免留下半套用的processed标志
type Synchronizer struct {
	store     repository.RecordStore
	reducer   *pipeline.Reducer
	publisher Publisher
	topic     string
	edgeID    string
	period    time.Duration
	qos       byte
	logger    *zap.Logger
}

// NewSynchronizer 创建同步任务
func NewSynchronizer(
	store repository.RecordStore,
	reducer *pipeline.Reducer,
	publisher Publisher,
	topic string,
	edgeID string,
	period time.Duration,
	qos byte,
	logger *zap.Logger,
) *Synchronizer {
	return &Synchronizer{
		store:     store,
		reducer:   reducer,
		publisher: publisher,
		topic:     topic,
		edgeID:    edgeID,
		period:    period,
		qos:       qos,
		logger:    logger,
	}
}

// Start 启动周期循环，直到上下文取消
func (s *Synchronizer) Start(ctx context.Context) {
	s.logger.Info("Synchronizer started",
		zap.Duration("period", s.period),
		zap.String("topic", s.topic),
	)

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Synchronizer stopped")
			return
		case <-ticker.C:
			// 进行中的周期不随ctx中断，避免半套用的标志更新
			if err := s.RunCycle(context.Background()); err != nil {
				// 周期级失败：整批下个周期重试，接受至少一次的重复
				s.logger.Error("Sync cycle failed, batch will be retried next period", zap.Error(err))
			}
		}
	}
}

// RunCycle 执行一个同步周期：取数 → 降维 → 发布 → 标记
// 发布失败时在标记之前中止，保证整批在下个周期重试而不是静默丢失
func (s *Synchronizer) RunCycle(ctx context.Context) error {
	since := time.Now().UTC().Add(-s.period)

	records, err := s.store.FetchUnprocessed(ctx, since)
	if err != nil {
		return fmt.Errorf("failed to fetch unprocessed records: %w", err)
	}
	if len(records) == 0 {
		s.logger.Debug("No unprocessed records found, skipping sync cycle")
		return nil
	}

	var (
		entries      []models.BatchEntry
		processedIDs []string
		first, last  time.Time
	)

	for _, record := range records {
		if !record.RecordedAt.IsZero() {
			if first.IsZero() || record.RecordedAt.Before(first) {
				first = record.RecordedAt
			}
			if last.IsZero() || record.RecordedAt.After(last) {
				last = record.RecordedAt
			}
		}

		// 缺失窗口数据的记录跳过且不参与标记，由时间窗口自然淘汰
		if len(record.Window) == 0 {
			s.logger.Warn("Skipping record with missing window data",
				zap.String("record_id", record.RecordID),
			)
			continue
		}

		rows, err := record.Window.SampleRows()
		if err != nil {
			// 数据形状损坏是确定性失败，重试不会成功：跳过该条但仍参与标记
			s.logger.Warn("Skipping record with corrupt window data",
				zap.String("record_id", record.RecordID),
				zap.Error(err),
			)
			processedIDs = append(processedIDs, record.RecordID)
			continue
		}

		reduced, err := s.reducer.Reduce(rows)
		if err != nil {
			s.logger.Warn("Skipping record that failed reduction",
				zap.String("record_id", record.RecordID),
				zap.Error(err),
			)
			processedIDs = append(processedIDs, record.RecordID)
			continue
		}

		label := models.UnlabeledSentinel
		if record.Label != nil {
			label = *record.Label
		}
		entries = append(entries, models.BatchEntry{
			Features: reduced,
			Label:    label,
		})
		processedIDs = append(processedIDs, record.RecordID)
	}

	if len(entries) == 0 {
		s.logger.Info("No records survived reduction, skipping publication",
			zap.Int("fetched", len(records)),
		)
		return nil
	}

	batch := models.TrainingBatch{
		EdgeID: s.edgeID,
		From:   first.Format(time.RFC3339),
		To:     last.Format(time.RFC3339),
		Data:   entries,
	}

	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal training batch: %w", err)
	}

	if err := s.publisher.Publish(s.topic, s.qos, false, payload); err != nil {
		return fmt.Errorf("failed to publish training batch: %w", err)
	}

	s.logger.Info("Published training batch",
		zap.Int("records", len(entries)),
		zap.String("from", batch.From),
		zap.String("to", batch.To),
		zap.String("topic", s.topic),
	)

	if err := s.store.MarkProcessed(ctx, processedIDs); err != nil {
		return fmt.Errorf("failed to mark records processed: %w", err)
	}

	return nil
}
