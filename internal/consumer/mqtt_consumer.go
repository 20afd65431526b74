package consumer

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/IDASLab/InTec-Framework/internal/models"
	"github.com/IDASLab/InTec-Framework/internal/pipeline"
	"github.com/IDASLab/InTec-Framework/internal/redisutil"
	"github.com/IDASLab/InTec-Framework/internal/repository"
)

// Router 传感器消息入口
// 每条消息顺序经过：解码 → 设备标记 → 推理 → 校验 → 入库 → 实时流转发
// 传输层一次只投递一条消息，各阶段的失败只影响当前消息
type Router struct {
	predictor  *pipeline.Predictor  // nil表示推理阶段禁用
	validator  *pipeline.Validator  // nil表示校验阶段禁用
	store      repository.RecordStore
	liveStream *redisutil.RecordStream // nil表示实时流禁用
	logger     *zap.Logger

	// 已知设备集合：仅用于一次性的新设备通告
	mu      sync.Mutex
	devices map[string]struct{}
}

// NewRouter 创建消息路由器
func NewRouter(
	predictor *pipeline.Predictor,
	validator *pipeline.Validator,
	store repository.RecordStore,
	liveStream *redisutil.RecordStream,
	logger *zap.Logger,
) *Router {
	return &Router{
		predictor:  predictor,
		validator:  validator,
		store:      store,
		liveStream: liveStream,
		logger:     logger,
		devices:    make(map[string]struct{}),
	}
}

// HandleMessage 处理一条MQTT消息
func (r *Router) HandleMessage(topic string, payload []byte) error {
	// 1. 解码：非JSON负载包装为raw_data透传形态后按损坏数据丢弃，不重试
	var msg models.InboundMessage
	if trimmed := strings.TrimSpace(string(payload)); strings.HasPrefix(trimmed, "{") {
		if err := json.Unmarshal(payload, &msg); err != nil {
			r.logger.Warn("Failed to decode message payload",
				zap.String("topic", topic),
				zap.Error(err),
			)
			msg = models.InboundMessage{RawData: string(payload)}
		}
	} else {
		msg = models.InboundMessage{RawData: string(payload)}
	}
	if len(msg.Data) == 0 {
		r.logger.Warn("Discarding message without sample data",
			zap.String("topic", topic),
			zap.Int("payload_size", len(payload)),
		)
		return nil
	}

	// 2. 设备标记与一次性新设备通告
	device := msg.Device
	if device == "" {
		device = models.UnknownDevice
	}
	r.announceDevice(device)

	record := &models.Record{
		RecordID:   uuid.NewString(),
		DeviceID:   device,
		RecordedAt: parseRecordedAt(msg.Date),
		Window:     msg.Data,
		Label:      msg.Label,
		Validation: models.ValidationUnchecked,
		Processed:  false,
	}

	// 3. 推理阶段：失败不影响后续阶段
	if r.predictor != nil {
		if label, ok := r.predictor.Predict(msg.Data); ok {
			record.Label = &label
		}
	}

	// 4. 校验阶段：未通过的窗口在入库前丢弃
	if r.validator != nil {
		rows, err := msg.Data.SampleRows()
		if err != nil {
			r.logger.Error("Invalid window data, discarding message",
				zap.String("device", device),
				zap.Error(err),
			)
			return nil
		}
		if r.validator.Validate(rows) != pipeline.VerdictPass {
			r.logger.Warn("Window failed validation and was discarded",
				zap.String("device", device),
			)
			return nil
		}
		record.Validation = models.ValidationChecked
		modelName := r.validator.ModelName()
		record.OutlierModel = &modelName
	}

	// 5. 入库：失败只记录日志，存储边为至多一次
	ctx := context.Background()
	if err := r.store.Insert(ctx, record); err != nil {
		r.logger.Error("Failed to store record",
			zap.String("device", device),
			zap.Error(err),
		)
		return nil
	}

	r.logger.Debug("Record stored",
		zap.String("record_id", record.RecordID),
		zap.String("device", device),
		zap.String("validation", record.Validation),
	)

	// 6. 实时流转发（可选，失败不影响主流程）
	if r.liveStream != nil {
		if err := r.liveStream.Publish(ctx, record); err != nil {
			r.logger.Error("Failed to publish record to live stream", zap.Error(err))
		}
	}

	return nil
}

// announceDevice 首次见到设备时输出一次通告
func (r *Router) announceDevice(device string) {
	r.mu.Lock()
	_, known := r.devices[device]
	if !known {
		r.devices[device] = struct{}{}
	}
	r.mu.Unlock()

	if !known {
		r.logger.Info("New sensor started publishing data",
			zap.String("device", device),
		)
	}
}

func parseRecordedAt(date string) time.Time {
	if date == "" {
		return time.Now().UTC()
	}
	// 传感器侧发送 "2006-01-02 15:04:05.999999" 形式的本地时间串
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999",
		"2006-01-02 15:04:05",
		time.RFC3339,
	} {
		if t, err := time.Parse(layout, date); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}
