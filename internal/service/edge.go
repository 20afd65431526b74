package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/IDASLab/InTec-Framework/internal/config"
	"github.com/IDASLab/InTec-Framework/internal/consumer"
	"github.com/IDASLab/InTec-Framework/internal/database"
	mqttclient "github.com/IDASLab/InTec-Framework/internal/mqtt"
	"github.com/IDASLab/InTec-Framework/internal/pipeline"
	"github.com/IDASLab/InTec-Framework/internal/redisutil"
	"github.com/IDASLab/InTec-Framework/internal/repository"
	"github.com/IDASLab/InTec-Framework/internal/scorer"
	"github.com/IDASLab/InTec-Framework/internal/uplink"
)

// EdgeService 边缘分析服务
type EdgeService struct {
	config       *config.Config
	logger       *zap.Logger
	db           *sql.DB
	redis        *redis.Client
	sensorClient *mqttclient.Client
	cloudClient  *mqttclient.Client
	router       *consumer.Router
	synchronizer *uplink.Synchronizer
	syncDone     chan struct{}
}

// NewEdgeService 创建边缘分析服务
// 模型文件缺失时对应阶段被禁用并降级运行，不阻止服务启动
func NewEdgeService(cfg *config.Config, logger *zap.Logger) (*EdgeService, error) {
	// 初始化数据库
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// 初始化Redis（可选）
	var redisClient *redis.Client
	var liveStream *redisutil.RecordStream
	if cfg.Redis.Enabled {
		redisClient = redisutil.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := redisutil.Ping(context.Background(), redisClient); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		liveStream = redisutil.NewRecordStream(redisClient, cfg.Redis.Stream, logger)
	}

	// 加载异常检测模型
	var detector scorer.OutlierDetector
	if cfg.Outlier.Enabled {
		detector, err = scorer.LoadOutlierDetector(cfg.ModelDir, cfg.Outlier.Model)
		if err != nil {
			logger.Error("Outlier model unavailable, validation stage disabled",
				zap.String("model", cfg.Outlier.Model),
				zap.Error(err),
			)
			detector = nil
		}
	} else {
		logger.Warn("Outlier detection module is disabled")
	}

	// 加载降维模型
	var reductionModel scorer.Reducer
	if cfg.Reduction.Enabled {
		reductionModel, err = scorer.LoadReducer(cfg.ModelDir, cfg.Reduction.Model)
		if err != nil {
			logger.Error("Reduction model unavailable, reduction stage disabled",
				zap.String("model", cfg.Reduction.Model),
				zap.Error(err),
			)
			reductionModel = nil
		}
	} else {
		logger.Warn("Dimensionality reduction module is disabled")
	}
	reducer := pipeline.NewReducer(reductionModel, logger)

	// 构建校验阶段
	var validator *pipeline.Validator
	if detector != nil {
		validator = pipeline.NewValidator(detector, cfg.WindowSize, cfg.Outlier.DropRate, logger)
		logger.Info("Outlier detection module enabled",
			zap.String("model", cfg.Outlier.Model),
			zap.Int("drop_rate", cfg.Outlier.DropRate),
		)
	}

	// 构建推理阶段：依赖缩放器、异常门控、降维器与分类器，缺一则禁用
	var predictor *pipeline.Predictor
	if cfg.Inference.Enabled {
		predictor = buildPredictor(cfg, detector, reducer, logger)
	} else {
		logger.Warn("Inference module is disabled")
	}

	// 创建Repository与Router
	recordStore := repository.NewPostgresRecordStore(db, cfg.Database.Table, logger)
	router := consumer.NewRouter(predictor, validator, recordStore, liveStream, logger)

	// 创建MQTT客户端
	sensorClient := mqttclient.NewClient(&cfg.Sensor.Broker, logger)
	cloudClient := mqttclient.NewClient(&cfg.Cloud.Broker, logger)

	// 创建同步任务
	synchronizer := uplink.NewSynchronizer(
		recordStore,
		reducer,
		cloudClient,
		cfg.Cloud.TrainingTopic,
		cfg.ClientID,
		cfg.SyncPeriod,
		cfg.Cloud.Broker.QoS,
		logger,
	)

	return &EdgeService{
		config:       cfg,
		logger:       logger,
		db:           db,
		redis:        redisClient,
		sensorClient: sensorClient,
		cloudClient:  cloudClient,
		router:       router,
		synchronizer: synchronizer,
		syncDone:     make(chan struct{}),
	}, nil
}

// buildPredictor 组装推理阶段，任一依赖模型缺失时返回nil
func buildPredictor(
	cfg *config.Config,
	detector scorer.OutlierDetector,
	reducer *pipeline.Reducer,
	logger *zap.Logger,
) *pipeline.Predictor {
	scaler, err := scorer.LoadScaler(cfg.ModelDir)
	if err != nil {
		logger.Error("Scaler model unavailable, inference stage disabled", zap.Error(err))
		return nil
	}

	classifier, err := scorer.LoadClassifier(cfg.ModelDir, cfg.Inference.Model)
	if err != nil {
		logger.Error("Inference model unavailable, inference stage disabled",
			zap.String("model", cfg.Inference.Model),
			zap.Error(err),
		)
		return nil
	}

	if detector == nil {
		logger.Error("Inference requires the outlier model, inference stage disabled")
		return nil
	}
	if !reducer.Enabled() {
		logger.Error("Inference requires the reduction model, inference stage disabled")
		return nil
	}

	gate := pipeline.NewValidator(detector, cfg.WindowSize, cfg.Outlier.DropRate, logger)
	logger.Info("Inference module enabled", zap.String("model", cfg.Inference.Model))
	return pipeline.NewPredictor(scaler, gate, reducer, classifier, logger)
}

// Start 启动服务：连接双端代理、订阅传感器主题、启动同步循环
func (s *EdgeService) Start(ctx context.Context) error {
	s.logger.Info("Starting edge analysis service components")

	// 连接传感器侧代理（带退避重试，阻塞到成功或取消）
	if err := s.sensorClient.ConnectWithRetry(ctx); err != nil {
		return fmt.Errorf("failed to connect to sensor broker: %w", err)
	}

	// 连接云侧代理
	if err := s.cloudClient.ConnectWithRetry(ctx); err != nil {
		return fmt.Errorf("failed to connect to cloud broker: %w", err)
	}

	// 订阅传感器数据主题
	if err := s.sensorClient.Subscribe(s.config.Sensor.Topic, s.config.Sensor.Broker.QoS, s.router.HandleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to sensor topic: %w", err)
	}

	// 启动同步循环
	go func() {
		defer close(s.syncDone)
		s.synchronizer.Start(ctx)
	}()

	s.logger.Info("Edge analysis service started successfully",
		zap.String("sensor_topic", s.config.Sensor.Topic),
		zap.String("training_topic", s.config.Cloud.TrainingTopic),
	)
	return nil
}

// Stop 停止服务：同步循环先退出，再断开传输与存储连接
func (s *EdgeService) Stop(ctx context.Context) error {
	s.logger.Info("Stopping edge analysis service")

	// 等待进行中的同步周期结束
	select {
	case <-s.syncDone:
	case <-ctx.Done():
	}

	// 停止传感器订阅
	if err := s.sensorClient.Unsubscribe(s.config.Sensor.Topic); err != nil {
		s.logger.Error("Failed to unsubscribe", zap.Error(err))
	}

	// 断开MQTT
	s.sensorClient.Disconnect()
	s.cloudClient.Disconnect()

	// 关闭Redis
	if s.redis != nil {
		redisutil.Close(s.redis)
	}

	// 关闭数据库
	if s.db != nil {
		database.Close(s.db)
	}

	s.logger.Info("Edge analysis service stopped")
	return nil
}
