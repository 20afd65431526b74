// Package sensor 传感器设备模拟器
// 回放采集好的样本文件：缩放 → 窗口累积 → 本地分类 → 发布到传感器主题
package sensor

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/IDASLab/InTec-Framework/internal/models"
	"github.com/IDASLab/InTec-Framework/internal/scorer"
	"github.com/IDASLab/InTec-Framework/internal/window"
)

// Publisher 消息发布接口
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// Config 模拟器配置
type Config struct {
	Name         string        // 设备名称
	DataDir      string        // 样本文件目录（CSV，每行23个通道值）
	Topic        string        // 发布主题
	WindowSize   int           // 窗口大小
	SamplingRate int           // 采样率（Hz）
	WorkTime     time.Duration // 总运行时长
}

// Simulator 设备模拟器
type Simulator struct {
	config     *Config
	publisher  Publisher
	scaler     scorer.Scaler
	classifier scorer.Classifier
	builder    *window.Builder
	logger     *zap.Logger
}

// NewSimulator 创建设备模拟器
func NewSimulator(
	cfg *Config,
	publisher Publisher,
	scaler scorer.Scaler,
	classifier scorer.Classifier,
	logger *zap.Logger,
) (*Simulator, error) {
	builder, err := window.NewBuilder(cfg.WindowSize)
	if err != nil {
		return nil, err
	}
	return &Simulator{
		config:     cfg,
		publisher:  publisher,
		scaler:     scaler,
		classifier: classifier,
		builder:    builder,
		logger:     logger,
	}, nil
}

// Run 循环回放样本文件直到运行时长耗尽或上下文取消
func (s *Simulator) Run(ctx context.Context) error {
	files, err := listSampleFiles(s.config.DataDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no sample files found in %s", s.config.DataDir)
	}

	deadline := time.Now().Add(s.config.WorkTime)
	interval := time.Duration(float64(s.config.WindowSize) / float64(s.config.SamplingRate) * float64(time.Second))

	for {
		for _, file := range files {
			if time.Now().After(deadline) {
				s.logger.Info("Work time elapsed, sensor stopping",
					zap.String("device", s.config.Name),
					zap.Duration("work_time", s.config.WorkTime),
				)
				return nil
			}
			select {
			case <-ctx.Done():
				return nil
			default:
			}

			rows, err := readSampleFile(file)
			if err != nil {
				s.logger.Warn("Skipping unreadable sample file",
					zap.String("file", file),
					zap.Error(err),
				)
				continue
			}

			for _, row := range rows {
				scaled, err := s.scaler.Transform([][]float64{row})
				if err != nil {
					s.logger.Warn("Skipping sample with bad shape", zap.Error(err))
					continue
				}

				completed, full := s.builder.Push(scaled[0])
				if !full {
					continue
				}

				if err := s.publishWindow(completed); err != nil {
					s.logger.Error("Failed to publish window", zap.Error(err))
				}

				// 按采样率节流
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(interval):
				}
			}
		}
	}
}

// publishWindow 对完整窗口做本地分类并发布
func (s *Simulator) publishWindow(rows [][]float64) error {
	start := time.Now()
	probs, err := s.classifier.Probabilities(rows)
	if err != nil {
		return fmt.Errorf("local inference failed: %w", err)
	}
	latency := float64(time.Since(start).Microseconds()) / 1000

	label := argmax(probs) + 1

	data, err := models.WindowDataFromRows(rows)
	if err != nil {
		return fmt.Errorf("failed to assemble window data: %w", err)
	}

	msg := models.InboundMessage{
		Device:     s.config.Name,
		Date:       time.Now().UTC().Format("2006-01-02 15:04:05.999999"),
		WindowSize: s.config.WindowSize,
		Data:       data,
		Label:      &label,
		Latency:    latency,
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := s.publisher.Publish(s.config.Topic, 1, false, payload); err != nil {
		return err
	}

	s.logger.Info("Published sensor window",
		zap.String("device", s.config.Name),
		zap.String("topic", s.config.Topic),
		zap.Int("window_size", s.config.WindowSize),
		zap.Int("label", label),
		zap.Float64("latency_ms", latency),
	)
	return nil
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

func listSampleFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data dir %s: %w", dir, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if filepath.Ext(entry.Name()) == ".csv" {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// readSampleFile 读取CSV样本文件，每行为一个样本的23个通道值
func readSampleFile(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	raw, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	rows := make([][]float64, 0, len(raw))
	for i, record := range raw {
		row := make([]float64, len(record))
		for j, field := range record {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("bad value at %s row %d col %d: %w", path, i, j, err)
			}
			row[j] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}
