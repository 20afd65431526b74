package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/IDASLab/InTec-Framework/internal/scorer"
)

// Reducer 降维阶段
// 两种降维策略（线性投影、学习得到的编码器）在加载时选定，此处行为完全一致
type Reducer struct {
	model  scorer.Reducer
	logger *zap.Logger
}

// NewReducer 创建降维阶段，model为nil表示该阶段不可用
func NewReducer(model scorer.Reducer, logger *zap.Logger) *Reducer {
	return &Reducer{
		model:  model,
		logger: logger,
	}
}

// Enabled 降维模型是否已加载
func (r *Reducer) Enabled() bool {
	return r.model != nil
}

// Reduce 将窗口的样本行映射为低维行
func (r *Reducer) Reduce(rows [][]float64) ([][]float64, error) {
	if r.model == nil {
		return nil, fmt.Errorf("reduction model is not loaded")
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty reduction input")
	}

	reduced, err := r.model.Transform(rows)
	if err != nil {
		return nil, fmt.Errorf("reduction failed: %w", err)
	}
	return reduced, nil
}
