// Package pipeline 单条消息的分析阶段：校验、降维、推理
package pipeline

import (
	"go.uber.org/zap"

	"github.com/IDASLab/InTec-Framework/internal/scorer"
)

// Verdict 窗口校验结论
type Verdict int

const (
	VerdictFail Verdict = iota
	VerdictPass
)

// Validator 基于异常检测器的窗口校验器
type Validator struct {
	detector   scorer.OutlierDetector
	windowSize int
	dropRate   int
	logger     *zap.Logger
}

// NewValidator 创建校验器
// dropRate为有效样本百分比阈值，恰好等于阈值判定为通过
func NewValidator(detector scorer.OutlierDetector, windowSize, dropRate int, logger *zap.Logger) *Validator {
	return &Validator{
		detector:   detector,
		windowSize: windowSize,
		dropRate:   dropRate,
		logger:     logger,
	}
}

// ModelName 所用异常检测模型名
func (v *Validator) ModelName() string {
	return v.detector.Name()
}

// Validate 对窗口的样本行逐行做异常判定，统计正常点比例
// 空输入或零宽行视为损坏数据，不调用检测器直接判失败
func (v *Validator) Validate(rows [][]float64) Verdict {
	if len(rows) == 0 || len(rows[0]) == 0 {
		v.logger.Warn("Empty or zero-width window, failing validation without scoring")
		return VerdictFail
	}

	predictions, err := v.detector.Predict(rows)
	if err != nil {
		v.logger.Error("Outlier detection failed", zap.Error(err))
		return VerdictFail
	}

	inliers := 0
	for _, p := range predictions {
		if p == 1 {
			inliers++
		}
	}

	// 整数比较保证恰好等于阈值时判定为通过
	if inliers*100 >= v.dropRate*v.windowSize {
		return VerdictPass
	}

	v.logger.Warn("Window failed outlier validation",
		zap.Int("inliers", inliers),
		zap.Int("window_size", v.windowSize),
		zap.Float64("valid_percent", float64(inliers)/float64(v.windowSize)*100),
		zap.Int("drop_rate", v.dropRate),
	)
	return VerdictFail
}
