package pipeline

import (
	"go.uber.org/zap"

	"github.com/IDASLab/InTec-Framework/internal/models"
	"github.com/IDASLab/InTec-Framework/internal/scorer"
)

// Predictor 本地活动推理阶段
// 流程：缩放 → 缩放域异常门控 → 降维 → 分类 → 取概率最大的类别
// 门控与路由器的校验阶段算法相同，但作用于缩放后的表示，两者互不影响
type Predictor struct {
	scaler     scorer.Scaler
	gate       *Validator
	reducer    *Reducer
	classifier scorer.Classifier
	logger     *zap.Logger
}

// NewPredictor 创建推理阶段
func NewPredictor(
	scaler scorer.Scaler,
	gate *Validator,
	reducer *Reducer,
	classifier scorer.Classifier,
	logger *zap.Logger,
) *Predictor {
	return &Predictor{
		scaler:     scaler,
		gate:       gate,
		reducer:    reducer,
		classifier: classifier,
		logger:     logger,
	}
}

// Predict 对窗口数据执行推理
// 返回1起始的活动标签（0保留给空活动类）；门控拒绝或任一步出错时返回(0, false)
func (p *Predictor) Predict(data models.WindowData) (int, bool) {
	rows, err := data.SampleRows()
	if err != nil {
		p.logger.Error("Invalid window data for inference", zap.Error(err))
		return 0, false
	}

	// 1. 缩放
	scaled, err := p.scaler.Transform(rows)
	if err != nil {
		p.logger.Error("Failed to scale window for inference", zap.Error(err))
		return 0, false
	}

	// 2. 缩放域异常门控
	if p.gate.Validate(scaled) != VerdictPass {
		p.logger.Debug("Inference gate rejected window, skipping prediction")
		return 0, false
	}

	// 3. 降维
	reduced, err := p.reducer.Reduce(scaled)
	if err != nil {
		p.logger.Error("Failed to reduce window for inference", zap.Error(err))
		return 0, false
	}

	// 4. 分类
	probs, err := p.classifier.Probabilities(reduced)
	if err != nil {
		p.logger.Error("Inference prediction failed", zap.Error(err))
		return 0, false
	}
	if len(probs) == 0 {
		p.logger.Error("Classifier returned empty probability vector")
		return 0, false
	}

	label := argmax(probs) + 1
	p.logger.Info("Inference completed", zap.Int("label", label))
	return label, true
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
