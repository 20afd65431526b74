// Package scorer 加载并执行预先训练好的模型
// 所有模型在启动时从磁盘参数文件加载一次，每次调用无内部状态变更
package scorer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Scaler 仿射缩放器
type Scaler interface {
	Transform(rows [][]float64) ([][]float64, error)
}

// OutlierDetector 异常检测器
// Predict对每个样本行输出sklearn约定的±1（1为正常点，-1为异常点）
type OutlierDetector interface {
	Name() string
	Predict(rows [][]float64) ([]int, error)
}

// Reducer 降维器：将固定宽度的样本行映射为更低维的行
type Reducer interface {
	Name() string
	Transform(rows [][]float64) ([][]float64, error)
}

// Classifier 分类器：输出类别概率向量
type Classifier interface {
	Name() string
	Probabilities(rows [][]float64) ([]float64, error)
}

// modelHeader 参数文件的类型标签
type modelHeader struct {
	ModelType string `json:"model_type"`
}

func readModelFile(dir, name string) ([]byte, error) {
	path := filepath.Join(dir, name+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model file %s: %w", path, err)
	}
	return raw, nil
}

// LoadScaler 加载缩放器参数（文件名固定为 Scaler.json）
func LoadScaler(dir string) (Scaler, error) {
	raw, err := readModelFile(dir, "Scaler")
	if err != nil {
		return nil, err
	}

	var s StandardScaler
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to parse scaler parameters: %w", err)
	}
	if len(s.Mean) == 0 || len(s.Mean) != len(s.Scale) {
		return nil, fmt.Errorf("invalid scaler parameters: mean=%d scale=%d", len(s.Mean), len(s.Scale))
	}
	return &s, nil
}

// LoadOutlierDetector 按模型名加载异常检测器
// 模型类型在加载时确定一次，之后不再按调用分派
func LoadOutlierDetector(dir, name string) (OutlierDetector, error) {
	raw, err := readModelFile(dir, name)
	if err != nil {
		return nil, err
	}

	var header modelHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("failed to parse model header: %w", err)
	}

	switch header.ModelType {
	case "isolation_forest":
		var f IsolationForest
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, fmt.Errorf("failed to parse isolation forest parameters: %w", err)
		}
		f.name = name
		if len(f.Trees) == 0 || f.SubsampleSize <= 0 {
			return nil, fmt.Errorf("invalid isolation forest parameters: trees=%d subsample=%d",
				len(f.Trees), f.SubsampleSize)
		}
		return &f, nil
	case "elliptic_envelope":
		var e EllipticEnvelope
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("failed to parse elliptic envelope parameters: %w", err)
		}
		e.name = name
		if len(e.Mean) == 0 || len(e.Precision) != len(e.Mean) {
			return nil, fmt.Errorf("invalid elliptic envelope parameters")
		}
		return &e, nil
	default:
		return nil, fmt.Errorf("unsupported outlier model type: %q", header.ModelType)
	}
}

// LoadReducer 按模型名加载降维器（线性投影或学习得到的编码器）
func LoadReducer(dir, name string) (Reducer, error) {
	raw, err := readModelFile(dir, name)
	if err != nil {
		return nil, err
	}

	var header modelHeader
	if err := json.Unmarshal(raw, &header); err != nil {
		return nil, fmt.Errorf("failed to parse model header: %w", err)
	}

	switch header.ModelType {
	case "pca":
		var p PCA
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("failed to parse PCA parameters: %w", err)
		}
		p.name = name
		if len(p.Components) == 0 || len(p.Mean) == 0 {
			return nil, fmt.Errorf("invalid PCA parameters")
		}
		return &p, nil
	case "encoder":
		var e Encoder
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("failed to parse encoder parameters: %w", err)
		}
		e.name = name
		if len(e.Layers) == 0 {
			return nil, fmt.Errorf("invalid encoder parameters: no layers")
		}
		return &e, nil
	default:
		return nil, fmt.Errorf("unsupported reduction model type: %q", header.ModelType)
	}
}

// LoadClassifier 按模型名加载分类器
func LoadClassifier(dir, name string) (Classifier, error) {
	raw, err := readModelFile(dir, name)
	if err != nil {
		return nil, err
	}

	var c DenseClassifier
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("failed to parse classifier parameters: %w", err)
	}
	c.name = name
	if len(c.Layers) == 0 {
		return nil, fmt.Errorf("invalid classifier parameters: no layers")
	}
	return &c, nil
}
