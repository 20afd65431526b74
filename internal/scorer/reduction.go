package scorer

import "fmt"

// StandardScaler 仿射缩放器: (x - mean) / scale
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// Transform 对每个样本行执行缩放
func (s *StandardScaler) Transform(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(s.Mean) {
			return nil, fmt.Errorf("sample width %d does not match scaler dimension %d", len(row), len(s.Mean))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = (v - s.Mean[j]) / s.Scale[j]
		}
		out[i] = scaled
	}
	return out, nil
}

// PCA 线性投影降维器
type PCA struct {
	Mean       []float64   `json:"mean"`
	Components [][]float64 `json:"components"` // [输出维度][输入维度]
	name       string
}

func (p *PCA) Name() string { return p.name }

// Transform 对每个样本行执行投影: (x - mean) · Wᵀ
func (p *PCA) Transform(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		if len(row) != len(p.Mean) {
			return nil, fmt.Errorf("sample width %d does not match PCA dimension %d", len(row), len(p.Mean))
		}

		reduced := make([]float64, len(p.Components))
		for c, component := range p.Components {
			if len(component) != len(row) {
				return nil, fmt.Errorf("component %d width %d does not match sample width %d", c, len(component), len(row))
			}
			var sum float64
			for j, v := range row {
				sum += (v - p.Mean[j]) * component[j]
			}
			reduced[c] = sum
		}
		out[i] = reduced
	}
	return out, nil
}
