package scorer

import (
	"fmt"
	"math"
)

// IsolationTree 序列化的孤立树（sklearn树数组布局，叶节点的子指针为-1）
type IsolationTree struct {
	ChildrenLeft  []int     `json:"children_left"`
	ChildrenRight []int     `json:"children_right"`
	Feature       []int     `json:"feature"`
	Threshold     []float64 `json:"threshold"`
	NodeSamples   []int     `json:"n_node_samples"`
}

// IsolationForest 孤立森林异常检测器
type IsolationForest struct {
	Trees         []IsolationTree `json:"trees"`
	SubsampleSize int             `json:"subsample_size"`
	Offset        float64         `json:"offset"`
	name          string
}

func (f *IsolationForest) Name() string { return f.name }

// Predict 对每个样本行输出±1（1为正常点）
func (f *IsolationForest) Predict(rows [][]float64) ([]int, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty input")
	}

	expected := averagePathLength(f.SubsampleSize)
	out := make([]int, len(rows))
	for i, row := range rows {
		var total float64
		for t := range f.Trees {
			depth, err := f.Trees[t].pathLength(row)
			if err != nil {
				return nil, fmt.Errorf("tree %d: %w", t, err)
			}
			total += depth
		}
		mean := total / float64(len(f.Trees))

		// 异常分数: -2^(-E[h]/c(ψ))，再与训练时拟合的偏移比较
		score := -math.Pow(2, -mean/expected)
		if score-f.Offset < 0 {
			out[i] = -1
		} else {
			out[i] = 1
		}
	}

	return out, nil
}

// pathLength 计算样本在单棵树中的路径长度（含叶节点子树的期望深度修正）
func (t *IsolationTree) pathLength(row []float64) (float64, error) {
	node := 0
	depth := 0.0
	for t.ChildrenLeft[node] != -1 {
		feature := t.Feature[node]
		if feature < 0 || feature >= len(row) {
			return 0, fmt.Errorf("feature index %d out of range for %d-wide sample", feature, len(row))
		}
		if row[feature] <= t.Threshold[node] {
			node = t.ChildrenLeft[node]
		} else {
			node = t.ChildrenRight[node]
		}
		depth++
	}
	return depth + averagePathLength(t.NodeSamples[node]), nil
}

// averagePathLength BST不成功查找的平均路径长度 c(n)
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		nf := float64(n)
		// 2H(n-1) - 2(n-1)/n, H(i) ≈ ln(i) + γ
		return 2*(math.Log(nf-1)+0.5772156649) - 2*(nf-1)/nf
	}
}

// EllipticEnvelope 基于马氏距离的异常检测器
type EllipticEnvelope struct {
	Mean      []float64   `json:"mean"`
	Precision [][]float64 `json:"precision"` // 协方差矩阵的逆
	Threshold float64     `json:"threshold"` // 马氏距离平方的判定阈值
	name      string
}

func (e *EllipticEnvelope) Name() string { return e.name }

// Predict 对每个样本行输出±1（1为正常点）
func (e *EllipticEnvelope) Predict(rows [][]float64) ([]int, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty input")
	}

	out := make([]int, len(rows))
	for i, row := range rows {
		if len(row) != len(e.Mean) {
			return nil, fmt.Errorf("sample width %d does not match model dimension %d", len(row), len(e.Mean))
		}

		diff := make([]float64, len(row))
		for j := range row {
			diff[j] = row[j] - e.Mean[j]
		}

		// 马氏距离平方: diffᵀ · P · diff
		var dist float64
		for j := range diff {
			var inner float64
			for k := range diff {
				inner += e.Precision[j][k] * diff[k]
			}
			dist += diff[j] * inner
		}

		if dist > e.Threshold {
			out[i] = -1
		} else {
			out[i] = 1
		}
	}

	return out, nil
}
