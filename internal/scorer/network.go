package scorer

import (
	"fmt"
	"math"
)

// DenseLayer 全连接层参数
type DenseLayer struct {
	Weights    [][]float64 `json:"weights"` // [输入维度][输出维度]
	Bias       []float64   `json:"bias"`
	Activation string      `json:"activation"` // relu, tanh, sigmoid, linear, softmax
}

func (l *DenseLayer) forward(input []float64) ([]float64, error) {
	if len(input) != len(l.Weights) {
		return nil, fmt.Errorf("layer input width %d does not match weights %d", len(input), len(l.Weights))
	}

	out := make([]float64, len(l.Bias))
	copy(out, l.Bias)
	for i, x := range input {
		row := l.Weights[i]
		if len(row) != len(out) {
			return nil, fmt.Errorf("inconsistent weight matrix: row %d width %d, expected %d", i, len(row), len(out))
		}
		for j, w := range row {
			out[j] += x * w
		}
	}

	switch l.Activation {
	case "relu":
		for i, v := range out {
			if v < 0 {
				out[i] = 0
			}
		}
	case "tanh":
		for i, v := range out {
			out[i] = math.Tanh(v)
		}
	case "sigmoid":
		for i, v := range out {
			out[i] = 1 / (1 + math.Exp(-v))
		}
	case "softmax":
		softmax(out)
	case "linear", "":
	default:
		return nil, fmt.Errorf("unsupported activation: %q", l.Activation)
	}

	return out, nil
}

func softmax(v []float64) {
	max := math.Inf(-1)
	for _, x := range v {
		if x > max {
			max = x
		}
	}
	var sum float64
	for i, x := range v {
		v[i] = math.Exp(x - max)
		sum += v[i]
	}
	for i := range v {
		v[i] /= sum
	}
}

func forwardNetwork(layers []DenseLayer, input []float64) ([]float64, error) {
	v := input
	for i := range layers {
		out, err := layers[i].forward(v)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		v = out
	}
	return v, nil
}

// Encoder 学习得到的非线性编码器（自编码器的编码半部）
type Encoder struct {
	Layers []DenseLayer `json:"layers"`
	name   string
}

func (e *Encoder) Name() string { return e.name }

// Transform 对每个样本行执行编码
func (e *Encoder) Transform(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		encoded, err := forwardNetwork(e.Layers, row)
		if err != nil {
			return nil, fmt.Errorf("encoder row %d: %w", i, err)
		}
		out[i] = encoded
	}
	return out, nil
}

// DenseClassifier 全连接分类网络
// 输入为降维后的窗口矩阵，按行展平后前向传播，输出类别概率
type DenseClassifier struct {
	Layers []DenseLayer `json:"layers"`
	name   string
}

func (c *DenseClassifier) Name() string { return c.name }

// Probabilities 计算窗口的类别概率向量
func (c *DenseClassifier) Probabilities(rows [][]float64) ([]float64, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("empty classifier input")
	}

	// 按行展平 [N x k] → [N*k]
	flat := make([]float64, 0, len(rows)*len(rows[0]))
	for _, row := range rows {
		flat = append(flat, row...)
	}

	probs, err := forwardNetwork(c.Layers, flat)
	if err != nil {
		return nil, err
	}

	// 最后一层非softmax时归一化，保证输出可当作概率取argmax
	if last := c.Layers[len(c.Layers)-1].Activation; last != "softmax" {
		softmax(probs)
	}

	return probs, nil
}
