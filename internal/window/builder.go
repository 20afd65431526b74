// Package window 固定长度滑动窗口的构建
package window

import "fmt"

// Builder 将连续样本累积成固定长度的窗口
// 非并发安全：每个传感器数据流各持有一个Builder实例
type Builder struct {
	size   int
	buffer [][]float64
}

// NewBuilder 创建窗口构建器
func NewBuilder(size int) (*Builder, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid window size: %d", size)
	}
	return &Builder{
		size:   size,
		buffer: make([][]float64, 0, size),
	}, nil
}

// Push 追加一个样本行
// 在自上次完成后的第size次追加时返回完整窗口并原子重置缓冲区，否则返回(nil, false)
func (b *Builder) Push(sample []float64) ([][]float64, bool) {
	b.buffer = append(b.buffer, sample)
	if len(b.buffer) < b.size {
		return nil, false
	}

	completed := b.buffer
	b.buffer = make([][]float64, 0, b.size)
	return completed, true
}

// Len 当前缓冲的样本数
func (b *Builder) Len() int {
	return len(b.buffer)
}

// Size 窗口大小
func (b *Builder) Size() int {
	return b.size
}
