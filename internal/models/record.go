package models

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// 记录校验状态
const (
	ValidationUnchecked = "unchecked"
	ValidationChecked   = "checked"
	ValidationFailed    = "failed"
)

// UnlabeledSentinel 无标签记录在训练批次中的占位标签
const UnlabeledSentinel = -1

// UnknownDevice 缺失设备标识时的占位名称
const UnknownDevice = "Unknown_Sensor"

// ChannelNames 传感器通道的标准顺序
// 三个佩戴位置的三轴加速度/陀螺仪/磁力计加两路心电信号，共23个通道
var ChannelNames = []string{
	"acc_ch_x", "acc_ch_y", "acc_ch_z",
	"elec_signal_lead1", "elec_signal_lead2",
	"acc_la_x", "acc_la_y", "acc_la_z",
	"gyr_la_x", "gyr_la_y", "gyr_la_z",
	"mag_la_x", "mag_la_y", "mag_la_z",
	"acc_rw_x", "acc_rw_y", "acc_rw_z",
	"gyr_rw_x", "gyr_rw_y", "gyr_rw_z",
	"mag_rw_x", "mag_rw_y", "mag_rw_z",
}

// WindowData 窗口数据的持久化/传输形态：通道名 → 采样序号 → 数值
type WindowData map[string]map[string]float64

// SampleRows 按标准通道顺序展开为样本行矩阵 [采样数 x 通道数]
// 任一标准通道缺失或各通道采样数不一致时视为损坏数据
func (w WindowData) SampleRows() ([][]float64, error) {
	if len(w) == 0 {
		return nil, fmt.Errorf("empty window data")
	}

	var indexes []string
	for _, name := range ChannelNames {
		channel, ok := w[name]
		if !ok {
			return nil, fmt.Errorf("missing channel: %s", name)
		}
		if indexes == nil {
			for idx := range channel {
				indexes = append(indexes, idx)
			}
			sort.Slice(indexes, func(i, j int) bool {
				a, _ := strconv.Atoi(indexes[i])
				b, _ := strconv.Atoi(indexes[j])
				return a < b
			})
		} else if len(channel) != len(indexes) {
			return nil, fmt.Errorf("ragged window data: channel %s has %d samples, expected %d",
				name, len(channel), len(indexes))
		}
	}

	rows := make([][]float64, len(indexes))
	for i, idx := range indexes {
		row := make([]float64, len(ChannelNames))
		for j, name := range ChannelNames {
			value, ok := w[name][idx]
			if !ok {
				return nil, fmt.Errorf("channel %s missing sample index %s", name, idx)
			}
			row[j] = value
		}
		rows[i] = row
	}

	return rows, nil
}

// WindowDataFromRows 从样本行矩阵构造窗口数据（行宽必须等于标准通道数）
func WindowDataFromRows(rows [][]float64) (WindowData, error) {
	data := make(WindowData, len(ChannelNames))
	for _, name := range ChannelNames {
		data[name] = make(map[string]float64, len(rows))
	}

	for i, row := range rows {
		if len(row) != len(ChannelNames) {
			return nil, fmt.Errorf("sample %d has %d channels, expected %d",
				i, len(row), len(ChannelNames))
		}
		idx := strconv.Itoa(i)
		for j, name := range ChannelNames {
			data[name][idx] = row[j]
		}
	}

	return data, nil
}

// InboundMessage 传感器侧MQTT消息
type InboundMessage struct {
	Device     string     `json:"device"`
	Date       string     `json:"date,omitempty"`
	WindowSize int        `json:"windowSize,omitempty"`
	Data       WindowData `json:"data,omitempty"`
	Label      *int       `json:"label,omitempty"`
	Latency    float64    `json:"latency,omitempty"`

	// 非JSON负载的透传形态
	RawData string `json:"raw_data,omitempty"`
}

// Record 持久化记录
// Processed由同步任务在上行发布成功后置true，此后记录不再变更
type Record struct {
	RecordID     string
	DeviceID     string
	RecordedAt   time.Time
	Window       WindowData
	Label        *int
	Validation   string
	OutlierModel *string
	Processed    bool
}

// BatchEntry 训练批次中的一条降维记录
type BatchEntry struct {
	Features [][]float64 `json:"features"`
	Label    int         `json:"label"`
}

// TrainingBatch 上行训练批次：每个同步周期新建，只传输不持久化
type TrainingBatch struct {
	EdgeID string       `json:"edge_id"`
	From   string       `json:"from,omitempty"`
	To     string       `json:"to,omitempty"`
	Data   []BatchEntry `json:"data"`
}
