package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/IDASLab/InTec-Framework/internal/models"
)

type capturingPublisher struct {
	payloads [][]byte
}

func (p *capturingPublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	p.payloads = append(p.payloads, payload)
	return nil
}

type identityScaler struct{}

func (identityScaler) Transform(rows [][]float64) ([][]float64, error) {
	return rows, nil
}

type fixedClassifier struct{}

func (fixedClassifier) Name() string { return "model" }

func (fixedClassifier) Probabilities(rows [][]float64) ([]float64, error) {
	return []float64{0.1, 0.7, 0.2}, nil
}

func writeSampleCSV(t *testing.T, dir string, rows int) {
	t.Helper()
	var sb strings.Builder
	for i := 0; i < rows; i++ {
		fields := make([]string, len(models.ChannelNames))
		for j := range fields {
			fields[j] = fmt.Sprintf("%d.0", i)
		}
		sb.WriteString(strings.Join(fields, ","))
		sb.WriteString("\n")
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "subject01.csv"), []byte(sb.String()), 0o644))
}

func TestSimulator_PublishesCompletedWindows(t *testing.T) {
	dir := t.TempDir()
	writeSampleCSV(t, dir, 6)

	publisher := &capturingPublisher{}
	simulator, err := NewSimulator(&Config{
		Name:         "sensor01",
		DataDir:      dir,
		Topic:        "prediction",
		WindowSize:   3,
		SamplingRate: 3000,
		WorkTime:     30 * time.Millisecond,
	}, publisher, identityScaler{}, fixedClassifier{}, zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, simulator.Run(context.Background()))
	require.NotEmpty(t, publisher.payloads)

	var msg models.InboundMessage
	require.NoError(t, json.Unmarshal(publisher.payloads[0], &msg))
	assert.Equal(t, "sensor01", msg.Device)
	assert.Equal(t, 3, msg.WindowSize)
	require.NotNil(t, msg.Label)
	// argmax=1 → 标签从1起始 → 2
	assert.Equal(t, 2, *msg.Label)

	rows, err := msg.Data.SampleRows()
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestSimulator_EmptyDataDirIsError(t *testing.T) {
	simulator, err := NewSimulator(&Config{
		Name:         "sensor01",
		DataDir:      t.TempDir(),
		Topic:        "prediction",
		WindowSize:   3,
		SamplingRate: 50,
		WorkTime:     time.Minute,
	}, &capturingPublisher{}, identityScaler{}, fixedClassifier{}, zap.NewNop())
	require.NoError(t, err)

	require.Error(t, simulator.Run(context.Background()))
}
