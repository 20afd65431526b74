package uplink

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/IDASLab/InTec-Framework/internal/models"
	"github.com/IDASLab/InTec-Framework/internal/pipeline"
)

// fakeStore 预置取数结果并记录标记调用的存储桩
type fakeStore struct {
	records   []*models.Record
	fetchErr  error
	markCalls int
	markedIDs []string
}

func (s *fakeStore) Insert(ctx context.Context, record *models.Record) error { return nil }

func (s *fakeStore) InsertBatch(ctx context.Context, records []*models.Record) error { return nil }

func (s *fakeStore) FetchUnprocessed(ctx context.Context, since time.Time) ([]*models.Record, error) {
	return s.records, s.fetchErr
}

func (s *fakeStore) MarkProcessed(ctx context.Context, recordIDs []string) error {
	s.markCalls++
	s.markedIDs = append(s.markedIDs, recordIDs...)
	return nil
}

// fakePublisher 记录发布调用，可配置为失败
type fakePublisher struct {
	payloads [][]byte
	err      error
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	if p.err != nil {
		return p.err
	}
	p.payloads = append(p.payloads, payload)
	return nil
}

// markerReducer 按首通道值选择性失败的降维模型
type markerReducer struct{}

func (markerReducer) Name() string { return "PCA" }

func (markerReducer) Transform(rows [][]float64) ([][]float64, error) {
	if rows[0][0] == 999 {
		return nil, fmt.Errorf("shape mismatch")
	}
	return [][]float64{{rows[0][0]}}, nil
}

func makeRecord(t *testing.T, id string, firstValue float64, label *int) *models.Record {
	t.Helper()
	rows := make([][]float64, 2)
	for i := range rows {
		rows[i] = make([]float64, len(models.ChannelNames))
	}
	rows[0][0] = firstValue

	data, err := models.WindowDataFromRows(rows)
	require.NoError(t, err)

	return &models.Record{
		RecordID:   id,
		DeviceID:   "sensor01",
		RecordedAt: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Window:     data,
		Label:      label,
	}
}

func newSynchronizer(store *fakeStore, publisher *fakePublisher) *Synchronizer {
	reducer := pipeline.NewReducer(markerReducer{}, zap.NewNop())
	return NewSynchronizer(store, reducer, publisher, "cloud/training_data", "Edge_UB01", time.Minute, 1, zap.NewNop())
}

func TestRunCycle_PublishFailureLeavesFlagsUntouched(t *testing.T) {
	store := &fakeStore{records: []*models.Record{
		makeRecord(t, "rec-1", 1, nil),
		makeRecord(t, "rec-2", 2, nil),
	}}
	publisher := &fakePublisher{err: fmt.Errorf("broker unreachable")}

	err := newSynchronizer(store, publisher).RunCycle(context.Background())
	require.Error(t, err)

	// 发布失败时整个周期在标记之前中止：没有任何记录被置processed
	assert.Equal(t, 0, store.markCalls)
}

func TestRunCycle_PartialReductionTolerance(t *testing.T) {
	// 10条记录中2条降维失败：批次含8条，但10条在发布成功后全部标记
	var records []*models.Record
	for i := 0; i < 10; i++ {
		value := float64(i + 1)
		if i < 2 {
			value = 999
		}
		records = append(records, makeRecord(t, fmt.Sprintf("rec-%d", i), value, nil))
	}
	store := &fakeStore{records: records}
	publisher := &fakePublisher{}

	err := newSynchronizer(store, publisher).RunCycle(context.Background())
	require.NoError(t, err)

	require.Len(t, publisher.payloads, 1)
	var batch models.TrainingBatch
	require.NoError(t, json.Unmarshal(publisher.payloads[0], &batch))
	assert.Len(t, batch.Data, 8)
	assert.Equal(t, "Edge_UB01", batch.EdgeID)

	assert.Equal(t, 1, store.markCalls)
	assert.Len(t, store.markedIDs, 10)
}

func TestRunCycle_LabelsCarriedWithUnlabeledSentinel(t *testing.T) {
	label := 5
	store := &fakeStore{records: []*models.Record{
		makeRecord(t, "rec-1", 1, &label),
		makeRecord(t, "rec-2", 2, nil),
	}}
	publisher := &fakePublisher{}

	err := newSynchronizer(store, publisher).RunCycle(context.Background())
	require.NoError(t, err)

	var batch models.TrainingBatch
	require.NoError(t, json.Unmarshal(publisher.payloads[0], &batch))
	require.Len(t, batch.Data, 2)
	assert.Equal(t, 5, batch.Data[0].Label)
	assert.Equal(t, models.UnlabeledSentinel, batch.Data[1].Label)
}

func TestRunCycle_MissingWindowDataSkippedAndNotMarked(t *testing.T) {
	broken := &models.Record{
		RecordID:   "rec-broken",
		DeviceID:   "sensor01",
		RecordedAt: time.Now().UTC(),
	}
	store := &fakeStore{records: []*models.Record{
		broken,
		makeRecord(t, "rec-ok", 1, nil),
	}}
	publisher := &fakePublisher{}

	err := newSynchronizer(store, publisher).RunCycle(context.Background())
	require.NoError(t, err)

	var batch models.TrainingBatch
	require.NoError(t, json.Unmarshal(publisher.payloads[0], &batch))
	assert.Len(t, batch.Data, 1)

	// 缺失窗口数据的记录不参与标记，由取数时间窗自然淘汰
	assert.Equal(t, []string{"rec-ok"}, store.markedIDs)
}

func TestRunCycle_EmptyFetchIsNoop(t *testing.T) {
	store := &fakeStore{}
	publisher := &fakePublisher{}

	err := newSynchronizer(store, publisher).RunCycle(context.Background())
	require.NoError(t, err)
	assert.Empty(t, publisher.payloads)
	assert.Equal(t, 0, store.markCalls)
}

func TestRunCycle_AllReductionsFailSkipsPublication(t *testing.T) {
	store := &fakeStore{records: []*models.Record{
		makeRecord(t, "rec-1", 999, nil),
	}}
	publisher := &fakePublisher{}

	err := newSynchronizer(store, publisher).RunCycle(context.Background())
	require.NoError(t, err)

	// 空批次不发布也不标记
	assert.Empty(t, publisher.payloads)
	assert.Equal(t, 0, store.markCalls)
}

func TestRunCycle_TimeRangeCoversFetchedRecords(t *testing.T) {
	early := makeRecord(t, "rec-1", 1, nil)
	early.RecordedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	late := makeRecord(t, "rec-2", 2, nil)
	late.RecordedAt = time.Date(2024, 6, 1, 12, 5, 0, 0, time.UTC)

	store := &fakeStore{records: []*models.Record{late, early}}
	publisher := &fakePublisher{}

	err := newSynchronizer(store, publisher).RunCycle(context.Background())
	require.NoError(t, err)

	var batch models.TrainingBatch
	require.NoError(t, json.Unmarshal(publisher.payloads[0], &batch))
	assert.Equal(t, early.RecordedAt.Format(time.RFC3339), batch.From)
	assert.Equal(t, late.RecordedAt.Format(time.RFC3339), batch.To)
}
