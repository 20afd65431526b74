package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/IDASLab/InTec-Framework/internal/models"
)

func newTestStore(t *testing.T) (*PostgresRecordStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewPostgresRecordStore(db, "sensor_records", zap.NewNop()), mock
}

func sampleWindow(t *testing.T) models.WindowData {
	t.Helper()
	rows := make([][]float64, 3)
	for i := range rows {
		rows[i] = make([]float64, len(models.ChannelNames))
	}
	data, err := models.WindowDataFromRows(rows)
	require.NoError(t, err)
	return data
}

func TestPostgresRecordStore_Insert(t *testing.T) {
	store, mock := newTestStore(t)

	label := 4
	modelName := "IsolationForest"
	record := &models.Record{
		RecordID:     "rec-1",
		DeviceID:     "sensor01",
		RecordedAt:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Window:       sampleWindow(t),
		Label:        &label,
		Validation:   models.ValidationChecked,
		OutlierModel: &modelName,
	}

	mock.ExpectExec(`INSERT INTO "sensor_records"`).
		WithArgs("rec-1", "sensor01", record.RecordedAt, sqlmock.AnyArg(),
			&label, models.ValidationChecked, &modelName, false).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Insert(context.Background(), record)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordStore_InsertBatch(t *testing.T) {
	store, mock := newTestStore(t)

	records := []*models.Record{
		{RecordID: "rec-1", DeviceID: "sensor01", RecordedAt: time.Now(), Window: sampleWindow(t), Validation: models.ValidationUnchecked},
		{RecordID: "rec-2", DeviceID: "sensor01", RecordedAt: time.Now(), Window: sampleWindow(t), Validation: models.ValidationUnchecked},
	}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "sensor_records"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO "sensor_records"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.InsertBatch(context.Background(), records)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordStore_FetchUnprocessed(t *testing.T) {
	store, mock := newTestStore(t)

	windowJSON, err := json.Marshal(sampleWindow(t))
	require.NoError(t, err)
	recordedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	since := recordedAt.Add(-time.Minute)

	rows := sqlmock.NewRows([]string{
		"record_id", "device_id", "recorded_at", "window_data", "label", "validation", "outlier_model",
	}).
		AddRow("rec-1", "sensor01", recordedAt, windowJSON, 4, models.ValidationChecked, "IsolationForest").
		AddRow("rec-2", "sensor02", recordedAt, nil, nil, models.ValidationUnchecked, nil)

	mock.ExpectQuery(`SELECT(.|\s)+FROM "sensor_records"(.|\s)+WHERE processed = false`).
		WithArgs(since).
		WillReturnRows(rows)

	records, err := store.FetchUnprocessed(context.Background(), since)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "rec-1", records[0].RecordID)
	require.NotNil(t, records[0].Label)
	assert.Equal(t, 4, *records[0].Label)
	assert.NotEmpty(t, records[0].Window)

	// 窗口数据缺失的记录照常返回，Window为空
	assert.Equal(t, "rec-2", records[1].RecordID)
	assert.Nil(t, records[1].Label)
	assert.Empty(t, records[1].Window)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordStore_MarkProcessed(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ExpectExec(`UPDATE "sensor_records"(.|\s)+SET processed = true(.|\s)+AND processed = false`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	err := store.MarkProcessed(context.Background(), []string{"rec-1", "rec-2"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordStore_MarkProcessedIsIdempotent(t *testing.T) {
	store, mock := newTestStore(t)

	// 已标记的记录被processed = false条件滤掉，重复标记影响0行且不报错
	mock.ExpectExec(`UPDATE "sensor_records"`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkProcessed(context.Background(), []string{"rec-1"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordStore_MarkProcessedEmptyIsNoop(t *testing.T) {
	store, mock := newTestStore(t)

	// 空ID列表不触发任何数据库调用
	err := store.MarkProcessed(context.Background(), nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
