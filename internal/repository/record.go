package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/IDASLab/InTec-Framework/internal/models"
)

// RecordStore 记录存储抽象
type RecordStore interface {
	Insert(ctx context.Context, record *models.Record) error
	InsertBatch(ctx context.Context, records []*models.Record) error
	// FetchUnprocessed 获取since之后未转发的记录
	FetchUnprocessed(ctx context.Context, since time.Time) ([]*models.Record, error)
	// MarkProcessed 批量标记记录为已转发，重复标记为空操作
	MarkProcessed(ctx context.Context, recordIDs []string) error
}

// PostgresRecordStore 基于PostgreSQL的记录存储
type PostgresRecordStore struct {
	db     *sql.DB
	table  string
	logger *zap.Logger
}

// NewPostgresRecordStore 创建记录存储
func NewPostgresRecordStore(db *sql.DB, table string, logger *zap.Logger) *PostgresRecordStore {
	return &PostgresRecordStore{
		db:     db,
		table:  pq.QuoteIdentifier(table),
		logger: logger,
	}
}

// Insert 插入单条记录
func (s *PostgresRecordStore) Insert(ctx context.Context, record *models.Record) error {
	windowJSON, err := json.Marshal(record.Window)
	if err != nil {
		return fmt.Errorf("failed to marshal window data: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (
			record_id,
			device_id,
			recorded_at,
			window_data,
			label,
			validation,
			outlier_model,
			processed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.table)

	_, err = s.db.ExecContext(ctx, query,
		record.RecordID,
		record.DeviceID,
		record.RecordedAt,
		windowJSON,
		record.Label,
		record.Validation,
		record.OutlierModel,
		record.Processed,
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}

	return nil
}

// InsertBatch 批量插入记录（单事务）
func (s *PostgresRecordStore) InsertBatch(ctx context.Context, records []*models.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := fmt.Sprintf(`
		INSERT INTO %s (
			record_id,
			device_id,
			recorded_at,
			window_data,
			label,
			validation,
			outlier_model,
			processed
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.table)

	for _, record := range records {
		windowJSON, err := json.Marshal(record.Window)
		if err != nil {
			return fmt.Errorf("failed to marshal window data: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query,
			record.RecordID,
			record.DeviceID,
			record.RecordedAt,
			windowJSON,
			record.Label,
			record.Validation,
			record.OutlierModel,
			record.Processed,
		); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", record.RecordID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch insert: %w", err)
	}

	return nil
}

// FetchUnprocessed 获取since之后未转发的记录
// 窗口数据损坏的记录照常返回（Window为nil），由调用方决定跳过策略
func (s *PostgresRecordStore) FetchUnprocessed(ctx context.Context, since time.Time) ([]*models.Record, error) {
	query := fmt.Sprintf(`
		SELECT
			record_id,
			device_id,
			recorded_at,
			window_data,
			label,
			validation,
			outlier_model
		FROM %s
		WHERE processed = false
		  AND recorded_at >= $1
		ORDER BY recorded_at
	`, s.table)

	rows, err := s.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unprocessed records: %w", err)
	}
	defer rows.Close()

	var records []*models.Record
	for rows.Next() {
		record := &models.Record{}
		var windowJSON []byte
		if err := rows.Scan(
			&record.RecordID,
			&record.DeviceID,
			&record.RecordedAt,
			&windowJSON,
			&record.Label,
			&record.Validation,
			&record.OutlierModel,
		); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}

		if len(windowJSON) > 0 {
			if err := json.Unmarshal(windowJSON, &record.Window); err != nil {
				s.logger.Warn("Corrupt window data in record",
					zap.String("record_id", record.RecordID),
					zap.Error(err),
				)
				record.Window = nil
			}
		}

		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate records: %w", err)
	}

	return records, nil
}

// MarkProcessed 批量置processed标志
// WHERE processed = false 保证false→true只发生一次，重复标记为空操作
func (s *PostgresRecordStore) MarkProcessed(ctx context.Context, recordIDs []string) error {
	if len(recordIDs) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET processed = true
		WHERE record_id = ANY($1)
		  AND processed = false
	`, s.table)

	result, err := s.db.ExecContext(ctx, query, pq.Array(recordIDs))
	if err != nil {
		return fmt.Errorf("failed to mark records processed: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil {
		s.logger.Debug("Marked records processed",
			zap.Int("requested", len(recordIDs)),
			zap.Int64("updated", affected),
		)
	}

	return nil
}
