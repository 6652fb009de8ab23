package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/lexflow/lexflow/pipeline"
)

// runRecord is the sqlite row shape: filterable columns plus the full
// result as a JSON payload.
type runRecord struct {
	RunID     string    `gorm:"primaryKey;column:run_id"`
	Pipeline  string    `gorm:"index;column:pipeline"`
	Status    string    `gorm:"index;column:status"`
	StartedAt time.Time `gorm:"index;column:started_at"`
	Payload   []byte    `gorm:"column:payload"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (runRecord) TableName() string {
	return "pipeline_runs"
}

// SQLiteStore is a sqlite-backed implementation of Store. Suitable for
// embedded durable deployments without an external service.
type SQLiteStore struct {
	db *gorm.DB
}

// NewSQLiteStore opens (or creates) the database at path and migrates
// the runs table. Use ":memory:" for an ephemeral database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if err := db.AutoMigrate(&runRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate runs table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Save(ctx context.Context, result *pipeline.PipelineResult) error {
	stored, err := cloneResult(result)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(stored)
	if err != nil {
		return err
	}

	record := runRecord{
		RunID:     stored.RunID,
		Pipeline:  stored.Pipeline,
		Status:    string(stored.Status),
		StartedAt: stored.StartedAt,
		Payload:   payload,
		UpdatedAt: time.Now(),
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error
}

func (s *SQLiteStore) Get(ctx context.Context, runID string) (*pipeline.PipelineResult, error) {
	var record runRecord
	err := s.db.WithContext(ctx).First(&record, "run_id = ?", runID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(&record)
}

func decodeRecord(record *runRecord) (*pipeline.PipelineResult, error) {
	var result pipeline.PipelineResult
	if err := json.Unmarshal(record.Payload, &result); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", record.RunID, err)
	}
	return &result, nil
}

func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*pipeline.PipelineResult, error) {
	query := s.db.WithContext(ctx).Model(&runRecord{}).Order("started_at asc")
	if filter.Pipeline != "" {
		query = query.Where("pipeline = ?", filter.Pipeline)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if !filter.Since.IsZero() {
		query = query.Where("started_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("started_at <= ?", filter.Until)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var records []runRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}

	results := make([]*pipeline.PipelineResult, 0, len(records))
	for i := range records {
		result, err := decodeRecord(&records[i])
		if err != nil {
			return nil, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Where("1 = 1").Delete(&runRecord{}).Error
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
