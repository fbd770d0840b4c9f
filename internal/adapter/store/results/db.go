// Package results persists estimated rows to Postgres/TimescaleDB.
package results

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"go.ngs.io/pointcast/internal/domain"
)

// Record is one variable estimate of one point.
type Record struct {
	ID         uint      `gorm:"primaryKey"`
	RunID      uuid.UUID `gorm:"type:uuid;index"`
	PointIndex int
	Lat        float64
	Lon        float64
	Alt        float64
	ValidTime  time.Time `gorm:"index"`
	Level      int
	Model      string
	Variable   string `gorm:"index"`
	Value      float64
	CreatedAt  time.Time
}

// TableName implements gorm's Tabler.
func (Record) TableName() string {
	return "point_forecasts"
}

// Records flattens rows into one record per variable. PointIndex is the
// row's input position, so failed points leave gaps.
func Records(runID uuid.UUID, rows []domain.ResultRow) []Record {
	out := make([]Record, 0, len(rows)*len(domain.DefaultVariables))
	for _, row := range rows {
		for vi, v := range row.Variables {
			out = append(out, Record{
				RunID:      runID,
				PointIndex: row.Index,
				Lat:        row.Point.Lat,
				Lon:        row.Point.Lon,
				Alt:        row.Point.Alt,
				ValidTime:  row.Time.UTC(),
				Level:      row.Level,
				Model:      row.Model,
				Variable:   v,
				Value:      row.Values[vi],
			})
		}
	}
	return out
}

// DBSink writes records through gorm.
type DBSink struct {
	db     *gorm.DB
	logger *zap.Logger
}

// batchSize is the number of records per INSERT.
const batchSize = 500

// NewDBSink connects to the database at dsn and migrates the table.
func NewDBSink(ctx context.Context, dsn string, logger *zap.Logger) (*DBSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.WithContext(ctx).AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("failed to migrate %s: %w", Record{}.TableName(), err)
	}
	return &DBSink{db: db, logger: logger}, nil
}

// Store writes the rows of a batch run.
func (s *DBSink) Store(ctx context.Context, runID uuid.UUID, rows []domain.ResultRow) error {
	records := Records(runID, rows)
	if len(records) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).CreateInBatches(records, batchSize).Error; err != nil {
		return fmt.Errorf("failed to store results: %w", err)
	}
	s.logger.Info("stored results", zap.String("run_id", runID.String()), zap.Int("records", len(records)))
	return nil
}

// Close closes the underlying connection pool.
func (s *DBSink) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
