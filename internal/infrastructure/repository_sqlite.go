package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/yourusername/grabber-go/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// SQLiteJobRepository implements JobRepository using SQLite
type SQLiteJobRepository struct {
	db *gorm.DB
}

// NewSQLiteJobRepository opens (and migrates) the job history database
func NewSQLiteJobRepository(dbPath string) (*SQLiteJobRepository, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.JobRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteJobRepository{db: db}, nil
}

// Create creates a new job record
func (r *SQLiteJobRepository) Create(record *domain.JobRecord) error {
	return r.db.Create(record).Error
}

// Update updates an existing job record
func (r *SQLiteJobRepository) Update(record *domain.JobRecord) error {
	return r.db.Save(record).Error
}

// FindByID finds a record by its local ID
func (r *SQLiteJobRepository) FindByID(id string) (*domain.JobRecord, error) {
	var record domain.JobRecord
	if err := r.db.First(&record, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// FindByJobID returns the newest record for a remote job id, nil when unknown
func (r *SQLiteJobRepository) FindByJobID(jobID string) (*domain.JobRecord, error) {
	var record domain.JobRecord
	err := r.db.Where("job_id = ?", jobID).Order("created_at DESC").First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// FindRecent returns up to limit records, newest first. A non-positive limit
// returns everything.
func (r *SQLiteJobRepository) FindRecent(limit int) ([]*domain.JobRecord, error) {
	var records []*domain.JobRecord
	query := r.db.Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&records).Error
	return records, err
}

// GetStats returns job statistics
func (r *SQLiteJobRepository) GetStats() (*domain.JobStats, error) {
	stats := &domain.JobStats{}

	if err := r.db.Model(&domain.JobRecord{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	stateCounts := []struct {
		State domain.JobState
		Count int64
	}{}

	if err := r.db.Model(&domain.JobRecord{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&stateCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range stateCounts {
		switch sc.State {
		case domain.JobPolling:
			stats.Polling = sc.Count
		case domain.JobFinished:
			stats.Finished = sc.Count
		case domain.JobFailed:
			stats.Failed = sc.Count
		}
	}

	return stats, nil
}

// PruneBefore deletes finished and failed records older than cutoff
func (r *SQLiteJobRepository) PruneBefore(cutoff time.Time) (int64, error) {
	result := r.db.
		Where("state IN ? AND created_at < ?", []domain.JobState{domain.JobFinished, domain.JobFailed}, cutoff).
		Delete(&domain.JobRecord{})
	return result.RowsAffected, result.Error
}

// Close closes the database connection
func (r *SQLiteJobRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
