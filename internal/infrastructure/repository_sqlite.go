package infrastructure

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yourusername/mediagrab/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// queueFilterColumns lists the columns FindAll accepts as filters
var queueFilterColumns = map[string]bool{
	"status":      true,
	"url":         true,
	"destination": true,
}

// SQLiteQueueRepository implements QueueRepository using SQLite
type SQLiteQueueRepository struct {
	db *gorm.DB
}

// NewSQLiteQueueRepository creates a new SQLite repository
func NewSQLiteQueueRepository(dbPath string) (*SQLiteQueueRepository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes writers from concurrent queue workers and keeps
	// a :memory: database from splitting across pooled connections.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&domain.QueueEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteQueueRepository{db: db}, nil
}

// Create creates a new entry
func (r *SQLiteQueueRepository) Create(entry *domain.QueueEntry) error {
	return r.db.Create(entry).Error
}

// Update updates an existing entry
func (r *SQLiteQueueRepository) Update(entry *domain.QueueEntry) error {
	return r.db.Save(entry).Error
}

// Delete deletes an entry by ID
func (r *SQLiteQueueRepository) Delete(id string) error {
	return r.db.Delete(&domain.QueueEntry{}, "id = ?", id).Error
}

// FindByID finds an entry by ID
func (r *SQLiteQueueRepository) FindByID(id string) (*domain.QueueEntry, error) {
	var entry domain.QueueEntry
	err := r.db.First(&entry, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("entry %s: %w", id, domain.ErrEntryNotFound)
		}
		return nil, err
	}
	return &entry, nil
}

// FindByURL returns the most recent entry for url in one of statuses.
// Returns nil without error when nothing matches.
func (r *SQLiteQueueRepository) FindByURL(url string, statuses []domain.QueueStatus) (*domain.QueueEntry, error) {
	var entry domain.QueueEntry
	err := r.db.Where("url = ? AND status IN ?", url, statuses).
		Order("created_at DESC").
		First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

// FindByStatus finds entries by status
func (r *SQLiteQueueRepository) FindByStatus(status domain.QueueStatus) ([]*domain.QueueEntry, error) {
	var entries []*domain.QueueEntry
	err := r.db.Where("status = ?", status).Order("created_at ASC").Find(&entries).Error
	return entries, err
}

// FindPending finds all pending entries, oldest first
func (r *SQLiteQueueRepository) FindPending() ([]*domain.QueueEntry, error) {
	var entries []*domain.QueueEntry
	err := r.db.Where("status = ?", domain.QueuePending).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}

// FindAll finds all entries with optional filters, newest first
func (r *SQLiteQueueRepository) FindAll(filters map[string]interface{}) ([]*domain.QueueEntry, error) {
	var entries []*domain.QueueEntry
	query := r.db

	for key, value := range filters {
		if !queueFilterColumns[key] {
			return nil, fmt.Errorf("unsupported filter %q", key)
		}
		query = query.Where(fmt.Sprintf("%s = ?", key), value)
	}

	err := query.Order("created_at DESC").Find(&entries).Error
	return entries, err
}

// GetStats returns queue statistics
func (r *SQLiteQueueRepository) GetStats() (*domain.QueueStats, error) {
	stats := &domain.QueueStats{}

	if err := r.db.Model(&domain.QueueEntry{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	statusCounts := []struct {
		Status domain.QueueStatus
		Count  int64
	}{}

	if err := r.db.Model(&domain.QueueEntry{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range statusCounts {
		switch sc.Status {
		case domain.QueuePending:
			stats.Pending = sc.Count
		case domain.QueueRunning:
			stats.Running = sc.Count
		case domain.QueuePaused:
			stats.Paused = sc.Count
		case domain.QueueSucceeded:
			stats.Succeeded = sc.Count
		case domain.QueueFailed:
			stats.Failed = sc.Count
		case domain.QueueCancelled:
			stats.Cancelled = sc.Count
		}
	}

	return stats, nil
}

// Close closes the database connection
func (r *SQLiteQueueRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
