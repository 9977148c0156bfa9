// Package store persists the recordings index in a sqlite database.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kartoza/kartoza-capture-orchestrator/internal/logging"
	"github.com/kartoza/kartoza-capture-orchestrator/internal/models"
)

// MemoryPath opens a private in-memory index
const MemoryPath = ":memory:"

// ErrNotFound is returned when no entry matches
var ErrNotFound = errors.New("recording not found")

// Store is the recordings index
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open opens (and migrates) the index at path
func Open(path string, l *zap.Logger) (*Store, error) {
	l = logging.Component(l, "store")

	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open recordings index: %w", err)
	}

	if path == MemoryPath {
		// every pooled connection would otherwise see its own empty database
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if err := db.AutoMigrate(&models.RecordingEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate recordings index: %w", err)
	}

	l.Debug("Recordings index opened", zap.String(logging.KeyPath, path))
	return &Store{db: db, logger: l}, nil
}

// Add inserts or replaces an entry
func (s *Store) Add(ctx context.Context, e models.RecordingEntry) error {
	if e.ID == "" {
		return errors.New("recording entry has no id")
	}
	if err := s.db.WithContext(ctx).Save(&e).Error; err != nil {
		return fmt.Errorf("failed to save recording %s: %w", e.ID, err)
	}
	return nil
}

// Get returns the entry with the given id
func (s *Store) Get(ctx context.Context, id string) (models.RecordingEntry, error) {
	var e models.RecordingEntry
	err := s.db.WithContext(ctx).First(&e, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return e, ErrNotFound
	}
	return e, err
}

// List returns all entries, newest first
func (s *Store) List(ctx context.Context) ([]models.RecordingEntry, error) {
	var entries []models.RecordingEntry
	if err := s.db.WithContext(ctx).Order("created_at desc").Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	return entries, nil
}

// Delete removes the entry with the given id
func (s *Store) Delete(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Delete(&models.RecordingEntry{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete recording %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByPath removes every entry pointing at path and returns how many were removed
func (s *Store) DeleteByPath(ctx context.Context, path string) (int64, error) {
	res := s.db.WithContext(ctx).Delete(&models.RecordingEntry{}, "path = ?", path)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete recordings at %s: %w", path, res.Error)
	}
	return res.RowsAffected, nil
}

// Close releases the database handle
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
