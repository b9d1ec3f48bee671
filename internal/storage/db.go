// Package storage holds the ambient, queryable mirror of engine-wide state:
// a SQL listing/history view over tasks, daily byte/file counters, saved
// download locations, free-form app settings, and speed-test history. The
// authoritative per-task document lives in the file-based record store
// (package recordstore); this package exists for fast listing and analytics
// queries the way a desktop app's "downloads" and "stats" screens need,
// mirroring the donor project's own SQLite-backed StatsManager/ConfigManager.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Storage wraps a gorm database handle over the models in models.go.
type Storage struct {
	DB *gorm.DB
}

// NewStorage opens (creating if absent) the sqlite database under dataDir.
func NewStorage(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "engine.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL;")

	if err := db.AutoMigrate(
		&DownloadTask{},
		&DownloadLocation{},
		&DailyStat{},
		&AppSetting{},
		&SpeedTestHistory{},
	); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &Storage{DB: db}, nil
}

// Close releases the underlying database connection.
func (s *Storage) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveTask upserts a task row, keyed by ID.
func (s *Storage) SaveTask(task DownloadTask) error {
	return s.DB.Save(&task).Error
}

// GetTask fetches a single task row by ID.
func (s *Storage) GetTask(id string) (DownloadTask, error) {
	var task DownloadTask
	err := s.DB.First(&task, "id = ?", id).Error
	return task, err
}

// GetAllTasks returns every non-deleted task, most recently created first.
func (s *Storage) GetAllTasks() ([]DownloadTask, error) {
	var tasks []DownloadTask
	err := s.DB.Order("created_at desc").Find(&tasks).Error
	return tasks, err
}

// DeleteTask soft-deletes the task row.
func (s *Storage) DeleteTask(id string) error {
	return s.DB.Delete(&DownloadTask{}, "id = ?", id).Error
}

// IncrementDailyBytes adds bytes to today's DailyStat row, creating it if absent.
func (s *Storage) IncrementDailyBytes(bytes int64) error {
	today := time.Now().Format("2006-01-02")
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var stat DailyStat
		err := tx.First(&stat, "date = ?", today).Error
		if err == gorm.ErrRecordNotFound {
			stat = DailyStat{Date: today, Bytes: bytes}
			return tx.Create(&stat).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&stat).Update("bytes", gorm.Expr("bytes + ?", bytes)).Error
	})
}

// IncrementDailyFiles increments today's completed-file counter.
func (s *Storage) IncrementDailyFiles() error {
	today := time.Now().Format("2006-01-02")
	return s.DB.Transaction(func(tx *gorm.DB) error {
		var stat DailyStat
		err := tx.First(&stat, "date = ?", today).Error
		if err == gorm.ErrRecordNotFound {
			stat = DailyStat{Date: today, Files: 1}
			return tx.Create(&stat).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&stat).Update("files", gorm.Expr("files + ?", 1)).Error
	})
}

// GetTotalLifetime sums bytes across every DailyStat row.
func (s *Storage) GetTotalLifetime() (int64, error) {
	var total int64
	err := s.DB.Model(&DailyStat{}).Select("COALESCE(SUM(bytes), 0)").Row().Scan(&total)
	return total, err
}

// GetTotalFiles sums completed files across every DailyStat row.
func (s *Storage) GetTotalFiles() (int64, error) {
	var total int64
	err := s.DB.Model(&DailyStat{}).Select("COALESCE(SUM(files), 0)").Row().Scan(&total)
	return total, err
}

// GetDailyHistory returns the last `days` DailyStat rows, oldest first.
func (s *Storage) GetDailyHistory(days int) ([]DailyStat, error) {
	cutoff := time.Now().AddDate(0, 0, -days).Format("2006-01-02")
	var stats []DailyStat
	err := s.DB.Where("date >= ?", cutoff).Order("date asc").Find(&stats).Error
	return stats, err
}

// AddLocation upserts a saved download location by path.
func (s *Storage) AddLocation(path, nickname string) error {
	loc := DownloadLocation{Path: path, Nickname: nickname}
	return s.DB.Save(&loc).Error
}

// GetLocations returns every saved download location.
func (s *Storage) GetLocations() ([]DownloadLocation, error) {
	var locations []DownloadLocation
	err := s.DB.Find(&locations).Error
	return locations, err
}

// SetString upserts a single app-setting key/value pair.
func (s *Storage) SetString(key, value string) error {
	setting := AppSetting{Key: key, Value: value}
	return s.DB.Save(&setting).Error
}

// GetString reads a single app-setting value, empty string if unset.
func (s *Storage) GetString(key string) (string, error) {
	var setting AppSetting
	err := s.DB.First(&setting, "key = ?", key).Error
	if err == gorm.ErrRecordNotFound {
		return "", nil
	}
	return setting.Value, err
}

// SetStringList stores a list as a comma-joined app-setting value.
func (s *Storage) SetStringList(key string, values []string) error {
	joined := ""
	for i, v := range values {
		if i > 0 {
			joined += ","
		}
		joined += v
	}
	return s.SetString(key, joined)
}

// GetStringList reads back a comma-joined app-setting value.
func (s *Storage) GetStringList(key string) ([]string, error) {
	joined, err := s.GetString(key)
	if err != nil || joined == "" {
		return nil, err
	}
	var out []string
	start := 0
	for i := 0; i <= len(joined); i++ {
		if i == len(joined) || joined[i] == ',' {
			out = append(out, joined[start:i])
			start = i + 1
		}
	}
	return out, nil
}

// RecordSpeedTest appends a completed speed-test result to history.
func (s *Storage) RecordSpeedTest(result SpeedTestHistory) error {
	return s.DB.Create(&result).Error
}
