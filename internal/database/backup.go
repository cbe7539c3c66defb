package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"shareit/internal/config"

	"github.com/rs/zerolog"
)

const (
	backupPrefix     = "shareit_"
	backupTimeLayout = "20060102_150405.000"
	defaultSchedule  = 24 * time.Hour
)

// BackupService writes periodic VACUUM INTO snapshots of the SQLite store
// and prunes those past the retention window.
type BackupService struct {
	db     *DB
	config config.BackupConfig
	logger *zerolog.Logger
	now    func() time.Time
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) (*BackupService, error) {
	if db.Driver() != config.DriverSQLite {
		return nil, fmt.Errorf("backups need the %s driver, got %s", config.DriverSQLite, db.Driver())
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &BackupService{db: db, config: cfg, logger: logger, now: time.Now}, nil
}

// Start snapshots once, then on every tick of the schedule until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("backup service is disabled")
		return
	}

	interval := defaultSchedule
	if s.config.Schedule != "" {
		d, err := time.ParseDuration(s.config.Schedule)
		if err != nil || d <= 0 {
			s.logger.Warn().Str("schedule", s.config.Schedule).Msg("invalid backup schedule, using 24h")
		} else {
			interval = d
		}
	}
	s.logger.Info().Dur("interval", interval).Str("storage_path", s.config.StoragePath).Str("source", s.db.Path()).Msg("backup service started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.PerformBackup(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error().Err(err).Msg("backup failed")
		}
		s.CleanupOldBackups()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PerformBackup writes one snapshot and returns its path. VACUUM INTO reads
// inside a transaction, so concurrent bookings never leave it torn.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	name := backupPrefix + s.now().UTC().Format(backupTimeLayout) + ".db"
	path := filepath.Join(s.config.StoragePath, name)

	stmt := fmt.Sprintf("VACUUM INTO '%s'", strings.ReplaceAll(path, "'", "''"))
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	s.logger.Info().Str("path", path).Msg("backup completed")
	return path, nil
}

// CleanupOldBackups removes snapshots older than RetentionDays. The age comes
// from the timestamp in the file name, or the modification time when the
// name carries none. Files without the backup prefix are left alone.
func (s *BackupService) CleanupOldBackups() {
	if s.config.RetentionDays <= 0 {
		return
	}

	entries, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read backup directory")
		return
	}

	cutoff := s.now().AddDate(0, 0, -s.config.RetentionDays)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), backupPrefix) {
			continue
		}
		taken, ok := snapshotTime(entry)
		if !ok || !taken.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.config.StoragePath, entry.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("failed to delete old backup")
			continue
		}
		s.logger.Info().Str("file", entry.Name()).Msg("old backup deleted")
	}
}

func snapshotTime(entry os.DirEntry) (time.Time, bool) {
	stamp := strings.TrimSuffix(strings.TrimPrefix(entry.Name(), backupPrefix), ".db")
	if t, err := time.ParseInLocation(backupTimeLayout, stamp, time.UTC); err == nil {
		return t, true
	}
	info, err := entry.Info()
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}
