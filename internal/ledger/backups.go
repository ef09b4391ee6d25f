package ledger

import (
	"context"

	"cashbook/internal/database"
	"cashbook/internal/models"
)

// RegisterBackup records a written backup file.
func (s *Store) RegisterBackup(ctx context.Context, b *models.BackupRecord) error {
	assignUID(&b.UID)
	b.ID = 0
	return database.Classify("register backup", s.db.WithContext(ctx).Create(b).Error)
}

// ListBackups returns registered backups, newest first.
func (s *Store) ListBackups(ctx context.Context) ([]models.BackupRecord, error) {
	var list []models.BackupRecord
	if err := s.db.WithContext(ctx).Order("created_at DESC, id DESC").Find(&list).Error; err != nil {
		return nil, database.Classify("list backups", err)
	}
	return list, nil
}

// GetBackup loads one backup record.
func (s *Store) GetBackup(ctx context.Context, uid string) (*models.BackupRecord, error) {
	var b models.BackupRecord
	res := s.db.WithContext(ctx).Where("uid = ?", uid).Limit(1).Find(&b)
	if res.Error != nil {
		return nil, database.Classify("get backup", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, &models.NotFoundError{Entity: "backup", UID: uid}
	}
	return &b, nil
}

// DeleteBackup unregisters a backup. The file itself is the caller's.
func (s *Store) DeleteBackup(ctx context.Context, uid string) error {
	res := s.db.WithContext(ctx).Where("uid = ?", uid).Delete(&models.BackupRecord{})
	if res.Error != nil {
		return database.Classify("delete backup", res.Error)
	}
	if res.RowsAffected == 0 {
		return &models.NotFoundError{Entity: "backup", UID: uid}
	}
	return nil
}
