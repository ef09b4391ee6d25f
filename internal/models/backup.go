package models

import "time"

// BackupRecord registers an encrypted ledger backup file.
type BackupRecord struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	UID       string    `gorm:"column:uid" json:"uid"`
	FileName  string    `gorm:"column:file_name" json:"file_name"`
	FilePath  string    `gorm:"column:file_path" json:"-"`
	Size      int64     `gorm:"column:size" json:"size"`
	Reason    string    `gorm:"column:reason" json:"reason"` // manual / scheduled / purge
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (BackupRecord) TableName() string { return "backups" }
