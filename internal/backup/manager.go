// Package backup writes encrypted ledger snapshots and restores them.
package backup

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cashbook/internal/config"
	"cashbook/internal/export"
	"cashbook/internal/ledger"
	"cashbook/internal/models"
	"cashbook/internal/util"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	ReasonManual    = "manual"
	ReasonScheduled = "scheduled"
	ReasonPurge     = "purge"

	extEncrypted = ".bin"
	extPlain     = ".yaml"
)

// Manager owns the backup directory. Files are YAML snapshots, sealed
// with AES-256-GCM when an encryption key is configured.
type Manager struct {
	store *ledger.Store
	dir   string
	keep  int
	key   string
	log   *logrus.Logger
}

func NewManager(store *ledger.Store, cfg config.BackupConfig, encryptionKey string, log *logrus.Logger) *Manager {
	return &Manager{store: store, dir: cfg.Dir, keep: cfg.Keep, key: encryptionKey, log: log}
}

func (m *Manager) logger() *logrus.Entry {
	return m.log.WithField("module", "backup")
}

// Create writes a backup of the whole ledger and registers it.
func (m *Manager) Create(ctx context.Context, reason string) (*models.BackupRecord, error) {
	snap, err := m.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := (export.YAMLExporter{}).GenerateExport(ctx, &buf, snap); err != nil {
		return nil, err
	}

	data, ext := buf.Bytes(), extPlain
	if m.key != "" {
		if data, err = util.EncryptAES(m.key, data); err != nil {
			return nil, fmt.Errorf("encrypt backup: %w", err)
		}
		ext = extEncrypted
	} else {
		m.logger().Warn("security.encryption_key is empty, writing an unencrypted backup")
	}

	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}
	// 使用时间 + uuid 作为文件名
	name := fmt.Sprintf("backup-%s-%s%s", snap.TakenAt.Format("20060102T150405"), uuid.NewString()[:8], ext)
	path := filepath.Join(m.dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}

	rec := &models.BackupRecord{FileName: name, FilePath: path, Size: int64(len(data)), Reason: reason}
	if err := m.store.RegisterBackup(ctx, rec); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	m.logger().WithFields(logrus.Fields{
		"uid":          rec.UID,
		"file":         name,
		"reason":       reason,
		"transactions": len(snap.Transactions),
	}).Info("backup written")
	return rec, nil
}

func (m *Manager) List(ctx context.Context) ([]models.BackupRecord, error) {
	return m.store.ListBackups(ctx)
}

// Path returns the file of a registered backup.
func (m *Manager) Path(ctx context.Context, uid string) (string, error) {
	rec, err := m.store.GetBackup(ctx, uid)
	if err != nil {
		return "", err
	}
	return rec.FilePath, nil
}

// Load reads and decodes a registered backup.
func (m *Manager) Load(ctx context.Context, uid string) (*ledger.Snapshot, error) {
	rec, err := m.store.GetBackup(ctx, uid)
	if err != nil {
		return nil, err
	}
	return m.ReadFile(rec.FilePath)
}

// ReadFile decodes a backup file by its extension.
func (m *Manager) ReadFile(path string) (*ledger.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	if strings.HasSuffix(path, extEncrypted) {
		if m.key == "" {
			return nil, &models.InvalidRecordError{Entity: "backup", Reason: "backup is encrypted and no key is configured"}
		}
		if data, err = util.DecryptAES(m.key, data); err != nil {
			return nil, &models.InvalidRecordError{Entity: "backup", Reason: err.Error()}
		}
	}
	return export.ReadSnapshot(bytes.NewReader(data))
}

// Restore replaces the whole ledger with a backup in one unit. A backup
// of the current state is taken first.
func (m *Manager) Restore(ctx context.Context, uid string) (*models.BackupRecord, error) {
	snap, err := m.Load(ctx, uid)
	if err != nil {
		return nil, err
	}
	safety, err := m.Create(ctx, "pre-restore")
	if err != nil {
		return nil, fmt.Errorf("backup before restore: %w", err)
	}
	if err := m.store.Replace(ctx, snap); err != nil {
		return safety, err
	}
	m.logger().WithFields(logrus.Fields{"uid": uid, "safety_uid": safety.UID}).Info("backup restored")
	return safety, nil
}

// Delete removes a backup file and its record.
func (m *Manager) Delete(ctx context.Context, uid string) error {
	rec, err := m.store.GetBackup(ctx, uid)
	if err != nil {
		return err
	}
	// 先删文件，再删记录
	if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove backup file: %w", err)
	}
	return m.store.DeleteBackup(ctx, uid)
}

// Prune deletes the oldest backups beyond the configured count. Zero
// keeps everything.
func (m *Manager) Prune(ctx context.Context) (int, error) {
	if m.keep <= 0 {
		return 0, nil
	}
	list, err := m.store.ListBackups(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := m.keep; i < len(list); i++ {
		if err := m.Delete(ctx, list[i].UID); err != nil {
			return removed, err
		}
		removed++
	}
	if removed > 0 {
		m.logger().WithField("removed", removed).Info("old backups pruned")
	}
	return removed, nil
}

// RunScheduledBackup serves backup-type scheduled actions.
func (m *Manager) RunScheduledBackup(ctx context.Context, actionUID string) (string, error) {
	start := time.Now()
	rec, err := m.Create(ctx, ReasonScheduled)
	if err != nil {
		return "", err
	}
	if _, err := m.Prune(ctx); err != nil {
		m.logger().WithError(err).Warn("prune after scheduled backup failed")
	}
	m.logger().WithFields(logrus.Fields{
		"action_uid": actionUID,
		"uid":        rec.UID,
		"elapsed":    time.Since(start).String(),
	}).Info("scheduled backup done")
	return rec.UID, nil
}
