package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"cashbook/internal/ledger"
	"cashbook/internal/models"

	"github.com/sirupsen/logrus"
)

// Backupper takes a full backup before a purge.
type Backupper interface {
	Create(ctx context.Context, reason string) (*models.BackupRecord, error)
}

// Params selects the format and whether posted transactions are removed
// once written.
type Params struct {
	Format            string `json:"format" binding:"required"`
	DeleteAfterExport bool   `json:"delete_after_export"`
}

// Result describes a finished export.
type Result struct {
	Format          string `json:"format"`
	Path            string `json:"path"`
	FileName        string `json:"file_name"`
	Size            int64  `json:"size"`
	Transactions    int    `json:"transactions"`
	BackupUID       string `json:"backup_uid,omitempty"`
	Purged          int64  `json:"purged"`
	OpeningBalances int    `json:"opening_balances"`
}

type Service struct {
	store          *ledger.Store
	backups        Backupper
	dir            string
	openingAccount string
	log            *logrus.Logger
	now            func() time.Time
}

// NewService writes exports under dir. openingAccount names the equity
// account that receives opening balances after a purge.
func NewService(store *ledger.Store, backups Backupper, dir, openingAccount string, log *logrus.Logger) *Service {
	if openingAccount == "" {
		openingAccount = ledger.DefaultOpeningBalanceAccount
	}
	return &Service{
		store:          store,
		backups:        backups,
		dir:            dir,
		openingAccount: openingAccount,
		log:            log,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Render writes the current ledger in format to w, for callers that
// stream the export instead of keeping a file.
func (s *Service) Render(ctx context.Context, format string, w io.Writer) (Exporter, *ledger.Snapshot, error) {
	exp, err := New(format)
	if err != nil {
		return nil, nil, err
	}
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	if err := exp.GenerateExport(ctx, w, snap); err != nil {
		return nil, nil, fmt.Errorf("generate %s: %w", format, err)
	}
	return exp, snap, nil
}

// Export writes the ledger to a new file in the export directory. With
// DeleteAfterExport it then backs up, replaces every posted transaction
// with one opening-balance transaction per account and commits that
// swap as a single unit. Exported transactions are flagged otherwise.
func (s *Service) Export(ctx context.Context, p Params) (*Result, error) {
	logger := s.log.WithFields(logrus.Fields{"module": "export", "format": p.Format})
	if p.DeleteAfterExport && s.backups == nil {
		return nil, &models.InvalidRecordError{Entity: "export", Reason: "purging requires a backup manager"}
	}

	var buf bytes.Buffer
	exp, snap, err := s.Render(ctx, p.Format, &buf)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir: %w", err)
	}
	name := fmt.Sprintf("cashbook_%s.%s", s.now().Format("20060102_150405"), exp.Extension())
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return nil, fmt.Errorf("write export: %w", err)
	}
	res := &Result{
		Format:       p.Format,
		Path:         path,
		FileName:     name,
		Size:         int64(buf.Len()),
		Transactions: len(snap.Posted()),
	}

	if !p.DeleteAfterExport {
		uids := make([]string, 0, res.Transactions)
		for _, t := range snap.Posted() {
			uids = append(uids, t.UID)
		}
		err = s.store.Update(ctx, func(tx *ledger.Tx) error {
			_, err := tx.MarkExported(uids)
			return err
		})
		if err != nil {
			return nil, err
		}
		logger.WithFields(logrus.Fields{"file": name, "transactions": res.Transactions}).Info("export written")
		return res, nil
	}

	rec, err := s.backups.Create(ctx, "purge")
	if err != nil {
		return nil, fmt.Errorf("backup before purge: %w", err)
	}
	res.BackupUID = rec.UID

	asOf := latestPosting(snap, snap.TakenAt)
	err = s.store.Update(ctx, func(tx *ledger.Tx) error {
		opening, err := tx.OpeningBalanceTransactions(asOf, s.openingAccount)
		if err != nil {
			return err
		}
		if res.Purged, err = tx.DeleteAllNonTemplateTransactions(); err != nil {
			return err
		}
		records := make([]any, len(opening))
		for i := range opening {
			records[i] = &opening[i]
		}
		// the purge is part of this unit; cancellation must not leave it
		// without its opening balances
		n, err := tx.BulkAdd(context.WithoutCancel(ctx), records, ledger.ModeInsert)
		res.OpeningBalances = n
		return err
	})
	if err != nil {
		logger.WithError(err).Error("purge after export failed, ledger unchanged")
		return nil, fmt.Errorf("purge after export: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"file":             name,
		"purged":           res.Purged,
		"opening_balances": res.OpeningBalances,
		"backup_uid":       res.BackupUID,
	}).Info("export written and ledger purged")
	return res, nil
}

// latestPosting is the later of now and the newest posted transaction,
// so future-dated transactions are carried into the opening balances.
func latestPosting(snap *ledger.Snapshot, now time.Time) time.Time {
	asOf := now
	for _, t := range snap.Transactions {
		if !t.IsTemplate && t.Timestamp.After(asOf) {
			asOf = t.Timestamp
		}
	}
	return asOf.UTC()
}
