package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cashbook/internal/amount"
	"cashbook/internal/database"
	"cashbook/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrReadOnly is returned when a mutation is attempted inside View.
var ErrReadOnly = errors.New("ledger: write attempted in read-only transaction")

// Store is the system of record for one ledger file. All mutations go
// through Update, which serializes writers and runs the whole callback
// in one database transaction. Reads go through View and see a
// consistent snapshot of the last committed write.
type Store struct {
	db       *gorm.DB
	log      *logrus.Logger
	validate *validator.Validate
	writeMu  sync.Mutex
	now      func() time.Time
}

// NewStore wraps an initialized and migrated database handle.
func NewStore(db *gorm.DB, log *logrus.Logger) *Store {
	return &Store{
		db:       db,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// DB exposes the handle for maintenance commands.
func (s *Store) DB() *gorm.DB { return s.db }

// Tx is a unit of work against the ledger. It is only valid inside the
// Update or View callback that produced it.
type Tx struct {
	db       *gorm.DB
	store    *Store
	writable bool
}

// Update runs fn in a single write transaction. If fn returns an error
// nothing it did is persisted. Cancellation of ctx does not abort a
// running update; callers that want to stop early check ctx themselves.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	err := s.db.WithContext(context.WithoutCancel(ctx)).Transaction(func(gtx *gorm.DB) error {
		return fn(&Tx{db: gtx, store: s, writable: true})
	})
	if errors.Is(err, ErrScheduleConflict) || errors.Is(err, ErrReadOnly) {
		return err
	}
	return database.Classify("update", err)
}

// View runs fn against a read snapshot. Views run concurrently with
// each other and with a writer.
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	gtx := s.db.WithContext(ctx).Begin()
	if gtx.Error != nil {
		return database.Classify("begin read", gtx.Error)
	}
	defer gtx.Rollback()
	if err := fn(&Tx{db: gtx, store: s}); err != nil {
		if errors.Is(err, ErrReadOnly) {
			return err
		}
		return database.Classify("read", err)
	}
	return nil
}

func (tx *Tx) requireWrite() error {
	if !tx.writable {
		return ErrReadOnly
	}
	return nil
}

func (tx *Tx) now() time.Time { return tx.store.now() }

func (tx *Tx) logger() *logrus.Entry {
	return tx.store.log.WithField("module", "ledger")
}

// check runs struct validation and converts failures into InvalidRecordError.
func (tx *Tx) check(entity, uid string, v any) error {
	err := tx.store.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &models.InvalidRecordError{Entity: entity, UID: uid, Reason: err.Error()}
	}
	reasons := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		reasons = append(reasons, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return &models.InvalidRecordError{Entity: entity, UID: uid, Reason: strings.Join(reasons, "; ")}
}

// findByUID loads one row by uid into dest and reports whether it exists.
func (tx *Tx) findByUID(dest any, uid string) (bool, error) {
	if uid == "" {
		return false, nil
	}
	res := tx.db.Where("uid = ?", uid).Limit(1).Find(dest)
	if res.Error != nil {
		return false, database.Classify("lookup", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (tx *Tx) exists(model any, uid string) (bool, error) {
	if uid == "" {
		return false, nil
	}
	var n int64
	if err := tx.db.Model(model).Where("uid = ?", uid).Count(&n).Error; err != nil {
		return false, database.Classify("lookup", err)
	}
	return n > 0, nil
}

// Mode selects how bulk and save operations treat existing rows.
type Mode string

const (
	// ModeInsert rejects records whose uid already exists.
	ModeInsert Mode = "insert"
	// ModeUpdate rejects records whose uid does not exist.
	ModeUpdate Mode = "update"

	modeUpsert Mode = ""
)

// ParseMode reads a mode name; "" and "upsert" select the default.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "upsert":
		return modeUpsert, nil
	case string(ModeInsert):
		return ModeInsert, nil
	case string(ModeUpdate):
		return ModeUpdate, nil
	}
	return modeUpsert, &models.InvalidRecordError{Entity: "mode", Reason: fmt.Sprintf("unknown mode %q", s)}
}

func (m Mode) valid() bool { return m == ModeInsert || m == ModeUpdate || m == modeUpsert }

// admit applies the mode to a record's existence.
func admit(mode Mode, entity, uid string, exists bool) error {
	switch {
	case mode == ModeInsert && exists:
		return &models.InvalidRecordError{Entity: entity, UID: uid, Reason: "already exists"}
	case mode == ModeUpdate && !exists:
		return &models.NotFoundError{Entity: entity, UID: uid}
	}
	return nil
}

// storable rejects an amount whose reduced fraction does not fit the
// num/denom columns.
func storable(entity, uid, field string, a amount.Amount) error {
	if _, _, err := a.Int64Parts(); err != nil {
		return &models.InvalidRecordError{Entity: entity, UID: uid, Reason: field + " " + a.String() + " is too large to store"}
	}
	return nil
}

func assignUID(uid *string) {
	if *uid == "" {
		*uid = models.NewUID()
	}
}
