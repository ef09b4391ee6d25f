package database

import (
	"errors"

	"cashbook/internal/models"

	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// Classify maps a raw database error onto the ledger error taxonomy.
// Already classified errors pass through unchanged; constraint
// violations become validation errors; everything else is a storage
// failure.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, models.ErrValidation) || errors.Is(err, models.ErrNotFound) ||
		errors.Is(err, models.ErrNoConversionRate) || errors.Is(err, models.ErrStorage) {
		return err
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return &models.InvalidRecordError{Entity: "record", Reason: se.Error()}
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.NotFoundError{Entity: "record"}
	}
	return &models.StorageIOError{Op: op, Err: err}
}

// IsBusy reports whether err is a lock timeout from another writer.
func IsBusy(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked)
}
