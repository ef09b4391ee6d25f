package models

import (
	"errors"
	"fmt"

	"cashbook/internal/amount"
)

// Error classes. Every typed error below reports exactly one of them
// through errors.Is, so callers can tell a rejected request from a
// storage failure from a missing conversion rate.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotFound         = errors.New("not found")
	ErrNoConversionRate = errors.New("no conversion rate")
	ErrStorage          = errors.New("storage failure")
)

// UnbalancedTransactionError: split values do not sum to zero.
type UnbalancedTransactionError struct {
	TransactionUID string
	Imbalance      amount.Amount
}

func (e *UnbalancedTransactionError) Error() string {
	return fmt.Sprintf("transaction %s is unbalanced by %s", e.TransactionUID, e.Imbalance)
}

func (e *UnbalancedTransactionError) Is(target error) bool { return target == ErrValidation }

// UnknownAccountError: a reference to an account that does not exist.
type UnknownAccountError struct {
	AccountUID string
}

func (e *UnknownAccountError) Error() string {
	return fmt.Sprintf("unknown account %q", e.AccountUID)
}

func (e *UnknownAccountError) Is(target error) bool { return target == ErrValidation }

// UnknownCommodityError: a reference to a commodity that does not exist.
type UnknownCommodityError struct {
	CommodityUID string
}

func (e *UnknownCommodityError) Error() string {
	return fmt.Sprintf("unknown commodity %q", e.CommodityUID)
}

func (e *UnknownCommodityError) Is(target error) bool { return target == ErrValidation }

// NoConversionRateError: a non-zero subtotal cannot be converted.
type NoConversionRateError struct {
	FromCommodityUID string
	ToCommodityUID   string
}

func (e *NoConversionRateError) Error() string {
	return fmt.Sprintf("no conversion rate from %s to %s", e.FromCommodityUID, e.ToCommodityUID)
}

func (e *NoConversionRateError) Is(target error) bool { return target == ErrNoConversionRate }

// InvalidRecurrenceError: a malformed period rule.
type InvalidRecurrenceError struct {
	Reason string
}

func (e *InvalidRecurrenceError) Error() string {
	return "invalid recurrence: " + e.Reason
}

func (e *InvalidRecurrenceError) Is(target error) bool { return target == ErrValidation }

// InvalidRecordError: input that fails structural checks.
type InvalidRecordError struct {
	Entity string
	UID    string
	Reason string
}

func (e *InvalidRecordError) Error() string {
	if e.UID == "" {
		return fmt.Sprintf("invalid %s: %s", e.Entity, e.Reason)
	}
	return fmt.Sprintf("invalid %s %s: %s", e.Entity, e.UID, e.Reason)
}

func (e *InvalidRecordError) Is(target error) bool { return target == ErrValidation }

// AccountHasChildrenError: the account still has sub-accounts.
type AccountHasChildrenError struct {
	AccountUID string
	Children   int
}

func (e *AccountHasChildrenError) Error() string {
	return fmt.Sprintf("account %s still has %d sub-accounts", e.AccountUID, e.Children)
}

func (e *AccountHasChildrenError) Is(target error) bool { return target == ErrValidation }

// CommodityInUseError: the commodity is referenced and cannot change.
type CommodityInUseError struct {
	CommodityUID string
	Reason       string
}

func (e *CommodityInUseError) Error() string {
	return fmt.Sprintf("commodity %s is in use: %s", e.CommodityUID, e.Reason)
}

func (e *CommodityInUseError) Is(target error) bool { return target == ErrValidation }

// NotFoundError: the requested entity does not exist.
type NotFoundError struct {
	Entity string
	UID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.UID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StorageIOError wraps a failure of the underlying database.
type StorageIOError struct {
	Op  string
	Err error
}

func (e *StorageIOError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageIOError) Unwrap() error { return e.Err }

func (e *StorageIOError) Is(target error) bool { return target == ErrStorage }
