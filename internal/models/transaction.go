package models

import (
	"fmt"
	"time"

	"cashbook/internal/amount"

	"gorm.io/gorm"
)

// SplitType says on which side of the ledger a split posts.
type SplitType string

const (
	Debit  SplitType = "DEBIT"
	Credit SplitType = "CREDIT"
)

func (t SplitType) Valid() bool { return t == Debit || t == Credit }

// Invert returns the opposite side.
func (t SplitType) Invert() SplitType {
	if t == Debit {
		return Credit
	}
	return Debit
}

// Reconcile states, as single letters.
const (
	ReconcileNew        = "n"
	ReconcileCleared    = "c"
	ReconcileReconciled = "y"
	ReconcileFrozen     = "f"
	ReconcileVoided     = "v"
)

// Transaction moves value between accounts through its splits.
// Template transactions are never posted; they are cloned by
// scheduled actions.
type Transaction struct {
	ID                 uint      `gorm:"primaryKey" json:"-" yaml:"-"`
	UID                string    `gorm:"column:uid" json:"uid" yaml:"uid"`
	Description        string    `gorm:"column:description" json:"description" yaml:"description"`
	Notes              string    `gorm:"column:notes" json:"notes,omitempty" yaml:"notes,omitempty"`
	Timestamp          time.Time `gorm:"column:timestamp" json:"timestamp" yaml:"timestamp" validate:"required"`
	CurrencyUID        string    `gorm:"column:currency_uid" json:"currency_uid" yaml:"currency_uid" validate:"required"`
	Exported           bool      `gorm:"column:exported" json:"exported" yaml:"exported"`
	IsTemplate         bool      `gorm:"column:is_template" json:"is_template" yaml:"is_template"`
	ScheduledActionUID *string   `gorm:"column:scheduled_action_uid" json:"scheduled_action_uid,omitempty" yaml:"scheduled_action_uid,omitempty"`
	CreatedAt          time.Time `gorm:"column:created_at" json:"created_at" yaml:"created_at"`
	ModifiedAt         time.Time `gorm:"column:modified_at;autoUpdateTime" json:"modified_at" yaml:"modified_at"`

	Splits []Split `gorm:"-" json:"splits" yaml:"splits" validate:"required,min=1,dive"`
}

func (Transaction) TableName() string { return "transactions" }

func (t *Transaction) BeforeSave(tx *gorm.DB) error {
	t.Timestamp = UTC(t.Timestamp)
	return nil
}

// Imbalance returns the signed sum of split values. A balanced
// transaction has a zero imbalance.
func (t *Transaction) Imbalance() amount.Amount {
	total := amount.Zero()
	for i := range t.Splits {
		total = total.Add(t.Splits[i].SignedValue())
	}
	return total
}

// Split is one leg of a transaction. Value is in the transaction
// currency, Quantity in the account's commodity. Both are stored as
// magnitudes; Type carries the sign.
type Split struct {
	ID             uint          `gorm:"primaryKey" json:"-" yaml:"-"`
	UID            string        `gorm:"column:uid" json:"uid" yaml:"uid"`
	TransactionUID string        `gorm:"column:transaction_uid" json:"transaction_uid" yaml:"transaction_uid"`
	AccountUID     string        `gorm:"column:account_uid" json:"account_uid" yaml:"account_uid" validate:"required"`
	Memo           string        `gorm:"column:memo" json:"memo,omitempty" yaml:"memo,omitempty"`
	Type           SplitType     `gorm:"column:type" json:"type" yaml:"type" validate:"required,oneof=DEBIT CREDIT"`
	Value          amount.Amount `gorm:"-" json:"value" yaml:"value"`
	Quantity       amount.Amount `gorm:"-" json:"quantity" yaml:"quantity"`
	ValueNum       int64         `gorm:"column:value_num" json:"-" yaml:"-"`
	ValueDenom     int64         `gorm:"column:value_denom" json:"-" yaml:"-"`
	QuantityNum    int64         `gorm:"column:quantity_num" json:"-" yaml:"-"`
	QuantityDenom  int64         `gorm:"column:quantity_denom" json:"-" yaml:"-"`
	ReconcileState string        `gorm:"column:reconcile_state" json:"reconcile_state" yaml:"reconcile_state"`
	ReconcileDate  time.Time     `gorm:"column:reconcile_date" json:"reconcile_date" yaml:"reconcile_date"`
	CreatedAt      time.Time     `gorm:"column:created_at" json:"created_at" yaml:"created_at"`
	ModifiedAt     time.Time     `gorm:"column:modified_at;autoUpdateTime" json:"modified_at" yaml:"modified_at"`
}

func (Split) TableName() string { return "splits" }

// SignedValue is +value for debits and -value for credits.
func (s *Split) SignedValue() amount.Amount {
	if s.Type == Credit {
		return s.Value.Abs().Neg()
	}
	return s.Value.Abs()
}

// SignedQuantity is +quantity for debits and -quantity for credits.
func (s *Split) SignedQuantity() amount.Amount {
	if s.Type == Credit {
		return s.Quantity.Abs().Neg()
	}
	return s.Quantity.Abs()
}

// Normalize folds a negative amount into the opposite split type so that
// stored amounts are magnitudes. Value and quantity must not have
// opposite signs.
func (s *Split) Normalize() error {
	if s.Value.Sign()*s.Quantity.Sign() < 0 {
		return &InvalidRecordError{Entity: "split", UID: s.UID,
			Reason: "value " + s.Value.String() + " and quantity " + s.Quantity.String() + " have opposite signs"}
	}
	if s.Value.IsNegative() || (s.Value.IsZero() && s.Quantity.IsNegative()) {
		s.Type = s.Type.Invert()
		s.Value = s.Value.Neg()
		s.Quantity = s.Quantity.Neg()
	}
	if s.ReconcileState == "" {
		s.ReconcileState = ReconcileNew
	}
	return nil
}

func (s *Split) BeforeSave(tx *gorm.DB) error {
	var err error
	if s.ValueNum, s.ValueDenom, err = s.Value.Int64Parts(); err != nil {
		return fmt.Errorf("split %s value: %w", s.UID, err)
	}
	if s.QuantityNum, s.QuantityDenom, err = s.Quantity.Int64Parts(); err != nil {
		return fmt.Errorf("split %s quantity: %w", s.UID, err)
	}
	s.ReconcileDate = UTC(s.ReconcileDate)
	return nil
}

func (s *Split) AfterFind(tx *gorm.DB) error {
	s.Value = ratio(s.ValueNum, s.ValueDenom)
	s.Quantity = ratio(s.QuantityNum, s.QuantityDenom)
	return nil
}

func ratio(num, denom int64) amount.Amount {
	if denom == 0 {
		return amount.Zero()
	}
	return amount.New(num, denom)
}
