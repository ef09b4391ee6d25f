package models

import (
	"fmt"
	"time"

	"cashbook/internal/amount"

	"gorm.io/gorm"
)

// AllPeriods marks a budget amount that applies to every period.
const AllPeriods = -1

// Budget plans amounts per account over the periods of its recurrence.
// A zero NumPeriods means the budget is open ended.
type Budget struct {
	ID            uint      `gorm:"primaryKey" json:"-" yaml:"-"`
	UID           string    `gorm:"column:uid" json:"uid" yaml:"uid"`
	Name          string    `gorm:"column:name" json:"name" yaml:"name" validate:"required,max=255"`
	Description   string    `gorm:"column:description" json:"description,omitempty" yaml:"description,omitempty"`
	RecurrenceUID string    `gorm:"column:recurrence_uid" json:"recurrence_uid" yaml:"recurrence_uid"`
	NumPeriods    int       `gorm:"column:num_periods" json:"num_periods" yaml:"num_periods" validate:"min=0"`
	CreatedAt     time.Time `gorm:"column:created_at" json:"created_at" yaml:"created_at"`
	ModifiedAt    time.Time `gorm:"column:modified_at;autoUpdateTime" json:"modified_at" yaml:"modified_at"`

	Recurrence *Recurrence    `gorm:"-" json:"recurrence,omitempty" yaml:"recurrence,omitempty"`
	Amounts    []BudgetAmount `gorm:"-" json:"amounts" yaml:"amounts" validate:"dive"`
}

func (Budget) TableName() string { return "budgets" }

// BudgetAmount is the planned amount for one account in one period
// (or every period when PeriodNum is AllPeriods).
type BudgetAmount struct {
	ID          uint          `gorm:"primaryKey" json:"-" yaml:"-"`
	UID         string        `gorm:"column:uid" json:"uid" yaml:"uid"`
	BudgetUID   string        `gorm:"column:budget_uid" json:"budget_uid" yaml:"budget_uid"`
	AccountUID  string        `gorm:"column:account_uid" json:"account_uid" yaml:"account_uid" validate:"required"`
	Amount      amount.Amount `gorm:"-" json:"amount" yaml:"amount"`
	AmountNum   int64         `gorm:"column:amount_num" json:"-" yaml:"-"`
	AmountDenom int64         `gorm:"column:amount_denom" json:"-" yaml:"-"`
	PeriodNum   int           `gorm:"column:period_num" json:"period_num" yaml:"period_num" validate:"min=-1"`
	CreatedAt   time.Time     `gorm:"column:created_at" json:"created_at" yaml:"created_at"`
	ModifiedAt  time.Time     `gorm:"column:modified_at;autoUpdateTime" json:"modified_at" yaml:"modified_at"`
}

func (BudgetAmount) TableName() string { return "budget_amounts" }

func (b *BudgetAmount) BeforeSave(tx *gorm.DB) error {
	var err error
	if b.AmountNum, b.AmountDenom, err = b.Amount.Int64Parts(); err != nil {
		return fmt.Errorf("budget amount %s: %w", b.UID, err)
	}
	return nil
}

func (b *BudgetAmount) AfterFind(tx *gorm.DB) error {
	b.Amount = ratio(b.AmountNum, b.AmountDenom)
	return nil
}

// AppliesTo reports whether the amount counts towards period n.
func (b *BudgetAmount) AppliesTo(n int) bool {
	return b.PeriodNum == AllPeriods || b.PeriodNum == n
}
