package models

import (
	"fmt"
	"time"
)

// AccountType is the closed set of account kinds.
type AccountType string

const (
	AccountCash       AccountType = "CASH"
	AccountBank       AccountType = "BANK"
	AccountCredit     AccountType = "CREDIT"
	AccountAsset      AccountType = "ASSET"
	AccountLiability  AccountType = "LIABILITY"
	AccountIncome     AccountType = "INCOME"
	AccountExpense    AccountType = "EXPENSE"
	AccountPayable    AccountType = "PAYABLE"
	AccountReceivable AccountType = "RECEIVABLE"
	AccountEquity     AccountType = "EQUITY"
	AccountCurrency   AccountType = "CURRENCY"
	AccountStock      AccountType = "STOCK"
	AccountMutual     AccountType = "MUTUAL"
	AccountTrading    AccountType = "TRADING"
	AccountRoot       AccountType = "ROOT"
)

var accountTypes = map[AccountType]bool{
	AccountCash: true, AccountBank: true, AccountCredit: true, AccountAsset: true,
	AccountLiability: true, AccountIncome: true, AccountExpense: true, AccountPayable: true,
	AccountReceivable: true, AccountEquity: true, AccountCurrency: true, AccountStock: true,
	AccountMutual: true, AccountTrading: true, AccountRoot: true,
}

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool { return accountTypes[t] }

// CreditNormal reports whether balances of this type are displayed
// credit-positive.
func (t AccountType) CreditNormal() bool {
	switch t {
	case AccountCredit, AccountLiability, AccountIncome, AccountPayable, AccountEquity:
		return true
	}
	return false
}

// ParseAccountType accepts the canonical upper-case names.
func ParseAccountType(s string) (AccountType, error) {
	t := AccountType(s)
	if !t.Valid() {
		return "", &InvalidRecordError{Entity: "account", Reason: fmt.Sprintf("unknown account type %q", s)}
	}
	return t, nil
}

// FullNameSeparator joins account names along the parent chain.
const FullNameSeparator = ":"

// Account is a node in the account tree.
type Account struct {
	ID                        uint        `gorm:"primaryKey" json:"-" yaml:"-"`
	UID                       string      `gorm:"column:uid" json:"uid" yaml:"uid"`
	Name                      string      `gorm:"column:name" json:"name" yaml:"name" validate:"required,max=255"`
	Type                      AccountType `gorm:"column:type" json:"type" yaml:"type" validate:"required"`
	CommodityUID              string      `gorm:"column:commodity_uid" json:"commodity_uid" yaml:"commodity_uid" validate:"required"`
	Description               string      `gorm:"column:description" json:"description" yaml:"description,omitempty"`
	Color                     string      `gorm:"column:color" json:"color,omitempty" yaml:"color,omitempty"`
	FullName                  string      `gorm:"column:full_name" json:"full_name" yaml:"full_name"`
	ParentUID                 *string     `gorm:"column:parent_uid" json:"parent_uid,omitempty" yaml:"parent_uid,omitempty"`
	DefaultTransferAccountUID *string     `gorm:"column:default_transfer_account_uid" json:"default_transfer_account_uid,omitempty" yaml:"default_transfer_account_uid,omitempty"`
	Placeholder               bool        `gorm:"column:placeholder" json:"placeholder" yaml:"placeholder"`
	Hidden                    bool        `gorm:"column:hidden" json:"hidden" yaml:"hidden"`
	Favorite                  bool        `gorm:"column:favorite" json:"favorite" yaml:"favorite"`
	CreatedAt                 time.Time   `gorm:"column:created_at" json:"created_at" yaml:"created_at"`
	ModifiedAt                time.Time   `gorm:"column:modified_at;autoUpdateTime" json:"modified_at" yaml:"modified_at"`
}

func (Account) TableName() string { return "accounts" }
