package models

import "time"

const (
	NamespaceISO4217  = "ISO4217"
	NamespaceNASDAQ   = "NASDAQ"
	NamespaceNYSE     = "NYSE"
	NamespaceFund     = "FUND"
	NamespaceAmex     = "AMEX"
	NamespaceTemplate = "template"
)

// Commodity is a currency or security. SmallestFraction is the minimal
// denominator, e.g. 100 for a currency with two decimals.
type Commodity struct {
	ID               uint      `gorm:"primaryKey" json:"-" yaml:"-"`
	UID              string    `gorm:"column:uid" json:"uid" yaml:"uid"`
	Namespace        string    `gorm:"column:namespace" json:"namespace" yaml:"namespace" validate:"required"`
	Fullname         string    `gorm:"column:fullname" json:"fullname" yaml:"fullname"`
	Mnemonic         string    `gorm:"column:mnemonic" json:"mnemonic" yaml:"mnemonic" validate:"required,max=32"`
	LocalSymbol      string    `gorm:"column:local_symbol" json:"local_symbol" yaml:"local_symbol"`
	Cusip            string    `gorm:"column:cusip" json:"cusip,omitempty" yaml:"cusip,omitempty"`
	SmallestFraction int64     `gorm:"column:smallest_fraction" json:"smallest_fraction" yaml:"smallest_fraction" validate:"required,min=1"`
	QuoteFlag        bool      `gorm:"column:quote_flag" json:"quote_flag" yaml:"quote_flag"`
	CreatedAt        time.Time `gorm:"column:created_at" json:"created_at" yaml:"created_at"`
	ModifiedAt       time.Time `gorm:"column:modified_at;autoUpdateTime" json:"modified_at" yaml:"modified_at"`
}

func (Commodity) TableName() string { return "commodities" }

// Places returns the number of decimal places implied by SmallestFraction.
func (c *Commodity) Places() int32 {
	var p int32
	for f := c.SmallestFraction; f >= 10; f /= 10 {
		p++
	}
	return p
}
