package models

import (
	"fmt"
	"time"

	"cashbook/internal/amount"

	"gorm.io/gorm"
)

// Price is the value of one unit of Commodity expressed in Currency.
// Only one price per (commodity, currency) pair is kept.
type Price struct {
	ID           uint          `gorm:"primaryKey" json:"-" yaml:"-"`
	UID          string        `gorm:"column:uid" json:"uid" yaml:"uid"`
	CommodityUID string        `gorm:"column:commodity_uid" json:"commodity_uid" yaml:"commodity_uid" validate:"required"`
	CurrencyUID  string        `gorm:"column:currency_uid" json:"currency_uid" yaml:"currency_uid" validate:"required,nefield=CommodityUID"`
	Date         time.Time     `gorm:"column:date" json:"date" yaml:"date" validate:"required"`
	Source       string        `gorm:"column:source" json:"source,omitempty" yaml:"source,omitempty"`
	Type         string        `gorm:"column:type" json:"type,omitempty" yaml:"type,omitempty"`
	Value        amount.Amount `gorm:"-" json:"value" yaml:"value"`
	ValueNum     int64         `gorm:"column:value_num" json:"-" yaml:"-"`
	ValueDenom   int64         `gorm:"column:value_denom" json:"-" yaml:"-"`
	CreatedAt    time.Time     `gorm:"column:created_at" json:"created_at" yaml:"created_at"`
	ModifiedAt   time.Time     `gorm:"column:modified_at;autoUpdateTime" json:"modified_at" yaml:"modified_at"`
}

func (Price) TableName() string { return "prices" }

func (p *Price) BeforeSave(tx *gorm.DB) error {
	var err error
	if p.ValueNum, p.ValueDenom, err = p.Value.Int64Parts(); err != nil {
		return fmt.Errorf("price %s value: %w", p.UID, err)
	}
	p.Date = UTC(p.Date)
	return nil
}

func (p *Price) AfterFind(tx *gorm.DB) error {
	p.Value = ratio(p.ValueNum, p.ValueDenom)
	return nil
}
