package models

import (
	"time"

	"gorm.io/gorm"
)

// PeriodType is the unit a recurrence repeats in.
type PeriodType string

const (
	PeriodHour  PeriodType = "HOUR"
	PeriodDay   PeriodType = "DAY"
	PeriodWeek  PeriodType = "WEEK"
	PeriodMonth PeriodType = "MONTH"
	PeriodYear  PeriodType = "YEAR"
)

// Recurrence describes the occurrence instants of a schedule or budget.
// ByDay is a comma separated list of weekday codes ("MO,WE,FR") and only
// applies to weekly and monthly rules.
type Recurrence struct {
	ID          uint       `gorm:"primaryKey" json:"-" yaml:"-"`
	UID         string     `gorm:"column:uid" json:"uid" yaml:"uid"`
	PeriodType  PeriodType `gorm:"column:period_type" json:"period_type" yaml:"period_type" validate:"required"`
	Multiplier  int        `gorm:"column:multiplier" json:"multiplier" yaml:"multiplier"`
	ByDay       string     `gorm:"column:by_day" json:"by_day,omitempty" yaml:"by_day,omitempty"`
	PeriodStart time.Time  `gorm:"column:period_start" json:"period_start" yaml:"period_start"`
	PeriodEnd   *time.Time `gorm:"column:period_end" json:"period_end,omitempty" yaml:"period_end,omitempty"`
	CreatedAt   time.Time  `gorm:"column:created_at" json:"created_at" yaml:"created_at"`
	ModifiedAt  time.Time  `gorm:"column:modified_at;autoUpdateTime" json:"modified_at" yaml:"modified_at"`
}

func (Recurrence) TableName() string { return "recurrences" }

func (r *Recurrence) BeforeSave(tx *gorm.DB) error {
	r.PeriodStart = UTC(r.PeriodStart)
	r.PeriodEnd = utcPtr(r.PeriodEnd)
	return nil
}
