package models

import (
	"time"

	"gorm.io/gorm"
)

// ActionType says what a scheduled action does when it fires.
type ActionType string

const (
	ActionTransaction ActionType = "TRANSACTION"
	ActionBackup      ActionType = "BACKUP"
)

// ScheduledAction periodically materializes a template transaction or
// triggers a backup. AdvanceCreation and AdvanceNotify are in days.
// A zero TotalFrequency means unlimited.
type ScheduledAction struct {
	ID                 uint       `gorm:"primaryKey" json:"-" yaml:"-"`
	UID                string     `gorm:"column:uid" json:"uid" yaml:"uid"`
	ActionUID          string     `gorm:"column:action_uid" json:"action_uid" yaml:"action_uid"`
	Type               ActionType `gorm:"column:type" json:"type" yaml:"type" validate:"required,oneof=TRANSACTION BACKUP"`
	RecurrenceUID      string     `gorm:"column:recurrence_uid" json:"recurrence_uid" yaml:"recurrence_uid"`
	TemplateAccountUID string     `gorm:"column:template_account_uid" json:"template_account_uid,omitempty" yaml:"template_account_uid,omitempty"`
	StartTime          time.Time  `gorm:"column:start_time" json:"start_time" yaml:"start_time" validate:"required"`
	EndTime            *time.Time `gorm:"column:end_time" json:"end_time,omitempty" yaml:"end_time,omitempty"`
	LastRun            *time.Time `gorm:"column:last_run" json:"last_run,omitempty" yaml:"last_run,omitempty"`
	Tag                string     `gorm:"column:tag" json:"tag,omitempty" yaml:"tag,omitempty"`
	Enabled            bool       `gorm:"column:enabled" json:"enabled" yaml:"enabled"`
	AutoCreate         bool       `gorm:"column:auto_create" json:"auto_create" yaml:"auto_create"`
	AutoNotify         bool       `gorm:"column:auto_notify" json:"auto_notify" yaml:"auto_notify"`
	AdvanceCreation    int        `gorm:"column:advance_creation" json:"advance_creation" yaml:"advance_creation" validate:"min=0"`
	AdvanceNotify      int        `gorm:"column:advance_notify" json:"advance_notify" yaml:"advance_notify" validate:"min=0"`
	TotalFrequency     int        `gorm:"column:total_frequency" json:"total_frequency" yaml:"total_frequency" validate:"min=0"`
	ExecutionCount     int        `gorm:"column:execution_count" json:"execution_count" yaml:"execution_count" validate:"min=0"`
	CreatedAt          time.Time  `gorm:"column:created_at" json:"created_at" yaml:"created_at"`
	ModifiedAt         time.Time  `gorm:"column:modified_at;autoUpdateTime" json:"modified_at" yaml:"modified_at"`

	Recurrence *Recurrence `gorm:"-" json:"recurrence,omitempty" yaml:"recurrence,omitempty"`
}

func (ScheduledAction) TableName() string { return "scheduled_actions" }

func (a *ScheduledAction) BeforeSave(tx *gorm.DB) error {
	a.StartTime = UTC(a.StartTime)
	a.EndTime = utcPtr(a.EndTime)
	a.LastRun = utcPtr(a.LastRun)
	return nil
}
