package database

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Migration is one schema step. Steps are applied in Version order and
// each runs in its own transaction.
type Migration struct {
	Version int
	Name    string
	Up      func(tx *gorm.DB) error
}

// Migrations is the ordered schema history. Versions must be 1..N with
// no gaps; append new steps at the end.
var Migrations = []Migration{
	{Version: 1, Name: "ledger core tables", Up: execAll(coreSchema)},
	{Version: 2, Name: "backup registry", Up: execAll(backupSchema)},
}

var coreSchema = []string{
	`CREATE TABLE commodities (
		id                integer primary key autoincrement,
		uid               varchar(255) not null UNIQUE,
		namespace         varchar(255) not null default 'ISO4217',
		fullname          varchar(255) not null,
		mnemonic          varchar(255) not null,
		local_symbol      varchar(255) not null default '',
		cusip             varchar(255),
		smallest_fraction integer not null,
		quote_flag        integer not null,
		created_at        timestamp not null default current_timestamp,
		modified_at       timestamp not null default current_timestamp
	)`,
	`CREATE UNIQUE INDEX commodities_mnemonic_idx ON commodities(namespace, mnemonic)`,

	`CREATE TABLE recurrences (
		id           integer primary key autoincrement,
		uid          varchar(255) not null UNIQUE,
		multiplier   integer not null default 1,
		period_type  varchar(255) not null,
		by_day       varchar(255),
		period_start timestamp not null,
		period_end   timestamp,
		created_at   timestamp not null default current_timestamp,
		modified_at  timestamp not null default current_timestamp
	)`,

	`CREATE TABLE accounts (
		id                           integer primary key autoincrement,
		uid                          varchar(255) not null UNIQUE,
		name                         varchar(255) not null,
		type                         varchar(255) not null,
		commodity_uid                varchar(255) not null,
		description                  varchar(255),
		color                        varchar(255),
		favorite                     tinyint default 0,
		hidden                       tinyint default 0,
		full_name                    varchar(255),
		placeholder                  tinyint default 0,
		parent_uid                   varchar(255),
		default_transfer_account_uid varchar(255),
		created_at                   timestamp not null default current_timestamp,
		modified_at                  timestamp not null default current_timestamp,
		FOREIGN KEY (commodity_uid) REFERENCES commodities (uid),
		FOREIGN KEY (parent_uid) REFERENCES accounts (uid)
	)`,
	`CREATE INDEX accounts_parent_idx ON accounts(parent_uid)`,

	`CREATE TABLE scheduled_actions (
		id                   integer primary key autoincrement,
		uid                  varchar(255) not null UNIQUE,
		action_uid           varchar(255) not null,
		type                 varchar(255) not null,
		recurrence_uid       varchar(255) not null,
		template_account_uid varchar(255) not null default '',
		last_run             timestamp,
		start_time           timestamp not null,
		end_time             timestamp,
		tag                  text,
		enabled              tinyint default 1,
		auto_create          tinyint default 1,
		auto_notify          tinyint default 0,
		advance_creation     integer default 0,
		advance_notify       integer default 0,
		total_frequency      integer default 0,
		execution_count      integer default 0,
		created_at           timestamp not null default current_timestamp,
		modified_at          timestamp not null default current_timestamp,
		FOREIGN KEY (recurrence_uid) REFERENCES recurrences (uid)
	)`,

	`CREATE TABLE transactions (
		id                   integer primary key autoincrement,
		uid                  varchar(255) not null UNIQUE,
		description          varchar(255),
		notes                text,
		timestamp            timestamp not null,
		exported             tinyint default 0,
		is_template          tinyint default 0,
		currency_uid         varchar(255) not null,
		scheduled_action_uid varchar(255),
		created_at           timestamp not null default current_timestamp,
		modified_at          timestamp not null default current_timestamp,
		FOREIGN KEY (scheduled_action_uid) REFERENCES scheduled_actions (uid) ON DELETE SET NULL,
		FOREIGN KEY (currency_uid) REFERENCES commodities (uid)
	)`,
	`CREATE INDEX transactions_timestamp_idx ON transactions(timestamp)`,

	// Splits are owned by their transaction. Removing an account removes
	// its splits explicitly in the store, not through the schema.
	`CREATE TABLE splits (
		id              integer primary key autoincrement,
		uid             varchar(255) not null UNIQUE,
		memo            text,
		type            varchar(255) not null,
		value_num       integer not null,
		value_denom     integer not null,
		quantity_num    integer not null,
		quantity_denom  integer not null,
		account_uid     varchar(255) not null,
		transaction_uid varchar(255) not null,
		reconcile_state varchar(1) not null default 'n',
		reconcile_date  timestamp not null default current_timestamp,
		created_at      timestamp not null default current_timestamp,
		modified_at     timestamp not null default current_timestamp,
		FOREIGN KEY (account_uid) REFERENCES accounts (uid),
		FOREIGN KEY (transaction_uid) REFERENCES transactions (uid) ON DELETE CASCADE
	)`,
	`CREATE INDEX splits_account_idx ON splits(account_uid)`,
	`CREATE INDEX splits_transaction_idx ON splits(transaction_uid)`,

	`CREATE TABLE prices (
		id            integer primary key autoincrement,
		uid           varchar(255) not null UNIQUE,
		commodity_uid varchar(255) not null,
		currency_uid  varchar(255) not null,
		type          varchar(255),
		date          timestamp not null,
		source        text,
		value_num     integer not null,
		value_denom   integer not null,
		created_at    timestamp not null default current_timestamp,
		modified_at   timestamp not null default current_timestamp,
		UNIQUE (commodity_uid, currency_uid) ON CONFLICT REPLACE,
		FOREIGN KEY (commodity_uid) REFERENCES commodities (uid) ON DELETE CASCADE,
		FOREIGN KEY (currency_uid) REFERENCES commodities (uid) ON DELETE CASCADE
	)`,

	`CREATE TABLE budgets (
		id             integer primary key autoincrement,
		uid            varchar(255) not null UNIQUE,
		name           varchar(255) not null,
		description    varchar(255),
		recurrence_uid varchar(255) not null,
		num_periods    integer,
		created_at     timestamp not null default current_timestamp,
		modified_at    timestamp not null default current_timestamp,
		FOREIGN KEY (recurrence_uid) REFERENCES recurrences (uid)
	)`,

	`CREATE TABLE budget_amounts (
		id           integer primary key autoincrement,
		uid          varchar(255) not null UNIQUE,
		budget_uid   varchar(255) not null,
		account_uid  varchar(255) not null,
		amount_num   integer not null,
		amount_denom integer not null,
		period_num   integer not null,
		created_at   timestamp not null default current_timestamp,
		modified_at  timestamp not null default current_timestamp,
		FOREIGN KEY (account_uid) REFERENCES accounts (uid),
		FOREIGN KEY (budget_uid) REFERENCES budgets (uid) ON DELETE CASCADE
	)`,
}

var backupSchema = []string{
	`CREATE TABLE backups (
		id         integer primary key autoincrement,
		uid        varchar(255) not null UNIQUE,
		file_name  varchar(255) not null,
		file_path  varchar(1024) not null,
		size       integer not null default 0,
		reason     varchar(32) not null default 'manual',
		created_at timestamp not null default current_timestamp
	)`,
}

func execAll(stmts []string) func(tx *gorm.DB) error {
	return func(tx *gorm.DB) error {
		for _, stmt := range stmts {
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return nil
	}
}

// ValidateMigrations checks that versions run 1..N without gaps.
func ValidateMigrations(ms []Migration) error {
	for i, m := range ms {
		if m.Version != i+1 {
			return fmt.Errorf("migration %q has version %d, expected %d", m.Name, m.Version, i+1)
		}
		if m.Up == nil {
			return fmt.Errorf("migration %d (%s) has no Up step", m.Version, m.Name)
		}
	}
	return nil
}

type schemaMigration struct {
	Version   int       `gorm:"column:version;primaryKey"`
	Name      string    `gorm:"column:name"`
	AppliedAt time.Time `gorm:"column:applied_at"`
}

func (schemaMigration) TableName() string { return "schema_migrations" }

// CurrentVersion returns the highest applied migration version.
func CurrentVersion(db *gorm.DB) (int, error) {
	if err := ensureVersionTable(db); err != nil {
		return 0, err
	}
	var v int
	if err := db.Raw("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v).Error; err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}

func ensureVersionTable(db *gorm.DB) error {
	err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    integer primary key,
		name       varchar(255) not null,
		applied_at timestamp not null
	)`).Error
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

// Migrate applies every pending step of the schema history.
func Migrate(db *gorm.DB) error {
	return migrate(db, Migrations)
}

func migrate(db *gorm.DB, ms []Migration) error {
	if err := ValidateMigrations(ms); err != nil {
		return err
	}
	current, err := CurrentVersion(db)
	if err != nil {
		return err
	}
	if current > len(ms) {
		return fmt.Errorf("database schema version %d is newer than this build (%d)", current, len(ms))
	}
	for _, m := range ms[current:] {
		m := m
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := m.Up(tx); err != nil {
				return err
			}
			return tx.Create(&schemaMigration{Version: m.Version, Name: m.Name, AppliedAt: time.Now().UTC()}).Error
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}
