package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Instants are BIGINT Unix milliseconds in both dialects so that the
// repositories can share their SQL.

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS connected_accounts (
		id            VARCHAR(36)  NOT NULL PRIMARY KEY,
		user_id       VARCHAR(191) NOT NULL,
		provider      VARCHAR(32)  NOT NULL,
		account_id    VARCHAR(191) NOT NULL DEFAULT '',
		access_token  TEXT         NOT NULL,
		refresh_token TEXT         NULL,
		expires_at    BIGINT       NULL,
		scopes        TEXT         NULL,
		created_at    BIGINT       NOT NULL,
		updated_at    BIGINT       NOT NULL,
		UNIQUE KEY uq_account_user_provider (user_id, provider)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS schedule_blocks (
		id                VARCHAR(36)  NOT NULL PRIMARY KEY,
		user_id           VARCHAR(191) NOT NULL,
		title             VARCHAR(512) NOT NULL,
		start_at          BIGINT       NOT NULL,
		end_at            BIGINT       NOT NULL,
		source_type       VARCHAR(32)  NOT NULL DEFAULT 'custom',
		source_id         VARCHAR(191) NULL,
		provider          VARCHAR(32)  NULL,
		provider_event_id VARCHAR(512) NULL,
		mirror_state      VARCHAR(32)  NOT NULL DEFAULT 'not_requested',
		mirror_error      TEXT         NULL,
		created_at        BIGINT       NOT NULL,
		updated_at        BIGINT       NOT NULL,
		KEY idx_blocks_user_start (user_id, start_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS time_entries (
		id                VARCHAR(36)  NOT NULL PRIMARY KEY,
		user_id           VARCHAR(191) NOT NULL,
		source_type       VARCHAR(32)  NOT NULL DEFAULT 'custom',
		source_id         VARCHAR(191) NULL,
		started_at        BIGINT       NOT NULL,
		ended_at          BIGINT       NULL,
		pushed_to_jira_at BIGINT       NULL,
		KEY idx_entries_user_source (user_id, source_type, source_id),
		KEY idx_entries_user_started (user_id, started_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS today_entries (
		id        VARCHAR(36)  NOT NULL PRIMARY KEY,
		user_id   VARCHAR(191) NOT NULL,
		date_iso  CHAR(10)     NOT NULL,
		kind      VARCHAR(16)  NOT NULL,
		provider  VARCHAR(32)  NULL,
		source_id VARCHAR(191) NOT NULL,
		title     VARCHAR(512) NOT NULL,
		start_at  BIGINT       NULL,
		end_at    BIGINT       NULL,
		UNIQUE KEY uq_today_user_date_kind_source (user_id, date_iso, kind, source_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS today_issues (
		id          VARCHAR(36)  NOT NULL PRIMARY KEY,
		user_id     VARCHAR(191) NOT NULL,
		issue_key   VARCHAR(64)  NOT NULL,
		order_index INT          NOT NULL,
		notes       TEXT         NULL,
		created_at  BIGINT       NOT NULL,
		updated_at  BIGINT       NOT NULL,
		UNIQUE KEY uq_today_issue_user_key (user_id, issue_key)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS daily_stats (
		user_id    VARCHAR(191) NOT NULL,
		date_iso   CHAR(10)     NOT NULL,
		day_start  BIGINT       NULL,
		day_end    BIGINT       NULL,
		work_ms    BIGINT       NOT NULL DEFAULT 0,
		break_ms   BIGINT       NOT NULL DEFAULT 0,
		meeting_ms BIGINT       NOT NULL DEFAULT 0,
		focus_ms   BIGINT       NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, date_iso)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS settings (
		user_id                          VARCHAR(191) NOT NULL PRIMARY KEY,
		auto_push_worklog                TINYINT(1)   NOT NULL DEFAULT 0,
		default_worklog_comment_template TEXT         NULL,
		timezone                         VARCHAR(64)  NULL,
		google_months_before             INT          NOT NULL DEFAULT 1,
		google_months_after              INT          NOT NULL DEFAULT 1,
		microsoft_months_before          INT          NOT NULL DEFAULT 1,
		microsoft_months_after           INT          NOT NULL DEFAULT 1
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS connected_accounts (
		id            TEXT    NOT NULL PRIMARY KEY,
		user_id       TEXT    NOT NULL,
		provider      TEXT    NOT NULL,
		account_id    TEXT    NOT NULL DEFAULT '',
		access_token  TEXT    NOT NULL,
		refresh_token TEXT,
		expires_at    INTEGER,
		scopes        TEXT,
		created_at    INTEGER NOT NULL,
		updated_at    INTEGER NOT NULL,
		UNIQUE (user_id, provider)
	)`,
	`CREATE TABLE IF NOT EXISTS schedule_blocks (
		id                TEXT    NOT NULL PRIMARY KEY,
		user_id           TEXT    NOT NULL,
		title             TEXT    NOT NULL,
		start_at          INTEGER NOT NULL,
		end_at            INTEGER NOT NULL,
		source_type       TEXT    NOT NULL DEFAULT 'custom',
		source_id         TEXT,
		provider          TEXT,
		provider_event_id TEXT,
		mirror_state      TEXT    NOT NULL DEFAULT 'not_requested',
		mirror_error      TEXT,
		created_at        INTEGER NOT NULL,
		updated_at        INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_blocks_user_start ON schedule_blocks(user_id, start_at)`,
	`CREATE TABLE IF NOT EXISTS time_entries (
		id                TEXT    NOT NULL PRIMARY KEY,
		user_id           TEXT    NOT NULL,
		source_type       TEXT    NOT NULL DEFAULT 'custom',
		source_id         TEXT,
		started_at        INTEGER NOT NULL,
		ended_at          INTEGER,
		pushed_to_jira_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_user_source ON time_entries(user_id, source_type, source_id)`,
	`CREATE INDEX IF NOT EXISTS idx_entries_user_started ON time_entries(user_id, started_at)`,
	`CREATE TABLE IF NOT EXISTS today_entries (
		id        TEXT NOT NULL PRIMARY KEY,
		user_id   TEXT NOT NULL,
		date_iso  TEXT NOT NULL,
		kind      TEXT NOT NULL,
		provider  TEXT,
		source_id TEXT NOT NULL,
		title     TEXT NOT NULL,
		start_at  INTEGER,
		end_at    INTEGER,
		UNIQUE (user_id, date_iso, kind, source_id)
	)`,
	`CREATE TABLE IF NOT EXISTS today_issues (
		id          TEXT    NOT NULL PRIMARY KEY,
		user_id     TEXT    NOT NULL,
		issue_key   TEXT    NOT NULL,
		order_index INTEGER NOT NULL,
		notes       TEXT,
		created_at  INTEGER NOT NULL,
		updated_at  INTEGER NOT NULL,
		UNIQUE (user_id, issue_key)
	)`,
	`CREATE TABLE IF NOT EXISTS daily_stats (
		user_id    TEXT    NOT NULL,
		date_iso   TEXT    NOT NULL,
		day_start  INTEGER,
		day_end    INTEGER,
		work_ms    INTEGER NOT NULL DEFAULT 0,
		break_ms   INTEGER NOT NULL DEFAULT 0,
		meeting_ms INTEGER NOT NULL DEFAULT 0,
		focus_ms   INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (user_id, date_iso)
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		user_id                          TEXT    NOT NULL PRIMARY KEY,
		auto_push_worklog                INTEGER NOT NULL DEFAULT 0,
		default_worklog_comment_template TEXT,
		timezone                         TEXT,
		google_months_before             INTEGER NOT NULL DEFAULT 1,
		google_months_after              INTEGER NOT NULL DEFAULT 1,
		microsoft_months_before          INTEGER NOT NULL DEFAULT 1,
		microsoft_months_after           INTEGER NOT NULL DEFAULT 1
	)`,
}

// Migrate creates any missing tables.  It is safe to run on every start.
func Migrate(ctx context.Context, db *sql.DB, d Dialect) error {
	var stmts []string
	switch d {
	case MySQL:
		stmts = mysqlSchema
	case SQLite:
		stmts = sqliteSchema
	default:
		return fmt.Errorf("migrate: unknown dialect %q", d)
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
