package storage

import (
	"time"
)

// Migration represents a database migration
type Migration struct {
	ID          int       `db:"id"`
	Version     string    `db:"version"`
	Description string    `db:"description"`
	SQL         string    `db:"sql"`
	AppliedAt   time.Time `db:"applied_at"`
}

// GetSQLiteMigrations returns SQLite migration scripts
func GetSQLiteMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create notification_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notification_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id INTEGER NOT NULL,
					event_key TEXT NOT NULL,
					name TEXT NOT NULL,
					category TEXT NOT NULL DEFAULT '',
					variables TEXT NOT NULL DEFAULT '[]', -- JSON
					default_channels TEXT NOT NULL DEFAULT '[]', -- JSON
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_events_tenant_key ON notification_events(tenant_id, event_key);
			`,
		},
		{
			Version:     "002",
			Description: "Create templates table",
			SQL: `
				CREATE TABLE IF NOT EXISTS templates (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id INTEGER NOT NULL,
					event_key TEXT NOT NULL,
					name TEXT NOT NULL,
					subject TEXT NOT NULL DEFAULT '',
					email_html TEXT NOT NULL DEFAULT '',
					email_text TEXT NOT NULL DEFAULT '',
					channels TEXT NOT NULL DEFAULT '{}', -- JSON
					is_active BOOLEAN DEFAULT TRUE,
					is_system BOOLEAN DEFAULT FALSE,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_templates_tenant_event ON templates(tenant_id, event_key, is_active);
			`,
		},
		{
			Version:     "003",
			Description: "Create workflows table",
			SQL: `
				CREATE TABLE IF NOT EXISTS workflows (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id INTEGER NOT NULL,
					name TEXT NOT NULL,
					trigger_event TEXT NOT NULL,
					template_id INTEGER NOT NULL,
					gateway_id INTEGER,
					channel TEXT NOT NULL,
					schedule_type TEXT NOT NULL DEFAULT 'immediate',
					delay_minutes INTEGER NOT NULL DEFAULT 0,
					schedule_reference TEXT NOT NULL DEFAULT '',
					schedule_offset INTEGER NOT NULL DEFAULT 0,
					schedule_unit TEXT NOT NULL DEFAULT 'minutes',
					conditions TEXT NOT NULL DEFAULT '[]', -- JSON
					is_active BOOLEAN DEFAULT TRUE,
					priority INTEGER NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					FOREIGN KEY (template_id) REFERENCES templates (id)
				);

				CREATE INDEX IF NOT EXISTS idx_workflows_tenant_event ON workflows(tenant_id, trigger_event, is_active);
			`,
		},
		{
			Version:     "004",
			Description: "Create gateways table",
			SQL: `
				CREATE TABLE IF NOT EXISTS gateways (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id INTEGER NOT NULL,
					name TEXT NOT NULL,
					type TEXT NOT NULL,
					provider TEXT NOT NULL,
					config TEXT NOT NULL DEFAULT '{}', -- JSON
					is_active BOOLEAN DEFAULT TRUE,
					total_sent INTEGER NOT NULL DEFAULT 0,
					total_failed INTEGER NOT NULL DEFAULT 0,
					daily_sent INTEGER NOT NULL DEFAULT 0,
					daily_date TEXT NOT NULL DEFAULT '',
					cost_per_message REAL NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_gateways_tenant_type ON gateways(tenant_id, type, is_active);
			`,
		},
		{
			Version:     "005",
			Description: "Create queue_items table",
			SQL: `
				CREATE TABLE IF NOT EXISTS queue_items (
					id TEXT PRIMARY KEY,
					tenant_id INTEGER NOT NULL,
					workflow_id INTEGER,
					event_key TEXT NOT NULL,
					user_id INTEGER,
					channel TEXT NOT NULL,
					gateway_id INTEGER,
					recipient TEXT NOT NULL,
					payload TEXT NOT NULL DEFAULT '{}', -- JSON
					scheduled_at DATETIME NOT NULL,
					next_attempt_at DATETIME NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending',
					retry_count INTEGER NOT NULL DEFAULT 0,
					max_retries INTEGER NOT NULL DEFAULT 3,
					error_message TEXT,
					gateway_message_id TEXT,
					cost REAL NOT NULL DEFAULT 0,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
					sent_at DATETIME
				);

				CREATE INDEX IF NOT EXISTS idx_queue_claim ON queue_items(status, scheduled_at, next_attempt_at);
				CREATE INDEX IF NOT EXISTS idx_queue_tenant ON queue_items(tenant_id, status);
			`,
		},
		{
			Version:     "006",
			Description: "Create user_channel_preferences table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_channel_preferences (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id INTEGER NOT NULL,
					user_id INTEGER NOT NULL,
					event_key TEXT NOT NULL,
					channel TEXT NOT NULL,
					is_enabled BOOLEAN NOT NULL,
					updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_prefs_unique ON user_channel_preferences(tenant_id, user_id, event_key, channel);
			`,
		},
		{
			Version:     "007",
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					tenant_id INTEGER NOT NULL,
					name TEXT NOT NULL,
					email TEXT NOT NULL DEFAULT '',
					phone TEXT NOT NULL DEFAULT '',
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_users_tenant ON users(tenant_id);
			`,
		},
		{
			Version:     "008",
			Description: "Create audit_log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id TEXT PRIMARY KEY,
					tenant_id INTEGER NOT NULL,
					workflow_id INTEGER,
					event_key TEXT NOT NULL,
					user_id INTEGER,
					recipient TEXT NOT NULL,
					channel TEXT NOT NULL,
					template_id INTEGER,
					status TEXT NOT NULL,
					error TEXT,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);

				CREATE INDEX IF NOT EXISTS idx_audit_tenant_event ON audit_log(tenant_id, event_key);
				CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_log(created_at);
			`,
		},
		{
			Version:     "009",
			Description: "Create migrations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS migrations (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					version TEXT NOT NULL UNIQUE,
					description TEXT NOT NULL,
					applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
				);
			`,
		},
	}
}

// GetPostgresMigrations returns PostgreSQL migration scripts
func GetPostgresMigrations() []*Migration {
	return []*Migration{
		{
			Version:     "001",
			Description: "Create notification_events table",
			SQL: `
				CREATE TABLE IF NOT EXISTS notification_events (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL,
					event_key TEXT NOT NULL,
					name TEXT NOT NULL,
					category TEXT NOT NULL DEFAULT '',
					variables JSONB NOT NULL DEFAULT '[]',
					default_channels JSONB NOT NULL DEFAULT '[]',
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_events_tenant_key ON notification_events(tenant_id, event_key);
			`,
		},
		{
			Version:     "002",
			Description: "Create templates table",
			SQL: `
				CREATE TABLE IF NOT EXISTS templates (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL,
					event_key TEXT NOT NULL,
					name TEXT NOT NULL,
					subject TEXT NOT NULL DEFAULT '',
					email_html TEXT NOT NULL DEFAULT '',
					email_text TEXT NOT NULL DEFAULT '',
					channels JSONB NOT NULL DEFAULT '{}',
					is_active BOOLEAN DEFAULT TRUE,
					is_system BOOLEAN DEFAULT FALSE,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_templates_tenant_event ON templates(tenant_id, event_key, is_active);
			`,
		},
		{
			Version:     "003",
			Description: "Create workflows table",
			SQL: `
				CREATE TABLE IF NOT EXISTS workflows (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL,
					name TEXT NOT NULL,
					trigger_event TEXT NOT NULL,
					template_id BIGINT NOT NULL,
					gateway_id BIGINT,
					channel TEXT NOT NULL,
					schedule_type TEXT NOT NULL DEFAULT 'immediate',
					delay_minutes INTEGER NOT NULL DEFAULT 0,
					schedule_reference TEXT NOT NULL DEFAULT '',
					schedule_offset INTEGER NOT NULL DEFAULT 0,
					schedule_unit TEXT NOT NULL DEFAULT 'minutes',
					conditions JSONB NOT NULL DEFAULT '[]',
					is_active BOOLEAN DEFAULT TRUE,
					priority INTEGER NOT NULL DEFAULT 0,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					CONSTRAINT fk_workflows_template FOREIGN KEY (template_id) REFERENCES templates (id)
				);

				CREATE INDEX IF NOT EXISTS idx_workflows_tenant_event ON workflows(tenant_id, trigger_event, is_active);
			`,
		},
		{
			Version:     "004",
			Description: "Create gateways table",
			SQL: `
				CREATE TABLE IF NOT EXISTS gateways (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL,
					name TEXT NOT NULL,
					type TEXT NOT NULL,
					provider TEXT NOT NULL,
					config JSONB NOT NULL DEFAULT '{}',
					is_active BOOLEAN DEFAULT TRUE,
					total_sent BIGINT NOT NULL DEFAULT 0,
					total_failed BIGINT NOT NULL DEFAULT 0,
					daily_sent BIGINT NOT NULL DEFAULT 0,
					daily_date TEXT NOT NULL DEFAULT '',
					cost_per_message DOUBLE PRECISION NOT NULL DEFAULT 0,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_gateways_tenant_type ON gateways(tenant_id, type, is_active);
			`,
		},
		{
			Version:     "005",
			Description: "Create queue_items table",
			SQL: `
				CREATE TABLE IF NOT EXISTS queue_items (
					id TEXT PRIMARY KEY,
					tenant_id BIGINT NOT NULL,
					workflow_id BIGINT,
					event_key TEXT NOT NULL,
					user_id BIGINT,
					channel TEXT NOT NULL,
					gateway_id BIGINT,
					recipient TEXT NOT NULL,
					payload JSONB NOT NULL DEFAULT '{}',
					scheduled_at TIMESTAMP WITH TIME ZONE NOT NULL,
					next_attempt_at TIMESTAMP WITH TIME ZONE NOT NULL,
					status TEXT NOT NULL DEFAULT 'pending',
					retry_count INTEGER NOT NULL DEFAULT 0,
					max_retries INTEGER NOT NULL DEFAULT 3,
					error_message TEXT,
					gateway_message_id TEXT,
					cost DOUBLE PRECISION NOT NULL DEFAULT 0,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
					sent_at TIMESTAMP WITH TIME ZONE
				);

				CREATE INDEX IF NOT EXISTS idx_queue_claim ON queue_items(status, scheduled_at, next_attempt_at);
				CREATE INDEX IF NOT EXISTS idx_queue_tenant ON queue_items(tenant_id, status);
			`,
		},
		{
			Version:     "006",
			Description: "Create user_channel_preferences table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_channel_preferences (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL,
					user_id BIGINT NOT NULL,
					event_key TEXT NOT NULL,
					channel TEXT NOT NULL,
					is_enabled BOOLEAN NOT NULL,
					updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE UNIQUE INDEX IF NOT EXISTS idx_prefs_unique ON user_channel_preferences(tenant_id, user_id, event_key, channel);
			`,
		},
		{
			Version:     "007",
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					tenant_id BIGINT NOT NULL,
					name TEXT NOT NULL,
					email TEXT NOT NULL DEFAULT '',
					phone TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_users_tenant ON users(tenant_id);
			`,
		},
		{
			Version:     "008",
			Description: "Create audit_log table",
			SQL: `
				CREATE TABLE IF NOT EXISTS audit_log (
					id TEXT PRIMARY KEY,
					tenant_id BIGINT NOT NULL,
					workflow_id BIGINT,
					event_key TEXT NOT NULL,
					user_id BIGINT,
					recipient TEXT NOT NULL,
					channel TEXT NOT NULL,
					template_id BIGINT,
					status TEXT NOT NULL,
					error TEXT,
					created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);

				CREATE INDEX IF NOT EXISTS idx_audit_tenant_event ON audit_log(tenant_id, event_key);
				CREATE INDEX IF NOT EXISTS idx_audit_created_at ON audit_log(created_at);
			`,
		},
		{
			Version:     "009",
			Description: "Create migrations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS migrations (
					id SERIAL PRIMARY KEY,
					version TEXT NOT NULL UNIQUE,
					description TEXT NOT NULL,
					applied_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
				);
			`,
		},
	}
}
