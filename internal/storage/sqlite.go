package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/smartdevs17/notification-engine/internal/models"
	"github.com/smartdevs17/notification-engine/pkg/utils"
)

// SQLiteStorage implements Storage on an embedded SQLite database
type SQLiteStorage struct {
	db        *sql.DB
	config    *StorageConfig
	mu        sync.RWMutex
	connected bool
	lastPing  time.Time
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(config *StorageConfig) *SQLiteStorage {
	return &SQLiteStorage{
		config: config,
	}
}

// Connect establishes the database connection
func (s *SQLiteStorage) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	dir := filepath.Dir(s.config.ConnectionString)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create database directory", err.Error())
		}
	}

	db, err := sql.Open("sqlite", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open SQLite database", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetConnMaxIdleTime(s.config.MaxIdleTime)

	// WAL keeps readers from blocking the queue processor's writes
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to set pragma", err.Error())
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping SQLite database", err.Error())
	}

	s.db = db
	s.connected = true
	s.lastPing = time.Now()

	utils.GetLogger().WithField("path", s.config.ConnectionString).Info("Connected to SQLite database")
	return nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}

	err := s.db.Close()
	s.connected = false
	return err
}

// Ping checks database connectivity
func (s *SQLiteStorage) Ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return utils.NewAppError(utils.ErrCodeDatabase, "Storage not connected")
	}

	if err := s.db.Ping(); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Database ping failed", err.Error())
	}

	s.lastPing = time.Now()
	return nil
}

// Migrate runs pending database migrations
func (s *SQLiteStorage) Migrate() error {
	migrations := GetSQLiteMigrations()

	// migrations table first so the applied check below works on a fresh DB
	if _, err := s.db.Exec(migrations[len(migrations)-1].SQL); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create migrations table", err.Error())
	}

	for _, migration := range migrations {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM migrations WHERE version = ?", migration.Version).Scan(&count)
		if err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to check migration status", err.Error())
		}
		if count > 0 {
			continue
		}

		if _, err := s.db.Exec(migration.SQL); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase,
				fmt.Sprintf("Failed to apply migration %s", migration.Version), err.Error())
		}
		if _, err := s.db.Exec("INSERT INTO migrations (version, description) VALUES (?, ?)",
			migration.Version, migration.Description); err != nil {
			return utils.NewAppError(utils.ErrCodeDatabase, "Failed to record migration", err.Error())
		}

		utils.GetLogger().WithFields(map[string]interface{}{
			"version":     migration.Version,
			"description": migration.Description,
		}).Info("Applied migration")
	}

	return nil
}

// SaveEvent inserts a notification event definition
func (s *SQLiteStorage) SaveEvent(ctx context.Context, event *models.NotificationEvent) error {
	variablesJSON, err := marshalJSON(event.Variables)
	if err != nil {
		return err
	}
	channelsJSON, err := marshalJSON(event.DefaultChannels)
	if err != nil {
		return err
	}

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO notification_events (tenant_id, event_key, name, category, variables, default_channels, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		event.TenantID, event.EventKey, event.Name, event.Category,
		variablesJSON, channelsJSON, event.CreatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save event", err.Error())
	}

	event.ID, _ = result.LastInsertId()
	return nil
}

// GetEventByKey retrieves an event definition by its key
func (s *SQLiteStorage) GetEventByKey(ctx context.Context, scope models.TenantScope, eventKey string) (*models.NotificationEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, event_key, name, category, variables, default_channels, created_at
		FROM notification_events WHERE tenant_id = ? AND event_key = ?`,
		scope.TenantID, eventKey)

	event, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Event not found", eventKey)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get event", err.Error())
	}
	return event, nil
}

// GetEvents lists all event definitions for a tenant
func (s *SQLiteStorage) GetEvents(ctx context.Context, scope models.TenantScope) ([]*models.NotificationEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, event_key, name, category, variables, default_channels, created_at
		FROM notification_events WHERE tenant_id = ? ORDER BY event_key`,
		scope.TenantID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query events", err.Error())
	}
	defer rows.Close()

	var events []*models.NotificationEvent
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan event", err.Error())
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// SaveTemplate inserts a template
func (s *SQLiteStorage) SaveTemplate(ctx context.Context, tmpl *models.Template) error {
	channelsJSON, err := marshalJSON(tmpl.Channels)
	if err != nil {
		return err
	}

	now := time.Now()
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = now
	}
	tmpl.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO templates (tenant_id, event_key, name, subject, email_html, email_text, channels, is_active, is_system, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tmpl.TenantID, tmpl.EventKey, tmpl.Name, tmpl.Subject,
		tmpl.EmailHTML, tmpl.EmailText, channelsJSON,
		tmpl.IsActive, tmpl.IsSystem, tmpl.CreatedAt, tmpl.UpdatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save template", err.Error())
	}

	tmpl.ID, _ = result.LastInsertId()
	return nil
}

// GetTemplate retrieves a template by ID
func (s *SQLiteStorage) GetTemplate(ctx context.Context, scope models.TenantScope, id int64) (*models.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, event_key, name, subject, email_html, email_text, channels, is_active, is_system, created_at, updated_at
		FROM templates WHERE id = ? AND tenant_id = ?`,
		id, scope.TenantID)

	tmpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Template not found", fmt.Sprintf("id=%d", id))
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get template", err.Error())
	}
	return tmpl, nil
}

// GetActiveTemplateByEvent returns the newest active template for an event
func (s *SQLiteStorage) GetActiveTemplateByEvent(ctx context.Context, scope models.TenantScope, eventKey string) (*models.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, event_key, name, subject, email_html, email_text, channels, is_active, is_system, created_at, updated_at
		FROM templates WHERE tenant_id = ? AND event_key = ? AND is_active = TRUE
		ORDER BY updated_at DESC LIMIT 1`,
		scope.TenantID, eventKey)

	tmpl, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "No active template for event", eventKey)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get template", err.Error())
	}
	return tmpl, nil
}

// GetTemplates lists all templates for a tenant
func (s *SQLiteStorage) GetTemplates(ctx context.Context, scope models.TenantScope) ([]*models.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, event_key, name, subject, email_html, email_text, channels, is_active, is_system, created_at, updated_at
		FROM templates WHERE tenant_id = ? ORDER BY event_key, id`,
		scope.TenantID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query templates", err.Error())
	}
	defer rows.Close()

	var templates []*models.Template
	for rows.Next() {
		tmpl, err := scanTemplate(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan template", err.Error())
		}
		templates = append(templates, tmpl)
	}
	return templates, rows.Err()
}

// UpdateTemplate updates an existing template
func (s *SQLiteStorage) UpdateTemplate(ctx context.Context, tmpl *models.Template) error {
	channelsJSON, err := marshalJSON(tmpl.Channels)
	if err != nil {
		return err
	}

	tmpl.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE templates SET event_key = ?, name = ?, subject = ?, email_html = ?, email_text = ?, channels = ?, is_active = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`,
		tmpl.EventKey, tmpl.Name, tmpl.Subject, tmpl.EmailHTML, tmpl.EmailText,
		channelsJSON, tmpl.IsActive, tmpl.UpdatedAt, tmpl.ID, tmpl.TenantID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update template", err.Error())
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Template not found", fmt.Sprintf("id=%d", tmpl.ID))
	}
	return nil
}

// DeleteTemplate removes a template
func (s *SQLiteStorage) DeleteTemplate(ctx context.Context, scope models.TenantScope, id int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM templates WHERE id = ? AND tenant_id = ?", id, scope.TenantID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete template", err.Error())
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Template not found", fmt.Sprintf("id=%d", id))
	}
	return nil
}

// SaveWorkflow inserts a workflow
func (s *SQLiteStorage) SaveWorkflow(ctx context.Context, wf *models.Workflow) error {
	conditionsJSON, err := marshalJSON(wf.Conditions)
	if err != nil {
		return err
	}

	now := time.Now()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO workflows (tenant_id, name, trigger_event, template_id, gateway_id, channel,
			schedule_type, delay_minutes, schedule_reference, schedule_offset, schedule_unit,
			conditions, is_active, priority, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		wf.TenantID, wf.Name, wf.TriggerEvent, wf.TemplateID, wf.GatewayID, wf.Channel,
		wf.ScheduleType, wf.DelayMinutes, wf.ScheduleReference, wf.ScheduleOffset, wf.ScheduleUnit,
		conditionsJSON, wf.IsActive, wf.Priority, wf.CreatedAt, wf.UpdatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save workflow", err.Error())
	}

	wf.ID, _ = result.LastInsertId()
	return nil
}

// GetWorkflow retrieves a workflow by ID
func (s *SQLiteStorage) GetWorkflow(ctx context.Context, scope models.TenantScope, id int64) (*models.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, trigger_event, template_id, gateway_id, channel,
			schedule_type, delay_minutes, schedule_reference, schedule_offset, schedule_unit,
			conditions, is_active, priority, created_at, updated_at
		FROM workflows WHERE id = ? AND tenant_id = ?`,
		id, scope.TenantID)

	wf, err := scanWorkflow(row)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Workflow not found", fmt.Sprintf("id=%d", id))
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get workflow", err.Error())
	}
	return wf, nil
}

// GetWorkflowsByEvent returns workflows bound to a trigger event, ordered by
// priority then ID so fan-out order is deterministic
func (s *SQLiteStorage) GetWorkflowsByEvent(ctx context.Context, scope models.TenantScope, eventKey string, activeOnly bool) ([]*models.Workflow, error) {
	query := `
		SELECT id, tenant_id, name, trigger_event, template_id, gateway_id, channel,
			schedule_type, delay_minutes, schedule_reference, schedule_offset, schedule_unit,
			conditions, is_active, priority, created_at, updated_at
		FROM workflows WHERE tenant_id = ? AND trigger_event = ?`
	args := []interface{}{scope.TenantID, eventKey}
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY priority DESC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query workflows", err.Error())
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan workflow", err.Error())
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// GetWorkflows lists all workflows for a tenant
func (s *SQLiteStorage) GetWorkflows(ctx context.Context, scope models.TenantScope) ([]*models.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, trigger_event, template_id, gateway_id, channel,
			schedule_type, delay_minutes, schedule_reference, schedule_offset, schedule_unit,
			conditions, is_active, priority, created_at, updated_at
		FROM workflows WHERE tenant_id = ? ORDER BY trigger_event, priority DESC, id ASC`,
		scope.TenantID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query workflows", err.Error())
	}
	defer rows.Close()

	var workflows []*models.Workflow
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan workflow", err.Error())
		}
		workflows = append(workflows, wf)
	}
	return workflows, rows.Err()
}

// UpdateWorkflow updates an existing workflow
func (s *SQLiteStorage) UpdateWorkflow(ctx context.Context, wf *models.Workflow) error {
	conditionsJSON, err := marshalJSON(wf.Conditions)
	if err != nil {
		return err
	}

	wf.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE workflows SET name = ?, trigger_event = ?, template_id = ?, gateway_id = ?, channel = ?,
			schedule_type = ?, delay_minutes = ?, schedule_reference = ?, schedule_offset = ?, schedule_unit = ?,
			conditions = ?, is_active = ?, priority = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`,
		wf.Name, wf.TriggerEvent, wf.TemplateID, wf.GatewayID, wf.Channel,
		wf.ScheduleType, wf.DelayMinutes, wf.ScheduleReference, wf.ScheduleOffset, wf.ScheduleUnit,
		conditionsJSON, wf.IsActive, wf.Priority, wf.UpdatedAt, wf.ID, wf.TenantID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update workflow", err.Error())
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Workflow not found", fmt.Sprintf("id=%d", wf.ID))
	}
	return nil
}

// DeleteWorkflow removes a workflow
func (s *SQLiteStorage) DeleteWorkflow(ctx context.Context, scope models.TenantScope, id int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM workflows WHERE id = ? AND tenant_id = ?", id, scope.TenantID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete workflow", err.Error())
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Workflow not found", fmt.Sprintf("id=%d", id))
	}
	return nil
}

// SaveGateway inserts a gateway
func (s *SQLiteStorage) SaveGateway(ctx context.Context, gw *models.Gateway) error {
	configJSON, err := marshalJSON(gw.Config)
	if err != nil {
		return err
	}

	now := time.Now()
	if gw.CreatedAt.IsZero() {
		gw.CreatedAt = now
	}
	gw.UpdatedAt = now

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO gateways (tenant_id, name, type, provider, config, is_active,
			total_sent, total_failed, daily_sent, daily_date, cost_per_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		gw.TenantID, gw.Name, gw.Type, gw.Provider, configJSON, gw.IsActive,
		gw.TotalSent, gw.TotalFailed, gw.DailySent, gw.DailyDate, gw.CostPerMessage,
		gw.CreatedAt, gw.UpdatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save gateway", err.Error())
	}

	gw.ID, _ = result.LastInsertId()
	return nil
}

// GetGateway retrieves a gateway by ID
func (s *SQLiteStorage) GetGateway(ctx context.Context, scope models.TenantScope, id int64) (*models.Gateway, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, type, provider, config, is_active,
			total_sent, total_failed, daily_sent, daily_date, cost_per_message, created_at, updated_at
		FROM gateways WHERE id = ? AND tenant_id = ?`,
		id, scope.TenantID)

	gw, err := scanGateway(row)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Gateway not found", fmt.Sprintf("id=%d", id))
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get gateway", err.Error())
	}
	return gw, nil
}

// GetGateways lists gateways for a tenant, optionally filtered by active flag
func (s *SQLiteStorage) GetGateways(ctx context.Context, scope models.TenantScope, active *bool) ([]*models.Gateway, error) {
	query := `
		SELECT id, tenant_id, name, type, provider, config, is_active,
			total_sent, total_failed, daily_sent, daily_date, cost_per_message, created_at, updated_at
		FROM gateways WHERE tenant_id = ?`
	args := []interface{}{scope.TenantID}
	if active != nil {
		query += " AND is_active = ?"
		args = append(args, *active)
	}
	query += " ORDER BY type, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query gateways", err.Error())
	}
	defer rows.Close()

	var gateways []*models.Gateway
	for rows.Next() {
		gw, err := scanGateway(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan gateway", err.Error())
		}
		gateways = append(gateways, gw)
	}
	return gateways, rows.Err()
}

// GetActiveGatewayTypes returns the distinct channel types with at least one
// active gateway; the preference resolver builds the channel universe from it
func (s *SQLiteStorage) GetActiveGatewayTypes(ctx context.Context, scope models.TenantScope) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT type FROM gateways WHERE tenant_id = ? AND is_active = TRUE ORDER BY type",
		scope.TenantID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query gateway types", err.Error())
	}
	defer rows.Close()

	var types []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan gateway type", err.Error())
		}
		types = append(types, t)
	}
	return types, rows.Err()
}

// UpdateGateway updates gateway settings (not its counters)
func (s *SQLiteStorage) UpdateGateway(ctx context.Context, gw *models.Gateway) error {
	configJSON, err := marshalJSON(gw.Config)
	if err != nil {
		return err
	}

	gw.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE gateways SET name = ?, type = ?, provider = ?, config = ?, is_active = ?, cost_per_message = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`,
		gw.Name, gw.Type, gw.Provider, configJSON, gw.IsActive, gw.CostPerMessage,
		gw.UpdatedAt, gw.ID, gw.TenantID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update gateway", err.Error())
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Gateway not found", fmt.Sprintf("id=%d", gw.ID))
	}
	return nil
}

// DeleteGateway removes a gateway
func (s *SQLiteStorage) DeleteGateway(ctx context.Context, scope models.TenantScope, id int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM gateways WHERE id = ? AND tenant_id = ?", id, scope.TenantID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete gateway", err.Error())
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Gateway not found", fmt.Sprintf("id=%d", id))
	}
	return nil
}

// IncrementGatewayCounters bumps delivery counters atomically in SQL. The
// daily counter resets whenever the stored daily_date differs from day.
func (s *SQLiteStorage) IncrementGatewayCounters(ctx context.Context, scope models.TenantScope, id int64, success bool, day string) error {
	var query string
	if success {
		query = `
			UPDATE gateways SET
				total_sent = total_sent + 1,
				daily_sent = CASE WHEN daily_date = ? THEN daily_sent + 1 ELSE 1 END,
				daily_date = ?,
				updated_at = ?
			WHERE id = ? AND tenant_id = ?`
	} else {
		query = `
			UPDATE gateways SET
				total_failed = total_failed + 1,
				daily_sent = CASE WHEN daily_date = ? THEN daily_sent ELSE 0 END,
				daily_date = ?,
				updated_at = ?
			WHERE id = ? AND tenant_id = ?`
	}

	result, err := s.db.ExecContext(ctx, query, day, day, time.Now(), id, scope.TenantID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to update gateway counters", err.Error())
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Gateway not found", fmt.Sprintf("id=%d", id))
	}
	return nil
}

// EnqueueItem inserts a queue item
func (s *SQLiteStorage) EnqueueItem(ctx context.Context, item *models.QueueItem) error {
	payloadJSON, err := marshalJSON(item.Payload)
	if err != nil {
		return err
	}

	if item.ID == "" {
		item.ID = utils.GenerateID()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	if item.NextAttemptAt.IsZero() {
		item.NextAttemptAt = item.ScheduledAt
	}
	if item.Status == "" {
		item.Status = models.StatusPending
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO queue_items (id, tenant_id, workflow_id, event_key, user_id, channel, gateway_id,
			recipient, payload, scheduled_at, next_attempt_at, status, retry_count, max_retries,
			error_message, gateway_message_id, cost, created_at, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.TenantID, item.WorkflowID, item.EventKey, item.UserID, item.Channel,
		item.GatewayID, item.Recipient, payloadJSON, item.ScheduledAt, item.NextAttemptAt,
		item.Status, item.RetryCount, item.MaxRetries, item.ErrorMessage,
		item.GatewayMessageID, item.Cost, item.CreatedAt, item.SentAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enqueue item", err.Error())
	}
	return nil
}

const queueItemColumns = `id, tenant_id, workflow_id, event_key, user_id, channel, gateway_id,
	recipient, payload, scheduled_at, next_attempt_at, status, retry_count, max_retries,
	error_message, gateway_message_id, cost, created_at, sent_at`

// GetQueueItem retrieves a queue item by ID
func (s *SQLiteStorage) GetQueueItem(ctx context.Context, scope models.TenantScope, id string) (*models.QueueItem, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+queueItemColumns+" FROM queue_items WHERE id = ? AND tenant_id = ?",
		id, scope.TenantID)

	item, err := scanQueueItem(row)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Queue item not found", id)
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get queue item", err.Error())
	}
	return item, nil
}

// ListQueueItems lists queue items for a tenant with optional filters
func (s *SQLiteStorage) ListQueueItems(ctx context.Context, scope models.TenantScope, filter models.QueueFilter) ([]*models.QueueItem, error) {
	query := "SELECT " + queueItemColumns + " FROM queue_items WHERE tenant_id = ?"
	args := []interface{}{scope.TenantID}

	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.Channel != nil {
		query += " AND channel = ?"
		args = append(args, *filter.Channel)
	}
	if filter.EventKey != nil {
		query += " AND event_key = ?"
		args = append(args, *filter.EventKey)
	}

	query += " ORDER BY scheduled_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query queue items", err.Error())
	}
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan queue item", err.Error())
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ClaimDueItems selects due pending items and flips each to processing with a
// conditional UPDATE. Rows another worker already claimed lose the status
// check and are skipped, so an item is only ever returned to one caller.
func (s *SQLiteStorage) ClaimDueItems(ctx context.Context, scope *models.TenantScope, limit int, now time.Time) ([]*models.QueueItem, error) {
	query := "SELECT " + queueItemColumns + ` FROM queue_items
		WHERE status = ? AND scheduled_at <= ? AND next_attempt_at <= ?`
	args := []interface{}{models.StatusPending, now, now}
	if scope != nil {
		query += " AND tenant_id = ?"
		args = append(args, scope.TenantID)
	}
	query += " ORDER BY scheduled_at ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query due items", err.Error())
	}

	var candidates []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			rows.Close()
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan queue item", err.Error())
		}
		candidates = append(candidates, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to iterate due items", err.Error())
	}

	var claimed []*models.QueueItem
	for _, item := range candidates {
		result, err := s.db.ExecContext(ctx,
			"UPDATE queue_items SET status = ? WHERE id = ? AND status = ?",
			models.StatusProcessing, item.ID, models.StatusPending)
		if err != nil {
			return claimed, utils.NewAppError(utils.ErrCodeDatabase, "Failed to claim queue item", err.Error())
		}
		affected, _ := result.RowsAffected()
		if affected == 1 {
			item.Status = models.StatusProcessing
			claimed = append(claimed, item)
		}
	}
	return claimed, nil
}

// MarkItemSent records a successful delivery attempt
func (s *SQLiteStorage) MarkItemSent(ctx context.Context, id string, messageID string, cost float64, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queue_items SET status = ?, gateway_message_id = ?, cost = ?, sent_at = ?, error_message = NULL
		WHERE id = ?`,
		models.StatusSent, nullableString(messageID), cost, sentAt, id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to mark item sent", err.Error())
	}
	return nil
}

// MarkItemFailed records a terminal delivery failure
func (s *SQLiteStorage) MarkItemFailed(ctx context.Context, id string, retryCount int, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queue_items SET status = ?, retry_count = ?, error_message = ?
		WHERE id = ?`,
		models.StatusFailed, retryCount, errMsg, id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to mark item failed", err.Error())
	}
	return nil
}

// RescheduleItem puts a transiently failed item back in the pending state
// with a future attempt time
func (s *SQLiteStorage) RescheduleItem(ctx context.Context, id string, retryCount int, nextAttemptAt time.Time, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queue_items SET status = ?, retry_count = ?, next_attempt_at = ?, error_message = ?
		WHERE id = ?`,
		models.StatusPending, retryCount, nextAttemptAt, errMsg, id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to reschedule item", err.Error())
	}
	return nil
}

// MarkItemDelivered upgrades a sent item after delivery confirmation
func (s *SQLiteStorage) MarkItemDelivered(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE queue_items SET status = ? WHERE id = ? AND status = ?",
		models.StatusDelivered, id, models.StatusSent)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to mark item delivered", err.Error())
	}
	return nil
}

// CancelQueueItem cancels a pending item. Items already picked up by a
// worker are past the point of no return and are left alone.
func (s *SQLiteStorage) CancelQueueItem(ctx context.Context, scope models.TenantScope, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE queue_items SET status = ? WHERE id = ? AND tenant_id = ? AND status = ?",
		models.StatusCancelled, id, scope.TenantID, models.StatusPending)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to cancel queue item", err.Error())
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "No pending queue item to cancel", id)
	}
	return nil
}

// GetSentItemsForPolling returns sent items that have a gateway message ID,
// for the delivery status poll pass
func (s *SQLiteStorage) GetSentItemsForPolling(ctx context.Context, limit int) ([]*models.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+queueItemColumns+` FROM queue_items
		WHERE status = ? AND gateway_message_id IS NOT NULL
		ORDER BY sent_at ASC LIMIT ?`,
		models.StatusSent, limit)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query sent items", err.Error())
	}
	defer rows.Close()

	var items []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan queue item", err.Error())
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountQueueByStatus returns queue depth per status across all tenants
func (s *SQLiteStorage) CountQueueByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM queue_items GROUP BY status")
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to count queue items", err.Error())
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan queue count", err.Error())
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// SavePreference upserts a user channel preference
func (s *SQLiteStorage) SavePreference(ctx context.Context, pref *models.UserChannelPreference) error {
	pref.UpdatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_channel_preferences (tenant_id, user_id, event_key, channel, is_enabled, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, user_id, event_key, channel)
		DO UPDATE SET is_enabled = excluded.is_enabled, updated_at = excluded.updated_at`,
		pref.TenantID, pref.UserID, pref.EventKey, pref.Channel, pref.IsEnabled, pref.UpdatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save preference", err.Error())
	}
	return nil
}

// GetPreference returns the stored preference row, or a not-found error when
// the user never expressed one for this event/channel pair
func (s *SQLiteStorage) GetPreference(ctx context.Context, scope models.TenantScope, userID int64, eventKey, channel string) (*models.UserChannelPreference, error) {
	var pref models.UserChannelPreference
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, event_key, channel, is_enabled, updated_at
		FROM user_channel_preferences
		WHERE tenant_id = ? AND user_id = ? AND event_key = ? AND channel = ?`,
		scope.TenantID, userID, eventKey, channel).Scan(
		&pref.ID, &pref.TenantID, &pref.UserID, &pref.EventKey,
		&pref.Channel, &pref.IsEnabled, &pref.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "Preference not found")
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get preference", err.Error())
	}
	return &pref, nil
}

// GetPreferences lists all preferences for a user
func (s *SQLiteStorage) GetPreferences(ctx context.Context, scope models.TenantScope, userID int64) ([]*models.UserChannelPreference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, event_key, channel, is_enabled, updated_at
		FROM user_channel_preferences
		WHERE tenant_id = ? AND user_id = ? ORDER BY event_key, channel`,
		scope.TenantID, userID)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query preferences", err.Error())
	}
	defer rows.Close()

	var prefs []*models.UserChannelPreference
	for rows.Next() {
		var pref models.UserChannelPreference
		if err := rows.Scan(&pref.ID, &pref.TenantID, &pref.UserID, &pref.EventKey,
			&pref.Channel, &pref.IsEnabled, &pref.UpdatedAt); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan preference", err.Error())
		}
		prefs = append(prefs, &pref)
	}
	return prefs, rows.Err()
}

// SaveUser inserts a user record
func (s *SQLiteStorage) SaveUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (tenant_id, name, email, phone, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		user.TenantID, user.Name, user.Email, user.Phone, user.CreatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save user", err.Error())
	}

	user.ID, _ = result.LastInsertId()
	return nil
}

// GetUser retrieves a user by ID
func (s *SQLiteStorage) GetUser(ctx context.Context, scope models.TenantScope, id int64) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, email, phone, created_at
		FROM users WHERE id = ? AND tenant_id = ?`,
		id, scope.TenantID).Scan(
		&user.ID, &user.TenantID, &user.Name, &user.Email, &user.Phone, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, utils.NewAppError(utils.ErrCodeNotFound, "User not found", fmt.Sprintf("id=%d", id))
	}
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get user", err.Error())
	}
	return &user, nil
}

// AppendAudit appends an audit log entry
func (s *SQLiteStorage) AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = utils.GenerateID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, tenant_id, workflow_id, event_key, user_id, recipient, channel, template_id, status, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.TenantID, entry.WorkflowID, entry.EventKey, entry.UserID,
		entry.Recipient, entry.Channel, entry.TemplateID, entry.Status, entry.Error, entry.CreatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to append audit entry", err.Error())
	}
	return nil
}

// ListAudit lists audit entries for a tenant with optional filters
func (s *SQLiteStorage) ListAudit(ctx context.Context, scope models.TenantScope, filter models.AuditFilter) ([]*models.AuditLogEntry, error) {
	query := `
		SELECT id, tenant_id, workflow_id, event_key, user_id, recipient, channel, template_id, status, error, created_at
		FROM audit_log WHERE tenant_id = ?`
	args := []interface{}{scope.TenantID}

	if filter.EventKey != nil {
		query += " AND event_key = ?"
		args = append(args, *filter.EventKey)
	}
	if filter.Channel != nil {
		query += " AND channel = ?"
		args = append(args, *filter.Channel)
	}
	if filter.Status != nil {
		query += " AND status = ?"
		args = append(args, *filter.Status)
	}
	if filter.UserID != nil {
		query += " AND user_id = ?"
		args = append(args, *filter.UserID)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to query audit log", err.Error())
	}
	defer rows.Close()

	var entries []*models.AuditLogEntry
	for rows.Next() {
		entry, err := scanAuditEntry(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan audit entry", err.Error())
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// GetStorageStats returns storage statistics
func (s *SQLiteStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
	stats := &StorageStats{}

	counts := map[string]*int64{
		"SELECT COUNT(*) FROM templates": &stats.TotalTemplates,
		"SELECT COUNT(*) FROM workflows": &stats.TotalWorkflows,
		"SELECT COUNT(*) FROM gateways":  &stats.TotalGateways,
		"SELECT COUNT(*) FROM audit_log": &stats.TotalAuditLines,
	}
	for query, dest := range counts {
		if err := s.db.QueryRowContext(ctx, query).Scan(dest); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to get storage stats", err.Error())
		}
	}

	queueCounts, err := s.CountQueueByStatus(ctx)
	if err != nil {
		return nil, err
	}
	stats.QueueByStatus = queueCounts

	return stats, nil
}

// GetHealth returns storage health information
func (s *SQLiteStorage) GetHealth() *StorageHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &StorageHealth{
		StorageType: "sqlite",
		Healthy:     s.connected,
		Details: map[string]string{
			"path": s.config.ConnectionString,
		},
		LastPing: s.lastPing,
	}
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
