package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"

	"github.com/smartdevs17/notification-engine/internal/models"
	"github.com/smartdevs17/notification-engine/pkg/utils"
)

// PostgreSQLStorage implements Storage on PostgreSQL
type PostgreSQLStorage struct {
	db        *sql.DB
	config    *StorageConfig
	mu        sync.RWMutex
	connected bool
	lastPing  time.Time
}

// NewPostgreSQLStorage creates a new PostgreSQL storage instance
func NewPostgreSQLStorage(config *StorageConfig) *PostgreSQLStorage {
	return &PostgreSQLStorage{
		config: config,
	}
}

// Connect establishes the database connection
func (s *PostgreSQLStorage) Connect() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return nil
	}

	db, err := sql.Open("postgres", s.config.ConnectionString)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to open PostgreSQL connection", err.Error())
	}

	db.SetMaxOpenConns(s.config.MaxConnections)
	db.SetConnMaxIdleTime(s.config.MaxIdleTime)

	if err := db.Ping(); err != nil {
		db.Close()
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to ping PostgreSQL database", err.Error())
	}

	s.db = db
	s.connected = true
	s.lastPing = time.Now()

	utils.GetLogger().Info("Connected to PostgreSQL database")
	return nil
}

// Close closes the database connection
func (s *PostgreSQLStorage) Close() error {
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
func (s *PostgreSQLStorage) Ping() error {
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
func (s *PostgreSQLStorage) Migrate() error {
	migrations := GetPostgresMigrations()

	if _, err := s.db.Exec(migrations[len(migrations)-1].SQL); err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to create migrations table", err.Error())
	}

	for _, migration := range migrations {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM migrations WHERE version = $1", migration.Version).Scan(&count)
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
		if _, err := s.db.Exec("INSERT INTO migrations (version, description) VALUES ($1, $2)",
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
func (s *PostgreSQLStorage) SaveEvent(ctx context.Context, event *models.NotificationEvent) error {
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

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO notification_events (tenant_id, event_key, name, category, variables, default_channels, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		event.TenantID, event.EventKey, event.Name, event.Category,
		variablesJSON, channelsJSON, event.CreatedAt).Scan(&event.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save event", err.Error())
	}
	return nil
}

// GetEventByKey retrieves an event definition by its key
func (s *PostgreSQLStorage) GetEventByKey(ctx context.Context, scope models.TenantScope, eventKey string) (*models.NotificationEvent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, event_key, name, category, variables, default_channels, created_at
		FROM notification_events WHERE tenant_id = $1 AND event_key = $2`,
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
func (s *PostgreSQLStorage) GetEvents(ctx context.Context, scope models.TenantScope) ([]*models.NotificationEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, event_key, name, category, variables, default_channels, created_at
		FROM notification_events WHERE tenant_id = $1 ORDER BY event_key`,
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
func (s *PostgreSQLStorage) SaveTemplate(ctx context.Context, tmpl *models.Template) error {
	channelsJSON, err := marshalJSON(tmpl.Channels)
	if err != nil {
		return err
	}

	now := time.Now()
	if tmpl.CreatedAt.IsZero() {
		tmpl.CreatedAt = now
	}
	tmpl.UpdatedAt = now

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO templates (tenant_id, event_key, name, subject, email_html, email_text, channels, is_active, is_system, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING id`,
		tmpl.TenantID, tmpl.EventKey, tmpl.Name, tmpl.Subject,
		tmpl.EmailHTML, tmpl.EmailText, channelsJSON,
		tmpl.IsActive, tmpl.IsSystem, tmpl.CreatedAt, tmpl.UpdatedAt).Scan(&tmpl.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save template", err.Error())
	}
	return nil
}

// GetTemplate retrieves a template by ID
func (s *PostgreSQLStorage) GetTemplate(ctx context.Context, scope models.TenantScope, id int64) (*models.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, event_key, name, subject, email_html, email_text, channels, is_active, is_system, created_at, updated_at
		FROM templates WHERE id = $1 AND tenant_id = $2`,
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
func (s *PostgreSQLStorage) GetActiveTemplateByEvent(ctx context.Context, scope models.TenantScope, eventKey string) (*models.Template, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, event_key, name, subject, email_html, email_text, channels, is_active, is_system, created_at, updated_at
		FROM templates WHERE tenant_id = $1 AND event_key = $2 AND is_active = TRUE
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
func (s *PostgreSQLStorage) GetTemplates(ctx context.Context, scope models.TenantScope) ([]*models.Template, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, event_key, name, subject, email_html, email_text, channels, is_active, is_system, created_at, updated_at
		FROM templates WHERE tenant_id = $1 ORDER BY event_key, id`,
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
func (s *PostgreSQLStorage) UpdateTemplate(ctx context.Context, tmpl *models.Template) error {
	channelsJSON, err := marshalJSON(tmpl.Channels)
	if err != nil {
		return err
	}

	tmpl.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE templates SET event_key = $1, name = $2, subject = $3, email_html = $4, email_text = $5, channels = $6, is_active = $7, updated_at = $8
		WHERE id = $9 AND tenant_id = $10`,
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
func (s *PostgreSQLStorage) DeleteTemplate(ctx context.Context, scope models.TenantScope, id int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM templates WHERE id = $1 AND tenant_id = $2", id, scope.TenantID)
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
func (s *PostgreSQLStorage) SaveWorkflow(ctx context.Context, wf *models.Workflow) error {
	conditionsJSON, err := marshalJSON(wf.Conditions)
	if err != nil {
		return err
	}

	now := time.Now()
	if wf.CreatedAt.IsZero() {
		wf.CreatedAt = now
	}
	wf.UpdatedAt = now

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO workflows (tenant_id, name, trigger_event, template_id, gateway_id, channel,
			schedule_type, delay_minutes, schedule_reference, schedule_offset, schedule_unit,
			conditions, is_active, priority, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16) RETURNING id`,
		wf.TenantID, wf.Name, wf.TriggerEvent, wf.TemplateID, wf.GatewayID, wf.Channel,
		wf.ScheduleType, wf.DelayMinutes, wf.ScheduleReference, wf.ScheduleOffset, wf.ScheduleUnit,
		conditionsJSON, wf.IsActive, wf.Priority, wf.CreatedAt, wf.UpdatedAt).Scan(&wf.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save workflow", err.Error())
	}
	return nil
}

// GetWorkflow retrieves a workflow by ID
func (s *PostgreSQLStorage) GetWorkflow(ctx context.Context, scope models.TenantScope, id int64) (*models.Workflow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, trigger_event, template_id, gateway_id, channel,
			schedule_type, delay_minutes, schedule_reference, schedule_offset, schedule_unit,
			conditions, is_active, priority, created_at, updated_at
		FROM workflows WHERE id = $1 AND tenant_id = $2`,
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
// priority then ID
func (s *PostgreSQLStorage) GetWorkflowsByEvent(ctx context.Context, scope models.TenantScope, eventKey string, activeOnly bool) ([]*models.Workflow, error) {
	query := `
		SELECT id, tenant_id, name, trigger_event, template_id, gateway_id, channel,
			schedule_type, delay_minutes, schedule_reference, schedule_offset, schedule_unit,
			conditions, is_active, priority, created_at, updated_at
		FROM workflows WHERE tenant_id = $1 AND trigger_event = $2`
	if activeOnly {
		query += " AND is_active = TRUE"
	}
	query += " ORDER BY priority DESC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, scope.TenantID, eventKey)
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
func (s *PostgreSQLStorage) GetWorkflows(ctx context.Context, scope models.TenantScope) ([]*models.Workflow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, name, trigger_event, template_id, gateway_id, channel,
			schedule_type, delay_minutes, schedule_reference, schedule_offset, schedule_unit,
			conditions, is_active, priority, created_at, updated_at
		FROM workflows WHERE tenant_id = $1 ORDER BY trigger_event, priority DESC, id ASC`,
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
func (s *PostgreSQLStorage) UpdateWorkflow(ctx context.Context, wf *models.Workflow) error {
	conditionsJSON, err := marshalJSON(wf.Conditions)
	if err != nil {
		return err
	}

	wf.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE workflows SET name = $1, trigger_event = $2, template_id = $3, gateway_id = $4, channel = $5,
			schedule_type = $6, delay_minutes = $7, schedule_reference = $8, schedule_offset = $9, schedule_unit = $10,
			conditions = $11, is_active = $12, priority = $13, updated_at = $14
		WHERE id = $15 AND tenant_id = $16`,
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
func (s *PostgreSQLStorage) DeleteWorkflow(ctx context.Context, scope models.TenantScope, id int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM workflows WHERE id = $1 AND tenant_id = $2", id, scope.TenantID)
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
func (s *PostgreSQLStorage) SaveGateway(ctx context.Context, gw *models.Gateway) error {
	configJSON, err := marshalJSON(gw.Config)
	if err != nil {
		return err
	}

	now := time.Now()
	if gw.CreatedAt.IsZero() {
		gw.CreatedAt = now
	}
	gw.UpdatedAt = now

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO gateways (tenant_id, name, type, provider, config, is_active,
			total_sent, total_failed, daily_sent, daily_date, cost_per_message, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`,
		gw.TenantID, gw.Name, gw.Type, gw.Provider, configJSON, gw.IsActive,
		gw.TotalSent, gw.TotalFailed, gw.DailySent, gw.DailyDate, gw.CostPerMessage,
		gw.CreatedAt, gw.UpdatedAt).Scan(&gw.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save gateway", err.Error())
	}
	return nil
}

// GetGateway retrieves a gateway by ID
func (s *PostgreSQLStorage) GetGateway(ctx context.Context, scope models.TenantScope, id int64) (*models.Gateway, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, type, provider, config, is_active,
			total_sent, total_failed, daily_sent, daily_date, cost_per_message, created_at, updated_at
		FROM gateways WHERE id = $1 AND tenant_id = $2`,
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
func (s *PostgreSQLStorage) GetGateways(ctx context.Context, scope models.TenantScope, active *bool) ([]*models.Gateway, error) {
	query := `
		SELECT id, tenant_id, name, type, provider, config, is_active,
			total_sent, total_failed, daily_sent, daily_date, cost_per_message, created_at, updated_at
		FROM gateways WHERE tenant_id = $1`
	args := []interface{}{scope.TenantID}
	if active != nil {
		query += " AND is_active = $2"
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
// active gateway
func (s *PostgreSQLStorage) GetActiveGatewayTypes(ctx context.Context, scope models.TenantScope) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT DISTINCT type FROM gateways WHERE tenant_id = $1 AND is_active = TRUE ORDER BY type",
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
func (s *PostgreSQLStorage) UpdateGateway(ctx context.Context, gw *models.Gateway) error {
	configJSON, err := marshalJSON(gw.Config)
	if err != nil {
		return err
	}

	gw.UpdatedAt = time.Now()

	result, err := s.db.ExecContext(ctx, `
		UPDATE gateways SET name = $1, type = $2, provider = $3, config = $4, is_active = $5, cost_per_message = $6, updated_at = $7
		WHERE id = $8 AND tenant_id = $9`,
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
func (s *PostgreSQLStorage) DeleteGateway(ctx context.Context, scope models.TenantScope, id int64) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM gateways WHERE id = $1 AND tenant_id = $2", id, scope.TenantID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to delete gateway", err.Error())
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		return utils.NewAppError(utils.ErrCodeNotFound, "Gateway not found", fmt.Sprintf("id=%d", id))
	}
	return nil
}

// IncrementGatewayCounters bumps delivery counters atomically in SQL
func (s *PostgreSQLStorage) IncrementGatewayCounters(ctx context.Context, scope models.TenantScope, id int64, success bool, day string) error {
	var query string
	if success {
		query = `
			UPDATE gateways SET
				total_sent = total_sent + 1,
				daily_sent = CASE WHEN daily_date = $1 THEN daily_sent + 1 ELSE 1 END,
				daily_date = $2,
				updated_at = $3
			WHERE id = $4 AND tenant_id = $5`
	} else {
		query = `
			UPDATE gateways SET
				total_failed = total_failed + 1,
				daily_sent = CASE WHEN daily_date = $1 THEN daily_sent ELSE 0 END,
				daily_date = $2,
				updated_at = $3
			WHERE id = $4 AND tenant_id = $5`
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
func (s *PostgreSQLStorage) EnqueueItem(ctx context.Context, item *models.QueueItem) error {
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
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		item.ID, item.TenantID, item.WorkflowID, item.EventKey, item.UserID, item.Channel,
		item.GatewayID, item.Recipient, payloadJSON, item.ScheduledAt, item.NextAttemptAt,
		item.Status, item.RetryCount, item.MaxRetries, item.ErrorMessage,
		item.GatewayMessageID, item.Cost, item.CreatedAt, item.SentAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to enqueue item", err.Error())
	}
	return nil
}

// GetQueueItem retrieves a queue item by ID
func (s *PostgreSQLStorage) GetQueueItem(ctx context.Context, scope models.TenantScope, id string) (*models.QueueItem, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+queueItemColumns+" FROM queue_items WHERE id = $1 AND tenant_id = $2",
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
func (s *PostgreSQLStorage) ListQueueItems(ctx context.Context, scope models.TenantScope, filter models.QueueFilter) ([]*models.QueueItem, error) {
	query := "SELECT " + queueItemColumns + " FROM queue_items WHERE tenant_id = $1"
	args := []interface{}{scope.TenantID}
	n := 1

	if filter.Status != nil {
		n++
		query += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, *filter.Status)
	}
	if filter.Channel != nil {
		n++
		query += fmt.Sprintf(" AND channel = $%d", n)
		args = append(args, *filter.Channel)
	}
	if filter.EventKey != nil {
		n++
		query += fmt.Sprintf(" AND event_key = $%d", n)
		args = append(args, *filter.EventKey)
	}

	query += " ORDER BY scheduled_at DESC"
	if filter.Limit > 0 {
		n++
		query += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			n++
			query += fmt.Sprintf(" OFFSET $%d", n)
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

// ClaimDueItems claims due pending items with SKIP LOCKED so concurrent
// workers never pick up the same row
func (s *PostgreSQLStorage) ClaimDueItems(ctx context.Context, scope *models.TenantScope, limit int, now time.Time) ([]*models.QueueItem, error) {
	sub := `SELECT id FROM queue_items
		WHERE status = $1 AND scheduled_at <= $2 AND next_attempt_at <= $3`
	args := []interface{}{models.StatusPending, now, now}
	n := 3
	if scope != nil {
		n++
		sub += fmt.Sprintf(" AND tenant_id = $%d", n)
		args = append(args, scope.TenantID)
	}
	n++
	sub += fmt.Sprintf(" ORDER BY scheduled_at ASC LIMIT $%d FOR UPDATE SKIP LOCKED", n)
	args = append(args, limit)

	query := fmt.Sprintf(`
		UPDATE queue_items SET status = '%s'
		WHERE id IN (%s)
		RETURNING %s`, models.StatusProcessing, sub, queueItemColumns)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to claim due items", err.Error())
	}
	defer rows.Close()

	var claimed []*models.QueueItem
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to scan claimed item", err.Error())
		}
		claimed = append(claimed, item)
	}
	return claimed, rows.Err()
}

// MarkItemSent records a successful delivery attempt
func (s *PostgreSQLStorage) MarkItemSent(ctx context.Context, id string, messageID string, cost float64, sentAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queue_items SET status = $1, gateway_message_id = $2, cost = $3, sent_at = $4, error_message = NULL
		WHERE id = $5`,
		models.StatusSent, nullableString(messageID), cost, sentAt, id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to mark item sent", err.Error())
	}
	return nil
}

// MarkItemFailed records a terminal delivery failure
func (s *PostgreSQLStorage) MarkItemFailed(ctx context.Context, id string, retryCount int, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queue_items SET status = $1, retry_count = $2, error_message = $3
		WHERE id = $4`,
		models.StatusFailed, retryCount, errMsg, id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to mark item failed", err.Error())
	}
	return nil
}

// RescheduleItem puts a transiently failed item back in the pending state
func (s *PostgreSQLStorage) RescheduleItem(ctx context.Context, id string, retryCount int, nextAttemptAt time.Time, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE queue_items SET status = $1, retry_count = $2, next_attempt_at = $3, error_message = $4
		WHERE id = $5`,
		models.StatusPending, retryCount, nextAttemptAt, errMsg, id)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to reschedule item", err.Error())
	}
	return nil
}

// MarkItemDelivered upgrades a sent item after delivery confirmation
func (s *PostgreSQLStorage) MarkItemDelivered(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE queue_items SET status = $1 WHERE id = $2 AND status = $3",
		models.StatusDelivered, id, models.StatusSent)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to mark item delivered", err.Error())
	}
	return nil
}

// CancelQueueItem cancels a pending item
func (s *PostgreSQLStorage) CancelQueueItem(ctx context.Context, scope models.TenantScope, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE queue_items SET status = $1 WHERE id = $2 AND tenant_id = $3 AND status = $4",
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

// GetSentItemsForPolling returns sent items awaiting delivery confirmation
func (s *PostgreSQLStorage) GetSentItemsForPolling(ctx context.Context, limit int) ([]*models.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+queueItemColumns+` FROM queue_items
		WHERE status = $1 AND gateway_message_id IS NOT NULL
		ORDER BY sent_at ASC LIMIT $2`,
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
func (s *PostgreSQLStorage) CountQueueByStatus(ctx context.Context) (map[string]int64, error) {
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
func (s *PostgreSQLStorage) SavePreference(ctx context.Context, pref *models.UserChannelPreference) error {
	pref.UpdatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_channel_preferences (tenant_id, user_id, event_key, channel, is_enabled, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (tenant_id, user_id, event_key, channel)
		DO UPDATE SET is_enabled = EXCLUDED.is_enabled, updated_at = EXCLUDED.updated_at`,
		pref.TenantID, pref.UserID, pref.EventKey, pref.Channel, pref.IsEnabled, pref.UpdatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save preference", err.Error())
	}
	return nil
}

// GetPreference returns the stored preference row
func (s *PostgreSQLStorage) GetPreference(ctx context.Context, scope models.TenantScope, userID int64, eventKey, channel string) (*models.UserChannelPreference, error) {
	var pref models.UserChannelPreference
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, user_id, event_key, channel, is_enabled, updated_at
		FROM user_channel_preferences
		WHERE tenant_id = $1 AND user_id = $2 AND event_key = $3 AND channel = $4`,
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
func (s *PostgreSQLStorage) GetPreferences(ctx context.Context, scope models.TenantScope, userID int64) ([]*models.UserChannelPreference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tenant_id, user_id, event_key, channel, is_enabled, updated_at
		FROM user_channel_preferences
		WHERE tenant_id = $1 AND user_id = $2 ORDER BY event_key, channel`,
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
func (s *PostgreSQLStorage) SaveUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (tenant_id, name, email, phone, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		user.TenantID, user.Name, user.Email, user.Phone, user.CreatedAt).Scan(&user.ID)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to save user", err.Error())
	}
	return nil
}

// GetUser retrieves a user by ID
func (s *PostgreSQLStorage) GetUser(ctx context.Context, scope models.TenantScope, id int64) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, name, email, phone, created_at
		FROM users WHERE id = $1 AND tenant_id = $2`,
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
func (s *PostgreSQLStorage) AppendAudit(ctx context.Context, entry *models.AuditLogEntry) error {
	if entry.ID == "" {
		entry.ID = utils.GenerateID()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (id, tenant_id, workflow_id, event_key, user_id, recipient, channel, template_id, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		entry.ID, entry.TenantID, entry.WorkflowID, entry.EventKey, entry.UserID,
		entry.Recipient, entry.Channel, entry.TemplateID, entry.Status, entry.Error, entry.CreatedAt)
	if err != nil {
		return utils.NewAppError(utils.ErrCodeDatabase, "Failed to append audit entry", err.Error())
	}
	return nil
}

// ListAudit lists audit entries for a tenant with optional filters
func (s *PostgreSQLStorage) ListAudit(ctx context.Context, scope models.TenantScope, filter models.AuditFilter) ([]*models.AuditLogEntry, error) {
	query := `
		SELECT id, tenant_id, workflow_id, event_key, user_id, recipient, channel, template_id, status, error, created_at
		FROM audit_log WHERE tenant_id = $1`
	args := []interface{}{scope.TenantID}
	n := 1

	if filter.EventKey != nil {
		n++
		query += fmt.Sprintf(" AND event_key = $%d", n)
		args = append(args, *filter.EventKey)
	}
	if filter.Channel != nil {
		n++
		query += fmt.Sprintf(" AND channel = $%d", n)
		args = append(args, *filter.Channel)
	}
	if filter.Status != nil {
		n++
		query += fmt.Sprintf(" AND status = $%d", n)
		args = append(args, *filter.Status)
	}
	if filter.UserID != nil {
		n++
		query += fmt.Sprintf(" AND user_id = $%d", n)
		args = append(args, *filter.UserID)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		n++
		query += fmt.Sprintf(" LIMIT $%d", n)
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			n++
			query += fmt.Sprintf(" OFFSET $%d", n)
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
func (s *PostgreSQLStorage) GetStorageStats(ctx context.Context) (*StorageStats, error) {
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
func (s *PostgreSQLStorage) GetHealth() *StorageHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &StorageHealth{
		StorageType: "postgres",
		Healthy:     s.connected,
		LastPing:    s.lastPing,
	}
}
