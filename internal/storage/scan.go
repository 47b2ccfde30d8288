package storage

import (
	"database/sql"
	"encoding/json"

	"github.com/smartdevs17/notification-engine/internal/models"
	"github.com/smartdevs17/notification-engine/pkg/utils"
)

// scanner is satisfied by both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func marshalJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", utils.NewAppError(utils.ErrCodeDatabase, "Failed to marshal JSON column", err.Error())
	}
	return string(data), nil
}

func scanEvent(s scanner) (*models.NotificationEvent, error) {
	var event models.NotificationEvent
	var variablesJSON, channelsJSON string

	err := s.Scan(&event.ID, &event.TenantID, &event.EventKey, &event.Name,
		&event.Category, &variablesJSON, &channelsJSON, &event.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(variablesJSON), &event.Variables); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal event variables", err.Error())
	}
	if err := json.Unmarshal([]byte(channelsJSON), &event.DefaultChannels); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal event default channels", err.Error())
	}

	return &event, nil
}

func scanTemplate(s scanner) (*models.Template, error) {
	var tmpl models.Template
	var channelsJSON string

	err := s.Scan(&tmpl.ID, &tmpl.TenantID, &tmpl.EventKey, &tmpl.Name,
		&tmpl.Subject, &tmpl.EmailHTML, &tmpl.EmailText, &channelsJSON,
		&tmpl.IsActive, &tmpl.IsSystem, &tmpl.CreatedAt, &tmpl.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(channelsJSON), &tmpl.Channels); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal template channels", err.Error())
	}

	return &tmpl, nil
}

func scanWorkflow(s scanner) (*models.Workflow, error) {
	var wf models.Workflow
	var conditionsJSON string
	var gatewayID sql.NullInt64

	err := s.Scan(&wf.ID, &wf.TenantID, &wf.Name, &wf.TriggerEvent,
		&wf.TemplateID, &gatewayID, &wf.Channel, &wf.ScheduleType,
		&wf.DelayMinutes, &wf.ScheduleReference, &wf.ScheduleOffset,
		&wf.ScheduleUnit, &conditionsJSON, &wf.IsActive, &wf.Priority,
		&wf.CreatedAt, &wf.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if gatewayID.Valid {
		wf.GatewayID = &gatewayID.Int64
	}
	if err := json.Unmarshal([]byte(conditionsJSON), &wf.Conditions); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal workflow conditions", err.Error())
	}

	return &wf, nil
}

func scanGateway(s scanner) (*models.Gateway, error) {
	var gw models.Gateway
	var configJSON string

	err := s.Scan(&gw.ID, &gw.TenantID, &gw.Name, &gw.Type, &gw.Provider,
		&configJSON, &gw.IsActive, &gw.TotalSent, &gw.TotalFailed,
		&gw.DailySent, &gw.DailyDate, &gw.CostPerMessage,
		&gw.CreatedAt, &gw.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(configJSON), &gw.Config); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal gateway config", err.Error())
	}

	return &gw, nil
}

func scanQueueItem(s scanner) (*models.QueueItem, error) {
	var item models.QueueItem
	var payloadJSON string
	var workflowID, userID, gatewayID sql.NullInt64
	var errMsg, messageID sql.NullString
	var sentAt sql.NullTime

	err := s.Scan(&item.ID, &item.TenantID, &workflowID, &item.EventKey,
		&userID, &item.Channel, &gatewayID, &item.Recipient, &payloadJSON,
		&item.ScheduledAt, &item.NextAttemptAt, &item.Status,
		&item.RetryCount, &item.MaxRetries, &errMsg, &messageID,
		&item.Cost, &item.CreatedAt, &sentAt)
	if err != nil {
		return nil, err
	}

	if workflowID.Valid {
		item.WorkflowID = &workflowID.Int64
	}
	if userID.Valid {
		item.UserID = &userID.Int64
	}
	if gatewayID.Valid {
		item.GatewayID = &gatewayID.Int64
	}
	if errMsg.Valid {
		item.ErrorMessage = &errMsg.String
	}
	if messageID.Valid {
		item.GatewayMessageID = &messageID.String
	}
	if sentAt.Valid {
		item.SentAt = &sentAt.Time
	}
	if err := json.Unmarshal([]byte(payloadJSON), &item.Payload); err != nil {
		return nil, utils.NewAppError(utils.ErrCodeDatabase, "Failed to unmarshal queue item payload", err.Error())
	}

	return &item, nil
}

func scanAuditEntry(s scanner) (*models.AuditLogEntry, error) {
	var entry models.AuditLogEntry
	var workflowID, userID, templateID sql.NullInt64
	var errMsg sql.NullString

	err := s.Scan(&entry.ID, &entry.TenantID, &workflowID, &entry.EventKey,
		&userID, &entry.Recipient, &entry.Channel, &templateID,
		&entry.Status, &errMsg, &entry.CreatedAt)
	if err != nil {
		return nil, err
	}

	if workflowID.Valid {
		entry.WorkflowID = &workflowID.Int64
	}
	if userID.Valid {
		entry.UserID = &userID.Int64
	}
	if templateID.Valid {
		entry.TemplateID = &templateID.Int64
	}
	if errMsg.Valid {
		entry.Error = &errMsg.String
	}

	return &entry, nil
}
