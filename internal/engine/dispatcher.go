package engine

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/notification-engine/internal/config"
	"github.com/smartdevs17/notification-engine/internal/metrics"
	"github.com/smartdevs17/notification-engine/internal/models"
	"github.com/smartdevs17/notification-engine/internal/storage"
	"github.com/smartdevs17/notification-engine/pkg/utils"
)

// Dispatcher is the public entry point for the notification layer. Both
// paths are fail-open towards the caller: a broken notification setup logs
// and no-ops instead of propagating an error into the business transaction
// that triggered it.
type Dispatcher struct {
	storage    storage.Storage
	prefs      *PreferenceResolver
	logger     *logrus.Logger
	metrics    *metrics.PrometheusMetrics
	maxRetries int
	audit      bool
}

// TriggerResult reports the fan-out of one event trigger
type TriggerResult struct {
	Matched int `json:"matched"`
	Queued  int `json:"queued"`
}

// NewDispatcher creates a dispatcher. pm may be nil when metrics are
// disabled.
func NewDispatcher(store storage.Storage, cfg *config.DispatchConfig, pm *metrics.PrometheusMetrics) *Dispatcher {
	return &Dispatcher{
		storage:    store,
		prefs:      NewPreferenceResolver(store),
		logger:     utils.GetLogger(),
		metrics:    pm,
		maxRetries: cfg.DefaultMaxRetries,
		audit:      cfg.AuditEnabled,
	}
}

// ResolveChannels exposes the preference resolution used during dispatch
func (d *Dispatcher) ResolveChannels(ctx context.Context, scope models.TenantScope, userID int64, eventKey string) (map[string]bool, error) {
	return d.prefs.ResolveChannels(ctx, scope, userID, eventKey)
}

// TriggerEvent evaluates every active workflow bound to eventKey against the
// payload and enqueues one item per match. Workflows are independent;
// multiple matches fan out into multiple queue items.
func (d *Dispatcher) TriggerEvent(ctx context.Context, scope models.TenantScope, eventKey string, payload map[string]interface{}) *TriggerResult {
	result := &TriggerResult{}

	if _, err := d.storage.GetEventByKey(ctx, scope, eventKey); err != nil {
		if utils.IsNotFound(err) {
			d.logger.WithFields(logrus.Fields{
				"event_key": eventKey,
				"tenant_id": scope.TenantID,
			}).Debug("Ignoring trigger for unregistered event")
		} else {
			d.logger.WithError(err).Error("Failed to look up event, dropping trigger")
		}
		return result
	}

	workflows, err := d.storage.GetWorkflowsByEvent(ctx, scope, eventKey, true)
	if err != nil {
		d.logger.WithError(err).Error("Failed to load workflows, dropping trigger")
		return result
	}

	now := time.Now()
	for _, wf := range workflows {
		if !Evaluate(wf.Conditions, payload) {
			continue
		}
		result.Matched++

		scheduledAt, err := ComputeScheduledAt(wf, payload, now)
		if err != nil {
			if errors.Is(err, ErrMissingReference) {
				d.logger.WithFields(logrus.Fields{
					"workflow_id": wf.ID,
					"reference":   wf.ScheduleReference,
				}).Warn("Schedule reference missing from payload, skipping workflow")
				d.auditSkip(ctx, scope, wf, eventKey, "", "schedule reference missing: "+wf.ScheduleReference)
			} else {
				d.logger.WithError(err).WithField("workflow_id", wf.ID).
					Error("Failed to compute schedule, skipping workflow")
			}
			continue
		}

		userID := payloadUserID(payload)
		recipient, skipReason := d.resolveRecipient(ctx, scope, wf, eventKey, userID, payload)
		if recipient == "" {
			d.logger.WithFields(logrus.Fields{
				"workflow_id": wf.ID,
				"channel":     wf.Channel,
				"reason":      skipReason,
			}).Debug("Skipping workflow match")
			d.auditSkip(ctx, scope, wf, eventKey, "", skipReason)
			continue
		}

		item := &models.QueueItem{
			TenantID:    scope.TenantID,
			WorkflowID:  &wf.ID,
			EventKey:    eventKey,
			Channel:     wf.Channel,
			GatewayID:   wf.GatewayID,
			Recipient:   recipient,
			Payload:     payload,
			ScheduledAt: scheduledAt,
			MaxRetries:  d.maxRetries,
		}
		if userID > 0 {
			item.UserID = &userID
		}

		if err := d.storage.EnqueueItem(ctx, item); err != nil {
			d.logger.WithError(err).WithField("workflow_id", wf.ID).
				Error("Failed to enqueue workflow match")
			continue
		}
		result.Queued++
		d.recordQueued(item.Channel)
	}

	d.logger.WithFields(logrus.Fields{
		"event_key": eventKey,
		"tenant_id": scope.TenantID,
		"matched":   result.Matched,
		"queued":    result.Queued,
	}).Info("Event triggered")

	return result
}

// resolveRecipient works out where a workflow match should be delivered.
// Returns an empty recipient and a reason when the match must be skipped.
func (d *Dispatcher) resolveRecipient(ctx context.Context, scope models.TenantScope, wf *models.Workflow, eventKey string, userID int64, payload map[string]interface{}) (string, string) {
	if userID > 0 {
		user, err := d.storage.GetUser(ctx, scope, userID)
		if err != nil {
			return "", "user not found"
		}

		channels, err := d.prefs.ResolveChannels(ctx, scope, userID, eventKey)
		if err != nil {
			return "", "preference lookup failed"
		}
		if !channels[wf.Channel] {
			return "", "channel disabled by user preference"
		}

		if recipient := user.RecipientFor(wf.Channel); recipient != "" {
			return recipient, ""
		}
		return "", "user has no address for channel"
	}

	if recipient := recipientFromPayload(wf.Channel, payload); recipient != "" {
		return recipient, ""
	}
	return "", "no recipient in payload"
}

// Dispatch is the point-to-point path: resolve the user's channels and queue
// one item per enabled channel with a usable template. The returned map says
// per channel whether an item was queued.
func (d *Dispatcher) Dispatch(ctx context.Context, scope models.TenantScope, eventKey string, userID int64, payload map[string]interface{}) map[string]bool {
	outcome := map[string]bool{}

	user, err := d.storage.GetUser(ctx, scope, userID)
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"user_id":   userID,
			"event_key": eventKey,
		}).Warn("Dispatch for unknown user, dropping")
		return outcome
	}

	channels, err := d.prefs.ResolveChannels(ctx, scope, userID, eventKey)
	if err != nil {
		d.logger.WithError(err).Error("Failed to resolve channel preferences, dropping dispatch")
		return outcome
	}

	tmpl, err := d.storage.GetActiveTemplateByEvent(ctx, scope, eventKey)
	if err != nil {
		if utils.IsNotFound(err) {
			d.logger.WithField("event_key", eventKey).Debug("No active template for event, dropping dispatch")
		} else {
			d.logger.WithError(err).Error("Failed to load template, dropping dispatch")
		}
		return outcome
	}

	now := time.Now()
	for channel, enabled := range channels {
		if !enabled {
			continue
		}

		if _, ok := Render(tmpl, channel, user, payload); !ok {
			d.logger.WithFields(logrus.Fields{
				"template_id": tmpl.ID,
				"channel":     channel,
			}).Debug("Template has no content for channel, skipping")
			continue
		}

		recipient := user.RecipientFor(channel)
		if recipient == "" {
			outcome[channel] = false
			continue
		}

		item := &models.QueueItem{
			TenantID:    scope.TenantID,
			EventKey:    eventKey,
			UserID:      &userID,
			Channel:     channel,
			GatewayID:   d.gatewayForChannel(ctx, scope, tmpl, channel),
			Recipient:   recipient,
			Payload:     payload,
			ScheduledAt: now,
			MaxRetries:  d.maxRetries,
		}

		if err := d.storage.EnqueueItem(ctx, item); err != nil {
			d.logger.WithError(err).WithField("channel", channel).Error("Failed to enqueue dispatch")
			outcome[channel] = false
			continue
		}
		outcome[channel] = true
		d.recordQueued(channel)
	}

	return outcome
}

// gatewayForChannel picks the gateway for a direct dispatch: the template's
// per-channel binding when present, otherwise the first active gateway of
// the channel's type. Email may return nil and use the default SMTP config.
func (d *Dispatcher) gatewayForChannel(ctx context.Context, scope models.TenantScope, tmpl *models.Template, channel string) *int64 {
	if content, ok := tmpl.Channels[channel]; ok && content.GatewayID != nil {
		return content.GatewayID
	}

	active := true
	gateways, err := d.storage.GetGateways(ctx, scope, &active)
	if err != nil {
		d.logger.WithError(err).Warn("Failed to list gateways for channel binding")
		return nil
	}
	for _, gw := range gateways {
		if gw.Type == channel {
			id := gw.ID
			return &id
		}
	}
	return nil
}

func (d *Dispatcher) recordQueued(channel string) {
	if d.metrics != nil {
		d.metrics.RecordQueued(channel)
	}
}

// auditSkip records a skipped workflow match when auditing is enabled
func (d *Dispatcher) auditSkip(ctx context.Context, scope models.TenantScope, wf *models.Workflow, eventKey, recipient, reason string) {
	if !d.audit {
		return
	}
	entry := &models.AuditLogEntry{
		TenantID:   scope.TenantID,
		WorkflowID: &wf.ID,
		EventKey:   eventKey,
		Recipient:  recipient,
		Channel:    wf.Channel,
		TemplateID: &wf.TemplateID,
		Status:     "skipped",
		Error:      &reason,
	}
	if err := d.storage.AppendAudit(ctx, entry); err != nil {
		d.logger.WithError(err).Warn("Failed to append audit entry")
	}
}

// payloadUserID extracts the target user from the payload when present
func payloadUserID(payload map[string]interface{}) int64 {
	v, ok := payload["user_id"]
	if !ok {
		return 0
	}
	switch id := v.(type) {
	case float64:
		return int64(id)
	case int:
		return int64(id)
	case int64:
		return id
	default:
		return 0
	}
}

// recipientFromPayload finds a delivery address in the payload for
// user-less workflow triggers
func recipientFromPayload(channel string, payload map[string]interface{}) string {
	var keys []string
	if channel == models.ChannelEmail {
		keys = []string{"recipient", "recipient_email", "assigned_to_email", "email"}
	} else {
		keys = []string{"recipient", "recipient_phone", "assigned_to_phone", "phone"}
	}
	for _, key := range keys {
		if v, ok := payload[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return s
			}
		}
	}
	return ""
}
