package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/notification-engine/internal/config"
	"github.com/smartdevs17/notification-engine/internal/gateway"
	"github.com/smartdevs17/notification-engine/internal/metrics"
	"github.com/smartdevs17/notification-engine/internal/models"
	"github.com/smartdevs17/notification-engine/internal/storage"
	"github.com/smartdevs17/notification-engine/pkg/utils"
)

// Processor drains the queue. It is invoked on a fixed interval by an
// external scheduler or the run loop; one call is one bounded pass.
type Processor struct {
	storage  storage.Storage
	gateways *gateway.Manager
	metrics  *metrics.PrometheusMetrics
	logger   *logrus.Logger
	cfg      *config.QueueConfig
	audit    bool
}

// PassResult reports the outcome of one processing pass
type PassResult struct {
	Processed int `json:"processed"`
	Sent      int `json:"sent"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
}

// NewProcessor creates a queue processor. The metrics argument may be nil.
func NewProcessor(store storage.Storage, gateways *gateway.Manager, cfg *config.QueueConfig, auditEnabled bool, pm *metrics.PrometheusMetrics) *Processor {
	return &Processor{
		storage:  store,
		gateways: gateways,
		metrics:  pm,
		logger:   utils.GetLogger(),
		cfg:      cfg,
		audit:    auditEnabled,
	}
}

// ProcessPass claims one batch of due items and delivers them with a worker
// pool. Items are independent once claimed, so a single item's failure never
// aborts the rest of the batch.
func (p *Processor) ProcessPass(ctx context.Context) (*PassResult, error) {
	startTime := time.Now()

	items, err := p.storage.ClaimDueItems(ctx, nil, p.cfg.BatchSize, startTime)
	if err != nil {
		return nil, err
	}

	result := &PassResult{Processed: len(items)}
	if len(items) == 0 {
		return result, nil
	}

	p.logger.WithField("count", len(items)).Debug("Claimed queue items")

	var mu sync.Mutex
	var wg sync.WaitGroup
	semaphore := make(chan struct{}, p.cfg.Workers)

	for _, item := range items {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(item *models.QueueItem) {
			defer wg.Done()
			defer func() { <-semaphore }()

			outcome := p.processItem(ctx, item)

			mu.Lock()
			switch outcome {
			case models.StatusSent:
				result.Sent++
			case models.StatusFailed:
				result.Failed++
			default:
				result.Retried++
			}
			mu.Unlock()
		}(item)
	}

	wg.Wait()

	if p.metrics != nil {
		p.metrics.ProcessingPassDuration.Observe(time.Since(startTime).Seconds())
		p.updateQueueDepth(ctx)
	}

	p.logger.WithFields(logrus.Fields{
		"processed": result.Processed,
		"sent":      result.Sent,
		"failed":    result.Failed,
		"retried":   result.Retried,
		"duration":  time.Since(startTime).String(),
	}).Info("Processing pass complete")

	return result, nil
}

// processItem delivers one claimed item and writes its terminal state.
// Returns the resulting status for pass accounting.
func (p *Processor) processItem(ctx context.Context, item *models.QueueItem) string {
	scope := models.Scope(item.TenantID)
	attemptStart := time.Now()

	rendered, err := p.renderItem(ctx, scope, item)
	if err != nil {
		return p.failItem(ctx, item, err.Error(), attemptStart)
	}

	gw, sender, err := p.senderForItem(ctx, scope, item)
	if err != nil {
		return p.failItem(ctx, item, err.Error(), attemptStart)
	}

	sendCtx, cancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer cancel()

	sendResult, sendErr := sender.Send(sendCtx, &gateway.SendRequest{
		Recipient: item.Recipient,
		Subject:   rendered.Subject,
		Body:      rendered.Body,
		HTML:      rendered.HTML,
	})

	duration := time.Since(attemptStart)
	day := attemptStart.Format("2006-01-02")

	if sendErr == nil {
		cost := sendResult.Cost
		if cost == 0 && gw != nil {
			cost = gw.CostPerMessage
		}

		if err := p.storage.MarkItemSent(ctx, item.ID, sendResult.MessageID, cost, time.Now()); err != nil {
			p.logger.WithError(err).WithField("item_id", item.ID).Error("Failed to record sent item")
		}
		if gw != nil {
			p.incrementCounters(ctx, scope, gw.ID, true, day)
		}
		p.appendAudit(ctx, item, models.StatusSent, nil)
		if p.metrics != nil {
			p.metrics.RecordProcessed(item.Channel, models.StatusSent, duration)
		}
		return models.StatusSent
	}

	// Failed attempt: counters and audit fire exactly once per attempt,
	// regardless of whether the item retries
	if gw != nil {
		p.incrementCounters(ctx, scope, gw.ID, false, day)
	}
	if p.metrics != nil {
		p.metrics.RecordGatewayError(item.Channel, gateway.KindOf(sendErr).String())
	}

	errMsg := sendErr.Error()

	if !gateway.IsRetryable(sendErr) {
		// Permanent or config error: retrying is pointless, fail now
		// without consuming the retry budget
		return p.failItem(ctx, item, errMsg, attemptStart)
	}

	retryCount := item.RetryCount + 1
	if retryCount >= item.MaxRetries {
		if err := p.storage.MarkItemFailed(ctx, item.ID, retryCount, errMsg); err != nil {
			p.logger.WithError(err).WithField("item_id", item.ID).Error("Failed to record failed item")
		}
		p.appendAudit(ctx, item, models.StatusFailed, &errMsg)
		if p.metrics != nil {
			p.metrics.RecordProcessed(item.Channel, models.StatusFailed, duration)
		}
		p.logger.WithFields(logrus.Fields{
			"item_id":     item.ID,
			"retry_count": retryCount,
			"error":       errMsg,
		}).Warn("Queue item failed permanently, retries exhausted")
		return models.StatusFailed
	}

	nextAttempt := time.Now().Add(p.backoffDelay(retryCount))
	if err := p.storage.RescheduleItem(ctx, item.ID, retryCount, nextAttempt, errMsg); err != nil {
		p.logger.WithError(err).WithField("item_id", item.ID).Error("Failed to reschedule item")
	}
	p.appendAudit(ctx, item, "retrying", &errMsg)
	if p.metrics != nil {
		p.metrics.RecordProcessed(item.Channel, "retried", duration)
	}
	p.logger.WithFields(logrus.Fields{
		"item_id":      item.ID,
		"retry_count":  retryCount,
		"next_attempt": nextAttempt.Format(time.RFC3339),
		"error":        errMsg,
	}).Debug("Queue item rescheduled")
	return models.StatusPending
}

// renderItem resolves the template for an item and renders it
func (p *Processor) renderItem(ctx context.Context, scope models.TenantScope, item *models.QueueItem) (*RenderedMessage, error) {
	var tmpl *models.Template
	var err error

	if item.WorkflowID != nil {
		wf, wfErr := p.storage.GetWorkflow(ctx, scope, *item.WorkflowID)
		if wfErr != nil {
			return nil, fmt.Errorf("workflow %d not found", *item.WorkflowID)
		}
		tmpl, err = p.storage.GetTemplate(ctx, scope, wf.TemplateID)
	} else {
		tmpl, err = p.storage.GetActiveTemplateByEvent(ctx, scope, item.EventKey)
	}
	if err != nil {
		return nil, fmt.Errorf("no template for event %s", item.EventKey)
	}
	if !tmpl.IsActive {
		return nil, fmt.Errorf("template %d is not active", tmpl.ID)
	}

	var user *models.User
	if item.UserID != nil {
		user, _ = p.storage.GetUser(ctx, scope, *item.UserID)
	}

	rendered, ok := Render(tmpl, item.Channel, user, item.Payload)
	if !ok {
		return nil, fmt.Errorf("template %d has no content for channel %s", tmpl.ID, item.Channel)
	}
	return rendered, nil
}

// senderForItem resolves the gateway and sender for an item. Email items
// with no bound gateway fall back to the application SMTP configuration.
func (p *Processor) senderForItem(ctx context.Context, scope models.TenantScope, item *models.QueueItem) (*models.Gateway, gateway.Sender, error) {
	if item.GatewayID != nil {
		gw, err := p.storage.GetGateway(ctx, scope, *item.GatewayID)
		if err != nil {
			return nil, nil, fmt.Errorf("gateway %d not found", *item.GatewayID)
		}
		sender, err := p.gateways.SenderFor(gw)
		if err != nil {
			return nil, nil, err
		}
		return gw, sender, nil
	}

	if item.Channel == models.ChannelEmail {
		return nil, p.gateways.DefaultEmailSender(), nil
	}

	active := true
	gateways, err := p.storage.GetGateways(ctx, scope, &active)
	if err != nil {
		return nil, nil, err
	}
	for _, gw := range gateways {
		if gw.Type == item.Channel {
			sender, err := p.gateways.SenderFor(gw)
			if err != nil {
				return nil, nil, err
			}
			return gw, sender, nil
		}
	}
	return nil, nil, fmt.Errorf("no active gateway for channel %s", item.Channel)
}

// failItem marks an item failed without touching its retry budget
func (p *Processor) failItem(ctx context.Context, item *models.QueueItem, errMsg string, attemptStart time.Time) string {
	if err := p.storage.MarkItemFailed(ctx, item.ID, item.RetryCount, errMsg); err != nil {
		p.logger.WithError(err).WithField("item_id", item.ID).Error("Failed to record failed item")
	}
	p.appendAudit(ctx, item, models.StatusFailed, &errMsg)
	if p.metrics != nil {
		p.metrics.RecordProcessed(item.Channel, models.StatusFailed, time.Since(attemptStart))
	}
	p.logger.WithFields(logrus.Fields{
		"item_id": item.ID,
		"channel": item.Channel,
		"error":   errMsg,
	}).Warn("Queue item failed")
	return models.StatusFailed
}

// incrementCounters bumps the gateway counters in storage, logging but not
// propagating failures: counter drift must never block delivery accounting
func (p *Processor) incrementCounters(ctx context.Context, scope models.TenantScope, gatewayID int64, success bool, day string) {
	if err := p.storage.IncrementGatewayCounters(ctx, scope, gatewayID, success, day); err != nil {
		p.logger.WithError(err).WithField("gateway_id", gatewayID).Warn("Failed to update gateway counters")
	}
}

// backoffDelay grows the retry window exponentially so a flapping provider
// is not hammered on every poll
func (p *Processor) backoffDelay(retryCount int) time.Duration {
	delay := p.cfg.RetryBaseDelay
	for i := 1; i < retryCount; i++ {
		delay *= 2
	}
	return delay
}

// appendAudit writes one audit entry per delivery attempt
func (p *Processor) appendAudit(ctx context.Context, item *models.QueueItem, status string, errMsg *string) {
	if !p.audit {
		return
	}
	entry := &models.AuditLogEntry{
		TenantID:   item.TenantID,
		WorkflowID: item.WorkflowID,
		EventKey:   item.EventKey,
		UserID:     item.UserID,
		Recipient:  item.Recipient,
		Channel:    item.Channel,
		Status:     status,
		Error:      errMsg,
	}
	if err := p.storage.AppendAudit(ctx, entry); err != nil {
		p.logger.WithError(err).Warn("Failed to append audit entry")
	}
}

// PollDeliveries asks providers for delivery confirmation of sent items.
// Providers without a status endpoint report unknown and the item stays
// sent.
func (p *Processor) PollDeliveries(ctx context.Context) (checked, delivered int, err error) {
	items, err := p.storage.GetSentItemsForPolling(ctx, p.cfg.BatchSize)
	if err != nil {
		return 0, 0, err
	}

	for _, item := range items {
		if item.GatewayID == nil || item.GatewayMessageID == nil {
			continue
		}
		checked++

		scope := models.Scope(item.TenantID)
		gw, err := p.storage.GetGateway(ctx, scope, *item.GatewayID)
		if err != nil {
			continue
		}
		sender, err := p.gateways.SenderFor(gw)
		if err != nil {
			continue
		}
		checker, ok := sender.(gateway.StatusChecker)
		if !ok {
			continue
		}

		status, err := checker.GetStatus(ctx, *item.GatewayMessageID)
		if err != nil {
			p.logger.WithError(err).WithField("item_id", item.ID).Debug("Delivery status poll failed")
			continue
		}

		switch status {
		case gateway.DeliveryStatusDelivered:
			if err := p.storage.MarkItemDelivered(ctx, item.ID); err == nil {
				delivered++
			}
		case gateway.DeliveryStatusFailed:
			msg := "provider reported delivery failure"
			if err := p.storage.MarkItemFailed(ctx, item.ID, item.RetryCount, msg); err != nil {
				p.logger.WithError(err).WithField("item_id", item.ID).Error("Failed to record delivery failure")
			}
		}
	}

	return checked, delivered, nil
}

// updateQueueDepth refreshes the per-status queue gauges
func (p *Processor) updateQueueDepth(ctx context.Context) {
	counts, err := p.storage.CountQueueByStatus(ctx)
	if err != nil {
		return
	}
	for _, status := range []string{
		models.StatusPending, models.StatusProcessing, models.StatusSent,
		models.StatusDelivered, models.StatusFailed, models.StatusCancelled,
	} {
		p.metrics.UpdateQueueDepth(status, counts[status])
	}
}
