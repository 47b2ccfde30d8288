package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/smartdevs17/notification-engine/internal/config"
	"github.com/smartdevs17/notification-engine/internal/models"
)

// SendRequest carries one rendered message to a sender
type SendRequest struct {
	Recipient string
	Subject   string
	Body      string
	HTML      bool
	Metadata  map[string]interface{}
}

// SendResult is returned by a sender on success
type SendResult struct {
	MessageID string
	Cost      float64
	Duration  time.Duration
}

// Sender delivers messages over one channel type. Send returns a
// *DeliveryError on failure so callers can distinguish transient from
// permanent problems.
type Sender interface {
	Type() string
	ValidateRecipient(recipient string) error
	Send(ctx context.Context, req *SendRequest) (*SendResult, error)
	Test(ctx context.Context) error
}

// StatusChecker is implemented by senders whose provider exposes a delivery
// status endpoint
type StatusChecker interface {
	GetStatus(ctx context.Context, messageID string) (string, error)
}

// Delivery status values reported by StatusChecker
const (
	DeliveryStatusDelivered = "delivered"
	DeliveryStatusFailed    = "failed"
	DeliveryStatusPending   = "pending"
	DeliveryStatusUnknown   = "unknown"
)

// Manager builds senders for gateway rows. Circuit breakers are shared per
// gateway ID so failure state survives across queue passes.
type Manager struct {
	emailDefaults *config.EmailConfig
	logger        *GatewayLogger
	mu            sync.Mutex
	breakers      map[int64]*gobreaker.CircuitBreaker
}

// NewManager creates a gateway manager
func NewManager(emailDefaults *config.EmailConfig) *Manager {
	return &Manager{
		emailDefaults: emailDefaults,
		logger:        NewGatewayLogger().WithField("component", "gateway_manager"),
		breakers:      make(map[int64]*gobreaker.CircuitBreaker),
	}
}

// SenderFor builds a sender for the given gateway row
func (m *Manager) SenderFor(gw *models.Gateway) (Sender, error) {
	if !gw.IsActive {
		return nil, NewConfigError(fmt.Sprintf("gateway %d is not active", gw.ID), nil)
	}

	switch gw.Type {
	case models.ChannelEmail:
		return NewEmailSender(m.emailConfigFor(gw), m.logger), nil
	case models.ChannelSMS, models.ChannelWhatsApp, models.ChannelViber, models.ChannelPush:
		return NewHTTPSender(gw, m.breakerFor(gw), m.logger)
	default:
		return nil, NewConfigError(fmt.Sprintf("unsupported gateway type: %s", gw.Type), nil)
	}
}

// DefaultEmailSender returns the sender backed by the application SMTP
// configuration, used when a workflow names no email gateway
func (m *Manager) DefaultEmailSender() Sender {
	return NewEmailSender(m.emailDefaults, m.logger)
}

// emailConfigFor merges gateway config over the application SMTP defaults
func (m *Manager) emailConfigFor(gw *models.Gateway) *config.EmailConfig {
	cfg := *m.emailDefaults

	if host := gw.ConfigString("smtp_host"); host != "" {
		cfg.SMTPHost = host
	}
	if port := gw.ConfigInt("smtp_port", 0); port != 0 {
		cfg.SMTPPort = port
	}
	if user := gw.ConfigString("username"); user != "" {
		cfg.Username = user
	}
	if pass := gw.ConfigString("password"); pass != "" {
		cfg.Password = pass
	}
	if from := gw.ConfigString("from_email"); from != "" {
		cfg.FromEmail = from
	}
	if name := gw.ConfigString("from_name"); name != "" {
		cfg.FromName = name
	}
	cfg.UseTLS = gw.ConfigBool("use_tls", cfg.UseTLS)
	cfg.UseStartTLS = gw.ConfigBool("use_start_tls", cfg.UseStartTLS)

	return &cfg
}

// breakerFor returns the circuit breaker shared by all sends through one
// gateway
func (m *Manager) breakerFor(gw *models.Gateway) *gobreaker.CircuitBreaker {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cb, ok := m.breakers[gw.ID]; ok {
		return cb
	}

	logger := m.logger
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        fmt.Sprintf("gateway-%d", gw.ID),
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", map[string]interface{}{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
		},
	})
	m.breakers[gw.ID] = cb
	return cb
}
