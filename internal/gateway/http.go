package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/smartdevs17/notification-engine/internal/models"
	"github.com/smartdevs17/notification-engine/pkg/utils"
)

// HTTPSender delivers text messages (sms, whatsapp, viber, push) through a
// provider's HTTP API. The provider endpoint, credentials and country code
// all come from the gateway config blob.
type HTTPSender struct {
	gateway    *models.Gateway
	logger     *GatewayLogger
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker

	url         string
	method      string
	apiKey      string
	senderID    string
	countryCode string
	statusURL   string
}

// providerResponse is the subset of the provider reply we care about
type providerResponse struct {
	MessageID string `json:"message_id"`
	ID        string `json:"id"`
	Status    string `json:"status"`
	Error     string `json:"error"`
}

// NewHTTPSender creates an HTTP sender for a text-channel gateway
func NewHTTPSender(gw *models.Gateway, breaker *gobreaker.CircuitBreaker, logger *GatewayLogger) (*HTTPSender, error) {
	url := gw.ConfigString("url")
	if url == "" {
		return nil, NewConfigError(fmt.Sprintf("gateway %d has no url configured", gw.ID), nil)
	}

	method := gw.ConfigString("method")
	if method == "" {
		method = http.MethodPost
	}

	timeout := time.Duration(gw.ConfigInt("timeout_seconds", 30)) * time.Second

	return &HTTPSender{
		gateway: gw,
		logger: logger.WithContext(map[string]interface{}{
			"component":  "http_sender",
			"gateway_id": gw.ID,
			"type":       gw.Type,
		}),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 5,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		breaker:     breaker,
		url:         url,
		method:      method,
		apiKey:      gw.ConfigString("api_key"),
		senderID:    gw.ConfigString("sender_id"),
		countryCode: gw.ConfigString("country_code"),
		statusURL:   gw.ConfigString("status_url"),
	}, nil
}

// Type returns the channel type this sender serves
func (hs *HTTPSender) Type() string {
	return hs.gateway.Type
}

// ValidateRecipient normalizes and checks the phone number
func (hs *HTTPSender) ValidateRecipient(recipient string) error {
	phone := FormatPhone(recipient, hs.countryCode)
	if !IsValidE164(phone) {
		return NewPermanentError(fmt.Sprintf("invalid phone number: %s", recipient), nil)
	}
	return nil
}

// Send delivers a single message through the provider API
func (hs *HTTPSender) Send(ctx context.Context, req *SendRequest) (*SendResult, error) {
	startTime := time.Now()

	phone := FormatPhone(req.Recipient, hs.countryCode)
	hs.logger.LogSendAttempt(hs.gateway.Type, phone)

	if !IsValidE164(phone) {
		err := NewPermanentError(fmt.Sprintf("invalid phone number: %s", req.Recipient), nil)
		hs.logger.LogSendResult(hs.gateway.Type, phone, false, time.Since(startTime), err)
		return nil, err
	}

	result, err := hs.breaker.Execute(func() (interface{}, error) {
		return hs.sendRequest(ctx, phone, req)
	})

	duration := time.Since(startTime)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = NewTransientError("gateway circuit breaker open", err)
		}
		hs.logger.LogSendResult(hs.gateway.Type, phone, false, duration, err)
		return nil, err
	}

	sendResult := result.(*SendResult)
	sendResult.Duration = duration
	sendResult.Cost = hs.gateway.CostPerMessage
	hs.logger.LogSendResult(hs.gateway.Type, phone, true, duration, nil)

	return sendResult, nil
}

// sendRequest performs the actual HTTP call, inside the circuit breaker
func (hs *HTTPSender) sendRequest(ctx context.Context, phone string, req *SendRequest) (*SendResult, error) {
	payload := map[string]interface{}{
		"to":      phone,
		"message": req.Body,
	}
	if hs.senderID != "" {
		payload["sender_id"] = hs.senderID
	}
	for k, v := range req.Metadata {
		payload[k] = v
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, NewPermanentError("failed to marshal provider payload", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, hs.method, hs.url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, NewConfigError("failed to create provider request", err)
	}
	hs.setRequestHeaders(httpReq)

	resp, err := hs.httpClient.Do(httpReq)
	if err != nil {
		return nil, NewTransientError("failed to reach provider", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return &SendResult{MessageID: extractMessageID(body)}, nil
	}

	delErr := &DeliveryError{
		Kind:       classifyStatus(resp.StatusCode),
		Message:    fmt.Sprintf("provider returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		StatusCode: resp.StatusCode,
	}
	return nil, delErr
}

// Test sends an empty-payload probe to the provider endpoint
func (hs *HTTPSender) Test(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, hs.url, nil)
	if err != nil {
		return NewConfigError("failed to create probe request", err)
	}
	hs.setRequestHeaders(httpReq)

	resp, err := hs.httpClient.Do(httpReq)
	if err != nil {
		return NewTransientError("failed to reach provider", err)
	}
	resp.Body.Close()

	if resp.StatusCode >= 500 {
		return NewTransientError(fmt.Sprintf("provider returned status %d", resp.StatusCode), nil)
	}
	return nil
}

// GetStatus polls the provider for delivery confirmation of a sent message
func (hs *HTTPSender) GetStatus(ctx context.Context, messageID string) (string, error) {
	if hs.statusURL == "" {
		return DeliveryStatusUnknown, nil
	}

	url := strings.ReplaceAll(hs.statusURL, "{message_id}", messageID)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return DeliveryStatusUnknown, NewConfigError("failed to create status request", err)
	}
	hs.setRequestHeaders(httpReq)

	resp, err := hs.httpClient.Do(httpReq)
	if err != nil {
		return DeliveryStatusUnknown, NewTransientError("failed to reach provider", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return DeliveryStatusUnknown, NewTransientError(
			fmt.Sprintf("status endpoint returned %d", resp.StatusCode), nil)
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var pr providerResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return DeliveryStatusUnknown, nil
	}

	switch strings.ToLower(pr.Status) {
	case "delivered", "read":
		return DeliveryStatusDelivered, nil
	case "failed", "rejected", "undelivered":
		return DeliveryStatusFailed, nil
	case "queued", "sent", "pending":
		return DeliveryStatusPending, nil
	default:
		return DeliveryStatusUnknown, nil
	}
}

// setRequestHeaders sets provider request headers
func (hs *HTTPSender) setRequestHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "notification-engine/1.0")
	if hs.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+hs.apiKey)
	}
	req.Header.Set("X-Request-ID", utils.GenerateID())
}

// classifyStatus maps provider status codes to retry behavior. Rate limits
// and server errors are worth retrying; other client errors are not.
func classifyStatus(statusCode int) ErrorKind {
	if statusCode == http.StatusTooManyRequests || statusCode >= 500 {
		return KindTransient
	}
	return KindPermanent
}

// extractMessageID pulls the provider message ID out of the response body
func extractMessageID(body []byte) string {
	var pr providerResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return ""
	}
	if pr.MessageID != "" {
		return pr.MessageID
	}
	return pr.ID
}
