package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/notification-engine/internal/config"
	"github.com/smartdevs17/notification-engine/internal/models"
)

func testGateway(url string) *models.Gateway {
	return &models.Gateway{
		ID:       1,
		TenantID: 1,
		Name:     "test-sms",
		Type:     models.ChannelSMS,
		IsActive: true,
		Config: map[string]interface{}{
			"url":          url,
			"api_key":      "secret-key",
			"sender_id":    "TestCRM",
			"country_code": "61",
		},
		CostPerMessage: 0.05,
	}
}

func newTestSender(t *testing.T, url string) *HTTPSender {
	t.Helper()
	manager := NewManager(&config.EmailConfig{})
	gw := testGateway(url)
	sender, err := NewHTTPSender(gw, manager.breakerFor(gw), NewGatewayLogger())
	require.NoError(t, err)
	return sender
}

func TestHTTPSenderSuccess(t *testing.T) {
	var received map[string]interface{}
	var auth string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"message_id": "msg-42", "status": "queued"})
	}))
	defer server.Close()

	sender := newTestSender(t, server.URL)

	result, err := sender.Send(context.Background(), &SendRequest{
		Recipient: "0412 345 678",
		Body:      "Your visa appointment is tomorrow",
	})
	require.NoError(t, err)

	assert.Equal(t, "msg-42", result.MessageID)
	assert.Equal(t, 0.05, result.Cost)
	assert.Equal(t, "Bearer secret-key", auth)
	assert.Equal(t, "+61412345678", received["to"], "phone normalized to E.164 before sending")
	assert.Equal(t, "Your visa appointment is tomorrow", received["message"])
	assert.Equal(t, "TestCRM", received["sender_id"])
}

func TestHTTPSenderInvalidRecipientIsPermanent(t *testing.T) {
	sender := newTestSender(t, "http://127.0.0.1:1")

	_, err := sender.Send(context.Background(), &SendRequest{
		Recipient: "not-a-phone",
		Body:      "hi",
	})
	require.Error(t, err)
	assert.Equal(t, KindPermanent, KindOf(err))
	assert.False(t, IsRetryable(err))
}

func TestHTTPSenderServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "provider down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sender := newTestSender(t, server.URL)

	_, err := sender.Send(context.Background(), &SendRequest{
		Recipient: "+61412345678",
		Body:      "hi",
	})
	require.Error(t, err)
	assert.Equal(t, KindTransient, KindOf(err))
	assert.True(t, IsRetryable(err))
}

func TestHTTPSenderClientErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown recipient", http.StatusBadRequest)
	}))
	defer server.Close()

	sender := newTestSender(t, server.URL)

	_, err := sender.Send(context.Background(), &SendRequest{
		Recipient: "+61412345678",
		Body:      "hi",
	})
	require.Error(t, err)
	assert.Equal(t, KindPermanent, KindOf(err))
}

func TestHTTPSenderRateLimitIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	sender := newTestSender(t, server.URL)

	_, err := sender.Send(context.Background(), &SendRequest{
		Recipient: "+61412345678",
		Body:      "hi",
	})
	require.Error(t, err)
	assert.True(t, IsRetryable(err))
}

func TestHTTPSenderMissingURL(t *testing.T) {
	manager := NewManager(&config.EmailConfig{})
	gw := testGateway("")
	delete(gw.Config, "url")

	_, err := NewHTTPSender(gw, manager.breakerFor(gw), NewGatewayLogger())
	require.Error(t, err)
	assert.Equal(t, KindConfig, KindOf(err))
}

func TestHTTPSenderGetStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/status/msg-7", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"status": "delivered"})
	}))
	defer server.Close()

	manager := NewManager(&config.EmailConfig{})
	gw := testGateway(server.URL)
	gw.Config["status_url"] = server.URL + "/status/{message_id}"

	sender, err := NewHTTPSender(gw, manager.breakerFor(gw), NewGatewayLogger())
	require.NoError(t, err)

	status, err := sender.GetStatus(context.Background(), "msg-7")
	require.NoError(t, err)
	assert.Equal(t, DeliveryStatusDelivered, status)
}

func TestHTTPSenderGetStatusNoEndpoint(t *testing.T) {
	sender := newTestSender(t, "http://127.0.0.1:1")

	status, err := sender.GetStatus(context.Background(), "msg-7")
	require.NoError(t, err)
	assert.Equal(t, DeliveryStatusUnknown, status)
}

func TestExtractMessageID(t *testing.T) {
	assert.Equal(t, "a", extractMessageID([]byte(`{"message_id":"a"}`)))
	assert.Equal(t, "b", extractMessageID([]byte(`{"id":"b"}`)))
	assert.Equal(t, "a", extractMessageID([]byte(`{"message_id":"a","id":"b"}`)))
	assert.Equal(t, "", extractMessageID([]byte(`not json`)))
}
