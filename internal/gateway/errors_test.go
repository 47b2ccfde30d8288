package gateway

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(NewTransientError("timeout", nil)))
	assert.False(t, IsRetryable(NewPermanentError("invalid recipient", nil)))
	assert.False(t, IsRetryable(NewConfigError("no api key", nil)))
	assert.True(t, IsRetryable(errors.New("something broke")), "unclassified errors keep their retry budget")
}

func TestIsRetryableWrapped(t *testing.T) {
	wrapped := fmt.Errorf("send failed: %w", NewPermanentError("rejected", nil))
	assert.False(t, IsRetryable(wrapped))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindTransient, KindOf(NewTransientError("x", nil)))
	assert.Equal(t, KindPermanent, KindOf(NewPermanentError("x", nil)))
	assert.Equal(t, KindConfig, KindOf(NewConfigError("x", nil)))
	assert.Equal(t, KindTransient, KindOf(errors.New("plain")))
}

func TestDeliveryErrorMessage(t *testing.T) {
	err := NewPermanentError("rejected by provider", errors.New("status 400"))
	assert.Contains(t, err.Error(), "permanent")
	assert.Contains(t, err.Error(), "rejected by provider")
	assert.Contains(t, err.Error(), "status 400")

	var de *DeliveryError
	assert.True(t, errors.As(err, &de))
	assert.ErrorContains(t, errors.Unwrap(err), "status 400")
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "transient", KindTransient.String())
	assert.Equal(t, "permanent", KindPermanent.String())
	assert.Equal(t, "config", KindConfig.String())
}
