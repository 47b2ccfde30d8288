package gateway

import (
	"time"

	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/notification-engine/pkg/utils"
)

// GatewayLogger handles logging for delivery operations
type GatewayLogger struct {
	logger  *logrus.Logger
	context map[string]interface{}
}

// NewGatewayLogger creates a new gateway logger
func NewGatewayLogger() *GatewayLogger {
	return &GatewayLogger{
		logger:  utils.GetLogger(),
		context: make(map[string]interface{}),
	}
}

// WithContext adds context to the logger
func (gl *GatewayLogger) WithContext(context map[string]interface{}) *GatewayLogger {
	newLogger := &GatewayLogger{
		logger:  gl.logger,
		context: make(map[string]interface{}),
	}
	for k, v := range gl.context {
		newLogger.context[k] = v
	}
	for k, v := range context {
		newLogger.context[k] = v
	}
	return newLogger
}

// WithField adds a single field to the logger context
func (gl *GatewayLogger) WithField(key string, value interface{}) *GatewayLogger {
	return gl.WithContext(map[string]interface{}{key: value})
}

// Debug logs a debug message
func (gl *GatewayLogger) Debug(message string, context ...map[string]interface{}) {
	gl.log(logrus.DebugLevel, message, context...)
}

// Info logs an info message
func (gl *GatewayLogger) Info(message string, context ...map[string]interface{}) {
	gl.log(logrus.InfoLevel, message, context...)
}

// Warn logs a warning message
func (gl *GatewayLogger) Warn(message string, context ...map[string]interface{}) {
	gl.log(logrus.WarnLevel, message, context...)
}

// Error logs an error message
func (gl *GatewayLogger) Error(message string, context ...map[string]interface{}) {
	gl.log(logrus.ErrorLevel, message, context...)
}

func (gl *GatewayLogger) log(level logrus.Level, message string, context ...map[string]interface{}) {
	fields := logrus.Fields{}
	for k, v := range gl.context {
		fields[k] = v
	}
	for _, ctx := range context {
		for k, v := range ctx {
			fields[k] = v
		}
	}
	gl.logger.WithFields(fields).Log(level, message)
}

// LogSendAttempt logs a delivery attempt
func (gl *GatewayLogger) LogSendAttempt(channel, recipient string) {
	gl.Debug("Delivery attempt", map[string]interface{}{
		"channel":   channel,
		"recipient": recipient,
	})
}

// LogSendResult logs the outcome of a delivery attempt
func (gl *GatewayLogger) LogSendResult(channel, recipient string, success bool, duration time.Duration, err error) {
	fields := map[string]interface{}{
		"channel":     channel,
		"recipient":   recipient,
		"success":     success,
		"duration_ms": duration.Milliseconds(),
	}
	if err != nil {
		fields["error"] = err.Error()
		gl.Warn("Delivery attempt failed", fields)
		return
	}
	gl.Debug("Delivery attempt succeeded", fields)
}
