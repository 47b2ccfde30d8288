package models

// Delivery channels. The channel universe at runtime is ChannelEmail plus
// every distinct active gateway type, so new gateway types become selectable
// without code changes; these constants cover the providers shipped today.
const (
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
	ChannelViber    = "viber"
	ChannelPush     = "push"
)

// IsTextChannel reports whether the channel carries plain text only.
// Template substitution HTML-escapes values for non-text channels.
func IsTextChannel(channel string) bool {
	return channel != ChannelEmail
}
