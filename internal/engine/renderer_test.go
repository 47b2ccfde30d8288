package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/notification-engine/internal/models"
)

func TestRenderEmailHTML(t *testing.T) {
	tmpl := &models.Template{
		Subject:   "Welcome {name}",
		EmailHTML: "<p>Hello {name}, your application for {course} is in.</p>",
	}
	user := &models.User{Name: "Priya"}
	payload := map[string]interface{}{"course": "Master of IT"}

	msg, ok := Render(tmpl, models.ChannelEmail, user, payload)
	require.True(t, ok)
	assert.True(t, msg.HTML)
	assert.Equal(t, "Welcome Priya", msg.Subject)
	assert.Equal(t, "<p>Hello Priya, your application for Master of IT is in.</p>", msg.Body)
}

func TestRenderHTMLEscapesValues(t *testing.T) {
	tmpl := &models.Template{
		Subject:   "Update",
		EmailHTML: "<p>{note}</p>",
	}
	payload := map[string]interface{}{"note": "<script>alert(1)</script>"}

	msg, ok := Render(tmpl, models.ChannelEmail, nil, payload)
	require.True(t, ok)
	assert.NotContains(t, msg.Body, "<script>")
	assert.Contains(t, msg.Body, "&lt;script&gt;")
}

func TestRenderTextChannelNoEscaping(t *testing.T) {
	tmpl := &models.Template{
		Subject:   "Update",
		EmailText: "Note: {note}",
	}
	payload := map[string]interface{}{"note": "a & b"}

	msg, ok := Render(tmpl, models.ChannelSMS, nil, payload)
	require.True(t, ok)
	assert.False(t, msg.HTML)
	assert.Equal(t, "Note: a & b", msg.Body)
}

func TestRenderChannelCustomContentWins(t *testing.T) {
	tmpl := &models.Template{
		Subject:   "Generic subject",
		EmailText: "long email body",
		Channels: map[string]models.ChannelContent{
			models.ChannelSMS: {Body: "Short: {amount} due"},
		},
	}
	payload := map[string]interface{}{"amount": float64(250)}

	msg, ok := Render(tmpl, models.ChannelSMS, nil, payload)
	require.True(t, ok)
	assert.Equal(t, "Short: 250 due", msg.Body)
	assert.Equal(t, "Generic subject", msg.Subject)
}

func TestRenderTextFallsBackToStrippedHTML(t *testing.T) {
	tmpl := &models.Template{
		Subject:   "Hi",
		EmailHTML: "<p>Hello {name}</p><p>See you soon</p>",
	}
	user := &models.User{Name: "Ben"}

	msg, ok := Render(tmpl, models.ChannelWhatsApp, user, nil)
	require.True(t, ok)
	assert.False(t, msg.HTML)
	assert.NotContains(t, msg.Body, "<p>")
	assert.Contains(t, msg.Body, "Hello Ben")
}

func TestRenderNoUsableContent(t *testing.T) {
	tmpl := &models.Template{Subject: "Subject only"}

	_, ok := Render(tmpl, models.ChannelEmail, nil, nil)
	assert.False(t, ok)

	_, ok = Render(tmpl, models.ChannelSMS, nil, nil)
	assert.False(t, ok)
}

func TestRenderSkipsNonScalarValues(t *testing.T) {
	tmpl := &models.Template{
		Subject:   "Hi",
		EmailText: "Items: {items}, count: {count}",
	}
	payload := map[string]interface{}{
		"items": []interface{}{"a", "b"},
		"count": float64(2),
	}

	msg, ok := Render(tmpl, models.ChannelSMS, nil, payload)
	require.True(t, ok)
	assert.Contains(t, msg.Body, "{items}", "non-scalar placeholders stay as-is")
	assert.Contains(t, msg.Body, "count: 2")
}

func TestRenderUnknownPlaceholderLeftIntact(t *testing.T) {
	tmpl := &models.Template{
		Subject:   "Hi",
		EmailText: "Hello {name}, ref {missing}",
	}

	msg, ok := Render(tmpl, models.ChannelSMS, &models.User{Name: "Ada"}, nil)
	require.True(t, ok)
	assert.Equal(t, "Hello Ada, ref {missing}", msg.Body)
}

func TestRenderDeterministicWithPlaceholderValues(t *testing.T) {
	tmpl := &models.Template{
		Subject:   "Re: {a}",
		EmailText: "{a}",
	}
	payload := map[string]interface{}{"a": "{b}", "b": "X"}

	first, ok := Render(tmpl, models.ChannelSMS, nil, payload)
	require.True(t, ok)
	assert.Equal(t, "{b}", first.Body, "substituted text is never rescanned")

	// Same template and payload always yield byte-identical output
	for i := 0; i < 50; i++ {
		msg, ok := Render(tmpl, models.ChannelSMS, nil, payload)
		require.True(t, ok)
		assert.Equal(t, first.Subject, msg.Subject)
		assert.Equal(t, first.Body, msg.Body)
	}
}

func TestStripHTML(t *testing.T) {
	in := "<p>Hello &amp; welcome</p><p>Line two<br/>Line three</p>"
	out := StripHTML(in)

	assert.NotContains(t, out, "<")
	assert.Contains(t, out, "Hello & welcome")
	assert.Contains(t, out, "Line two\nLine three")
}
