package engine

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/smartdevs17/notification-engine/internal/models"
)

// RenderedMessage is the output of template rendering for one channel
type RenderedMessage struct {
	Subject string
	Body    string
	HTML    bool
}

var (
	htmlTagPattern     = regexp.MustCompile(`<[^>]*>`)
	whitespacePattern  = regexp.MustCompile(`[ \t]{2,}`)
	placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)
)

// Render substitutes payload values into the template content for a channel.
// Channel-specific custom content wins over the generic email body; text
// channels with no custom content fall back to the HTML body with markup
// stripped. Returns ok=false when no usable body exists so callers never
// send an empty message.
func Render(tmpl *models.Template, channel string, user *models.User, payload map[string]interface{}) (*RenderedMessage, bool) {
	subject, body, isHTML, ok := selectContent(tmpl, channel)
	if !ok {
		return nil, false
	}

	vars := substitutionVars(user, payload)
	subject = substitute(subject, vars, false)
	body = substitute(body, vars, isHTML)

	return &RenderedMessage{Subject: subject, Body: body, HTML: isHTML}, true
}

// substitute replaces every {key} placeholder in a single pass over the
// original text. Substituted values are never rescanned, so a value that
// itself contains placeholder syntax comes through literally and the output
// is deterministic. Unknown placeholders are left intact.
func substitute(s string, vars map[string]string, escape bool) string {
	return placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		value, ok := vars[match[1:len(match)-1]]
		if !ok {
			return match
		}
		if escape {
			return html.EscapeString(value)
		}
		return value
	})
}

// selectContent picks subject/body for the channel, walking the fallback
// chain
func selectContent(tmpl *models.Template, channel string) (subject, body string, isHTML, ok bool) {
	subject = tmpl.Subject

	if custom, exists := tmpl.Channels[channel]; exists {
		if custom.Subject != "" {
			subject = custom.Subject
		}
		if custom.Body != "" {
			return subject, custom.Body, !models.IsTextChannel(channel), true
		}
	}

	if !models.IsTextChannel(channel) {
		if tmpl.EmailHTML != "" {
			return subject, tmpl.EmailHTML, true, true
		}
		if tmpl.EmailText != "" {
			return subject, tmpl.EmailText, false, true
		}
		return "", "", false, false
	}

	// Text channel without custom content: reuse the email body as plain text
	if tmpl.EmailText != "" {
		return subject, tmpl.EmailText, false, true
	}
	if tmpl.EmailHTML != "" {
		return subject, StripHTML(tmpl.EmailHTML), false, true
	}
	return "", "", false, false
}

// substitutionVars flattens scalar payload values into placeholder
// replacements. Arrays and objects are skipped so serialized structures
// never leak into user-facing text. The {name} placeholder always resolves
// from the user record when one is known.
func substitutionVars(user *models.User, payload map[string]interface{}) map[string]string {
	vars := make(map[string]string, len(payload)+1)

	for key, value := range payload {
		switch v := value.(type) {
		case string:
			vars[key] = v
		case float64:
			if v == float64(int64(v)) {
				vars[key] = strconv.FormatInt(int64(v), 10)
			} else {
				vars[key] = strconv.FormatFloat(v, 'f', -1, 64)
			}
		case int:
			vars[key] = strconv.Itoa(v)
		case int64:
			vars[key] = strconv.FormatInt(v, 10)
		case bool:
			vars[key] = strconv.FormatBool(v)
		}
	}

	if user != nil && user.Name != "" {
		vars["name"] = user.Name
	}

	return vars
}

// StripHTML converts an HTML body to readable plain text
func StripHTML(s string) string {
	s = strings.ReplaceAll(s, "<br>", "\n")
	s = strings.ReplaceAll(s, "<br/>", "\n")
	s = strings.ReplaceAll(s, "<br />", "\n")
	s = strings.ReplaceAll(s, "</p>", "\n")
	s = htmlTagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = whitespacePattern.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
