package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatPhone(t *testing.T) {
	cases := []struct {
		raw         string
		countryCode string
		want        string
	}{
		{"0412 345 678", "61", "+61412345678"},
		{"+61412345678", "61", "+61412345678"},
		{"0061412345678", "61", "+61412345678"},
		{"61412345678", "61", "+61412345678"},
		{"412345678", "61", "+61412345678"},
		{"(04) 1234-5678", "61", "+61412345678"},
		{"0412.345.678", "+61", "+61412345678"},
		{"", "61", ""},
		{"712345678", "", "+712345678"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatPhone(tc.raw, tc.countryCode),
			"FormatPhone(%q, %q)", tc.raw, tc.countryCode)
	}
}

func TestIsValidE164(t *testing.T) {
	assert.True(t, IsValidE164("+61412345678"))
	assert.True(t, IsValidE164("+14155552671"))
	assert.False(t, IsValidE164("61412345678"), "missing plus")
	assert.False(t, IsValidE164("+0412345678"), "leading zero after plus")
	assert.False(t, IsValidE164("+12345"), "too short")
	assert.False(t, IsValidE164(""))
}

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("student@example.com"))
	assert.True(t, IsValidEmail("a.b+tag@sub.example.co"))
	assert.False(t, IsValidEmail("not-an-email"))
	assert.False(t, IsValidEmail("two@@example.com"))
	assert.False(t, IsValidEmail(""))
}
