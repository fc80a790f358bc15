package middleware

import (
	"strings"
	"testing"
)

func TestValidateSessionID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		ok   bool
	}{
		{"server generated", "session_1717236000000_a1b2c3d4", true},
		{"short opaque", "s1", true},
		{"empty", "", false},
		{"blank", "   ", false},
		{"too long", strings.Repeat("x", 129), false},
		{"subject wildcard", "session.*", false},
		{"subject token separator", "a.b", false},
		{"embedded space", "a b", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSessionID(tt.id)
			if (err == nil) != tt.ok {
				t.Errorf("ValidateSessionID(%q) = %v, want ok=%v", tt.id, err, tt.ok)
			}
		})
	}
}

func TestValidateMessageContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		ok      bool
	}{
		{"plain", "what is your price", true},
		{"empty", "", false},
		{"blank", " \t ", false},
		{"too long", strings.Repeat("a", 100001), false},
		{"invalid utf8", string([]byte{0xff, 0xfe}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageContent(tt.content)
			if (err == nil) != tt.ok {
				t.Errorf("ValidateMessageContent(%s) = %v, want ok=%v", tt.name, err, tt.ok)
			}
		})
	}
}
