package validation

import (
	"strings"
	"testing"
)

func TestValidateChannelName(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		wantErr bool
	}{
		{"valid name", "general", false},
		{"valid with dash", "dev-talk", false},
		{"valid with underscore", "dev_talk", false},
		{"valid with digits", "room42", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 51), true},
		{"uppercase", "General", true},
		{"spaces", "dev talk", true},
		{"hash prefix", "#general", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateChannelName(tt.channel)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateChannelName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNickname(t *testing.T) {
	tests := []struct {
		name    string
		nick    string
		wantErr bool
	}{
		{"valid nick", "alice", false},
		{"valid mixed case", "Alice", false},
		{"valid with underscore", "alice_99", false},
		{"valid with dash", "al-ice", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 33), true},
		{"with space", "al ice", true},
		{"with at", "al@ice", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNickname(tt.nick)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateNickname() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateMessageContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		maxLen  int
		wantErr bool
	}{
		{"valid content", "hello world", 4000, false},
		{"at limit", strings.Repeat("a", 10), 10, false},
		{"over limit", strings.Repeat("a", 11), 10, true},
		{"empty", "", 4000, true},
		{"invalid utf8", string([]byte{0xff, 0xfe}), 4000, true},
		{"multibyte counted as runes", strings.Repeat("щ", 10), 10, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMessageContent(tt.content, tt.maxLen)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMessageContent() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTopic(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		wantErr bool
	}{
		{"valid topic", "welcome to the channel", false},
		{"empty allowed", "", false},
		{"too long", strings.Repeat("a", 501), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTopic(tt.topic)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTopic() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateServerName(t *testing.T) {
	tests := []struct {
		name    string
		server  string
		wantErr bool
	}{
		{"valid name", "My Community", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 101), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServerName(tt.server)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateServerName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRoleName(t *testing.T) {
	tests := []struct {
		name    string
		role    string
		wantErr bool
	}{
		{"valid name", "Moderator", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 51), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRoleName(tt.role)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRoleName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateWebhookURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"valid http", "http://example.com/hook", false},
		{"valid https", "https://example.com/hook", false},
		{"empty", "", true},
		{"ws scheme", "ws://example.com", true},
		{"no host", "http://", true},
		{"invalid format", "not-a-url", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWebhookURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateWebhookURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
