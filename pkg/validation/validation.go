package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxChannelNameLength = 50
	MaxTopicLength       = 500
	MaxNicknameLength    = 32
	MaxServerNameLength  = 100
	MaxRoleNameLength    = 50
	MaxReasonLength      = 256
)

var (
	// ChannelNameRegex validates channel name format
	ChannelNameRegex = regexp.MustCompile(`^[a-z0-9_-]+$`)

	// NicknameRegex validates nickname format
	NicknameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateChannelName validates channel name
func ValidateChannelName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("channel name is required")
	}
	if len(name) > MaxChannelNameLength {
		return fmt.Errorf("channel name is too long (max %d characters)", MaxChannelNameLength)
	}
	if !ChannelNameRegex.MatchString(name) {
		return fmt.Errorf("channel name contains invalid characters (only lowercase letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateNickname validates nickname
func ValidateNickname(nick string) error {
	nick = strings.TrimSpace(nick)
	if nick == "" {
		return fmt.Errorf("nickname is required")
	}
	if len(nick) > MaxNicknameLength {
		return fmt.Errorf("nickname is too long (max %d characters)", MaxNicknameLength)
	}
	if !NicknameRegex.MatchString(nick) {
		return fmt.Errorf("nickname contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateMessageContent validates message content against the configured limit
func ValidateMessageContent(content string, maxLength int) error {
	if content == "" {
		return fmt.Errorf("message content is required")
	}
	if !utf8.ValidString(content) {
		return fmt.Errorf("message content is not valid UTF-8")
	}
	if utf8.RuneCountInString(content) > maxLength {
		return fmt.Errorf("message is too long (max %d characters)", maxLength)
	}
	return nil
}

// ValidateTopic validates channel topic
func ValidateTopic(topic string) error {
	if !utf8.ValidString(topic) {
		return fmt.Errorf("topic is not valid UTF-8")
	}
	if utf8.RuneCountInString(topic) > MaxTopicLength {
		return fmt.Errorf("topic is too long (max %d characters)", MaxTopicLength)
	}
	return nil
}

// ValidateServerName validates server name
func ValidateServerName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("server name is required")
	}
	if utf8.RuneCountInString(name) > MaxServerNameLength {
		return fmt.Errorf("server name is too long (max %d characters)", MaxServerNameLength)
	}
	if !utf8.ValidString(name) {
		return fmt.Errorf("server name contains invalid characters")
	}
	return nil
}

// ValidateRoleName validates role name
func ValidateRoleName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("role name is required")
	}
	if utf8.RuneCountInString(name) > MaxRoleNameLength {
		return fmt.Errorf("role name is too long (max %d characters)", MaxRoleNameLength)
	}
	return nil
}

// ValidateWebhookURL validates webhook target URL
func ValidateWebhookURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("webhook URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid webhook URL scheme (must be http or https)")
	}
	if u.Host == "" {
		return fmt.Errorf("webhook URL must have a host")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
