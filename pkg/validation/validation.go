package validation

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// CommandNameRegex validates command names as typed after the trigger
	CommandNameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

	// CooldownIDRegex validates cooldown type ids
	CooldownIDRegex = regexp.MustCompile(`^[a-z0-9_.-]+$`)

	// MediaIDRegex validates provider media ids
	MediaIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_\-.:/?=&%]+$`)

	usernameRegex = regexp.MustCompile(`^[\p{L}\p{N}_-]+$`)
)

// ValidateCommandName validates a command name
func ValidateCommandName(name string) error {
	if name == "" {
		return fmt.Errorf("command name is required")
	}
	if len(name) > 32 {
		return fmt.Errorf("command name is too long (max 32 characters)")
	}
	if !CommandNameRegex.MatchString(name) {
		return fmt.Errorf("command name %q contains invalid characters (only letters, numbers, _, - allowed)", name)
	}
	return nil
}

// ValidateCooldownID validates a cooldown type id
func ValidateCooldownID(id string) error {
	if id == "" {
		return fmt.Errorf("cooldown id is required")
	}
	if len(id) > 64 {
		return fmt.Errorf("cooldown id is too long (max 64 characters)")
	}
	if !CooldownIDRegex.MatchString(id) {
		return fmt.Errorf("invalid cooldown id format %q", id)
	}
	return nil
}

// ValidateUsername validates a room user name
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if utf8.RuneCountInString(username) > 20 {
		return fmt.Errorf("username is too long (max 20 characters)")
	}
	if !usernameRegex.MatchString(username) {
		return fmt.Errorf("username contains invalid characters (only letters, numbers, _, - allowed)")
	}
	return nil
}

// ValidateMediaRef validates a "type:id" media reference
func ValidateMediaRef(mediaType, id string) error {
	if mediaType == "" {
		return fmt.Errorf("media type is required")
	}
	if len(mediaType) > 8 || !CommandNameRegex.MatchString(mediaType) {
		return fmt.Errorf("invalid media type %q", mediaType)
	}
	if id == "" {
		return fmt.Errorf("media id is required")
	}
	if len(id) > 256 {
		return fmt.Errorf("media id is too long (max 256 characters)")
	}
	if !MediaIDRegex.MatchString(id) {
		return fmt.Errorf("invalid media id format")
	}
	return nil
}

// ValidateURL validates URL format
func ValidateURL(urlStr string) error {
	if urlStr == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(urlStr)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("invalid URL scheme (must be http, https, ws, or wss)")
	}
	if u.Host == "" {
		return fmt.Errorf("URL must have a host")
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	if strings.TrimSpace(s) == "" {
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
