package validation

import (
	"strings"
	"testing"
)

func TestValidateCommandName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "roll", false},
		{"with dash", "now-playing", false},
		{"mixed case", "Roll", false},
		{"empty", "", true},
		{"space", "ro ll", true},
		{"trigger included", ".roll", true},
		{"too long", strings.Repeat("a", 33), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommandName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCommandName() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateCooldownID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "roll", false},
		{"dotted", "playlist.add", false},
		{"upper case", "Roll", true},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 65), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCooldownID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCooldownID() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"valid username", "user123", false},
		{"single char", "a", false},
		{"unicode letters", "Zoë", false},
		{"valid with underscore", "user_name", false},
		{"empty", "", true},
		{"too long", strings.Repeat("a", 21), true},
		{"invalid chars", "user name", true},
		{"invalid chars 2", "user@name", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateUsername() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateMediaRef(t *testing.T) {
	tests := []struct {
		name      string
		mediaType string
		id        string
		wantErr   bool
	}{
		{"youtube", "yt", "dQw4w9WgXcQ", false},
		{"raw file url", "fi", "https://cdn.example.com/a.mp4", false},
		{"missing type", "", "abc", true},
		{"missing id", "yt", "", true},
		{"bad id", "yt", "a b", true},
		{"long type", "youtubevideo", "abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateMediaRef(tt.mediaType, tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateMediaRef() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		wantErr bool
	}{
		{"websocket", "wss://rooms.example.com/socket", false},
		{"http", "http://example.com", false},
		{"empty", "", true},
		{"bad scheme", "ftp://example.com", true},
		{"no host", "ws://", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateURL() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateStringLength(t *testing.T) {
	if err := ValidateStringLength("héllo", 1, 5, "title"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateStringLength("", 1, 5, "title"); err == nil {
		t.Error("expected error for short string")
	}
	if err := ValidateNonEmptyString("   ", "message"); err == nil {
		t.Error("expected error for blank string")
	}
}
