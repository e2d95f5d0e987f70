package chat

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minUsernameLen    = 2
	maxUsernameLen    = 32
	minPasswordLen    = 6
	maxPasswordBytes  = 72
	maxMessageLen     = 2000
	maxDisplayNameLen = 32
	maxMuteMinutes    = 365 * 24 * 60
	recentWindow      = 100
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

func validateEmail(email string) error {
	if !emailPattern.MatchString(email) {
		return invalid("malformed email address")
	}
	return nil
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(username)
	if n < minUsernameLen || n > maxUsernameLen {
		return invalid("username must be %d to %d characters", minUsernameLen, maxUsernameLen)
	}
	if strings.IndexFunc(username, unicode.IsSpace) >= 0 {
		return invalid("username must not contain whitespace")
	}
	return nil
}

// validatePassword also caps the length at bcrypt's input limit.
func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return invalid("password must be at least %d characters", minPasswordLen)
	}
	if len(password) > maxPasswordBytes {
		return invalid("password must be at most %d bytes", maxPasswordBytes)
	}
	return nil
}

func normalizeMessage(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", invalid("message is empty")
	}
	if utf8.RuneCountInString(content) > maxMessageLen {
		return "", invalid("message exceeds %d characters", maxMessageLen)
	}
	return content, nil
}

// normalizeDisplayName trims name; an empty result clears the display name.
func normalizeDisplayName(name *string) (*string, error) {
	if name == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*name)
	if trimmed == "" {
		return nil, nil
	}
	if utf8.RuneCountInString(trimmed) > maxDisplayNameLen {
		return nil, invalid("display name exceeds %d characters", maxDisplayNameLen)
	}
	return &trimmed, nil
}
