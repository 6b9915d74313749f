package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// IDRegex constrains stream/connection id format.
	IDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// ValidateID checks stream and connection id format.
func ValidateID(kind, id string) error {
	if id == "" {
		return fmt.Errorf("%s is required", kind)
	}
	if len(id) > 100 {
		return fmt.Errorf("%s is too long (max 100 characters)", kind)
	}
	if !IDRegex.MatchString(id) {
		return fmt.Errorf("%s contains invalid characters (only letters, numbers, _, - allowed)", kind)
	}
	return nil
}

// ValidateDisplayName checks guest display names.
func ValidateDisplayName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("display name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("display name is too long (max 64 characters)")
	}
	return nil
}

// NormalizeChatText trims the text and truncates it to maxRunes. The
// platform is lenient: oversized messages are cut, not rejected. Returns
// the normalized text and whether anything is left to send.
func NormalizeChatText(text string, maxRunes int) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	runes := []rune(text)
	if len(runes) > maxRunes {
		text = string(runes[:maxRunes])
	}
	return text, true
}

// ValidateStreamTitle checks broadcast titles.
func ValidateStreamTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("title is required")
	}
	if len(title) > 140 {
		return fmt.Errorf("title is too long (max 140 characters)")
	}
	return nil
}
