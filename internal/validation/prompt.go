// Package validation checks and normalizes user prompts before they reach the
// generation service or the history store.
package validation

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"imagine/internal/domain"
)

var unsafePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)<script`),
	regexp.MustCompile(`(?i)javascript:`),
	regexp.MustCompile(`(?i)on\w+\s*=`),
	regexp.MustCompile(`(?i)data:text/html`),
}

// ValidatePrompt rejects empty, oversized and markup-carrying prompts. The
// returned error always matches domain.ErrInvalidInput.
func ValidatePrompt(text string) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return domain.ErrEmptyPrompt
	}
	if utf8.RuneCountInString(trimmed) > domain.MaxPromptLength {
		return domain.ErrPromptTooLong
	}
	for _, re := range unsafePatterns {
		if re.MatchString(trimmed) {
			return domain.ErrUnsafeContent
		}
	}
	return nil
}

// Sanitize strips angle brackets and caps the text at MaxPromptLength runes.
// It is used for stored and displayed values only, never for the request.
func Sanitize(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if r == '<' || r == '>' {
			return -1
		}
		return r
	}, norm.NFC.String(text))
	if utf8.RuneCountInString(cleaned) <= domain.MaxPromptLength {
		return cleaned
	}
	runes := []rune(cleaned)
	return string(runes[:domain.MaxPromptLength])
}

// ComposePrompt renders the prompt parameter sent to the generation service.
func ComposePrompt(prompt string, ratio domain.AspectRatio) string {
	return strings.TrimSpace(prompt) + " " + string(ratio)
}
