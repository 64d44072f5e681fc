package validation

import (
	"strings"

	"imagine/internal/domain"
)

// ParseAspectRatio accepts a full token ("--ar 16:9"), a bare ratio ("16:9")
// or an option name ("widescreen"). Empty input yields the default ratio.
func ParseAspectRatio(s string) (domain.AspectRatio, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.DefaultAspectRatio, nil
	}
	lower := strings.ToLower(s)
	for _, opt := range domain.AspectRatioOptions {
		if string(opt.Value) == lower || opt.Value.Ratio() == lower || opt.Name == lower {
			return opt.Value, nil
		}
	}
	return "", domain.ErrInvalidAspectRatio
}
