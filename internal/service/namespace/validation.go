package namespace

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"drivestore/internal/config"
	"drivestore/internal/domain"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var noSlashes = regexp.MustCompile(`^[^/]+$`)

// validateName trims and checks an entry name
func validateName(raw string) (string, error) {
	name := strings.TrimSpace(raw)

	err := validation.Validate(name,
		validation.Required.Error("name is required"),
		validation.By(maxBytes(config.MaxEntryNameLength)),
		validation.Match(noSlashes).Error("name cannot contain slashes"),
		validation.NotIn(".", "..").Error("name cannot be . or .."),
		validation.By(noControlChars),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}
	return name, nil
}

// maxBytes limits the encoded length; ozzo's Length counts runes
func maxBytes(limit int) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if len(s) > limit {
			return fmt.Errorf("name must be at most %d bytes", limit)
		}
		return nil
	}
}

func noControlChars(value interface{}) error {
	s, _ := value.(string)
	if strings.IndexFunc(s, unicode.IsControl) >= 0 {
		return fmt.Errorf("name cannot contain control characters")
	}
	return nil
}
