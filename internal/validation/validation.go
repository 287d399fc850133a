package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"allyboard/internal/constants"
	"allyboard/internal/errors"
)

// ValidateMentionName validates a role or channel name before it is normalized
func ValidateMentionName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.NewValidationError("name", name, "name cannot be empty")
	}

	if utf8.RuneCountInString(name) > constants.MaxNameLength {
		return errors.NewValidationError("name", name,
			fmt.Sprintf("name too long (max %d characters)", constants.MaxNameLength))
	}

	if containsControl(name) {
		return errors.NewValidationError("name", name, "name contains invalid characters")
	}

	return nil
}

// ValidateScopeKey validates an alliance/group key. The empty key is the global scope.
func ValidateScopeKey(group string) error {
	if group == "" {
		return nil
	}

	if len(group) > constants.MaxScopeKeyLength {
		return errors.NewValidationError("scope", group,
			fmt.Sprintf("scope too long (max %d characters)", constants.MaxScopeKeyLength))
	}

	// Scope keys are identifiers: letters, digits, underscores, dashes and dots
	for _, char := range group {
		if !unicode.IsLetter(char) && !unicode.IsDigit(char) && char != '_' && char != '-' && char != '.' {
			return errors.NewValidationError("scope", group,
				"scope must contain only letters, numbers, underscores, dashes and dots")
		}
	}

	return nil
}

// ValidateExternalID rejects IDs that cannot be embedded in a mention.
// Blank is allowed and means the ID is still pending.
func ValidateExternalID(id string) error {
	if id == "" {
		return nil
	}

	if len(id) > constants.MaxNameLength {
		return errors.NewValidationError("externalId", id,
			fmt.Sprintf("external ID too long (max %d characters)", constants.MaxNameLength))
	}

	if strings.ContainsAny(id, "<>") || containsControl(id) {
		return errors.NewValidationError("externalId", id, "external ID contains invalid characters")
	}

	return nil
}

// ValidateMessage validates a raw message template
func ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return errors.NewValidationError("rawMessage", "", "message cannot be empty")
	}

	if n := utf8.RuneCountInString(message); n > constants.MaxRawMessageLength {
		return errors.NewValidationError("rawMessage", fmt.Sprintf("%d characters", n),
			fmt.Sprintf("message too long (max %d characters)", constants.MaxRawMessageLength))
	}

	if !utf8.ValidString(message) {
		return errors.NewValidationError("rawMessage", "", "message is not valid UTF-8")
	}

	return nil
}

// ValidateItemID validates a queue item or log entry identifier
func ValidateItemID(id string) error {
	if id == "" {
		return errors.New(errors.ErrCodeInvalidInput, "item ID cannot be empty")
	}

	if len(id) > constants.MaxItemIDLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("item ID too long (max %d characters)", constants.MaxItemIDLength))
	}

	if containsControl(id) || strings.ContainsAny(id, "/ ") {
		return errors.New(errors.ErrCodeInvalidInput, "item ID contains invalid characters")
	}

	return nil
}

func containsControl(s string) bool {
	for _, char := range s {
		if unicode.IsControl(char) {
			return true
		}
	}
	return false
}
