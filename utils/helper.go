package utils

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

func NewTrue() *bool {
	b := true
	return &b
}

func NewFalse() *bool {
	b := false
	return &b
}

// split a comma list stored on a record into trimmed values, dropping blanks
func SplitCommaList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func ProcessValidationErrors(err error) map[string]string {

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"error": err.Error()}
	}

	errorResponse := make(map[string]string)
	for _, fieldError := range validationErrors {
		fieldName := strings.ToLower(fieldError.Field())
		switch fieldError.Tag() {
		case "required":
			errorResponse[fieldName] = fieldName + " is required"
		case "gt":
			errorResponse[fieldName] = fieldName + " must be greater than " + fieldError.Param()
		default:
			errorResponse[fieldName] = fieldName + " is invalid"
		}
	}
	return errorResponse
}
