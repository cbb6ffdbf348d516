package utils

import (
	"strings"
	"unicode"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators adds the custom rules to gin's binding validator.
func RegisterValidators() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		Register(v)
	}
}

func Register(v *validator.Validate) {
	v.RegisterValidation("isphone", IsValidPhone)
}

// IsValidPhone accepts national or "+" prefixed numbers with common
// separators and 7 to 15 digits.
func IsValidPhone(fl validator.FieldLevel) bool {
	phoneNumber := strings.TrimSpace(fl.Field().String())
	phoneNumber = strings.TrimPrefix(phoneNumber, "+")

	digits := 0
	for _, char := range phoneNumber {
		switch {
		case unicode.IsDigit(char):
			digits++
		case char == ' ' || char == '-' || char == '(' || char == ')':
		default:
			return false
		}
	}
	return digits >= 7 && digits <= 15
}
