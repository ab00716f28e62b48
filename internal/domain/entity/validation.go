package entity

import (
	"fmt"
	"net/mail"
	"regexp"
)

// maxContactLength bounds phone and email inputs coming from the domain layer.
const maxContactLength = 254

// E.164: leading +, country code, up to 15 digits total.
var phonePattern = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// ValidatePhone checks that phone is an E.164 number, the format SMS gateways accept.
func ValidatePhone(phone string) error {
	if phone == "" {
		return &ValidationError{Field: "phone", Message: "phone is required"}
	}
	if len(phone) > maxContactLength {
		return &ValidationError{
			Field:   "phone",
			Message: fmt.Sprintf("phone must not exceed %d characters", maxContactLength),
		}
	}
	// 国際電話番号形式(E.164)のみ許可
	if !phonePattern.MatchString(phone) {
		return &ValidationError{Field: "phone", Message: "phone must be in E.164 format"}
	}
	return nil
}

// ValidateEmail checks that addr is a bare RFC 5322 address without a display name.
func ValidateEmail(addr string) error {
	if addr == "" {
		return &ValidationError{Field: "email", Message: "email is required"}
	}
	if len(addr) > maxContactLength {
		return &ValidationError{
			Field:   "email",
			Message: fmt.Sprintf("email must not exceed %d characters", maxContactLength),
		}
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil || parsed.Address != addr {
		return &ValidationError{Field: "email", Message: "email is invalid"}
	}
	return nil
}
