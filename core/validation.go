package core

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	MinUsernameLength = 4
	MaxUsernameLength = 20

	MinPasswordLength = 8
	MaxPasswordLength = 50

	MinEmailLength = 5
	MaxEmailLength = 50
)

// Rule bounds a single credential field.
type Rule struct {
	Required bool
	MinLen   int
	MaxLen   int
}

// FieldValue is a named input value. Order of the slice is the order in
// which violations are reported.
type FieldValue struct {
	Name  string
	Value string
}

// Violations is the outcome of a validation pass; empty means valid.
type Violations []string

// Err folds the violations into a single *ValidationError, or nil.
func (v Violations) Err() error {
	if len(v) == 0 {
		return nil
	}
	return &ValidationError{Violations: append([]string(nil), v...)}
}

var (
	registerRules = map[string]Rule{
		"Username": {Required: true, MinLen: MinUsernameLength, MaxLen: MaxUsernameLength},
		"Password": {Required: true, MinLen: MinPasswordLength, MaxLen: MaxPasswordLength},
		"Email":    {Required: true, MinLen: MinEmailLength, MaxLen: MaxEmailLength},
	}
	loginRules = map[string]Rule{
		"Username/Email": {Required: true, MinLen: MinUsernameLength, MaxLen: MaxEmailLength},
		"Password":       {Required: true, MinLen: MinPasswordLength, MaxLen: MaxPasswordLength},
	}

	formatValidator = validator.New()
)

// ValidateCredentials runs every rule against every field without stopping at
// the first failure. Emptiness checks are reported first, then minimum, then
// maximum length, each pass in field order.
func ValidateCredentials(fields []FieldValue, rules map[string]Rule) Violations {
	var out Violations
	for _, f := range fields {
		r, ok := rules[f.Name]
		if ok && r.Required && strings.TrimSpace(f.Value) == "" {
			out = append(out, fmt.Sprintf("%s can't be null or empty", f.Name))
		}
	}
	for _, f := range fields {
		r, ok := rules[f.Name]
		if ok && r.MinLen > 0 && utf8.RuneCountInString(f.Value) < r.MinLen {
			out = append(out, fmt.Sprintf("%s can't be less than %d characters", f.Name, r.MinLen))
		}
	}
	for _, f := range fields {
		r, ok := rules[f.Name]
		if ok && r.MaxLen > 0 && utf8.RuneCountInString(f.Value) > r.MaxLen {
			out = append(out, fmt.Sprintf("%s can't be greater than %d characters", f.Name, r.MaxLen))
		}
	}
	return out
}

// ValidateRegistration checks a registration envelope, including email format.
func ValidateRegistration(username, email, password string) Violations {
	v := ValidateCredentials([]FieldValue{
		{Name: "Username", Value: username},
		{Name: "Password", Value: password},
		{Name: "Email", Value: email},
	}, registerRules)
	if strings.TrimSpace(email) != "" && formatValidator.Var(email, "email") != nil {
		v = append(v, "Email must be a valid email address")
	}
	return v
}

// ValidateLogin checks a login envelope.
func ValidateLogin(identifier, password string) Violations {
	return ValidateCredentials([]FieldValue{
		{Name: "Username/Email", Value: identifier},
		{Name: "Password", Value: password},
	}, loginRules)
}
