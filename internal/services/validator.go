package services

import (
	"strings"

	playvalidator "github.com/go-playground/validator/v10"
)

var validate = playvalidator.New()

type validator struct {
	errors map[string]string
}

func newValidator() *validator {
	return &validator{errors: make(map[string]string)}
}

func (v *validator) hasErrors() bool {
	return len(v.errors) != 0
}

// checkCond records msg for key when cond fails. Only the first message per key is kept.
func (v *validator) checkCond(cond bool, key, msg string) {
	if cond {
		return
	}
	if _, ok := v.errors[key]; !ok {
		v.errors[key] = msg
	}
}

func (v *validator) checkRequired(value, key string) {
	v.checkCond(strings.TrimSpace(value) != "", key, "must be provided")
}

func (v *validator) checkEmail(email string) {
	v.checkRequired(email, "email")
	v.checkCond(validate.Var(email, "required,email") == nil, "email", "must be a valid email address")
}

func (v *validator) toError() error {
	if !v.hasErrors() {
		return nil
	}
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: v.errors}
}
