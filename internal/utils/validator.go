package utils

import (
	"errors"
	"strings"

	"venty/internal/agreement"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	validate.RegisterValidation("participant_role", validateParticipantRole)
	validate.RegisterValidation("variant", validateVariant)
}

// ValidationError represents validation error details
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// ValidateStruct validates a struct and returns user-friendly error messages
func ValidateStruct(s interface{}) []ValidationError {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Field: "body", Tag: "invalid", Message: err.Error()}}
	}

	out := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		out = append(out, ValidationError{
			Field:   fieldPath(fe),
			Tag:     fe.Tag(),
			Message: getErrorMessage(fe),
		})
	}
	return out
}

// ValidationDetails flattens validation errors for ValidationErrorResponse.
func ValidationDetails(errs []ValidationError) map[string]string {
	details := make(map[string]string, len(errs))
	for _, e := range errs {
		details[e.Field] = e.Message
	}
	return details
}

// ValidateParticipantRole reports whether role can join a conversation.
func ValidateParticipantRole(role string) bool {
	switch agreement.Role(role) {
	case agreement.RoleUser, agreement.RoleMerchant, agreement.RolePeer:
		return true
	}
	return false
}

func validateParticipantRole(fl validator.FieldLevel) bool {
	return ValidateParticipantRole(fl.Field().String())
}

func validateVariant(fl validator.FieldLevel) bool {
	return agreement.Variant(fl.Field().String()).IsValid()
}

// fieldPath drops the top-level struct name: "OpenRequest.Participants[0].ID"
// becomes "participants[0].id".
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return strings.ToLower(ns)
}

func getErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Please enter a valid email address"
	case "min":
		return "This field must be at least " + fe.Param() + " long"
	case "max":
		return "This field must be no more than " + fe.Param() + " long"
	case "len":
		return "This field must have exactly " + fe.Param() + " items"
	case "participant_role":
		return "Role must be user, merchant or peer"
	case "variant":
		return "Variant must be unified or exchange"
	default:
		return "This field is invalid"
	}
}
