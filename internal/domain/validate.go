package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the shared validator instance. validator.Validate caches
// struct metadata and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateRun checks a retrieval configuration and entity selection
// before any network activity. It returns a *ValidationError describing
// the first violation found.
func ValidateRun(entities []EntityReference, cfg RetrievalConfig) error {
	if len(entities) == 0 {
		return &ValidationError{Field: "entities", Message: "at least one entity must be selected"}
	}

	for i, entity := range entities {
		if err := validate.Struct(entity); err != nil {
			return translate(fmt.Sprintf("entities[%d]", i), err)
		}
	}

	if err := validate.Struct(cfg); err != nil {
		return translate("config", err)
	}
	return nil
}

// translate converts a validator error into the domain error type.
func translate(prefix string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ValidationError{Field: prefix, Message: err.Error()}
	}
	fe := verrs[0]
	field := prefix + "." + strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return &ValidationError{Field: field, Message: "is required"}
	case "gtefield":
		return &ValidationError{Field: field, Message: "must not precede " + strings.ToLower(fe.Param())}
	case "oneof":
		return &ValidationError{Field: field, Message: "must be one of: " + fe.Param()}
	case "gt":
		return &ValidationError{Field: field, Message: "must be greater than " + fe.Param()}
	case "min":
		return &ValidationError{Field: field, Message: "must be at least " + fe.Param()}
	default:
		return &ValidationError{Field: field, Message: "failed " + fe.Tag() + " validation"}
	}
}
