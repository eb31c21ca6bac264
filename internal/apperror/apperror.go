// Package apperror defines the error taxonomy shared by the bot core and
// maps validation failures to user-facing messages.
package apperror

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Error kinds. Callers match them with errors.Is.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrNotFound          = errors.New("not found")
	ErrTransientProvider = errors.New("transient provider error")
	ErrEstimationFailed  = errors.New("estimation failed")
	ErrPersistence       = errors.New("persistence error")
)

// Error carries a kind, a message safe to show to the user and an optional cause.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Kind, e.Err}
	}
	return []error{e.Kind}
}

// InvalidInput builds an ErrInvalidInput error with a user-facing message.
func InvalidInput(format string, args ...any) error {
	return &Error{Kind: ErrInvalidInput, Message: fmt.Sprintf(format, args...)}
}

// NotFound builds an ErrNotFound error.
func NotFound(format string, args ...any) error {
	return &Error{Kind: ErrNotFound, Message: fmt.Sprintf(format, args...)}
}

// Transient wraps a provider failure that must be folded into NotFound.
func Transient(provider string, err error) error {
	return &Error{Kind: ErrTransientProvider, Message: provider, Err: err}
}

// EstimationFailed wraps an estimator failure.
func EstimationFailed(err error) error {
	return &Error{Kind: ErrEstimationFailed, Message: "could not interpret the input", Err: err}
}

// Persistence wraps a store failure.
func Persistence(op string, err error) error {
	return &Error{Kind: ErrPersistence, Message: op, Err: err}
}

// UserMessage returns the message to show for err, or fallback when err
// carries nothing the user should see.
func UserMessage(err error, fallback string) string {
	var appErr *Error
	if errors.As(err, &appErr) && (appErr.Kind == ErrInvalidInput || appErr.Kind == ErrNotFound) {
		return appErr.Message
	}
	return fallback
}

var (
	errRequired       = errors.New("is required")
	errMustBePositive = errors.New("must be a positive number")
	errNegative       = errors.New("must not be negative")
	errOutOfRange     = errors.New("is out of range")
	errUnsupported    = errors.New("is not a supported value")
)

var customErrors = map[string]error{
	"Goals.Calories.gt":                  errMustBePositive,
	"Goals.Calories.lte":                 errOutOfRange,
	"Goals.Protein.gte":                  errNegative,
	"Goals.Protein.lte":                  errOutOfRange,
	"Goals.Carbs.gte":                    errNegative,
	"Goals.Carbs.lte":                    errOutOfRange,
	"Goals.Fat.gte":                      errNegative,
	"Goals.Fat.lte":                      errOutOfRange,
	"InboundPayload.UserID.required":     errRequired,
	"InboundPayload.UserID.gt":           errMustBePositive,
	"CommandPayload.UserID.required":     errRequired,
	"CommandPayload.UserID.gt":           errMustBePositive,
	"CommandPayload.Command.required":    errRequired,
	"Config.Database.Driver.oneof":       errUnsupported,
	"Config.Ledger.DayStartHour.gte":     errOutOfRange,
	"Config.Ledger.DayStartHour.lte":     errOutOfRange,
	"Config.ML.Type.oneof":               errUnsupported,
	"Config.Server.Port.required":        errRequired,
	"Config.Providers.TimeoutSeconds.gt": errMustBePositive,
}

// ValidationMessages converts validator errors into field/message pairs.
func ValidationMessages(err error) []map[string]string {
	errList := make([]map[string]string, 0)

	var validationErr validator.ValidationErrors
	if errors.As(err, &validationErr) {
		for _, e := range validationErr {
			field := e.StructNamespace()
			key := field + "." + e.Tag()

			errMsg := fmt.Sprintf("%s is invalid", field)
			if v, ok := customErrors[key]; ok {
				errMsg = v.Error()
			}

			errList = append(errList, map[string]string{e.Field(): errMsg})
		}
	}
	return errList
}
