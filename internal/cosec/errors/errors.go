package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound              = fmt.Errorf("not found")
	ErrDuplicateRegistration = fmt.Errorf("duplicate registration number")
	ErrInvalidInput          = fmt.Errorf("invalid input")
	ErrImmutableField        = fmt.Errorf("field cannot be changed")
	ErrRetrieval             = fmt.Errorf("template retrieval failed")
	ErrConversion            = fmt.Errorf("document conversion failed")
	ErrEmptyRecipients       = fmt.Errorf("no recipient email address found")
	ErrUnsupportedAction     = fmt.Errorf("unsupported action")
)

// ConversionError describes a failed run of the external conversion engine.
// Output holds whatever the engine printed, for diagnostics only.
type ConversionError struct {
	Reason  string
	Command []string
	Output  string
}

func (c *ConversionError) Error() string {
	if len(c.Command) == 0 {
		return fmt.Sprintf("%s: %s", ErrConversion, c.Reason)
	}
	return fmt.Sprintf("%s: %s (command: %s)", ErrConversion, c.Reason, strings.Join(c.Command, " "))
}

func (c *ConversionError) Unwrap() error {
	return ErrConversion
}

// AsConversionError reports whether err carries a *ConversionError.
func AsConversionError(err error) (*ConversionError, bool) {
	var ce *ConversionError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
