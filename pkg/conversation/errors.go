package conversation

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrEditOpen indicates a mutation scope is already open for the message.
	ErrEditOpen = errors.New("message already has an open edit scope")
	// ErrNoProducer indicates an assistant message was appended without a
	// token producer configured on the manager or the append options.
	ErrNoProducer = errors.New("no token producer configured")
)

// ValidationError is returned by Append when the role/parent/content
// preconditions are violated. Rule names the specific violated constraint.
type ValidationError struct {
	Rule string
}

func (e *ValidationError) Error() string {
	return e.Rule
}

func newValidationError(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Rule: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
